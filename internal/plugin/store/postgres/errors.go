package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
)

// Re-export error types from registry/store for convenience inside this package.
type NotFoundError = registrystore.NotFoundError
type ValidationError = registrystore.ValidationError
type ConflictError = registrystore.ConflictError
type ForbiddenError = registrystore.ForbiddenError
type AlreadyDeletedError = registrystore.AlreadyDeletedError
type AlreadyErasedError = registrystore.AlreadyErasedError
type UnknownIdentityError = registrystore.UnknownIdentityError

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
