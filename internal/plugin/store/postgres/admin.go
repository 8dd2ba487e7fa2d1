package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
)

// Admin methods skip membership checks. The route layer gates them behind
// the admin role.

func (s *PostgresStore) AdminListPlanets(ctx context.Context, q registrystore.AdminPlanetQuery) ([]model.Planet, *string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}

	tx := s.db.WithContext(ctx).Model(&model.Planet{})
	if !q.IncludeDeleted && !q.OnlyDeleted {
		tx = tx.Where("deleted_at IS NULL")
	}
	if q.OnlyDeleted {
		tx = tx.Where("deleted_at IS NOT NULL")
	}
	if q.OwnerID != nil {
		tx = tx.Where("owner_id = ?", *q.OwnerID)
	}
	if q.AfterCursor != nil {
		var err error
		tx, err = s.applyPlanetCursor(ctx, tx, "planets", *q.AfterCursor)
		if err != nil {
			return nil, nil, err
		}
	}
	tx = tx.Order("created_at ASC, id ASC").Limit(limit + 1)

	var rows []model.Planet
	if err := tx.Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to admin list planets: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	var cursor *string
	if hasMore && len(rows) > 0 {
		c := rows[len(rows)-1].ID.String()
		cursor = &c
	}
	return rows, cursor, nil
}

func (s *PostgresStore) AdminRestorePlanet(ctx context.Context, planetID uuid.UUID) error {
	var planet model.Planet
	found := s.db.WithContext(ctx).Where("id = ?", planetID).Limit(1).Find(&planet)
	if found.Error != nil {
		return found.Error
	}
	if found.RowsAffected == 0 {
		return &NotFoundError{Resource: "planet", ID: planetID.String()}
	}
	if planet.DeletedAt == nil {
		return &ConflictError{Message: "planet is not deleted"}
	}

	result := s.db.WithContext(ctx).Model(&model.Planet{}).
		Where("id = ? AND deleted_at IS NOT NULL", planetID).
		Update("deleted_at", nil)
	if result.Error != nil {
		return fmt.Errorf("failed to restore planet: %w", result.Error)
	}
	// Messages tombstoned by the planet delete stay tombstoned; restore
	// brings back the room, not moderated content.
	return nil
}

func (s *PostgresStore) AdminListMessages(ctx context.Context, planetID uuid.UUID, q registrystore.MessageQuery) (*registrystore.MessagePage, error) {
	var planet model.Planet
	result := s.db.WithContext(ctx).Where("id = ?", planetID).Limit(1).Find(&planet)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "planet", ID: planetID.String()}
	}
	return s.listMessages(ctx, planetID, q)
}
