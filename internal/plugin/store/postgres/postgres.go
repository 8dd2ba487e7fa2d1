package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/config"
	"github.com/planetrip/planet-chat/internal/cursor"
	"github.com/planetrip/planet-chat/internal/model"
	registrycache "github.com/planetrip/planet-chat/internal/registry/cache"
	registrymigrate "github.com/planetrip/planet-chat/internal/registry/migrate"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{
				db:          db,
				cfg:         cfg,
				unreadCache: registrycache.UnreadCacheFromContext(ctx),
			}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Read and execute embedded schema
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements ChatStore using GORM + PostgreSQL.
type PostgresStore struct {
	db          *gorm.DB
	cfg         *config.Config
	unreadCache registrycache.UnreadCache
}

// --- Planets ---

func (s *PostgresStore) CreatePlanet(ctx context.Context, ownerID int64, name string) (*model.Planet, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	owner, err := s.requireActor(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	planet := model.Planet{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   owner.ID,
		CreatedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&planet).Error; err != nil {
			return fmt.Errorf("failed to create planet: %w", err)
		}
		membership := model.PlanetUser{
			PlanetID:  planet.ID,
			UserID:    owner.ID,
			Status:    model.MembershipActive,
			CreatedAt: planet.CreatedAt,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return fmt.Errorf("failed to create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &planet, nil
}

func (s *PostgresStore) GetPlanet(ctx context.Context, actorID int64, planetID uuid.UUID) (*model.Planet, error) {
	planet, err := s.findPlanet(ctx, planetID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, actorID, planetID); err != nil {
		return nil, err
	}
	return planet, nil
}

// applyPlanetCursor resolves an id-valued planet cursor to its composite
// (created_at, id) ordering key. Malformed or unknown cursor ids surface as
// InvalidCursorError instead of a silent empty page.
func (s *PostgresStore) applyPlanetCursor(ctx context.Context, tx *gorm.DB, alias string, after string) (*gorm.DB, error) {
	id, err := uuid.Parse(after)
	if err != nil {
		return nil, &cursor.InvalidCursorError{Cursor: after}
	}
	var p model.Planet
	found := s.db.WithContext(ctx).Select("id, created_at").Where("id = ?", id).Limit(1).Find(&p)
	if found.Error != nil {
		return nil, found.Error
	}
	if found.RowsAffected == 0 {
		return nil, &cursor.InvalidCursorError{Cursor: after}
	}
	pred := fmt.Sprintf("(%s.created_at, %s.id) > (?, ?)", alias, alias)
	return tx.Where(pred, p.CreatedAt, p.ID), nil
}

func (s *PostgresStore) ListPlanets(ctx context.Context, actorID int64, afterCursor *string, limit int) ([]model.Planet, *string, error) {
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}

	tx := s.db.WithContext(ctx).
		Table("planets p").
		Select("p.id, p.name, p.owner_id, p.created_at, p.deleted_at").
		Joins("JOIN planet_users pu ON pu.planet_id = p.id AND pu.user_id = ?", actorID).
		Where("p.deleted_at IS NULL")

	if afterCursor != nil {
		var err error
		tx, err = s.applyPlanetCursor(ctx, tx, "p", *afterCursor)
		if err != nil {
			return nil, nil, err
		}
	}
	tx = tx.Order("p.created_at ASC, p.id ASC").Limit(limit + 1)

	var rows []model.Planet
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list planets: %w", err)
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

func (s *PostgresStore) DeletePlanet(ctx context.Context, actorID int64, planetID uuid.UUID) error {
	planet, err := s.findPlanet(ctx, planetID)
	if err != nil {
		return err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return err
	}
	if planet.OwnerID != actor.ID && actor.Role != model.RoleAdmin {
		return &ForbiddenError{}
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The planet and its messages are soft-deleted; memberships and read
		// marks carry no content and are removed outright.
		if err := tx.Model(&model.Planet{}).
			Where("id = ? AND deleted_at IS NULL", planetID).
			Update("deleted_at", now).Error; err != nil {
			return fmt.Errorf("failed to soft-delete planet: %w", err)
		}
		if err := tx.Model(&model.Message{}).
			Where("planet_id = ? AND deleted_at IS NULL", planetID).
			Updates(map[string]interface{}{
				"deleted_at": now,
				"deleted_by": actor.ID,
			}).Error; err != nil {
			return fmt.Errorf("failed to soft-delete messages: %w", err)
		}
		if err := tx.Where("planet_id = ?", planetID).
			Delete(&model.PlanetUser{}).Error; err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		if err := tx.Where("planet_id = ?", planetID).
			Delete(&model.PlanetReadMark{}).Error; err != nil {
			return fmt.Errorf("failed to delete read marks: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidatePlanetUnread(ctx, planetID)
	return nil
}

// --- Memberships ---

func (s *PostgresStore) JoinPlanet(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64, status model.MembershipStatus) (*model.PlanetUser, error) {
	if status == "" {
		status = model.MembershipActive
	}
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown membership status %q", status)}
	}
	planet, err := s.findPlanet(ctx, planetID)
	if err != nil {
		return nil, err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target := actor
	if userID != actorID {
		// Inviting someone else requires owning the planet or being an
		// active member.
		if planet.OwnerID != actor.ID {
			if _, err := s.requireActiveMember(ctx, actor.ID, planetID); err != nil {
				return nil, err
			}
		}
		target, err = s.requireActor(ctx, userID)
		if err != nil {
			return nil, err
		}
		status = model.MembershipInvited
	}

	membership := model.PlanetUser{
		PlanetID:  planetID,
		UserID:    target.ID,
		Status:    status,
		CreatedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Create(&membership).Error
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: fmt.Sprintf("user %d is already a member of planet %s", target.ID, planetID)}
		}
		return nil, fmt.Errorf("failed to join planet: %w", err)
	}
	return &membership, nil
}

func (s *PostgresStore) ListPlanetMembers(ctx context.Context, actorID int64, planetID uuid.UUID, afterCursor *string, limit int) ([]model.PlanetUser, *string, error) {
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return nil, nil, err
	}
	if _, err := s.requireMember(ctx, actorID, planetID); err != nil {
		return nil, nil, err
	}

	tx := s.db.WithContext(ctx).
		Where("planet_id = ?", planetID).
		Order("user_id ASC").
		Limit(limit + 1)
	if afterCursor != nil {
		tx = tx.Where("user_id > ?", *afterCursor)
	}

	var rows []model.PlanetUser
	if err := tx.Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list members: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	var cursor *string
	if hasMore && len(rows) > 0 {
		c := fmt.Sprintf("%d", rows[len(rows)-1].UserID)
		cursor = &c
	}
	return rows, cursor, nil
}

func (s *PostgresStore) UpdateMemberStatus(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64, status model.MembershipStatus) (*model.PlanetUser, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown membership status %q", status)}
	}
	planet, err := s.findPlanet(ctx, planetID)
	if err != nil {
		return nil, err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	// Members accept their own invites; anything else is for the owner or an
	// admin.
	selfAccept := actorID == userID && status == model.MembershipActive
	if !selfAccept && planet.OwnerID != actor.ID && actor.Role != model.RoleAdmin {
		return nil, &ForbiddenError{}
	}

	var membership model.PlanetUser
	result := s.db.WithContext(ctx).
		Where("planet_id = ? AND user_id = ?", planetID, userID).
		Limit(1).
		Find(&membership)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "membership", ID: fmt.Sprintf("%s/%d", planetID, userID)}
	}

	if err := s.db.WithContext(ctx).Model(&model.PlanetUser{}).
		Where("planet_id = ? AND user_id = ?", planetID, userID).
		Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}
	membership.Status = status
	return &membership, nil
}

func (s *PostgresStore) LeavePlanet(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64) error {
	planet, err := s.findPlanet(ctx, planetID)
	if err != nil {
		return err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return err
	}
	if actorID != userID && planet.OwnerID != actor.ID && actor.Role != model.RoleAdmin {
		return &ForbiddenError{}
	}
	if planet.OwnerID == userID {
		return &ConflictError{Message: "planet owner cannot leave; delete the planet or transfer ownership first"}
	}

	result := s.db.WithContext(ctx).
		Where("planet_id = ? AND user_id = ?", planetID, userID).
		Delete(&model.PlanetUser{})
	if result.Error != nil {
		return fmt.Errorf("failed to leave planet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "membership", ID: fmt.Sprintf("%s/%d", planetID, userID)}
	}
	// Read marks for a departed member are dead rows.
	if err := s.db.WithContext(ctx).
		Where("planet_id = ? AND user_id = ?", planetID, userID).
		Delete(&model.PlanetReadMark{}).Error; err != nil {
		return fmt.Errorf("failed to delete read mark: %w", err)
	}
	s.invalidateUnread(ctx, planetID, userID)
	return nil
}

// --- Travels ---

func (s *PostgresStore) CreateTravel(ctx context.Context, hostID int64, title string) (*model.Travel, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	host, err := s.requireActor(ctx, hostID)
	if err != nil {
		return nil, err
	}

	travel := model.Travel{
		ID:        uuid.New(),
		Title:     title,
		HostID:    host.ID,
		CreatedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&travel).Error; err != nil {
			return fmt.Errorf("failed to create travel: %w", err)
		}
		member := model.TravelUser{
			TravelID:  travel.ID,
			UserID:    host.ID,
			Status:    model.MembershipActive,
			CreatedAt: travel.CreatedAt,
		}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("failed to create host membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &travel, nil
}

func (s *PostgresStore) JoinTravel(ctx context.Context, actorID int64, travelID uuid.UUID, userID int64) (*model.TravelUser, error) {
	var travel model.Travel
	result := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", travelID).Limit(1).Find(&travel)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "travel", ID: travelID.String()}
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actorID != userID && travel.HostID != actor.ID && actor.Role != model.RoleAdmin {
		return nil, &ForbiddenError{}
	}
	if _, err := s.requireActor(ctx, userID); err != nil {
		return nil, err
	}

	member := model.TravelUser{
		TravelID:  travelID,
		UserID:    userID,
		Status:    model.MembershipActive,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: fmt.Sprintf("user %d is already on travel %s", userID, travelID)}
		}
		return nil, fmt.Errorf("failed to join travel: %w", err)
	}
	return &member, nil
}

// --- Helpers ---

func (s *PostgresStore) findPlanet(ctx context.Context, planetID uuid.UUID) (*model.Planet, error) {
	var planet model.Planet
	result := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", planetID).Limit(1).Find(&planet)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "planet", ID: planetID.String()}
	}
	return &planet, nil
}

// requireActor loads the acting identity. Sentinels and erased accounts can
// never act; banned accounts can read but their writes are rejected at the
// call sites that care.
func (s *PostgresStore) requireActor(ctx context.Context, userID int64) (*model.User, error) {
	if model.IsSentinel(userID) {
		return nil, &ForbiddenError{}
	}
	var user model.User
	result := s.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &UnknownIdentityError{UserID: userID}
	}
	if user.Erased() {
		return nil, &ForbiddenError{}
	}
	return &user, nil
}

func (s *PostgresStore) requireMember(ctx context.Context, userID int64, planetID uuid.UUID) (*model.PlanetUser, error) {
	var m model.PlanetUser
	result := s.db.WithContext(ctx).
		Where("planet_id = ? AND user_id = ?", planetID, userID).
		Limit(1).
		Find(&m)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to check membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &ForbiddenError{}
	}
	return &m, nil
}

// requireActiveMember is requireMember restricted to status=active. Muted and
// invited members fail.
func (s *PostgresStore) requireActiveMember(ctx context.Context, userID int64, planetID uuid.UUID) (*model.PlanetUser, error) {
	m, err := s.requireMember(ctx, userID, planetID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MembershipActive {
		return nil, &ForbiddenError{}
	}
	return m, nil
}

func (s *PostgresStore) invalidateUnread(ctx context.Context, planetID uuid.UUID, userID int64) {
	if s.unreadCache == nil || !s.unreadCache.Available() {
		return
	}
	if err := s.unreadCache.Remove(ctx, planetID, userID); err != nil {
		log.Warn("failed to invalidate unread cache", "planet", planetID, "user", userID, "error", err)
	}
}

func (s *PostgresStore) invalidatePlanetUnread(ctx context.Context, planetID uuid.UUID) {
	if s.unreadCache == nil || !s.unreadCache.Available() {
		return
	}
	if err := s.unreadCache.RemovePlanet(ctx, planetID); err != nil {
		log.Warn("failed to invalidate unread cache", "planet", planetID, "error", err)
	}
}
