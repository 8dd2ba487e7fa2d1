package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *PostgresStore) CreateUser(ctx context.Context, req registrystore.CreateUserRequest) (*model.User, error) {
	if req.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleHost && role != model.RoleAdmin {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}

	user := model.User{
		Name:       req.Name,
		Provider:   req.Provider,
		ProviderID: req.ProviderID,
		Role:       role,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: "identity already exists for this provider"}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	if model.IsSentinel(userID) {
		// Sentinels are synthetic rows seeded by the schema; serve them
		// without touching erasure state.
		return s.findUserRow(ctx, userID)
	}
	user, err := s.findUserRow(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Erased() {
		return nil, &NotFoundError{Resource: "user", ID: fmt.Sprintf("%d", userID)}
	}
	return user, nil
}

func (s *PostgresStore) BanUser(ctx context.Context, actorID, userID int64, reason string) error {
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleAdmin {
		return &ForbiddenError{}
	}
	if model.IsSentinel(userID) {
		return &ValidationError{Field: "userId", Message: "cannot ban a sentinel identity"}
	}
	result := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND deleted_at IS NULL", userID).
		Updates(map[string]interface{}{"banned": true, "ban_reason": reason})
	if result.Error != nil {
		return fmt.Errorf("failed to ban user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "user", ID: fmt.Sprintf("%d", userID)}
	}
	return nil
}

func (s *PostgresStore) UnbanUser(ctx context.Context, actorID, userID int64) error {
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleAdmin {
		return &ForbiddenError{}
	}
	result := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND deleted_at IS NULL", userID).
		Updates(map[string]interface{}{"banned": false, "ban_reason": ""})
	if result.Error != nil {
		return fmt.Errorf("failed to unban user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "user", ID: fmt.Sprintf("%d", userID)}
	}
	return nil
}

// ResolveIdentity maps a possibly-erased user id to the id content should be
// attributed to. Live accounts resolve to themselves, erased accounts to the
// sentinel for their role, and sentinels are fixed points.
func (s *PostgresStore) ResolveIdentity(ctx context.Context, userID int64) (int64, error) {
	if model.IsSentinel(userID) {
		return userID, nil
	}
	var user model.User
	result := s.db.WithContext(ctx).
		Select("id, role, deleted_at").
		Where("id = ?", userID).
		Limit(1).
		Find(&user)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to resolve identity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, &UnknownIdentityError{UserID: userID}
	}
	if user.Erased() {
		return model.SentinelFor(user.Role), nil
	}
	return userID, nil
}

func (s *PostgresStore) EraseAccount(ctx context.Context, userID int64, opts registrystore.EraseOptions) (*registrystore.DeletionReport, error) {
	if model.IsSentinel(userID) {
		return nil, &ValidationError{Field: "userId", Message: "cannot erase a sentinel identity"}
	}
	if opts.ActorID != userID {
		actor, err := s.requireActor(ctx, opts.ActorID)
		if err != nil {
			return nil, err
		}
		if actor.Role != model.RoleAdmin {
			return nil, &ForbiddenError{}
		}
	}

	report := &registrystore.DeletionReport{UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the identity row so two concurrent erasures serialize and the
		// second one observes deleted_at.
		var user model.User
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).
			Limit(1).
			Find(&user)
		if result.Error != nil {
			return fmt.Errorf("failed to lock user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &UnknownIdentityError{UserID: userID}
		}
		if user.Erased() {
			if opts.Strict {
				return &AlreadyErasedError{UserID: userID}
			}
			// Re-running an erasure converges: nothing left to change.
			report.SentinelID = model.SentinelFor(user.Role)
			report.ErasedAt = *user.DeletedAt
			return nil
		}

		sentinel := model.SentinelFor(user.Role)
		report.SentinelID = sentinel
		now := time.Now()
		report.ErasedAt = now

		// 1. Strip the profile. The row survives as an erasure marker so the
		// id is never reissued and ResolveIdentity keeps working.
		var reason *string
		if opts.Reason != "" {
			r := opts.Reason
			reason = &r
		}
		if err := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"name":          "",
				"provider":      nil,
				"provider_id":   nil,
				"banned":        false,
				"ban_reason":    "",
				"deleted_at":    now,
				"deleted_by":    opts.ActorID,
				"delete_reason": reason,
			}).Error; err != nil {
			return fmt.Errorf("failed to strip profile: %w", err)
		}

		// 2. Reassign messages to the sentinel. With DeleteAllData the live
		// ones are redacted and tombstoned first; messages already deleted
		// keep their original moderation metadata either way.
		if opts.DeleteAllData {
			if err := tx.Model(&model.Message{}).
				Where("sender_id = ? AND deleted_at IS NULL", userID).
				Updates(map[string]interface{}{
					"body":        "",
					"search_text": "",
					"deleted_at":  now,
					"deleted_by":  sentinel,
				}).Error; err != nil {
				return fmt.Errorf("failed to redact messages: %w", err)
			}
		}
		result = tx.Model(&model.Message{}).
			Where("sender_id = ?", userID).
			Update("sender_id", sentinel)
		if result.Error != nil {
			return fmt.Errorf("failed to reassign messages: %w", result.Error)
		}
		report.Anonymized.Messages = result.RowsAffected

		// 3. Owned planets and travels transfer to the sentinel so the rooms
		// keep working for the remaining members.
		result = tx.Model(&model.Planet{}).
			Where("owner_id = ?", userID).
			Update("owner_id", sentinel)
		if result.Error != nil {
			return fmt.Errorf("failed to reassign planets: %w", result.Error)
		}
		report.Anonymized.Planets = result.RowsAffected

		result = tx.Model(&model.Travel{}).
			Where("host_id = ?", userID).
			Update("host_id", sentinel)
		if result.Error != nil {
			return fmt.Errorf("failed to reassign travels: %w", result.Error)
		}
		report.Anonymized.Travels = result.RowsAffected

		// 4. Memberships move to the sentinel. The sentinel may already hold
		// a row from an earlier erasure, so insert-then-delete instead of a
		// plain UPDATE that would hit the composite primary key.
		count, err := reassignMembership(tx, "planet_users", "planet_id", "status, created_at", userID, sentinel)
		if err != nil {
			return err
		}
		report.Anonymized.PlanetMemberships = count

		count, err = reassignMembership(tx, "travel_users", "travel_id", "status, created_at", userID, sentinel)
		if err != nil {
			return err
		}
		report.Anonymized.TravelMemberships = count

		// 5. Upload ownership follows the messages.
		result = tx.Model(&model.FileUpload{}).
			Where("owner_id = ?", userID).
			Update("owner_id", sentinel)
		if result.Error != nil {
			return fmt.Errorf("failed to reassign file uploads: %w", result.Error)
		}
		report.Anonymized.FileUploads = result.RowsAffected

		// 6. Purely personal rows are hard-deleted.
		result = tx.Where("user_id = ?", userID).Delete(&model.Notification{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete notifications: %w", result.Error)
		}
		report.Deleted.Notifications = result.RowsAffected

		result = tx.Where("user_id = ?", userID).Delete(&model.PlanetReadMark{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete read marks: %w", result.Error)
		}
		report.Deleted.ReadMarks = result.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("account erased",
		"user", userID,
		"actor", opts.ActorID,
		"sentinel", report.SentinelID,
		"rows", report.Total())
	return report, nil
}

// reassignMembership moves composite-keyed membership rows from userID to the
// sentinel. Existing sentinel rows win on conflict; the user's rows are
// removed either way. Returns how many rows the user held.
func reassignMembership(tx *gorm.DB, table, scopeCol, carryCols string, userID, sentinel int64) (int64, error) {
	insert := fmt.Sprintf(`
		INSERT INTO %s (%s, user_id, %s)
		SELECT %s, ?, %s FROM %s WHERE user_id = ?
		ON CONFLICT DO NOTHING
	`, table, scopeCol, carryCols, scopeCol, carryCols, table)
	if err := tx.Exec(insert, sentinel, userID).Error; err != nil {
		return 0, fmt.Errorf("failed to reassign %s: %w", table, err)
	}
	result := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", table), userID)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PostgresStore) findUserRow(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	result := s.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "user", ID: fmt.Sprintf("%d", userID)}
	}
	return &user, nil
}
