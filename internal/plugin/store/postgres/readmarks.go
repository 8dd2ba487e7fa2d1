package postgres

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
	"gorm.io/gorm/clause"
)

// UnreadCount returns how many visible messages in the planet arrived after
// the user's high-water mark, serving from the cache when it is warm.
func (s *PostgresStore) UnreadCount(ctx context.Context, planetID uuid.UUID, userID int64) (int64, error) {
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return 0, err
	}
	if _, err := s.requireMember(ctx, userID, planetID); err != nil {
		return 0, err
	}

	if s.unreadCache != nil && s.unreadCache.Available() {
		cached, err := s.unreadCache.Get(ctx, planetID, userID)
		if err != nil {
			log.Warn("unread cache read failed", "planet", planetID, "user", userID, "error", err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	count, err := s.countUnread(ctx, planetID, userID)
	if err != nil {
		return 0, err
	}

	if s.unreadCache != nil && s.unreadCache.Available() {
		if err := s.unreadCache.Set(ctx, planetID, userID, count, s.cfg.UnreadCacheTTL); err != nil {
			log.Warn("unread cache write failed", "planet", planetID, "user", userID, "error", err)
		}
	}
	return count, nil
}

func (s *PostgresStore) countUnread(ctx context.Context, planetID uuid.UUID, userID int64) (int64, error) {
	// Tombstones don't count: the reader never sees their content, so a
	// moderated message should not keep a badge alive.
	var count int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM messages m
		WHERE m.planet_id = ?
		  AND m.sender_id <> ?
		  AND m.deleted_at IS NULL
		  AND m.id > COALESCE(
		      (SELECT last_read_message_id FROM planet_read_marks
		       WHERE planet_id = ? AND user_id = ?), 0)
	`, planetID, userID, planetID, userID).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

// MarkRead advances the user's high-water mark. Marks never move backwards,
// so a stale client replaying an old mark is a no-op.
func (s *PostgresStore) MarkRead(ctx context.Context, planetID uuid.UUID, userID int64, throughMessageID int64) error {
	if throughMessageID < 0 {
		return &ValidationError{Field: "messageId", Message: "must not be negative"}
	}
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return err
	}
	if _, err := s.requireMember(ctx, userID, planetID); err != nil {
		return err
	}

	mark := model.PlanetReadMark{
		PlanetID:          planetID,
		UserID:            userID,
		LastReadMessageID: throughMessageID,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "planet_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_read_message_id": clause.Expr{
				SQL: "GREATEST(planet_read_marks.last_read_message_id, EXCLUDED.last_read_message_id)",
			},
			"updated_at": clause.Expr{SQL: "NOW()"},
		}),
	}).Create(&mark).Error
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	s.invalidateUnread(ctx, planetID, userID)
	return nil
}
