package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/cursor"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
)

// editWindow is how long after creation a message may still be edited.
const editWindow = 24 * time.Hour

func (s *PostgresStore) AppendMessage(ctx context.Context, actorID int64, planetID uuid.UUID, req registrystore.CreateMessageRequest) (*model.Message, error) {
	if req.Type == "" {
		req.Type = model.MessageText
	}
	if !req.Type.Valid() {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown message type %q", req.Type)}
	}
	if req.Body == "" && req.Type == model.MessageText {
		return nil, &ValidationError{Field: "body", Message: "must not be empty"}
	}
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return nil, err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Banned {
		return nil, &ForbiddenError{}
	}
	if _, err := s.requireActiveMember(ctx, actor.ID, planetID); err != nil {
		return nil, err
	}
	if req.ReplyToID != nil {
		var parent model.Message
		result := s.db.WithContext(ctx).
			Where("id = ? AND planet_id = ?", *req.ReplyToID, planetID).
			Limit(1).
			Find(&parent)
		if result.Error != nil {
			return nil, result.Error
		}
		// Replying to a soft-deleted message is fine; replying to a message
		// from another planet is not.
		if result.RowsAffected == 0 {
			return nil, &NotFoundError{Resource: "message", ID: fmt.Sprintf("%d", *req.ReplyToID)}
		}
	}

	msg := model.Message{
		PlanetID:   planetID,
		SenderID:   actor.ID,
		Body:       req.Body,
		SearchText: model.DeriveSearchText(req.Body, req.IndexMeta),
		Type:       req.Type,
		Status:     model.MessageSent,
		ReplyToID:  req.ReplyToID,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	// A new message bumps everyone's unread count.
	s.invalidatePlanetUnread(ctx, planetID)
	return &msg, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64) (*model.Message, error) {
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, actorID, planetID); err != nil {
		return nil, err
	}
	msg, err := s.findMessage(ctx, planetID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted() {
		// Deleted messages read as tombstones, not 404s, so reply chains and
		// pagination stay stable.
		redactMessage(msg)
	}
	return msg, nil
}

func (s *PostgresStore) EditMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64, newBody string) (*model.Message, error) {
	if newBody == "" {
		return nil, &ValidationError{Field: "body", Message: "must not be empty"}
	}
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return nil, err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	msg, err := s.findMessage(ctx, planetID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted() {
		return nil, &AlreadyDeletedError{MessageID: messageID}
	}
	if msg.SenderID != actor.ID {
		return nil, &ForbiddenError{}
	}
	if actor.Banned {
		return nil, &ForbiddenError{}
	}
	now := time.Now()
	if now.Sub(msg.CreatedAt) > editWindow {
		return nil, &ConflictError{Message: "message is too old to edit"}
	}

	updates := map[string]interface{}{
		"body":        newBody,
		"search_text": model.DeriveSearchText(newBody),
		"edited":      true,
		"edited_at":   now,
	}
	result := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND deleted_at IS NULL", messageID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to edit message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a race with a soft delete between the read and the guarded
		// update.
		return nil, &AlreadyDeletedError{MessageID: messageID}
	}
	msg.Body = newBody
	msg.SearchText = updates["search_text"].(string)
	msg.Edited = true
	msg.EditedAt = &now
	return msg, nil
}

func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64, reason string, strict bool) error {
	planet, err := s.findPlanet(ctx, planetID)
	if err != nil {
		return err
	}
	actor, err := s.requireActor(ctx, actorID)
	if err != nil {
		return err
	}
	msg, err := s.findMessage(ctx, planetID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.ID && planet.OwnerID != actor.ID && actor.Role != model.RoleAdmin {
		return &ForbiddenError{}
	}
	if msg.Deleted() {
		if strict {
			return &AlreadyDeletedError{MessageID: messageID}
		}
		return nil
	}

	var deleteReason *string
	if reason != "" {
		deleteReason = &reason
	} else if s.cfg != nil && s.cfg.RequireJustification && actor.ID != msg.SenderID {
		return &ValidationError{Field: "reason", Message: "moderation deletes require a reason"}
	}

	result := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND deleted_at IS NULL", messageID).
		Updates(map[string]interface{}{
			"deleted_at":    time.Now(),
			"deleted_by":    actor.ID,
			"delete_reason": deleteReason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race to a concurrent delete.
		if strict {
			return &AlreadyDeletedError{MessageID: messageID}
		}
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, actorID int64, planetID uuid.UUID, q registrystore.MessageQuery) (*registrystore.MessagePage, error) {
	if _, err := s.findPlanet(ctx, planetID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, actorID, planetID); err != nil {
		return nil, err
	}
	// Tombstones are admin-only; member listings skip them.
	q.IncludeDeleted = false
	return s.listMessages(ctx, planetID, q)
}

// listMessages pages newest-first over (created_at, id) without access
// checks. Callers gate access.
func (s *PostgresStore) listMessages(ctx context.Context, planetID uuid.UUID, q registrystore.MessageQuery) (*registrystore.MessagePage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}
	if limit > s.cfg.PageSizeMax {
		limit = s.cfg.PageSizeMax
	}

	tx := s.db.WithContext(ctx).Where("planet_id = ?", planetID)
	if !q.IncludeDeleted {
		tx = tx.Where("deleted_at IS NULL")
	}
	if q.Type != nil {
		tx = tx.Where("type = ?", *q.Type)
	}
	if q.SenderID != nil {
		tx = tx.Where("sender_id = ?", *q.SenderID)
	}
	if q.AfterCursor != nil {
		c, err := cursor.Decode(*q.AfterCursor)
		if err != nil {
			return nil, err
		}
		// Row-value comparison keeps the cursor exact when two messages share
		// a created_at timestamp.
		tx = tx.Where("(created_at, id) < (?, ?)", c.CreatedAt, c.ID)
	}
	tx = tx.Order("created_at DESC, id DESC").Limit(limit + 1)

	var rows []model.Message
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	var next *string
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		c := cursor.Encode(cursor.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		next = &c
	}
	return &registrystore.MessagePage{Data: rows, NextCursor: next}, nil
}

func (s *PostgresStore) findMessage(ctx context.Context, planetID uuid.UUID, messageID int64) (*model.Message, error) {
	var msg model.Message
	result := s.db.WithContext(ctx).
		Where("id = ? AND planet_id = ?", messageID, planetID).
		Limit(1).
		Find(&msg)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "message", ID: fmt.Sprintf("%d", messageID)}
	}
	return &msg, nil
}

// redactMessage blanks the readable fields of a soft-deleted message while
// keeping its position in the timeline.
func redactMessage(m *model.Message) {
	m.Body = ""
	m.SearchText = ""
	m.ReplyToID = nil
}

// --- Search-text backfill ---

func (s *PostgresStore) ListMessagesMissingSearchText(ctx context.Context, limit int) ([]model.Message, error) {
	var rows []model.Message
	err := s.db.WithContext(ctx).
		Where("search_text = '' AND body <> '' AND deleted_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages missing search text: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) SetSearchText(ctx context.Context, messageID int64, searchText string) error {
	return s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND deleted_at IS NULL", messageID).
		Update("search_text", searchText).Error
}
