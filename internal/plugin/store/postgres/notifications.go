package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
)

// FanOutMessage writes a notification row for every active member of the
// planet except the sender. It is called from the background task processor,
// not the request path, so a retried task may observe members that joined
// after the message was sent; that is acceptable for best-effort delivery.
func (s *PostgresStore) FanOutMessage(ctx context.Context, planetID uuid.UUID, messageID int64, senderID int64) ([]int64, error) {
	var recipients []int64
	err := s.db.WithContext(ctx).
		Model(&model.PlanetUser{}).
		Where("planet_id = ? AND user_id <> ? AND status = ?", planetID, senderID, model.MembershipActive).
		Order("user_id ASC").
		Pluck("user_id", &recipients).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fan-out recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	rows := make([]model.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, model.Notification{
			ID:     uuid.New(),
			UserID: userID,
			Kind:   "message",
			Payload: map[string]interface{}{
				"planetId":  planetID.String(),
				"messageId": messageID,
				"senderId":  senderID,
			},
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return nil, fmt.Errorf("failed to create notifications: %w", err)
	}
	return recipients, nil
}
