package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	registrynotify "github.com/planetrip/planet-chat/internal/registry/notify"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
)

// TaskProcessor polls for ready tasks and executes them. It processes
// notification_fanout tasks by recording a notification per planet member and
// handing each one to the configured notifier.
type TaskProcessor struct {
	store      registrystore.ChatStore
	notifier   registrynotify.Notifier
	interval   time.Duration
	retryDelay time.Duration
	batchSize  int
}

// NewTaskProcessor creates a new background task processor.
func NewTaskProcessor(store registrystore.ChatStore, notifier registrynotify.Notifier) *TaskProcessor {
	return &TaskProcessor{
		store:      store,
		notifier:   notifier,
		interval:   1 * time.Minute,
		retryDelay: 10 * time.Minute,
		batchSize:  100,
	}
}

// Start begins the periodic task processing loop. Returns when ctx is cancelled.
func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *TaskProcessor) processBatch(ctx context.Context) {
	tasks, err := p.store.ClaimReadyTasks(ctx, p.batchSize)
	if err != nil {
		log.Error("TaskProcessor: claim tasks failed", "err", err)
		return
	}
	for _, task := range tasks {
		if err := p.executeTask(ctx, task.TaskType, task.TaskBody); err != nil {
			log.Error("TaskProcessor: task failed", "taskId", task.ID, "type", task.TaskType, "err", err)
			if fErr := p.store.FailTask(ctx, task.ID, err.Error(), p.retryDelay); fErr != nil {
				log.Error("TaskProcessor: fail task record failed", "taskId", task.ID, "err", fErr)
			}
		} else {
			if dErr := p.store.DeleteTask(ctx, task.ID); dErr != nil {
				log.Error("TaskProcessor: delete task failed", "taskId", task.ID, "err", dErr)
			}
		}
	}
}

func (p *TaskProcessor) executeTask(ctx context.Context, taskType string, body map[string]any) error {
	switch taskType {
	case "notification_fanout":
		return p.executeNotificationFanout(ctx, body)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (p *TaskProcessor) executeNotificationFanout(ctx context.Context, body map[string]any) error {
	planetIDStr, ok := body["planetId"].(string)
	if !ok {
		return fmt.Errorf("missing or invalid planetId in task body")
	}
	planetID, err := uuid.Parse(planetIDStr)
	if err != nil {
		return fmt.Errorf("invalid planetId %q: %w", planetIDStr, err)
	}
	messageID, err := int64Field(body, "messageId")
	if err != nil {
		return err
	}
	senderID, err := int64Field(body, "senderId")
	if err != nil {
		return err
	}

	recipients, err := p.store.FanOutMessage(ctx, planetID, messageID, senderID)
	if err != nil {
		return err
	}
	if p.notifier == nil {
		return nil
	}
	for _, userID := range recipients {
		ev := registrynotify.Event{
			Kind:      "message",
			PlanetID:  planetID,
			UserID:    userID,
			MessageID: messageID,
			Payload:   map[string]interface{}{"senderId": senderID},
		}
		if err := p.notifier.Notify(ctx, ev); err != nil {
			// Delivery is best-effort; the notification row is already stored.
			log.Warn("TaskProcessor: notify failed", "user", userID, "message", messageID, "err", err)
		}
	}
	return nil
}

// int64Field reads a numeric task-body field. JSONB round-trips numbers as
// float64, but freshly enqueued tasks may still carry the original int64.
func int64Field(body map[string]any, key string) (int64, error) {
	switch v := body[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("missing or invalid %s in task body", key)
	}
}
