package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
	"github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
)

// Wrap returns a ChatStore that records StoreLatency for every operation.
func Wrap(inner store.ChatStore) store.ChatStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ChatStore
}

func observe(op string, start time.Time) {
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateUser(ctx context.Context, req store.CreateUserRequest) (*model.User, error) {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, req)
}

func (m *metricsStore) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) BanUser(ctx context.Context, actorID, userID int64, reason string) error {
	defer observe("ban_user", time.Now())
	return m.inner.BanUser(ctx, actorID, userID, reason)
}

func (m *metricsStore) UnbanUser(ctx context.Context, actorID, userID int64) error {
	defer observe("unban_user", time.Now())
	return m.inner.UnbanUser(ctx, actorID, userID)
}

func (m *metricsStore) ResolveIdentity(ctx context.Context, userID int64) (int64, error) {
	defer observe("resolve_identity", time.Now())
	return m.inner.ResolveIdentity(ctx, userID)
}

func (m *metricsStore) EraseAccount(ctx context.Context, userID int64, opts store.EraseOptions) (*store.DeletionReport, error) {
	defer observe("erase_account", time.Now())
	return m.inner.EraseAccount(ctx, userID, opts)
}

func (m *metricsStore) CreatePlanet(ctx context.Context, ownerID int64, name string) (*model.Planet, error) {
	defer observe("create_planet", time.Now())
	return m.inner.CreatePlanet(ctx, ownerID, name)
}

func (m *metricsStore) GetPlanet(ctx context.Context, actorID int64, planetID uuid.UUID) (*model.Planet, error) {
	defer observe("get_planet", time.Now())
	return m.inner.GetPlanet(ctx, actorID, planetID)
}

func (m *metricsStore) ListPlanets(ctx context.Context, actorID int64, afterCursor *string, limit int) ([]model.Planet, *string, error) {
	defer observe("list_planets", time.Now())
	return m.inner.ListPlanets(ctx, actorID, afterCursor, limit)
}

func (m *metricsStore) DeletePlanet(ctx context.Context, actorID int64, planetID uuid.UUID) error {
	defer observe("delete_planet", time.Now())
	return m.inner.DeletePlanet(ctx, actorID, planetID)
}

func (m *metricsStore) JoinPlanet(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64, status model.MembershipStatus) (*model.PlanetUser, error) {
	defer observe("join_planet", time.Now())
	return m.inner.JoinPlanet(ctx, actorID, planetID, userID, status)
}

func (m *metricsStore) ListPlanetMembers(ctx context.Context, actorID int64, planetID uuid.UUID, afterCursor *string, limit int) ([]model.PlanetUser, *string, error) {
	defer observe("list_planet_members", time.Now())
	return m.inner.ListPlanetMembers(ctx, actorID, planetID, afterCursor, limit)
}

func (m *metricsStore) UpdateMemberStatus(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64, status model.MembershipStatus) (*model.PlanetUser, error) {
	defer observe("update_member_status", time.Now())
	return m.inner.UpdateMemberStatus(ctx, actorID, planetID, userID, status)
}

func (m *metricsStore) LeavePlanet(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64) error {
	defer observe("leave_planet", time.Now())
	return m.inner.LeavePlanet(ctx, actorID, planetID, userID)
}

func (m *metricsStore) CreateTravel(ctx context.Context, hostID int64, title string) (*model.Travel, error) {
	defer observe("create_travel", time.Now())
	return m.inner.CreateTravel(ctx, hostID, title)
}

func (m *metricsStore) JoinTravel(ctx context.Context, actorID int64, travelID uuid.UUID, userID int64) (*model.TravelUser, error) {
	defer observe("join_travel", time.Now())
	return m.inner.JoinTravel(ctx, actorID, travelID, userID)
}

func (m *metricsStore) AppendMessage(ctx context.Context, actorID int64, planetID uuid.UUID, req store.CreateMessageRequest) (*model.Message, error) {
	defer observe("append_message", time.Now())
	return m.inner.AppendMessage(ctx, actorID, planetID, req)
}

func (m *metricsStore) GetMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, actorID, planetID, messageID)
}

func (m *metricsStore) EditMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64, newBody string) (*model.Message, error) {
	defer observe("edit_message", time.Now())
	return m.inner.EditMessage(ctx, actorID, planetID, messageID, newBody)
}

func (m *metricsStore) SoftDeleteMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64, reason string, strict bool) error {
	defer observe("soft_delete_message", time.Now())
	return m.inner.SoftDeleteMessage(ctx, actorID, planetID, messageID, reason, strict)
}

func (m *metricsStore) ListMessages(ctx context.Context, actorID int64, planetID uuid.UUID, q store.MessageQuery) (*store.MessagePage, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, actorID, planetID, q)
}

func (m *metricsStore) SearchMessages(ctx context.Context, actorID int64, q store.SearchQuery) ([]store.SearchResult, error) {
	defer observe("search_messages", time.Now())
	return m.inner.SearchMessages(ctx, actorID, q)
}

func (m *metricsStore) UnreadCount(ctx context.Context, planetID uuid.UUID, userID int64) (int64, error) {
	defer observe("unread_count", time.Now())
	return m.inner.UnreadCount(ctx, planetID, userID)
}

func (m *metricsStore) MarkRead(ctx context.Context, planetID uuid.UUID, userID int64, throughMessageID int64) error {
	defer observe("mark_read", time.Now())
	return m.inner.MarkRead(ctx, planetID, userID, throughMessageID)
}

func (m *metricsStore) ListMessagesMissingSearchText(ctx context.Context, limit int) ([]model.Message, error) {
	defer observe("list_messages_missing_search_text", time.Now())
	return m.inner.ListMessagesMissingSearchText(ctx, limit)
}

func (m *metricsStore) SetSearchText(ctx context.Context, messageID int64, searchText string) error {
	defer observe("set_search_text", time.Now())
	return m.inner.SetSearchText(ctx, messageID, searchText)
}

func (m *metricsStore) FanOutMessage(ctx context.Context, planetID uuid.UUID, messageID int64, senderID int64) ([]int64, error) {
	defer observe("fan_out_message", time.Now())
	return m.inner.FanOutMessage(ctx, planetID, messageID, senderID)
}

func (m *metricsStore) AdminListPlanets(ctx context.Context, q store.AdminPlanetQuery) ([]model.Planet, *string, error) {
	defer observe("admin_list_planets", time.Now())
	return m.inner.AdminListPlanets(ctx, q)
}

func (m *metricsStore) AdminRestorePlanet(ctx context.Context, planetID uuid.UUID) error {
	defer observe("admin_restore_planet", time.Now())
	return m.inner.AdminRestorePlanet(ctx, planetID)
}

func (m *metricsStore) AdminListMessages(ctx context.Context, planetID uuid.UUID, q store.MessageQuery) (*store.MessagePage, error) {
	defer observe("admin_list_messages", time.Now())
	return m.inner.AdminListMessages(ctx, planetID, q)
}

func (m *metricsStore) CreateTask(ctx context.Context, taskType string, taskBody map[string]interface{}) error {
	defer observe("create_task", time.Now())
	return m.inner.CreateTask(ctx, taskType, taskBody)
}

func (m *metricsStore) ClaimReadyTasks(ctx context.Context, limit int) ([]model.Task, error) {
	defer observe("claim_ready_tasks", time.Now())
	return m.inner.ClaimReadyTasks(ctx, limit)
}

func (m *metricsStore) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	defer observe("delete_task", time.Now())
	return m.inner.DeleteTask(ctx, taskID)
}

func (m *metricsStore) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error {
	defer observe("fail_task", time.Now())
	return m.inner.FailTask(ctx, taskID, errMsg, retryDelay)
}

var _ store.ChatStore = (*metricsStore)(nil)
