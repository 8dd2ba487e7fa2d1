package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/config"
	"github.com/planetrip/planet-chat/internal/cursor"
	"github.com/planetrip/planet-chat/internal/model"
	"github.com/planetrip/planet-chat/internal/plugin/store/postgres"
	registrymigrate "github.com/planetrip/planet-chat/internal/registry/migrate"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.ChatStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	// Run migrations
	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	// Initialize store
	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)

	return store, ctx
}

func createUser(t *testing.T, store registrystore.ChatStore, ctx context.Context, name string, role model.Role) *model.User {
	t.Helper()
	user, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: name, Role: role})
	require.NoError(t, err)
	return user
}

func createPlanetWithMembers(t *testing.T, store registrystore.ChatStore, ctx context.Context, owner *model.User, members ...*model.User) *model.Planet {
	t.Helper()
	planet, err := store.CreatePlanet(ctx, owner.ID, "Test Planet")
	require.NoError(t, err)
	for _, m := range members {
		_, err := store.JoinPlanet(ctx, m.ID, planet.ID, m.ID, model.MembershipActive)
		require.NoError(t, err)
	}
	return planet
}

func TestCreatePlanet_OwnerBecomesActiveMember(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)

	planet, err := store.CreatePlanet(ctx, owner.ID, "Jeju Trip")
	require.NoError(t, err)
	assert.Equal(t, "Jeju Trip", planet.Name)
	assert.Equal(t, owner.ID, planet.OwnerID)

	members, next, err := store.ListPlanetMembers(ctx, owner.ID, planet.ID, nil, 10)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, members, 1)
	assert.Equal(t, owner.ID, members[0].UserID)
	assert.Equal(t, model.MembershipActive, members[0].Status)
}

func TestListPlanets_CursorPagination(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)

	want := map[uuid.UUID]bool{}
	for i := 1; i <= 5; i++ {
		planet, err := store.CreatePlanet(ctx, owner.ID, fmt.Sprintf("planet %d", i))
		require.NoError(t, err)
		want[planet.ID] = true
	}

	// Walk the pages; every planet appears exactly once even when
	// neighbouring rows share a created_at.
	seen := map[uuid.UUID]bool{}
	var cur *string
	for {
		rows, next, err := store.ListPlanets(ctx, owner.ID, cur, 2)
		require.NoError(t, err)
		for _, p := range rows {
			require.False(t, seen[p.ID])
			seen[p.ID] = true
		}
		if next == nil {
			break
		}
		cur = next
	}
	assert.Equal(t, want, seen)

	// A cursor that is not a planet id is rejected, not an empty page.
	var badCursor *cursor.InvalidCursorError
	bogus := uuid.New().String()
	_, _, err := store.ListPlanets(ctx, owner.ID, &bogus, 2)
	require.ErrorAs(t, err, &badCursor)

	mangled := "planet-7"
	_, _, err = store.ListPlanets(ctx, owner.ID, &mangled, 2)
	require.ErrorAs(t, err, &badCursor)

	_, _, err = store.AdminListPlanets(ctx, registrystore.AdminPlanetQuery{AfterCursor: &bogus, Limit: 2})
	require.ErrorAs(t, err, &badCursor)
}

func TestListMessages_CursorPagination(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	var ids []int64
	for i := 1; i <= 5; i++ {
		msg, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{
			Body: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// Page 1: newest first.
	page, err := store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, ids[4], page.Data[0].ID)
	assert.Equal(t, ids[3], page.Data[1].ID)

	// Page 2 resumes exactly after the last row of page 1.
	page, err = store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{Limit: 2, AfterCursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, ids[2], page.Data[0].ID)
	assert.Equal(t, ids[1], page.Data[1].ID)

	// Final page: one row, no cursor.
	page, err = store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{Limit: 2, AfterCursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, ids[0], page.Data[0].ID)
	assert.Nil(t, page.NextCursor)
}

func TestListMessages_CursorStableUnderMutation(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	var ids []int64
	for i := 1; i <= 5; i++ {
		msg, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{
			Body: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	page, err := store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)

	// New messages land ahead of the cursor position and deletes behind it
	// drop out; neither shifts or duplicates the remaining pages.
	_, err = store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "late arrival"})
	require.NoError(t, err)
	require.NoError(t, store.SoftDeleteMessage(ctx, owner.ID, planet.ID, ids[1], "", false))

	page, err = store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{Limit: 2, AfterCursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, ids[2], page.Data[0].ID)
	assert.Equal(t, ids[0], page.Data[1].ID)
	assert.Nil(t, page.NextCursor)
}

func TestListMessages_InvalidCursor(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	bad := "not-a-cursor"
	_, err := store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{AfterCursor: &bad})
	var invalidErr *cursor.InvalidCursorError
	require.ErrorAs(t, err, &invalidErr)
}

func TestListMessages_Filters(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	other := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner, other)

	_, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "text from alice"})
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, other.ID, planet.ID, registrystore.CreateMessageRequest{Body: "photo.jpg", Type: model.MessageImage})
	require.NoError(t, err)

	imageType := model.MessageImage
	page, err := store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{Type: &imageType})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, other.ID, page.Data[0].SenderID)

	page, err = store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{SenderID: &owner.ID})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "text from alice", page.Data[0].Body)
}

func TestAppendMessage_NonMemberForbidden(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	outsider := createUser(t, store, ctx, "mallory", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	_, err := store.AppendMessage(ctx, outsider.ID, planet.ID, registrystore.CreateMessageRequest{Body: "hi"})
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestAppendMessage_EmptyTextBodyRejected(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	_, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: ""})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestAppendMessage_ReplyMustBeSamePlanet(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planetA := createPlanetWithMembers(t, store, ctx, owner)
	planetB, err := store.CreatePlanet(ctx, owner.ID, "Other Planet")
	require.NoError(t, err)

	parent, err := store.AppendMessage(ctx, owner.ID, planetA.ID, registrystore.CreateMessageRequest{Body: "parent"})
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, owner.ID, planetB.ID, registrystore.CreateMessageRequest{Body: "reply", ReplyToID: &parent.ID})
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	reply, err := store.AppendMessage(ctx, owner.ID, planetA.ID, registrystore.CreateMessageRequest{Body: "reply", ReplyToID: &parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, parent.ID, *reply.ReplyToID)
}

func TestSoftDeleteMessage_TombstoneSemantics(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	reader := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner, reader)

	kept, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "kept"})
	require.NoError(t, err)
	doomed, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "doomed"})
	require.NoError(t, err)

	require.NoError(t, store.SoftDeleteMessage(ctx, owner.ID, planet.ID, doomed.ID, "", false))

	// Fetch by id reads as a tombstone, not a 404.
	got, err := store.GetMessage(ctx, reader.ID, planet.ID, doomed.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Empty(t, got.Body)
	assert.Nil(t, got.ReplyToID)

	// Member listings skip tombstones.
	page, err := store.ListMessages(ctx, reader.ID, planet.ID, registrystore.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, kept.ID, page.Data[0].ID)

	// Re-delete is an idempotent no-op unless strict.
	require.NoError(t, store.SoftDeleteMessage(ctx, owner.ID, planet.ID, doomed.ID, "", false))
	err = store.SoftDeleteMessage(ctx, owner.ID, planet.ID, doomed.ID, "", true)
	var alreadyDeleted *registrystore.AlreadyDeletedError
	require.ErrorAs(t, err, &alreadyDeleted)
}

func TestSoftDeleteMessage_OnlySenderOwnerOrAdmin(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	sender := createUser(t, store, ctx, "bob", model.RoleUser)
	bystander := createUser(t, store, ctx, "carol", model.RoleUser)
	admin := createUser(t, store, ctx, "dave", model.RoleAdmin)
	planet := createPlanetWithMembers(t, store, ctx, owner, sender, bystander)

	msg, err := store.AppendMessage(ctx, sender.ID, planet.ID, registrystore.CreateMessageRequest{Body: "hello"})
	require.NoError(t, err)

	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, store.SoftDeleteMessage(ctx, bystander.ID, planet.ID, msg.ID, "", false), &forbidden)

	require.NoError(t, store.SoftDeleteMessage(ctx, admin.ID, planet.ID, msg.ID, "spam", false))
}

func TestEditMessage_Rules(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	other := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner, other)

	msg, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "first draft"})
	require.NoError(t, err)

	// Only the sender can edit.
	var forbidden *registrystore.ForbiddenError
	_, err = store.EditMessage(ctx, other.ID, planet.ID, msg.ID, "hijacked")
	require.ErrorAs(t, err, &forbidden)

	edited, err := store.EditMessage(ctx, owner.ID, planet.ID, msg.ID, "second draft")
	require.NoError(t, err)
	assert.Equal(t, "second draft", edited.Body)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	// Tombstones are immutable.
	require.NoError(t, store.SoftDeleteMessage(ctx, owner.ID, planet.ID, msg.ID, "", false))
	_, err = store.EditMessage(ctx, owner.ID, planet.ID, msg.ID, "too late")
	var alreadyDeleted *registrystore.AlreadyDeletedError
	require.ErrorAs(t, err, &alreadyDeleted)

	// And the row really was left alone: still a tombstone, no edit stamp.
	tomb, err := store.GetMessage(ctx, owner.ID, planet.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, tomb.Deleted())
	assert.Empty(t, tomb.Body)
}

func TestEraseAccount_ReassignsToSentinel(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	doomed := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner, doomed)

	for i := 0; i < 10; i++ {
		_, err := store.AppendMessage(ctx, doomed.ID, planet.ID, registrystore.CreateMessageRequest{
			Body: fmt.Sprintf("bob says %d", i),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkRead(ctx, planet.ID, doomed.ID, 5))

	report, err := store.EraseAccount(ctx, doomed.ID, registrystore.EraseOptions{ActorID: doomed.ID, Reason: "gdpr"})
	require.NoError(t, err)
	assert.Equal(t, doomed.ID, report.UserID)
	assert.Equal(t, model.SentinelUserID, report.SentinelID)
	assert.Equal(t, int64(10), report.Anonymized.Messages)
	assert.Equal(t, int64(1), report.Anonymized.PlanetMemberships)
	assert.Equal(t, int64(1), report.Deleted.ReadMarks)

	// The account is gone from the outside, but resolution still works.
	_, err = store.GetUser(ctx, doomed.ID)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
	resolved, err := store.ResolveIdentity(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SentinelUserID, resolved)

	// Messages stay readable under the sentinel identity.
	page, err := store.ListMessages(ctx, owner.ID, planet.ID, registrystore.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 10)
	for _, m := range page.Data {
		assert.Equal(t, model.SentinelUserID, m.SenderID)
		assert.NotEmpty(t, m.Body)
	}

	// Re-running converges: nothing left to change.
	again, err := store.EraseAccount(ctx, doomed.ID, registrystore.EraseOptions{ActorID: doomed.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Total())
	assert.Equal(t, model.SentinelUserID, again.SentinelID)

	// Strict mode surfaces the repeat instead.
	_, err = store.EraseAccount(ctx, doomed.ID, registrystore.EraseOptions{ActorID: doomed.ID, Strict: true})
	var alreadyErased *registrystore.AlreadyErasedError
	require.ErrorAs(t, err, &alreadyErased)
}

func TestTravels_CreateAndJoin(t *testing.T) {
	store, ctx := setupTestStore(t)
	host := createUser(t, store, ctx, "henry", model.RoleHost)
	guest := createUser(t, store, ctx, "gia", model.RoleUser)

	travel, err := store.CreateTravel(ctx, host.ID, "Winter in Jeju")
	require.NoError(t, err)

	member, err := store.JoinTravel(ctx, guest.ID, travel.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipActive, member.Status)

	_, err = store.JoinTravel(ctx, guest.ID, travel.ID, guest.ID)
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestEraseAccount_DeleteAllDataRedactsBodies(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	doomed := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner, doomed)

	msg, err := store.AppendMessage(ctx, doomed.ID, planet.ID, registrystore.CreateMessageRequest{Body: "private"})
	require.NoError(t, err)

	// One message was moderated before the erasure; its audit trail must
	// survive the redaction sweep.
	moderated, err := store.AppendMessage(ctx, doomed.ID, planet.ID, registrystore.CreateMessageRequest{Body: "rude"})
	require.NoError(t, err)
	require.NoError(t, store.SoftDeleteMessage(ctx, owner.ID, planet.ID, moderated.ID, "spam", false))

	report, err := store.EraseAccount(ctx, doomed.ID, registrystore.EraseOptions{ActorID: doomed.ID, DeleteAllData: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Anonymized.Messages)

	got, err := store.GetMessage(ctx, owner.ID, planet.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Empty(t, got.Body)

	kept, err := store.GetMessage(ctx, owner.ID, planet.ID, moderated.ID)
	require.NoError(t, err)
	assert.True(t, kept.Deleted())
	require.NotNil(t, kept.DeletedBy)
	assert.Equal(t, owner.ID, *kept.DeletedBy)
	require.NotNil(t, kept.DeleteReason)
	assert.Equal(t, "spam", *kept.DeleteReason)
}

func TestEraseAccount_HostMapsToAdminSentinel(t *testing.T) {
	store, ctx := setupTestStore(t)
	host := createUser(t, store, ctx, "henry", model.RoleHost)
	_, err := store.CreateTravel(ctx, host.ID, "Winter in Jeju")
	require.NoError(t, err)
	createPlanetWithMembers(t, store, ctx, host)

	report, err := store.EraseAccount(ctx, host.ID, registrystore.EraseOptions{ActorID: host.ID})
	require.NoError(t, err)
	assert.Equal(t, model.SentinelAdminID, report.SentinelID)
	assert.Equal(t, int64(1), report.Anonymized.Travels)
	assert.Equal(t, int64(1), report.Anonymized.Planets)
	assert.Equal(t, int64(1), report.Anonymized.TravelMemberships)
	assert.Equal(t, int64(1), report.Anonymized.PlanetMemberships)
}

func TestEraseAccount_OnlySelfOrAdmin(t *testing.T) {
	store, ctx := setupTestStore(t)
	victim := createUser(t, store, ctx, "bob", model.RoleUser)
	stranger := createUser(t, store, ctx, "mallory", model.RoleUser)
	admin := createUser(t, store, ctx, "root", model.RoleAdmin)

	_, err := store.EraseAccount(ctx, victim.ID, registrystore.EraseOptions{ActorID: stranger.ID})
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = store.EraseAccount(ctx, victim.ID, registrystore.EraseOptions{ActorID: admin.ID, Reason: "requested"})
	require.NoError(t, err)
}

func TestResolveIdentity(t *testing.T) {
	store, ctx := setupTestStore(t)
	user := createUser(t, store, ctx, "alice", model.RoleUser)

	// Live accounts resolve to themselves.
	resolved, err := store.ResolveIdentity(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved)

	// Sentinels are fixed points.
	resolved, err = store.ResolveIdentity(ctx, model.SentinelUserID)
	require.NoError(t, err)
	assert.Equal(t, model.SentinelUserID, resolved)

	// Unknown ids do not resolve at all.
	_, err = store.ResolveIdentity(ctx, 999999)
	var unknown *registrystore.UnknownIdentityError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, int64(999999), unknown.UserID)
}

func TestSearchMessages_FulltextAndTrigram(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	jeju, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "Jeju island trip planning"})
	require.NoError(t, err)
	booking, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "flight booking confirmed"})
	require.NoError(t, err)

	// Tokenized prefix query.
	results, err := store.SearchMessages(ctx, owner.ID, registrystore.SearchQuery{PlanetID: &planet.ID, Query: "jeju tri"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, jeju.ID, results[0].MessageID)
	assert.Equal(t, "fulltext", results[0].Kind)
	require.NotNil(t, results[0].Highlight)

	// Mid-word substring falls through to the trigram strategy.
	results, err = store.SearchMessages(ctx, owner.ID, registrystore.SearchQuery{PlanetID: &planet.ID, Query: "ooking"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, booking.ID, results[0].MessageID)
	assert.Equal(t, "trigram", results[0].Kind)

	// Blank queries return nothing rather than everything.
	results, err = store.SearchMessages(ctx, owner.ID, registrystore.SearchQuery{PlanetID: &planet.ID, Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Tombstones never match.
	require.NoError(t, store.SoftDeleteMessage(ctx, owner.ID, planet.ID, jeju.ID, "", false))
	results, err = store.SearchMessages(ctx, owner.ID, registrystore.SearchQuery{PlanetID: &planet.ID, Query: "jeju"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchMessages_ScopedToMembership(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	outsider := createUser(t, store, ctx, "mallory", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	_, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "secret itinerary"})
	require.NoError(t, err)

	// Planet-scoped search by a non-member is forbidden outright.
	_, err = store.SearchMessages(ctx, outsider.ID, registrystore.SearchQuery{PlanetID: &planet.ID, Query: "secret"})
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	// Global search silently excludes planets the actor is not in.
	results, err := store.SearchMessages(ctx, outsider.ID, registrystore.SearchQuery{Query: "secret"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUnreadCount_HighWaterMark(t *testing.T) {
	store, ctx := setupTestStore(t)
	sender := createUser(t, store, ctx, "alice", model.RoleUser)
	reader := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, sender, reader)

	var ids []int64
	for i := 0; i < 3; i++ {
		msg, err := store.AppendMessage(ctx, sender.ID, planet.ID, registrystore.CreateMessageRequest{Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// All three are unread for the reader; the sender's own messages never
	// count against them.
	count, err := store.UnreadCount(ctx, planet.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	count, err = store.UnreadCount(ctx, planet.ID, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, store.MarkRead(ctx, planet.ID, reader.ID, ids[1]))
	count, err = store.UnreadCount(ctx, planet.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Marks never move backwards.
	require.NoError(t, store.MarkRead(ctx, planet.ID, reader.ID, ids[0]))
	count, err = store.UnreadCount(ctx, planet.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.MarkRead(ctx, planet.ID, reader.ID, ids[2]))
	count, err = store.UnreadCount(ctx, planet.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUnreadCount_ExcludesTombstones(t *testing.T) {
	store, ctx := setupTestStore(t)
	sender := createUser(t, store, ctx, "alice", model.RoleUser)
	reader := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, sender, reader)

	var ids []int64
	for i := 0; i < 3; i++ {
		msg, err := store.AppendMessage(ctx, sender.ID, planet.ID, registrystore.CreateMessageRequest{Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// Moderating an unread message drops it from the count.
	require.NoError(t, store.SoftDeleteMessage(ctx, sender.ID, planet.ID, ids[1], "moderated", false))
	count, err := store.UnreadCount(ctx, planet.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Deleting everything above the mark clears the badge entirely.
	require.NoError(t, store.SoftDeleteMessage(ctx, sender.ID, planet.ID, ids[0], "", false))
	require.NoError(t, store.SoftDeleteMessage(ctx, sender.ID, planet.ID, ids[2], "", false))
	count, err = store.UnreadCount(ctx, planet.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMarkRead_Validation(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	outsider := createUser(t, store, ctx, "mallory", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	var validation *registrystore.ValidationError
	require.ErrorAs(t, store.MarkRead(ctx, planet.ID, owner.ID, -1), &validation)

	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, store.MarkRead(ctx, planet.ID, outsider.ID, 1), &forbidden)
}

func TestBanUser_BlocksWrites(t *testing.T) {
	store, ctx := setupTestStore(t)
	admin := createUser(t, store, ctx, "root", model.RoleAdmin)
	user := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, admin, user)

	require.NoError(t, store.BanUser(ctx, admin.ID, user.ID, "spam"))

	_, err := store.AppendMessage(ctx, user.ID, planet.ID, registrystore.CreateMessageRequest{Body: "still here"})
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	require.NoError(t, store.UnbanUser(ctx, admin.ID, user.ID))
	_, err = store.AppendMessage(ctx, user.ID, planet.ID, registrystore.CreateMessageRequest{Body: "back again"})
	require.NoError(t, err)

	// Only admins can ban.
	err = store.BanUser(ctx, user.ID, admin.ID, "revenge")
	require.ErrorAs(t, err, &forbidden)
}

func TestJoinPlanet_InviteFlow(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	invitee := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	// An invite by the owner lands as status=invited regardless of what was
	// requested.
	membership, err := store.JoinPlanet(ctx, owner.ID, planet.ID, invitee.ID, model.MembershipActive)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipInvited, membership.Status)

	// Invited members can read but not post.
	_, err = store.ListMessages(ctx, invitee.ID, planet.ID, registrystore.MessageQuery{})
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, invitee.ID, planet.ID, registrystore.CreateMessageRequest{Body: "early"})
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	// Accepting the invite unlocks posting.
	membership, err = store.UpdateMemberStatus(ctx, invitee.ID, planet.ID, invitee.ID, model.MembershipActive)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipActive, membership.Status)
	_, err = store.AppendMessage(ctx, invitee.ID, planet.ID, registrystore.CreateMessageRequest{Body: "hello"})
	require.NoError(t, err)

	// Joining twice conflicts.
	_, err = store.JoinPlanet(ctx, invitee.ID, planet.ID, invitee.ID, model.MembershipActive)
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestLeavePlanet_OwnerCannotLeave(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	member := createUser(t, store, ctx, "bob", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner, member)

	var conflict *registrystore.ConflictError
	require.ErrorAs(t, store.LeavePlanet(ctx, owner.ID, planet.ID, owner.ID), &conflict)

	require.NoError(t, store.LeavePlanet(ctx, member.ID, planet.ID, member.ID))
	_, err := store.ListMessages(ctx, member.ID, planet.ID, registrystore.MessageQuery{})
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestDeletePlanet_AndAdminRestore(t *testing.T) {
	store, ctx := setupTestStore(t)
	owner := createUser(t, store, ctx, "alice", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, owner)

	msg, err := store.AppendMessage(ctx, owner.ID, planet.ID, registrystore.CreateMessageRequest{Body: "soon gone"})
	require.NoError(t, err)
	require.NoError(t, store.DeletePlanet(ctx, owner.ID, planet.ID))

	_, err = store.GetPlanet(ctx, owner.ID, planet.ID)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	// Deleted planets are only visible through the admin listing.
	rows, _, err := store.AdminListPlanets(ctx, registrystore.AdminPlanetQuery{OnlyDeleted: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, planet.ID, rows[0].ID)

	// Restore brings the planet back but not its message tombstones.
	require.NoError(t, store.AdminRestorePlanet(ctx, planet.ID))
	page, err := store.AdminListMessages(ctx, planet.ID, registrystore.MessageQuery{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, msg.ID, page.Data[0].ID)
	assert.True(t, page.Data[0].Deleted())

	// Restoring a live planet is a conflict, not a no-op.
	err = store.AdminRestorePlanet(ctx, planet.ID)
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestFanOutMessage_SkipsSenderAndInactive(t *testing.T) {
	store, ctx := setupTestStore(t)
	sender := createUser(t, store, ctx, "alice", model.RoleUser)
	active := createUser(t, store, ctx, "bob", model.RoleUser)
	invited := createUser(t, store, ctx, "carol", model.RoleUser)
	planet := createPlanetWithMembers(t, store, ctx, sender, active)
	_, err := store.JoinPlanet(ctx, sender.ID, planet.ID, invited.ID, model.MembershipActive)
	require.NoError(t, err)

	msg, err := store.AppendMessage(ctx, sender.ID, planet.ID, registrystore.CreateMessageRequest{Body: "notify me"})
	require.NoError(t, err)

	recipients, err := store.FanOutMessage(ctx, planet.ID, msg.ID, sender.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{active.ID}, recipients)
}

func TestTasks_SingletonClaimAndRetry(t *testing.T) {
	store, ctx := setupTestStore(t)

	body := map[string]interface{}{"taskName": "nightly_sweep", "planetId": uuid.New().String()}
	require.NoError(t, store.CreateTask(ctx, "notification_fanout", body))
	// A second enqueue of the same named task is an idempotent no-op.
	require.NoError(t, store.CreateTask(ctx, "notification_fanout", body))

	tasks, err := store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "notification_fanout", tasks[0].TaskType)

	// Claiming pushes retry_at forward, so an immediate re-claim finds nothing.
	again, err := store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, store.FailTask(ctx, tasks[0].ID, "boom", 0))
	retried, err := store.ClaimReadyTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, 1, retried[0].RetryCount)
	require.NotNil(t, retried[0].LastError)
	assert.Equal(t, "boom", *retried[0].LastError)

	require.NoError(t, store.DeleteTask(ctx, tasks[0].ID))
}

func TestCreateUser_Validation(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Name: ""})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "x", Role: "galactic-emperor"})
	require.ErrorAs(t, err, &validation)

	provider := "oidc"
	providerID := "sub-123"
	_, err = store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "alice", Provider: &provider, ProviderID: &providerID})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, registrystore.CreateUserRequest{Name: "alice2", Provider: &provider, ProviderID: &providerID})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestSentinels_CannotActOrBeErased(t *testing.T) {
	store, ctx := setupTestStore(t)
	admin := createUser(t, store, ctx, "root", model.RoleAdmin)

	// The sentinel rows exist and are fetchable.
	sentinel, err := store.GetUser(ctx, model.SentinelUserID)
	require.NoError(t, err)
	assert.Equal(t, model.SentinelUserID, sentinel.ID)

	_, err = store.CreatePlanet(ctx, model.SentinelUserID, "Ghost Planet")
	var forbidden *registrystore.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = store.EraseAccount(ctx, model.SentinelAdminID, registrystore.EraseOptions{ActorID: admin.ID})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)
}
