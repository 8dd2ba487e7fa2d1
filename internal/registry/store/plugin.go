package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
)

// MessagePage is one page of a cursor-paginated message listing, newest
// first. NextCursor is nil on the last page.
type MessagePage struct {
	Data       []model.Message `json:"data"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

// MessageQuery holds parameters for message listing.
type MessageQuery struct {
	AfterCursor *string
	Limit       int
	Type        *model.MessageType
	SenderID    *int64
	// IncludeDeleted makes soft-deleted rows visible. Admin/audit only.
	IncludeDeleted bool
}

// CreateMessageRequest is the input for appending a message.
type CreateMessageRequest struct {
	Body      string            `json:"body"`
	Type      model.MessageType `json:"type"`
	ReplyToID *int64            `json:"replyToId,omitempty"`
	// IndexMeta is extra text folded into the derived search text, e.g. an
	// attachment filename. Never shown to readers.
	IndexMeta string `json:"indexMeta,omitempty"`
}

// SearchQuery holds parameters for message search.
type SearchQuery struct {
	PlanetID *uuid.UUID
	Query    string
	Limit    int
}

// SearchResult is one ranked search hit. Kind records which strategy matched:
// "fulltext" (tokenized tsquery) or "trigram" (substring similarity). When
// both fire for the same message the fulltext rank wins.
type SearchResult struct {
	MessageID int64     `json:"messageId"`
	PlanetID  uuid.UUID `json:"planetId"`
	Rank      float64   `json:"rank"`
	Kind      string    `json:"kind"`
	Highlight *string   `json:"highlight,omitempty"`
}

// CreateUserRequest is the input for provisioning an identity.
type CreateUserRequest struct {
	Name       string     `json:"name"`
	Provider   *string    `json:"provider,omitempty"`
	ProviderID *string    `json:"providerId,omitempty"`
	Role       model.Role `json:"role,omitempty"`
}

// EraseOptions control account erasure.
type EraseOptions struct {
	// ActorID is the identity performing the erasure (the user themselves or
	// an admin). Recorded on the erased row.
	ActorID int64
	Reason  string
	// DeleteAllData additionally redacts and soft-deletes the account's
	// message bodies instead of leaving them readable under the sentinel.
	DeleteAllData bool
	// Strict surfaces AlreadyErasedError instead of the zero-count report.
	Strict bool
}

// DeletionReport describes what one erasure run changed. It is returned to
// the caller for confirmation and logged; it is not persisted.
type DeletionReport struct {
	UserID     int64             `json:"userId"`
	SentinelID int64             `json:"sentinelId"`
	Deleted    DeletedCounts     `json:"deletedData"`
	Anonymized AnonymizedCounts  `json:"anonymizedData"`
	ErasedAt   time.Time         `json:"erasedAt"`
}

// DeletedCounts are rows physically removed: strictly personal records with
// no cross-user meaning.
type DeletedCounts struct {
	Notifications int64 `json:"notifications"`
	ReadMarks     int64 `json:"readMarks"`
}

// AnonymizedCounts are rows reassigned to a sentinel identity.
type AnonymizedCounts struct {
	Messages          int64 `json:"messages"`
	Planets           int64 `json:"planets"`
	Travels           int64 `json:"travels"`
	PlanetMemberships int64 `json:"planetMemberships"`
	TravelMemberships int64 `json:"travelMemberships"`
	FileUploads       int64 `json:"fileUploads"`
}

// Total returns the number of rows this run changed in any way.
func (r *DeletionReport) Total() int64 {
	return r.Deleted.Notifications + r.Deleted.ReadMarks +
		r.Anonymized.Messages + r.Anonymized.Planets + r.Anonymized.Travels +
		r.Anonymized.PlanetMemberships + r.Anonymized.TravelMemberships +
		r.Anonymized.FileUploads
}

// AdminPlanetQuery holds parameters for admin planet listing.
type AdminPlanetQuery struct {
	OwnerID        *int64
	IncludeDeleted bool
	OnlyDeleted    bool
	AfterCursor    *string
	Limit          int
}

// ChatStore defines the primary data access interface for the planet chat
// service. All writes to messages, identities, and memberships funnel through
// it so the soft-delete and sentinel invariants cannot be bypassed.
type ChatStore interface {
	// Identities
	CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	BanUser(ctx context.Context, actorID, userID int64, reason string) error
	UnbanUser(ctx context.Context, actorID, userID int64) error

	// ResolveIdentity returns userID unchanged when the identity exists and
	// is not erased, the appropriate sentinel id when it has been erased, and
	// UnknownIdentityError when the id never existed.
	ResolveIdentity(ctx context.Context, userID int64) (int64, error)

	// EraseAccount anonymizes an account in a single transaction.
	EraseAccount(ctx context.Context, userID int64, opts EraseOptions) (*DeletionReport, error)

	// Planets
	CreatePlanet(ctx context.Context, ownerID int64, name string) (*model.Planet, error)
	GetPlanet(ctx context.Context, actorID int64, planetID uuid.UUID) (*model.Planet, error)
	ListPlanets(ctx context.Context, actorID int64, afterCursor *string, limit int) ([]model.Planet, *string, error)
	DeletePlanet(ctx context.Context, actorID int64, planetID uuid.UUID) error

	// Memberships
	JoinPlanet(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64, status model.MembershipStatus) (*model.PlanetUser, error)
	ListPlanetMembers(ctx context.Context, actorID int64, planetID uuid.UUID, afterCursor *string, limit int) ([]model.PlanetUser, *string, error)
	UpdateMemberStatus(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64, status model.MembershipStatus) (*model.PlanetUser, error)
	LeavePlanet(ctx context.Context, actorID int64, planetID uuid.UUID, userID int64) error

	// Travels
	CreateTravel(ctx context.Context, hostID int64, title string) (*model.Travel, error)
	JoinTravel(ctx context.Context, actorID int64, travelID uuid.UUID, userID int64) (*model.TravelUser, error)

	// Messages
	AppendMessage(ctx context.Context, actorID int64, planetID uuid.UUID, req CreateMessageRequest) (*model.Message, error)
	GetMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64) (*model.Message, error)
	EditMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64, newBody string) (*model.Message, error)
	SoftDeleteMessage(ctx context.Context, actorID int64, planetID uuid.UUID, messageID int64, reason string, strict bool) error
	ListMessages(ctx context.Context, actorID int64, planetID uuid.UUID, q MessageQuery) (*MessagePage, error)

	// Search
	SearchMessages(ctx context.Context, actorID int64, q SearchQuery) ([]SearchResult, error)

	// Read tracking
	UnreadCount(ctx context.Context, planetID uuid.UUID, userID int64) (int64, error)
	MarkRead(ctx context.Context, planetID uuid.UUID, userID int64, throughMessageID int64) error

	// Search-text backfill, used by the background reindexer only.
	ListMessagesMissingSearchText(ctx context.Context, limit int) ([]model.Message, error)
	SetSearchText(ctx context.Context, messageID int64, searchText string) error

	// FanOutMessage records a notification row for every active member of the
	// planet except the sender and returns the recipient ids. Used by the
	// background task processor only.
	FanOutMessage(ctx context.Context, planetID uuid.UUID, messageID int64, senderID int64) ([]int64, error)

	// Admin
	AdminListPlanets(ctx context.Context, q AdminPlanetQuery) ([]model.Planet, *string, error)
	AdminRestorePlanet(ctx context.Context, planetID uuid.UUID) error
	AdminListMessages(ctx context.Context, planetID uuid.UUID, q MessageQuery) (*MessagePage, error)

	// Tasks
	CreateTask(ctx context.Context, taskType string, taskBody map[string]interface{}) error
	ClaimReadyTasks(ctx context.Context, limit int) ([]model.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryDelay time.Duration) error
}

// Loader creates a ChatStore from config.
type Loader func(ctx context.Context) (ChatStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
