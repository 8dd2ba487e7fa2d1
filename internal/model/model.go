package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the platform-level role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// Sentinel identity IDs. These are reserved, provisioned once at migration
// time, and sit outside the id sequence range so they can never collide with
// generated ids. Historical rows are reassigned to them when an account is
// erased; the sentinel rows themselves are never erasable.
const (
	SentinelUserID  int64 = -1
	SentinelAdminID int64 = -2
)

// IsSentinel reports whether id is one of the reserved placeholder identities.
func IsSentinel(id int64) bool {
	return id == SentinelUserID || id == SentinelAdminID
}

// SentinelFor returns the placeholder identity appropriate for a user of the
// given role. Hosts and admins map to the admin sentinel so erased organizers
// remain distinguishable from erased ordinary members in historic data.
func SentinelFor(role Role) int64 {
	switch role {
	case RoleHost, RoleAdmin:
		return SentinelAdminID
	default:
		return SentinelUserID
	}
}

// User is an identity record. Erasure never removes the row; it redacts the
// personal fields and sets DeletedAt so foreign keys elsewhere stay valid.
type User struct {
	ID           int64      `json:"id"                     gorm:"primaryKey"`
	Name         string     `json:"name"                   gorm:"not null"`
	Provider     *string    `json:"provider,omitempty"`
	ProviderID   *string    `json:"providerId,omitempty"`
	Role         Role       `json:"role"                   gorm:"not null;default:'user'"`
	Banned       bool       `json:"banned"                 gorm:"not null;default:false"`
	BanReason    *string    `json:"banReason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"              gorm:"not null;default:now()"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
	DeletedBy    *int64     `json:"-"`
	DeleteReason *string    `json:"-"`
}

func (User) TableName() string { return "users" }

// Erased reports whether this identity has been anonymized.
func (u User) Erased() bool { return u.DeletedAt != nil }

// Planet is a chat room grouping messages and memberships.
type Planet struct {
	ID        uuid.UUID  `json:"id"        gorm:"primaryKey;type:uuid"`
	Name      string     `json:"name"      gorm:"not null"`
	OwnerID   int64      `json:"ownerId"   gorm:"not null"`
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;default:now()"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (Planet) TableName() string { return "planets" }

// MembershipStatus is the per-membership state. Bans are identity-level
// (User.Banned), not membership-level, so there is no banned status here.
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipInvited MembershipStatus = "invited"
	MembershipMuted   MembershipStatus = "muted"
)

// Valid reports whether s is a known membership status.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipInvited, MembershipMuted:
		return true
	}
	return false
}

// PlanetUser links an identity to a planet. The user reference is always
// valid: either a real user or a sentinel, never a dangling id.
type PlanetUser struct {
	PlanetID  uuid.UUID        `json:"-"         gorm:"primaryKey;type:uuid"`
	UserID    int64            `json:"userId"    gorm:"primaryKey"`
	Status    MembershipStatus `json:"status"    gorm:"not null;default:'active'"`
	CreatedAt time.Time        `json:"createdAt" gorm:"not null;default:now()"`
}

func (PlanetUser) TableName() string { return "planet_users" }

// Travel is a trip group. Its chat is a planet; the travel itself only holds
// trip-level membership, which the anonymizer must also reassign.
type Travel struct {
	ID        uuid.UUID  `json:"id"        gorm:"primaryKey;type:uuid"`
	Title     string     `json:"title"     gorm:"not null"`
	HostID    int64      `json:"hostId"    gorm:"not null"`
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;default:now()"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (Travel) TableName() string { return "travels" }

// TravelUser links an identity to a travel.
type TravelUser struct {
	TravelID  uuid.UUID        `json:"-"         gorm:"primaryKey;type:uuid"`
	UserID    int64            `json:"userId"    gorm:"primaryKey"`
	Status    MembershipStatus `json:"status"    gorm:"not null;default:'active'"`
	CreatedAt time.Time        `json:"createdAt" gorm:"not null;default:now()"`
}

func (TravelUser) TableName() string { return "travel_users" }

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageFile, MessageSystem:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Message is a single chat message. SearchText is derived from the body and
// regenerated synchronously on every mutation so the search indexes are never
// stale relative to the store. A non-nil DeletedAt excludes the row from all
// default listings and search while keeping it fetchable by id for audit and
// anonymization.
type Message struct {
	ID           int64         `json:"id"                    gorm:"primaryKey"`
	PlanetID     uuid.UUID     `json:"planetId"              gorm:"not null;type:uuid"`
	SenderID     int64         `json:"senderId"              gorm:"not null"`
	Body         string        `json:"body"                  gorm:"not null"`
	SearchText   string        `json:"-"                     gorm:"not null"`
	Type         MessageType   `json:"type"                  gorm:"not null;default:'text'"`
	Status       MessageStatus `json:"status"                gorm:"not null;default:'sent'"`
	ReplyToID    *int64        `json:"replyToId,omitempty"`
	Edited       bool          `json:"edited"                gorm:"not null;default:false"`
	EditedAt     *time.Time    `json:"editedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"             gorm:"not null;default:now()"`
	DeletedAt    *time.Time    `json:"deletedAt,omitempty"`
	DeletedBy    *int64        `json:"-"`
	DeleteReason *string       `json:"-"`
}

func (Message) TableName() string { return "messages" }

// Deleted reports whether the message has been soft-deleted.
func (m Message) Deleted() bool { return m.DeletedAt != nil }

// PlanetReadMark is a per-(planet,user) high-water mark. Unread counts are
// computed against it instead of flagging individual messages, keeping both
// reads and writes O(1) in conversation length.
type PlanetReadMark struct {
	PlanetID          uuid.UUID `json:"-"                 gorm:"primaryKey;type:uuid"`
	UserID            int64     `json:"userId"            gorm:"primaryKey"`
	LastReadMessageID int64     `json:"lastReadMessageId" gorm:"not null;default:0"`
	UpdatedAt         time.Time `json:"updatedAt"         gorm:"not null;default:now()"`
}

func (PlanetReadMark) TableName() string { return "planet_read_marks" }

// Notification is strictly personal data: it is physically deleted, not
// anonymized, when the owning account is erased.
type Notification struct {
	ID        uuid.UUID              `json:"id"        gorm:"primaryKey;type:uuid"`
	UserID    int64                  `json:"userId"    gorm:"not null"`
	Kind      string                 `json:"kind"      gorm:"not null"`
	Payload   map[string]interface{} `json:"payload"   gorm:"type:jsonb;serializer:json;not null;default:'{}'"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt" gorm:"not null;default:now()"`
}

func (Notification) TableName() string { return "notifications" }

// FileUpload records ownership of an uploaded attachment. The blob itself
// lives in an external store; only the ownership row is subject to
// anonymization.
type FileUpload struct {
	ID         uuid.UUID `json:"id"                  gorm:"primaryKey;type:uuid"`
	OwnerID    int64     `json:"ownerId"             gorm:"not null"`
	StorageKey string    `json:"storageKey"          gorm:"not null"`
	MessageID  *int64    `json:"messageId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"           gorm:"not null;default:now()"`
}

func (FileUpload) TableName() string { return "file_uploads" }

// Task represents a background task in the task queue.
type Task struct {
	ID         uuid.UUID              `json:"id"                  gorm:"primaryKey;type:uuid"`
	TaskName   *string                `json:"taskName,omitempty"  gorm:"unique"`
	TaskType   string                 `json:"taskType"            gorm:"not null"`
	TaskBody   map[string]interface{} `json:"taskBody"            gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt  time.Time              `json:"createdAt"           gorm:"not null;default:now()"`
	RetryAt    time.Time              `json:"retryAt"             gorm:"not null;default:now()"`
	LastError  *string                `json:"lastError,omitempty"`
	RetryCount int                    `json:"retryCount"          gorm:"not null;default:0"`
}

func (Task) TableName() string { return "tasks" }
