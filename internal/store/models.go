package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Tenant is the isolation boundary for one couple's archive.
type Tenant struct {
	ID                 string
	Name               string
	Slug               string
	InviteCode         string
	IsPublic           bool
	AccessPasswordHash string
	OwnerUserID        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Membership links a user to a tenant with a role and a fixed capability set.
// At most one row exists per (tenant, user).
type Membership struct {
	TenantID      string
	UserID        string
	Role          string
	CanUpload     bool
	CanEditOthers bool
	CanManage     bool
	DisplayName   string
	JoinedAt      time.Time
	LastActiveAt  *time.Time
}

type Invite struct {
	ID            string
	TenantID      string
	Email         string
	Token         string
	Role          string
	CanUpload     bool
	CanEditOthers bool
	CanManage     bool
	Status        string
	ExpiresAt     time.Time
	InvitedBy     string
	AcceptedAt    *time.Time
	CreatedAt     time.Time
}

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusExpired  = "expired"
	InviteStatusRevoked  = "revoked"
)

// MemoryCollection is a titled bundle of media with its own lock and
// disclosure configuration. TenantID never changes after creation.
type MemoryCollection struct {
	ID              string
	TenantID        string
	Title           string
	Description     string
	MemoryDate      *time.Time
	CreatedBy       string
	IsLocked        bool
	LockVisibility  string
	UnlockType      string
	UnlockAt        *time.Time
	UnlockHint      string
	TaskDescription string
	TaskCompleted   bool
	ShowTitle       bool
	ShowDescription bool
	ShowItemCount   bool
	ShowCreatedDate bool
	ShowBlurred     bool
	BlurStrength    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type MediaItem struct {
	ID           string
	TenantID     string
	CollectionID *string
	StorageKey   string
	ContentType  string
	SizeBytes    int64
	Width        *int
	Height       *int
	DurationSecs *float64
	Caption      string
	TakenAt      *time.Time
	Latitude     *float64
	Longitude    *float64
	SortOrder    int
	CreatedBy    string
	CreatedAt    time.Time
}

// CollectionPatch carries an optional value per updatable collection field.
// The update statement is built from a fixed list of (column, value) pairs;
// a patch with no fields set is rejected before it reaches the store.
type CollectionPatch struct {
	Title           *string
	Description     *string
	MemoryDate      *time.Time
	LockVisibility  *string
	UnlockType      *string
	UnlockHint      *string
	TaskDescription *string
	ShowTitle       *bool
	ShowDescription *bool
	ShowItemCount   *bool
	ShowCreatedDate *bool
	ShowBlurred     *bool
	BlurStrength    *int
}

// Empty reports whether the patch carries no fields at all.
func (p CollectionPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.MemoryDate == nil &&
		p.LockVisibility == nil && p.UnlockType == nil && p.UnlockHint == nil &&
		p.TaskDescription == nil && p.ShowTitle == nil && p.ShowDescription == nil &&
		p.ShowItemCount == nil && p.ShowCreatedDate == nil && p.ShowBlurred == nil &&
		p.BlurStrength == nil
}
