package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"locket/api/internal/auth"
	"locket/api/internal/authpw"
	"locket/api/internal/config"
	"locket/api/internal/email"
	"locket/api/internal/media"
	"locket/api/internal/rbac"
	"locket/api/internal/store"
	"locket/api/internal/unlock"
	"locket/api/internal/util"
	"locket/api/internal/visibility"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateTenantInput struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	IsPublic       bool   `json:"isPublic"`
	AccessPassword string `json:"accessPassword"`
}

type CreateCollectionInput struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	MemoryDate      *time.Time `json:"memoryDate"`
	IsLocked        bool       `json:"isLocked"`
	LockVisibility  string     `json:"lockVisibility"`
	UnlockType      string     `json:"unlockType"`
	UnlockAt        *time.Time `json:"unlockAt"`
	UnlockHint      string     `json:"unlockHint"`
	TaskDescription string     `json:"taskDescription"`
}

type PatchCollectionInput struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	MemoryDate      *time.Time `json:"memoryDate"`
	LockVisibility  *string    `json:"lockVisibility"`
	UnlockType      *string    `json:"unlockType"`
	UnlockHint      *string    `json:"unlockHint"`
	TaskDescription *string    `json:"taskDescription"`
	ShowTitle       *bool      `json:"showTitle"`
	ShowDescription *bool      `json:"showDescription"`
	ShowItemCount   *bool      `json:"showItemCount"`
	ShowCreatedDate *bool      `json:"showCreatedDate"`
	ShowBlurred     *bool      `json:"showBlurredPreview"`
	BlurStrength    *int       `json:"blurStrength"`
}

type CreateInviteInput struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	CanUpload     *bool  `json:"canUpload"`
	CanEditOthers *bool  `json:"canEditOthers"`
	CanManage     *bool  `json:"canManage"`
}

type AddMediaInput struct {
	FileName     string     `json:"fileName"`
	ContentType  string     `json:"contentType"`
	SizeBytes    int64      `json:"sizeBytes"`
	Width        *int       `json:"width"`
	Height       *int       `json:"height"`
	DurationSecs *float64   `json:"durationSecs"`
	Caption      string     `json:"caption"`
	TakenAt      *time.Time `json:"takenAt"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	CreateTenantWithAdmin(context.Context, store.Tenant, string) error
	GetTenant(context.Context, string) (store.Tenant, error)
	ListTenantsFor(context.Context, string) ([]store.Tenant, error)
	UpdateTenantAccess(context.Context, string, bool, string) error
	GetMembership(context.Context, string, string) (store.Membership, error)
	ListMembers(context.Context, string) ([]store.Membership, error)
	TouchMemberActivity(context.Context, string, string) error
	CreateInvite(context.Context, store.Invite) error
	GetInviteByToken(context.Context, string) (store.Invite, error)
	ListInvites(context.Context, string) ([]store.Invite, error)
	AcceptInvite(context.Context, string, string, string) (bool, error)
	MarkInviteExpired(context.Context, string) error
	RevokeInvite(context.Context, string, string) (bool, error)
	InsertCollection(context.Context, store.MemoryCollection) error
	GetCollection(context.Context, string, string) (store.MemoryCollection, error)
	ListCollections(context.Context, string) ([]store.MemoryCollection, error)
	UpdateCollection(context.Context, string, string, store.CollectionPatch) error
	SetLock(context.Context, string, string, bool) (bool, error)
	ScheduleUnlock(context.Context, string, string, time.Time) (bool, error)
	CompleteTask(context.Context, string, string) (bool, error)
	ListCollectionIDs(context.Context, string) ([]string, error)
	ItemCounts(context.Context, string) (map[string]int, error)
	FirstMediaItem(context.Context, string, string) (*store.MediaItem, error)
	InsertMediaItem(context.Context, store.MediaItem) error
	ListMediaItems(context.Context, string, string) ([]store.MediaItem, error)
	GetMediaItem(context.Context, string, string) (store.MediaItem, error)
	DeleteMediaItem(context.Context, string, string) (bool, error)
	ReorderMediaItems(context.Context, string, string, []string) error
	Ping(ctx context.Context) error
}

// refreshStore abstracts refresh token storage so Redis can replace the
// Postgres tables without touching the session flow.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	email    *email.Service
	signer   *media.Signer
}

func New(cfg config.Config, dataStore *store.PostgresStore, emailService *email.Service, signer *media.Signer) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		authpw:   authpw.NewService(dataStore),
		email:    emailService,
		signer:   signer,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions refreshStore, emailService *email.Service, signer *media.Signer) *Service {
	service := New(cfg, dataStore, emailService, signer)
	service.sessions = sessions
	return service
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationMail delivers the email-verification link. A delivery
// failure is not surfaced; the user can request a fresh token by signing in.
func (s *Service) SendVerificationMail(to, name, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	verifyURL := strings.TrimSuffix(s.cfg.CORSOrigin, "/") + "/verify-email?token=" + token
	_ = s.email.SendVerificationEmail(to, name, verifyURL)
}

// SendPasswordResetMail delivers the reset link for a known account. Callers
// respond identically whether or not the account exists.
func (s *Service) SendPasswordResetMail(to, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	resetURL := strings.TrimSuffix(s.cfg.CORSOrigin, "/") + "/reset-password?token=" + token
	body := "A password reset was requested for your Locket account.\n\n" +
		"Reset your password: " + resetURL + "\n\n" +
		"The link expires in one hour. If you did not request a reset, ignore this email."
	_ = s.email.SendEmail([]string{to}, "Reset your Locket password", body)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	holder, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Redis records carry the user id only; reload the full row.
	user, err := s.store.GetUserByID(ctx, holder.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// requireMembership resolves the caller's membership in a tenant. A missing
// membership answers not-found: outsiders cannot learn that a tenant exists.
func (s *Service) requireMembership(ctx context.Context, tenantID, userID string) (store.Membership, error) {
	member, err := s.store.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if isNoRows(err) {
			return store.Membership{}, errNotFound()
		}
		return store.Membership{}, err
	}
	_ = s.store.TouchMemberActivity(ctx, tenantID, userID)
	return member, nil
}

func (s *Service) CreateTenant(ctx context.Context, session Session, input CreateTenantInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errValidation("name is required")
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = slugify(name)
	}

	passwordHash := ""
	if input.AccessPassword != "" {
		hash, err := authpw.HashAccessPassword(input.AccessPassword)
		if err != nil {
			return nil, err
		}
		passwordHash = hash
	}

	tenant := store.Tenant{
		ID:                 util.NewID("tn"),
		Name:               name,
		Slug:               slug,
		InviteCode:         uuid.NewString(),
		IsPublic:           input.IsPublic,
		AccessPasswordHash: passwordHash,
		OwnerUserID:        session.UserID,
	}
	if err := s.store.CreateTenantWithAdmin(ctx, tenant, session.UserName); err != nil {
		return nil, err
	}
	return tenantPayload(tenant, "admin"), nil
}

func (s *Service) ListTenants(ctx context.Context, userID string) (map[string]any, error) {
	tenants, err := s.store.ListTenantsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tenants))
	for _, tenant := range tenants {
		member, err := s.store.GetMembership(ctx, tenant.ID, userID)
		if err != nil {
			return nil, err
		}
		items = append(items, tenantPayload(tenant, member.Role))
	}
	return map[string]any{"tenants": items}, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID, userID string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	payload := tenantPayload(tenant, member.Role)
	if member.CanManage {
		payload["inviteCode"] = tenant.InviteCode
	}
	return payload, nil
}

func (s *Service) UpdateTenantAccess(ctx context.Context, tenantID, userID string, isPublic bool, accessPassword *string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	passwordHash := tenant.AccessPasswordHash
	if accessPassword != nil {
		passwordHash = ""
		if *accessPassword != "" {
			hash, err := authpw.HashAccessPassword(*accessPassword)
			if err != nil {
				return nil, err
			}
			passwordHash = hash
		}
	}
	if err := s.store.UpdateTenantAccess(ctx, tenantID, isPublic, passwordHash); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "isPublic": isPublic, "hasAccessPassword": passwordHash != ""}, nil
}

// VerifyTenantPassword checks a tenant access password without creating any
// grant; the caller exchanges success for content access client-side.
func (s *Service) VerifyTenantPassword(ctx context.Context, tenantID, password string) (map[string]any, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if tenant.AccessPasswordHash == "" {
		return nil, errValidation("tenant has no access password")
	}
	ok := authpw.CheckAccessPassword(tenant.AccessPasswordHash, password)
	if !ok {
		return nil, errAccessDenied()
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) ListMembers(ctx context.Context, tenantID, userID string) (map[string]any, error) {
	if _, err := s.requireMembership(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		item := map[string]any{
			"userId":        member.UserID,
			"role":          member.Role,
			"displayName":   member.DisplayName,
			"canUpload":     member.CanUpload,
			"canEditOthers": member.CanEditOthers,
			"canManage":     member.CanManage,
			"joinedAt":      member.JoinedAt,
		}
		if member.LastActiveAt != nil {
			item["lastActiveAt"] = *member.LastActiveAt
		}
		items = append(items, item)
	}
	return map[string]any{"members": items}, nil
}

func (s *Service) CreateInvite(ctx context.Context, tenantID string, session Session, input CreateInviteInput) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	inviteEmail := strings.TrimSpace(strings.ToLower(input.Email))
	if inviteEmail == "" || !strings.Contains(inviteEmail, "@") {
		return nil, errValidation("a valid email is required")
	}
	role := rbac.Normalize(input.Role)
	if input.Role != "" && string(role) != input.Role {
		return nil, errValidation("role must be admin or participant")
	}

	caps := rbac.DefaultCapabilities()
	if role == rbac.RoleAdmin {
		caps = rbac.AdminCapabilities()
	}
	if input.CanUpload != nil {
		caps.CanUpload = *input.CanUpload
	}
	if input.CanEditOthers != nil {
		caps.CanEditOthers = *input.CanEditOthers
	}
	if input.CanManage != nil {
		caps.CanManage = *input.CanManage
	}

	invite := store.Invite{
		ID:            util.NewID("inv"),
		TenantID:      tenantID,
		Email:         inviteEmail,
		Token:         util.NewSecret(),
		Role:          string(role),
		CanUpload:     caps.CanUpload,
		CanEditOthers: caps.CanEditOthers,
		CanManage:     caps.CanManage,
		Status:        store.InviteStatusPending,
		ExpiresAt:     time.Now().Add(7 * 24 * time.Hour),
		InvitedBy:     session.UserID,
	}
	if err := s.store.CreateInvite(ctx, invite); err != nil {
		return nil, err
	}

	if s.SMTPConfigured() {
		tenant, err := s.store.GetTenant(ctx, tenantID)
		if err == nil {
			acceptURL := strings.TrimSuffix(s.cfg.CORSOrigin, "/") + "/invites/accept?token=" + invite.Token
			_ = s.email.SendInviteEmail(invite.Email, tenant.Name, session.UserName, acceptURL)
		}
	}

	payload := invitePayload(invite)
	// Without email delivery the caller has to relay the token itself.
	if !s.SMTPConfigured() {
		payload["token"] = invite.Token
	}
	return payload, nil
}

func (s *Service) ListInvites(ctx context.Context, tenantID, userID string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	invites, err := s.store.ListInvites(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(invites))
	for _, invite := range invites {
		items = append(items, invitePayload(invite))
	}
	return map[string]any{"invites": items}, nil
}

func (s *Service) RevokeInvite(ctx context.Context, tenantID, inviteID, userID string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	revoked, err := s.store.RevokeInvite(ctx, tenantID, inviteID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, errNotFound()
	}
	return map[string]any{"ok": true}, nil
}

// AcceptInvite consumes an invite token for the signed-in user. An invite
// past its deadline is flipped to expired here, at acceptance time; no
// background sweeper exists.
func (s *Service) AcceptInvite(ctx context.Context, session Session, token string) (map[string]any, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errValidation("token is required")
	}
	invite, err := s.store.GetInviteByToken(ctx, token)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}

	switch invite.Status {
	case store.InviteStatusAccepted:
		return nil, errInviteConsumed()
	case store.InviteStatusExpired:
		return nil, errInviteExpired()
	case store.InviteStatusRevoked:
		return nil, errNotFound()
	}

	if time.Now().After(invite.ExpiresAt) {
		_ = s.store.MarkInviteExpired(ctx, invite.ID)
		return nil, errInviteExpired()
	}

	accepted, err := s.store.AcceptInvite(ctx, invite.ID, session.UserID, session.UserName)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, errInviteConsumed()
	}
	return map[string]any{"ok": true, "tenantId": invite.TenantID, "role": invite.Role}, nil
}

func (s *Service) ListCollections(ctx context.Context, tenantID, userID string, includeLocked bool) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	collections, err := s.store.ListCollections(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.ItemCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]map[string]any, 0, len(collections))
	for _, collection := range collections {
		locked := visibility.Locked(collection, now)
		if !includeLocked && locked {
			continue
		}
		input := visibility.Input{Collection: collection, ItemCount: counts[collection.ID]}
		if collection.ShowBlurred && locked && !member.CanManage {
			preview, err := s.store.FirstMediaItem(ctx, tenantID, collection.ID)
			if err != nil && !isNoRows(err) {
				return nil, err
			}
			input.Preview = preview
		}
		view, visible := visibility.Project(input, member.CanManage, now)
		if !visible {
			continue
		}
		items = append(items, view)
	}
	return map[string]any{"collections": items}, nil
}

func (s *Service) GetCollection(ctx context.Context, tenantID, collectionID, userID string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollection(ctx, tenantID, collectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}

	now := time.Now()
	counts, err := s.store.ItemCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	input := visibility.Input{Collection: collection, ItemCount: counts[collection.ID]}
	if collection.ShowBlurred && !member.CanManage && visibility.Locked(collection, now) {
		preview, err := s.store.FirstMediaItem(ctx, tenantID, collection.ID)
		if err != nil && !isNoRows(err) {
			return nil, err
		}
		input.Preview = preview
	}
	view, visible := visibility.Project(input, member.CanManage, now)
	if !visible {
		return nil, errNotFound()
	}
	return view, nil
}

func (s *Service) CreateCollection(ctx context.Context, tenantID string, session Session, input CreateCollectionInput) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !member.CanUpload {
		return nil, errAccessDenied()
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title is required")
	}

	lockVisibility := input.LockVisibility
	if lockVisibility == "" {
		lockVisibility = string(unlock.VisibilityPrivate)
	}
	if !unlock.ValidVisibility(lockVisibility) {
		return nil, errValidation("lockVisibility must be private or public")
	}
	unlockType := input.UnlockType
	if unlockType == "" {
		unlockType = string(unlock.TypeScheduled)
	}
	if !unlock.ValidType(unlockType) {
		return nil, errValidation("unlockType must be scheduled or task_based")
	}
	if input.UnlockAt != nil && !input.UnlockAt.After(time.Now()) {
		return nil, errValidation("unlockAt must be in the future")
	}

	// A schedule at creation locks the collection, same as the schedule
	// endpoint would.
	isLocked := input.IsLocked
	if input.UnlockAt != nil {
		isLocked = true
	}

	collection := store.MemoryCollection{
		ID:              util.NewID("mc"),
		TenantID:        tenantID,
		Title:           title,
		Description:     input.Description,
		MemoryDate:      input.MemoryDate,
		CreatedBy:       session.UserID,
		IsLocked:        isLocked,
		LockVisibility:  lockVisibility,
		UnlockType:      unlockType,
		UnlockAt:        input.UnlockAt,
		UnlockHint:      input.UnlockHint,
		TaskDescription: input.TaskDescription,
		BlurStrength:    50,
	}
	if err := s.store.InsertCollection(ctx, collection); err != nil {
		return nil, err
	}
	view, _ := visibility.Project(visibility.Input{Collection: collection}, true, time.Now())
	return view, nil
}

func (s *Service) PatchCollection(ctx context.Context, tenantID, collectionID string, session Session, input PatchCollectionInput) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, session.UserID)
	if err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollection(ctx, tenantID, collectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}

	patch := store.CollectionPatch{
		Title:           input.Title,
		Description:     input.Description,
		MemoryDate:      input.MemoryDate,
		LockVisibility:  input.LockVisibility,
		UnlockType:      input.UnlockType,
		UnlockHint:      input.UnlockHint,
		TaskDescription: input.TaskDescription,
		ShowTitle:       input.ShowTitle,
		ShowDescription: input.ShowDescription,
		ShowItemCount:   input.ShowItemCount,
		ShowCreatedDate: input.ShowCreatedDate,
		ShowBlurred:     input.ShowBlurred,
		BlurStrength:    input.BlurStrength,
	}
	if patch.Empty() {
		return nil, errValidation("no fields to update")
	}

	touchesLockConfig := input.LockVisibility != nil || input.UnlockType != nil ||
		input.UnlockHint != nil || input.TaskDescription != nil ||
		input.ShowTitle != nil || input.ShowDescription != nil ||
		input.ShowItemCount != nil || input.ShowCreatedDate != nil ||
		input.ShowBlurred != nil || input.BlurStrength != nil
	if touchesLockConfig && !member.CanManage {
		return nil, errAccessDenied()
	}
	if !touchesLockConfig {
		if collection.CreatedBy != session.UserID && !member.CanEditOthers {
			return nil, errAccessDenied()
		}
	}

	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, errValidation("title cannot be empty")
	}
	if input.LockVisibility != nil && !unlock.ValidVisibility(*input.LockVisibility) {
		return nil, errValidation("lockVisibility must be private or public")
	}
	if input.UnlockType != nil && !unlock.ValidType(*input.UnlockType) {
		return nil, errValidation("unlockType must be scheduled or task_based")
	}
	if input.BlurStrength != nil {
		clamped := unlock.ClampBlur(*input.BlurStrength)
		patch.BlurStrength = &clamped
	}

	if err := s.store.UpdateCollection(ctx, tenantID, collectionID, patch); err != nil {
		return nil, err
	}
	return s.GetCollection(ctx, tenantID, collectionID, session.UserID)
}

// SetCollectionLock toggles the lock by hand. A manual unlock clears any
// schedule; the two mechanisms never stay armed together.
func (s *Service) SetCollectionLock(ctx context.Context, tenantID, collectionID, userID string, locked bool) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	updated, err := s.store.SetLock(ctx, tenantID, collectionID, locked)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, errNotFound()
	}
	return map[string]any{"ok": true, "locked": locked}, nil
}

func (s *Service) ScheduleCollectionUnlock(ctx context.Context, tenantID, collectionID, userID string, unlockAt time.Time) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	if unlockAt.IsZero() || !unlockAt.After(time.Now()) {
		return nil, errValidation("unlockAt must be in the future")
	}
	updated, err := s.store.ScheduleUnlock(ctx, tenantID, collectionID, unlockAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, errNotFound()
	}
	return map[string]any{"ok": true, "locked": true, "unlockAt": unlockAt}, nil
}

// CompleteCollectionTask opens a task-gated collection. Any member may
// complete the task; the guard on unlock_type keeps it from ever touching a
// schedule-gated collection.
func (s *Service) CompleteCollectionTask(ctx context.Context, tenantID, collectionID, userID string) (map[string]any, error) {
	if _, err := s.requireMembership(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollection(ctx, tenantID, collectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if collection.UnlockType != string(unlock.TypeTaskBased) {
		return nil, errValidation("collection is not task gated")
	}
	completed, err := s.store.CompleteTask(ctx, tenantID, collectionID)
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, errNotFound()
	}
	return map[string]any{"ok": true, "locked": false, "taskCompleted": true}, nil
}

// SetAllCollectionLocks applies the toggle to every collection in the
// tenant, one row at a time. A failed row does not stop the rest; the
// response carries how many were updated.
func (s *Service) SetAllCollectionLocks(ctx context.Context, tenantID, userID string, locked bool) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !member.CanManage {
		return nil, errAccessDenied()
	}
	ids, err := s.store.ListCollectionIDs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	updated := 0
	failed := 0
	for _, id := range ids {
		ok, err := s.store.SetLock(ctx, tenantID, id, locked)
		if err != nil || !ok {
			failed++
			continue
		}
		updated++
	}
	return map[string]any{"ok": failed == 0, "updated": updated, "failed": failed}, nil
}

func (s *Service) ListMedia(ctx context.Context, tenantID, collectionID, userID string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollection(ctx, tenantID, collectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if !member.CanManage && visibility.Locked(collection, time.Now()) {
		if collection.LockVisibility == string(unlock.VisibilityPrivate) {
			return nil, errNotFound()
		}
		return nil, errAccessDenied()
	}

	media, err := s.store.ListMediaItems(ctx, tenantID, collectionID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(media))
	for _, item := range media {
		payload := mediaPayload(item)
		if s.signer != nil {
			if url, err := s.signer.PresignGet(ctx, item.StorageKey); err == nil {
				payload["url"] = url
			}
		}
		items = append(items, payload)
	}
	return map[string]any{"items": items}, nil
}

func (s *Service) AddMedia(ctx context.Context, tenantID, collectionID string, session Session, input AddMediaInput) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !member.CanUpload {
		return nil, errAccessDenied()
	}
	if _, err := s.store.GetCollection(ctx, tenantID, collectionID); err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if strings.TrimSpace(input.FileName) == "" {
		return nil, errValidation("fileName is required")
	}
	if input.ContentType == "" {
		return nil, errValidation("contentType is required")
	}

	item := store.MediaItem{
		ID:           util.NewID("mi"),
		TenantID:     tenantID,
		CollectionID: &collectionID,
		StorageKey:   media.ObjectKey(tenantID, collectionID, input.FileName),
		ContentType:  input.ContentType,
		SizeBytes:    input.SizeBytes,
		Width:        input.Width,
		Height:       input.Height,
		DurationSecs: input.DurationSecs,
		Caption:      input.Caption,
		TakenAt:      input.TakenAt,
		Latitude:     input.Latitude,
		Longitude:    input.Longitude,
		CreatedBy:    session.UserID,
	}
	if err := s.store.InsertMediaItem(ctx, item); err != nil {
		return nil, err
	}

	payload := mediaPayload(item)
	if s.signer != nil {
		if url, err := s.signer.PresignPut(ctx, item.StorageKey); err == nil {
			payload["uploadUrl"] = url
		}
	}
	return payload, nil
}

func (s *Service) ReorderMedia(ctx context.Context, tenantID, collectionID, userID string, orderedIDs []string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollection(ctx, tenantID, collectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if collection.CreatedBy != userID && !member.CanEditOthers {
		return nil, errAccessDenied()
	}
	if len(orderedIDs) == 0 {
		return nil, errValidation("itemIds is required")
	}
	if err := s.store.ReorderMediaItems(ctx, tenantID, collectionID, orderedIDs); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) DeleteMedia(ctx context.Context, tenantID, itemID, userID string) (map[string]any, error) {
	member, err := s.requireMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.GetMediaItem(ctx, tenantID, itemID)
	if err != nil {
		if isNoRows(err) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if item.CreatedBy != userID && !member.CanEditOthers {
		return nil, errAccessDenied()
	}
	deleted, err := s.store.DeleteMediaItem(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, errNotFound()
	}
	return map[string]any{"ok": true}, nil
}

func tenantPayload(tenant store.Tenant, role string) map[string]any {
	return map[string]any{
		"id":                tenant.ID,
		"name":              tenant.Name,
		"slug":              tenant.Slug,
		"isPublic":          tenant.IsPublic,
		"hasAccessPassword": tenant.AccessPasswordHash != "",
		"role":              role,
		"createdAt":         tenant.CreatedAt,
	}
}

func invitePayload(invite store.Invite) map[string]any {
	payload := map[string]any{
		"id":            invite.ID,
		"tenantId":      invite.TenantID,
		"email":         invite.Email,
		"role":          invite.Role,
		"canUpload":     invite.CanUpload,
		"canEditOthers": invite.CanEditOthers,
		"canManage":     invite.CanManage,
		"status":        invite.Status,
		"expiresAt":     invite.ExpiresAt,
		"createdAt":     invite.CreatedAt,
	}
	if invite.AcceptedAt != nil {
		payload["acceptedAt"] = *invite.AcceptedAt
	}
	return payload
}

func mediaPayload(item store.MediaItem) map[string]any {
	payload := map[string]any{
		"id":          item.ID,
		"tenantId":    item.TenantID,
		"storageKey":  item.StorageKey,
		"contentType": item.ContentType,
		"sizeBytes":   item.SizeBytes,
		"caption":     item.Caption,
		"sortOrder":   item.SortOrder,
		"createdBy":   item.CreatedBy,
		"createdAt":   item.CreatedAt,
	}
	if item.CollectionID != nil {
		payload["collectionId"] = *item.CollectionID
	}
	if item.Width != nil {
		payload["width"] = *item.Width
	}
	if item.Height != nil {
		payload["height"] = *item.Height
	}
	if item.DurationSecs != nil {
		payload["durationSecs"] = *item.DurationSecs
	}
	if item.TakenAt != nil {
		payload["takenAt"] = *item.TakenAt
	}
	if item.Latitude != nil && item.Longitude != nil {
		payload["latitude"] = *item.Latitude
		payload["longitude"] = *item.Longitude
	}
	return payload
}

func slugify(value string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
