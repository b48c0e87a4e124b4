package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"locket/api/internal/config"
	"locket/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn           func(context.Context, string) (store.User, error)
	isAccessTokenRevokedFn  func(context.Context, string) (bool, error)
	createTenantWithAdminFn func(context.Context, store.Tenant, string) error
	getTenantFn             func(context.Context, string) (store.Tenant, error)
	listTenantsForFn        func(context.Context, string) ([]store.Tenant, error)
	getMembershipFn         func(context.Context, string, string) (store.Membership, error)
	listMembersFn           func(context.Context, string) ([]store.Membership, error)
	createInviteFn          func(context.Context, store.Invite) error
	getInviteByTokenFn      func(context.Context, string) (store.Invite, error)
	acceptInviteFn          func(context.Context, string, string, string) (bool, error)
	markInviteExpiredFn     func(context.Context, string) error
	revokeInviteFn          func(context.Context, string, string) (bool, error)
	insertCollectionFn      func(context.Context, store.MemoryCollection) error
	getCollectionFn         func(context.Context, string, string) (store.MemoryCollection, error)
	listCollectionsFn       func(context.Context, string) ([]store.MemoryCollection, error)
	updateCollectionFn      func(context.Context, string, string, store.CollectionPatch) error
	setLockFn               func(context.Context, string, string, bool) (bool, error)
	scheduleUnlockFn        func(context.Context, string, string, time.Time) (bool, error)
	completeTaskFn          func(context.Context, string, string) (bool, error)
	listCollectionIDsFn     func(context.Context, string) ([]string, error)
	itemCountsFn            func(context.Context, string) (map[string]int, error)
	firstMediaItemFn        func(context.Context, string, string) (*store.MediaItem, error)
	insertMediaItemFn       func(context.Context, store.MediaItem) error
	listMediaItemsFn        func(context.Context, string, string) ([]store.MediaItem, error)
	getMediaItemFn          func(context.Context, string, string) (store.MediaItem, error)
	deleteMediaItemFn       func(context.Context, string, string) (bool, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Test User"}, nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) CreateTenantWithAdmin(ctx context.Context, tenant store.Tenant, displayName string) error {
	if f.createTenantWithAdminFn != nil {
		return f.createTenantWithAdminFn(ctx, tenant, displayName)
	}
	return nil
}
func (f *fakeStore) GetTenant(ctx context.Context, tenantID string) (store.Tenant, error) {
	if f.getTenantFn != nil {
		return f.getTenantFn(ctx, tenantID)
	}
	return store.Tenant{}, sql.ErrNoRows
}
func (f *fakeStore) ListTenantsFor(ctx context.Context, userID string) ([]store.Tenant, error) {
	if f.listTenantsForFn != nil {
		return f.listTenantsForFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateTenantAccess(context.Context, string, bool, string) error { return nil }
func (f *fakeStore) GetMembership(ctx context.Context, tenantID, userID string) (store.Membership, error) {
	if f.getMembershipFn != nil {
		return f.getMembershipFn(ctx, tenantID, userID)
	}
	return store.Membership{}, sql.ErrNoRows
}
func (f *fakeStore) ListMembers(ctx context.Context, tenantID string) ([]store.Membership, error) {
	if f.listMembersFn != nil {
		return f.listMembersFn(ctx, tenantID)
	}
	return nil, nil
}
func (f *fakeStore) TouchMemberActivity(context.Context, string, string) error { return nil }
func (f *fakeStore) CreateInvite(ctx context.Context, invite store.Invite) error {
	if f.createInviteFn != nil {
		return f.createInviteFn(ctx, invite)
	}
	return nil
}
func (f *fakeStore) GetInviteByToken(ctx context.Context, token string) (store.Invite, error) {
	if f.getInviteByTokenFn != nil {
		return f.getInviteByTokenFn(ctx, token)
	}
	return store.Invite{}, sql.ErrNoRows
}
func (f *fakeStore) ListInvites(context.Context, string) ([]store.Invite, error) { return nil, nil }
func (f *fakeStore) AcceptInvite(ctx context.Context, inviteID, userID, displayName string) (bool, error) {
	if f.acceptInviteFn != nil {
		return f.acceptInviteFn(ctx, inviteID, userID, displayName)
	}
	return true, nil
}
func (f *fakeStore) MarkInviteExpired(ctx context.Context, inviteID string) error {
	if f.markInviteExpiredFn != nil {
		return f.markInviteExpiredFn(ctx, inviteID)
	}
	return nil
}
func (f *fakeStore) RevokeInvite(ctx context.Context, tenantID, inviteID string) (bool, error) {
	if f.revokeInviteFn != nil {
		return f.revokeInviteFn(ctx, tenantID, inviteID)
	}
	return false, nil
}
func (f *fakeStore) InsertCollection(ctx context.Context, item store.MemoryCollection) error {
	if f.insertCollectionFn != nil {
		return f.insertCollectionFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) GetCollection(ctx context.Context, tenantID, collectionID string) (store.MemoryCollection, error) {
	if f.getCollectionFn != nil {
		return f.getCollectionFn(ctx, tenantID, collectionID)
	}
	return store.MemoryCollection{}, sql.ErrNoRows
}
func (f *fakeStore) ListCollections(ctx context.Context, tenantID string) ([]store.MemoryCollection, error) {
	if f.listCollectionsFn != nil {
		return f.listCollectionsFn(ctx, tenantID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateCollection(ctx context.Context, tenantID, collectionID string, patch store.CollectionPatch) error {
	if f.updateCollectionFn != nil {
		return f.updateCollectionFn(ctx, tenantID, collectionID, patch)
	}
	return nil
}
func (f *fakeStore) SetLock(ctx context.Context, tenantID, collectionID string, locked bool) (bool, error) {
	if f.setLockFn != nil {
		return f.setLockFn(ctx, tenantID, collectionID, locked)
	}
	return false, nil
}
func (f *fakeStore) ScheduleUnlock(ctx context.Context, tenantID, collectionID string, unlockAt time.Time) (bool, error) {
	if f.scheduleUnlockFn != nil {
		return f.scheduleUnlockFn(ctx, tenantID, collectionID, unlockAt)
	}
	return false, nil
}
func (f *fakeStore) CompleteTask(ctx context.Context, tenantID, collectionID string) (bool, error) {
	if f.completeTaskFn != nil {
		return f.completeTaskFn(ctx, tenantID, collectionID)
	}
	return false, nil
}
func (f *fakeStore) ListCollectionIDs(ctx context.Context, tenantID string) ([]string, error) {
	if f.listCollectionIDsFn != nil {
		return f.listCollectionIDsFn(ctx, tenantID)
	}
	return nil, nil
}
func (f *fakeStore) ItemCounts(ctx context.Context, tenantID string) (map[string]int, error) {
	if f.itemCountsFn != nil {
		return f.itemCountsFn(ctx, tenantID)
	}
	return map[string]int{}, nil
}
func (f *fakeStore) FirstMediaItem(ctx context.Context, tenantID, collectionID string) (*store.MediaItem, error) {
	if f.firstMediaItemFn != nil {
		return f.firstMediaItemFn(ctx, tenantID, collectionID)
	}
	return nil, sql.ErrNoRows
}
func (f *fakeStore) InsertMediaItem(ctx context.Context, item store.MediaItem) error {
	if f.insertMediaItemFn != nil {
		return f.insertMediaItemFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) ListMediaItems(ctx context.Context, tenantID, collectionID string) ([]store.MediaItem, error) {
	if f.listMediaItemsFn != nil {
		return f.listMediaItemsFn(ctx, tenantID, collectionID)
	}
	return nil, nil
}
func (f *fakeStore) GetMediaItem(ctx context.Context, tenantID, itemID string) (store.MediaItem, error) {
	if f.getMediaItemFn != nil {
		return f.getMediaItemFn(ctx, tenantID, itemID)
	}
	return store.MediaItem{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteMediaItem(ctx context.Context, tenantID, itemID string) (bool, error) {
	if f.deleteMediaItemFn != nil {
		return f.deleteMediaItemFn(ctx, tenantID, itemID)
	}
	return false, nil
}
func (f *fakeStore) ReorderMediaItems(context.Context, string, string, []string) error { return nil }
func (f *fakeStore) Ping(context.Context) error                                        { return nil }

func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, errors.New("not implemented")
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: fs,
	}
}

func managerMembership(tenantID, userID string) store.Membership {
	return store.Membership{
		TenantID:      tenantID,
		UserID:        userID,
		Role:          "admin",
		CanUpload:     true,
		CanEditOthers: true,
		CanManage:     true,
	}
}

func participantMembership(tenantID, userID string) store.Membership {
	return store.Membership{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      "participant",
		CanUpload: true,
	}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Code
}

func TestCreateTenantDerivesSlugAndAdminMembership(t *testing.T) {
	var created store.Tenant
	var adminName string
	fs := &fakeStore{
		createTenantWithAdminFn: func(_ context.Context, tenant store.Tenant, displayName string) error {
			created = tenant
			adminName = displayName
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CreateTenant(context.Background(), Session{UserID: "u_1", UserName: "Sam"}, CreateTenantInput{
		Name: "Sam & Avery's Archive",
	})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if created.Slug != "sam-avery-s-archive" {
		t.Fatalf("unexpected slug %q", created.Slug)
	}
	if created.OwnerUserID != "u_1" {
		t.Fatalf("unexpected owner %q", created.OwnerUserID)
	}
	if created.InviteCode == "" {
		t.Fatal("expected invite code to be generated")
	}
	if adminName != "Sam" {
		t.Fatalf("unexpected admin display name %q", adminName)
	}
	if payload["role"] != "admin" {
		t.Fatalf("expected admin role in payload, got %v", payload["role"])
	}
}

func TestCreateTenantRequiresName(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateTenant(context.Background(), Session{UserID: "u_1"}, CreateTenantInput{Name: "   "})
	if codeOf(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestOutsiderSeesTenantAsMissing(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.ListCollections(context.Background(), "tn_1", "u_stranger", false)
	if codeOf(t, err) != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND for non-member, got %v", err)
	}
}

func TestAcceptInviteFlipsLapsedInviteToExpired(t *testing.T) {
	marked := ""
	fs := &fakeStore{
		getInviteByTokenFn: func(_ context.Context, token string) (store.Invite, error) {
			return store.Invite{
				ID:        "inv_1",
				TenantID:  "tn_1",
				Status:    store.InviteStatusPending,
				ExpiresAt: time.Now().Add(-time.Hour),
			}, nil
		},
		markInviteExpiredFn: func(_ context.Context, inviteID string) error {
			marked = inviteID
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AcceptInvite(context.Background(), Session{UserID: "u_2", UserName: "Avery"}, "tok")
	if codeOf(t, err) != "INVITE_EXPIRED" {
		t.Fatalf("expected INVITE_EXPIRED, got %v", err)
	}
	if marked != "inv_1" {
		t.Fatalf("expected invite to be marked expired, got %q", marked)
	}
}

func TestAcceptInviteAlreadyConsumed(t *testing.T) {
	fs := &fakeStore{
		getInviteByTokenFn: func(context.Context, string) (store.Invite, error) {
			return store.Invite{ID: "inv_1", Status: store.InviteStatusAccepted}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AcceptInvite(context.Background(), Session{UserID: "u_2"}, "tok")
	if codeOf(t, err) != "INVITE_ALREADY_CONSUMED" {
		t.Fatalf("expected INVITE_ALREADY_CONSUMED, got %v", err)
	}
}

func TestAcceptInviteConcurrentLoserReportsConsumed(t *testing.T) {
	fs := &fakeStore{
		getInviteByTokenFn: func(context.Context, string) (store.Invite, error) {
			return store.Invite{
				ID:        "inv_1",
				TenantID:  "tn_1",
				Status:    store.InviteStatusPending,
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
		acceptInviteFn: func(context.Context, string, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AcceptInvite(context.Background(), Session{UserID: "u_2"}, "tok")
	if codeOf(t, err) != "INVITE_ALREADY_CONSUMED" {
		t.Fatalf("expected INVITE_ALREADY_CONSUMED, got %v", err)
	}
}

func TestAcceptRevokedInviteLooksAbsent(t *testing.T) {
	fs := &fakeStore{
		getInviteByTokenFn: func(context.Context, string) (store.Invite, error) {
			return store.Invite{ID: "inv_1", Status: store.InviteStatusRevoked}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AcceptInvite(context.Background(), Session{UserID: "u_2"}, "tok")
	if codeOf(t, err) != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestScheduleUnlockRequiresManage(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return participantMembership(tenantID, userID), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ScheduleCollectionUnlock(context.Background(), "tn_1", "mc_1", "u_2", time.Now().Add(time.Hour))
	if codeOf(t, err) != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}
}

func TestScheduleUnlockRejectsPastTime(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ScheduleCollectionUnlock(context.Background(), "tn_1", "mc_1", "u_1", time.Now().Add(-time.Minute))
	if codeOf(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCompleteTaskRejectsScheduledCollection(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return participantMembership(tenantID, userID), nil
		},
		getCollectionFn: func(context.Context, string, string) (store.MemoryCollection, error) {
			return store.MemoryCollection{
				ID:         "mc_1",
				TenantID:   "tn_1",
				IsLocked:   true,
				UnlockType: "scheduled",
			}, nil
		},
		completeTaskFn: func(context.Context, string, string) (bool, error) {
			t.Fatal("complete task must not reach the store for a scheduled collection")
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CompleteCollectionTask(context.Background(), "tn_1", "mc_1", "u_2")
	if codeOf(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCompleteTaskUnlocksTaskGatedCollection(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return participantMembership(tenantID, userID), nil
		},
		getCollectionFn: func(context.Context, string, string) (store.MemoryCollection, error) {
			return store.MemoryCollection{
				ID:         "mc_1",
				TenantID:   "tn_1",
				IsLocked:   true,
				UnlockType: "task_based",
			}, nil
		},
		completeTaskFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CompleteCollectionTask(context.Background(), "tn_1", "mc_1", "u_2")
	if err != nil {
		t.Fatalf("CompleteCollectionTask: %v", err)
	}
	if payload["locked"] != false || payload["taskCompleted"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestManualUnlockRequiresManage(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return participantMembership(tenantID, userID), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SetCollectionLock(context.Background(), "tn_1", "mc_1", "u_2", false)
	if codeOf(t, err) != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}
}

func TestLockAllCountsPerRowResults(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
		listCollectionIDsFn: func(context.Context, string) ([]string, error) {
			return []string{"mc_1", "mc_2", "mc_3"}, nil
		},
		setLockFn: func(_ context.Context, _, collectionID string, locked bool) (bool, error) {
			if collectionID == "mc_2" {
				return false, errors.New("row gone")
			}
			return true, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.SetAllCollectionLocks(context.Background(), "tn_1", "u_1", true)
	if err != nil {
		t.Fatalf("SetAllCollectionLocks: %v", err)
	}
	if payload["updated"] != 2 || payload["failed"] != 1 {
		t.Fatalf("expected 2 updated and 1 failed, got %v", payload)
	}
	if payload["ok"] != false {
		t.Fatalf("expected ok=false when any row fails, got %v", payload["ok"])
	}
}

func TestCreateCollectionRequiresUploadCapability(t *testing.T) {
	member := participantMembership("tn_1", "u_2")
	member.CanUpload = false
	fs := &fakeStore{
		getMembershipFn: func(context.Context, string, string) (store.Membership, error) {
			return member, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateCollection(context.Background(), "tn_1", Session{UserID: "u_2"}, CreateCollectionInput{Title: "Trip"})
	if codeOf(t, err) != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}
}

func TestPatchLockConfigRequiresManage(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return participantMembership(tenantID, userID), nil
		},
		getCollectionFn: func(context.Context, string, string) (store.MemoryCollection, error) {
			return store.MemoryCollection{ID: "mc_1", TenantID: "tn_1", CreatedBy: "u_2"}, nil
		},
	}
	svc := newTestService(fs)

	show := true
	_, err := svc.PatchCollection(context.Background(), "tn_1", "mc_1", Session{UserID: "u_2"}, PatchCollectionInput{
		ShowTitle: &show,
	})
	if codeOf(t, err) != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}
}

func TestPatchRejectsEmptyInput(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
		getCollectionFn: func(context.Context, string, string) (store.MemoryCollection, error) {
			return store.MemoryCollection{ID: "mc_1", TenantID: "tn_1"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.PatchCollection(context.Background(), "tn_1", "mc_1", Session{UserID: "u_1"}, PatchCollectionInput{})
	if codeOf(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestPatchClampsBlurStrength(t *testing.T) {
	var applied store.CollectionPatch
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
		getCollectionFn: func(context.Context, string, string) (store.MemoryCollection, error) {
			return store.MemoryCollection{ID: "mc_1", TenantID: "tn_1"}, nil
		},
		updateCollectionFn: func(_ context.Context, _, _ string, patch store.CollectionPatch) error {
			applied = patch
			return nil
		},
	}
	svc := newTestService(fs)

	blur := 250
	_, err := svc.PatchCollection(context.Background(), "tn_1", "mc_1", Session{UserID: "u_1"}, PatchCollectionInput{
		BlurStrength: &blur,
	})
	if err != nil {
		t.Fatalf("PatchCollection: %v", err)
	}
	if applied.BlurStrength == nil || *applied.BlurStrength != 100 {
		t.Fatalf("expected blur clamped to 100, got %v", applied.BlurStrength)
	}
}

func TestListCollectionsKeepsLapsedPrivateLockHiddenFromManager(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	private := store.MemoryCollection{
		ID:             "mc_1",
		TenantID:       "tn_1",
		Title:          "Secret",
		IsLocked:       true,
		LockVisibility: "private",
		UnlockType:     "scheduled",
		UnlockAt:       &yesterday,
	}
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
		listCollectionsFn: func(context.Context, string) ([]store.MemoryCollection, error) {
			return []store.MemoryCollection{private}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.ListCollections(context.Background(), "tn_1", "u_1", false)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	items := payload["collections"].([]map[string]any)
	if len(items) != 0 {
		t.Fatalf("lapsed schedule must not surface a private collection in the unlocked listing, got %v", items)
	}

	payload, err = svc.ListCollections(context.Background(), "tn_1", "u_1", true)
	if err != nil {
		t.Fatalf("ListCollections includeLocked: %v", err)
	}
	items = payload["collections"].([]map[string]any)
	if len(items) != 1 {
		t.Fatalf("expected one collection with includeLocked, got %v", items)
	}
	if items[0]["locked"] != true || items[0]["currentlyLocked"] != true {
		t.Fatalf("manager view must carry the stored flag and lock state, got %v", items[0])
	}
}

func TestCreateCollectionWithScheduleStartsLocked(t *testing.T) {
	var created store.MemoryCollection
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return participantMembership(tenantID, userID), nil
		},
		insertCollectionFn: func(_ context.Context, item store.MemoryCollection) error {
			created = item
			return nil
		},
	}
	svc := newTestService(fs)

	tomorrow := time.Now().Add(24 * time.Hour)
	_, err := svc.CreateCollection(context.Background(), "tn_1", Session{UserID: "u_2"}, CreateCollectionInput{
		Title:    "Trip",
		UnlockAt: &tomorrow,
	})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if !created.IsLocked {
		t.Fatal("a schedule supplied at creation must lock the collection")
	}
}

func TestCreateInviteRejectsUnknownRole(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateInvite(context.Background(), "tn_1", Session{UserID: "u_1"}, CreateInviteInput{
		Email: "avery@example.com",
		Role:  "owner",
	})
	if codeOf(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreateInviteDefaultsToParticipant(t *testing.T) {
	var created store.Invite
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, tenantID, userID string) (store.Membership, error) {
			return managerMembership(tenantID, userID), nil
		},
		createInviteFn: func(_ context.Context, invite store.Invite) error {
			created = invite
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateInvite(context.Background(), "tn_1", Session{UserID: "u_1"}, CreateInviteInput{
		Email: "avery@example.com",
	})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if created.Role != "participant" {
		t.Fatalf("unexpected role %q", created.Role)
	}
	if !created.CanUpload || created.CanEditOthers || created.CanManage {
		t.Fatalf("unexpected participant capabilities: %+v", created)
	}
}

func TestVerifyTenantPasswordWithoutPasswordIsValidationError(t *testing.T) {
	fs := &fakeStore{
		getTenantFn: func(context.Context, string) (store.Tenant, error) {
			return store.Tenant{ID: "tn_1"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.VerifyTenantPassword(context.Background(), "tn_1", "whatever")
	if codeOf(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
