package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, LOWER($3), $4, $5, NULLIF($6, ''), $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified, deactivated_at, created_at
		FROM users
		WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.DeactivatedAt, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified, deactivated_at, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.DeactivatedAt, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.is_email_verified
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// CreateTenantWithAdmin inserts a tenant and its owner's admin membership in
// one transaction; a tenant never exists without at least one manager.
func (s *PostgresStore) CreateTenantWithAdmin(ctx context.Context, tenant Tenant, displayName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tenant: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, invite_code, is_public, access_password_hash, owner_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tenant.ID, tenant.Name, tenant.Slug, tenant.InviteCode, tenant.IsPublic, tenant.AccessPasswordHash, tenant.OwnerUserID); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenant_memberships (tenant_id, user_id, role, can_upload, can_edit_others, can_manage, display_name)
		VALUES ($1, $2, 'admin', TRUE, TRUE, TRUE, $3)
	`, tenant.ID, tenant.OwnerUserID, displayName); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (Tenant, error) {
	var item Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, invite_code, is_public, access_password_hash, owner_user_id, created_at, updated_at
		FROM tenants
		WHERE id=$1
	`, tenantID).Scan(&item.ID, &item.Name, &item.Slug, &item.InviteCode, &item.IsPublic, &item.AccessPasswordHash, &item.OwnerUserID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Tenant{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTenantsFor(ctx context.Context, userID string) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.invite_code, t.is_public, t.access_password_hash, t.owner_user_id, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_memberships m ON m.tenant_id = t.id
		WHERE m.user_id=$1
		ORDER BY t.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	items := make([]Tenant, 0)
	for rows.Next() {
		var item Tenant
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.InviteCode, &item.IsPublic, &item.AccessPasswordHash, &item.OwnerUserID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTenantAccess(ctx context.Context, tenantID string, isPublic bool, accessPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET is_public=$2, access_password_hash=$3, updated_at=NOW()
		WHERE id=$1
	`, tenantID, isPublic, accessPasswordHash)
	if err != nil {
		return fmt.Errorf("update tenant access: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, tenantID, userID string) (Membership, error) {
	var item Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, user_id, role, can_upload, can_edit_others, can_manage, display_name, joined_at, last_active_at
		FROM tenant_memberships
		WHERE tenant_id=$1 AND user_id=$2
	`, tenantID, userID).Scan(&item.TenantID, &item.UserID, &item.Role, &item.CanUpload, &item.CanEditOthers, &item.CanManage, &item.DisplayName, &item.JoinedAt, &item.LastActiveAt)
	if err != nil {
		return Membership{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, tenantID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, user_id, role, can_upload, can_edit_others, can_manage, display_name, joined_at, last_active_at
		FROM tenant_memberships
		WHERE tenant_id=$1
		ORDER BY joined_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Membership, 0)
	for rows.Next() {
		var item Membership
		if err := rows.Scan(&item.TenantID, &item.UserID, &item.Role, &item.CanUpload, &item.CanEditOthers, &item.CanManage, &item.DisplayName, &item.JoinedAt, &item.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TouchMemberActivity(ctx context.Context, tenantID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenant_memberships SET last_active_at=NOW()
		WHERE tenant_id=$1 AND user_id=$2
	`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("touch member activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateInvite(ctx context.Context, invite Invite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_invites (id, tenant_id, email, token, role, can_upload, can_edit_others, can_manage, status, expires_at, invited_by)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8, 'pending', $9, $10)
	`, invite.ID, invite.TenantID, invite.Email, invite.Token, invite.Role, invite.CanUpload, invite.CanEditOthers, invite.CanManage, invite.ExpiresAt, invite.InvitedBy)
	if err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInviteByToken(ctx context.Context, token string) (Invite, error) {
	var item Invite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, token, role, can_upload, can_edit_others, can_manage, status, expires_at, invited_by, accepted_at, created_at
		FROM tenant_invites
		WHERE token=$1
	`, token).Scan(&item.ID, &item.TenantID, &item.Email, &item.Token, &item.Role, &item.CanUpload, &item.CanEditOthers, &item.CanManage, &item.Status, &item.ExpiresAt, &item.InvitedBy, &item.AcceptedAt, &item.CreatedAt)
	if err != nil {
		return Invite{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context, tenantID string) ([]Invite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, email, token, role, can_upload, can_edit_others, can_manage, status, expires_at, invited_by, accepted_at, created_at
		FROM tenant_invites
		WHERE tenant_id=$1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	items := make([]Invite, 0)
	for rows.Next() {
		var item Invite
		if err := rows.Scan(&item.ID, &item.TenantID, &item.Email, &item.Token, &item.Role, &item.CanUpload, &item.CanEditOthers, &item.CanManage, &item.Status, &item.ExpiresAt, &item.InvitedBy, &item.AcceptedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return items, nil
}

// AcceptInvite consumes a pending invite and grants the membership in one
// transaction. The status guard on the UPDATE makes acceptance first-wins:
// a second concurrent accept matches zero rows and the whole call reports
// not-consumed without touching memberships.
func (s *PostgresStore) AcceptInvite(ctx context.Context, inviteID, userID, displayName string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin accept invite: %w", err)
	}
	defer tx.Rollback()

	var invite Invite
	err = tx.QueryRowContext(ctx, `
		UPDATE tenant_invites
		SET status='accepted', accepted_at=NOW()
		WHERE id=$1 AND status='pending'
		RETURNING tenant_id, role, can_upload, can_edit_others, can_manage
	`, inviteID).Scan(&invite.TenantID, &invite.Role, &invite.CanUpload, &invite.CanEditOthers, &invite.CanManage)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume invite: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenant_memberships (tenant_id, user_id, role, can_upload, can_edit_others, can_manage, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`, invite.TenantID, userID, invite.Role, invite.CanUpload, invite.CanEditOthers, invite.CanManage, displayName); err != nil {
		return false, fmt.Errorf("insert invited membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit accept invite: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) MarkInviteExpired(ctx context.Context, inviteID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenant_invites SET status='expired'
		WHERE id=$1 AND status='pending'
	`, inviteID)
	if err != nil {
		return fmt.Errorf("mark invite expired: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeInvite(ctx context.Context, tenantID, inviteID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tenant_invites SET status='revoked'
		WHERE tenant_id=$1 AND id=$2 AND status='pending'
	`, tenantID, inviteID)
	if err != nil {
		return false, fmt.Errorf("revoke invite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke invite rows: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
