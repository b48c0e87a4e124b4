package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"locket/api/internal/store"
)

type fakeUserStore struct {
	usersByEmail map[string]store.User
	usersByID    map[string]store.User
	resets       map[string]string
	resetUsed    map[string]bool
	verified     map[string]bool
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		usersByEmail: make(map[string]store.User),
		usersByID:    make(map[string]store.User),
		resets:       make(map[string]string),
		resetUsed:    make(map[string]bool),
		verified:     make(map[string]bool),
	}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := f.usersByEmail[email]
	if !ok {
		return store.User{}, errors.New("not found")
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := f.usersByID[id]
	if !ok {
		return store.User{}, errors.New("not found")
	}
	return user, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.usersByEmail[user.Email] = user
	f.usersByID[user.ID] = user
	return nil
}

func (f *fakeUserStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	user := f.usersByID[userID]
	user.VerificationToken = token
	f.usersByID[userID] = user
	f.usersByEmail[user.Email] = user
	return nil
}

func (f *fakeUserStore) VerifyUserEmail(_ context.Context, token string) error {
	for id, user := range f.usersByID {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			f.usersByID[id] = user
			f.usersByEmail[user.Email] = user
			f.verified[id] = true
			return nil
		}
	}
	return errors.New("token not found")
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user, ok := f.usersByID[userID]
	if !ok {
		return errors.New("not found")
	}
	user.PasswordHash = passwordHash
	f.usersByID[userID] = user
	f.usersByEmail[user.Email] = user
	return nil
}

func (f *fakeUserStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.resets[token] = userID
	return nil
}

func (f *fakeUserStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	userID, ok := f.resets[token]
	if !ok || f.resetUsed[token] {
		return "", errors.New("not found")
	}
	return userID, nil
}

func (f *fakeUserStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.resetUsed[token] = true
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "avery@example.com",
		Password:    "correct-horse",
		DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !resp.RequiresEmailVerify || resp.VerificationToken == "" {
		t.Fatalf("sign-up should require verification, got %+v", resp)
	}

	// Before verification, sign-in reports the pending state.
	signIn, err := svc.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if !signIn.RequiresVerify {
		t.Fatalf("unverified account should require verification")
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	signIn, err = svc.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() after verify error = %v", err)
	}
	if signIn.RequiresVerify {
		t.Fatalf("verified account should sign in directly")
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	if _, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "a@example.com",
		Password:    "short",
		DisplayName: "A",
	}); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "A"}); err != nil {
		t.Fatalf("first SignUp() error = %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "B"}); err == nil {
		t.Fatal("expected error for duplicate email")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "A"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "wrong-password"}); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "longenough", DisplayName: "A"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for an existing account")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "brand-new-pass"}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "brand-new-pass"}); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}

	// Token is single use.
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "another-pass"}); err == nil {
		t.Fatal("expected error reusing a reset token")
	}
}

func TestResetUnknownEmailRevealsNothing(t *testing.T) {
	svc := NewService(newFakeUserStore())
	token, err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token != "" {
		t.Fatal("unknown email must not yield a reset token")
	}
}

func TestAccessPasswordHashing(t *testing.T) {
	hash, err := HashAccessPassword("our-little-secret")
	if err != nil {
		t.Fatalf("HashAccessPassword() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("our-little-secret")); err != nil {
		t.Fatalf("stored hash should verify: %v", err)
	}
	if !CheckAccessPassword(hash, "our-little-secret") {
		t.Fatal("CheckAccessPassword should accept the right password")
	}
	if CheckAccessPassword(hash, "wrong") {
		t.Fatal("CheckAccessPassword should reject a wrong password")
	}
}
