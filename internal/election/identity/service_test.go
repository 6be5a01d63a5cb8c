package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
)

type fakeUserStore struct {
	users map[string]domain.AuthorizedUser
}

func (f *fakeUserStore) PutUser(ctx context.Context, user domain.AuthorizedUser) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetUser(ctx context.Context, userID string) (domain.AuthorizedUser, error) {
	user, ok := f.users[userID]
	if !ok {
		return domain.AuthorizedUser{}, storage.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (domain.AuthorizedUser, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.AuthorizedUser{}, storage.ErrNotFound
}

func (f *fakeUserStore) ListUsers(ctx context.Context) ([]domain.AuthorizedUser, error) {
	var users []domain.AuthorizedUser
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeUserStore) DeleteUser(ctx context.Context, userID string) error {
	if _, ok := f.users[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(f.users, userID)
	return nil
}

func (f *fakeUserStore) ClearAssignedPin(ctx context.Context, pinID string) error {
	return nil
}

var testNow = time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:   "https://auth.school.test",
		Audience: "ballotbox",
		Secret:   []byte("test-secret"),
		Now:      func() time.Time { return testNow },
	}
}

func signToken(t *testing.T, cfg TokenConfig, mutate func(claims *sessionClaims)) string {
	t.Helper()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			Subject:   "subject-1",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(testNow),
		},
		Email: "Voter@School.test",
		Name:  "Pat Voter",
	}
	if mutate != nil {
		mutate(&claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestService() (*Service, *fakeUserStore) {
	users := &fakeUserStore{users: map[string]domain.AuthorizedUser{}}
	service := NewService(users, testTokenConfig())
	counter := 0
	service.idGenerator = func() (string, error) {
		counter++
		return string(rune('a'+counter-1)) + "-user", nil
	}
	return service, users
}

func TestResolveCreatesGuestOnFirstSignIn(t *testing.T) {
	t.Parallel()

	service, users := newTestService()
	token := signToken(t, testTokenConfig(), nil)

	user, capabilities, err := service.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user.Role != domain.RoleGuest {
		t.Fatalf("role = %v, want guest", user.Role)
	}
	if user.Email != "voter@school.test" {
		t.Fatalf("email = %q, want lowercased", user.Email)
	}
	if capabilities != (domain.Capabilities{}) {
		t.Fatalf("capabilities = %+v, want none", capabilities)
	}
	if len(users.users) != 1 {
		t.Fatalf("stored users = %d, want 1", len(users.users))
	}

	// A second sign-in resolves the same stored user.
	again, _, err := service.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("id = %q, want %q", again.ID, user.ID)
	}
}

func TestResolveReturnsPersistedRoleCapabilities(t *testing.T) {
	t.Parallel()

	service, users := newTestService()
	users.users["u1"] = domain.AuthorizedUser{ID: "u1", Email: "voter@school.test", Role: domain.RoleSuperadmin}

	_, capabilities, err := service.Resolve(context.Background(), signToken(t, testTokenConfig(), nil))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !capabilities.ManageSecurityKeys || !capabilities.AdminPanel {
		t.Fatalf("capabilities = %+v", capabilities)
	}
}

func TestResolveRejectsBadTokens(t *testing.T) {
	t.Parallel()

	service, _ := newTestService()

	cases := map[string]string{
		"empty": "",
		"expired": signToken(t, testTokenConfig(), func(claims *sessionClaims) {
			claims.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Minute))
		}),
		"wrong issuer": signToken(t, testTokenConfig(), func(claims *sessionClaims) {
			claims.Issuer = "https://elsewhere.test"
		}),
		"wrong audience": signToken(t, testTokenConfig(), func(claims *sessionClaims) {
			claims.Audience = jwt.ClaimStrings{"other"}
		}),
		"missing email": signToken(t, testTokenConfig(), func(claims *sessionClaims) {
			claims.Email = ""
		}),
	}
	wrongKey := testTokenConfig()
	wrongKey.Secret = []byte("other-secret")
	cases["bad signature"] = signToken(t, wrongKey, nil)

	for name, token := range cases {
		if _, _, err := service.Resolve(context.Background(), token); apperrors.GetCode(err) != apperrors.CodeTokenInvalid {
			t.Errorf("%s: code = %v, want TOKEN_INVALID", name, apperrors.GetCode(err))
		}
	}
}

func TestAddUserUpsertsByEmail(t *testing.T) {
	t.Parallel()

	service, _ := newTestService()
	ctx := context.Background()

	created, err := service.AddUser(ctx, "Helper@School.test", "Helper", domain.RoleCheckin)
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if created.Email != "helper@school.test" || created.Role != domain.RoleCheckin {
		t.Fatalf("created = %+v", created)
	}

	updated, err := service.AddUser(ctx, "helper@school.test", "Helper B", domain.RoleStaff)
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("id = %q, want %q", updated.ID, created.ID)
	}
	if updated.Role != domain.RoleStaff || updated.Name != "Helper B" {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestChangeRole(t *testing.T) {
	t.Parallel()

	service, users := newTestService()
	users.users["u1"] = domain.AuthorizedUser{ID: "u1", Email: "a@school.test", Role: domain.RoleGuest}

	changed, err := service.ChangeRole(context.Background(), "u1", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if changed.Role != domain.RoleAdmin {
		t.Fatalf("role = %v, want admin", changed.Role)
	}
	if _, err := service.ChangeRole(context.Background(), "missing", domain.RoleAdmin); apperrors.GetCode(err) != apperrors.CodeNotFound {
		t.Fatalf("code = %v, want NOT_FOUND", apperrors.GetCode(err))
	}
	if _, err := service.ChangeRole(context.Background(), "u1", domain.Role(99)); apperrors.GetCode(err) != apperrors.CodeRoleInvalid {
		t.Fatalf("code = %v, want ROLE_INVALID", apperrors.GetCode(err))
	}
}

func TestRemoveUser(t *testing.T) {
	t.Parallel()

	service, users := newTestService()
	users.users["u1"] = domain.AuthorizedUser{ID: "u1", Email: "a@school.test"}

	if err := service.RemoveUser(context.Background(), "u1"); err != nil {
		t.Fatalf("remove user: %v", err)
	}
	if err := service.RemoveUser(context.Background(), "u1"); apperrors.GetCode(err) != apperrors.CodeNotFound {
		t.Fatalf("code = %v, want NOT_FOUND", apperrors.GetCode(err))
	}
}
