package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
	"github.com/openschool/ballotbox/internal/platform/id"
)

// Service maps authenticated subjects to authorized users and manages the
// user registry.
type Service struct {
	users       storage.UserStore
	config      TokenConfig
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds an identity service with the given token configuration.
func NewService(users storage.UserStore, config TokenConfig) *Service {
	return &Service{
		users:       users,
		config:      config,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

func (s *Service) ready() error {
	if s == nil || s.users == nil {
		return fmt.Errorf("identity storage is not configured")
	}
	return nil
}

// Resolve verifies a session token and returns the authorized user behind
// it, along with the capabilities their persisted role grants. A subject
// signing in for the first time is created as a guest.
func (s *Service) Resolve(ctx context.Context, token string) (domain.AuthorizedUser, domain.Capabilities, error) {
	if err := s.ready(); err != nil {
		return domain.AuthorizedUser{}, domain.Capabilities{}, err
	}

	claims, err := ValidateSessionToken(token, s.config)
	if err != nil {
		return domain.AuthorizedUser{}, domain.Capabilities{}, err
	}

	user, err := s.users.GetUserByEmail(ctx, claims.Email)
	if errors.Is(err, storage.ErrNotFound) {
		user, err = s.createGuest(ctx, claims)
	}
	if err != nil {
		return domain.AuthorizedUser{}, domain.Capabilities{}, fmt.Errorf("resolve user: %w", err)
	}
	return user, domain.CapabilitiesForRole(user.Role), nil
}

func (s *Service) createGuest(ctx context.Context, claims TokenClaims) (domain.AuthorizedUser, error) {
	userID, err := s.idGenerator()
	if err != nil {
		return domain.AuthorizedUser{}, fmt.Errorf("create user id: %w", err)
	}
	user := domain.AuthorizedUser{
		ID:    userID,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  domain.RoleGuest,
	}
	if err := s.users.PutUser(ctx, user); err != nil {
		return domain.AuthorizedUser{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

// AddUser creates or updates the registry entry for an email address.
// Concurrent admin edits resolve last-write-wins.
func (s *Service) AddUser(ctx context.Context, email, name string, role domain.Role) (domain.AuthorizedUser, error) {
	if err := s.ready(); err != nil {
		return domain.AuthorizedUser{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.AuthorizedUser{}, fmt.Errorf("email is required")
	}
	if !role.Valid() {
		return domain.AuthorizedUser{}, apperrors.New(apperrors.CodeRoleInvalid, "unknown role")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		userID, idErr := s.idGenerator()
		if idErr != nil {
			return domain.AuthorizedUser{}, fmt.Errorf("create user id: %w", idErr)
		}
		user = domain.AuthorizedUser{ID: userID, Email: email}
	} else if err != nil {
		return domain.AuthorizedUser{}, fmt.Errorf("load user: %w", err)
	}

	user.Name = strings.TrimSpace(name)
	user.Role = role
	if err := s.users.PutUser(ctx, user); err != nil {
		return domain.AuthorizedUser{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

// RemoveUser deletes a registry entry.
func (s *Service) RemoveUser(ctx context.Context, userID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "user not found")
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ChangeRole replaces a user's role. Escalations to privileged roles are
// expected to arrive through the sensitive-action gate.
func (s *Service) ChangeRole(ctx context.Context, userID string, role domain.Role) (domain.AuthorizedUser, error) {
	if err := s.ready(); err != nil {
		return domain.AuthorizedUser{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.AuthorizedUser{}, fmt.Errorf("user id is required")
	}
	if !role.Valid() {
		return domain.AuthorizedUser{}, apperrors.New(apperrors.CodeRoleInvalid, "unknown role")
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.AuthorizedUser{}, apperrors.New(apperrors.CodeNotFound, "user not found")
		}
		return domain.AuthorizedUser{}, fmt.Errorf("load user: %w", err)
	}
	user.Role = role
	if err := s.users.PutUser(ctx, user); err != nil {
		return domain.AuthorizedUser{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

// ListUsers returns every registry entry.
func (s *Service) ListUsers(ctx context.Context) ([]domain.AuthorizedUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
