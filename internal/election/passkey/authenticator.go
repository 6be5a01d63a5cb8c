// Package passkey wraps the hardware security-key ceremonies behind the
// election credential registry. The browser performs the platform half of
// each ceremony; this package issues challenges, validates responses, and
// keeps every failure kind distinct.
package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
	"github.com/openschool/ballotbox/internal/platform/id"
)

// Distinct ceremony failure kinds. Callers must be able to tell a timeout
// from a cancellation from a credential that simply is not registered.
var (
	ErrTimeout                  = apperrors.New(apperrors.CodeVerificationTimeout, "security key ceremony timed out")
	ErrCancelled                = apperrors.New(apperrors.CodeVerificationCancelled, "security key ceremony is no longer active")
	ErrUnknownCredential        = apperrors.New(apperrors.CodeUnknownCredential, "no matching registered security key")
	ErrRegistrationUnauthorized = apperrors.New(apperrors.CodeRegistrationUnauthorized, "only a superadmin may register security keys")
)

type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Authenticator drives security-key registration and authentication against
// the credential registry.
type Authenticator struct {
	users       storage.UserStore
	credentials storage.CredentialStore
	ceremonies  storage.CeremonyStore
	config      Config
	webAuthn    provider
	initErr     error
	parser      parser
	clock       func() time.Time
	idGenerator func() (string, error)
}

// New builds an Authenticator with relying-party settings from the
// environment.
func New(users storage.UserStore, credentials storage.CredentialStore, ceremonies storage.CeremonyStore) *Authenticator {
	config := LoadConfigFromEnv()
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: config.RPDisplayName,
		RPID:          config.RPID,
		RPOrigins:     config.RPOrigins,
	})
	return &Authenticator{
		users:       users,
		credentials: credentials,
		ceremonies:  ceremonies,
		config:      config,
		webAuthn:    webAuthn,
		initErr:     err,
		parser:      defaultParser{},
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// Challenge is the issued half of a ceremony: the id the client must present
// on finish and the options JSON to hand to the platform API.
type Challenge struct {
	CeremonyID  string
	OptionsJSON []byte
}

// AuthResult identifies the credential that satisfied an authentication
// ceremony.
type AuthResult struct {
	CredentialID string
	Purpose      domain.Purpose
}

func (a *Authenticator) ready() error {
	if a == nil {
		return fmt.Errorf("authenticator is not configured")
	}
	if a.users == nil || a.credentials == nil || a.ceremonies == nil {
		return fmt.Errorf("authenticator stores are not configured")
	}
	if a.initErr != nil || a.webAuthn == nil {
		return fmt.Errorf("webauthn configuration is not available: %w", a.initErr)
	}
	return nil
}

// BeginRegistration starts a registration ceremony for a new security key.
// Only a superadmin may register keys; the key purpose is inferred from its
// name.
func (a *Authenticator) BeginRegistration(ctx context.Context, actorID, keyName string) (Challenge, error) {
	if err := a.ready(); err != nil {
		return Challenge{}, err
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Challenge{}, fmt.Errorf("actor id is required")
	}
	keyName = strings.TrimSpace(keyName)
	if keyName == "" {
		return Challenge{}, fmt.Errorf("key name is required")
	}

	actor, err := a.users.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Challenge{}, ErrRegistrationUnauthorized
		}
		return Challenge{}, fmt.Errorf("load actor: %w", err)
	}
	if actor.Role != domain.RoleSuperadmin {
		return Challenge{}, ErrRegistrationUnauthorized
	}

	holder, err := a.loadKeyHolder(ctx, actor)
	if err != nil {
		return Challenge{}, fmt.Errorf("load key holder: %w", err)
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementRequired,
			UserVerification: protocol.VerificationRequired,
		}),
		webauthn.WithCredentialParameters([]protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: -7},   // ES256
			{Type: protocol.PublicKeyCredentialType, Algorithm: -257}, // RS256
		}),
	}
	if len(holder.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(holder.credentials).CredentialDescriptors()))
	}

	creation, session, err := a.webAuthn.BeginRegistration(holder, options...)
	if err != nil {
		return Challenge{}, fmt.Errorf("begin registration: %w", err)
	}

	return a.storeCeremony(ctx, storage.Ceremony{
		Kind:    storage.CeremonyKindRegistration,
		UserID:  actor.ID,
		KeyName: keyName,
		Purpose: domain.PurposeForKeyName(keyName),
	}, creation, session)
}

// FinishRegistration validates the attestation response and persists the new
// credential.
func (a *Authenticator) FinishRegistration(ctx context.Context, ceremonyID string, responseJSON []byte) (domain.SecurityKeyCredential, error) {
	if err := a.ready(); err != nil {
		return domain.SecurityKeyCredential{}, err
	}

	ceremony, session, err := a.loadCeremony(ctx, ceremonyID, storage.CeremonyKindRegistration)
	if err != nil {
		return domain.SecurityKeyCredential{}, err
	}

	holderUser, err := a.users.GetUser(ctx, ceremony.UserID)
	if err != nil {
		return domain.SecurityKeyCredential{}, fmt.Errorf("load registering user: %w", err)
	}
	holder, err := a.loadKeyHolder(ctx, holderUser)
	if err != nil {
		return domain.SecurityKeyCredential{}, fmt.Errorf("load key holder: %w", err)
	}

	parsed, err := a.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return domain.SecurityKeyCredential{}, apperrors.Wrap(apperrors.CodeCeremonyResponseMalformed, "parse credential response", err)
	}
	credential, err := a.webAuthn.CreateCredential(holder, session, parsed)
	if err != nil {
		return domain.SecurityKeyCredential{}, fmt.Errorf("validate credential response: %w", err)
	}

	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return domain.SecurityKeyCredential{}, fmt.Errorf("encode credential: %w", err)
	}
	record := domain.SecurityKeyCredential{
		CredentialID:   encodeCredentialID(credential.ID),
		UserID:         ceremony.UserID,
		Name:           ceremony.KeyName,
		Purpose:        ceremony.Purpose,
		CredentialJSON: string(credentialJSON),
		CreatedAt:      a.clock().UTC(),
	}
	if err := a.credentials.PutCredential(ctx, record); err != nil {
		return domain.SecurityKeyCredential{}, fmt.Errorf("store credential: %w", err)
	}
	_ = a.ceremonies.DeleteCeremony(ctx, ceremony.ID)

	return record, nil
}

// BeginAuthentication starts a discoverable assertion ceremony scoped to a
// purpose. A fresh challenge is generated for every call; challenges are
// never reused.
func (a *Authenticator) BeginAuthentication(ctx context.Context, purpose domain.Purpose) (Challenge, error) {
	if err := a.ready(); err != nil {
		return Challenge{}, err
	}

	assertion, session, err := a.webAuthn.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationRequired),
	)
	if err != nil {
		return Challenge{}, fmt.Errorf("begin authentication: %w", err)
	}

	return a.storeCeremony(ctx, storage.Ceremony{
		Kind:    storage.CeremonyKindAuthentication,
		Purpose: purpose,
	}, assertion, session)
}

// FinishAuthentication validates the assertion response and resolves the
// presented credential against the registry, honoring the ceremony's
// purpose. A credential registered for a different purpose is reported as
// unknown.
func (a *Authenticator) FinishAuthentication(ctx context.Context, ceremonyID string, responseJSON []byte) (AuthResult, error) {
	if err := a.ready(); err != nil {
		return AuthResult{}, err
	}

	ceremony, session, err := a.loadCeremony(ctx, ceremonyID, storage.CeremonyKindAuthentication)
	if err != nil {
		return AuthResult{}, err
	}

	parsed, err := a.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return AuthResult{}, apperrors.Wrap(apperrors.CodeCeremonyResponseMalformed, "parse assertion response", err)
	}

	_, credential, err := a.webAuthn.ValidatePasskeyLogin(a.keyHolderHandler(ctx), session, parsed)
	if err != nil {
		return AuthResult{}, fmt.Errorf("validate assertion: %w", err)
	}

	credentialID := encodeCredentialID(credential.ID)
	stored, err := a.credentials.GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return AuthResult{}, ErrUnknownCredential
		}
		return AuthResult{}, fmt.Errorf("load credential: %w", err)
	}
	if stored.Removed {
		return AuthResult{}, ErrUnknownCredential
	}
	if !stored.Purpose.Satisfies(ceremony.Purpose) {
		return AuthResult{}, ErrUnknownCredential
	}

	_ = a.ceremonies.DeleteCeremony(ctx, ceremony.ID)

	return AuthResult{CredentialID: credentialID, Purpose: stored.Purpose}, nil
}

// Cancel abandons an in-flight ceremony. A finish arriving after Cancel
// finds no ceremony and is refused, so a stale success can never mark the
// device verified.
func (a *Authenticator) Cancel(ctx context.Context, ceremonyID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	ceremonyID = strings.TrimSpace(ceremonyID)
	if ceremonyID == "" {
		return fmt.Errorf("ceremony id is required")
	}
	return a.ceremonies.DeleteCeremony(ctx, ceremonyID)
}

// Remove soft-deletes a registered credential.
func (a *Authenticator) Remove(ctx context.Context, credentialID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.credentials.MarkCredentialRemoved(ctx, credentialID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "security key not found")
		}
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

func (a *Authenticator) storeCeremony(ctx context.Context, ceremony storage.Ceremony, options any, session *webauthn.SessionData) (Challenge, error) {
	if session == nil {
		return Challenge{}, fmt.Errorf("session data is required")
	}
	ceremonyID, err := a.idGenerator()
	if err != nil {
		return Challenge{}, fmt.Errorf("create ceremony id: %w", err)
	}
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return Challenge{}, fmt.Errorf("encode ceremony session: %w", err)
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return Challenge{}, fmt.Errorf("encode ceremony options: %w", err)
	}

	ceremony.ID = ceremonyID
	ceremony.SessionJSON = string(sessionJSON)
	ceremony.ExpiresAt = a.clock().UTC().Add(a.config.CeremonyTimeout)
	if err := a.ceremonies.PutCeremony(ctx, ceremony); err != nil {
		return Challenge{}, fmt.Errorf("store ceremony: %w", err)
	}

	return Challenge{CeremonyID: ceremonyID, OptionsJSON: optionsJSON}, nil
}

func (a *Authenticator) loadCeremony(ctx context.Context, ceremonyID string, expectedKind storage.CeremonyKind) (storage.Ceremony, webauthn.SessionData, error) {
	ceremonyID = strings.TrimSpace(ceremonyID)
	if ceremonyID == "" {
		return storage.Ceremony{}, webauthn.SessionData{}, fmt.Errorf("ceremony id is required")
	}

	stored, err := a.ceremonies.GetCeremony(ctx, ceremonyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Cancelled, already consumed, or never issued. Either way the
			// ceremony is not the active one and its result must be
			// discarded.
			return storage.Ceremony{}, webauthn.SessionData{}, ErrCancelled
		}
		return storage.Ceremony{}, webauthn.SessionData{}, fmt.Errorf("load ceremony: %w", err)
	}
	if stored.Kind != expectedKind {
		return storage.Ceremony{}, webauthn.SessionData{}, fmt.Errorf("ceremony kind mismatch")
	}
	if stored.ExpiresAt.Before(a.clock().UTC()) {
		_ = a.ceremonies.DeleteCeremony(ctx, ceremonyID)
		return storage.Ceremony{}, webauthn.SessionData{}, ErrTimeout
	}

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(stored.SessionJSON), &session); err != nil {
		return storage.Ceremony{}, webauthn.SessionData{}, fmt.Errorf("decode ceremony session: %w", err)
	}
	return stored, session, nil
}

// keyHolder adapts an authorized user and their stored credentials to the
// webauthn.User contract.
type keyHolder struct {
	user        domain.AuthorizedUser
	credentials []webauthn.Credential
}

func (h *keyHolder) WebAuthnID() []byte {
	return []byte(h.user.ID)
}

func (h *keyHolder) WebAuthnName() string {
	return h.user.Email
}

func (h *keyHolder) WebAuthnDisplayName() string {
	if h.user.Name != "" {
		return h.user.Name
	}
	return h.user.Email
}

func (h *keyHolder) WebAuthnIcon() string {
	return ""
}

func (h *keyHolder) WebAuthnCredentials() []webauthn.Credential {
	return h.credentials
}

func (a *Authenticator) loadKeyHolder(ctx context.Context, user domain.AuthorizedUser) (*keyHolder, error) {
	records, err := a.credentials.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	var credentials []webauthn.Credential
	for _, record := range records {
		if record.UserID != user.ID {
			continue
		}
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return &keyHolder{user: user, credentials: credentials}, nil
}

func (a *Authenticator) keyHolderHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		userID := strings.TrimSpace(string(userHandle))
		if userID == "" {
			return nil, fmt.Errorf("user handle is required")
		}
		user, err := a.users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return a.loadKeyHolder(ctx, user)
	}
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
