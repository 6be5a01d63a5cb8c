package passkey

import (
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Harness drives an Authenticator against this package's in-memory fakes so
// tests outside the package can run real ceremonies end to end.
type Harness struct {
	auth     *Authenticator
	provider *fakeProvider
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()
	provider := &fakeProvider{}
	auth, _, _, _ := newTestAuthenticator(t, provider)
	return &Harness{auth: auth, provider: provider}
}

func (h *Harness) Authenticator() *Authenticator {
	return h.auth
}

// PresentKey makes the fake platform answer ceremonies with the credential
// identified by raw, standing in for the operator tapping that key.
func (h *Harness) PresentKey(raw []byte) {
	credential := &webauthn.Credential{ID: raw}
	h.provider.createCredential = credential
	h.provider.validateCredential = credential
}
