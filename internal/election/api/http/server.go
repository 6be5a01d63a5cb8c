package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openschool/ballotbox/internal/election/checkin"
	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/gate"
	"github.com/openschool/ballotbox/internal/election/identity"
	"github.com/openschool/ballotbox/internal/election/kiosk"
	"github.com/openschool/ballotbox/internal/election/passkey"
	"github.com/openschool/ballotbox/internal/election/pinaccess"
	"github.com/openschool/ballotbox/internal/election/results"
	"github.com/openschool/ballotbox/internal/election/storage"
	"github.com/openschool/ballotbox/internal/election/verification"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
	"github.com/openschool/ballotbox/internal/platform/id"
	"github.com/openschool/ballotbox/internal/telemetry"
)

// Handler wires every election service into one JSON API.
type Handler struct {
	identity        *identity.Service
	passkeys        *passkey.Authenticator
	pins            *pinaccess.Registry
	checkin         *checkin.Service
	results         *results.Service
	kiosks          *kiosk.Manager
	credentials     storage.CredentialStore
	positions       storage.PositionStore
	candidates      storage.CandidateStore
	audit           *telemetry.Emitter
	verificationTTL time.Duration
	idGenerator     func() (string, error)
	gateAuth        gate.Authenticator

	mu       sync.Mutex
	sessions map[string]*operatorSession
}

// operatorSession carries the per-operator verification state and gate. One
// session per authorized user; the gate holds at most one pending action.
type operatorSession struct {
	verification *verification.Store
	gate         *gate.Gate
}

// idle reports whether the session carries no live grant and no outstanding
// action, making it safe to rebuild from scratch on the next request.
func (s *operatorSession) idle() bool {
	if s.verification.TimeRemaining() > 0 {
		return false
	}
	_, pending := s.gate.Pending()
	return !pending
}

// Deps bundles the collaborators the handler needs.
type Deps struct {
	Identity        *identity.Service
	Passkeys        *passkey.Authenticator
	Pins            *pinaccess.Registry
	Checkin         *checkin.Service
	Results         *results.Service
	Kiosks          *kiosk.Manager
	Credentials     storage.CredentialStore
	Positions       storage.PositionStore
	Candidates      storage.CandidateStore
	Audit           *telemetry.Emitter
	VerificationTTL time.Duration
	IDGenerator     func() (string, error)
	// GateAuthenticator overrides the ceremony driver behind the gate.
	// Defaults to Passkeys.
	GateAuthenticator gate.Authenticator
}

// New builds the API handler.
func New(deps Deps) *Handler {
	gateAuth := deps.GateAuthenticator
	if gateAuth == nil {
		gateAuth = deps.Passkeys
	}
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return &Handler{
		identity:        deps.Identity,
		passkeys:        deps.Passkeys,
		pins:            deps.Pins,
		checkin:         deps.Checkin,
		results:         deps.Results,
		kiosks:          deps.Kiosks,
		credentials:     deps.Credentials,
		positions:       deps.Positions,
		candidates:      deps.Candidates,
		audit:           deps.Audit,
		verificationTTL: deps.VerificationTTL,
		idGenerator:     idGenerator,
		gateAuth:        gateAuth,
		sessions:        map[string]*operatorSession{},
	}
}

// session returns the operator session for a user, creating it on first use.
// Sessions with nothing left to hold onto are evicted on the way through so
// the map stays bounded by the set of operators mid-verification.
func (h *Handler) session(userID string) *operatorSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, other := range h.sessions {
		if id == userID {
			continue
		}
		if other.idle() {
			delete(h.sessions, id)
		}
	}
	session, ok := h.sessions[userID]
	if !ok {
		store := verification.NewStore(h.verificationTTL)
		session = &operatorSession{
			verification: store,
			gate:         gate.New(store, h.gateAuth, h.pins, h.identity, h.results, h.passkeys, h.audit),
		}
		h.sessions[userID] = session
	}
	return session
}

// principal is the resolved caller of an authenticated route.
type principal struct {
	user         domain.AuthorizedUser
	capabilities domain.Capabilities
}

func (h *Handler) authenticate(r *http.Request) (principal, error) {
	header := ""
	if r != nil {
		header = r.Header.Get("Authorization")
	}
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return principal{}, apperrors.New(apperrors.CodeTokenInvalid, "bearer token is required")
	}
	user, capabilities, err := h.identity.Resolve(r.Context(), token)
	if err != nil {
		return principal{}, err
	}
	return principal{user: user, capabilities: capabilities}, nil
}

// authed wraps a handler with bearer authentication and a capability check.
func (h *Handler) authed(allow func(domain.Capabilities) bool, fn func(http.ResponseWriter, *http.Request, principal)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.authenticate(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		if allow != nil && !allow(caller.capabilities) {
			WriteError(w, apperrors.New(apperrors.CodeForbidden, "role does not grant access to this surface"))
			return
		}
		fn(w, r, caller)
	})
}

func adminPanel(c domain.Capabilities) bool { return c.AdminPanel }

func checkInStation(c domain.Capabilities) bool { return c.CheckIn }

func securityKeyAdmin(c domain.Capabilities) bool { return c.ManageSecurityKeys }

func anyAuthenticated(domain.Capabilities) bool { return true }

// Routes builds the full route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	get := RequireMethod(http.MethodGet)
	post := RequireMethod(http.MethodPost)

	mux.Handle("/healthz", Chain(http.HandlerFunc(h.handleHealth), get))

	// Security keys.
	mux.Handle("/api/keys", Chain(h.authed(securityKeyAdmin, h.handleListKeys), get))
	mux.Handle("/api/keys/register/begin", Chain(h.authed(securityKeyAdmin, h.handleRegisterBegin), post))
	mux.Handle("/api/keys/register/finish", Chain(h.authed(securityKeyAdmin, h.handleRegisterFinish), post))
	mux.Handle("/api/keys/remove", Chain(h.authed(securityKeyAdmin, h.handleRemoveKey), post))

	// Sensitive-action gate.
	mux.Handle("/api/gate/begin", Chain(h.authed(adminPanel, h.handleGateBegin), post))
	mux.Handle("/api/gate/verify", Chain(h.authed(adminPanel, h.handleGateVerify), post))
	mux.Handle("/api/gate/retry", Chain(h.authed(adminPanel, h.handleGateRetry), post))
	mux.Handle("/api/gate/cancel", Chain(h.authed(adminPanel, h.handleGateCancel), post))
	mux.Handle("/api/verification", Chain(h.authed(adminPanel, h.handleVerificationState), get))

	// Admin data.
	mux.Handle("/api/me", Chain(h.authed(anyAuthenticated, h.handleMe), get))
	mux.Handle("/api/pins", Chain(h.authed(adminPanel, h.handleListPins), get))
	mux.Handle("/api/pins/assign", Chain(h.authed(adminPanel, h.handleAssignPin), post))
	mux.Handle("/api/users", Chain(h.authed(adminPanel, h.handleListUsers), get))
	mux.Handle("/api/positions", Chain(h.method(http.MethodGet, h.authed(anyAuthenticated, h.handleListPositions), http.MethodPost, h.authed(adminPanel, h.handleAddPosition))))
	mux.Handle("/api/positions/remove", Chain(h.authed(adminPanel, h.handleRemovePosition), post))
	mux.Handle("/api/candidates", Chain(h.method(http.MethodGet, h.authed(anyAuthenticated, h.handleListCandidates), http.MethodPost, h.authed(adminPanel, h.handleAddCandidate))))
	mux.Handle("/api/candidates/remove", Chain(h.authed(adminPanel, h.handleRemoveCandidate), post))
	mux.Handle("/api/settings", Chain(h.authed(adminPanel, h.handleSettings), get))
	mux.Handle("/api/settings/results-public", Chain(h.authed(adminPanel, h.handleSetResultsPublic), post))

	// Check-in station.
	mux.Handle("/api/students", Chain(h.method(http.MethodGet, h.authed(checkInStation, h.handleListStudents), http.MethodPost, h.authed(adminPanel, h.handleAddStudent))))
	mux.Handle("/api/students/remove", Chain(h.authed(adminPanel, h.handleRemoveStudent), post))
	mux.Handle("/api/checkin", Chain(h.authed(checkInStation, h.handleCheckIn), post))
	mux.Handle("/api/checkin/undo", Chain(h.authed(checkInStation, h.handleCheckInUndo), post))

	// Voting kiosk. The PIN is the credential; no bearer token is required.
	mux.Handle("/api/kiosk/unlock", Chain(http.HandlerFunc(h.handleKioskUnlock), post))
	mux.Handle("/api/kiosk/ballot", Chain(http.HandlerFunc(h.handleKioskBallot), get))
	mux.Handle("/api/kiosk/select", Chain(http.HandlerFunc(h.handleKioskSelect), post))
	mux.Handle("/api/kiosk/submit", Chain(http.HandlerFunc(h.handleKioskSubmit), post))
	mux.Handle("/api/kiosk/state", Chain(http.HandlerFunc(h.handleKioskState), get))

	// Results.
	mux.Handle("/api/results", Chain(http.HandlerFunc(h.handleResults), get))

	return Chain(mux, RequestID(), RecoverPanic())
}

// method dispatches two handlers by HTTP method on one path.
func (h *Handler) method(getMethod string, getHandler http.Handler, postMethod string, postHandler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case getMethod:
			getHandler.ServeHTTP(w, r)
		case postMethod:
			postHandler.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", getMethod+", "+postMethod)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMe(w http.ResponseWriter, _ *http.Request, caller principal) {
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"user":         userBody(caller.user),
		"capabilities": capabilitiesBody(caller.capabilities),
	})
}

func userBody(user domain.AuthorizedUser) map[string]any {
	return map[string]any{
		"id":              user.ID,
		"email":           user.Email,
		"name":            user.Name,
		"role":            user.Role.String(),
		"assigned_pin_id": user.AssignedPinID,
	}
}

func capabilitiesBody(c domain.Capabilities) map[string]bool {
	return map[string]bool{
		"admin_panel":          c.AdminPanel,
		"check_in":             c.CheckIn,
		"voting":               c.Voting,
		"manage_security_keys": c.ManageSecurityKeys,
	}
}
