package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "election.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestPinRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	pin := domain.PinAccess{ID: "pin-1", Name: "Library kiosk", PIN: "4821", Active: true, CreatedAt: now}
	if err := store.PutPin(context.Background(), pin); err != nil {
		t.Fatalf("put pin: %v", err)
	}

	got, err := store.GetPin(context.Background(), "pin-1")
	if err != nil {
		t.Fatalf("get pin: %v", err)
	}
	if got.Name != pin.Name {
		t.Fatalf("name = %q, want %q", got.Name, pin.Name)
	}
	if got.PIN != pin.PIN {
		t.Fatalf("pin = %q, want %q", got.PIN, pin.PIN)
	}
	if !got.Active {
		t.Fatal("pin should be active")
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}
}

func TestGetPinNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.GetPin(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeletePinReportsMissing(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.DeletePin(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClearAssignedPinCascades(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	user := domain.AuthorizedUser{
		ID:            "user-1",
		Email:         "poll@school.test",
		Role:          domain.RoleCheckin,
		AssignedPinID: "pin-1",
		CreatedAt:     now,
	}
	if err := store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}

	if err := store.ClearAssignedPin(context.Background(), "pin-1"); err != nil {
		t.Fatalf("clear assigned pin: %v", err)
	}

	got, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.AssignedPinID != "" {
		t.Fatalf("assigned pin id = %q, want empty", got.AssignedPinID)
	}
}

func TestUserRoleRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	user := domain.AuthorizedUser{ID: "user-2", Email: "Head@School.Test", Role: domain.RoleSuperadmin, CreatedAt: now}
	if err := store.PutUser(context.Background(), user); err != nil {
		t.Fatalf("put user: %v", err)
	}

	got, err := store.GetUserByEmail(context.Background(), "head@school.test")
	if err != nil {
		t.Fatalf("get user by email: %v", err)
	}
	if got.Role != domain.RoleSuperadmin {
		t.Fatalf("role = %v, want superadmin", got.Role)
	}
}

func TestCredentialSoftDelete(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	credential := domain.SecurityKeyCredential{
		CredentialID:   "cred-1",
		UserID:         "user-1",
		Name:           "Election Key",
		Purpose:        domain.PurposeElection,
		CredentialJSON: `{"id":"cred-1"}`,
		CreatedAt:      now,
	}
	if err := store.PutCredential(context.Background(), credential); err != nil {
		t.Fatalf("put credential: %v", err)
	}

	if err := store.MarkCredentialRemoved(context.Background(), "cred-1"); err != nil {
		t.Fatalf("mark removed: %v", err)
	}

	listed, err := store.ListCredentials(context.Background())
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("listed %d credentials, want 0", len(listed))
	}

	// The record itself survives for auditing.
	got, err := store.GetCredential(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if !got.Removed {
		t.Fatal("credential should be marked removed")
	}

	if err := store.MarkCredentialRemoved(context.Background(), "cred-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second removal err = %v, want ErrNotFound", err)
	}
}

func TestCeremonyRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	expires := time.Date(2026, time.March, 3, 9, 1, 0, 0, time.UTC)
	ceremony := storage.Ceremony{
		ID:          "cer-1",
		Kind:        storage.CeremonyKindAuthentication,
		Purpose:     domain.PurposeElection,
		SessionJSON: `{"challenge":"abc"}`,
		ExpiresAt:   expires,
	}
	if err := store.PutCeremony(context.Background(), ceremony); err != nil {
		t.Fatalf("put ceremony: %v", err)
	}

	got, err := store.GetCeremony(context.Background(), "cer-1")
	if err != nil {
		t.Fatalf("get ceremony: %v", err)
	}
	if got.Kind != storage.CeremonyKindAuthentication {
		t.Fatalf("kind = %q, want authentication", got.Kind)
	}
	if got.Purpose != domain.PurposeElection {
		t.Fatalf("purpose = %v, want election", got.Purpose)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, expires)
	}

	if err := store.DeleteCeremony(context.Background(), "cer-1"); err != nil {
		t.Fatalf("delete ceremony: %v", err)
	}
	if _, err := store.GetCeremony(context.Background(), "cer-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVoteCounts(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	votes := []domain.Vote{
		{ID: "v1", PositionID: "pres", CandidateID: "alice", CastAt: now},
		{ID: "v2", PositionID: "pres", CandidateID: "alice", CastAt: now},
		{ID: "v3", PositionID: "pres", CandidateID: "bob", CastAt: now},
		{ID: "v4", PositionID: "sec", CandidateID: "cara", CastAt: now},
	}
	for _, vote := range votes {
		if err := store.PutVote(context.Background(), vote); err != nil {
			t.Fatalf("put vote %s: %v", vote.ID, err)
		}
	}

	counts, err := store.CountVotes(context.Background())
	if err != nil {
		t.Fatalf("count votes: %v", err)
	}
	want := map[string]int{"pres/alice": 2, "pres/bob": 1, "sec/cara": 1}
	if len(counts) != len(want) {
		t.Fatalf("got %d counts, want %d", len(counts), len(want))
	}
	for _, count := range counts {
		key := count.PositionID + "/" + count.CandidateID
		if want[key] != count.Count {
			t.Fatalf("count for %s = %d, want %d", key, count.Count, want[key])
		}
	}
}

func TestPutBallotIsAtomic(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	ballot := []domain.Vote{
		{ID: "v1", PositionID: "pres", CandidateID: "alice", CastAt: now},
		{ID: "v2", PositionID: "sec", CandidateID: "cara", CastAt: now},
	}
	if err := store.PutBallot(context.Background(), ballot); err != nil {
		t.Fatalf("put ballot: %v", err)
	}

	// A duplicate id fails the second insert; the first must not survive.
	bad := []domain.Vote{
		{ID: "v3", PositionID: "pres", CandidateID: "bob", CastAt: now},
		{ID: "v1", PositionID: "sec", CandidateID: "cara", CastAt: now},
	}
	if err := store.PutBallot(context.Background(), bad); err == nil {
		t.Fatal("expected duplicate vote id to fail the ballot")
	}

	counts, err := store.CountVotes(context.Background())
	if err != nil {
		t.Fatalf("count votes: %v", err)
	}
	total := 0
	for _, count := range counts {
		if count.CandidateID == "bob" {
			t.Fatal("failed ballot must not record any vote")
		}
		total += count.Count
	}
	if total != 2 {
		t.Fatalf("total votes = %d, want 2", total)
	}
}

func TestSettingsDefaultsThenRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	defaults, err := store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get default settings: %v", err)
	}
	if defaults.Active {
		t.Fatal("election should default to inactive")
	}
	if defaults.VoteDisplayDelay != defaultVoteDisplayDelay {
		t.Fatalf("display delay = %v, want %v", defaults.VoteDisplayDelay, defaultVoteDisplayDelay)
	}

	now := time.Date(2026, time.March, 3, 11, 0, 0, 0, time.UTC)
	settings := domain.ElectionSettings{
		Active:           true,
		PinCode:          "1234",
		VoteDisplayDelay: 3 * time.Second,
		UpdatedAt:        now,
	}
	if err := store.PutSettings(context.Background(), settings); err != nil {
		t.Fatalf("put settings: %v", err)
	}

	got, err := store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if !got.Active || got.PinCode != "1234" || got.VoteDisplayDelay != 3*time.Second {
		t.Fatalf("settings round trip mismatch: %+v", got)
	}
}

func TestStudentCheckInRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	student := domain.Student{ID: "st-1", StudentID: "2026-014", Name: "Dana Reyes", Grade: "11"}
	if err := store.PutStudent(context.Background(), student); err != nil {
		t.Fatalf("put student: %v", err)
	}

	at := time.Date(2026, time.March, 3, 8, 15, 0, 0, time.UTC)
	if err := store.SetCheckedIn(context.Background(), "st-1", true, at); err != nil {
		t.Fatalf("set checked in: %v", err)
	}

	got, err := store.GetStudent(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if !got.CheckedIn {
		t.Fatal("student should be checked in")
	}
	if got.CheckedInAt == nil || !got.CheckedInAt.Equal(at) {
		t.Fatalf("checked_in_at = %v, want %v", got.CheckedInAt, at)
	}

	if err := store.SetCheckedIn(context.Background(), "st-1", false, time.Time{}); err != nil {
		t.Fatalf("undo check in: %v", err)
	}
	got, err = store.GetStudent(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("get student after undo: %v", err)
	}
	if got.CheckedIn || got.CheckedInAt != nil {
		t.Fatalf("check-in not cleared: %+v", got)
	}
}
