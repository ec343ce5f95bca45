package rename

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/kvstore"
	"github.com/alecgard/kyosor/internal/ledger"
	"github.com/alecgard/kyosor/internal/mission"
	"golang.org/x/crypto/bcrypt"
)

type world struct {
	store    *kvstore.Memory
	dir      *identity.Directory
	hours    *ledger.Ledger
	missions *mission.Registry
	coord    *Coordinator
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := kvstore.NewMemory()
	w := &world{
		store: store,
		dir:   identity.NewDirectory(store, bcrypt.MinCost),
		hours: ledger.New(store),
	}
	w.missions = mission.NewRegistry(store, w.hours)
	w.coord = NewCoordinator(w.dir, w.missions, w.hours)
	return w
}

func (w *world) register(t *testing.T, handle string) {
	t.Helper()
	_, err := w.dir.Register(context.Background(), identity.RegisterInput{
		Handle:        handle,
		CredentialKey: handle + "@example.com",
		Secret:        "pw",
	})
	if err != nil {
		t.Fatalf("registering %s: %v", handle, err)
	}
}

func TestRename_ThenFinishSettlesUnderNewHandle(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.register(t, "bob")
	w.register(t, "alice")

	date := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	m, err := w.missions.Create(ctx, "alice", mission.Draft{
		Name: "Tree planting", Description: "Plant saplings", MissionDate: &date, MaxCrew: 2,
	})
	if err != nil {
		t.Fatalf("creating mission: %v", err)
	}
	if _, err := w.missions.Join(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("joining: %v", err)
	}
	_ = w.dir.AddFriend(ctx, "alice", "bob")

	got, err := w.coord.Rename(ctx, "alice", "alicia")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got != "alicia" {
		t.Errorf("expected alicia, got %q", got)
	}

	if _, err := w.missions.Finish(ctx, m.ID, "alicia"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, ok, _ := w.store.Get(ctx, ledger.Key("alice")); ok {
		t.Error("expected no ledger under the old handle")
	}
	stats, _ := w.hours.Stats(ctx, "alicia")
	if stats.InternalHours != mission.RewardHours {
		t.Errorf("expected reward settled under alicia, got %v", stats.InternalHours)
	}
	if len(stats.History) != 1 || !stats.History[0].Settled {
		t.Errorf("expected one settled entry, got %+v", stats.History)
	}

	sess, _ := w.dir.CurrentSession(ctx)
	if sess.Handle != "alicia" {
		t.Errorf("expected session rebound to alicia, got %q", sess.Handle)
	}
	bob, _ := w.dir.Get(ctx, "bob")
	if len(bob.Friends) != 1 || bob.Friends[0] != "alicia" {
		t.Errorf("expected bob's friend list renamed, got %v", bob.Friends)
	}
	views, _ := w.missions.List(ctx, "alicia", mission.Filter{ViewMode: mission.ViewHistory})
	if len(views) != 1 || views[0].ChiefHandle != "alicia" {
		t.Errorf("expected archived mission under alicia, got %+v", views)
	}
}

func TestRename_Errors(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.register(t, "bob")
	w.register(t, "alice")

	tests := []struct {
		name    string
		old     string
		new     string
		wantErr error
	}{
		{"not the session owner", "bob", "robert", identity.ErrNotLoggedIn},
		{"empty name", "alice", "   ", ErrEmptyName},
		{"name taken", "alice", "bob", identity.ErrNameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.coord.Rename(ctx, tt.old, tt.new); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := w.dir.Get(ctx, "alice"); err != nil {
		t.Errorf("expected alice untouched after failed renames, got %v", err)
	}
}

func TestRename_NoSession(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.register(t, "alice")
	_ = w.dir.Logout(ctx)

	if _, err := w.coord.Rename(ctx, "alice", "alicia"); !errors.Is(err, identity.ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestRename_SameNameIsNoOp(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.register(t, "alice")

	before, _, _ := w.store.Get(ctx, identity.TableKey)
	got, err := w.coord.Rename(ctx, "alice", " alice ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "alice" {
		t.Errorf("expected alice, got %q", got)
	}
	after, _, _ := w.store.Get(ctx, identity.TableKey)
	if string(before) != string(after) {
		t.Error("expected no write for a same-name rename")
	}
}

func TestRename_LedgerCollisionKeepsTarget(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.register(t, "alice")

	_ = w.hours.AddSettlement(ctx, "alice", ledger.Internal, 3, ledger.Settlement{MissionID: 1, Settled: true})
	_ = w.hours.AddSettlement(ctx, "alicia", ledger.External, 5, ledger.Settlement{MissionID: 2, Settled: true})

	if _, err := w.coord.Rename(ctx, "alice", "alicia"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ := w.hours.Stats(ctx, "alicia")
	if stats.ExternalHours != 5 || stats.InternalHours != 0 {
		t.Errorf("expected existing ledger kept, got %+v", stats)
	}
	if _, ok, _ := w.store.Get(ctx, ledger.Key("alice")); !ok {
		t.Error("expected old ledger left behind")
	}
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRename_LedgerWarning(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(ctx context.Context, w *world)
		wantWarn bool
	}{
		{
			name:  "no ledger yet",
			setup: func(ctx context.Context, w *world) {},
		},
		{
			name: "ledger moved",
			setup: func(ctx context.Context, w *world) {
				_ = w.hours.AddSettlement(ctx, "alice", ledger.Internal, 3, ledger.Settlement{MissionID: 1, Settled: true})
			},
		},
		{
			name: "target already has a ledger",
			setup: func(ctx context.Context, w *world) {
				_ = w.hours.AddSettlement(ctx, "alice", ledger.Internal, 3, ledger.Settlement{MissionID: 1, Settled: true})
				_ = w.hours.AddSettlement(ctx, "alicia", ledger.External, 5, ledger.Settlement{MissionID: 2, Settled: true})
			},
			wantWarn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			ctx := context.Background()
			w.register(t, "alice")
			tt.setup(ctx, w)

			logs := captureLogs(t)
			if _, err := w.coord.Rename(ctx, "alice", "alicia"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Contains(logs.String(), "hour ledger not moved"); got != tt.wantWarn {
				t.Errorf("warning logged = %v, want %v; logs: %s", got, tt.wantWarn, logs.String())
			}
		})
	}
}

// failingMissions fails every rewrite.
type failingMissions struct{}

func (failingMissions) RenameHandle(ctx context.Context, oldHandle, newHandle string) error {
	return errors.New("store offline")
}

func TestRename_PartialFailureLeavesDirectoryAuthoritative(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.register(t, "alice")
	_ = w.hours.AddSettlement(ctx, "alice", ledger.Internal, 3, ledger.Settlement{MissionID: 1, Settled: true})

	coord := NewCoordinator(w.dir, failingMissions{}, w.hours)
	if _, err := coord.Rename(ctx, "alice", "alicia"); err == nil {
		t.Fatal("expected error from mission rewrite")
	}
	if _, err := w.dir.Get(ctx, "alicia"); err != nil {
		t.Errorf("expected directory already renamed, got %v", err)
	}
	sess, _ := w.dir.CurrentSession(ctx)
	if sess.Handle != "alice" {
		t.Fatalf("expected session still on alice, got %q", sess.Handle)
	}

	if _, err := w.coord.Rename(ctx, "alice", "alicia"); err != nil {
		t.Fatalf("unexpected error re-running rename: %v", err)
	}
	if _, ok, _ := w.store.Get(ctx, ledger.Key("alicia")); !ok {
		t.Error("expected ledger moved on retry")
	}
	sess, _ = w.dir.CurrentSession(ctx)
	if sess.Handle != "alicia" {
		t.Errorf("expected session rebound on retry, got %q", sess.Handle)
	}
}
