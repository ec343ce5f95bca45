package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecgard/kyosor/internal/kvstore"
	"golang.org/x/crypto/bcrypt"
)

func newTestDirectory(t *testing.T) (*Directory, *kvstore.Memory) {
	t.Helper()
	store := kvstore.NewMemory()
	d := NewDirectory(store, bcrypt.MinCost)
	d.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return d, store
}

func mustRegister(t *testing.T, d *Directory, handle, key, secret string) *Session {
	t.Helper()
	sess, err := d.Register(context.Background(), RegisterInput{
		Handle:        handle,
		CredentialKey: key,
		Secret:        secret,
	})
	if err != nil {
		t.Fatalf("registering %s: %v", handle, err)
	}
	return sess
}

func TestRegister(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	sess := mustRegister(t, d, "alice", "alice@example.com", "pw")
	if sess.Handle != "alice" {
		t.Errorf("expected session for alice, got %q", sess.Handle)
	}
	if sess.Token == "" {
		t.Error("expected non-empty session token")
	}

	id, err := d.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.SecretHash == "pw" || id.SecretHash == "" {
		t.Errorf("expected hashed secret, got %q", id.SecretHash)
	}
	if !CheckSecret(id, "pw") {
		t.Error("expected stored hash to match the secret")
	}
	if id.Profile.Email != "alice@example.com" {
		t.Errorf("expected email to default to credential key, got %q", id.Profile.Email)
	}
	if len(id.Friends) != 0 || len(id.IncomingRequests) != 0 || len(id.OutgoingRequests) != 0 {
		t.Errorf("expected empty relations, got %+v", id)
	}

	cur, err := d.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.Handle != "alice" {
		t.Errorf("expected active session for alice, got %q", cur.Handle)
	}
}

func TestRegister_Validation(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing handle", RegisterInput{CredentialKey: "k", Secret: "s"}},
		{"blank handle", RegisterInput{Handle: "  ", CredentialKey: "k", Secret: "s"}},
		{"missing key", RegisterInput{Handle: "h", Secret: "s"}},
		{"missing secret", RegisterInput{Handle: "h", CredentialKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Register(ctx, tt.in)
			if !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("expected ErrInvalidIdentity, got %v", err)
			}
		})
	}
}

func TestRegister_DuplicateCredential(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	mustRegister(t, d, "alice", "shared@example.com", "first")

	_, err := d.Register(ctx, RegisterInput{Handle: "impostor", CredentialKey: "shared@example.com", Secret: "second"})
	if !errors.Is(err, ErrDuplicateCredential) {
		t.Fatalf("expected ErrDuplicateCredential, got %v", err)
	}

	ids, _ := d.List(ctx)
	if len(ids) != 1 {
		t.Fatalf("expected one identity, got %d", len(ids))
	}
	if ids[0].Handle != "alice" || !CheckSecret(ids[0], "first") {
		t.Errorf("first identity was modified: %+v", ids[0])
	}
}

func TestRegister_HandleTaken(t *testing.T) {
	d, _ := newTestDirectory(t)
	mustRegister(t, d, "alice", "a@example.com", "pw")

	_, err := d.Register(context.Background(), RegisterInput{Handle: "alice", CredentialKey: "other@example.com", Secret: "pw"})
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("expected ErrNameTaken, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")

	tests := []struct {
		name    string
		key     string
		secret  string
		wantErr error
	}{
		{"correct secret", "a@example.com", "pw", nil},
		{"empty secret skips check", "a@example.com", "", nil},
		{"wrong secret", "a@example.com", "nope", ErrBadSecret},
		{"unknown key", "b@example.com", "pw", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := d.Login(ctx, tt.key, tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && sess.Handle != "alice" {
				t.Errorf("expected alice, got %q", sess.Handle)
			}
		})
	}
}

func TestLogoutAndAuthenticate(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	sess := mustRegister(t, d, "alice", "a@example.com", "pw")

	got, err := d.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Handle != "alice" {
		t.Errorf("expected alice, got %q", got.Handle)
	}

	if _, err := d.Authenticate(ctx, "not-the-token"); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn for wrong token, got %v", err)
	}

	if err := d.Logout(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.CurrentSession(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn after logout, got %v", err)
	}
	if _, err := d.Authenticate(ctx, sess.Token); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn after logout, got %v", err)
	}
}

func TestAuthAdapter(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	sess := mustRegister(t, d, "alice", "a@example.com", "pw")

	adapter := NewAuthAdapter(d)
	p, err := adapter.LookupSession(ctx, sess.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Handle != "alice" || p.Token != sess.Token {
		t.Errorf("unexpected principal %+v", p)
	}
	if _, err := adapter.LookupSession(ctx, "bogus"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestFriendRequests(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")
	mustRegister(t, d, "bob", "b@example.com", "pw")

	// Sending twice leaves exactly one request on each side.
	for i := 0; i < 2; i++ {
		if err := d.SendFriendRequest(ctx, "alice", "bob"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	alice, _ := d.Get(ctx, "alice")
	bob, _ := d.Get(ctx, "bob")
	if len(alice.OutgoingRequests) != 1 || alice.OutgoingRequests[0] != "bob" {
		t.Errorf("expected alice outgoing [bob], got %v", alice.OutgoingRequests)
	}
	if len(bob.IncomingRequests) != 1 || bob.IncomingRequests[0] != "alice" {
		t.Errorf("expected bob incoming [alice], got %v", bob.IncomingRequests)
	}

	incoming, err := d.IncomingRequests(ctx, "bob")
	if err != nil || len(incoming) != 1 || incoming[0].Handle != "alice" {
		t.Errorf("expected bob's incoming to resolve to alice, got %v (%v)", incoming, err)
	}

	if err := d.AcceptFriendRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	alice, _ = d.Get(ctx, "alice")
	bob, _ = d.Get(ctx, "bob")
	if len(alice.Friends) != 1 || alice.Friends[0] != "bob" {
		t.Errorf("expected alice friends [bob], got %v", alice.Friends)
	}
	if len(bob.Friends) != 1 || bob.Friends[0] != "alice" {
		t.Errorf("expected bob friends [alice], got %v", bob.Friends)
	}
	if len(alice.OutgoingRequests) != 0 || len(bob.IncomingRequests) != 0 {
		t.Errorf("expected requests cleared, got alice=%v bob=%v", alice.OutgoingRequests, bob.IncomingRequests)
	}

	// Requests between friends are ignored.
	if err := d.SendFriendRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bob, _ = d.Get(ctx, "bob")
	if len(bob.OutgoingRequests) != 0 {
		t.Errorf("expected no request between friends, got %v", bob.OutgoingRequests)
	}
}

func TestFriendRequests_SelfAndUnknownAreNoOps(t *testing.T) {
	d, store := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")

	before, _, _ := store.Get(ctx, TableKey)
	if err := d.SendFriendRequest(ctx, "alice", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.SendFriendRequest(ctx, "alice", "ghost"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.AcceptFriendRequest(ctx, "alice", "ghost"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _, _ := store.Get(ctx, TableKey)
	if string(before) != string(after) {
		t.Error("expected no write for no-op friend operations")
	}
}

func TestDeclineFriendRequest(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")
	mustRegister(t, d, "bob", "b@example.com", "pw")

	_ = d.SendFriendRequest(ctx, "alice", "bob")
	if err := d.DeclineFriendRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alice, _ := d.Get(ctx, "alice")
	bob, _ := d.Get(ctx, "bob")
	if len(alice.OutgoingRequests) != 0 || len(bob.IncomingRequests) != 0 {
		t.Errorf("expected request dropped, got alice=%v bob=%v", alice.OutgoingRequests, bob.IncomingRequests)
	}
	if len(alice.Friends) != 0 || len(bob.Friends) != 0 {
		t.Error("declining must not create a friendship")
	}
}

func TestAddAndRemoveFriend(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")
	mustRegister(t, d, "bob", "b@example.com", "pw")

	_ = d.SendFriendRequest(ctx, "bob", "alice")
	if err := d.AddFriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	friends, err := d.Friends(ctx, "alice")
	if err != nil || len(friends) != 1 || friends[0].Handle != "bob" {
		t.Fatalf("expected alice friends [bob], got %v (%v)", friends, err)
	}
	bob, _ := d.Get(ctx, "bob")
	if len(bob.OutgoingRequests) != 0 {
		t.Errorf("expected pending request cleared by AddFriend, got %v", bob.OutgoingRequests)
	}

	if err := d.RemoveFriend(ctx, "bob", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alice, _ := d.Get(ctx, "alice")
	bob, _ = d.Get(ctx, "bob")
	if len(alice.Friends) != 0 || len(bob.Friends) != 0 {
		t.Errorf("expected friendship removed on both sides, got alice=%v bob=%v", alice.Friends, bob.Friends)
	}
}

func TestFriends_UnknownHandle(t *testing.T) {
	d, _ := newTestDirectory(t)
	if _, err := d.Friends(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_RepairsRelations(t *testing.T) {
	d, store := newTestDirectory(t)
	ctx := context.Background()

	raw := `[{"handle":"alice","credential_key":"a","friends":["bob","bob","alice",""],"incoming_requests":null},{"handle":"","credential_key":"x"}]`
	if err := store.Set(ctx, TableKey, []byte(raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, err := d.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected record without handle dropped, got %d", len(ids))
	}
	if len(ids[0].Friends) != 1 || ids[0].Friends[0] != "bob" {
		t.Errorf("expected friends [bob], got %v", ids[0].Friends)
	}
	if ids[0].IncomingRequests == nil {
		t.Error("expected nil set normalised to empty")
	}
}

func TestUpdateProfile(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")

	inst := "Lakeside High"
	id, err := d.UpdateProfile(ctx, "alice", ProfilePatch{Institution: &inst})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Profile.Institution != inst {
		t.Errorf("expected institution %q, got %q", inst, id.Profile.Institution)
	}
	if id.Profile.Email != "a@example.com" {
		t.Errorf("expected untouched email, got %q", id.Profile.Email)
	}

	if _, err := d.UpdateProfile(ctx, "ghost", ProfilePatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestChangeSecret(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "old")

	tests := []struct {
		name    string
		email   string
		secret  string
		wantErr error
	}{
		{"empty email", "", "new", ErrEmptyEmail},
		{"empty secret", "a@example.com", "", ErrEmptySecret},
		{"wrong email", "b@example.com", "new", ErrEmailMismatch},
		{"case insensitive match", " A@Example.com ", "new", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ChangeSecret(ctx, "alice", tt.email, tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := d.Login(ctx, "a@example.com", "old"); !errors.Is(err, ErrBadSecret) {
		t.Errorf("expected old secret rejected, got %v", err)
	}
	if _, err := d.Login(ctx, "a@example.com", "new"); err != nil {
		t.Errorf("expected new secret accepted, got %v", err)
	}
}

func TestRenameHandle(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")
	mustRegister(t, d, "bob", "b@example.com", "pw")
	mustRegister(t, d, "carol", "c@example.com", "pw")

	_ = d.AddFriend(ctx, "alice", "bob")
	_ = d.SendFriendRequest(ctx, "carol", "alice")

	if err := d.RenameHandle(ctx, "alice", "alicia"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Get(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old handle gone, got %v", err)
	}
	alicia, err := d.Get(ctx, "alicia")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alicia.IncomingRequests) != 1 || alicia.IncomingRequests[0] != "carol" {
		t.Errorf("expected incoming [carol], got %v", alicia.IncomingRequests)
	}
	bob, _ := d.Get(ctx, "bob")
	if len(bob.Friends) != 1 || bob.Friends[0] != "alicia" {
		t.Errorf("expected bob friends [alicia], got %v", bob.Friends)
	}
	carol, _ := d.Get(ctx, "carol")
	if len(carol.OutgoingRequests) != 1 || carol.OutgoingRequests[0] != "alicia" {
		t.Errorf("expected carol outgoing [alicia], got %v", carol.OutgoingRequests)
	}
}

func TestRenameHandle_NameTaken(t *testing.T) {
	d, store := newTestDirectory(t)
	ctx := context.Background()
	mustRegister(t, d, "alice", "a@example.com", "pw")
	mustRegister(t, d, "bob", "b@example.com", "pw")

	before, _, _ := store.Get(ctx, TableKey)
	if err := d.RenameHandle(ctx, "alice", "bob"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	after, _, _ := store.Get(ctx, TableKey)
	if string(before) != string(after) {
		t.Error("expected table unchanged after failed rename")
	}
}

func TestRebindSession(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()
	sess := mustRegister(t, d, "alice", "a@example.com", "pw")

	if err := d.RebindSession(ctx, "someone-else", "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cur, _ := d.CurrentSession(ctx)
	if cur.Handle != "alice" {
		t.Errorf("expected session untouched, got %q", cur.Handle)
	}

	if err := d.RebindSession(ctx, "alice", "alicia"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cur, _ = d.CurrentSession(ctx)
	if cur.Handle != "alicia" || cur.Token != sess.Token {
		t.Errorf("expected session rebound with same token, got %+v", cur)
	}
}

func TestRenameHandle_AlreadyApplied(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		wantErr error
	}{
		{
			name:    "stale session of the renamed identity",
			session: &Session{Handle: "alice", CredentialKey: "a@example.com", Token: "t"},
		},
		{
			name:    "stale session of someone else",
			session: &Session{Handle: "alice", CredentialKey: "x@example.com", Token: "t"},
			wantErr: ErrNameTaken,
		},
		{
			name:    "session without a credential key",
			session: &Session{Handle: "alice", Token: "t"},
			wantErr: ErrNameTaken,
		},
		{
			name:    "no session",
			wantErr: ErrNameTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store := newTestDirectory(t)
			ctx := context.Background()
			mustRegister(t, d, "alicia", "a@example.com", "pw")
			if err := d.Logout(ctx); err != nil {
				t.Fatalf("Logout: %v", err)
			}
			if tt.session != nil {
				if err := kvstore.SaveJSON(ctx, store, SessionKey, tt.session); err != nil {
					t.Fatalf("saving session: %v", err)
				}
			}

			err := d.RenameHandle(ctx, "alice", "alicia")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRenameHandle_Unknown(t *testing.T) {
	d, _ := newTestDirectory(t)
	if err := d.RenameHandle(context.Background(), "ghost", "phantom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLogin_SessionCarriesCredentialKey(t *testing.T) {
	d, _ := newTestDirectory(t)
	sess := mustRegister(t, d, "alice", "a@example.com", "pw")
	if sess.CredentialKey != "a@example.com" {
		t.Errorf("expected credential key on session, got %q", sess.CredentialKey)
	}
}
