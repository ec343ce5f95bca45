package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/kyosor/internal/handleset"
	"github.com/alecgard/kyosor/internal/kvstore"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Blob keys owned by the directory.
const (
	TableKey   = "identity_table"
	SessionKey = "active_session"
)

var (
	ErrDuplicateCredential = errors.New("credential key already registered")
	ErrNotFound            = errors.New("identity not found")
	ErrBadSecret           = errors.New("invalid secret")
	ErrNameTaken           = errors.New("handle already taken")
	ErrInvalidIdentity     = errors.New("handle, credential key and secret are required")
	ErrNotLoggedIn         = errors.New("not logged in")
	ErrEmptyEmail          = errors.New("current email is required")
	ErrEmailMismatch       = errors.New("email does not match the account")
	ErrEmptySecret         = errors.New("new secret is required")
)

// Directory owns the identity table, the friend graph and the active session.
type Directory struct {
	store      kvstore.Store
	bcryptCost int
	now        func() time.Time
}

// NewDirectory creates a directory persisting into store. A bcryptCost
// outside bcrypt's accepted range falls back to bcrypt.DefaultCost.
func NewDirectory(store kvstore.Store, bcryptCost int) *Directory {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Directory{store: store, bcryptCost: bcryptCost, now: time.Now}
}

// load reads the identity table, repairing any shape problems: nil sets
// become empty, duplicates and self references are dropped, and records
// without a handle are discarded.
func (d *Directory) load(ctx context.Context) ([]*Identity, error) {
	var ids []*Identity
	if err := kvstore.LoadJSON(ctx, d.store, TableKey, &ids); err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if id == nil || id.Handle == "" {
			continue
		}
		id.Friends = handleset.Normalize(id.Friends, id.Handle)
		id.IncomingRequests = handleset.Normalize(id.IncomingRequests, id.Handle)
		id.OutgoingRequests = handleset.Normalize(id.OutgoingRequests, id.Handle)
		out = append(out, id)
	}
	return out, nil
}

func (d *Directory) save(ctx context.Context, ids []*Identity) error {
	if ids == nil {
		ids = []*Identity{}
	}
	return kvstore.SaveJSON(ctx, d.store, TableKey, ids)
}

func findByHandle(ids []*Identity, handle string) *Identity {
	for _, id := range ids {
		if id.Handle == handle {
			return id
		}
	}
	return nil
}

func findByCredential(ids []*Identity, key string) *Identity {
	for _, id := range ids {
		if id.CredentialKey == key {
			return id
		}
	}
	return nil
}

// Register stores a new identity and logs it in.
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Handle = strings.TrimSpace(in.Handle)
	in.CredentialKey = strings.TrimSpace(in.CredentialKey)
	if in.Handle == "" || in.CredentialKey == "" || in.Secret == "" {
		return nil, ErrInvalidIdentity
	}

	ids, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if findByCredential(ids, in.CredentialKey) != nil {
		return nil, ErrDuplicateCredential
	}
	if findByHandle(ids, in.Handle) != nil {
		return nil, ErrNameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Secret), d.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing secret: %w", err)
	}

	profile := in.Profile
	if profile.Email == "" {
		profile.Email = in.CredentialKey
	}

	ids = append(ids, &Identity{
		Handle:           in.Handle,
		CredentialKey:    in.CredentialKey,
		SecretHash:       string(hash),
		Friends:          []string{},
		IncomingRequests: []string{},
		OutgoingRequests: []string{},
		Profile:          profile,
		CreatedAt:        d.now().UTC(),
	})
	if err := d.save(ctx, ids); err != nil {
		return nil, fmt.Errorf("registering identity: %w", err)
	}

	return d.Login(ctx, in.CredentialKey, in.Secret)
}

// Login starts a session for the identity with the given credential key.
// An empty secret skips the secret check.
func (d *Directory) Login(ctx context.Context, credentialKey, secret string) (*Session, error) {
	ids, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	id := findByCredential(ids, strings.TrimSpace(credentialKey))
	if id == nil {
		return nil, ErrNotFound
	}
	if secret != "" && !CheckSecret(id, secret) {
		return nil, ErrBadSecret
	}

	token, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}
	sess := &Session{
		Handle:        id.Handle,
		CredentialKey: id.CredentialKey,
		Token:         token.String(),
		IssuedAt:      d.now().UTC(),
	}
	if err := kvstore.SaveJSON(ctx, d.store, SessionKey, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Logout clears the active session.
func (d *Directory) Logout(ctx context.Context) error {
	if err := d.store.Remove(ctx, SessionKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// CurrentSession returns the active session or ErrNotLoggedIn.
func (d *Directory) CurrentSession(ctx context.Context) (*Session, error) {
	var sess *Session
	if err := kvstore.LoadJSON(ctx, d.store, SessionKey, &sess); err != nil {
		return nil, err
	}
	if sess == nil || sess.Handle == "" {
		return nil, ErrNotLoggedIn
	}
	return sess, nil
}

// Authenticate resolves a bearer token against the active session.
func (d *Directory) Authenticate(ctx context.Context, token string) (*Session, error) {
	sess, err := d.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" || sess.Token != token {
		return nil, ErrNotLoggedIn
	}
	return sess, nil
}

// RebindSession points the active session at newHandle when it currently
// belongs to oldHandle.
func (d *Directory) RebindSession(ctx context.Context, oldHandle, newHandle string) error {
	sess, err := d.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			return nil
		}
		return err
	}
	if sess.Handle != oldHandle {
		return nil
	}
	sess.Handle = newHandle
	return kvstore.SaveJSON(ctx, d.store, SessionKey, sess)
}

// Get retrieves an identity by handle.
func (d *Directory) Get(ctx context.Context, handle string) (*Identity, error) {
	ids, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	id := findByHandle(ids, handle)
	if id == nil {
		return nil, ErrNotFound
	}
	return id, nil
}

// List returns every identity in registration order.
func (d *Directory) List(ctx context.Context) ([]*Identity, error) {
	return d.load(ctx)
}

// Handles returns the set of registered handles.
func (d *Directory) Handles(ctx context.Context) (map[string]bool, error) {
	ids, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id.Handle] = true
	}
	return set, nil
}

// UpdateProfile applies a partial profile update.
func (d *Directory) UpdateProfile(ctx context.Context, handle string, p ProfilePatch) (*Identity, error) {
	ids, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	id := findByHandle(ids, handle)
	if id == nil {
		return nil, ErrNotFound
	}

	if p.AvatarRef != nil {
		id.Profile.AvatarRef = *p.AvatarRef
	}
	if p.Institution != nil {
		id.Profile.Institution = *p.Institution
	}
	if p.EducationLevel != nil {
		id.Profile.EducationLevel = *p.EducationLevel
	}
	if p.Email != nil {
		id.Profile.Email = strings.TrimSpace(*p.Email)
	}

	if err := d.save(ctx, ids); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return id, nil
}

// ChangeSecret replaces the secret after confirming the caller knows the
// account email (compared case-insensitively; falls back to the credential
// key when no email is stored).
func (d *Directory) ChangeSecret(ctx context.Context, handle, currentEmail, newSecret string) error {
	email := strings.ToLower(strings.TrimSpace(currentEmail))
	if email == "" {
		return ErrEmptyEmail
	}
	if newSecret == "" {
		return ErrEmptySecret
	}

	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	id := findByHandle(ids, handle)
	if id == nil {
		return ErrNotFound
	}

	expected := id.Profile.Email
	if expected == "" {
		expected = id.CredentialKey
	}
	if email != strings.ToLower(strings.TrimSpace(expected)) {
		return ErrEmailMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newSecret), d.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}
	id.SecretHash = string(hash)
	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("changing secret: %w", err)
	}
	return nil
}

// RenameHandle changes oldHandle to newHandle on the identity itself and in
// every friend and request list. It fails with ErrNameTaken before writing
// anything if another identity already owns newHandle. Re-running a rename
// that was already applied is a no-op when the active session is still the
// renamed identity's session under oldHandle, so an interrupted rename can
// be finished.
func (d *Directory) RenameHandle(ctx context.Context, oldHandle, newHandle string) error {
	ids, err := d.load(ctx)
	if err != nil {
		return err
	}
	self := findByHandle(ids, oldHandle)
	if self == nil {
		holder := findByHandle(ids, newHandle)
		if holder == nil {
			return ErrNotFound
		}
		// Only the session that started the rename may treat it as done.
		applied, err := d.sessionOwns(ctx, oldHandle, holder)
		if err != nil {
			return err
		}
		if !applied {
			return ErrNameTaken
		}
		return nil
	}
	if other := findByHandle(ids, newHandle); other != nil && other != self {
		return ErrNameTaken
	}

	self.Handle = newHandle
	for _, id := range ids {
		id.Friends = handleset.Replace(id.Friends, oldHandle, newHandle)
		id.IncomingRequests = handleset.Replace(id.IncomingRequests, oldHandle, newHandle)
		id.OutgoingRequests = handleset.Replace(id.OutgoingRequests, oldHandle, newHandle)
	}

	if err := d.save(ctx, ids); err != nil {
		return fmt.Errorf("renaming identity: %w", err)
	}
	return nil
}

// sessionOwns reports whether the active session was issued to id while it
// was still called handle.
func (d *Directory) sessionOwns(ctx context.Context, handle string, id *Identity) (bool, error) {
	sess, err := d.CurrentSession(ctx)
	if errors.Is(err, ErrNotLoggedIn) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Handle == handle && sess.CredentialKey != "" && sess.CredentialKey == id.CredentialKey, nil
}

// CheckSecret verifies a plaintext secret against the identity's stored hash.
func CheckSecret(id *Identity, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(id.SecretHash), []byte(secret)) == nil
}
