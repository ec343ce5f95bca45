package kvstore

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alecgard/kyosor/internal/crypto"
)

type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// failingStore returns err from every Get.
type failingStore struct {
	*Memory
	err error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, f.err
}

func TestMemory_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	// Returned slices must not alias the stored value.
	got[0] = 'x'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "v1" {
		t.Errorf("stored value was mutated through returned slice: %q", again)
	}

	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove of missing key should succeed: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("key should be gone after Remove")
	}
}

func TestLoadJSON_MissingKeyYieldsZero(t *testing.T) {
	var r record
	r.Name = "stale"
	if err := LoadJSON(context.Background(), NewMemory(), "nope", &r); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if r.Name != "" || r.Items != nil {
		t.Errorf("expected zero value, got %+v", r)
	}
}

func TestLoadJSON_CorruptJSONYieldsZero(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "bad", []byte("{not json"))

	var r record
	if err := LoadJSON(ctx, m, "bad", &r); err != nil {
		t.Fatalf("corrupt JSON should not surface an error, got %v", err)
	}
	if r.Name != "" {
		t.Errorf("expected zero value, got %+v", r)
	}

	var list []record
	_ = m.Set(ctx, "list", []byte(`{"name":"not an array"}`))
	if err := LoadJSON(ctx, m, "list", &list); err != nil {
		t.Fatalf("shape mismatch should not surface an error, got %v", err)
	}
	if list != nil {
		t.Errorf("expected nil slice, got %+v", list)
	}
}

func TestLoadJSON_BackendErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	s := &failingStore{Memory: NewMemory(), err: boom}

	var r record
	err := LoadJSON(context.Background(), s, "k", &r)
	if !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestLoadJSON_CorruptMarkerYieldsZero(t *testing.T) {
	s := &failingStore{Memory: NewMemory(), err: ErrCorrupt}

	var r record
	if err := LoadJSON(context.Background(), s, "k", &r); err != nil {
		t.Fatalf("ErrCorrupt should be swallowed, got %v", err)
	}
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := record{Name: "crew", Items: []string{"a", "b"}}
	if err := SaveJSON(ctx, m, "rec", in); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	var out record
	if err := LoadJSON(ctx, m, "rec", &out); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if out.Name != "crew" || len(out.Items) != 2 {
		t.Errorf("unexpected round trip result %+v", out)
	}
}

func TestSealed_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	c, err := crypto.NewCipher(hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	inner := NewMemory()
	s := NewSealed(inner, c)

	if err := SaveJSON(ctx, s, "rec", record{Name: "secret-crew"}); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	raw, _, _ := inner.Get(ctx, "rec")
	if string(raw) == `{"name":"secret-crew","items":null}` {
		t.Fatal("value stored in plaintext")
	}

	var out record
	if err := LoadJSON(ctx, s, "rec", &out); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if out.Name != "secret-crew" {
		t.Errorf("expected decrypted name, got %q", out.Name)
	}

	// A plaintext value written behind the wrapper's back reads as empty.
	_ = inner.Set(ctx, "rec", []byte(`{"name":"plain"}`))
	if err := LoadJSON(ctx, s, "rec", &out); err != nil {
		t.Fatalf("LoadJSON of unsealed value: %v", err)
	}
	if out.Name != "" {
		t.Errorf("expected empty default for unreadable value, got %q", out.Name)
	}
}

func TestNewSealed_NilCipherPassthrough(t *testing.T) {
	inner := NewMemory()
	if s := NewSealed(inner, nil); s != Store(inner) {
		t.Error("nil cipher should return the inner store")
	}
}

func TestSQLite_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kyosor.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get(ctx, "missions_active"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "missions_active", []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "missions_active", []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, ok, err := s.Get(ctx, "missions_active")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != `[{"id":1}]` {
		t.Errorf("expected overwritten value, got %q", got)
	}

	if err := s.Remove(ctx, "missions_active"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missions_active"); ok {
		t.Error("key should be gone after Remove")
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	s.Close()
	if err := s.Ping(ctx); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
