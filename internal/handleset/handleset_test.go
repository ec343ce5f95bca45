package handleset

import (
	"reflect"
	"testing"
)

func TestAddIsIdempotent(t *testing.T) {
	var s []string
	s = Add(s, "bob")
	s = Add(s, "carol")
	s = Add(s, "bob")
	if !reflect.DeepEqual(s, []string{"bob", "carol"}) {
		t.Errorf("got %v", s)
	}
}

func TestRemove(t *testing.T) {
	s := Remove([]string{"a", "b", "a"}, "a")
	if !reflect.DeepEqual(s, []string{"b"}) {
		t.Errorf("got %v", s)
	}
	if empty := Remove(nil, "a"); empty == nil {
		t.Error("Remove should never return nil")
	}
}

func TestReplace(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"simple", []string{"alice", "bob"}, []string{"alicia", "bob"}},
		{"absent", []string{"bob"}, []string{"bob"}},
		{"collapses duplicate", []string{"alice", "alicia"}, []string{"alicia"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Replace(tt.in, "alice", "alicia")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"", "bob", "me", "bob", "carol"}, "me")
	if !reflect.DeepEqual(got, []string{"bob", "carol"}) {
		t.Errorf("got %v", got)
	}
}
