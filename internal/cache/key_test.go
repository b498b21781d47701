package cache

import (
	"strings"
	"testing"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		name      string
		voice1    string
		text1     string
		voice2    string
		text2     string
		wantEqual bool
	}{
		{"identical", "v1", "Hello there.", "v1", "Hello there.", true},
		{"whitespace", "v1", "  Hello   there.\n", "v1", "Hello there.", true},
		{"nfc vs nfd", "v1", "caf\u00e9", "v1", "cafe\u0301", true},
		{"different voice", "v1", "Hello", "v2", "Hello", false},
		{"different text", "v1", "Hello", "v1", "Hullo", false},
		{"case matters", "v1", "Hello", "v1", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k1 := NewKey(tt.voice1, tt.text1)
			k2 := NewKey(tt.voice2, tt.text2)
			if (k1 == k2) != tt.wantEqual {
				t.Errorf("NewKey equality = %v, want %v", k1 == k2, tt.wantEqual)
			}
		})
	}
}

func TestNewKey_Deterministic(t *testing.T) {
	k := NewKey("21m00Tcm4TlvDq8ikWAM", "I never said that.")
	for i := 0; i < 10; i++ {
		if NewKey("21m00Tcm4TlvDq8ikWAM", "I never said that.") != k {
			t.Fatal("key changed between calls")
		}
	}
	if len(k) != 64 || strings.Trim(string(k), "0123456789abcdef") != "" {
		t.Errorf("key %q is not 64 hex digits", k)
	}
	if len(k.Short()) != 12 {
		t.Errorf("Short() = %q", k.Short())
	}
}

func TestObjectStore(t *testing.T) {
	s := NewObjectStore()
	h, err := s.Create([]byte("abc"), "audio/wav")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(string(h), HandlePrefix) {
		t.Errorf("handle %q lacks prefix", h)
	}
	if s.Live() != 1 {
		t.Errorf("Live() = %d", s.Live())
	}
	if !s.Revoke(h) || s.Revoke(h) {
		t.Error("Revoke should succeed once")
	}
	created, revoked := s.Counts()
	if created != 1 || revoked != 1 {
		t.Errorf("Counts() = %d, %d", created, revoked)
	}
}
