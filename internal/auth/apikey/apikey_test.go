package apikey

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHashKeyDeterministic(t *testing.T) {
	a := HashKey("qm_somekey")
	b := HashKey("qm_somekey")
	if a != b {
		t.Errorf("HashKey not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == HashKey("qm_otherkey") {
		t.Error("different keys produced the same hash")
	}
}

func TestMintRawKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		key := mintRawKey()
		if !strings.HasPrefix(key, keyPrefix) {
			t.Fatalf("key %q missing %q prefix", key, keyPrefix)
		}
		if len(key) != len(keyPrefix)+64 {
			t.Fatalf("key length = %d, want %d", len(key), len(keyPrefix)+64)
		}
		if seen[key] {
			t.Fatal("mintRawKey produced a duplicate")
		}
		seen[key] = true
	}
}

func TestValidateRejectsUnprefixedKey(t *testing.T) {
	// Prefix check happens before any database access.
	v := &Validator{}

	_, err := v.Validate(context.Background(), "sk_1234567890abcdef")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Validate(unprefixed) = %v, want ErrInvalidKey", err)
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		check  string
		want   bool
	}{
		{"direct match", []string{ScopeScan}, ScopeScan, true},
		{"missing scope", []string{ScopeScan}, ScopeRegister, false},
		{"admin implies scan", []string{ScopeAdmin}, ScopeScan, true},
		{"admin implies register", []string{ScopeAdmin}, ScopeRegister, true},
		{"admin implies admin", []string{ScopeAdmin}, ScopeAdmin, true},
		{"empty scopes", nil, ScopeScan, false},
		{"multiple scopes", []string{ScopeScan, ScopeRegister}, ScopeRegister, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &KeyInfo{Scopes: tt.scopes}
			if got := k.HasScope(tt.check); got != tt.want {
				t.Errorf("HasScope(%q) with scopes %v = %v, want %v", tt.check, tt.scopes, got, tt.want)
			}
		})
	}
}
