package auth

import "testing"

func TestTokenAuth_ValidateToken(t *testing.T) {
	auth := NewTokenAuth([]string{"token1", "token2"})

	tests := []struct {
		token string
		want  bool
	}{
		{"token1", true},
		{"token2", true},
		{"token3", false},
		{"token", false},
		{"token11", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := auth.ValidateToken(tt.token); got != tt.want {
			t.Errorf("ValidateToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestTokenAuth_EmptyTokenList(t *testing.T) {
	auth := NewTokenAuth([]string{})
	if auth.ValidateToken("anything") {
		t.Error("no tokens configured, nothing should validate")
	}
}

func TestTokenAuth_IgnoresEmptyConfiguredToken(t *testing.T) {
	auth := NewTokenAuth([]string{"", "real"})
	if auth.ValidateToken("") {
		t.Error("empty token must never validate")
	}
	if !auth.ValidateToken("real") {
		t.Error("real should be valid")
	}
}
