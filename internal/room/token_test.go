package room

import (
	"strings"
	"testing"
)

func TestMintToken(t *testing.T) {
	token, err := MintToken(TokenRequest{
		APIKey:     "devkey",
		APISecret:  "secretsecretsecretsecretsecretsecret",
		Room:       "my-room",
		Identity:   "viewer-1",
		Attributes: map[string]string{AttrUserType: UserTypeListener},
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected a JWT with 3 parts, got %d", len(parts))
	}
}

func TestMintToken_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		req  TokenRequest
	}{
		{"no key", TokenRequest{APISecret: "s", Room: "r", Identity: "i"}},
		{"no secret", TokenRequest{APIKey: "k", Room: "r", Identity: "i"}},
		{"no room", TokenRequest{APIKey: "k", APISecret: "s", Identity: "i"}},
		{"no identity", TokenRequest{APIKey: "k", APISecret: "s", Room: "r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MintToken(tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}
