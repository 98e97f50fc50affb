package auth

import (
	"strings"
	"testing"
)

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	if !strings.HasPrefix(s.Plaintext, "pdv_") || len(s.Plaintext) != 4+2*SecretBytes {
		t.Errorf("unexpected secret %q", s.Plaintext)
	}
	if !ValidateSecretFormat(s.Plaintext) {
		t.Errorf("generated secret fails format check: %q", s.Plaintext)
	}

	match, err := VerifySecret(s.Plaintext, s.Hash)
	if err != nil || !match {
		t.Errorf("hash does not verify: match=%v err=%v", match, err)
	}
}

func TestValidateSecretFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"pdv_" + strings.Repeat("a1", 20), true},
		{"pdv_" + strings.Repeat("A1", 20), false},
		{"pdv_" + strings.Repeat("a", 39), false},
		{"pk_" + strings.Repeat("a", 40), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateSecretFormat(tt.in); got != tt.want {
			t.Errorf("ValidateSecretFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
