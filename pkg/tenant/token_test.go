package tenant

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, err := tg.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q missing prefix %q", token, TokenPrefix)
	}
	if hash != tg.Hash(token) {
		t.Error("returned hash does not match Hash of the token")
	}
	if err := tg.ValidateFormat(token); err != nil {
		t.Errorf("generated token failed format validation: %v", err)
	}

	second, _, err := tg.Generate()
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	if second == token {
		t.Error("two generated tokens are identical")
	}
}

func TestValidateFormat(t *testing.T) {
	tg := NewTokenGenerator()

	cases := []struct {
		name  string
		token string
		valid bool
	}{
		{"empty", "", false},
		{"wrong prefix", "sk_abcdef", false},
		{"prefix only", "ks_", false},
		{"bad encoding", "ks_!!!!", false},
		{"valid", "ks_dGVzdHRva2VudGVzdHRva2Vu", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tg.ValidateFormat(tc.token)
			if tc.valid && err != nil {
				t.Errorf("ValidateFormat(%q) = %v, want nil", tc.token, err)
			}
			if !tc.valid && err == nil {
				t.Errorf("ValidateFormat(%q) = nil, want error", tc.token)
			}
		})
	}
}

func TestHashStable(t *testing.T) {
	tg := NewTokenGenerator()
	if tg.Hash("ks_abc") != tg.Hash("ks_abc") {
		t.Error("hashing the same token twice differs")
	}
	if tg.Hash("ks_abc") == tg.Hash("ks_abd") {
		t.Error("different tokens hash identically")
	}
	if len(tg.Hash("ks_abc")) != 64 {
		t.Error("hash is not hex sha256")
	}
}
