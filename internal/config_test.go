package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_NeedsRepository(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("github backend without owner/repo should fail")
	}
	cfg.GitHub.Owner = "me"
	cfg.GitHub.Repo = "life"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestStoreConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{"github", StoreConfig{Backend: BackendGitHub}, false},
		{"local", StoreConfig{Backend: BackendLocal, Local: LocalConfig{Path: "./content"}}, false},
		{"local without path", StoreConfig{Backend: BackendLocal}, true},
		{"unknown backend", StoreConfig{Backend: "s3"}, true},
		{"good exclude", StoreConfig{Backend: BackendGitHub, Exclude: []string{"**/drafts/**", "notes/_*.md"}}, false},
		{"bad exclude", StoreConfig{Backend: BackendGitHub, Exclude: []string{"notes/[.md"}}, true},
		{"depth too deep", StoreConfig{Backend: BackendGitHub, Depth: 20}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestLocalBackendSkipsGitHubValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Store.Backend = BackendLocal
	if err := cfg.Validate(); err != nil {
		t.Fatalf("local backend should not need a repository: %v", err)
	}
}

func TestCacheConfig_NegativeTTL(t *testing.T) {
	cfg := CacheConfig{TTL: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative ttl should fail")
	}
}
