package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Port  int    `yaml:"port"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_TOKEN", "s3cret")
	p := writeConfig(t, "name: ${TEST_NAME:-lifepress}\ntoken: ${TEST_TOKEN}\nport: 9090\n")

	cfg := testConfig{}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "lifepress" || cfg.Token != "s3cret" || cfg.Port != 9090 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	p := writeConfig(t, "name: blog\n")
	cfg := testConfig{Port: 8080}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "blog" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	p := writeConfig(t, "port: 0\n")
	cfg := testConfig{}
	err := Load(p, &cfg)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := testConfig{}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := testConfig{Port: 8080}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("defaults lost: %+v", cfg)
	}

	bad := testConfig{}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &bad); err == nil {
		t.Error("missing file should still validate defaults")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SET_VAR", "x")
	t.Setenv("EMPTY_VAR", "")
	cases := map[string]string{
		"$SET_VAR":              "x",
		"${SET_VAR:-y}":         "x",
		"${EMPTY_VAR:-y}":       "y",
		"${UNSET_VAR_XYZ:-a:b}": "a:b",
		"${UNSET_VAR_XYZ}":      "",
	}
	for in, want := range cases {
		if got := expandEnv(in); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}
