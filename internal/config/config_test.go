package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/openmarket/openmarket-cli/internal/request"
)

// testKeyring creates a mock keyring for testing
func testKeyring(t *testing.T, initial []keyring.Item) *keyring.ArrayKeyring {
	t.Helper()
	return keyring.NewArrayKeyring(initial)
}

// withMockKeyring sets up a mock keyring for the duration of a test
func withMockKeyring(t *testing.T, ring keyring.Keyring) {
	t.Helper()
	restore := SetOpenKeyring(func(cfg keyring.Config) (keyring.Keyring, error) {
		return ring, nil
	})
	t.Cleanup(restore)
}

// withFailingKeyring sets up a keyring that always fails to open
func withFailingKeyring(t *testing.T, err error) {
	t.Helper()
	restore := SetOpenKeyring(func(cfg keyring.Config) (keyring.Keyring, error) {
		return nil, err
	})
	t.Cleanup(restore)
}

func clearAccountEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envHost, envIdentifier, envSecret, envProfile} {
		t.Setenv(key, "")
	}
}

func TestProfileKey(t *testing.T) {
	tests := []struct {
		profile  string
		expected string
	}{
		{"", accountKey},
		{"default", accountKey},
		{"work", profilePrefix + "work"},
	}
	for _, tt := range tests {
		if got := profileKey(tt.profile); got != tt.expected {
			t.Errorf("profileKey(%q) = %q, want %q", tt.profile, got, tt.expected)
		}
	}
}

func TestNormalizeProfiles(t *testing.T) {
	got := normalizeProfiles([]string{" work ", "", "default", "work", "staging"})
	want := []string{"work", "default", "staging"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("normalizeProfiles() = %v, want %v", got, want)
	}
}

func TestLoadAccountFromEnv(t *testing.T) {
	clearAccountEnv(t)
	withFailingKeyring(t, errors.New("keyring must not be touched"))

	t.Setenv(envIdentifier, "vendor-7")
	t.Setenv(envSecret, "s3cret")
	t.Setenv(envHost, "staging.example.com")

	account, err := LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount() error = %v", err)
	}
	if account.Identifier != "vendor-7" || account.Secret != "s3cret" || account.Host != "staging.example.com" {
		t.Errorf("LoadAccount() = %+v", account)
	}
}

func TestLoadAccountFromEnvRequiresBoth(t *testing.T) {
	clearAccountEnv(t)
	t.Setenv(envIdentifier, "vendor-7")

	_, err := LoadAccount()
	if err == nil {
		t.Fatal("expected error when secret is missing")
	}
	if !strings.Contains(err.Error(), envSecret) {
		t.Errorf("error = %q, want mention of %s", err, envSecret)
	}
}

func TestLoadAccountNotConfigured(t *testing.T) {
	clearAccountEnv(t)
	withMockKeyring(t, testKeyring(t, nil))

	_, err := LoadAccount()
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("LoadAccount() error = %v, want ErrNotConfigured", err)
	}
	if HasAccount() {
		t.Error("HasAccount() = true with empty keyring")
	}
}

func TestSaveAndLoadProfiles(t *testing.T) {
	clearAccountEnv(t)
	ring := testKeyring(t, nil)
	withMockKeyring(t, ring)

	if err := SaveProfile("", Account{Identifier: "a", Secret: "1"}); err != nil {
		t.Fatalf("SaveProfile(default) error = %v", err)
	}
	if err := SaveProfile("staging", Account{Host: "staging.example.com", Identifier: "b", Secret: "2"}); err != nil {
		t.Fatalf("SaveProfile(staging) error = %v", err)
	}

	current, err := CurrentProfile()
	if err != nil || current != "staging" {
		t.Fatalf("CurrentProfile() = %q, %v; want staging", current, err)
	}

	account, err := LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount() error = %v", err)
	}
	if account.Identifier != "b" || account.Host != "staging.example.com" {
		t.Errorf("LoadAccount() = %+v, want staging account", account)
	}

	t.Setenv(envProfile, "default")
	account, err = LoadAccount()
	if err != nil || account.Identifier != "a" {
		t.Errorf("LoadAccount() with %s = %+v, %v", envProfile, account, err)
	}

	profiles, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if strings.Join(profiles, ",") != "default,staging" {
		t.Errorf("ListProfiles() = %v", profiles)
	}

	item, err := ring.Get(profileKey("staging"))
	if err != nil {
		t.Fatalf("ring.Get() error = %v", err)
	}
	var stored Account
	if err := json.Unmarshal(item.Data, &stored); err != nil {
		t.Fatalf("stored profile is not JSON: %v", err)
	}
	if stored.Secret != "2" {
		t.Errorf("stored secret = %q", stored.Secret)
	}
}

func TestSaveProfileRequiresCredentials(t *testing.T) {
	withMockKeyring(t, testKeyring(t, nil))
	if err := SaveProfile("work", Account{Identifier: "a"}); err == nil {
		t.Error("expected error for missing secret")
	}
}

func TestDeleteProfileSwitchesCurrentProfile(t *testing.T) {
	clearAccountEnv(t)
	withMockKeyring(t, testKeyring(t, nil))

	if err := SaveProfile("work", Account{Identifier: "a", Secret: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := SaveProfile("home", Account{Identifier: "b", Secret: "2"}); err != nil {
		t.Fatal(err)
	}
	if err := DeleteProfile("home"); err != nil {
		t.Fatalf("DeleteProfile() error = %v", err)
	}

	current, err := CurrentProfile()
	if err != nil || current != "work" {
		t.Errorf("CurrentProfile() = %q, %v; want work", current, err)
	}
	if _, err := LoadProfile("home"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("LoadProfile(home) error = %v, want ErrNotConfigured", err)
	}
}

func TestKeyringErrorsAreWrapped(t *testing.T) {
	clearAccountEnv(t)
	boom := errors.New("locked")
	withFailingKeyring(t, boom)

	if _, err := LoadProfile("x"); !errors.Is(err, boom) {
		t.Errorf("LoadProfile() error = %v", err)
	}
	if err := SaveProfile("x", Account{Identifier: "a", Secret: "b"}); !errors.Is(err, boom) {
		t.Errorf("SaveProfile() error = %v", err)
	}
	if _, err := ListProfiles(); !errors.Is(err, boom) {
		t.Errorf("ListProfiles() error = %v", err)
	}
}

func TestRedacted(t *testing.T) {
	a := Account{Identifier: "v", Secret: "hunter2"}.Redacted()
	if a.Secret == "hunter2" {
		t.Error("Redacted() kept the secret")
	}
	if (Account{}).Redacted().Secret != "" {
		t.Error("Redacted() should leave an empty secret empty")
	}
}

func TestShouldForceFileBackend(t *testing.T) {
	tests := []struct {
		goos, backend, dbus string
		want                bool
	}{
		{"linux", keyringBackendAuto, "", true},
		{"linux", keyringBackendAuto, "unix:path=/run/bus", false},
		{"darwin", keyringBackendAuto, "", false},
		{"darwin", keyringBackendFile, "", true},
		{"linux", keyringBackendSystem, "", false},
	}
	for _, tt := range tests {
		if got := shouldForceFileBackend(tt.goos, tt.backend, tt.dbus); got != tt.want {
			t.Errorf("shouldForceFileBackend(%q, %q, %q) = %v, want %v", tt.goos, tt.backend, tt.dbus, got, tt.want)
		}
	}
}

func TestKeyringBackendMode(t *testing.T) {
	for value, want := range map[string]string{
		"":        keyringBackendAuto,
		"FILE":    keyringBackendFile,
		" native": keyringBackendSystem,
		"bogus":   keyringBackendAuto,
	} {
		t.Setenv(envKeyringBackend, value)
		if got := keyringBackendMode(); got != want {
			t.Errorf("keyringBackendMode(%q) = %q, want %q", value, got, want)
		}
	}
}

func TestKeyringConfigSystemBackend(t *testing.T) {
	t.Setenv(envKeyringBackend, "system")
	cfg := keyringConfig()
	if cfg.ServiceName != serviceName {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.FileDir != "" || len(cfg.AllowedBackends) != 0 {
		t.Errorf("system backend should not configure file storage: %+v", cfg)
	}
}

func TestKeyringFileDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envCredentialsDir, dir)
	if got := keyringFileDir(); got != filepath.Join(dir, "keyring") {
		t.Errorf("keyringFileDir() = %q", got)
	}
}

func TestKeyringFilePassword(t *testing.T) {
	t.Setenv(envKeyringPassword, "pw")
	got, err := keyringFilePassword("prompt")
	if err != nil || got != "pw" {
		t.Errorf("keyringFilePassword() = %q, %v", got, err)
	}

	t.Setenv(envKeyringPassword, "")
	original := stdinHasTTY
	stdinHasTTY = func() bool { return false }
	t.Cleanup(func() { stdinHasTTY = original })
	if _, err := keyringFilePassword("prompt"); err == nil {
		t.Error("expected error without TTY or password")
	}
}

func TestResolveClientConfig(t *testing.T) {
	clearAccountEnv(t)
	t.Setenv(envIdentifier, "vendor")
	t.Setenv(envSecret, "pw")

	cfg, err := ResolveClientConfig("")
	if err != nil {
		t.Fatalf("ResolveClientConfig() error = %v", err)
	}
	if cfg.Host != request.DefaultHost {
		t.Errorf("Host = %q, want default %q", cfg.Host, request.DefaultHost)
	}

	t.Setenv(envHost, "https://env.example.com/")
	cfg, _ = ResolveClientConfig("")
	if cfg.Host != "env.example.com" || cfg.Scheme != "https" {
		t.Errorf("Host = %s://%s, want https://env.example.com", cfg.Scheme, cfg.Host)
	}

	cfg, _ = ResolveClientConfig("http://127.0.0.1:8080")
	if cfg.Host != "127.0.0.1:8080" || cfg.Scheme != "http" {
		t.Errorf("Host = %s://%s, want http flag override", cfg.Scheme, cfg.Host)
	}
}

func TestResolveClientConfigNotConfigured(t *testing.T) {
	clearAccountEnv(t)
	withMockKeyring(t, testKeyring(t, nil))
	if _, err := ResolveClientConfig(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ResolveClientConfig() error = %v, want ErrNotConfigured", err)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(t.TempDir())
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.PerPage != 20 || s.MaxPages != 50 {
		t.Errorf("paging defaults = %d/%d", s.PerPage, s.MaxPages)
	}
	if s.Thumbnail.Capacity != 256 || s.Cache.Backend != CacheBackendDir {
		t.Errorf("defaults = %+v", s)
	}
	if s.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v", s.Cache.TTL)
	}
	if s.File != "" {
		t.Errorf("File = %q, want empty without config.yaml", s.File)
	}
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "per_page: 40\nthumbnail:\n  capacity: 8\n  max_dimension: 300\ncache:\n  backend: redis\n  redis_url: redis://localhost:6379/0\n  ttl: 2h\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENMARKET_PER_PAGE", "10")

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.PerPage != 10 {
		t.Errorf("PerPage = %d, want env override 10", s.PerPage)
	}
	if s.Thumbnail.Capacity != 8 || s.Thumbnail.MaxDimension != 300 {
		t.Errorf("Thumbnail = %+v", s.Thumbnail)
	}
	if s.Cache.Backend != CacheBackendRedis || s.Cache.TTL != 2*time.Hour {
		t.Errorf("Cache = %+v", s.Cache)
	}
	if s.File == "" {
		t.Error("File should name the config that was read")
	}
}

func TestSettingsValidate(t *testing.T) {
	base := Settings{PerPage: 20, MaxPages: 1, Thumbnail: ThumbnailSettings{Capacity: 1}, Cache: CacheSettings{Backend: CacheBackendNone}}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := []func(s *Settings){
		func(s *Settings) { s.PerPage = 0 },
		func(s *Settings) { s.PerPage = 101 },
		func(s *Settings) { s.Thumbnail.Capacity = 0 },
		func(s *Settings) { s.Thumbnail.MaxDimension = -1 },
		func(s *Settings) { s.Cache.Backend = "memcached" },
		func(s *Settings) { s.Cache.Backend = CacheBackendRedis },
	}
	for i, mutate := range bad {
		s := base
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, s)
		}
	}
}

func TestReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.env")
	content := "OPENMARKET_IDENTIFIER=vendor\nOPENMARKET_SECRET=\"pw\"\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	account, err := ReadEnvFile(path)
	if err != nil {
		t.Fatalf("ReadEnvFile() error = %v", err)
	}
	if account.Identifier != "vendor" || account.Secret != "pw" || account.Host != "" {
		t.Errorf("ReadEnvFile() = %+v", account)
	}

	if err := os.WriteFile(path, []byte("OPENMARKET_IDENTIFIER=vendor\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadEnvFile(path); err == nil {
		t.Error("expected error when secret is missing")
	}
}
