package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openmarket/openmarket-cli/internal/request"
)

// ClientConfig contains resolved API client settings.
type ClientConfig struct {
	Scheme     string // https unless the host was given as an http:// URL
	Host       string
	Identifier string
	Secret     string
}

// ResolveClientConfig merges stored credentials with OPENMARKET_HOST and
// a --host override. The host falls back to request.DefaultHost.
func ResolveClientConfig(hostOverride string) (ClientConfig, error) {
	account, err := LoadAccount()
	if err != nil {
		return ClientConfig{}, err
	}

	cfg := ClientConfig{
		Host:       account.Host,
		Identifier: account.Identifier,
		Secret:     account.Secret,
	}
	if envHost := strings.TrimSpace(os.Getenv(envHost)); envHost != "" {
		cfg.Host = envHost
	}
	if hostOverride = strings.TrimSpace(hostOverride); hostOverride != "" {
		cfg.Host = hostOverride
	}
	cfg.Scheme, cfg.Host = SplitHost(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = request.DefaultHost
	}

	if cfg.Identifier == "" {
		return ClientConfig{}, errors.Join(ErrNotConfigured, fmt.Errorf("vendor identifier is empty"))
	}
	return cfg, nil
}

// SplitHost accepts a bare host or a pasted URL and returns its scheme
// (https by default) and host with trailing slashes removed.
func SplitHost(raw string) (scheme, host string) {
	host = strings.TrimSpace(raw)
	scheme = request.DefaultScheme
	switch {
	case strings.HasPrefix(host, "https://"):
		host = strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		scheme = "http"
		host = strings.TrimPrefix(host, "http://")
	}
	return scheme, strings.TrimRight(host, "/")
}
