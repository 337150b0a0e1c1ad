package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmarket/openmarket-cli/internal/update"
)

func setVersion(t *testing.T, v string) {
	t.Helper()
	old := version
	version = v
	t.Cleanup(func() { version = old })
}

func TestVersionText(t *testing.T) {
	isolateEnv(t)
	setVersion(t, "1.2.3")

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"version"}))
	})
	assert.Equal(t, "openmarket-cli version 1.2.3", strings.TrimSpace(output))
}

func TestVersionReportsUpdate(t *testing.T) {
	isolateEnv(t)
	setVersion(t, "1.2.3")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": "v1.3.0", "html_url": "https://github.com/openmarket/openmarket-cli/releases/tag/v1.3.0"}`))
	}))
	t.Cleanup(server.Close)
	oldURL := update.GitHubReleasesURL
	update.GitHubReleasesURL = server.URL
	t.Cleanup(func() { update.GitHubReleasesURL = oldURL })
	t.Setenv("OPENMARKET_NO_UPDATE_CHECK", "")

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"version", "--json"}))
	})
	payload := decodeJSON(t, output)
	assert.Equal(t, "1.2.3", payload["version"])
	upd := payload["update"].(map[string]any)
	assert.Equal(t, true, upd["update_available"])

	var stderr string
	stdout := captureStdout(t, func() {
		stderr = captureStderr(t, func() {
			require.NoError(t, Execute(context.Background(), []string{"version"}))
		})
	})
	assert.Contains(t, stdout, "1.2.3")
	assert.Contains(t, stderr, "Update available: 1.2.3 -> 1.3.0")
}

func TestVersionDevSkipsCheck(t *testing.T) {
	isolateEnv(t)
	setVersion(t, "dev")

	output := captureStdout(t, func() {
		require.NoError(t, Execute(context.Background(), []string{"version", "--json"}))
	})
	payload := decodeJSON(t, output)
	assert.Equal(t, "dev", payload["version"])
	assert.Nil(t, payload["update"])
}
