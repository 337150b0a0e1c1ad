// Package update checks GitHub for a newer om release.
package update

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/openmarket/openmarket-cli/internal/cache"
)

const (
	// DefaultGitHubReleasesURL is the default URL for checking releases.
	DefaultGitHubReleasesURL = "https://api.github.com/repos/openmarket/openmarket-cli/releases/latest"
	CheckTimeout             = 5 * time.Second
	// CheckInterval is how long a release lookup is reused.
	CheckInterval = 24 * time.Hour
)

// GitHubReleasesURL is the URL to check for releases. Can be overridden in tests.
var GitHubReleasesURL = DefaultGitHubReleasesURL

type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type CheckResult struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateURL       string `json:"update_url,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// Disabled reports whether OPENMARKET_NO_UPDATE_CHECK is set.
func Disabled() bool {
	return os.Getenv("OPENMARKET_NO_UPDATE_CHECK") != ""
}

// CheckForUpdate checks if a newer version is available. The latest release
// is remembered in cacheDir for CheckInterval when cacheDir is not empty.
// Returns nil if the check fails; it never blocks the CLI.
func CheckForUpdate(ctx context.Context, currentVersion, cacheDir string) *CheckResult {
	if currentVersion == "dev" || currentVersion == "" || Disabled() {
		return nil
	}

	var store *cache.Store
	if cacheDir != "" {
		store = cache.NewStoreWithTTL(cacheDir, "release", GitHubReleasesURL, CheckInterval)
	}

	var release Release
	if store == nil || !store.Get(&release) || release.TagName == "" {
		fetched, ok := fetchLatest(ctx)
		if !ok {
			return nil
		}
		release = fetched
		if store != nil {
			store.Put(release)
		}
	}

	return compare(currentVersion, release)
}

func fetchLatest(ctx context.Context) (Release, bool) {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GitHubReleasesURL, nil)
	if err != nil {
		return Release{}, false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Release{}, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Release{}, false
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return Release{}, false
	}
	return release, true
}

func compare(currentVersion string, release Release) *CheckResult {
	current := normalizeVersion(currentVersion)
	latest := normalizeVersion(release.TagName)

	result := &CheckResult{
		CurrentVersion: currentVersion,
		LatestVersion:  strings.TrimPrefix(release.TagName, "v"),
		UpdateURL:      release.HTMLURL,
	}
	if semver.IsValid(current) && semver.IsValid(latest) {
		result.UpdateAvailable = semver.Compare(latest, current) > 0
	}
	return result
}

func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
