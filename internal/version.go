package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Version is the current release of syncstream.
const Version = "0.1.0"

const (
	GitHubOwner = "Falco0906"
	GitHubRepo  = "syncstream"
)

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// releasesURL is overridden in tests.
var releasesURL = fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", GitHubOwner, GitHubRepo)

// GetLatestVersion fetches the newest published release tag without its "v" prefix.
func GetLatestVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releasesURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	return strings.TrimPrefix(release.TagName, "v"), nil
}

// CompareVersions compares two release versions with or without the "v"
// prefix. Pre-releases sort before their release; an unparsable version
// sorts before any valid one.
// Returns: 1 if v1 > v2, -1 if v1 < v2, 0 if equal
func CompareVersions(v1, v2 string) int {
	return semver.Compare(canonicalVersion(v1), canonicalVersion(v2))
}

func canonicalVersion(v string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// GetDownloadURL returns the download URL for the current platform
func GetDownloadURL(version string) string {
	baseURL := fmt.Sprintf("https://github.com/%s/%s/releases/download/v%s", GitHubOwner, GitHubRepo, version)
	return fmt.Sprintf("%s/%s", baseURL, GetPlatform())
}

// GetPlatform returns the binary name for the current platform
func GetPlatform() string {
	osName := runtime.GOOS
	arch := runtime.GOARCH

	switch osName {
	case "darwin":
		if arch == "arm64" {
			return "syncstream-macos-arm64"
		}
		return "syncstream-macos-amd64"
	case "linux":
		if arch == "arm64" {
			return "syncstream-linux-arm64"
		}
		return "syncstream-linux-amd64"
	case "windows":
		return "syncstream-windows-amd64.exe"
	default:
		return "syncstream-unknown"
	}
}
