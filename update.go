package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// releaseURL is the GitHub API endpoint for the latest datapilot release
var releaseURL = "https://api.github.com/repos/3rg0n/datapilot/releases/latest"

const installCommand = "go install github.com/3rg0n/datapilot@latest"

// GitHubRelease represents the GitHub API release response
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdate compares the running version with the latest release at url.
// Returns (latestVersion, updateAvailable, error)
func CheckForUpdate(ctx context.Context, url string) (string, bool, error) {
	// Skip check for dev builds
	if Version == "dev" || Version == "" {
		return "", false, nil
	}

	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "datapilot/"+Version)

	resp, err := client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", false, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(Version, "v")
	return release.TagName, compareVersions(latest, current) > 0, nil
}

// compareVersions compares two semantic versions
// Returns: 1 if a > b, -1 if a < b, 0 if equal
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for len(aParts) < 3 {
		aParts = append(aParts, "0")
	}
	for len(bParts) < 3 {
		bParts = append(bParts, "0")
	}

	for i := 0; i < 3; i++ {
		aNum := parseVersionPart(aParts[i])
		bNum := parseVersionPart(bParts[i])
		if aNum > bNum {
			return 1
		}
		if aNum < bNum {
			return -1
		}
	}
	return 0
}

// parseVersionPart extracts the leading number of a version component ("1-beta", "2rc1")
func parseVersionPart(s string) int {
	num := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		num = num*10 + int(c-'0')
	}
	return num
}

// printUpdateNotice writes an update notice when a newer release exists.
// Lookup failures are reported only when verbose.
func printUpdateNotice(ctx context.Context, w io.Writer, theme *Theme, verbose bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	latest, available, err := CheckForUpdate(ctx, releaseURL)
	switch {
	case err != nil:
		if verbose {
			_, _ = fmt.Fprintf(w, "%s update check failed: %v\n", theme.Warning("Warning:"), err)
		}
	case available:
		_, _ = fmt.Fprintf(w, "%s %s -> %s\n", theme.Warning("Update available:"), Version, latest)
		_, _ = fmt.Fprintf(w, "Run: %s\n", theme.Info(installCommand))
	case latest != "":
		_, _ = fmt.Fprintf(w, "%s datapilot %s is the latest release\n", theme.Success("✓"), Version)
	default:
		_, _ = fmt.Fprintln(w, "Development build, update check skipped")
	}
}
