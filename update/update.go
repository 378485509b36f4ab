// Package update checks GitHub releases for newer builds and swaps the
// running binary in place.
package update

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	Repo       = "voxd/voxd"
	BinaryName = "voxd"

	cacheFile     = "update_check.json"
	cacheTTL      = 24 * time.Hour
	checkInterval = 6 * time.Hour
)

// Release describes a downloadable build newer than the running one.
type Release struct {
	Version     string
	AssetURL    string
	ChecksumURL string
}

// version holds major, minor, patch.
type version [3]int

func parseVersion(v string) (version, error) {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return version{}, fmt.Errorf("invalid version: %q", v)
	}
	var out version
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return version{}, fmt.Errorf("invalid version: %q", v)
		}
		out[i] = n
	}
	return out, nil
}

func (a version) after(b version) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// NewerThan reports whether the release is strictly newer than current.
// Unparseable versions on either side compare as not newer.
func (r Release) NewerThan(current string) bool {
	cur, err := parseVersion(current)
	if err != nil {
		return false
	}
	rel, err := parseVersion(r.Version)
	if err != nil {
		return false
	}
	return rel.after(cur)
}

func assetName() string {
	return fmt.Sprintf("%s_%s_%s", BinaryName, runtime.GOOS, runtime.GOARCH)
}

// Check queries the GitHub API for the latest release. It returns nil with no
// error when the running build is current, or when it is a dev build.
func Check(currentVersion string) (*Release, error) {
	if currentVersion == "dev" {
		return nil, nil
	}

	req, err := http.NewRequest("GET",
		fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", Repo), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api: %s", resp.Status)
	}

	var gh struct {
		TagName string `json:"tag_name"`
		Assets  []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
		return nil, err
	}

	rel := &Release{Version: gh.TagName}
	for _, a := range gh.Assets {
		switch a.Name {
		case assetName():
			rel.AssetURL = a.BrowserDownloadURL
		case "checksums.txt":
			rel.ChecksumURL = a.BrowserDownloadURL
		}
	}
	if rel.AssetURL == "" {
		return nil, fmt.Errorf("no asset %q in release %s", assetName(), gh.TagName)
	}
	if !rel.NewerThan(currentVersion) {
		return nil, nil
	}
	return rel, nil
}

type checkCache struct {
	Release   *Release `json:"release"`
	CheckedAt string   `json:"checked_at"`
}

func readCache(dir string) (*Release, bool) {
	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if err != nil {
		return nil, false
	}
	var c checkCache
	if json.Unmarshal(data, &c) != nil {
		return nil, false
	}
	at, err := time.Parse(time.RFC3339, c.CheckedAt)
	if err != nil || time.Since(at) > cacheTTL {
		return nil, false
	}
	return c.Release, true
}

func writeCache(dir string, rel *Release) {
	data, err := json.Marshal(checkCache{Release: rel, CheckedAt: time.Now().Format(time.RFC3339)})
	if err != nil {
		return
	}
	_ = os.MkdirAll(dir, 0755)
	_ = os.WriteFile(filepath.Join(dir, cacheFile), data, 0644)
}

// CheckCached is Check behind a day-long on-disk cache, so background checks
// do not hammer the API across restarts.
func CheckCached(currentVersion, cacheDir string) (*Release, error) {
	if currentVersion == "dev" {
		return nil, nil
	}
	if rel, ok := readCache(cacheDir); ok {
		return rel, nil
	}
	rel, err := Check(currentVersion)
	if err != nil {
		return nil, err
	}
	writeCache(cacheDir, rel)
	return rel, nil
}

// StartBackgroundCheck polls for updates and invokes notify once per newer
// release found. No-op for dev builds.
func StartBackgroundCheck(currentVersion, cacheDir string, notify func(Release)) {
	if currentVersion == "dev" {
		return
	}
	go func() {
		seen := ""
		check := func() {
			rel, err := CheckCached(currentVersion, cacheDir)
			if err != nil || rel == nil || rel.Version == seen {
				return
			}
			seen = rel.Version
			notify(*rel)
		}
		check()
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for range ticker.C {
			check()
		}
	}()
}
