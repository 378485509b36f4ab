package update

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    version
		wantErr bool
	}{
		{"1.2.3", version{1, 2, 3}, false},
		{"v0.1.5", version{0, 1, 5}, false},
		{"v1.0.0-dirty", version{1, 0, 0}, false},
		{"v2.3.4-rc1+build", version{2, 3, 4}, false},
		{"dev", version{}, true},
		{"", version{}, true},
		{"1.2", version{}, true},
	}

	for _, tt := range tests {
		got, err := parseVersion(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseVersion(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestReleaseNewerThan(t *testing.T) {
	tests := []struct {
		release string
		current string
		want    bool
	}{
		{"v0.2.0", "v0.1.5", true},
		{"v0.1.5", "v0.1.5", false},
		{"v0.1.4", "v0.1.5", false},
		{"v1.0.0", "v0.9.9", true},
		{"v0.1.6", "v0.1.5-dirty", true},
		{"v0.1.5", "dev", false},
		{"invalid", "v0.1.5", false},
	}

	for _, tt := range tests {
		got := Release{Version: tt.release}.NewerThan(tt.current)
		if got != tt.want {
			t.Errorf("Release{%q}.NewerThan(%q) = %v, want %v", tt.release, tt.current, got, tt.want)
		}
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rel := &Release{Version: "v0.2.0", AssetURL: "https://example.com/voxd", ChecksumURL: "https://example.com/checksums.txt"}
	writeCache(dir, rel)

	got, ok := readCache(dir)
	if !ok || got == nil {
		t.Fatalf("readCache = %v, %v", got, ok)
	}
	if *got != *rel {
		t.Errorf("readCache = %+v, want %+v", got, rel)
	}

	// A cached "no update" answer is valid too.
	writeCache(dir, nil)
	got, ok = readCache(dir)
	if !ok {
		t.Fatal("readCache rejected cached nil release")
	}
	if got != nil {
		t.Errorf("readCache = %+v, want nil", got)
	}

	_ = os.WriteFile(filepath.Join(dir, cacheFile), []byte("not json"), 0644)
	if _, ok := readCache(dir); ok {
		t.Error("readCache accepted a corrupt cache")
	}
}
