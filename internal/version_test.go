package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"0.1.0", "0.1.0", 0},
		{"v0.2.0", "0.1.9", 1},
		{"0.10.0", "0.9.0", 1},
		{"1.0", "1.0.0", 0},
		{"1.2.3-rc1", "1.2.3", -1},
		{"1.2.3+build.7", "1.2.3", 0},
		{"not-a-version", "0.0.1", -1},
		{"0.1.0", "0.1.1", -1},
	}
	for _, c := range cases {
		if got := CompareVersions(c.a, c.b); got != c.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestGetLatestVersion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, GitHubRelease{TagName: "v0.3.1"})
	}))
	defer ts.Close()

	orig := releasesURL
	releasesURL = ts.URL
	defer func() { releasesURL = orig }()

	got, err := GetLatestVersion(context.Background())
	if err != nil || got != "0.3.1" {
		t.Fatalf("got %q, %v", got, err)
	}
}
