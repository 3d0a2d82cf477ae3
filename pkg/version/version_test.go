package version

import "testing"

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version == "" || info.GitCommit == "" || info.BuildDate == "" {
		t.Fatalf("expected non-empty version info")
	}
}

func TestGetShortCommit(t *testing.T) {
	orig := GitCommit
	defer func() { GitCommit = orig }()

	GitCommit = "0123456789abcdef"
	if got := GetShortCommit(); got != "0123456" {
		t.Fatalf("expected 0123456, got %q", got)
	}
	GitCommit = "abc"
	if got := GetShortCommit(); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}
