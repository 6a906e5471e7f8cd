package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestStringPlain(t *testing.T) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	defer func() { Version, GitCommit, BuildDate = origVersion, origCommit, origDate }()

	Version = "1.2.3"
	GitCommit = "abc123"
	BuildDate = "2024-01-15"
	if got, want := String(false), "cabi 1.2.3 (abc123) built 2024-01-15"; got != want {
		t.Fatalf("String(false) = %q, want %q", got, want)
	}

	GitCommit, BuildDate = "", ""
	if got, want := String(false), "cabi 1.2.3"; got != want {
		t.Fatalf("String(false) = %q, want %q", got, want)
	}
}

func TestColoredKeepsSuffix(t *testing.T) {
	origVersion, origNoColor := Version, color.NoColor
	defer func() { Version, color.NoColor = origVersion, origNoColor }()
	color.NoColor = true

	for _, v := range []string{"0.1.0-dev", "1.2.3", "1.0.0-rc.1+build.7"} {
		Version = v
		if got := Colored(); got != v {
			t.Errorf("Colored() = %q, want %q", got, v)
		}
	}

	Version = "snapshot"
	if got := Colored(); !strings.Contains(got, "snapshot") {
		t.Errorf("Colored() = %q", got)
	}
}
