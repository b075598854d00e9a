package update

import (
	"errors"
	"strings"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1.2.0", "1.2.0", false},
		{"v1.2.0", "1.2.0", false},
		{" 4.5.6\n", "4.5.6", false},
		{"1.3.0-alpha.1", "1.3.0-alpha.1", false},
		{"1.0.0+build123", "1.0.0+build123", false},
		{"9999.9999.9999", "9999.9999.9999", false},

		{"", "", true},
		{"   ", "", true},
		{"v", "", true},
		{"1", "", true},
		{"1.2", "", true},
		{"v1.2", "", true},
		{"01.2.3", "", true},
		{"not-a-version", "", true},
		{"1.2.3.4", "", true},
		{"<html>oops</html>", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVersion) {
					t.Fatalf("ParseVersion(%q) err = %v, want ErrInvalidVersion", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("ParseVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2.0", "1.3.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.2.0-alpha.1", "1.2.0", -1},
		{"1.2.0-alpha.2", "1.2.0-alpha.10", -1},
		{"1.0.0+a", "1.0.0+b", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got, err := CompareVersions(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CompareVersions: %v", err)
			}
			if got != tt.want {
				t.Fatalf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if _, err := CompareVersions("1.0.0", "bogus"); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestReleaseVersionAndPrerelease(t *testing.T) {
	rel, err := ReleaseVersion("1.2.0-alpha.2+meta")
	if err != nil {
		t.Fatalf("ReleaseVersion: %v", err)
	}
	if rel != "1.2.0" {
		t.Fatalf("ReleaseVersion = %q, want 1.2.0", rel)
	}

	ids, err := PrereleaseIdentifiers("1.3.0-alpha.1")
	if err != nil {
		t.Fatalf("PrereleaseIdentifiers: %v", err)
	}
	if strings.Join(ids, ",") != "alpha,1" {
		t.Fatalf("PrereleaseIdentifiers = %v", ids)
	}

	ids, err = PrereleaseIdentifiers("1.3.0")
	if err != nil {
		t.Fatalf("PrereleaseIdentifiers: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no identifiers, got %v", ids)
	}
}

func TestIsNewerAlphaVersionAvailable(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		candidate string
		want      bool
	}{
		{"newer alpha", "1.2.0", "1.3.0-alpha.1", true},
		{"same release alpha respin", "1.2.0", "1.2.0-alpha.2", true},
		{"older release alpha", "1.2.0", "1.1.0-alpha.9", false},
		{"newer without alpha tag", "1.2.0", "1.3.0", false},
		{"newer beta", "1.2.0", "1.3.0-beta.1", false},
		{"alpha-like identifier is not alpha", "1.2.0", "1.3.0-alpha1", false},
		{"older alpha of same release than installed alpha", "1.2.0-alpha.3", "1.2.0-alpha.1", false},
		{"newer alpha over installed alpha", "1.2.0-alpha.3", "1.2.0-alpha.4", true},
		{"nothing installed", "", "1.3.0-alpha.1", false},
		{"v prefixes", "v1.2.0", "v1.3.0-alpha.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsNewerAlphaVersionAvailable(tt.current, tt.candidate)
			if err != nil {
				t.Fatalf("IsNewerAlphaVersionAvailable: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IsNewerAlphaVersionAvailable(%q, %q) = %v, want %v", tt.current, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestIsNewerAlphaVersionAvailableInvalidInput(t *testing.T) {
	if _, err := IsNewerAlphaVersionAvailable("1.2.0", "garbage"); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("candidate: expected ErrInvalidVersion, got %v", err)
	}
	if _, err := IsNewerAlphaVersionAvailable("garbage", "1.3.0-alpha.1"); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("current: expected ErrInvalidVersion, got %v", err)
	}
}

func TestDecideBundleInstall(t *testing.T) {
	tests := []struct {
		name        string
		installed   []string
		latest      string
		force       bool
		want        Decision
		msgContains string
	}{
		{"fresh machine", nil, "4.0.0", false, DecisionProceed, "Installing bundle v4.0.0"},
		{"upgrade", []string{"3.9.0"}, "4.0.0", false, DecisionProceed, "v3.9.0 → v4.0.0"},
		{"already installed", []string{"3.9.0", "4.0.0"}, "4.0.0", false, DecisionSkip, "already installed"},
		{"force reinstall", []string{"4.0.0"}, "4.0.0", true, DecisionReinstall, "Reinstalling"},
		{"manifest rolled back", []string{"4.1.0"}, "4.0.0", false, DecisionDowngrade, "manifest wins"},
		{"garbage dir names ignored", []string{"tmp", "4.0.0"}, "4.0.0", false, DecisionSkip, "already installed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := DecideBundleInstall(tt.installed, tt.latest, tt.force)
			if got != tt.want {
				t.Fatalf("decision = %q, want %q (msg=%q)", got, tt.want, msg)
			}
			if !strings.Contains(msg, tt.msgContains) {
				t.Fatalf("message %q does not contain %q", msg, tt.msgContains)
			}
		})
	}
}

func TestFormatVersionDisplay(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatVersionDisplay(tt.input); got != tt.want {
			t.Errorf("FormatVersionDisplay(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDescribeDecision(t *testing.T) {
	for _, d := range []Decision{DecisionProceed, DecisionSkip, DecisionReinstall, DecisionDowngrade} {
		if DescribeDecision(d) == string(d) {
			t.Errorf("DescribeDecision(%q) has no description", d)
		}
	}
	if got := DescribeDecision("other"); got != "other" {
		t.Errorf("DescribeDecision(other) = %q", got)
	}
}
