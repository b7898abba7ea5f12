package version

import "testing"

func TestCurrent(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3"
	if got := Current().Version; got != "1.2.3" {
		t.Errorf("Current().Version = %q, want 1.2.3", got)
	}
	if got := String(); got != "interface 1.2.3 (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}
}
