package serialmux

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openworld-xr/interface/internal/connexion"
)

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"R 1 256f:c62e 01feff0000", EventTypeReport},
		{"  R 1 256f:c62e 01", EventTypeReport},
		{"A 7 046d:c626", EventTypeAttach},
		{"D 7", EventTypeDetach},
		{`{"fw":"1.2"}`, EventTypeStatus},
		{"# comment", EventTypeUnknown},
		{"", EventTypeUnknown},
		{"Ready", EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.line); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestParseReport(t *testing.T) {
	got, err := ParseReport("R 42 256f:c62e 010a00f6ff0000")
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	want := connexion.RawInput{
		Handle:    42,
		VendorID:  0x256f,
		ProductID: 0xc62e,
		Data:      []byte{0x01, 0x0a, 0x00, 0xf6, 0xff, 0x00, 0x00},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseReport() mismatch (-want +got):\n%s", diff)
	}

	if line := FormatReport(got); line != "R 42 256f:c62e 010a00f6ff0000" {
		t.Errorf("FormatReport() = %q", line)
	}
}

func TestParseReportErrors(t *testing.T) {
	for _, line := range []string{
		"R 1 256f:c62e",
		"R x 256f:c62e 01",
		"R 1 256fc62e 01",
		"R 1 zzzz:c62e 01",
		"R 1 256f:c62e 0g",
		"A 1 256f:c62e 01",
	} {
		if _, err := ParseReport(line); err == nil {
			t.Errorf("ParseReport(%q) expected error", line)
		}
	}
}

func TestParseAttachDetach(t *testing.T) {
	h, vid, pid, err := ParseAttach("A 3 046d:c627")
	if err != nil {
		t.Fatalf("ParseAttach() error = %v", err)
	}
	if h != 3 || vid != 0x046d || pid != 0xc627 {
		t.Errorf("ParseAttach() = %d %04x:%04x", h, vid, pid)
	}
	if _, _, _, err := ParseAttach("A 3"); err == nil {
		t.Error("ParseAttach short line expected error")
	}

	h, err = ParseDetach("D 3")
	if err != nil || h != 3 {
		t.Errorf("ParseDetach() = %d, %v", h, err)
	}
	if _, err := ParseDetach("D"); err == nil {
		t.Error("ParseDetach short line expected error")
	}
}
