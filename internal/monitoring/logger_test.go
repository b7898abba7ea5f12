package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered the previous callback")
	}
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	logf := Prefixed("lod")
	logf("angle=%.3f", 0.25)
	if got != "[lod] angle=0.250" {
		t.Errorf("got %q, want %q", got, "[lod] angle=0.250")
	}

	// SetLogger after Prefixed still redirects output.
	var second string
	SetLogger(func(format string, v ...interface{}) {
		second = fmt.Sprintf(format, v...)
	})
	logf("x")
	if second != "[lod] x" {
		t.Errorf("got %q, want %q", second, "[lod] x")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}
