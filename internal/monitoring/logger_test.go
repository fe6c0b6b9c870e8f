package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Now set to nil and verify it doesn't call our logger
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestDebugf_Verbosity(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	defer SetVerbosity(Verbosity())

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	SetVerbosity(0)
	Debugf(1, "hidden")
	if len(lines) != 0 {
		t.Fatalf("expected no output at verbosity 0, got %v", lines)
	}

	SetVerbosity(2)
	Debugf(1, "level %d", 1)
	Debugf(2, "level %d", 2)
	Debugf(3, "level %d", 3)
	if len(lines) != 2 || lines[0] != "level 1" || lines[1] != "level 2" {
		t.Errorf("unexpected debug output: %v", lines)
	}

	SetVerbosity(-4)
	if Verbosity() != 0 {
		t.Errorf("negative verbosity should clamp to 0, got %d", Verbosity())
	}
}
