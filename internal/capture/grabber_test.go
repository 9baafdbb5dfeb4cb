package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewCommandGrabber_emptyCommand(t *testing.T) {
	if _, err := NewCommandGrabber("   "); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestCommandGrabber_outputTokenReplacement(t *testing.T) {
	src := filepath.Join(t.TempDir(), "fake.png")
	if err := os.WriteFile(src, []byte("fake png bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	g, err := NewCommandGrabber("cp " + src + " {output}")
	if err != nil {
		t.Fatalf("NewCommandGrabber: %v", err)
	}

	data, err := g.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if string(data) != "fake png bytes" {
		t.Errorf("Grab: got %q", data)
	}
}

func TestCommandGrabber_commandFailure(t *testing.T) {
	g, err := NewCommandGrabber("false")
	if err != nil {
		t.Fatalf("NewCommandGrabber: %v", err)
	}

	if _, err := g.Grab(context.Background()); err == nil {
		t.Error("expected error when capture command fails")
	}
}
