package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Grabber produces one encoded PNG of the current screen per call.
type Grabber interface {
	Grab(ctx context.Context) ([]byte, error)
}

// CommandGrabber shells out to a platform screenshot tool (e.g.
// "screencapture -x {output}" on macOS, "scrot -o {output}" on Linux).
// The {output} token in the command is replaced with a temporary file path;
// if absent, the path is appended as the final argument.
type CommandGrabber struct {
	argv []string
}

// NewCommandGrabber parses command into an executable and arguments.
func NewCommandGrabber(command string) (*CommandGrabber, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty capture command")
	}
	return &CommandGrabber{argv: argv}, nil
}

// Grab runs the capture command and returns the encoded image it produced.
// The temporary output file is removed before returning.
func (g *CommandGrabber) Grab(ctx context.Context) ([]byte, error) {
	out := filepath.Join(os.TempDir(), fmt.Sprintf("grab-%d.png", os.Getpid()))
	defer os.Remove(out)

	argv := make([]string, 0, len(g.argv)+1)
	replaced := false
	for _, a := range g.argv {
		if strings.Contains(a, "{output}") {
			a = strings.ReplaceAll(a, "{output}", out)
			replaced = true
		}
		argv = append(argv, a)
	}
	if !replaced {
		argv = append(argv, out)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture command: %w (%s)", err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read capture output: %w", err)
	}
	return data, nil
}
