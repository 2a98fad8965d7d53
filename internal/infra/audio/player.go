package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPlayer plays a file by running an external player such as
// ffplay or aplay. The process is killed when ctx is cancelled.
type CommandPlayer struct {
	command string
	args    []string
}

// NewCommandPlayer parses a command line like "ffplay -nodisp -autoexit".
// The file path is appended as the last argument.
func NewCommandPlayer(commandLine string) (*CommandPlayer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty player command")
	}
	return &CommandPlayer{command: fields[0], args: fields[1:]}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string{}, p.args...), path)
	cmd := exec.CommandContext(ctx, p.command, args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with %d: %s", p.command, exitErr.ExitCode(), strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("running %s: %w", p.command, err)
	}
	return nil
}
