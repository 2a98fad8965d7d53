// Package local runs speech and language models on this machine, either as
// command-line subprocesses or through small HTTP servers started by the
// user.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"spark-assistant/internal/domain"
)

// run executes a model binary and returns its trimmed stdout.
func run(ctx context.Context, stdin io.Reader, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("%s not installed: %w", binary, err))
		}
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(stderr.String())))
	}

	return strings.TrimSpace(stdout.String()), nil
}

func requireModel(path string) error {
	if path == "" {
		return domain.NewError(domain.KindServiceUnavailable, errors.New("no local model path configured"))
	}
	return nil
}
