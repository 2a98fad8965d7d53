package local

import (
	"context"
	"strings"

	"spark-assistant/internal/dispatch"
)

// PiperCLI synthesizes with the piper binary, text on stdin.
type PiperCLI struct {
	binary string
}

func NewPiperCLI(binary string) *PiperCLI {
	if binary == "" {
		binary = "piper"
	}
	return &PiperCLI{binary: binary}
}

func (p *PiperCLI) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	if err := requireModel(req.LocalModelPath); err != nil {
		return err
	}

	_, err := run(ctx, strings.NewReader(req.Text), p.binary,
		"--model", req.LocalModelPath,
		"--output_file", req.OutputPath,
	)
	return err
}
