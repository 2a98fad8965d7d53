package local

import (
	"context"
	"strings"

	"spark-assistant/internal/dispatch"
)

// WhisperCPP transcribes with the whisper.cpp command-line program.
type WhisperCPP struct {
	binary string
}

func NewWhisperCPP(binary string) *WhisperCPP {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &WhisperCPP{binary: binary}
}

func (w *WhisperCPP) Transcribe(ctx context.Context, req dispatch.TranscriptionRequest) (string, error) {
	if err := requireModel(req.LocalModelPath); err != nil {
		return "", err
	}

	out, err := run(ctx, nil, w.binary, "-m", req.LocalModelPath, "-f", req.AudioPath, "-nt")
	if err != nil {
		return "", err
	}

	// -nt still prints one segment per line
	return strings.Join(strings.Fields(out), " "), nil
}
