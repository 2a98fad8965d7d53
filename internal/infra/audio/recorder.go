package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type RecorderConfig struct {
	SampleRate int
	Duration   time.Duration
	Attempts   int
}

type captureFunc func(ctx context.Context, sampleRate, frames int) ([]int16, error)

// Microphone records fixed-length mono clips from the default input device.
type Microphone struct {
	cfg     RecorderConfig
	logger  *slog.Logger
	capture captureFunc
}

func NewMicrophone(cfg RecorderConfig, logger *slog.Logger) *Microphone {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	return &Microphone{
		cfg:     cfg,
		logger:  logger,
		capture: captureDefaultInput,
	}
}

// Record captures one clip into path as a 16-bit WAV. Device errors are
// retried up to the configured number of attempts.
func (m *Microphone) Record(ctx context.Context, path string) error {
	frames := int(m.cfg.Duration.Seconds() * float64(m.cfg.SampleRate))

	var lastErr error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.logger.Info("recording", "attempt", attempt, "duration", m.cfg.Duration, "sampleRate", m.cfg.SampleRate)

		samples, err := m.capture(ctx, m.cfg.SampleRate, frames)
		if err != nil {
			lastErr = err
			m.logger.Warn("recording failed", "attempt", attempt, "error", err)
			continue
		}

		wav := EncodeWAV(SamplesToPCM(samples), Mono16(m.cfg.SampleRate))
		if err := os.WriteFile(path, wav, 0o644); err != nil {
			return fmt.Errorf("writing recording: %w", err)
		}

		m.logger.Info("recording complete", "path", path, "samples", len(samples))
		return nil
	}

	return fmt.Errorf("recording failed after %d attempts: %w", m.cfg.Attempts, lastErr)
}
