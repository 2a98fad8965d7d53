package application

import (
	"context"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
)

type Dispatcher interface {
	Transcribe(ctx context.Context, req dispatch.TranscriptionRequest) (string, error)
	Respond(ctx context.Context, req dispatch.ResponseRequest) (string, error)
	Synthesize(ctx context.Context, req dispatch.SpeechRequest) error
	SpeechFormat(provider string) (domain.AudioFormat, error)
	Validate(sel domain.Selection) error
}

// CredentialResolver returns the secret for a provider, or "" when the
// provider runs without one.
type CredentialResolver interface {
	APIKey(provider string) string
}

type Recorder interface {
	Record(ctx context.Context, path string) error
}

type Player interface {
	Play(ctx context.Context, path string) error
}

type Observer interface {
	Publish(Event)
}

// NoopObserver discards events.
type NoopObserver struct{}

func (NoopObserver) Publish(Event) {}
