// Package dispatch routes a capability request to the provider named in
// the current selection.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spark-assistant/internal/domain"
)

type TranscriptionRequest struct {
	Provider       string
	Model          string
	APIKey         string
	AudioPath      string
	LocalModelPath string
}

type ResponseRequest struct {
	Provider       string
	Model          string
	APIKey         string
	History        []domain.Message
	LocalModelPath string
}

type SpeechRequest struct {
	Provider       string
	Model          string
	Voice          string
	APIKey         string
	Text           string
	OutputPath     string
	LocalModelPath string
}

type TranscribeFunc func(ctx context.Context, req TranscriptionRequest) (string, error)

type RespondFunc func(ctx context.Context, req ResponseRequest) (string, error)

type SynthesizeFunc func(ctx context.Context, req SpeechRequest) error

// SpeechProvider pairs a synthesis callable with the container it writes.
type SpeechProvider struct {
	Format     domain.AudioFormat
	Synthesize SynthesizeFunc
}

type Dispatcher struct {
	transcription *Table[TranscribeFunc]
	response      *Table[RespondFunc]
	speech        *Table[SpeechProvider]
	logger        *slog.Logger
}

func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transcription: NewTable[TranscribeFunc](),
		response:      NewTable[RespondFunc](),
		speech:        NewTable[SpeechProvider](),
		logger:        logger,
	}
}

func (d *Dispatcher) RegisterTranscriber(name string, fn TranscribeFunc) {
	d.transcription.Register(name, fn)
}

func (d *Dispatcher) RegisterResponder(name string, fn RespondFunc) {
	d.response.Register(name, fn)
}

func (d *Dispatcher) RegisterSynthesizer(name string, format domain.AudioFormat, fn SynthesizeFunc) {
	d.speech.Register(name, SpeechProvider{Format: format, Synthesize: fn})
}

// Providers lists the registered providers for a capability.
func (d *Dispatcher) Providers(c domain.Capability) []string {
	switch c {
	case domain.CapabilityTranscription:
		return d.transcription.Names()
	case domain.CapabilityResponse:
		return d.response.Names()
	case domain.CapabilitySpeech:
		return d.speech.Names()
	default:
		return nil
	}
}

func (d *Dispatcher) Supports(c domain.Capability, provider string) bool {
	switch c {
	case domain.CapabilityTranscription:
		return d.transcription.Has(provider)
	case domain.CapabilityResponse:
		return d.response.Has(provider)
	case domain.CapabilitySpeech:
		return d.speech.Has(provider)
	default:
		return false
	}
}

// Validate checks every capability of sel against the registered tables.
func (d *Dispatcher) Validate(sel domain.Selection) error {
	var errs []error
	for _, c := range domain.Capabilities {
		p := sel.For(c).Provider
		if !d.Supports(c, p) {
			errs = append(errs, unknownProvider(c, p))
		}
	}
	return errors.Join(errs...)
}

// SpeechFormat reports the container a speech provider writes.
func (d *Dispatcher) SpeechFormat(provider string) (domain.AudioFormat, error) {
	sp, ok := d.speech.Lookup(provider)
	if !ok {
		return "", unknownProvider(domain.CapabilitySpeech, provider)
	}
	return sp.Format, nil
}

func (d *Dispatcher) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	fn, ok := d.transcription.Lookup(req.Provider)
	if !ok {
		return "", unknownProvider(domain.CapabilityTranscription, req.Provider)
	}

	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return "", d.fail(domain.CapabilityTranscription, req.Provider, domain.NewError(domain.KindInvalidAudio, fmt.Errorf("reading audio: %w", err)))
	}
	if info.Size() == 0 {
		return "", d.fail(domain.CapabilityTranscription, req.Provider, domain.NewError(domain.KindInvalidAudio, fmt.Errorf("audio file %s is empty", req.AudioPath)))
	}

	start := time.Now()
	text, err := fn(ctx, req)
	if err != nil {
		return "", d.fail(domain.CapabilityTranscription, req.Provider, err)
	}

	d.logger.Debug("transcribed", "provider", req.Provider, "chars", len(text), "latency", time.Since(start))
	return text, nil
}

func (d *Dispatcher) Respond(ctx context.Context, req ResponseRequest) (string, error) {
	fn, ok := d.response.Lookup(req.Provider)
	if !ok {
		return "", unknownProvider(domain.CapabilityResponse, req.Provider)
	}

	start := time.Now()
	text, err := fn(ctx, req)
	if err != nil {
		return "", d.fail(domain.CapabilityResponse, req.Provider, err)
	}

	d.logger.Debug("generated response", "provider", req.Provider, "model", req.Model, "messages", len(req.History), "latency", time.Since(start))
	return text, nil
}

// Synthesize has the provider write into a scratch file next to
// req.OutputPath and moves it into place only when it holds audio, so a
// failed call leaves any earlier output untouched.
func (d *Dispatcher) Synthesize(ctx context.Context, req SpeechRequest) error {
	sp, ok := d.speech.Lookup(req.Provider)
	if !ok {
		return unknownProvider(domain.CapabilitySpeech, req.Provider)
	}

	target := req.OutputPath
	tmp, err := os.CreateTemp(filepath.Dir(target), ".speech-*"+filepath.Ext(target))
	if err != nil {
		return d.fail(domain.CapabilitySpeech, req.Provider, fmt.Errorf("creating speech file: %w", err))
	}
	req.OutputPath = tmp.Name()
	tmp.Close()
	defer os.Remove(req.OutputPath)

	start := time.Now()
	if err := sp.Synthesize(ctx, req); err != nil {
		return d.fail(domain.CapabilitySpeech, req.Provider, err)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return d.fail(domain.CapabilitySpeech, req.Provider, domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("no audio written to %s", target)))
	}

	if err := os.Rename(req.OutputPath, target); err != nil {
		return d.fail(domain.CapabilitySpeech, req.Provider, fmt.Errorf("moving speech into place: %w", err))
	}

	d.logger.Debug("synthesized speech", "provider", req.Provider, "bytes", info.Size(), "latency", time.Since(start))
	return nil
}

// fail stamps capability and provider onto err, converting plain errors
// into ServiceUnavailable.
func (d *Dispatcher) fail(c domain.Capability, provider string, err error) error {
	var de *domain.DispatchError
	if errors.As(err, &de) {
		out := *de
		out.Capability = c
		out.Provider = provider
		return &out
	}
	return &domain.DispatchError{
		Kind:       domain.KindServiceUnavailable,
		Capability: c,
		Provider:   provider,
		Err:        err,
	}
}

func unknownProvider(c domain.Capability, provider string) error {
	return &domain.DispatchError{
		Kind:       domain.KindUnknownProvider,
		Capability: c,
		Provider:   provider,
		Err:        fmt.Errorf("no %s provider named %q", c, provider),
	}
}
