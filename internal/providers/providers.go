// Package providers registers every vendor adapter with a dispatcher.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"spark-assistant/config"
	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra/anthropic"
	"spark-assistant/internal/infra/cartesia"
	"spark-assistant/internal/infra/deepgram"
	"spark-assistant/internal/infra/elevenlabs"
	"spark-assistant/internal/infra/gemini"
	"spark-assistant/internal/infra/local"
	"spark-assistant/internal/infra/openai"
)

var ErrUnknownService = errors.New("unknown service")

// Endpoints holds the base URL of every HTTP or websocket vendor.
type Endpoints struct {
	OpenAI     string
	Groq       string
	Ollama     string
	Anthropic  string
	Gemini     string
	Deepgram   string
	ElevenLabs string
	Cartesia   string

	FastWhisper string
	MeloTTS     string
	Piper       string
}

// Binaries names the local model programs.
type Binaries struct {
	Whisper string
	Llama   string
	Piper   string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		OpenAI:      openai.OpenAIBaseURL,
		Groq:        openai.GroqBaseURL,
		Ollama:      openai.OllamaBaseURL,
		Anthropic:   "https://api.anthropic.com/v1",
		Gemini:      "https://generativelanguage.googleapis.com/v1beta",
		Deepgram:    "https://api.deepgram.com/v1",
		ElevenLabs:  "https://api.elevenlabs.io/v1",
		Cartesia:    cartesia.DefaultURL,
		FastWhisper: local.DefaultFastWhisperURL,
		MeloTTS:     local.DefaultMeloTTSURL,
		Piper:       local.DefaultPiperURL,
	}
}

// FromConfig overlays the configured local server URLs and binaries on
// the defaults.
func FromConfig(cfg *config.Config) (Endpoints, Binaries) {
	ep := DefaultEndpoints()
	if cfg.Local.OllamaURL != "" {
		ep.Ollama = cfg.Local.OllamaURL
	}
	if cfg.Local.FastWhisperURL != "" {
		ep.FastWhisper = cfg.Local.FastWhisperURL
	}
	if cfg.Local.MeloTTSURL != "" {
		ep.MeloTTS = cfg.Local.MeloTTSURL
	}
	if cfg.Local.PiperURL != "" {
		ep.Piper = cfg.Local.PiperURL
	}

	return ep, Binaries{
		Whisper: cfg.Local.WhisperBinary,
		Llama:   cfg.Local.LlamaBinary,
		Piper:   cfg.Local.PiperBinary,
	}
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// Services exposes reachability checks for the locally hosted servers.
type Services struct {
	checks map[string]healthChecker
}

func (s *Services) Names() []string {
	names := make([]string, 0, len(s.checks))
	for n := range s.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Services) Check(ctx context.Context, name string) error {
	hc, ok := s.checks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return hc.Health(ctx)
}

// Register adds every provider to d.
func Register(d *dispatch.Dispatcher, ep Endpoints, bin Binaries) *Services {
	oa := openai.NewClient(openai.Config{Vendor: "openai", BaseURL: ep.OpenAI})
	groq := openai.NewClient(openai.Config{
		Vendor:             "groq",
		BaseURL:            ep.Groq,
		TranscriptionModel: "whisper-large-v3",
		ChatModel:          "llama3-8b-8192",
	})
	ollama := openai.NewClient(openai.Config{Vendor: "ollama", BaseURL: ep.Ollama, ChatModel: "llama3:8b"})
	claude := anthropic.NewClaudeClientWithURL("", ep.Anthropic)
	gem := gemini.NewClientWithURL("", ep.Gemini)
	dg := deepgram.NewClientWithURL(ep.Deepgram)
	el := elevenlabs.NewClientWithURL(ep.ElevenLabs)
	ct := cartesia.NewClientWithURL(ep.Cartesia)
	fastWhisper := local.NewFastWhisperAPI(ep.FastWhisper)
	melo := local.NewMeloTTS(ep.MeloTTS)
	piper := local.NewPiperServer(ep.Piper)

	d.RegisterTranscriber("groq", groq.Transcribe)
	d.RegisterTranscriber("openai", oa.Transcribe)
	d.RegisterTranscriber("deepgram", dg.Transcribe)
	d.RegisterTranscriber("fastwhisperapi", fastWhisper.Transcribe)
	d.RegisterTranscriber("local", local.NewWhisperCPP(bin.Whisper).Transcribe)

	d.RegisterResponder("groq", groq.Respond)
	d.RegisterResponder("openai", oa.Respond)
	d.RegisterResponder("ollama", ollama.Respond)
	d.RegisterResponder("anthropic", claude.Respond)
	d.RegisterResponder("gemini", gem.Respond)
	d.RegisterResponder("local", local.NewLlamaCPP(bin.Llama).Respond)

	d.RegisterSynthesizer("openai", domain.AudioFormatMP3, oa.Synthesize)
	d.RegisterSynthesizer("elevenlabs", domain.AudioFormatWAV, el.Synthesize)
	d.RegisterSynthesizer("deepgram", domain.AudioFormatWAV, dg.Synthesize)
	d.RegisterSynthesizer("cartesia", domain.AudioFormatWAV, ct.Synthesize)
	d.RegisterSynthesizer("melotts", domain.AudioFormatWAV, melo.Synthesize)
	d.RegisterSynthesizer("piper", domain.AudioFormatWAV, piper.Synthesize)
	d.RegisterSynthesizer("local", domain.AudioFormatWAV, local.NewPiperCLI(bin.Piper).Synthesize)

	return &Services{checks: map[string]healthChecker{
		"fastwhisperapi": fastWhisper,
		"melotts":        melo,
		"piper":          piper,
		"ollama":         ollama,
	}}
}
