package providers

import (
	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
)

// ResponseModels are the models offered per response vendor. The first
// entry is the vendor default.
var ResponseModels = map[string][]string{
	"groq":      {"llama3-8b-8192", "llama3-70b-8192", "mixtral-8x7b-32768"},
	"openai":    {"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
	"ollama":    {"llama3:8b", "llama3:70b", "mistral:7b"},
	"anthropic": {"claude-sonnet-4-20250514", "claude-3-5-haiku-latest"},
	"gemini":    {"gemini-2.0-flash", "gemini-1.5-pro"},
}

var SpeechVoices = map[string][]string{
	"openai": {"nova", "alloy", "echo", "fable", "onyx", "shimmer"},
}

// Catalog is what the settings panel offers.
type Catalog struct {
	Transcription []string                      `json:"transcription"`
	Response      []string                      `json:"response"`
	Speech        []string                      `json:"speech"`
	Models        map[string][]string           `json:"models"`
	Voices        map[string][]string           `json:"voices"`
	Formats       map[string]domain.AudioFormat `json:"formats"`
	Services      []string                      `json:"services"`
}

func NewCatalog(d *dispatch.Dispatcher, services *Services) Catalog {
	c := Catalog{
		Transcription: d.Providers(domain.CapabilityTranscription),
		Response:      d.Providers(domain.CapabilityResponse),
		Speech:        d.Providers(domain.CapabilitySpeech),
		Models:        ResponseModels,
		Voices:        SpeechVoices,
		Formats:       map[string]domain.AudioFormat{},
	}
	for _, p := range c.Speech {
		if f, err := d.SpeechFormat(p); err == nil {
			c.Formats[p] = f
		}
	}
	if services != nil {
		c.Services = services.Names()
	}
	return c
}
