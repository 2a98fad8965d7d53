package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"spark-assistant/internal/domain"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Models       ModelsConfig       `yaml:"models"`
	Voices       map[string]string  `yaml:"voices"`
	Local        LocalConfig        `yaml:"local"`
	Audio        AudioConfig        `yaml:"audio"`
	Conversation ConversationConfig `yaml:"conversation"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	OutputDir string `yaml:"output_dir"`
	// RateLimit is the number of turn requests allowed per client IP per minute.
	RateLimit int    `yaml:"rate_limit"`
}

// ProvidersConfig is the provider picked at startup for each capability.
type ProvidersConfig struct {
	Transcription string `yaml:"transcription"`
	Response      string `yaml:"response"`
	Speech        string `yaml:"speech"`
}

// ModelsConfig overrides the vendor default model. Empty means default.
type ModelsConfig struct {
	Transcription string `yaml:"transcription"`
	Response      string `yaml:"response"`
	Speech        string `yaml:"speech"`
}

type LocalConfig struct {
	WhisperBinary string `yaml:"whisper_binary"`
	WhisperModel  string `yaml:"whisper_model"`
	LlamaBinary   string `yaml:"llama_binary"`
	LlamaModel    string `yaml:"llama_model"`
	PiperBinary   string `yaml:"piper_binary"`
	PiperModel    string `yaml:"piper_model"`

	FastWhisperURL string `yaml:"fastwhisper_url"`
	MeloTTSURL     string `yaml:"melotts_url"`
	PiperURL       string `yaml:"piper_url"`
	OllamaURL      string `yaml:"ollama_url"`
}

type AudioConfig struct {
	SampleRate     int    `yaml:"sample_rate"`
	RecordSeconds  int    `yaml:"record_seconds"`
	RecordAttempts int    `yaml:"record_attempts"`
	// Player is "portaudio", "none", or a command line such as
	// "ffplay -nodisp -autoexit".
	Player         string `yaml:"player"`
}

type ConversationConfig struct {
	SystemPrompt string   `yaml:"system_prompt"`
	Greeting     string   `yaml:"greeting"`
	Farewell     string   `yaml:"farewell"`
	ExitPhrases  []string `yaml:"exit_phrases"`
	TurnTimeout  string   `yaml:"turn_timeout"`
}

type CredentialsConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const DefaultSystemPrompt = `You are spark, a comprehensive personal assistant. Always provide thoughtful and detailed responses, and keep them suitable for being read aloud.`

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if _, err := time.ParseDuration(cfg.Conversation.TurnTimeout); err != nil {
		return nil, fmt.Errorf("parsing conversation.turn_timeout: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.OutputDir == "" {
		c.Server.OutputDir = "./output"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 30
	}
	if c.Providers.Transcription == "" {
		c.Providers.Transcription = "groq"
	}
	if c.Providers.Response == "" {
		c.Providers.Response = "groq"
	}
	if c.Providers.Speech == "" {
		c.Providers.Speech = "openai"
	}
	if c.Voices == nil {
		c.Voices = map[string]string{}
	}
	if c.Voices["openai"] == "" {
		c.Voices["openai"] = "nova"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 44100
	}
	if c.Audio.RecordSeconds == 0 {
		c.Audio.RecordSeconds = 5
	}
	if c.Audio.RecordAttempts == 0 {
		c.Audio.RecordAttempts = 3
	}
	if c.Audio.Player == "" {
		c.Audio.Player = "ffplay -nodisp -autoexit -loglevel quiet"
	}
	if c.Conversation.SystemPrompt == "" {
		c.Conversation.SystemPrompt = DefaultSystemPrompt
	}
	if c.Conversation.Greeting == "" {
		c.Conversation.Greeting = "Hello! I'm Spark"
	}
	if c.Conversation.Farewell == "" {
		c.Conversation.Farewell = "Goodbye! It was nice chatting with you."
	}
	if len(c.Conversation.ExitPhrases) == 0 {
		c.Conversation.ExitPhrases = []string{"goodbye", "arrivederci"}
	}
	if c.Conversation.TurnTimeout == "" {
		c.Conversation.TurnTimeout = "2m"
	}
	if c.Credentials.File == "" {
		c.Credentials.File = ".env"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Selection is the provider snapshot the assistant starts with.
func (c *Config) Selection() domain.Selection {
	return domain.Selection{
		Transcription: domain.ProviderChoice{Provider: c.Providers.Transcription, Model: c.Models.Transcription},
		Response:      domain.ProviderChoice{Provider: c.Providers.Response, Model: c.Models.Response},
		Speech: domain.ProviderChoice{
			Provider: c.Providers.Speech,
			Model:    c.Models.Speech,
			Voice:    c.Voices[c.Providers.Speech],
		},
	}
}

// LocalModels maps each capability to the model file its local provider loads.
func (c *Config) LocalModels() map[domain.Capability]string {
	return map[domain.Capability]string{
		domain.CapabilityTranscription: c.Local.WhisperModel,
		domain.CapabilityResponse:      c.Local.LlamaModel,
		domain.CapabilitySpeech:        c.Local.PiperModel,
	}
}

func (c *Config) TurnTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Conversation.TurnTimeout)
	return d
}

func (c *Config) RecordDuration() time.Duration {
	return time.Duration(c.Audio.RecordSeconds) * time.Second
}
