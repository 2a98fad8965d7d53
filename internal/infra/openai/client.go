// Package openai talks to OpenAI and to OpenAI-compatible endpoints
// (Groq, Ollama) through go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	OllamaBaseURL = "http://localhost:11434/v1"
)

type Config struct {
	Vendor             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	SpeechModel        string
	Voice              string
	Timeout            time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Vendor == "" {
		cfg.Vendor = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) api(apiKey string) *goopenai.Client {
	conf := goopenai.DefaultConfig(apiKey)
	conf.BaseURL = c.cfg.BaseURL
	conf.HTTPClient = c.httpClient
	return goopenai.NewClientWithConfig(conf)
}

func (c *Client) Transcribe(ctx context.Context, req dispatch.TranscriptionRequest) (string, error) {
	model := pick(req.Model, c.cfg.TranscriptionModel, goopenai.Whisper1)

	resp, err := c.api(req.APIKey).CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    model,
		FilePath: req.AudioPath,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", c.classify(infra.OpTranscribe, err)
	}

	return resp.Text, nil
}

func (c *Client) Respond(ctx context.Context, req dispatch.ResponseRequest) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.History))
	for _, m := range req.History {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.api(req.APIKey).CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    pick(req.Model, c.cfg.ChatModel, goopenai.GPT4o),
		Messages: messages,
	})
	if err != nil {
		return "", c.classify(infra.OpRespond, err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("empty response from %s", c.cfg.Vendor))
	}

	return resp.Choices[0].Message.Content, nil
}

// Synthesize streams the mp3 body straight into the output file.
func (c *Client) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	resp, err := c.api(req.APIKey).CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(pick(req.Model, c.cfg.SpeechModel, string(goopenai.TTSModel1))),
		Input:          req.Text,
		Voice:          goopenai.SpeechVoice(pick(req.Voice, c.cfg.Voice, string(goopenai.VoiceNova))),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return c.classify(infra.OpSynthesize, err)
	}
	defer resp.Close()

	f, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp); err != nil {
		return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("streaming speech: %w", err))
	}

	return nil
}

// Health probes the models endpoint. Used for the local Ollama server.
func (c *Client) Health(ctx context.Context) error {
	return infra.Probe(ctx, c.httpClient, c.cfg.BaseURL+"/models")
}

func (c *Client) classify(op infra.Operation, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return infra.ClassifyStatus(op, c.cfg.Vendor, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return infra.ClassifyStatus(op, c.cfg.Vendor, reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}

	return infra.TransportError(c.cfg.Vendor, err)
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
