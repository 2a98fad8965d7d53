package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
	"spark-assistant/internal/infra/audio"
)

const (
	vendor = "elevenlabs"

	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModel   = "eleven_turbo_v2"

	pcmSampleRate = 16000
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient() *Client {
	return NewClientWithURL("https://api.elevenlabs.io/v1")
}

func NewClientWithURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize asks for raw 16 kHz PCM and wraps it in a WAV container.
func (c *Client) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoiceID
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	body, err := json.Marshal(ttsRequest{
		Text:          req.Text,
		ModelID:       model,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d", c.baseURL, voice, pcmSampleRate)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("xi-api-key", req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return infra.TransportError(vendor, err)
	}
	defer resp.Body.Close()

	if err := infra.CheckResponse(infra.OpSynthesize, vendor, resp); err != nil {
		return err
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("reading audio: %w", err))
	}
	if len(pcm) == 0 {
		return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("empty audio from elevenlabs"))
	}

	if err := os.WriteFile(req.OutputPath, audio.EncodeWAV(pcm, audio.Mono16(pcmSampleRate)), 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
