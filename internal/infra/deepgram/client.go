package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
)

const (
	vendor = "deepgram"

	defaultTranscriptionModel = "nova-2"
	defaultSpeechModel        = "aura-asteria-en"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient() *Client {
	return NewClientWithURL("https://api.deepgram.com/v1")
}

func NewClientWithURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads a prerecorded file to /listen.
func (c *Client) Transcribe(ctx context.Context, req dispatch.TranscriptionRequest) (string, error) {
	data, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return "", domain.NewError(domain.KindInvalidAudio, fmt.Errorf("reading audio: %w", err))
	}

	model := req.Model
	if model == "" {
		model = defaultTranscriptionModel
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("smart_format", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/listen?"+params.Encode(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Token "+req.APIKey)
	httpReq.Header.Set("Content-Type", contentType(req.AudioPath))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", infra.TransportError(vendor, err)
	}
	defer resp.Body.Close()

	if err := infra.CheckResponse(infra.OpTranscribe, vendor, resp); err != nil {
		return "", err
	}

	var result listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("decoding response: %w", err))
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return strings.TrimSpace(result.Results.Channels[0].Alternatives[0].Transcript), nil
}

// Synthesize requests linear16 audio in a wav container from /speak.
func (c *Client) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	model := req.Model
	if model == "" {
		model = defaultSpeechModel
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("encoding", "linear16")
	params.Set("container", "wav")

	body, err := json.Marshal(map[string]string{"text": req.Text})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speak?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Token "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return infra.TransportError(vendor, err)
	}
	defer resp.Body.Close()

	if err := infra.CheckResponse(infra.OpSynthesize, vendor, resp); err != nil {
		return err
	}

	out, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("writing audio: %w", err))
	}
	return nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}
