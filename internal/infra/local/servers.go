package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
)

const (
	DefaultFastWhisperURL = "http://localhost:8000"
	DefaultMeloTTSURL     = "http://localhost:5150"
	DefaultPiperURL       = "http://localhost:5000"
)

type server struct {
	name       string
	baseURL    string
	healthPath string
	httpClient *http.Client
}

func newServer(name, baseURL, healthPath string) server {
	return server{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: healthPath,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (s server) Health(ctx context.Context) error {
	return infra.Probe(ctx, s.httpClient, s.baseURL+s.healthPath)
}

func (s server) post(ctx context.Context, op infra.Operation, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, infra.TransportError(s.name, err)
	}

	if err := infra.CheckResponse(op, s.name, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// saveBody writes a successful synthesis response to the output path.
func (s server) saveBody(resp *http.Response, path string) error {
	defer resp.Body.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("writing audio: %w", err))
	}
	return nil
}

// FastWhisperAPI is a locally hosted faster-whisper server with an
// OpenAI-style multipart transcription endpoint.
type FastWhisperAPI struct {
	server
}

func NewFastWhisperAPI(baseURL string) *FastWhisperAPI {
	if baseURL == "" {
		baseURL = DefaultFastWhisperURL
	}
	return &FastWhisperAPI{server: newServer("fastwhisperapi", baseURL, "/")}
}

func (f *FastWhisperAPI) Transcribe(ctx context.Context, req dispatch.TranscriptionRequest) (string, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return "", domain.NewError(domain.KindInvalidAudio, fmt.Errorf("opening audio: %w", err))
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copying audio: %w", err)
	}
	mw.WriteField("model", pickString(req.Model, "base"))
	mw.WriteField("language", "en")
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	resp, err := f.post(ctx, infra.OpTranscribe, "/v1/transcriptions", mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("decoding response: %w", err))
	}

	return strings.TrimSpace(result.Text), nil
}

// MeloTTS is a locally hosted MeloTTS server returning WAV audio.
type MeloTTS struct {
	server
}

func NewMeloTTS(baseURL string) *MeloTTS {
	if baseURL == "" {
		baseURL = DefaultMeloTTSURL
	}
	return &MeloTTS{server: newServer("melotts", baseURL, "/health")}
}

func (m *MeloTTS) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	payload, err := json.Marshal(map[string]any{
		"text":     req.Text,
		"language": "EN",
		"speaker":  pickString(req.Voice, "EN-US"),
		"speed":    1.0,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := m.post(ctx, infra.OpSynthesize, "/synthesize", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return m.saveBody(resp, req.OutputPath)
}

// PiperServer is a locally hosted piper HTTP server.
type PiperServer struct {
	server
}

func NewPiperServer(baseURL string) *PiperServer {
	if baseURL == "" {
		baseURL = DefaultPiperURL
	}
	return &PiperServer{server: newServer("piper", baseURL, "/")}
}

func (p *PiperServer) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	payload, err := json.Marshal(map[string]string{"text": req.Text})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := p.post(ctx, infra.OpSynthesize, "/synthesize/", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return p.saveBody(resp, req.OutputPath)
}

func pickString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
