package cartesia

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
	"spark-assistant/internal/infra/audio"
)

const (
	vendor = "cartesia"

	DefaultURL     = "wss://api.cartesia.ai/tts/websocket"
	DefaultModel   = "sonic-english"
	DefaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
	APIVersion     = "2024-06-10"

	sampleRate = 44100
)

type Client struct {
	url    string
	dialer *websocket.Dialer
}

func NewClient() *Client {
	return NewClientWithURL(DefaultURL)
}

func NewClientWithURL(wsURL string) *Client {
	return &Client{
		url:    wsURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

type ttsRequest struct {
	ModelID    string       `json:"model_id"`
	Transcript string       `json:"transcript"`
	Voice      voice        `json:"voice"`
	OutputFmt  outputFormat `json:"output_format"`
	ContextID  string       `json:"context_id"`
	Continue   bool         `json:"continue"`
	Language   string       `json:"language,omitempty"`
}

type voice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type ttsResponse struct {
	Type       string `json:"type"`
	ContextID  string `json:"context_id"`
	StatusCode int    `json:"status_code"`
	Done       bool   `json:"done"`
	Error      string `json:"error,omitempty"`
	Data       string `json:"data,omitempty"`
}

// Synthesize streams raw PCM over the websocket. Each chunk is appended to
// the output file as it arrives and the WAV header is patched at the end.
func (c *Client) Synthesize(ctx context.Context, req dispatch.SpeechRequest) error {
	header := http.Header{}
	header.Set("X-API-Key", req.APIKey)
	header.Set("Cartesia-Version", APIVersion)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if statusErr := infra.CheckResponse(infra.OpSynthesize, vendor, resp); statusErr != nil {
				return statusErr
			}
		}
		return infra.TransportError(vendor, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	contextID := uuid.NewString()
	msg, err := sonic.Marshal(ttsRequest{
		ModelID:    pick(req.Model, DefaultModel),
		Transcript: req.Text,
		Voice:      voice{Mode: "id", ID: pick(req.Voice, DefaultVoiceID)},
		OutputFmt:  outputFormat{Container: "raw", Encoding: "pcm_s16le", SampleRate: sampleRate},
		ContextID:  contextID,
		Language:   "en",
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return infra.TransportError(vendor, err)
	}

	out, err := audio.CreateWAV(req.OutputPath, audio.Mono16(sampleRate))
	if err != nil {
		return err
	}

	if err := c.receive(ctx, conn, contextID, out); err != nil {
		out.Close()
		os.Remove(req.OutputPath)
		return err
	}

	return out.Close()
}

func (c *Client) receive(ctx context.Context, conn *websocket.Conn, contextID string, out *audio.WAVFile) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return infra.TransportError(vendor, fmt.Errorf("reading stream: %w", err))
		}

		if msgType == websocket.BinaryMessage {
			if _, err := out.Write(data); err != nil {
				return fmt.Errorf("writing audio chunk: %w", err)
			}
			continue
		}

		var resp ttsResponse
		if err := sonic.Unmarshal(data, &resp); err != nil {
			return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("decoding message: %w", err))
		}

		if resp.ContextID != "" && resp.ContextID != contextID {
			continue
		}

		switch {
		case resp.Type == "error" || resp.Error != "":
			return infra.ClassifyStatus(infra.OpSynthesize, vendor, statusOr(resp.StatusCode), []byte(resp.Error))
		case resp.Type == "chunk" && resp.Data != "":
			chunk, err := base64.StdEncoding.DecodeString(resp.Data)
			if err != nil {
				return domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("decoding audio chunk: %w", err))
			}
			if _, err := out.Write(chunk); err != nil {
				return fmt.Errorf("writing audio chunk: %w", err)
			}
		}

		if resp.Done || resp.Type == "done" {
			if out.DataSize() == 0 {
				return domain.NewError(domain.KindServiceUnavailable, errors.New("cartesia stream ended without audio"))
			}
			return nil
		}
	}
}

func statusOr(code int) int {
	if code == 0 {
		return http.StatusServiceUnavailable
	}
	return code
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
