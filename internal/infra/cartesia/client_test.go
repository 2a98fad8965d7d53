package cartesia_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra/audio"
	"spark-assistant/internal/infra/cartesia"
)

func newServer(t *testing.T, handle func(conn *websocket.Conn, contextID string)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			ContextID    string `json:"context_id"`
			Transcript   string `json:"transcript"`
			OutputFormat struct {
				Encoding string `json:"encoding"`
			} `json:"output_format"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if _, err := uuid.Parse(req.ContextID); err != nil || req.OutputFormat.Encoding != "pcm_s16le" {
			conn.WriteJSON(map[string]any{"type": "error", "status_code": 400, "error": "bad request"})
			return
		}

		handle(conn, req.ContextID)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_SynthesizeStreamsChunks(t *testing.T) {
	wsURL := newServer(t, func(conn *websocket.Conn, contextID string) {
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
		conn.WriteJSON(map[string]any{
			"type":       "chunk",
			"context_id": contextID,
			"data":       base64.StdEncoding.EncodeToString([]byte{5, 6}),
		})
		conn.WriteJSON(map[string]any{"type": "done", "context_id": contextID, "done": true})
	})

	out := filepath.Join(t.TempDir(), "output.wav")
	client := cartesia.NewClientWithURL(wsURL)

	err := client.Synthesize(context.Background(), dispatch.SpeechRequest{APIKey: "test-key", Text: "hello", OutputPath: out})
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}

	format, pcm, err := audio.ReadWAV(out)
	if err != nil {
		t.Fatalf("ReadWAV error: %v", err)
	}
	if format.SampleRate != 44100 {
		t.Errorf("sample rate: got %d", format.SampleRate)
	}
	if string(pcm) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("pcm: got %v", pcm)
	}
}

func TestClient_SynthesizeUnauthorized(t *testing.T) {
	wsURL := newServer(t, func(*websocket.Conn, string) {})

	client := cartesia.NewClientWithURL(wsURL)
	err := client.Synthesize(context.Background(), dispatch.SpeechRequest{APIKey: "bad", Text: "hello", OutputPath: filepath.Join(t.TempDir(), "o.wav")})
	if !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestClient_SynthesizeServerError(t *testing.T) {
	wsURL := newServer(t, func(conn *websocket.Conn, contextID string) {
		payload, _ := json.Marshal(map[string]any{"type": "error", "context_id": contextID, "status_code": 500, "error": "overloaded"})
		conn.WriteMessage(websocket.TextMessage, payload)
	})

	client := cartesia.NewClientWithURL(wsURL)
	err := client.Synthesize(context.Background(), dispatch.SpeechRequest{APIKey: "test-key", Text: "hello", OutputPath: filepath.Join(t.TempDir(), "o.wav")})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected service unavailable, got %v", err)
	}
}
