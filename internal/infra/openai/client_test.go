package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra/openai"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad key", "type": "invalid_request_error"}})
			return
		}

		switch r.URL.Path {
		case "/audio/transcriptions":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"text": "what's the weather"})
		case "/chat/completions":
			var body struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  body.Model,
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]string{
						"role":    "assistant",
						"content": body.Model + " saw " + body.Messages[len(body.Messages)-1].Content,
					},
				}},
			})
		case "/audio/speech":
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("ID3fake-mp3-bytes"))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
}

func TestClient_Transcribe(t *testing.T) {
	server := newServer(t)
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(audio, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		t.Fatal(err)
	}

	client := openai.NewClient(openai.Config{Vendor: "groq", BaseURL: server.URL, TranscriptionModel: "whisper-large-v3"})
	text, err := client.Transcribe(context.Background(), dispatch.TranscriptionRequest{APIKey: "test-key", AudioPath: audio})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "what's the weather" {
		t.Errorf("text: got %q", text)
	}
}

func TestClient_Respond(t *testing.T) {
	server := newServer(t)
	defer server.Close()

	client := openai.NewClient(openai.Config{BaseURL: server.URL, ChatModel: "gpt-4o"})
	history := []domain.Message{
		domain.SystemMessage("you are spark"),
		domain.UserMessage("hello"),
	}

	reply, err := client.Respond(context.Background(), dispatch.ResponseRequest{APIKey: "test-key", History: history})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "gpt-4o saw hello" {
		t.Errorf("reply: got %q", reply)
	}

	reply, err = client.Respond(context.Background(), dispatch.ResponseRequest{APIKey: "test-key", Model: "gpt-3.5-turbo", History: history})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "gpt-3.5-turbo saw hello" {
		t.Errorf("model override ignored: %q", reply)
	}
}

func TestClient_RespondBadKey(t *testing.T) {
	server := newServer(t)
	defer server.Close()

	client := openai.NewClient(openai.Config{BaseURL: server.URL})
	_, err := client.Respond(context.Background(), dispatch.ResponseRequest{APIKey: "wrong", History: []domain.Message{domain.UserMessage("hi")}})
	if !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestClient_Synthesize(t *testing.T) {
	server := newServer(t)
	defer server.Close()

	out := filepath.Join(t.TempDir(), "output.mp3")
	client := openai.NewClient(openai.Config{BaseURL: server.URL})
	if err := client.Synthesize(context.Background(), dispatch.SpeechRequest{APIKey: "test-key", Text: "hi", OutputPath: out}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ID3fake-mp3-bytes" {
		t.Errorf("output: got %q", data)
	}
}

func TestClient_Unreachable(t *testing.T) {
	client := openai.NewClient(openai.Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Respond(context.Background(), dispatch.ResponseRequest{History: []domain.Message{domain.UserMessage("hi")}})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected service unavailable, got %v", err)
	}
	if err := client.Health(context.Background()); err == nil {
		t.Error("expected health error")
	}
}
