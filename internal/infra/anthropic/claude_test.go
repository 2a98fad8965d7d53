package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra/anthropic"
)

func TestClaudeClient_Respond(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		System   string `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "test-key" {
			http.Error(w, `{"error":{"type":"authentication_error"}}`, http.StatusUnauthorized)
			return
		}

		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "It is sunny today."},
			},
		})
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("claude-test", server.URL)

	history := []domain.Message{
		domain.SystemMessage("You are spark."),
		domain.UserMessage("weather?"),
		domain.AssistantMessage("Where are you?"),
		domain.UserMessage("Rome"),
	}

	reply, err := client.Respond(context.Background(), dispatch.ResponseRequest{APIKey: "test-key", History: history})
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}

	if reply != "It is sunny today." {
		t.Errorf("reply: got %q", reply)
	}

	if got.System != "You are spark." {
		t.Errorf("system: got %q", got.System)
	}

	if len(got.Messages) != 3 || got.Messages[0].Role != "user" || got.Messages[2].Content != "Rome" {
		t.Errorf("messages: got %+v", got.Messages)
	}

	if got.Model != "claude-test" {
		t.Errorf("model: got %q", got.Model)
	}
}

func TestClaudeClient_RespondUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"authentication_error"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("claude-test", server.URL)

	_, err := client.Respond(context.Background(), dispatch.ResponseRequest{APIKey: "bad", History: []domain.Message{domain.UserMessage("hi")}})
	if !errors.Is(err, domain.ErrAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestClaudeClient_RespondEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]string{}})
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("", server.URL)

	_, err := client.Respond(context.Background(), dispatch.ResponseRequest{APIKey: "k", History: []domain.Message{domain.UserMessage("hi")}})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected service unavailable, got %v", err)
	}
}
