package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
)

const vendor = "anthropic"

type ClaudeClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	maxTokens  int
}

func NewClaudeClient(model string) *ClaudeClient {
	return NewClaudeClientWithURL(model, "https://api.anthropic.com/v1")
}

func NewClaudeClientWithURL(model, baseURL string) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
		maxTokens:  1024,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Respond sends the conversation to the Messages API. System messages are
// not allowed inside messages there, so they are joined into the system field.
func (c *ClaudeClient) Respond(ctx context.Context, req dispatch.ResponseRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	reqBody := request{
		Model:     model,
		MaxTokens: c.maxTokens,
	}

	var system []string
	for _, m := range req.History {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, message{Role: string(m.Role), Content: m.Content})
	}
	reqBody.System = strings.Join(system, "\n\n")

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", infra.TransportError(vendor, err)
	}
	defer resp.Body.Close()

	if err := infra.CheckResponse(infra.OpRespond, vendor, resp); err != nil {
		return "", err
	}

	var result response
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("decoding response: %w", err))
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("empty response from claude"))
	}

	return strings.TrimSpace(sb.String()), nil
}
