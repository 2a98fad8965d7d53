package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/infra"
)

const vendor = "gemini"

type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewClient(model string) *Client {
	return NewClientWithURL(model, "https://generativelanguage.googleapis.com/v1beta")
}

func NewClientWithURL(model, baseURL string) *Client {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type request struct {
	Contents         []content        `json:"contents"`
	SystemInstruct   *content         `json:"systemInstruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

func (c *Client) Respond(ctx context.Context, req dispatch.ResponseRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	reqBody := request{
		GenerationConfig: generationConfig{
			MaxOutputTokens: 1024,
			Temperature:     0.7,
		},
	}

	var system []part
	for _, m := range req.History {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, part{Text: m.Content})
		case domain.RoleAssistant:
			reqBody.Contents = append(reqBody.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			reqBody.Contents = append(reqBody.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		reqBody.SystemInstruct = &content{Parts: system}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", infra.TransportError(vendor, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", infra.ClassifyStatus(infra.OpRespond, vendor, resp.StatusCode, respBody)
	}

	var result response
	if err = json.Unmarshal(respBody, &result); err != nil {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("decoding response: %w", err))
	}

	if result.Error != nil {
		return "", infra.ClassifyStatus(infra.OpRespond, vendor, result.Error.Code, []byte(result.Error.Message))
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", domain.NewError(domain.KindServiceUnavailable, fmt.Errorf("empty response from gemini"))
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	return strings.TrimSpace(sb.String()), nil
}
