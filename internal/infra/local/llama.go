package local

import (
	"context"
	"strconv"
	"strings"

	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/domain"
)

// LlamaCPP generates replies with the llama.cpp command-line program.
type LlamaCPP struct {
	binary    string
	maxTokens int
}

func NewLlamaCPP(binary string) *LlamaCPP {
	if binary == "" {
		binary = "llama-cli"
	}
	return &LlamaCPP{binary: binary, maxTokens: 256}
}

func (l *LlamaCPP) Respond(ctx context.Context, req dispatch.ResponseRequest) (string, error) {
	if err := requireModel(req.LocalModelPath); err != nil {
		return "", err
	}

	return run(ctx, nil, l.binary,
		"-m", req.LocalModelPath,
		"-p", RenderPrompt(req.History),
		"-n", strconv.Itoa(l.maxTokens),
		"--no-display-prompt",
		"-no-cnv",
	)
}

// RenderPrompt flattens a history into a role-tagged transcript ending
// with an open assistant turn.
func RenderPrompt(history []domain.Message) string {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString("<|")
		sb.WriteString(string(m.Role))
		sb.WriteString("|>\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("<|assistant|>\n")
	return sb.String()
}
