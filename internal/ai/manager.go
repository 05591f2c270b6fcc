package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type ManagerConfig struct {
	Timeout          int
	MaxQuestionChars int
}

// Manager fronts the external AI collaborators: an embedder for the
// index and a generator for answer composition. Both are optional;
// callers must handle ErrUnavailable.
type Manager struct {
	answerer IGenerator
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(answerer IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		answerer: answerer,
		embedder: embedder,
		cfg:      cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, ErrUnavailable
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) MaxQuestionChars() int {
	return m.cfg.MaxQuestionChars
}

// Answer composes a conversational reply over the ranked product
// context. History carries prior turns oldest-first so follow-up
// questions resolve; intents steer the instruction but never the
// product set.
func (m *Manager) Answer(ctx context.Context, question string, history []string, productBlocks []string, intents []string) (string, error) {
	if m.answerer == nil {
		return "", ErrUnavailable
	}
	contextText := "No products found."
	if len(productBlocks) > 0 {
		contextText = strings.Join(productBlocks, "\n")
	}
	historyText := ""
	if len(history) > 0 {
		historyText = "\n\nPREVIOUS CONVERSATION:\n" + strings.Join(history, "\n")
	}
	instruction := ""
	for _, intent := range intents {
		switch intent {
		case "compare":
			instruction = "\nThe user wants to COMPARE products. Highlight the key differences."
		case "recommend":
			instruction = "\nThe user wants a RECOMMENDATION. Pick the best fit and say why."
		}
		if instruction != "" {
			break
		}
	}
	prompt := fmt.Sprintf(`You are a shopping assistant for a local business.
Answer using ONLY the product data below. Mention prices clearly and
note stock status. If nothing fits, say so and suggest the closest
alternative from the list. Do not invent products.%s%s

PRODUCTS:
%s

QUESTION: %s`, instruction, historyText, contextText, question)

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.answerer.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}
