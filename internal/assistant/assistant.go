package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"lexhub.org/internal/ids"
)

// systemPrompt bounds the assistant to general legal information. The
// handler appends the disclaimer to every answer regardless of model output.
const systemPrompt = "You are a legal information assistant for users in India. " +
	"Explain legal concepts, procedures and document requirements in plain language. " +
	"Do not give advice specific to the user's situation; recommend consulting a " +
	"qualified lawyer for anything case-specific."

// Disclaimer is attached to every assistant answer.
const Disclaimer = "This is general legal information, not legal advice. Consult a qualified lawyer for your specific situation."

// historyLimit caps the retained turns per session sent back to the model.
const historyLimit = 20

var (
	ErrNotConfigured = errors.New("assistant: no API key configured")
	ErrQuota         = errors.New("assistant: provider quota exceeded")
	ErrEmptyQuestion = errors.New("assistant: empty question")
)

// Turn is one question/answer exchange within a session.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// completer is the slice of the OpenAI client the service needs. Tests
// substitute a stub.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service answers legal-information questions via an OpenAI-compatible
// chat completion endpoint, keeping a bounded per-session history.
type Service struct {
	client completer
	model  string

	mu       sync.Mutex
	sessions map[string][]Turn
	now      func() time.Time
}

// New builds a Service against an OpenAI-compatible endpoint. baseURL may be
// empty for the default OpenAI endpoint. Returns ErrNotConfigured when the
// key is missing so callers can disable the feature instead of failing boot.
func New(apiKey, baseURL, model string) (*Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newWith(openai.NewClientWithConfig(cfg), model), nil
}

func newWith(client completer, model string) *Service {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Service{
		client:   client,
		model:    model,
		sessions: make(map[string][]Turn),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSession returns a fresh session identifier.
func (s *Service) NewSession() string { return ids.New() }

// Ask sends the question with the session's prior turns as context and
// records the exchange. The returned answer always ends with the disclaimer.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Turn{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	prior := append([]Turn(nil), s.sessions[sessionID]...)
	s.mu.Unlock()

	msgs := make([]openai.ChatCompletionMessage, 0, 2*len(prior)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, t := range prior {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Answer},
		)
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: msgs,
	})
	if err != nil {
		if isQuota(err) {
			return Turn{}, ErrQuota
		}
		return Turn{}, fmt.Errorf("assistant: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Turn{}, errors.New("assistant: provider returned no choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if !strings.Contains(answer, Disclaimer) {
		answer += "\n\n" + Disclaimer
	}
	turn := Turn{Question: question, Answer: answer, AskedAt: s.now()}

	s.mu.Lock()
	hist := append(s.sessions[sessionID], turn)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	s.sessions[sessionID] = hist
	s.mu.Unlock()
	return turn, nil
}

// History returns the retained turns for a session, oldest first.
func (s *Service) History(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.sessions[sessionID]...)
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}
