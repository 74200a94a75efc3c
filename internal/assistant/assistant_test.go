package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type stubCompleter struct {
	answer string
	err    error
	last   openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.last = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.answer}},
		},
	}, nil
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New("", "", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAskAppendsDisclaimer(t *testing.T) {
	stub := &stubCompleter{answer: "A rental agreement should name both parties."}
	svc := newWith(stub, "test-model")

	turn, err := svc.Ask(context.Background(), svc.NewSession(), "What goes in a rental agreement?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(turn.Answer, Disclaimer) {
		t.Fatalf("answer missing disclaimer: %q", turn.Answer)
	}
	if stub.last.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first message must be the system prompt: %+v", stub.last.Messages[0])
	}
}

func TestAskCarriesSessionHistory(t *testing.T) {
	stub := &stubCompleter{answer: "ok"}
	svc := newWith(stub, "test-model")
	ctx := context.Background()
	session := svc.NewSession()

	if _, err := svc.Ask(ctx, session, "first question"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ask(ctx, session, "second question"); err != nil {
		t.Fatal(err)
	}
	// system + first Q + first A + second Q.
	if len(stub.last.Messages) != 4 {
		t.Fatalf("message count=%d, want 4", len(stub.last.Messages))
	}
	if got := svc.History(session); len(got) != 2 || got[0].Question != "first question" {
		t.Fatalf("unexpected history: %+v", got)
	}
	// Other sessions do not share context.
	if _, err := svc.Ask(ctx, svc.NewSession(), "unrelated"); err != nil {
		t.Fatal(err)
	}
	if len(stub.last.Messages) != 2 {
		t.Fatalf("fresh session message count=%d, want 2", len(stub.last.Messages))
	}
}

func TestAskMapsQuotaError(t *testing.T) {
	stub := &stubCompleter{err: &openai.APIError{HTTPStatusCode: 429, Message: "quota"}}
	svc := newWith(stub, "test-model")
	if _, err := svc.Ask(context.Background(), "s", "q"); !errors.Is(err, ErrQuota) {
		t.Fatalf("expected ErrQuota, got %v", err)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	svc := newWith(&stubCompleter{answer: "ok"}, "test-model")
	if _, err := svc.Ask(context.Background(), "s", "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}
