package kb

import (
	"context"
	"strings"

	"github.com/lyricat/goutils/structs"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EmptyAnswerText is returned in place of an answer when the knowledge base
// replies successfully without any content.
const EmptyAnswerText = "I received an empty response from the knowledge base."

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type FailureKind string

const (
	FailureAPIError   FailureKind = "api_error"
	FailureTimeout    FailureKind = "timeout"
	FailureNetwork    FailureKind = "network_error"
	FailureUnexpected FailureKind = "unexpected"
)

type Failure struct {
	Kind       FailureKind
	StatusCode int
	Detail     string
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	detail := strings.TrimSpace(f.Detail)
	if detail == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + detail
}

// Result is either a successful answer (Failure == nil) or a failure.
type Result struct {
	Text    string
	Empty   bool
	Raw     structs.JSONMap
	Failure *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

func Success(text string, raw structs.JSONMap) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: EmptyAnswerText, Empty: true, Raw: raw}
	}
	return Result{Text: text, Raw: raw}
}

func Fail(kind FailureKind, status int, detail string) Result {
	return Result{Failure: &Failure{Kind: kind, StatusCode: status, Detail: detail}}
}

// Client sends a conversation to the knowledge base. Implementations never
// return transport errors directly; every outcome is folded into Result.
type Client interface {
	Send(ctx context.Context, req Request) Result
}

// BuildRequest appends the current query after the history messages.
func BuildRequest(model string, history []Message, query string) Request {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: query})
	return Request{Model: strings.TrimSpace(model), Messages: messages}
}
