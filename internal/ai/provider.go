package ai

import "context"

// LLMProvider sends a prompt to a hosted model and returns its raw text
// reply. Non-2xx responses come back as *model.HTTPError so callers can
// tell a quota rejection from other failures.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	_ LLMProvider = (*OpenAIProvider)(nil)
	_ LLMProvider = (*GeminiProvider)(nil)
)
