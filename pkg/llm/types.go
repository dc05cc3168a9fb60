// Package llm talks to a local OpenAI-compatible chat endpoint to answer
// skills-check-in questions from peer nodes.
package llm

import "context"

// Message is one turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the chat completion transport. OpenAIClient is the only
// production implementation; tests substitute a fake.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
