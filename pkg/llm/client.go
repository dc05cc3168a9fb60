package llm

import "context"

// Replier answers a single free-text question, used to satisfy a peer's
// skills-check-in inquiry. Grounded on the OpenAI chat-completions shape.
type Replier struct {
	client       Client
	systemPrompt string
}

// NewReplier wraps client with a fixed system prompt describing the node's
// role in a skills check-in exchange.
func NewReplier(client Client, systemPrompt string) *Replier {
	if systemPrompt == "" {
		systemPrompt = "You are the memory layer of a personal agent node, answering a peer node's skills check-in question briefly and factually."
	}
	return &Replier{client: client, systemPrompt: systemPrompt}
}

// Reply satisfies server.LLMReplier.
func (r *Replier) Reply(ctx context.Context, question string) (string, error) {
	messages := []Message{
		{Role: "system", Content: r.systemPrompt},
		{Role: "user", Content: question},
	}
	return r.client.Chat(ctx, messages)
}
