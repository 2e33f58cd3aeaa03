package ai

import "context"

// Message is one turn handed to the generation provider.
type Message struct {
	Role    string
	Content string
}

// GenerateRequest carries everything a provider needs for one completion.
type GenerateRequest struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Provider is the capability interface to an AI vendor: text in, vectors out
// for embeddings; messages in, text out for generation. Vendors are swapped
// via configuration, not code changes.
type Provider interface {
	// Embed returns one vector per input text, all with identical
	// dimensionality for a given model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Generate produces a single completion.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// GenerateStream produces a completion incrementally, invoking fn for
	// each text fragment, and returns the full assembled answer. Returning
	// an error from fn aborts the stream.
	GenerateStream(ctx context.Context, req GenerateRequest, fn func(chunk string) error) (string, error)
}
