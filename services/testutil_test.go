package services

import (
	"context"
	"sync"

	"book-chatbot-backend/internal/ai"
)

// fakeProvider is a scriptable ai.Provider for tests. Embed returns
// embedFunc's vectors (or a constant vector per text when unset), and call
// counts are recorded for batching assertions.
type fakeProvider struct {
	mu           sync.Mutex
	embedCalls   int
	embedSizes   []int
	embedFunc    func(texts []string) ([][]float32, error)
	generateFunc func(req ai.GenerateRequest) (string, error)
	lastRequest  ai.GenerateRequest
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.embedSizes = append(f.embedSizes, len(texts))
	f.mu.Unlock()

	if f.embedFunc != nil {
		return f.embedFunc(texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeProvider) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.lastRequest = req
	f.mu.Unlock()

	if f.generateFunc != nil {
		return f.generateFunc(req)
	}
	return "generated answer", nil
}

func (f *fakeProvider) GenerateStream(ctx context.Context, req ai.GenerateRequest, fn func(chunk string) error) (string, error) {
	answer, err := f.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if err := fn(answer); err != nil {
		return "", err
	}
	return answer, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

func newTestEmbeddings(provider ai.Provider, opts EmbeddingOptions) *EmbeddingService {
	if opts.BaseDelay == 0 {
		opts.BaseDelay = 1 // keep retry tests fast
	}
	return NewEmbeddingService(provider, opts)
}
