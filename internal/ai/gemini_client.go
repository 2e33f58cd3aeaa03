package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"book-chatbot-backend/internal/logger"
)

// GeminiClient implements Provider against Google Generative AI. The rate
// limiter and circuit breaker are process-wide: ingestion-time embedding and
// live query-time calls draw from the same quota.
type GeminiClient struct {
	client         *genai.Client
	breaker        *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	model          string
	embeddingModel string
	waitTimeout    time.Duration
}

type GeminiOptions struct {
	Model             string
	EmbeddingModel    string
	RequestsPerWindow int
	WindowSeconds     int
	WaitTimeout       time.Duration
}

func NewGeminiClient(ctx context.Context, apiKey string, opts GeminiOptions) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	window := time.Duration(opts.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	reqs := opts.RequestsPerWindow
	if reqs <= 0 {
		reqs = 100
	}
	burst := reqs / 10
	if burst < 1 {
		burst = 1
	}
	// 10% headroom below the provider quota
	limiter := rate.NewLimiter(rate.Limit(float64(reqs)*0.9/window.Seconds()), burst)

	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}

	return &GeminiClient{
		client:         client,
		breaker:        breaker,
		rateLimiter:    limiter,
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		waitTimeout:    waitTimeout,
	}, nil
}

// wait blocks until the limiter frees a slot or the hard deadline elapses.
func (gc *GeminiClient) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, gc.waitTimeout)
	defer cancel()

	if err := gc.rateLimiter.Wait(waitCtx); err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrRateLimitTimeout, err)
		}
		return err
	}
	return nil
}

// Embed calls the batch embedding endpoint. Each input becomes one vector;
// order is preserved.
func (gc *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed")
	defer span.End()

	span.SetAttributes(
		attribute.Int("gemini.batch_size", len(texts)),
		attribute.String("gemini.model", gc.embeddingModel),
	)

	if err := gc.wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.embeddingModel)
		batch := model.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		resp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
		}
		vectors := make([][]float32, len(resp.Embeddings))
		for i, emb := range resp.Embeddings {
			vectors[i] = emb.Values
		}
		return vectors, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	return result.([][]float32), nil
}

// Generate produces a single completion from the assembled conversation.
func (gc *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	span.SetAttributes(
		attribute.Int("gemini.messages", len(req.Messages)),
		attribute.String("gemini.model", gc.model),
	)

	if err := gc.wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.generativeModel(req)
		resp, err := model.GenerateContent(ctx, genai.Text(flattenMessages(req.Messages)))
		if err != nil {
			return nil, err
		}
		return extractText(resp), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return result.(string), nil
}

// GenerateStream streams completion fragments through fn and returns the
// assembled answer. The circuit breaker wraps the whole stream.
func (gc *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, fn func(chunk string) error) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content_stream")
	defer span.End()

	if err := gc.wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.generativeModel(req)
		iter := model.GenerateContentStream(ctx, genai.Text(flattenMessages(req.Messages)))

		var full strings.Builder
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, err
			}
			chunk := extractText(resp)
			if chunk == "" {
				continue
			}
			full.WriteString(chunk)
			if err := fn(chunk); err != nil {
				return nil, err
			}
		}
		return full.String(), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return result.(string), nil
}

func (gc *GeminiClient) generativeModel(req GenerateRequest) *genai.GenerativeModel {
	model := gc.client.GenerativeModel(gc.model)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	return model
}

// flattenMessages renders the bounded history window into a single prompt
// the way the single-shot content API expects.
func flattenMessages(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

// Close the underlying client.
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
