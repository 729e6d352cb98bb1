package llm

import (
	"context"
	"time"
)

type timeoutGenerator struct {
	next    StructuredGenerator
	timeout time.Duration
}

// WithTimeout bounds every call made through gen. A zero timeout returns gen unchanged.
func WithTimeout(gen StructuredGenerator, timeout time.Duration) StructuredGenerator {
	if timeout <= 0 {
		return gen
	}
	return &timeoutGenerator{next: gen, timeout: timeout}
}

func (g *timeoutGenerator) CompleteStructured(ctx context.Context, req Request) (ContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.CompleteStructured(ctx, req)
}
