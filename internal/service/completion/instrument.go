package completion

import (
	"context"
	"time"

	"github.com/zhouzirui/z-chatroom/backend/internal/metrics"
)

type instrumented struct {
	next     Client
	provider string
}

// Instrument records call counts by outcome and latency for next.
func Instrument(next Client, provider string) Client {
	return &instrumented{next: next, provider: provider}
}

func (c *instrumented) Send(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.next.Send(ctx, req)
	metrics.CompletionDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.CompletionRequests.WithLabelValues(c.provider, outcome).Inc()
	return resp, err
}
