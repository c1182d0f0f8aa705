package chat

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pocketomega/pocket-agent/internal/llm"
)

const (
	retryBaseInterval = 500 * time.Millisecond
	retryMaxInterval  = 8 * time.Second
	retryMaxAttempts  = 4
)

// callModel streams one model request with the transport retry policy:
// exponential backoff (500ms base, factor 2, capped at 8s, at most 4
// attempts in all), with throttling errors doubling the wait. Context-overflow
// errors are never retried here — the caller owns the single auto-trim.
func callModel(ctx context.Context, provider llm.LLMProvider, req llm.ChatRequest, onChunk llm.StreamCallback) (llm.Message, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseInterval
	policy.Multiplier = 2
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = 0 // attempts bound the loop, not wall time
	policy.Reset()

	var msg llm.Message
	for attempt := 0; ; attempt++ {
		var err error
		msg, err = provider.CallLLMStream(ctx, req, onChunk)
		if err == nil {
			return msg, nil
		}
		if errors.Is(err, llm.ErrContextOverflow) {
			return msg, err
		}
		if attempt+1 >= retryMaxAttempts {
			return msg, err
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return msg, err
		}
		if errors.Is(err, llm.ErrThrottled) {
			wait *= 2
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return msg, ctx.Err()
		}
	}
}
