package durable

import (
	"context"
	"encoding/json"
	"fmt"
)

// ActivityFunc is a side-effecting unit of work. Input and output are JSON.
type ActivityFunc func(ctx context.Context, input []byte) ([]byte, error)

type activityEntry struct {
	fn     ActivityFunc
	policy RetryPolicy
}

// Activity adapts a typed function into an ActivityFunc
func Activity[I, O any](fn func(context.Context, I) (O, error)) ActivityFunc {
	return func(ctx context.Context, input []byte) ([]byte, error) {
		var in I
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, Permanent(fmt.Errorf("failed to decode activity input: %w", err))
			}
		}

		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(out)
		if err != nil {
			return nil, Permanent(fmt.Errorf("failed to encode activity output: %w", err))
		}
		return data, nil
	}
}
