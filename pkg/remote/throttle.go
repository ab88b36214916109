package remote

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

const throttleChunk = 32 << 10

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	lim *rate.Limiter
}

func newThrottledReader(
	ctx context.Context, r io.Reader, limit rate.Limit,
) *throttledReader {
	burst := throttleChunk
	if int(limit) > burst {
		burst = int(limit)
	}
	return &throttledReader{
		ctx: ctx,
		r:   r,
		lim: rate.NewLimiter(limit, burst),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if len(p) > throttleChunk {
		p = p[:throttleChunk]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.lim.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
