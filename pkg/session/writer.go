package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modserve/modserve/pkg/module"
)

// Write-back retry policy. Zero-progress writes burn retries with
// exponential backoff; any progress refunds the budget. When the budget is
// exhausted the connection is deemed dead.
const (
	maxWriteRetries   = 64
	writeBackoffStart = 500 * time.Microsecond
	writeBackoffMax   = 50 * time.Millisecond
)

// ErrWriteStalled is returned when the peer stops accepting bytes for the
// whole retry budget.
var ErrWriteStalled = errors.New("session: write stalled, connection deemed dead")

// Flush writes all of p to out, retrying short and zero writes until the
// buffer is fully flushed, the retry budget runs out, or ctx is cancelled.
// No byte is dropped or reordered: each retry resumes exactly where the
// previous write stopped.
func Flush(ctx context.Context, out module.Output, p []byte) error {
	retries := 0
	backoff := writeBackoffStart

	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := out.Write(p)
		if n > 0 {
			p = p[n:]
			retries = 0
			backoff = writeBackoffStart
			continue
		}
		if err != nil {
			return fmt.Errorf("session: write failed: %w", err)
		}

		retries++
		if retries > maxWriteRetries {
			return ErrWriteStalled
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > writeBackoffMax {
			backoff = writeBackoffMax
		}
	}
	return nil
}
