package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/padchat/internal/classifier"
	"github.com/RichardoC/padchat/internal/models"
)

// attempt identifies one backend call. Once superseded, whatever the call
// eventually returns is dropped.
type attempt struct {
	id         string
	superseded atomic.Bool
}

func newAttempt(id string) *attempt {
	return &attempt{id: id}
}

type backendResult struct {
	text string
	err  error
}

// race waits for the backend or the timer, whichever settles first. The
// backend call is never cancelled; when it loses it keeps running on its own
// and its result lands in a buffered channel nobody reads.
func (d *Dispatcher) race(ctx context.Context, log *zap.Logger, a *attempt, text string, timeout time.Duration) classifier.Outcome {
	done := make(chan backendResult, 1)

	go func() {
		var r backendResult
		defer func() {
			if p := recover(); p != nil {
				r = backendResult{err: fmt.Errorf("backend panic: %v", p)}
			}
			if a.superseded.Load() {
				log.Info("Discarding late backend response",
					zap.String("message_id", a.id),
					zap.Bool("failed", r.err != nil))
			}
			done <- r
		}()
		reply, err := d.backend.Chat(context.WithoutCancel(ctx), text)
		r = backendResult{text: reply, err: err}
	}()

	timer := d.after(timeout)

	select {
	case r := <-done:
		if r.err != nil {
			return classifier.Failed(r.err)
		}
		return classifier.Succeeded(r.text)
	case <-timer:
		a.superseded.Store(true)
		log.Warn("Backend call timed out",
			zap.String("message_id", a.id),
			zap.Duration("timeout", timeout))
		return classifier.Failed(fmt.Errorf("chat after %s: %w", timeout, models.ErrTimeout))
	case <-ctx.Done():
		a.superseded.Store(true)
		return classifier.Failed(fmt.Errorf("caller stopped waiting: %w", ctx.Err()))
	}
}
