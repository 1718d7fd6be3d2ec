package manager

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// DefaultMaxRenders bounds concurrent collect+render passes.
var DefaultMaxRenders = 8

// Semaphore 限制同时进行的渲染数量，渲染会打满数据库
type Semaphore struct {
	ch chan struct{}
}

func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = DefaultMaxRenders
	}
	return &Semaphore{ch: make(chan struct{}, n)}
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return pkgerrors.Wrap(ctx.Err(), "acquire render slot")
	}
}

func (s *Semaphore) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return errors.New("release failed, semaphore is not acquired")
	}
}
