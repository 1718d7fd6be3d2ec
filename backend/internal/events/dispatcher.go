package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var ErrDispatcherClosed = errors.New("events: dispatcher closed")

// Dispatcher：本地有界队列 + worker 异步失效 + 有限重试。
// - Enqueue 只负责入队，不阻塞消费循环
// - Redis 短暂不可用时靠重试和退避吸收
// - 重试耗尽就丢弃，缓存最终会按 TTL 过期
type Dispatcher struct {
	target Invalidator
	source string

	queue chan PageEvent
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		QueueSize:   1024,
		Workers:     2,
		MaxRetry:    3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// NewDispatcher starts the workers. source labels the invalidations.
func NewDispatcher(target Invalidator, source string, opt DispatcherOptions) *Dispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	d := &Dispatcher{
		target:      target,
		source:      source,
		queue:       make(chan PageEvent, opt.QueueSize),
		stop:        make(chan struct{}),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Enqueue 队列满时等待直到 ctx 结束
func (d *Dispatcher) Enqueue(ctx context.Context, evt PageEvent) error {
	select {
	case <-d.stop:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.queue <- evt:
		return nil
	case <-d.stop:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Close stops accepting events, lets the workers drain what is queued
// and waits for them.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for {
		select {
		case evt := <-d.queue:
			d.invalidateWithRetry(workerID, evt)
		case <-d.stop:
			for {
				select {
				case evt := <-d.queue:
					d.invalidateWithRetry(workerID, evt)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) invalidateWithRetry(workerID int, evt PageEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		err := d.target.Invalidate(context.Background(), evt.SiteID, d.source)
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			log.Printf("events: invalidate failed, drop event site=%d page=%d worker=%d err=%v",
				evt.SiteID, evt.PageID, workerID, err)
			return
		}

		// 退避，每次退避时间X2
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}
