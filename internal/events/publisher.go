package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Config controls publisher buffering behavior.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// Publisher asynchronously forwards security events to a sink. The zero
// value is not usable; a nil *Publisher is safe and drops everything.
type Publisher struct {
	cfg       Config
	sink      Sink
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewPublisher(cfg Config, sink Sink) *Publisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	p := &Publisher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Message, cfg.BufferSize),
		done: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case msg := <-p.ch:
			p.sink.Emit(context.Background(), msg.Channel, msg.Payload)
		case <-p.done:
			// Drain whatever was queued before Close.
			for {
				select {
				case msg := <-p.ch:
					p.sink.Emit(context.Background(), msg.Channel, msg.Payload)
				default:
					return
				}
			}
		}
	}
}

// PublishBreach queues a breach event on security-events.
func (p *Publisher) PublishBreach(ctx context.Context, event BreachEvent) {
	p.publish(ctx, ChannelSecurityEvents, event)
}

// PublishAudit queues an audit event on security-audit.
func (p *Publisher) PublishAudit(ctx context.Context, event AuditEvent) {
	p.publish(ctx, ChannelSecurityAudit, event)
}

func (p *Publisher) publish(ctx context.Context, channel string, event any) {
	if p == nil || p.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.dropped.Add(1)
		return
	}

	msg := Message{Channel: channel, Payload: payload}
	if p.cfg.DropIfFull {
		select {
		case p.ch <- msg:
		case <-p.done:
		default:
			p.dropped.Add(1)
		}
		return
	}

	select {
	case p.ch <- msg:
	case <-ctx.Done():
	case <-p.done:
	}
}

// Close stops the worker after draining queued events.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
	})
}

// Dropped reports how many events were discarded due to backpressure.
func (p *Publisher) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}
