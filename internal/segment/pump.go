package segment

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cursormirror/cursormirrord/internal/encoder"
)

// PumpQueueDepth is the bound on the encoder->engine pump's queue,
// per the concurrency model's backpressure contract.
const PumpQueueDepth = 64

// Pump is the encoder->engine pump: the single long-lived task that carries
// encoded units from the encoder's callback (invoked on the goroutine
// draining ffmpeg's stdout) to Engine.Submit (which does synchronous file
// I/O, including an fsync on rotate). Without this isolation the stdout
// reader would itself block on disk I/O. Push is the producer side and
// never performs that I/O directly; a single consumer goroutine owns all
// calls into the engine for this quality.
//
// The queue is bounded at PumpQueueDepth. On overflow, Push drops the
// oldest non-keyframe unit and counts it; keyframes are never dropped. A
// keyframe that finds the queue full blocks the producer up to one frame
// interval waiting for the consumer to drain, and only then forces room by
// dropping the oldest non-keyframe if the queue is still full. If the full
// queue holds only keyframes, an incoming non-keyframe is dropped instead and
// an incoming keyframe is appended past the bound.
type Pump struct {
	engine        *Engine
	logger        *slog.Logger
	frameInterval time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []encoder.Unit
	closed bool

	dropped atomic.Uint64

	wg sync.WaitGroup
}

// NewPump creates a pump that delivers submitted units to engine and starts
// its consumer goroutine. frameInterval bounds how long Push blocks to make
// room for a keyframe before forcing an eviction; it should be the
// reciprocal of the encoder's configured frame rate.
func NewPump(engine *Engine, frameInterval time.Duration, logger *slog.Logger) *Pump {
	if frameInterval <= 0 {
		frameInterval = 33 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pump{
		engine:        engine,
		logger:        logger,
		frameInterval: frameInterval,
		queue:         make([]encoder.Unit, 0, PumpQueueDepth),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(1)
	go p.run()
	return p
}

// Push enqueues unit for delivery to the engine. It is the encoder.Callback
// handed to Encoder.Start, so it runs on the encoder's stdout-draining
// goroutine and must never block on engine I/O itself.
func (p *Pump) Push(unit encoder.Unit) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	if len(p.queue) >= PumpQueueDepth {
		if unit.IsKeyframe {
			p.mu.Unlock()
			p.blockForRoom()
			p.mu.Lock()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		if len(p.queue) >= PumpQueueDepth {
			if !p.dropOldestNonKeyframeLocked() && !unit.IsKeyframe {
				// Queue is full of keyframes (pathological GOP-size-1
				// configuration): drop the incoming non-keyframe instead
				// of growing the queue unbounded.
				p.dropped.Add(1)
				p.mu.Unlock()
				return
			}
		}
	}

	p.queue = append(p.queue, unit)
	p.cond.Signal()
	p.mu.Unlock()
}

// blockForRoom waits up to one frame interval for the consumer to free a
// queue slot, polling rather than holding p.mu so the consumer can make
// progress while it waits.
func (p *Pump) blockForRoom() {
	deadline := time.Now().Add(p.frameInterval)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		full := len(p.queue) >= PumpQueueDepth && !p.closed
		p.mu.Unlock()
		if !full {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// dropOldestNonKeyframeLocked removes the earliest-queued non-keyframe unit,
// counting it as dropped. Must be called with p.mu held. Reports whether a
// unit was actually dropped.
func (p *Pump) dropOldestNonKeyframeLocked() bool {
	for i, u := range p.queue {
		if !u.IsKeyframe {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.dropped.Add(1)
			return true
		}
	}
	return false
}

// run is the pump's consumer goroutine: the sole caller of engine.Submit
// for the units this pump carries.
func (p *Pump) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		unit := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.engine.Submit(unit); err != nil {
			p.logger.Warn("segment engine rejected unit",
				slog.String("quality", string(unit.Quality)),
				slog.String("error", err.Error()))
		}
	}
}

// Dropped returns the count of units dropped to satisfy the bounded-queue
// backpressure policy.
func (p *Pump) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops accepting new units and waits for the consumer goroutine to
// drain whatever is already queued before returning.
func (p *Pump) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
