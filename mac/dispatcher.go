package mac

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Dispatcher is a single-consumer event queue. Every radio interrupt,
// timer firing and application call that can mutate MAC state enqueues a
// closure; closures run strictly one at a time on the consumer goroutine,
// which makes the MAC lock implicit. Closures must not block on external
// I/O.
type Dispatcher struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []func()
	stopped    bool
	done       chan struct{}
	consumerID int64
}

// NewDispatcher returns a started dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	d.mu.Lock()
	d.consumerID = goid()
	d.mu.Unlock()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.stopped {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// Post enqueues fn for execution on the consumer. It never blocks, so it
// is safe to call from interrupt shims and timer callbacks; events are
// delivered in enqueue order.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// RunSync executes fn on the consumer and waits for it to complete. When
// already called from the consumer (e.g. from within a primitive
// callback), fn runs inline — posting and waiting would deadlock the
// single consumer.
func (d *Dispatcher) RunSync(fn func()) {
	d.mu.Lock()
	onConsumer := d.consumerID == goid()
	stopped := d.stopped
	d.mu.Unlock()

	if onConsumer {
		fn()
		return
	}
	if stopped {
		return
	}

	doneCh := make(chan struct{})
	d.Post(func() {
		fn()
		close(doneCh)
	})
	<-doneCh
}

// goid extracts the current goroutine id from the runtime stack header.
// Only used to detect re-entrant RunSync calls from the consumer itself.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// header is "goroutine N [state]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// Stop lets the queued events drain and terminates the consumer. New Post
// calls are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cond.Signal()
	d.mu.Unlock()

	<-d.done
}
