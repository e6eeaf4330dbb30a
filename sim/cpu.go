package sim

// CPUProcess is the computation representing one Request's demand on a
// CPU (§3 Data Model). Created on CPU submission, destroyed when its
// remaining demand reaches zero.
type CPUProcess struct {
	Request         *Request
	RemainingDemand float64
	submittedAt     float64
	onComplete      func(ctx *Context, req *Request)
}

// completionEvent fires when a CPUProcess finishes; it hands the request
// back to whoever submitted it via the onComplete callback captured at
// submission time, keeping sim free of any dependency on sim/cluster
// (§4.2: "handed back to the instance via an onComputed(request)
// callback").
type completionEvent struct {
	BaseEvent
	cpu     *CPU
	process *CPUProcess
}

func (e *completionEvent) Execute(ctx *Context) {
	e.cpu.onCompletion(ctx, e.process)
}

// CPUScheduler orders the processes submitted to one CPU. The default is
// work-conserving FIFO with a single active slot (§4.2); it is pluggable
// so alternative disciplines (e.g. priority-based) can replace it without
// touching CPU itself.
type CPUScheduler interface {
	// Enqueue appends process to the scheduling order.
	Enqueue(process *CPUProcess)
	// Next returns (and removes) the process that should run next, or nil
	// if the scheduler is empty.
	Next() *CPUProcess
	// Len reports the number of queued-and-not-yet-running processes.
	Len() int
	// Peek returns the next process without removing it.
	Peek() *CPUProcess
}

// FIFOScheduler is the default CPUScheduler: requests run in arrival
// order, single active slot.
type FIFOScheduler struct {
	queue []*CPUProcess
}

func NewFIFOScheduler() *FIFOScheduler { return &FIFOScheduler{} }

func (s *FIFOScheduler) Enqueue(p *CPUProcess) { s.queue = append(s.queue, p) }

func (s *FIFOScheduler) Next() *CPUProcess {
	if len(s.queue) == 0 {
		return nil
	}
	p := s.queue[0]
	s.queue = s.queue[1:]
	return p
}

func (s *FIFOScheduler) Peek() *CPUProcess {
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

func (s *FIFOScheduler) Len() int { return len(s.queue) }

// CPU models one microservice instance's compute capacity: a fixed
// total_capacity (work-units per unit time) and a pluggable scheduler
// that mediates access to it (§4.2, §5 shared-resource policy).
type CPU struct {
	Capacity float64
	Sched    CPUScheduler

	active        *CPUProcess
	activeEvent   *completionEvent
	lastAdvanceAt float64
}

// NewCPU creates a CPU with the given total capacity and a FIFOScheduler.
func NewCPU(capacity float64) *CPU {
	return &CPU{Capacity: capacity, Sched: NewFIFOScheduler()}
}

// Submit enqueues a request with the given work demand. onComplete is
// invoked (via a scheduled completionEvent, preserving ordering
// invariants even for zero-demand processes per §4.2's edge case) when
// the process finishes. If the CPU is idle, the new process becomes
// active immediately and a completion is scheduled; otherwise it waits.
func (c *CPU) Submit(ctx *Context, req *Request, demand float64, onComplete func(ctx *Context, req *Request)) *CPUProcess {
	p := &CPUProcess{Request: req, RemainingDemand: demand, submittedAt: ctx.Now(), onComplete: onComplete}
	if c.active == nil {
		c.startProcess(ctx, p)
	} else {
		c.Sched.Enqueue(p)
	}
	return p
}

func (c *CPU) startProcess(ctx *Context, p *CPUProcess) {
	c.active = p
	c.lastAdvanceAt = ctx.Now()
	finishTime := ctx.Now()
	if c.Capacity > 0 {
		finishTime += p.RemainingDemand / c.Capacity
	}
	ev := &completionEvent{BaseEvent: ctx.NewBaseEvent(finishTime), cpu: c, process: p}
	c.activeEvent = ev
	ctx.Schedule(ev)
}

// onCompletion runs when the active process's completion event fires: it
// is removed, handed back via onComplete, and (I5: non-increasing
// remaining demand between external events) the next queued process, if
// any, is advanced in its place.
func (c *CPU) onCompletion(ctx *Context, p *CPUProcess) {
	if c.active != p {
		// The active process changed underneath this event (e.g. die()
		// cleared the CPU); a stale completion is a no-op.
		return
	}
	c.active = nil
	c.activeEvent = nil
	p.RemainingDemand = 0
	cb := p.onComplete
	req := p.Request
	if next := c.Sched.Next(); next != nil {
		c.startProcess(ctx, next)
	}
	if cb != nil {
		cb(ctx, req)
	}
}

// CurrentUsage returns the fraction of capacity in use, in [0,1]: 1 if a
// process is active, 0 if idle.
func (c *CPU) CurrentUsage() float64 {
	if c.active == nil {
		return 0
	}
	return 1
}

// CurrentRelativeWorkDemand returns the sum of remaining demand across
// the active process and everything queued behind it — the signal the
// autoscaler reads (§4.6). Queued processes are counted only when Sched
// is a *FIFOScheduler; with any other scheduler only the active process
// counts.
func (c *CPU) CurrentRelativeWorkDemand() float64 {
	total := 0.0
	if c.active != nil {
		total += c.active.RemainingDemand
	}
	if fifo, ok := c.Sched.(*FIFOScheduler); ok {
		for _, p := range fifo.queue {
			total += p.RemainingDemand
		}
	}
	return total
}

// Clear cancels the outstanding completion event and drops all queued
// processes. Called only by an instance's die() (§4.2).
func (c *CPU) Clear(ctx *Context) {
	if c.activeEvent != nil {
		ctx.Cancel(c.activeEvent)
	}
	c.active = nil
	c.activeEvent = nil
	c.Sched = NewFIFOScheduler()
}

// QueueLen reports the number of processes not currently active.
func (c *CPU) QueueLen() int { return c.Sched.Len() }

// Idle reports whether the CPU has no active process.
func (c *CPU) Idle() bool { return c.active == nil }
