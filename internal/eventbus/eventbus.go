// Package eventbus is an in-process publish/subscribe bus for job
// lifecycle events.
//
// The pipeline's idempotence guarantee (the completion handler's entry
// check) depends on delivery being synchronous and ordered per
// publisher call, so this is a plain registry over a mutex rather than
// a message broker: a broker would introduce asynchronous delivery and
// reordering, leaving the entry check no longer the only defense.
package eventbus

import "sync"

// Reason is why a job finished or is being asked to be killed.
type Reason string

const (
	ReasonProcessCompleted Reason = "PROCESS_COMPLETED"
	ReasonKilled           Reason = "KILLED"
	ReasonFailedToInit     Reason = "FAILED_TO_INIT"
	ReasonInvalid          Reason = "INVALID"
)

// JobFinished is published exactly once per monitor instance on the
// terminal path, and is the only event the completion handler consumes.
type JobFinished struct {
	JobID   string
	Reason  Reason
	Message string
	Source  string
}

// KillJob is a request consumed by the launcher subsystem: it signals
// the child and then publishes a follow-up JobFinished(KILLED).
type KillJob struct {
	JobID  string
	Reason string
	Source string
}

// JobFinishedHandler is notified synchronously of every JobFinished
// event, in the order it subscribed.
type JobFinishedHandler func(JobFinished)

// KillJobHandler is notified synchronously of every KillJob event, in
// the order it subscribed.
type KillJobHandler func(KillJob)

// Bus fans out events to subscribers synchronously and in registration
// order. There is no retry and no persistence: a failed subscriber
// simply does not see the event again unless it is redelivered by the
// publisher's own caller.
type Bus struct {
	mu               sync.Mutex
	finishedHandlers []JobFinishedHandler
	killHandlers     []KillJobHandler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// SubscribeJobFinished registers h to be called, in order, for every
// future PublishJobFinished call.
func (b *Bus) SubscribeJobFinished(h JobFinishedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishedHandlers = append(b.finishedHandlers, h)
}

// SubscribeKillJob registers h to be called, in order, for every future
// PublishKillJob call.
func (b *Bus) SubscribeKillJob(h KillJobHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killHandlers = append(b.killHandlers, h)
}

// PublishJobFinished delivers evt to every subscriber synchronously, in
// registration order, before returning.
func (b *Bus) PublishJobFinished(evt JobFinished) {
	b.mu.Lock()
	handlers := make([]JobFinishedHandler, len(b.finishedHandlers))
	copy(handlers, b.finishedHandlers)
	b.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

// PublishKillJob delivers evt to every subscriber synchronously, in
// registration order, before returning.
func (b *Bus) PublishKillJob(evt KillJob) {
	b.mu.Lock()
	handlers := make([]KillJobHandler, len(b.killHandlers))
	copy(handlers, b.killHandlers)
	b.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}
