package server

import (
	"encoding/json"
	"sync"

	"infer-mli/src/internal/common"
)

// SessionState is the per-session mutable state owned by the dispatcher.
// It is passed by reference into every handler invocation; there is no
// ambient global state.
type SessionState struct {
	indexedOnce sync.Once
	indexed     chan struct{}
}

// NewSessionState creates session state with an unconsumed indexing signal
func NewSessionState() *SessionState {
	return &SessionState{indexed: make(chan struct{})}
}

// MarkIndexed fires the one-shot indexing-complete signal. Language servers
// sometimes report indexing completion more than once; every call after the
// first is a no-op.
func (s *SessionState) MarkIndexed() {
	s.indexedOnce.Do(func() { close(s.indexed) })
}

// Indexed returns a channel closed once the server reports indexing complete
func (s *SessionState) Indexed() <-chan struct{} {
	return s.indexed
}

// Event is an internal control message. Events ride the same dispatch
// surface as wire notifications but are never serialized and never arrive
// from the server.
type Event interface {
	isEvent()
}

// StopEvent deliberately terminates the session loop. It is the only
// intentional way the loop exits.
type StopEvent struct{}

func (StopEvent) isEvent() {}

// NotificationHandler processes one server notification. Handlers run off
// the read loop on bounded workers, so a slow handler never stalls the
// frame parser.
type NotificationHandler func(state *SessionState, params json.RawMessage) error

// Dispatcher routes server notifications by method name and internal events
// by type. Unregistered methods are ignored: the server may speak protocol
// extensions this client does not understand.
type Dispatcher struct {
	state    *SessionState
	handlers map[string]NotificationHandler

	sem      chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDispatcher creates a dispatcher with at most maxInFlight concurrently
// running notification handlers
func NewDispatcher(state *SessionState, maxInFlight int) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Dispatcher{
		state:    state,
		handlers: make(map[string]NotificationHandler),
		sem:      make(chan struct{}, maxInFlight),
		stopCh:   make(chan struct{}),
	}
}

// Notification registers the handler for a notification method
func (d *Dispatcher) Notification(method string, handler NotificationHandler) {
	d.handlers[method] = handler
}

// Emit delivers an internal control event
func (d *Dispatcher) Emit(ev Event) {
	switch ev.(type) {
	case StopEvent:
		d.stop()
	default:
		common.LSPLogger.Warn("Unknown control event: %T", ev)
	}
}

func (d *Dispatcher) stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// StopCh is closed once a StopEvent has been emitted
func (d *Dispatcher) StopCh() <-chan struct{} {
	return d.stopCh
}

// Dispatch routes one notification to its registered handler on a worker
// goroutine. When all workers are busy, Dispatch blocks, which bounds
// queuing if the server floods notifications.
func (d *Dispatcher) Dispatch(method string, params json.RawMessage) {
	handler, ok := d.handlers[method]
	if !ok {
		common.LSPLogger.Debug("Ignoring unhandled notification: %s", method)
		return
	}

	select {
	case d.sem <- struct{}{}:
	case <-d.stopCh:
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		defer func() {
			// A faulty handler must not take down the session.
			if r := recover(); r != nil {
				common.LSPLogger.Error("Notification handler panicked: method=%s, panic=%v", method, r)
			}
		}()

		if err := handler(d.state, params); err != nil {
			common.LSPLogger.Warn("Notification handler failed: method=%s, error=%v", method, err)
		}
	}()
}

// Drain waits for all in-flight notification handlers to finish
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}
