package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// subscriberBuffer is the per-subscriber ring capacity. When a slow
// consumer falls behind, the oldest buffered events are dropped in favor
// of the newest and a single Lagged marker reports the gap.
const subscriberBuffer = 100

// Event is one item seen by a transport subscriber. Exactly one of Msg,
// Err, or Lagged is meaningful. A Lagged event reports how many events
// were dropped since the subscriber last kept up.
type Event struct {
	Msg    *Message
	Err    error // decode failure for one inbound line
	Lagged int
}

// Subscription receives every message the transport decodes from the
// moment Subscribe was called. C is closed once the transport has shut
// down and all buffered events (plus any pending Lagged marker) have been
// delivered.
type Subscription struct {
	C <-chan Event

	t      *Transport
	out    chan Event
	notify chan struct{} // wakes the pump; capacity 1

	mu     sync.Mutex
	ring   []Event
	lagged int
	closed bool
}

func newSubscription(t *Transport) *Subscription {
	s := &Subscription{
		t:      t,
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
	}
	s.C = s.out
	go s.pump()
	return s
}

// Close detaches the subscription from the transport.
func (s *Subscription) Close() {
	s.t.unsubscribe(s)
}

// deliver enqueues ev, dropping the oldest buffered event when the ring
// is full.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.ring) >= subscriberBuffer {
		s.ring = s.ring[1:]
		s.lagged++
	}
	s.ring = append(s.ring, ev)
	s.mu.Unlock()
	s.wake()
}

// shut stops accepting events; the pump drains what is buffered and then
// closes C.
func (s *Subscription) shut() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump forwards buffered events to the consumer. A pending lag count is
// emitted as one marker ahead of the newer events it displaced.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		var ev Event
		var ok bool
		switch {
		case s.lagged > 0:
			ev, ok = Event{Lagged: s.lagged}, true
			s.lagged = 0
		case len(s.ring) > 0:
			ev, ok = s.ring[0], true
			s.ring = s.ring[1:]
		case s.closed:
			s.mu.Unlock()
			close(s.out)
			return
		}
		s.mu.Unlock()

		if ok {
			s.out <- ev
			continue
		}
		<-s.notify
	}
}

// LogSubscription receives the child's stderr line-by-line.
type LogSubscription struct {
	C <-chan string

	t  *Transport
	ch chan string
}

// Close detaches the log subscription.
func (s *LogSubscription) Close() { s.t.unsubscribeLogs(s) }

// Transport frames JSON-RPC messages over a child process's stdio: one
// message per line on stdout, each outbound message serialized and
// terminated with '\n'. Stderr is captured line-by-line onto a separate
// broadcast channel for operator-visible logs.
//
// The transport is producer-agnostic: a background goroutine reads stdout
// lines, attempts JSON decode, and publishes either the message or the
// decode error to every subscriber.
type Transport struct {
	mu      sync.Mutex
	stdin   io.WriteCloser
	subs    map[*Subscription]struct{}
	logSubs map[*LogSubscription]struct{}
	closed  bool
	done    chan struct{} // closed when the stdout reader exits
}

// NewTransport wires a transport over raw stdio handles and starts the
// reader goroutines. stderr may be nil. Ownership of the child process
// itself stays with the caller; the transport holds only the borrowed
// stdio handles.
func NewTransport(stdin io.WriteCloser, stdout io.Reader, stderr io.Reader) *Transport {
	t := &Transport{
		stdin:   stdin,
		subs:    make(map[*Subscription]struct{}),
		logSubs: make(map[*LogSubscription]struct{}),
		done:    make(chan struct{}),
	}
	go t.readLoop(stdout)
	if stderr != nil {
		go t.logLoop(stderr)
	}
	return t
}

// Send serializes msg and writes it atomically, followed by '\n'.
// Fails with ErrTransportWrite once the child has exited.
func (t *Transport) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mcp: marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportWrite
	}
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportWrite, err)
	}
	return nil
}

// Subscribe returns a fresh receiver that sees every message decoded from
// this moment on.
func (t *Transport) Subscribe() *Subscription {
	s := newSubscription(t)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		s.shut()
		return s
	}
	t.subs[s] = struct{}{}
	return s
}

// SubscribeLogs returns a receiver for the child's stderr lines.
func (t *Transport) SubscribeLogs() *LogSubscription {
	s := &LogSubscription{t: t, ch: make(chan string, subscriberBuffer)}
	s.C = s.ch

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		close(s.ch)
		return s
	}
	t.logSubs[s] = struct{}{}
	return s
}

func (t *Transport) unsubscribe(s *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[s]; ok {
		delete(t.subs, s)
		s.shut()
	}
}

func (t *Transport) unsubscribeLogs(s *LogSubscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.logSubs[s]; ok {
		delete(t.logSubs, s)
		close(s.ch)
	}
}

// Shutdown closes the child's stdin; the reader goroutine exits when
// stdout reaches EOF, which closes all subscriptions.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return nil
	}
	return stdin.Close()
}

// Done is closed when the stdout reader has exited (child gone).
func (t *Transport) Done() <-chan struct{} { return t.done }

// publish fans out one event to all current subscribers.
func (t *Transport) publish(ev Event) {
	t.mu.Lock()
	subs := make([]*Subscription, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev)
	}
}

// readLoop decodes newline-framed messages from the child's stdout.
// Messages are assumed to contain no embedded newlines (per the MCP
// stdio spec). A zero-byte read is transient, not EOF.
func (t *Transport) readLoop(stdout io.Reader) {
	defer t.closeAll()

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err == nil {
			continue
		}
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if len(trimmed) > 0 {
				var msg Message
				if jsonErr := json.Unmarshal(trimmed, &msg); jsonErr != nil {
					t.publish(Event{Err: fmt.Errorf("mcp: decode inbound message: %w", jsonErr)})
				} else {
					t.publish(Event{Msg: &msg})
				}
			}
		}
		if err != nil {
			// io.EOF and read failures both end the session from the
			// transport's point of view.
			return
		}
	}
}

// logLoop forwards stderr lines to log subscribers. Slow log viewers lose
// the oldest lines; the newest always lands.
func (t *Transport) logLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		t.mu.Lock()
		for s := range t.logSubs {
			select {
			case s.ch <- line:
			default:
				select {
				case <-s.ch:
				default:
				}
				select {
				case s.ch <- line:
				default:
				}
			}
		}
		t.mu.Unlock()
	}
}

// closeAll marks the transport dead and closes every subscription.
func (t *Transport) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for s := range t.subs {
		s.shut()
	}
	t.subs = make(map[*Subscription]struct{})
	for s := range t.logSubs {
		close(s.ch)
	}
	t.logSubs = make(map[*LogSubscription]struct{})
	close(t.done)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
