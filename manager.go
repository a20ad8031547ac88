package gdserial

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// readChunk is the buffer size used by background readers
	readChunk = 4096
	// pauseIdle is how long a paused or errored reader sleeps before
	// checking its flags again
	pauseIdle = 5 * time.Millisecond
	// joinSlack pads the close-join bound beyond the read timeout
	joinSlack = 500 * time.Millisecond
)

// reader lifecycle states
const (
	readerIdle int32 = iota
	readerRunning
	readerStopping
	readerStopped
)

// portEntry ties an open handle to its background reader. While the
// reader runs it is the only caller of the handle's blocking operations;
// manager methods go through the same handle mutex and the entry is never
// handed out.
type portEntry struct {
	handle  *Handle
	stop    chan struct{}
	done    chan struct{}
	paused  atomic.Bool
	closing atomic.Bool
	state   atomic.Int32
}

// Subscriber is notified once per drained event during PollEvents
type Subscriber func(Event)

// Manager owns multiple serial ports, backgrounds their reading and
// surfaces results through an event queue.
//
// Delivery is cooperative: readers only enqueue, and both the returned
// event slice and subscriber callbacks are produced by PollEvents. A host
// that stops polling stops hearing about data and disconnects, and the
// queue grows until it polls again.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*portEntry

	queue       eventQueue
	subsMu      sync.Mutex
	subscribers []Subscriber

	logger zerolog.Logger
}

// NewManager creates an empty port manager
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*portEntry),
		logger:  log.Logger,
	}
}

// SetLogger replaces the diagnostic logger used by the manager and the
// handles it opens. Handles that are already open keep the logger they were
// given, so set it before opening ports.
func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// Subscribe registers a callback invoked once per event drained by
// PollEvents
func (m *Manager) Subscribe(fn Subscriber) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// OpenPort opens a port and starts its background reader. A second call
// for an already open name fails with ErrAlreadyOpen. Any failure rolls
// back fully: no handle left open, no reader running, no entry stored.
func (m *Manager) OpenPort(name string, opts ...Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.entries[name]; exists {
		if entry.closing.Load() {
			m.logger.Error().Str("port", name).Msg("open: port still closing")
			return ErrPortUnavailable
		}
		m.logger.Error().Str("port", name).Msg("open: port already open")
		return ErrAlreadyOpen
	}

	handle, err := New(name, opts...)
	if err != nil {
		m.logger.Error().Err(err).Str("port", name).Msg("open: invalid configuration")
		return err
	}
	handle.SetLogger(m.logger)
	handle.setOnDisconnect(func() {
		m.queue.push(Event{Type: EventDisconnected, Port: name})
	})

	if err := handle.Open(); err != nil {
		return err
	}

	entry := &portEntry{
		handle: handle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	entry.state.Store(readerIdle)
	m.entries[name] = entry

	go m.readLoop(name, entry)

	m.logger.Info().Str("port", name).Msg("port opened with background reader")
	return nil
}

// readLoop is the background reader: one per open port, exclusive driver
// of the handle's blocking reads until stopped or disconnected.
func (m *Manager) readLoop(name string, entry *portEntry) {
	entry.state.Store(readerRunning)
	defer func() {
		entry.state.Store(readerStopped)
		close(entry.done)
	}()

	for {
		select {
		case <-entry.stop:
			entry.state.Store(readerStopping)
			return
		default:
		}

		if entry.paused.Load() {
			time.Sleep(pauseIdle)
			continue
		}

		data, err := entry.handle.Read(readChunk)
		if err != nil {
			if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrPortNotOpen) {
				// a disconnect is queued by the handle's hook; a handle
				// closed from elsewhere just ends the loop
				entry.state.Store(readerStopping)
				return
			}
			m.logger.Error().Err(err).Str("port", name).Msg("background read failed")
			time.Sleep(pauseIdle)
			continue
		}
		if len(data) > 0 {
			m.queue.push(Event{Type: EventDataReceived, Port: name, Data: data})
		}
	}
}

// ClosePort stops the port's reader, joins it within a bound derived from
// the configured timeout, closes the handle and removes the entry. The
// entry stays registered until the handle is closed, so a reopen under the
// same name during teardown is refused rather than handed a second
// descriptor on the device. Closing an unknown port, or one already being
// torn down, is a no-op.
func (m *Manager) ClosePort(name string) error {
	m.mu.Lock()
	entry, ok := m.entries[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if !entry.closing.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	close(entry.stop)

	bound := 2*entry.handle.Config().ReadTimeout + joinSlack
	select {
	case <-entry.done:
	case <-time.After(bound):
		m.logger.Warn().Str("port", name).Dur("bound", bound).Int32("state", entry.state.Load()).Msg("reader did not stop within bound")
	}

	err := entry.handle.Close()

	m.mu.Lock()
	if cur, ok := m.entries[name]; ok && cur == entry {
		delete(m.entries, name)
	}
	m.mu.Unlock()

	m.logger.Info().Str("port", name).Msg("port closed")
	return err
}

// CloseAll tears down every open port; intended for host shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.ClosePort(name); err != nil {
			m.logger.Error().Err(err).Str("port", name).Msg("close failed during shutdown")
		}
	}
}

// WritePort writes to an open port, serialized with its background reader
// by the handle mutex
func (m *Manager) WritePort(name string, data []byte) error {
	entry, ok := m.lookup(name)
	if !ok {
		m.logger.Error().Str("port", name).Msg("write: port not found")
		return ErrPortNotFound
	}
	return entry.handle.Write(data)
}

// WriteLinePort writes a string plus newline to an open port
func (m *Manager) WriteLinePort(name, data string) error {
	entry, ok := m.lookup(name)
	if !ok {
		m.logger.Error().Str("port", name).Msg("write: port not found")
		return ErrPortNotFound
	}
	return entry.handle.WriteLine(data)
}

// ReconfigurePort applies a new configuration to an open port. The reader
// is paused first so the new settings are never applied mid-read: the
// reader parks between iterations, the handle mutex waits out any read
// already inside its bounded OS wait, and the reader resumes afterwards.
func (m *Manager) ReconfigurePort(name string, opts ...Option) error {
	entry, ok := m.lookup(name)
	if !ok {
		m.logger.Error().Str("port", name).Msg("reconfigure: port not found")
		return ErrPortNotFound
	}

	entry.paused.Store(true)
	defer entry.paused.Store(false)

	return entry.handle.Reconfigure(opts...)
}

// PollEvents drains all currently queued events without blocking and
// returns them in arrival order (FIFO per port). Each drained event is
// also delivered once to every subscriber. Returns an empty slice when
// nothing is pending.
func (m *Manager) PollEvents() []Event {
	events := m.queue.drain()
	if len(events) == 0 {
		return events
	}

	m.subsMu.Lock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.subsMu.Unlock()

	for _, event := range events {
		for _, fn := range subs {
			fn(event)
		}
	}
	return events
}

// Ports returns the names of all registered ports in sorted order
func (m *Manager) Ports() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.Unlock()

	sort.Strings(names)
	return names
}

// PortOpen reports whether the named port is registered and its handle
// still passes the liveness probe
func (m *Manager) PortOpen(name string) bool {
	entry, ok := m.lookup(name)
	if !ok {
		return false
	}
	return entry.handle.IsOpen()
}

func (m *Manager) lookup(name string) (*portEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[name]
	return entry, ok
}
