package gdserial

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Handle wraps one physical serial port behind a single mutex. Any
// goroutine may call any method; the mutex makes operations mutually
// exclusive for their full duration, including the bounded OS waits.
//
// The mutex is not reentrant: code already inside one Handle call must not
// invoke another method on the same Handle.
type Handle struct {
	mu sync.Mutex

	device string
	fd     int
	opened bool

	cfg        Config // active while opened
	pendingCfg Config // staged by setters, applied on the next Open

	disconnectReported bool
	onDisconnect       func()

	logger zerolog.Logger
}

// New creates a closed Handle for the given device with staged
// configuration built from the defaults and the supplied options.
func New(device string, opts ...Option) (*Handle, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Handle{
		device:     device,
		fd:         -1,
		pendingCfg: cfg,
		logger:     log.Logger,
	}, nil
}

// SetLogger replaces the diagnostic logger
func (h *Handle) SetLogger(logger zerolog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// Device returns the device path the handle targets
func (h *Handle) Device() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device
}

// Config returns the active configuration while open, otherwise the
// staged one
func (h *Handle) Config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opened {
		return h.cfg
	}
	return h.pendingCfg
}

// SetPort stages a new device path, effective on the next Open
func (h *Handle) SetPort(device string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.device = device
}

// SetBaudRate stages a new baud rate, effective on the next Open
func (h *Handle) SetBaudRate(rate int) error { return h.stage(WithBaudRate(rate)) }

// SetDataBits stages the number of data bits, effective on the next Open
func (h *Handle) SetDataBits(bits int) error { return h.stage(WithDataBits(bits)) }

// SetStopBits stages the number of stop bits, effective on the next Open
func (h *Handle) SetStopBits(bits int) error { return h.stage(WithStopBits(bits)) }

// SetParity stages the parity mode, effective on the next Open
func (h *Handle) SetParity(parity Parity) error { return h.stage(WithParity(parity)) }

// SetFlowControl stages the flow control mode, effective on the next Open
func (h *Handle) SetFlowControl(fc FlowControl) error { return h.stage(WithFlowControl(fc)) }

// SetTimeout stages the read/write timeout, effective on the next Open
func (h *Handle) SetTimeout(timeout time.Duration) error { return h.stage(WithReadTimeout(timeout)) }

func (h *Handle) stage(opt Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := opt(&h.pendingCfg); err != nil {
		h.logger.Error().Err(err).Str("port", h.device).Msg("rejected configuration value")
		return err
	}
	return nil
}

// Open opens the device with the staged configuration
func (h *Handle) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opened {
		return ErrAlreadyOpen
	}
	if h.device == "" {
		h.logger.Error().Msg("open: port name not set")
		return fmt.Errorf("%w: port name not set", ErrInvalidConfig)
	}
	if err := h.pendingCfg.Validate(); err != nil {
		h.logger.Error().Err(err).Str("port", h.device).Msg("open: invalid configuration")
		return err
	}

	fd, err := openDevice(h.device)
	if err != nil {
		h.logger.Error().Err(err).Str("port", h.device).Msg("failed to open port")
		return err
	}
	if err := configureTermios(fd, h.pendingCfg); err != nil {
		unix.Close(fd)
		h.logger.Error().Err(err).Str("port", h.device).Msg("failed to configure port")
		if errors.Is(err, ErrInvalidBaudRate) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	h.fd = fd
	h.opened = true
	h.cfg = h.pendingCfg
	h.disconnectReported = false
	h.logger.Debug().Str("port", h.device).Int("baud", h.cfg.BaudRate).Msg("port opened")
	return nil
}

// Close releases the OS resource. Calling Close on an already closed
// handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	h.opened = false
	h.logger.Debug().Str("port", h.device).Msg("port closed")
	return err
}

// IsOpen reports whether the port is open. While open it performs one
// inexpensive liveness probe rather than trusting the cached flag, since
// USB adapters can disappear without an OS close notification. A failed
// probe transitions the handle to closed.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		return false
	}
	if _, err := inputPending(h.fd); err != nil {
		h.logger.Warn().Err(err).Str("port", h.device).Msg("liveness probe failed")
		h.markDisconnectedLocked()
		return false
	}
	return true
}

// Read returns up to n bytes, waiting at most the configured timeout for
// the first byte. A timeout with no data yields an empty slice, not an
// error.
func (h *Handle) Read(n int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		return nil, ErrPortNotOpen
	}
	return h.readLocked(n, h.cfg.ReadTimeout)
}

func (h *Handle) readLocked(n int, timeout time.Duration) ([]byte, error) {
	ready, err := waitReadable(h.fd, timeout)
	if err != nil {
		if isDisconnectError(err) {
			h.markDisconnectedLocked()
			return nil, ErrDisconnected
		}
		h.logger.Error().Err(err).Str("port", h.device).Msg("read poll failed")
		return nil, err
	}
	if !ready {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	c, err := unix.Read(h.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return []byte{}, nil
		}
		if isDisconnectError(err) {
			h.markDisconnectedLocked()
			return nil, ErrDisconnected
		}
		h.logger.Error().Err(err).Str("port", h.device).Msg("read failed")
		return nil, err
	}
	if c <= 0 {
		return []byte{}, nil
	}
	return buf[:c], nil
}

// ReadString reads up to n bytes and returns them as a string
func (h *Handle) ReadString(n int) (string, error) {
	data, err := h.Read(n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadLine accumulates bytes until a newline or the configured timeout.
// Carriage returns are dropped and the terminator is not included. On
// timeout the partial line gathered so far is returned, possibly empty;
// callers must tolerate partial lines.
func (h *Handle) ReadLine() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		return "", ErrPortNotOpen
	}

	var line strings.Builder
	deadline := time.Now().Add(h.cfg.ReadTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		data, err := h.readLocked(1, remaining)
		if err != nil {
			if errors.Is(err, ErrDisconnected) && line.Len() > 0 {
				return line.String(), nil
			}
			return "", err
		}
		if len(data) == 0 {
			// timeout, return what we have
			return line.String(), nil
		}
		switch data[0] {
		case '\n':
			return line.String(), nil
		case '\r':
		default:
			line.WriteByte(data[0])
		}
	}
}

// Write sends the full buffer, blocking at most the configured timeout
// for the driver to accept it
func (h *Handle) Write(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		h.logger.Error().Str("port", h.device).Msg("write: port not open")
		return ErrPortNotOpen
	}

	deadline := time.Now().Add(h.cfg.ReadTimeout)
	for len(data) > 0 {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ready, err := waitWritable(h.fd, remaining)
		if err != nil {
			if isDisconnectError(err) {
				h.markDisconnectedLocked()
				return fmt.Errorf("%w: device disconnected", ErrWriteFailed)
			}
			h.logger.Error().Err(err).Str("port", h.device).Msg("write poll failed")
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		if !ready {
			h.logger.Error().Str("port", h.device).Msg("write timed out")
			return fmt.Errorf("%w: timeout", ErrWriteFailed)
		}

		c, err := unix.Write(h.fd, data)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				continue
			}
			if isDisconnectError(err) {
				h.markDisconnectedLocked()
				return fmt.Errorf("%w: device disconnected", ErrWriteFailed)
			}
			h.logger.Error().Err(err).Str("port", h.device).Msg("write failed")
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		data = data[c:]
	}
	return nil
}

// WriteString sends a string
func (h *Handle) WriteString(data string) error {
	return h.Write([]byte(data))
}

// WriteLine sends a string followed by a newline
func (h *Handle) WriteLine(data string) error {
	return h.Write([]byte(data + "\n"))
}

// BytesAvailable returns the number of bytes buffered by the driver.
// Exactly one query is issued per call; some serial backends take extra
// locks per query and can report stale counts when probed twice.
func (h *Handle) BytesAvailable() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		return 0, ErrPortNotOpen
	}
	pending, err := inputPending(h.fd)
	if err != nil {
		h.logger.Warn().Err(err).Str("port", h.device).Msg("bytes pending query failed")
		h.markDisconnectedLocked()
		return 0, ErrDisconnected
	}
	return pending, nil
}

// ClearBuffer flushes the driver's input and output buffers
func (h *Handle) ClearBuffer() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.opened {
		h.logger.Error().Str("port", h.device).Msg("clear buffer: port not open")
		return ErrPortNotOpen
	}
	if err := flushBuffers(h.fd); err != nil {
		if isDisconnectError(err) {
			h.markDisconnectedLocked()
			return ErrDisconnected
		}
		h.logger.Error().Err(err).Str("port", h.device).Msg("failed to clear buffers")
		return err
	}
	return nil
}

// Reconfigure validates and applies new settings. While the port is open
// the new configuration takes effect immediately; the staged configuration
// is updated either way.
func (h *Handle) Reconfigure(opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := h.pendingCfg
	if h.opened {
		cfg = h.cfg
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			h.logger.Error().Err(err).Str("port", h.device).Msg("reconfigure: invalid configuration")
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if h.opened {
		if err := configureTermios(h.fd, cfg); err != nil {
			if isDisconnectError(err) {
				h.markDisconnectedLocked()
				return ErrDisconnected
			}
			h.logger.Error().Err(err).Str("port", h.device).Msg("reconfigure failed")
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		h.cfg = cfg
	}
	h.pendingCfg = cfg
	return nil
}

// setOnDisconnect registers a hook invoked at most once per open when
// disconnect evidence is observed. Called while the handle mutex is held;
// the hook must not call back into the handle.
func (h *Handle) setOnDisconnect(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = fn
}

// markDisconnectedLocked transitions the handle to closed on disconnect
// evidence and fires the hook exactly once even when concurrent callers
// observe the failure near-simultaneously. Caller holds h.mu.
func (h *Handle) markDisconnectedLocked() {
	if h.opened {
		unix.Close(h.fd)
		h.fd = -1
		h.opened = false
	}
	if h.disconnectReported {
		return
	}
	h.disconnectReported = true
	h.logger.Warn().Str("port", h.device).Msg("device disconnected")
	if h.onDisconnect != nil {
		h.onDisconnect()
	}
}
