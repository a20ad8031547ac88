package gdserial

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// newTestHandle opens a Handle on the slave end of a fresh pty pair.
// Data written to the returned master shows up on the handle and vice
// versa.
func newTestHandle(t *testing.T, opts ...Option) (*os.File, *Handle) {
	t.Helper()

	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	defaults := []Option{WithReadTimeout(100 * time.Millisecond)}
	h, err := New(slave.Name(), append(defaults, opts...)...)
	require.NoError(t, err)
	require.NoError(t, h.Open())
	t.Cleanup(func() { h.Close() })

	return master, h
}

func TestHandleOpenClose(t *testing.T) {
	_, h := newTestHandle(t)

	require.True(t, h.IsOpen())
	require.ErrorIs(t, h.Open(), ErrAlreadyOpen)

	require.NoError(t, h.Close())
	require.False(t, h.IsOpen())

	// idempotent
	require.NoError(t, h.Close())
}

func TestHandleOpenUnavailable(t *testing.T) {
	h, err := New("/dev/gdserial-does-not-exist")
	require.NoError(t, err)
	require.ErrorIs(t, h.Open(), ErrPortUnavailable)
	require.False(t, h.IsOpen())
}

func TestHandleOpenEmptyName(t *testing.T) {
	h, err := New("")
	require.NoError(t, err)
	require.ErrorIs(t, h.Open(), ErrInvalidConfig)
}

func TestHandleInvalidOptions(t *testing.T) {
	_, err := New("/dev/ttyUSB0", WithBaudRate(31337))
	require.ErrorIs(t, err, ErrInvalidBaudRate)

	h, err := New("/dev/ttyUSB0")
	require.NoError(t, err)
	require.ErrorIs(t, h.SetDataBits(9), ErrInvalidConfig)
	require.ErrorIs(t, h.SetStopBits(0), ErrInvalidConfig)
	require.ErrorIs(t, h.SetTimeout(-time.Second), ErrInvalidConfig)
}

func TestHandleStagedSetters(t *testing.T) {
	master, h := newTestHandle(t)
	_ = master

	// staged values do not disturb the open port but survive reopen
	require.NoError(t, h.SetBaudRate(115200))
	require.Equal(t, 9600, h.Config().BaudRate)

	require.NoError(t, h.Close())
	require.Equal(t, 115200, h.Config().BaudRate)
	require.NoError(t, h.Open())
	require.Equal(t, 115200, h.Config().BaudRate)
}

func TestHandleReadTimeout(t *testing.T) {
	_, h := newTestHandle(t)

	start := time.Now()
	data, err := h.Read(64)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Empty(t, data)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}

func TestHandleReadWrite(t *testing.T) {
	master, h := newTestHandle(t)

	_, err := master.Write([]byte("hello"))
	require.NoError(t, err)

	data, err := h.Read(64)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, h.Write([]byte("pong")))
	buf := make([]byte, 4)
	_, err = io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))
}

func TestHandleReadString(t *testing.T) {
	master, h := newTestHandle(t)

	_, err := master.Write([]byte("abc"))
	require.NoError(t, err)

	s, err := h.ReadString(16)
	require.NoError(t, err)
	require.Equal(t, "abc", s)
}

func TestHandleReadLine(t *testing.T) {
	master, h := newTestHandle(t)

	_, err := master.Write([]byte("hello\r\nworld"))
	require.NoError(t, err)

	line, err := h.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "hello", line)

	// no terminator for the rest: partial line on timeout, not an error
	line, err = h.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "world", line)

	// nothing at all: empty partial
	line, err = h.ReadLine()
	require.NoError(t, err)
	require.Empty(t, line)
}

func TestHandleLoopbackRoundtrip(t *testing.T) {
	master, h := newTestHandle(t)

	// echo everything arriving at the master straight back
	go io.Copy(master, master)

	require.NoError(t, h.WriteString("hello\n"))

	line, err := h.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "hello", line)
}

func TestHandleWriteLine(t *testing.T) {
	master, h := newTestHandle(t)

	require.NoError(t, h.WriteLine("ping"))

	buf := make([]byte, 5)
	_, err := io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, "ping\n", string(buf))
}

func TestHandleBytesAvailable(t *testing.T) {
	master, h := newTestHandle(t)

	_, err := master.Write([]byte("12345"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := h.BytesAvailable()
		return err == nil && n == 5
	}, time.Second, 10*time.Millisecond)

	data, err := h.Read(16)
	require.NoError(t, err)
	require.Len(t, data, 5)

	require.NoError(t, h.Close())
	_, err = h.BytesAvailable()
	require.ErrorIs(t, err, ErrPortNotOpen)
}

func TestHandleClearBuffer(t *testing.T) {
	master, h := newTestHandle(t)

	_, err := master.Write([]byte("stale data"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, _ := h.BytesAvailable()
		return n > 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.ClearBuffer())
	n, err := h.BytesAvailable()
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, h.Close())
	require.ErrorIs(t, h.ClearBuffer(), ErrPortNotOpen)
}

func TestHandleWriteClosed(t *testing.T) {
	_, h := newTestHandle(t)
	require.NoError(t, h.Close())

	require.ErrorIs(t, h.Write([]byte("x")), ErrPortNotOpen)
	_, err := h.Read(1)
	require.ErrorIs(t, err, ErrPortNotOpen)
}

func TestHandleReconfigure(t *testing.T) {
	master, h := newTestHandle(t)

	require.NoError(t, h.Reconfigure(
		WithBaudRate(115200),
		WithReadTimeout(50*time.Millisecond),
	))
	require.Equal(t, 115200, h.Config().BaudRate)

	// port still works after reconfiguration
	_, err := master.Write([]byte("after\n"))
	require.NoError(t, err)
	line, err := h.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "after", line)

	require.ErrorIs(t, h.Reconfigure(WithBaudRate(31337)), ErrInvalidBaudRate)
}

func TestHandleDisconnect(t *testing.T) {
	master, h := newTestHandle(t)

	require.NoError(t, master.Close())

	require.Eventually(t, func() bool {
		_, err := h.Read(16)
		return errors.Is(err, ErrDisconnected) || errors.Is(err, ErrPortNotOpen)
	}, 2*time.Second, 10*time.Millisecond)

	require.False(t, h.IsOpen())
	_, err := h.Read(1)
	require.ErrorIs(t, err, ErrPortNotOpen)
}

func TestHandleDisconnectReportedOnce(t *testing.T) {
	master, h := newTestHandle(t, WithReadTimeout(20*time.Millisecond))

	var mu sync.Mutex
	reports := 0
	h.setOnDisconnect(func() {
		mu.Lock()
		reports++
		mu.Unlock()
	})

	require.NoError(t, master.Close())

	// several goroutines race to observe the failure
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				h.Read(8)
				h.IsOpen()
				h.BytesAvailable()
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, reports)
}

func TestHandleConcurrentWritersNotTorn(t *testing.T) {
	const (
		writers      = 4
		linesPerSide = 20
		lineLen      = 32
	)

	master, h := newTestHandle(t, WithReadTimeout(50*time.Millisecond))
	go io.Copy(master, master)

	writeErrs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		letter := byte('a' + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			line := append(bytes.Repeat([]byte{letter}, lineLen), '\n')
			for j := 0; j < linesPerSide; j++ {
				if err := h.Write(line); err != nil {
					writeErrs <- err
					return
				}
			}
		}()
	}

	want := writers * linesPerSide * (lineLen + 1)
	var received []byte
	deadline := time.Now().Add(10 * time.Second)
	for len(received) < want && time.Now().Before(deadline) {
		data, err := h.Read(readChunk)
		require.NoError(t, err)
		received = append(received, data...)
	}
	wg.Wait()
	close(writeErrs)
	for err := range writeErrs {
		require.NoError(t, err)
	}
	require.Len(t, received, want)

	// every echoed line must be a single repeated letter: the handle
	// mutex keeps concurrent writes from interleaving
	for _, line := range bytes.Split(bytes.TrimSuffix(received, []byte("\n")), []byte("\n")) {
		require.Len(t, line, lineLen)
		for _, b := range line {
			require.Equal(t, line[0], b)
		}
	}
}
