// Package gdserial provides thread-safe serial port communication: a
// synchronous single-port Handle plus a multi-port Manager that backgrounds
// reading and surfaces results through a polled event queue.
//
// # Single-port usage
//
// A Handle guards one physical port with a single mutex, so any goroutine
// may call any operation:
//
//	h, err := gdserial.New("/dev/ttyUSB0",
//	    gdserial.WithBaudRate(115200),
//	    gdserial.WithReadTimeout(500*time.Millisecond),
//	)
//	if err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//	if err := h.Open(); err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//	defer h.Close()
//
//	h.WriteLine("AT")
//	reply, _ := h.ReadLine()
//
// Read timeouts are not errors: Read and ReadLine return whatever arrived
// before the configured timeout, possibly nothing. The same timeout bounds
// writes, where running out of it is an error. Settings changed through
// the Set* methods are staged and take effect on the next Open; use
// Reconfigure to change an open port.
//
// # Multi-port usage
//
// The Manager runs one background reader per open port and queues
// DataReceived and Disconnected events. Delivery is cooperative: nothing is
// delivered until the host calls PollEvents, which drains the queue,
// invokes any subscribers once per event and returns the events in arrival
// order (FIFO per port).
//
//	m := gdserial.NewManager()
//	if err := m.OpenPort("/dev/ttyACM0", gdserial.WithBaudRate(9600)); err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//	defer m.CloseAll()
//
//	for {
//	    for _, ev := range m.PollEvents() {
//	        switch ev.Type {
//	        case gdserial.EventDataReceived:
//	            fmt.Printf("%s: %q\n", ev.Port, ev.Data)
//	        case gdserial.EventDisconnected:
//	            fmt.Printf("%s went away\n", ev.Port)
//	        }
//	    }
//	    time.Sleep(50 * time.Millisecond)
//	}
//
// # Disconnection detection
//
// No OS unplug notification is assumed. Any read, write or probe whose
// underlying call fails with a device-removed error class (EIO, ENODEV,
// broken pipe, ...) closes the handle, and in manager mode emits exactly
// one Disconnected event no matter how many callers race to observe the
// failure. A confirmed disconnect is terminal for the handle; reopening is
// explicit.
//
// # Port discovery
//
//	ports, _ := gdserial.ListPorts()
//	for _, p := range ports {
//	    fmt.Printf("%s [%s] %s\n", p.Name, p.Type, p.Device)
//	}
//
// # Error handling
//
// Failures surface as sentinel errors (ErrPortUnavailable,
// ErrPermissionDenied, ErrInvalidConfig, ErrWriteFailed, ...) usable with
// errors.Is; every failure path also logs a diagnostic through zerolog.
// Expected I/O failures never panic.
//
// # Platform support
//
// The I/O layer uses Linux termios and poll via golang.org/x/sys/unix.
// Port enumeration is cross-platform through go.bug.st/serial/enumerator.
package gdserial
