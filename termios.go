package gdserial

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// errDeviceGone is the internal marker for disconnect evidence observed at
// the poll layer (POLLERR/POLLHUP on the descriptor).
var errDeviceGone = errors.New("device gone")

// baudRateConstant converts an integer baud rate to the termios constant
func baudRateConstant(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// openDevice opens the device file and maps OS errors to the package
// error taxonomy
func openDevice(device string) (int, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
			return -1, ErrPermissionDenied
		case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO),
			errors.Is(err, unix.ENODEV), errors.Is(err, unix.EBUSY):
			return -1, ErrPortUnavailable
		default:
			return -1, err
		}
	}
	return fd, nil
}

// configureTermios applies a validated Config to an open descriptor.
// Raw mode throughout; the fd stays nonblocking and reads are bounded by
// poll(2) rather than VTIME, so VMIN/VTIME are both zero.
func configureTermios(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag = unix.CREAD | unix.CLOCAL

	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	baud, err := baudRateConstant(config.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	termios.Cflag &^= unix.CSIZE
	switch config.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if config.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch config.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	}

	switch config.FlowControl {
	case FlowControlSoftware:
		termios.Iflag |= unix.IXON | unix.IXOFF
	case FlowControlHardware:
		termios.Cflag |= unix.CRTSCTS
	}

	return unix.IoctlSetTermios(fd, unix.TCSETS, termios)
}

// inputPending returns the number of bytes buffered in the driver's input
// queue. One ioctl per call; callers reuse the result instead of probing
// twice.
func inputPending(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCINQ)
}

// flushBuffers discards unread input and unwritten output
func flushBuffers(fd int) error {
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// waitEvent polls the descriptor for the given event bits, bounded by
// timeout. Returns true when the descriptor is ready, false on timeout,
// and errDeviceGone when the poll reports the device went away.
func waitEvent(fd int, events int16, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline) / time.Millisecond)
		if timeout == 0 {
			ms = 0
		} else if ms < 0 {
			return false, nil
		}

		pfd := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(pfd, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if pfd[0].Revents&events != 0 {
			return true, nil
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, errDeviceGone
		}
		if timeout == 0 {
			return false, nil
		}
	}
}

func waitReadable(fd int, timeout time.Duration) (bool, error) {
	return waitEvent(fd, unix.POLLIN, timeout)
}

func waitWritable(fd int, timeout time.Duration) (bool, error) {
	return waitEvent(fd, unix.POLLOUT, timeout)
}

// isDisconnectError reports whether an I/O error is evidence that the
// device was removed: USB-serial adapters disappear without any OS close
// notification, so these error classes are treated as authoritative.
func isDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errDeviceGone) {
		return true
	}
	for _, target := range []error{
		unix.EIO, unix.ENXIO, unix.ENODEV, unix.EPIPE, unix.EBADF, unix.ESHUTDOWN,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
