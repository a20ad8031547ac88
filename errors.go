package gdserial

import "errors"

// Predefined error types for robust error handling
var (
	ErrPortNotFound     = errors.New("port not found")
	ErrPortNotOpen      = errors.New("port is not open")
	ErrAlreadyOpen      = errors.New("port is already open")
	ErrPortUnavailable  = errors.New("serial device unavailable")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrWriteFailed      = errors.New("serial write failed")
	ErrDisconnected     = errors.New("serial device disconnected")
)
