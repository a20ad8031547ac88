package gdserial

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}
	if config.DataBits != 8 {
		t.Errorf("Expected DataBits 8, got %d", config.DataBits)
	}
	if config.StopBits != 1 {
		t.Errorf("Expected StopBits 1, got %d", config.StopBits)
	}
	if config.Parity != ParityNone {
		t.Errorf("Expected Parity None, got %v", config.Parity)
	}
	if config.FlowControl != FlowControlNone {
		t.Errorf("Expected FlowControl None, got %v", config.FlowControl)
	}
	if config.ReadTimeout != time.Second {
		t.Errorf("Expected ReadTimeout 1s, got %v", config.ReadTimeout)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr error
	}{
		{"valid baud", WithBaudRate(115200), nil},
		{"zero baud", WithBaudRate(0), ErrInvalidBaudRate},
		{"negative baud", WithBaudRate(-9600), ErrInvalidBaudRate},
		{"nonstandard baud", WithBaudRate(12345), ErrInvalidBaudRate},
		{"data bits 5", WithDataBits(5), nil},
		{"data bits 8", WithDataBits(8), nil},
		{"data bits 4", WithDataBits(4), ErrInvalidConfig},
		{"data bits 9", WithDataBits(9), ErrInvalidConfig},
		{"stop bits 1", WithStopBits(1), nil},
		{"stop bits 2", WithStopBits(2), nil},
		{"stop bits 3", WithStopBits(3), ErrInvalidConfig},
		{"parity even", WithParity(ParityEven), nil},
		{"parity out of range", WithParity(Parity(7)), ErrInvalidConfig},
		{"flow hardware", WithFlowControl(FlowControlHardware), nil},
		{"flow out of range", WithFlowControl(FlowControl(7)), ErrInvalidConfig},
		{"timeout zero", WithReadTimeout(0), nil},
		{"timeout 100ms", WithReadTimeout(100 * time.Millisecond), nil},
		{"timeout negative", WithReadTimeout(-time.Second), ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			err := tt.opt(&config)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptionsApplyValue(t *testing.T) {
	config := DefaultConfig()

	if err := WithBaudRate(57600)(&config); err != nil {
		t.Fatalf("WithBaudRate failed: %v", err)
	}
	if config.BaudRate != 57600 {
		t.Errorf("Expected BaudRate 57600, got %d", config.BaudRate)
	}

	if err := WithParity(ParityOdd)(&config); err != nil {
		t.Fatalf("WithParity failed: %v", err)
	}
	if config.Parity != ParityOdd {
		t.Errorf("Expected Parity Odd, got %v", config.Parity)
	}

	// a failing option must not modify the config
	if err := WithDataBits(12)(&config); err == nil {
		t.Fatal("WithDataBits(12) should fail")
	}
	if config.DataBits != 8 {
		t.Errorf("Failed option modified DataBits to %d", config.DataBits)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"bad baud", func(c *Config) { c.BaudRate = 13 }, false},
		{"bad data bits", func(c *Config) { c.DataBits = 3 }, false},
		{"bad stop bits", func(c *Config) { c.StopBits = 0 }, false},
		{"bad parity", func(c *Config) { c.Parity = Parity(-1) }, false},
		{"bad flow", func(c *Config) { c.FlowControl = FlowControl(9) }, false},
		{"negative timeout", func(c *Config) { c.ReadTimeout = -1 }, false},
		{"full custom", func(c *Config) {
			c.BaudRate = 230400
			c.DataBits = 7
			c.StopBits = 2
			c.Parity = ParityEven
			c.FlowControl = FlowControlSoftware
			c.ReadTimeout = 250 * time.Millisecond
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
