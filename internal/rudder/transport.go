package rudder

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream to the rudder controller board. Read must not block
// much longer than the configured read timeout and returns (0, nil) when no
// input is pending.
type Port interface {
	io.ReadWriteCloser
}

type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// OpenSerial opens the USB serial link to the controller board.
func OpenSerial(cfg SerialConfig) (Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial device required")
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
	}

	// Stale bytes from before the board reset would confuse the boot handshake
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", cfg.Device, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset output buffer on %s: %w", cfg.Device, err)
	}

	return port, nil
}

// ListSerialPorts returns the serial devices currently present on the host.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
