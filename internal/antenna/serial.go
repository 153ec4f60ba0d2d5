package antenna

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// The antenna controller only speaks 9600 8N1; nothing is negotiated.
const (
	BaudRate = 9600
	DataBits = 8
	StopBits = 1
)

// Config is the serial port configuration of a link
type Config struct {
	PortName string
	BaudRate uint
	DataBits uint
	StopBits uint
}

// NewConfig returns the fixed 9600 8N1 configuration for port
func NewConfig(port string) Config {
	return Config{
		PortName: port,
		BaudRate: BaudRate,
		DataBits: DataBits,
		StopBits: StopBits,
	}
}

func (c *Config) Validate() error {
	if c.PortName == "" {
		return errors.New("antenna.Config: port name is required")
	}
	if c.BaudRate == 0 || c.DataBits == 0 || c.StopBits == 0 {
		return errors.New("antenna.Config: baud rate, data bits and stop bits must be set")
	}
	return nil
}

// Opener opens the transport of a link
type Opener func(config Config) (io.ReadWriteCloser, error)

// OpenSerial opens a serial port without parity, blocking reads until at
// least one byte is available.
func OpenSerial(config Config) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:        config.PortName,
		BaudRate:        config.BaudRate,
		DataBits:        config.DataBits,
		StopBits:        config.StopBits,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
}
