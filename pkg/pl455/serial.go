package pl455

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is the rate every chip starts with after wake up.
const DefaultBaud = 250000

type serialPort struct {
	*serial.Port
}

// OpenSerial opens the UART to the first chip of the chain.
// Reads time out after readTimeout and then return no data.
func OpenSerial(name string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &serialPort{Port: port}, nil
}

// Read implements io.Reader. A timed out read reports io.EOF from the
// underlying file, which is translated into an empty read.
func (p *serialPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}
