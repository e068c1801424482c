package devices

import (
	"context"
	"io"
	"log"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate every GSM module on the rack is configured for.
const DefaultBaudRate = 115200

// maxResponse caps how much a single transaction will buffer. A module that
// keeps streaming (URC storm, echo loop) is cut off here.
const maxResponse = 64 * 1024

// Port is the part of serial.Port a transaction needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a serial device at the given baud rate.
type Opener func(name string, baud int) (Port, error)

// OpenSerial opens a device with go.bug.st/serial in 8N1 mode.
func OpenSerial(name string, baud int) (Port, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// SerialTransport runs one-shot AT transactions. Every call opens its own
// handle and closes it before returning, so a hung module only ever costs its
// own timeout.
type SerialTransport struct {
	baud int
	open Opener
}

// NewSerialTransport creates a transport backed by real serial devices.
func NewSerialTransport(baud int) *SerialTransport {
	return NewTransportWithOpener(baud, OpenSerial)
}

// NewTransportWithOpener creates a transport with a custom device opener.
func NewTransportWithOpener(baud int, open Opener) *SerialTransport {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &SerialTransport{baud: baud, open: open}
}

// BaudRate returns the configured line speed.
func (t *SerialTransport) BaudRate() int {
	return t.baud
}

// Transact writes command to port and reads until the module has been idle
// for timeout. It returns nil when nothing came back or when the port could
// not be used at all; faults are logged, never returned.
func (t *SerialTransport) Transact(ctx context.Context, port string, command []byte, timeout time.Duration) []byte {
	if err := ctx.Err(); err != nil {
		return nil
	}

	p, err := t.open(port, t.baud)
	if err != nil {
		log.Printf("transport: %s: open failed: %v", port, err)
		return nil
	}
	defer p.Close()

	if err := p.SetReadTimeout(timeout); err != nil {
		log.Printf("transport: %s: set read timeout: %v", port, err)
		return nil
	}

	if _, err := p.Write(command); err != nil {
		log.Printf("transport: %s: write failed: %v", port, err)
		return nil
	}

	resp, err := readUntilIdle(ctx, p)
	if err != nil {
		log.Printf("transport: %s: read failed: %v", port, err)
		return nil
	}
	if len(resp) == 0 {
		return nil
	}
	return resp
}

// readUntilIdle collects bytes until one read returns nothing (the read
// timeout elapsed with the line silent), the context ends, or maxResponse
// is reached. A read error other than EOF discards the partial response.
func readUntilIdle(ctx context.Context, p Port) ([]byte, error) {
	var resp []byte
	buf := make([]byte, 256)
	for len(resp) < maxResponse {
		if ctx.Err() != nil {
			break
		}
		n, err := p.Read(buf)
		if n > 0 {
			resp = append(resp, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return resp, nil
}
