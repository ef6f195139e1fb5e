package firmata

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the StandardFirmata serial speed.
const DefaultBaudRate = 57600

// SerialPort wraps a serial connection to the microcontroller.
// Writes are serialized; reads happen on a single reader goroutine.
type SerialPort struct {
	port serial.Port
	mu   sync.Mutex
}

// OpenSerial opens the serial port at the given baud rate, 8N1.
func OpenSerial(portPath string, baudRate int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portPath, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portPath, err)
	}

	log.Info().Str("port", portPath).Int("baud", baudRate).Msg("Serial port opened")

	return &SerialPort{port: port}, nil
}

// Write sends raw bytes to the serial port.
func (s *SerialPort) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Write(data)
}

// Read reads raw bytes from the serial port.
func (s *SerialPort) Read(buf []byte) (int, error) {
	return s.port.Read(buf)
}

// Close closes the serial port.
func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// PortInfo describes a serial device found during discovery.
type PortInfo struct {
	Path    string
	Product string
	IsUSB   bool
}

// Name returns the best human-readable name for the port.
func (p PortInfo) Name() string {
	if p.Product != "" {
		return p.Product
	}
	return p.Path
}

// ListPorts enumerates the serial devices currently attached.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{Path: d.Name, Product: d.Product, IsUSB: d.IsUSB})
	}
	return ports, nil
}

// MatchName returns a predicate selecting ports whose product name (or
// path, when the product is unknown) starts with prefix.
func MatchName(prefix string) func(PortInfo) bool {
	return func(p PortInfo) bool {
		return strings.HasPrefix(p.Product, prefix) || strings.HasPrefix(p.Path, prefix)
	}
}
