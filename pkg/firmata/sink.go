// Package firmata drives a StandardFirmata microcontroller over USB serial as
// the agent's output sink.
package firmata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/output"
)

// Config selects the device and its pin assignment.
type Config struct {
	// Match selects the serial port to use during discovery.
	Match    func(PortInfo) bool
	BaudRate int

	RelayPin  byte // digital output driving the relay
	LEDPin    byte // onboard status LED
	MotionPin byte // PIR sensor input
	LightPin  byte // analog channel of the light sensor

	HandshakeTimeout time.Duration
	RetryInterval    time.Duration
}

// DefaultConfig returns the pin layout of the reference board: relay on D1,
// PIR on D0, light sensor on A0 and the onboard LED on D13.
func DefaultConfig(namePrefix string) Config {
	return Config{
		Match:            MatchName(namePrefix),
		BaudRate:         DefaultBaudRate,
		RelayPin:         1,
		LEDPin:           13,
		MotionPin:        0,
		LightPin:         0,
		HandshakeTimeout: 10 * time.Second,
		RetryInterval:    30 * time.Second,
	}
}

// Sink implements output.Sink for a Firmata device. Discovery, the ready
// handshake and connection loss are handled on a background goroutine;
// callers never block on the hardware.
type Sink struct {
	cfg      Config
	notifier *output.Notifier

	listPorts func() ([]PortInfo, error)
	openPort  func(path string, baudRate int) (io.ReadWriteCloser, error)

	mu     sync.Mutex // guards port and device
	port   io.ReadWriteCloser
	device string
	ready  atomic.Bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewSink creates a serial sink. Nothing is opened until Start.
func NewSink(cfg Config) *Sink {
	return &Sink{
		cfg:       cfg,
		notifier:  output.NewNotifier(),
		listPorts: ListPorts,
		openPort: func(path string, baudRate int) (io.ReadWriteCloser, error) {
			return OpenSerial(path, baudRate)
		},
		done: make(chan struct{}),
	}
}

// Start launches the discovery loop.
func (s *Sink) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Debug().Err(err).Msg("Firmata session ended")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryInterval):
		}
	}
}

// connect runs one discovery → handshake → serve cycle and returns when the
// device is lost or the context ends.
func (s *Sink) connect(ctx context.Context) error {
	info, err := s.discover()
	if err != nil {
		s.notifier.Notify(output.EventConnectionFailed, "", err.Error())
		return err
	}

	log.Info().Str("device", info.Name()).Str("port", info.Path).Msg("Connecting to device")

	port, err := s.openPort(info.Path, s.cfg.BaudRate)
	if err != nil {
		log.Error().Err(err).Str("device", info.Name()).Msg("USB connection failed")
		s.notifier.Notify(output.EventConnectionFailed, info.Name(), err.Error())
		return err
	}

	s.mu.Lock()
	s.port = port
	s.device = info.Name()
	s.mu.Unlock()

	log.Info().Str("device", info.Name()).Msg("USB connection established")

	msgs := make(chan Message, 16)
	errc := make(chan error, 1)
	go readLoop(port, msgs, errc)

	if err := s.handshake(ctx, port, msgs, errc); err != nil {
		s.release()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Str("device", info.Name()).Msg("USB connection failed")
		s.notifier.Notify(output.EventConnectionFailed, info.Name(), err.Error())
		return err
	}

	if err := s.configure(port); err != nil {
		s.release()
		s.notifier.Notify(output.EventConnectionFailed, info.Name(), err.Error())
		return err
	}

	s.ready.Store(true)
	log.Info().Str("device", info.Name()).Msg("Device ready")
	s.notifier.Notify(output.EventReady, info.Name(), "")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			s.handleMessage(msg)
		case err := <-errc:
			s.ready.Store(false)
			s.release()
			log.Error().Err(err).Str("device", info.Name()).Msg("USB connection lost")
			s.notifier.Notify(output.EventConnectionLost, info.Name(), err.Error())
			return err
		}
	}
}

func (s *Sink) discover() (PortInfo, error) {
	ports, err := s.listPorts()
	if err != nil {
		return PortInfo{}, err
	}
	for _, p := range ports {
		if s.cfg.Match == nil || s.cfg.Match(p) {
			return p, nil
		}
	}
	return PortInfo{}, errors.New("no matching device attached")
}

// handshake queries the protocol version and waits for the reply. A freshly
// reset board announces itself unprompted, which also satisfies the wait.
func (s *Sink) handshake(ctx context.Context, w io.Writer, msgs <-chan Message, errc <-chan error) error {
	if _, err := w.Write(ReportVersion()); err != nil {
		return fmt.Errorf("query version: %w", err)
	}

	timeout := time.NewTimer(s.cfg.HandshakeTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errors.New("timeout waiting for firmata version")
		case err := <-errc:
			return fmt.Errorf("read during handshake: %w", err)
		case msg := <-msgs:
			if msg.Kind == MessageVersion || msg.Kind == MessageFirmware {
				log.Info().Str("protocol", msg.String()).Msg("Firmata handshake complete")
				return nil
			}
		}
	}
}

func (s *Sink) configure(w io.Writer) error {
	cmds := [][]byte{
		SetPinMode(s.cfg.LEDPin, PinModeOutput),
		SetDigitalPinValue(s.cfg.LEDPin, true),
		SetPinMode(s.cfg.MotionPin, PinModeInput),
		ReportDigital(s.cfg.MotionPin/8, true),
		SetPinMode(s.cfg.RelayPin, PinModeOutput),
		ReportAnalog(s.cfg.LightPin, true),
	}
	for _, c := range cmds {
		if _, err := w.Write(c); err != nil {
			return fmt.Errorf("configure pins: %w", err)
		}
	}
	return nil
}

func (s *Sink) handleMessage(msg Message) {
	switch msg.Kind {
	case MessageDigital:
		if msg.Port == s.cfg.MotionPin/8 {
			motion := msg.Value&(1<<(s.cfg.MotionPin%8)) != 0
			log.Debug().Bool("motion", motion).Msg("Motion input changed")
		}
	case MessageAnalog:
		if msg.Port == s.cfg.LightPin {
			log.Debug().Int("light", msg.Value).Msg("Light sensor reading")
		}
	}
}

// readLoop decodes the port until a read fails.
func readLoop(r io.Reader, msgs chan<- Message, errc chan<- error) {
	var p Parser
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if msg, ok := p.Feed(b); ok {
				select {
				case msgs <- msg:
				default:
				}
			}
		}
		if err != nil {
			errc <- err
			return
		}
		if n == 0 {
			// go.bug.st/serial returns 0, nil on a read timeout and after
			// the device disappeared on some platforms.
			errc <- io.ErrUnexpectedEOF
			return
		}
	}
}

// SetLevel drives the relay pin.
func (s *Sink) SetLevel(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil || !s.ready.Load() {
		return output.ErrHardwareUnavailable
	}
	if _, err := s.port.Write(SetDigitalPinValue(s.cfg.RelayPin, on)); err != nil {
		return fmt.Errorf("%w: %v", output.ErrHardwareUnavailable, err)
	}
	return nil
}

// IsReady reports whether the handshake completed and the link is up.
func (s *Sink) IsReady() bool {
	return s.ready.Load()
}

// Device returns the name of the attached device, if any.
func (s *Sink) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Events delivers ready / failed / lost notifications.
func (s *Sink) Events() <-chan output.Event {
	return s.notifier.Events()
}

// release quiesces the pins when the device is ready and closes the port.
func (s *Sink) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return
	}

	if s.ready.Swap(false) {
		for _, c := range [][]byte{
			SetDigitalPinValue(s.cfg.LEDPin, false),
			SetPinMode(s.cfg.LEDPin, PinModeInput),
			SetPinMode(s.cfg.RelayPin, PinModeInput),
		} {
			if _, err := s.port.Write(c); err != nil {
				log.Warn().Err(err).Msg("Failed to quiesce output pins")
				break
			}
		}
	}

	if err := s.port.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close serial port")
	}
	s.port = nil
	s.device = ""
}

// Close stops discovery, returns the pins to input and closes the port.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.release()

		if cancel == nil {
			return
		}
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			log.Warn().Msg("Firmata discovery loop did not stop in time")
		}
		log.Info().Msg("Firmata sink closed")
	})
	return nil
}

var _ output.Sink = (*Sink)(nil)
