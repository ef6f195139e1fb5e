package firmata

import "fmt"

// Firmata command bytes
const (
	cmdDigitalMessage     = 0x90 // 0x90 | port
	cmdAnalogMessage      = 0xE0 // 0xE0 | pin
	cmdReportAnalog       = 0xC0 // 0xC0 | pin
	cmdReportDigital      = 0xD0 // 0xD0 | port
	cmdSetPinMode         = 0xF4
	cmdSetDigitalPinValue = 0xF5
	cmdReportVersion      = 0xF9
	cmdSystemReset        = 0xFF
	cmdStartSysex         = 0xF0
	cmdEndSysex           = 0xF7

	sysexReportFirmware = 0x79

	maxSysexLen = 128
)

// PinMode is a Firmata pin mode.
type PinMode byte

const (
	PinModeInput  PinMode = 0x00
	PinModeOutput PinMode = 0x01
	PinModeAnalog PinMode = 0x02
)

// SetPinMode encodes a SET_PIN_MODE command.
func SetPinMode(pin byte, mode PinMode) []byte {
	return []byte{cmdSetPinMode, pin & 0x7F, byte(mode)}
}

// SetDigitalPinValue encodes a SET_DIGITAL_PIN_VALUE command.
func SetDigitalPinValue(pin byte, high bool) []byte {
	v := byte(0)
	if high {
		v = 1
	}
	return []byte{cmdSetDigitalPinValue, pin & 0x7F, v}
}

// ReportVersion encodes a protocol version query.
func ReportVersion() []byte {
	return []byte{cmdReportVersion}
}

// ReportAnalog enables or disables value reporting for an analog channel.
func ReportAnalog(channel byte, enable bool) []byte {
	return []byte{cmdReportAnalog | (channel & 0x0F), boolByte(enable)}
}

// ReportDigital enables or disables value reporting for a digital port.
func ReportDigital(port byte, enable bool) []byte {
	return []byte{cmdReportDigital | (port & 0x0F), boolByte(enable)}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// MessageKind identifies a decoded Firmata message.
type MessageKind int

const (
	MessageVersion MessageKind = iota + 1
	MessageDigital
	MessageAnalog
	MessageFirmware
)

// Message is a decoded inbound Firmata message.
type Message struct {
	Kind MessageKind

	// Version and firmware messages
	Major, Minor byte
	Firmware     string

	// Digital messages carry a port and an 8-bit pin mask; analog messages
	// carry a channel and a 14-bit value.
	Port  byte
	Value int
}

func (m Message) String() string {
	switch m.Kind {
	case MessageVersion:
		return fmt.Sprintf("version %d.%d", m.Major, m.Minor)
	case MessageFirmware:
		return fmt.Sprintf("firmware %s %d.%d", m.Firmware, m.Major, m.Minor)
	case MessageDigital:
		return fmt.Sprintf("digital port %d = %08b", m.Port, m.Value)
	case MessageAnalog:
		return fmt.Sprintf("analog channel %d = %d", m.Port, m.Value)
	default:
		return "unknown"
	}
}

// Parser decodes the inbound byte stream one byte at a time.
// Unknown commands and stray data bytes are skipped.
type Parser struct {
	cmd   byte
	need  int
	data  []byte
	sysex bool
}

// Feed consumes one byte and returns a message when one completes.
func (p *Parser) Feed(b byte) (Message, bool) {
	if p.sysex {
		if b == cmdEndSysex {
			p.sysex = false
			return p.decodeSysex()
		}
		if len(p.data) < maxSysexLen {
			p.data = append(p.data, b)
		}
		return Message{}, false
	}

	if b&0x80 != 0 {
		p.data = p.data[:0]
		p.cmd = b
		p.need = 0

		switch {
		case b == cmdStartSysex:
			p.sysex = true
		case b == cmdReportVersion:
			p.need = 2
		case b&0xF0 == cmdDigitalMessage, b&0xF0 == cmdAnalogMessage:
			p.need = 2
		default:
			p.cmd = 0
		}
		return Message{}, false
	}

	if p.cmd == 0 || p.need == 0 {
		return Message{}, false
	}

	p.data = append(p.data, b)
	if len(p.data) < p.need {
		return Message{}, false
	}

	cmd := p.cmd
	data := p.data
	p.cmd = 0
	p.need = 0

	switch {
	case cmd == cmdReportVersion:
		return Message{Kind: MessageVersion, Major: data[0], Minor: data[1]}, true
	case cmd&0xF0 == cmdDigitalMessage:
		return Message{Kind: MessageDigital, Port: cmd & 0x0F, Value: int(data[0]) | int(data[1])<<7}, true
	case cmd&0xF0 == cmdAnalogMessage:
		return Message{Kind: MessageAnalog, Port: cmd & 0x0F, Value: int(data[0]) | int(data[1])<<7}, true
	}
	return Message{}, false
}

func (p *Parser) decodeSysex() (Message, bool) {
	data := p.data
	p.data = p.data[:0]

	if len(data) < 3 || data[0] != sysexReportFirmware {
		return Message{}, false
	}

	// Name characters are sent as 7-bit LSB/MSB pairs.
	name := make([]byte, 0, (len(data)-3)/2)
	for i := 3; i+1 < len(data); i += 2 {
		name = append(name, data[i]|data[i+1]<<7)
	}

	return Message{Kind: MessageFirmware, Major: data[1], Minor: data[2], Firmware: string(name)}, true
}
