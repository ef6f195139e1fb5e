package firmata

import (
	"bytes"
	"testing"
)

func feedAll(p *Parser, data []byte) []Message {
	var out []Message
	for _, b := range data {
		if msg, ok := p.Feed(b); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"pin mode output", SetPinMode(13, PinModeOutput), []byte{0xF4, 13, 0x01}},
		{"pin mode input", SetPinMode(1, PinModeInput), []byte{0xF4, 1, 0x00}},
		{"digital high", SetDigitalPinValue(1, true), []byte{0xF5, 1, 1}},
		{"digital low", SetDigitalPinValue(1, false), []byte{0xF5, 1, 0}},
		{"report version", ReportVersion(), []byte{0xF9}},
		{"report analog", ReportAnalog(0, true), []byte{0xC0, 1}},
		{"report digital", ReportDigital(1, false), []byte{0xD1, 0}},
	}

	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Errorf("%s: got % x, want % x", tt.name, tt.got, tt.want)
		}
	}
}

func TestParser_Version(t *testing.T) {
	var p Parser
	msgs := feedAll(&p, []byte{0xF9, 2, 5})
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Kind != MessageVersion || msgs[0].Major != 2 || msgs[0].Minor != 5 {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestParser_DigitalAndAnalog(t *testing.T) {
	var p Parser
	msgs := feedAll(&p, []byte{
		0x90, 0x01, 0x01, // port 0: pins 0 and 7 high
		0xE0, 0x7F, 0x07, // channel 0: 1023
	})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != MessageDigital || msgs[0].Port != 0 || msgs[0].Value != 0x81 {
		t.Errorf("unexpected digital message: %+v", msgs[0])
	}
	if msgs[1].Kind != MessageAnalog || msgs[1].Value != 1023 {
		t.Errorf("unexpected analog message: %+v", msgs[1])
	}
}

func TestParser_Firmware(t *testing.T) {
	name := "Std"
	data := []byte{0xF0, 0x79, 2, 5}
	for _, c := range []byte(name) {
		data = append(data, c&0x7F, c>>7)
	}
	data = append(data, 0xF7)

	var p Parser
	msgs := feedAll(&p, data)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Kind != MessageFirmware || msgs[0].Firmware != name {
		t.Errorf("unexpected firmware message: %+v", msgs[0])
	}
}

func TestParser_SkipsGarbage(t *testing.T) {
	var p Parser
	msgs := feedAll(&p, []byte{
		0x05, 0x06, // stray data
		0xF4, 0x01, // unknown inbound command
		0xF9, 0x02, // truncated by a new command
		0xF9, 2, 6,
	})
	if len(msgs) != 1 || msgs[0].Minor != 6 {
		t.Errorf("expected only the complete version message, got %+v", msgs)
	}
}
