// Package sensor reports the device's readable fields on request and pushes
// momentary values to subscribers when they change.
package sensor

import (
	"strings"
	"time"
)

// FieldType is a bit set of field categories.
type FieldType uint16

const (
	FieldIdentity FieldType = 1 << iota
	FieldMomentary
	FieldStatus
	FieldComputed
	FieldPeak
	FieldHistorical

	// FieldAll is what an empty request asks for.
	FieldAll = FieldIdentity | FieldMomentary | FieldStatus
)

// Includes reports whether any bit of t is set in s.
func (s FieldType) Includes(t FieldType) bool {
	return s&t != 0
}

func (s FieldType) String() string {
	names := []struct {
		t    FieldType
		name string
	}{
		{FieldIdentity, "identity"},
		{FieldMomentary, "momentary"},
		{FieldStatus, "status"},
		{FieldComputed, "computed"},
		{FieldPeak, "peak"},
		{FieldHistorical, "historical"},
	}
	var parts []string
	for _, n := range names {
		if s.Includes(n.t) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// FieldQoS is the quality of service of a reported value.
type FieldQoS uint16

const (
	QoSAutomaticReadout FieldQoS = 1 << iota
	QoSManualReadout
)

// Field names.
const (
	FieldNameDeviceID = "Device ID"
	FieldNameOutput   = "Output"
)

// Field is one reported value.
type Field struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	QoS       FieldQoS  `json:"qos"`
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
	Writable  bool      `json:"writable,omitempty"`
}

// OutputField builds the momentary output field.
func OutputField(on bool, writable bool, ts time.Time) Field {
	return Field{
		Name:      FieldNameOutput,
		Type:      FieldMomentary,
		QoS:       QoSAutomaticReadout,
		Timestamp: ts,
		Value:     on,
		Writable:  writable,
	}
}

// ReadoutRequest asks for the fields of the given types.
type ReadoutRequest struct {
	Types FieldType `json:"types"`
	Actor string    `json:"actor,omitempty"`
}

// ReadoutReply carries the reported fields.
type ReadoutReply struct {
	Fields []Field `json:"fields"`
	Error  string  `json:"error,omitempty"`
}

// Subjects under a device root.
func ReadoutSubject(root string) string { return root + ".sensor.readout" }
func EventsSubject(root string) string  { return root + ".sensor.events" }
