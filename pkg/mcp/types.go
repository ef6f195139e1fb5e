package mcp

import (
	"fmt"
	"sort"
	"time"

	"github.com/urmzd/actuator/pkg/control"
	"github.com/urmzd/actuator/pkg/sensor"
)

// --- Health Tool ---

// GetHealthOutput is the output for the get_health tool
type GetHealthOutput struct {
	Status    string `json:"status" jsonschema:"description=Overall health status (healthy or unhealthy)"`
	Broker    string `json:"broker" jsonschema:"description=Broker connection status"`
	DeviceID  string `json:"device_id" jsonschema:"description=Device being controlled"`
	Timestamp string `json:"timestamp" jsonschema:"description=ISO8601 timestamp"`
}

// --- List Parameters Tool ---

// ListParametersOutput is the output for the list_parameters tool
type ListParametersOutput struct {
	Parameters []control.Descriptor `json:"parameters" jsonschema:"description=Control parameters"`
	Count      int                  `json:"count" jsonschema:"description=Number of parameters"`
}

// --- Output Tools ---

// SetOutputInput is the input for the set_output tool
type SetOutputInput struct {
	Value bool `json:"value" jsonschema:"required,description=Output value"`
}

// OutputState is the output for the get_output and set_output tools
type OutputState struct {
	Value any    `json:"value" jsonschema:"description=Output value, null when not yet known"`
	Known bool   `json:"known" jsonschema:"description=Whether the device has established a value"`
	Time  string `json:"timestamp" jsonschema:"description=ISO8601 timestamp"`
}

// --- Read Sensor Tool ---

// ReadSensorInput is the input for the read_sensor tool
type ReadSensorInput struct {
	Types []string `json:"types,omitempty" jsonschema:"description=Field types to read"`
}

// ReadSensorOutput is the output for the read_sensor tool
type ReadSensorOutput struct {
	Fields []sensor.Field `json:"fields" jsonschema:"description=Reported fields"`
	Count  int            `json:"count" jsonschema:"description=Number of fields"`
}

var fieldTypes = map[string]sensor.FieldType{
	"identity":   sensor.FieldIdentity,
	"momentary":  sensor.FieldMomentary,
	"status":     sensor.FieldStatus,
	"computed":   sensor.FieldComputed,
	"peak":       sensor.FieldPeak,
	"historical": sensor.FieldHistorical,
}

func fieldTypeNames() []string {
	names := make([]string, 0, len(fieldTypes))
	for n := range fieldTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func parseFieldTypes(names []string) (sensor.FieldType, error) {
	var t sensor.FieldType
	for _, n := range names {
		ft, ok := fieldTypes[n]
		if !ok {
			return 0, fmt.Errorf("unknown field type %q", n)
		}
		t |= ft
	}
	return t, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
