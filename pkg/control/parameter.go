package control

import (
	"context"
	"encoding/json"
)

// Parameter types.
const (
	TypeBoolean = "boolean"
)

// Descriptor is the static metadata of a parameter.
type Descriptor struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Writable    bool            `json:"writable"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Parameter is a named, typed value exposed for remote get and set.
type Parameter interface {
	Descriptor() Descriptor
	// Get returns the cached value without touching hardware. known is
	// false when no value has been established yet.
	Get() (value any, known bool)
	// Set applies value on behalf of actor. Fails with ErrInvalidValue or
	// ErrNotPermitted.
	Set(ctx context.Context, value any, actor string) error
}

var booleanSchema = json.RawMessage(`{"type":"boolean"}`)

// BooleanParameter binds a boolean getter and setter to a descriptor. The
// descriptor never changes after construction.
type BooleanParameter struct {
	desc Descriptor
	get  func() (bool, bool)
	set  func(ctx context.Context, value bool, actor string) error
}

// NewBooleanParameter creates a boolean parameter. A nil set makes it
// read-only.
func NewBooleanParameter(name, category, label, description string,
	get func() (bool, bool),
	set func(ctx context.Context, value bool, actor string) error,
) *BooleanParameter {
	return &BooleanParameter{
		desc: Descriptor{
			Name:        name,
			Category:    category,
			Label:       label,
			Description: description,
			Type:        TypeBoolean,
			Writable:    set != nil,
			Schema:      booleanSchema,
		},
		get: get,
		set: set,
	}
}

func (p *BooleanParameter) Descriptor() Descriptor { return p.desc }

func (p *BooleanParameter) Get() (any, bool) {
	v, ok := p.get()
	if !ok {
		return nil, false
	}
	return v, true
}

func (p *BooleanParameter) Set(ctx context.Context, value any, actor string) error {
	if p.set == nil {
		return ErrNotPermitted
	}
	v, ok := value.(bool)
	if !ok {
		return ErrInvalidValue
	}
	return p.set(ctx, v, actor)
}
