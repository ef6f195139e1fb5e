package control

import "encoding/json"

// Subjects under a device root.
func ListSubject(root string) string { return root + ".control.list" }
func GetSubject(root string) string  { return root + ".control.get" }
func SetSubject(root string) string  { return root + ".control.set" }

// Request is the body of get and set requests.
type Request struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	Actor string `json:"actor,omitempty"`
}

// ErrorBody is the error part of a Reply.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reply answers list, get and set requests.
type Reply struct {
	Parameters []Descriptor `json:"parameters,omitempty"`
	Name       string       `json:"name,omitempty"`
	Value      any          `json:"value"`
	Known      bool         `json:"known"`
	Error      *ErrorBody   `json:"error,omitempty"`
}

var getRequestSchema = json.RawMessage(`{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"actor": {"type": "string"}
	}
}`)

var setRequestSchema = json.RawMessage(`{
	"type": "object",
	"required": ["name", "value"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"value": {},
		"actor": {"type": "string"}
	}
}`)
