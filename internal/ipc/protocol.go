package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/ravenwm/raven/internal/backend"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload            CommandType = "RELOAD"
	CommandGetStatus         CommandType = "GET_STATUS"
	CommandGetOutputs        CommandType = "GET_OUTPUTS"
	CommandRedraw            CommandType = "REDRAW"
	CommandReloadCursorTheme CommandType = "RELOAD_CURSOR_THEME"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	backend.Status
	UptimeSeconds int64    `json:"uptime_seconds"`
	ConfigFiles   []string `json:"config_files,omitempty"`
}

// OutputsData represents the data returned by GET_OUTPUTS
type OutputsData struct {
	Outputs []backend.OutputInfo `json:"outputs"`
}

// RedrawPayload selects the output to repaint. Empty means all outputs.
type RedrawPayload struct {
	Output string `json:"output,omitempty"`
}

// RedrawData lists the outputs a REDRAW queued.
type RedrawData struct {
	Outputs []string `json:"outputs"`
}

// ReloadData reports the result of a RELOAD.
type ReloadData struct {
	Files    []string `json:"files"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
