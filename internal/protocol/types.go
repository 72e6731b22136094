package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// Greeting is the payload carried by every successful response.
const Greeting = "Python Engine says: Hello from the backend!"

// Status represents the outcome reported by a response line
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	StatusReady Status = "ready"
)

// Request is a single decoded input line.
type Request struct {
	// Command is the value of the "command" key, nil when absent or null.
	Command any `json:"command,omitempty" jsonschema_description:"Command to echo back. Any JSON value is accepted."`

	// Fields holds every key of the decoded object, including command.
	Fields map[string]any `json:"-"`
}

// Response is a single output line. Only the keys belonging to the
// shape of Status are written.
type Response struct {
	Status    Status  `json:"status" jsonschema:"enum=ok,enum=error,enum=ready" jsonschema_description:"Outcome of the request"`
	Command   any     `json:"command,omitempty" jsonschema_description:"Echo of the request command, null when absent. Success only."`
	Timestamp float64 `json:"timestamp,omitempty" jsonschema_description:"Seconds since the Unix epoch. Success only."`
	Data      string  `json:"data,omitempty" jsonschema_description:"Fixed greeting. Success only."`
	Error     string  `json:"error,omitempty" jsonschema_description:"Why the line could not be decoded. Failure only."`
}

// OK builds the success response for command at ts.
func OK(command any, ts time.Time) Response {
	return Response{
		Status:    StatusOK,
		Command:   command,
		Timestamp: Seconds(ts),
		Data:      Greeting,
	}
}

// Failure builds the error response describing err.
func Failure(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

// Ready builds the notice an engine writes before its first response.
func Ready() Response {
	return Response{Status: StatusReady}
}

// Seconds converts t to fractional seconds since the Unix epoch.
func Seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Time converts fractional epoch seconds back to a time.Time.
func (r Response) Time() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// MarshalJSON writes the keys of the shape selected by Status. A
// success response always carries command, even when it is null.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusOK:
		return marshal(struct {
			Status    Status  `json:"status"`
			Command   any     `json:"command"`
			Timestamp float64 `json:"timestamp"`
			Data      string  `json:"data"`
		}{r.Status, r.Command, r.Timestamp, r.Data})
	case StatusError:
		return marshal(struct {
			Status Status `json:"status"`
			Error  string `json:"error"`
		}{r.Status, r.Error})
	default:
		return marshal(struct {
			Status Status `json:"status"`
		}{r.Status})
	}
}

// marshal encodes v without HTML escaping and without the trailing newline
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
