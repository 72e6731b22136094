package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrEmptyLine is returned for a line holding nothing but whitespace.
	ErrEmptyLine = errors.New("empty line: expecting a JSON object")

	// ErrNotObject is returned when a line is valid JSON but not an object.
	ErrNotObject = errors.New("request must be a JSON object")

	// ErrTrailingData is returned when a line holds more than one JSON value.
	ErrTrailingData = errors.New("unexpected data after JSON object")

	// ErrMissingStatus is returned when a response line has no status.
	ErrMissingStatus = errors.New("response has no status")
)

// Decode parses one input line into a Request. The line terminator is
// optional. Numbers are kept as json.Number so an echoed command is
// written back exactly as it was received.
func Decode(line []byte) (Request, error) {
	line = trimLine(line)
	if len(bytes.TrimSpace(line)) == 0 {
		return Request{}, ErrEmptyLine
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Request{}, fmt.Errorf("%w, got %s", ErrNotObject, typeErr.Value)
		}
		return Request{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Request{}, fmt.Errorf("%w at offset %d", ErrTrailingData, dec.InputOffset())
	}

	// "null" decodes into a nil map without error.
	if fields == nil {
		return Request{}, fmt.Errorf("%w, got null", ErrNotObject)
	}

	return Request{
		Command: fields["command"],
		Fields:  fields,
	}, nil
}

// Encode writes r to w as one compact JSON line.
func Encode(w io.Writer, r Response) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// EncodeRequest renders a request as one compact JSON line including
// the trailing newline.
func EncodeRequest(r Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseResponse parses one output line written by an engine.
func ParseResponse(line []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(trimLine(line), &resp); err != nil {
		return Response{}, fmt.Errorf("invalid response line: %w", err)
	}
	if resp.Status == "" {
		return Response{}, ErrMissingStatus
	}
	return resp, nil
}

func trimLine(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
