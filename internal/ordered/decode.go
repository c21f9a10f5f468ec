package ordered

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeValue reads one complete JSON value from dec, materializing objects as
// *Map so that key order survives decoding.
//
// The decoder must use token mode; Decode/More state is respected, so
// DecodeValue can be interleaved with manual token handling (e.g. while
// streaming the elements of an enclosing array).
//
// Errors:
//   - io.EOF if the stream ends before a value starts.
//   - A wrapped syntax error for malformed input.
func DecodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return materialize(dec, tok)
}

// DecodeMap reads one complete JSON value and requires it to be an object.
func DecodeMap(dec *json.Decoder) (*Map, error) {
	v, err := DecodeValue(dec)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, fmt.Errorf("ordered: expected object, got %T", v)
	}
	return m, nil
}

// DecodeFromToken materializes the JSON value whose first token has already
// been consumed from dec. It lets callers peek a value's opening token (to
// decide whether to stream it) and still fall back to full materialization.
func DecodeFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	return materialize(dec, tok)
}

// Decode parses a byte slice into an ordered value. Numbers decode as
// json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := DecodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Trailing garbage after the first value is an error for this entry point.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("ordered: trailing data after JSON value")
	}
	return v, nil
}

// materialize builds a Go value for the current JSON value, given the first
// token has already been read.
func materialize(dec *json.Decoder, tok any) (any, error) {
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("ordered: read object key: %w", err)
				}
				k, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("ordered: object key not a string (got %T)", kt)
				}
				vt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("ordered: read object value token: %w", err)
				}
				v, err := materialize(dec, vt)
				if err != nil {
					return nil, err
				}
				m.Set(k, v)
			}
			if err := expectDelim(dec, '}'); err != nil {
				return nil, err
			}
			return m, nil

		case '[':
			arr := []any{}
			for dec.More() {
				vt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("ordered: read array value token: %w", err)
				}
				v, err := materialize(dec, vt)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return nil, err
			}
			return arr, nil

		default:
			return nil, fmt.Errorf("ordered: unexpected delimiter %q", d)
		}
	}

	// scalar token
	return tok, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("ordered: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("ordered: expected %q, got %v", want, end)
	}
	return nil
}

// SkipValue consumes the next JSON value from dec without materializing it.
func SkipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("ordered: skip value token: %w", err)
	}
	return skipFromFirstToken(dec, tok)
}

func skipFromFirstToken(dec *json.Decoder, tok any) error {
	d, ok := tok.(json.Delim)
	if !ok {
		// scalar token; nothing else to consume
		return nil
	}

	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("ordered: skip object key: %w", err)
			}
			if err := SkipValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, '}')

	case '[':
		for dec.More() {
			if err := SkipValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')

	default:
		return fmt.Errorf("ordered: unexpected delimiter %q", d)
	}
}
