// Package source opens and streams hierarchical record files. It hides input
// shape from the rest of the pipeline: plain or gzip-compressed files holding
// a root JSON array, an envelope object with a named record array, a single
// record object, or line-delimited JSON all come out as the same channel of
// ordered maps.
package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"flatsheet/internal/ordered"
)

// Options controls how a stream is interpreted.
type Options struct {
	// RootKey names the envelope field holding the record array. Empty means
	// auto-detect: "releases" then "records".
	RootKey string
	// LineDelimited forces one-JSON-value-per-line parsing and skips envelope
	// detection entirely.
	LineDelimited bool
}

// autoRootKeys are the envelope fields tried when Options.RootKey is empty.
var autoRootKeys = []string{"releases", "records"}

// Open opens path for reading, transparently decompressing gzip input
// (detected by magic number, not file extension). Close releases both the
// decompressor and the underlying file.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	br := bufio.NewReaderSize(f, 1<<16)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("source: sniff %s: %w", path, err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("source: gzip %s: %w", path, err)
		}
		return &readCloser{r: gz, closers: []io.Closer{gz, f}}, nil
	}
	return &readCloser{r: br, closers: []io.Closer{f}}, nil
}

type readCloser struct {
	r       io.Reader
	closers []io.Closer
}

func (rc *readCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }

func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StreamRecords parses records from r and sends them to out, preserving
// document key order. It does not close out. Non-object entries are reported
// through onErr (which may be nil) and skipped; a malformed token stream
// aborts with an error since no resync point exists in a single JSON document.
func StreamRecords(ctx context.Context, r io.Reader, opts Options, out chan<- *ordered.Map, onErr func(n int, err error)) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	n := 0
	emit := func(rec *ordered.Map) error {
		n++
		select {
		case out <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	report := func(err error) {
		if onErr != nil {
			onErr(n+1, err)
		}
	}

	if opts.LineDelimited {
		return streamValues(dec, emit, report)
	}

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("source: read first token: %w", err)
	}

	switch tok {
	case json.Delim('['):
		if err := streamArray(dec, emit, report); err != nil {
			return err
		}
		// Tolerate line-delimited records trailing the root array.
		return streamValues(dec, emit, report)

	case json.Delim('{'):
		single, streamed, err := streamEnvelope(dec, opts, emit, report)
		if err != nil {
			return err
		}
		if !streamed {
			if err := emit(single); err != nil {
				return err
			}
		}
		return streamValues(dec, emit, report)

	default:
		return fmt.Errorf("source: unsupported root token %v (want object or array)", tok)
	}
}

// streamArray emits the object elements of an array whose '[' has been
// consumed, then consumes the closing ']'.
func streamArray(dec *json.Decoder, emit func(*ordered.Map) error, report func(error)) error {
	for dec.More() {
		v, err := ordered.DecodeValue(dec)
		if err != nil {
			return fmt.Errorf("source: decode array element: %w", err)
		}
		rec, ok := v.(*ordered.Map)
		if !ok {
			report(fmt.Errorf("array element is %T, not an object", v))
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if end, err := dec.Token(); err != nil {
		return fmt.Errorf("source: read array end: %w", err)
	} else if end != json.Delim(']') {
		return fmt.Errorf("source: expected array end, got %v", end)
	}
	return nil
}

// streamEnvelope walks the fields of a root object whose '{' has been
// consumed. When the record-array field is found its elements are streamed and
// the rest of the object is skipped; otherwise the object is materialized and
// returned as a single record.
func streamEnvelope(dec *json.Decoder, opts Options, emit func(*ordered.Map) error, report func(error)) (single *ordered.Map, streamed bool, err error) {
	obj := ordered.NewMap()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, false, fmt.Errorf("source: read envelope key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, false, fmt.Errorf("source: envelope key is %T, not a string", kt)
		}

		if streamed {
			if err := ordered.SkipValue(dec); err != nil {
				return nil, false, err
			}
			continue
		}

		vt, err := dec.Token()
		if err != nil {
			return nil, false, fmt.Errorf("source: read envelope value: %w", err)
		}
		if vt == json.Delim('[') && isRootKey(key, opts) {
			if err := streamArray(dec, emit, report); err != nil {
				return nil, false, err
			}
			streamed = true
			continue
		}
		v, err := ordered.DecodeFromToken(dec, vt)
		if err != nil {
			return nil, false, fmt.Errorf("source: decode envelope field %s: %w", key, err)
		}
		obj.Set(key, v)
	}
	if end, err := dec.Token(); err != nil {
		return nil, false, fmt.Errorf("source: read envelope end: %w", err)
	} else if end != json.Delim('}') {
		return nil, false, fmt.Errorf("source: expected object end, got %v", end)
	}
	return obj, streamed, nil
}

// streamValues emits whitespace/newline separated JSON objects until EOF
// (line-delimited input, or records trailing a root value).
func streamValues(dec *json.Decoder, emit func(*ordered.Map) error, report func(error)) error {
	for {
		v, err := ordered.DecodeValue(dec)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("source: decode record: %w", err)
		}
		rec, ok := v.(*ordered.Map)
		if !ok {
			report(fmt.Errorf("record is %T, not an object", v))
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

func isRootKey(key string, opts Options) bool {
	if opts.RootKey != "" {
		return key == opts.RootKey
	}
	for _, k := range autoRootKeys {
		if key == k {
			return true
		}
	}
	return false
}
