package common

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"data-exporter/internal/source"
)

const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
)

// ValidateFormat checks a configured payload format.
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON, FormatNDJSON, "jsonl", FormatCSV:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DecodeRecords turns a payload into records. recordsPath is a dot separated
// path to the list of records inside a JSON document; when empty, a "data"
// envelope is unwrapped if present.
func DecodeRecords(data []byte, format, recordsPath string) ([]source.Record, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return decodeJSON(data, recordsPath)
	case FormatNDJSON, "jsonl":
		return decodeNDJSON(data)
	case FormatCSV:
		return decodeCSV(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func decodeJSON(data []byte, recordsPath string) ([]source.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	if recordsPath != "" {
		for _, key := range strings.Split(recordsPath, ".") {
			obj, ok := doc.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not an object at %q", ErrUnexpectedPayload, recordsPath, key)
			}
			if doc, ok = obj[key]; !ok {
				return nil, fmt.Errorf("%w: key %q not found", ErrUnexpectedPayload, key)
			}
		}
	} else if obj, ok := doc.(map[string]any); ok {
		if inner, ok := obj["data"]; ok {
			doc = inner
		}
	}

	return toRecords(doc)
}

func toRecords(doc any) ([]source.Record, error) {
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []source.Record{v}, nil
	case []any:
		records := make([]source.Record, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T, not an object", ErrUnexpectedPayload, i, item)
			}
			records = append(records, obj)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedPayload, doc)
	}
}

func decodeNDJSON(data []byte) ([]source.Record, error) {
	var records []source.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		records = append(records, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ndjson: %w", err)
	}
	return records, nil
}

func decodeCSV(data []byte) ([]source.Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []source.Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		rec := make(source.Record, len(header))
		for i, name := range header {
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
	return records, nil
}
