package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tinytelemetry/loglens/internal/logparse"
	"github.com/tinytelemetry/loglens/internal/model"
)

var (
	// ErrMalformedLine is returned for lines that are not a single JSON object.
	ErrMalformedLine = errors.New("ingest: malformed line")

	// ErrBlankLine is returned for empty or whitespace-only lines.
	ErrBlankLine = errors.New("ingest: blank line")
)

// ParseRecord decodes one raw line into a LogRecord.
// Field types are not validated: values of an unexpected type are treated as
// absent (or stringified, for free-text fields) and never cause an error.
func ParseRecord(line string) (*model.LogRecord, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, ErrBlankLine
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if raw == nil {
		// JSON null decodes into a nil map without error.
		return nil, fmt.Errorf("%w: not an object", ErrMalformedLine)
	}
	if dec.InputOffset() != int64(len(trimmed)) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedLine)
	}

	record := &model.LogRecord{
		RawLine:         trimmed,
		LevelField:      stringField(raw, "level"),
		TypeField:       stringField(raw, "type"),
		MessageField:    textField(raw, "message"),
		PathField:       textField(raw, "path"),
		DurationField:   floatField(raw, "duration_ms"),
		StatusCodeField: intField(raw, "status_code"),
		OperationField:  textField(raw, "operation"),
		ModelField:      textField(raw, "model"),
		SuccessField:    truthField(raw, "success"),
		UserIDField:     identifierField(raw, "user_id"),
		TimestampField:  textField(raw, "timestamp"),
	}
	if lvl, ok := raw["level"]; ok {
		record.Severity = logparse.SeverityFromValue(numberToFloat(lvl))
	}
	return record, nil
}

// stringField returns the value only when it is a JSON string.
func stringField(raw map[string]interface{}, key string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// textField accepts any non-null scalar or structure and stringifies it.
func textField(raw map[string]interface{}, key string) *string {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	s := stringifyJSONValue(v)
	return &s
}

func floatField(raw map[string]interface{}, key string) *float64 {
	var f float64
	switch v := raw[key].(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intField(raw map[string]interface{}, key string) *int {
	f := floatField(raw, key)
	if f == nil {
		return nil
	}
	if *f > math.MaxInt32 || *f < math.MinInt32 {
		return nil
	}
	n := int(*f)
	return &n
}

// truthField follows the usual JSON truthiness: null, false, 0 and "" are false.
// An absent key yields nil so the caller's default applies.
func truthField(raw map[string]interface{}, key string) *bool {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	b := truthy(v)
	return &b
}

// identifierField stringifies opaque identifiers, treating falsy values as absent.
func identifierField(raw map[string]interface{}, key string) *string {
	v, ok := raw[key]
	if !ok || !truthy(v) {
		return nil
	}
	s := stringifyJSONValue(v)
	return &s
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}

func numberToFloat(v interface{}) interface{} {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err == nil {
			return strings.TrimSpace(buf.String())
		}
	}
	return ""
}
