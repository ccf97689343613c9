// Package codec validates, encodes, and decodes KPI values against their
// declared value type. The type set is closed: every entry point switches
// over domain.ValType and reports a configuration error for anything else.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kpicore/pkg/domain"
)

const (
	dateLayout = "2006-01-02"
	// datetimeLayout is the zone-less ISO form accepted alongside RFC 3339.
	datetimeLayout = "2006-01-02T15:04:05"
)

var datetimeLayouts = []string{time.RFC3339, datetimeLayout, "2006-01-02 15:04:05"}

// Validate checks a raw client value against the declared type. Multiple
// values arrive as a JSON array; each element is validated with its index in
// the reported error.
func Validate(t domain.ValType, multiple bool, raw string) error {
	if multiple {
		elems, err := splitElements(raw)
		if err != nil {
			return err
		}
		for i, elem := range elems {
			if err := validateScalar(t, elem); err != nil {
				return domain.ValidationError{Field: fmt.Sprintf("element %d", i), Message: err.Error()}
			}
		}
		return nil
	}
	return validateScalar(t, raw)
}

// Encode converts a validated raw value to its canonical storage form. For
// multiple values the storage form is a single JSON array whose parse
// round-trips through Decode.
func Encode(t domain.ValType, multiple bool, raw string) (string, error) {
	if multiple {
		elems, err := splitElements(raw)
		if err != nil {
			return "", err
		}
		out := make([]any, len(elems))
		for i, elem := range elems {
			typed, err := decodeScalar(t, canonicalScalar(t, elem))
			if err != nil {
				return "", domain.ValidationError{Field: fmt.Sprintf("element %d", i), Message: err.Error()}
			}
			out[i] = storageElement(t, typed)
		}
		encoded, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
	if err := validateScalar(t, raw); err != nil {
		return "", err
	}
	return canonicalScalar(t, raw), nil
}

// Decode converts a canonical storage form back to a typed value: a scalar
// for single-valued KPIs, a []any of typed elements otherwise.
func Decode(t domain.ValType, multiple bool, stored string) (any, error) {
	if multiple {
		dec := json.NewDecoder(strings.NewReader(stored))
		dec.UseNumber()
		var elems []any
		if err := dec.Decode(&elems); err != nil {
			return nil, domain.ValidationError{Message: fmt.Sprintf("stored value is not a sequence: %v", err)}
		}
		out := make([]any, len(elems))
		for i, elem := range elems {
			typed, err := decodeElement(t, elem)
			if err != nil {
				return nil, domain.ValidationError{Field: fmt.Sprintf("element %d", i), Message: err.Error()}
			}
			out[i] = typed
		}
		return out, nil
	}
	return decodeScalar(t, stored)
}

func validateScalar(t domain.ValType, raw string) error {
	switch t {
	case domain.ValTypeInt:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return domain.ValidationError{Message: fmt.Sprintf("%q is not an integer", raw)}
		}
	case domain.ValTypeFloat:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return domain.ValidationError{Message: fmt.Sprintf("%q is not a number", raw)}
		}
	case domain.ValTypeStr:
		return nil
	case domain.ValTypeBool:
		if raw != "True" && raw != "False" {
			return domain.ValidationError{Message: fmt.Sprintf("%q is not a boolean; expected True or False", raw)}
		}
	case domain.ValTypeDate:
		if _, err := time.Parse(dateLayout, raw); err != nil {
			return domain.ValidationError{Message: fmt.Sprintf("%q is not a date in YYYY-MM-DD form", raw)}
		}
	case domain.ValTypeDatetime:
		if _, ok := parseDatetime(raw); !ok {
			return domain.ValidationError{Message: fmt.Sprintf("%q is not an ISO-8601 datetime", raw)}
		}
	default:
		return domain.ConfigurationError{Message: fmt.Sprintf("unknown value type %q", t)}
	}
	return nil
}

// canonicalScalar renders a validated raw scalar in its storage form.
// Callers must validate first.
func canonicalScalar(t domain.ValType, raw string) string {
	switch t {
	case domain.ValTypeInt:
		n, _ := strconv.ParseInt(raw, 10, 64)
		return strconv.FormatInt(n, 10)
	case domain.ValTypeFloat:
		f, _ := strconv.ParseFloat(raw, 64)
		return strconv.FormatFloat(f, 'g', -1, 64)
	case domain.ValTypeDate:
		ts, _ := time.Parse(dateLayout, raw)
		return ts.Format(dateLayout)
	case domain.ValTypeDatetime:
		if ts, ok := parseDatetime(raw); ok {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	return raw
}

func decodeScalar(t domain.ValType, stored string) (any, error) {
	switch t {
	case domain.ValTypeInt:
		n, err := strconv.ParseInt(stored, 10, 64)
		if err != nil {
			return nil, domain.ValidationError{Message: fmt.Sprintf("%q is not an integer", stored)}
		}
		return n, nil
	case domain.ValTypeFloat:
		f, err := strconv.ParseFloat(stored, 64)
		if err != nil {
			return nil, domain.ValidationError{Message: fmt.Sprintf("%q is not a number", stored)}
		}
		return f, nil
	case domain.ValTypeStr:
		return stored, nil
	case domain.ValTypeBool:
		switch stored {
		case "True":
			return true, nil
		case "False":
			return false, nil
		}
		return nil, domain.ValidationError{Message: fmt.Sprintf("%q is not a boolean; expected True or False", stored)}
	case domain.ValTypeDate:
		ts, err := time.Parse(dateLayout, stored)
		if err != nil {
			return nil, domain.ValidationError{Message: fmt.Sprintf("%q is not a date in YYYY-MM-DD form", stored)}
		}
		return ts, nil
	case domain.ValTypeDatetime:
		ts, ok := parseDatetime(stored)
		if !ok {
			return nil, domain.ValidationError{Message: fmt.Sprintf("%q is not an ISO-8601 datetime", stored)}
		}
		return ts, nil
	}
	return nil, domain.ConfigurationError{Message: fmt.Sprintf("unknown value type %q", t)}
}

// storageElement maps a typed scalar to the JSON form stored inside a
// multiple-value array.
func storageElement(t domain.ValType, typed any) any {
	switch t {
	case domain.ValTypeDate:
		return typed.(time.Time).Format(dateLayout)
	case domain.ValTypeDatetime:
		return typed.(time.Time).UTC().Format(time.RFC3339)
	case domain.ValTypeBool:
		return typed.(bool)
	}
	return typed
}

func decodeElement(t domain.ValType, elem any) (any, error) {
	switch v := elem.(type) {
	case json.Number:
		switch t {
		case domain.ValTypeInt:
			n, err := v.Int64()
			if err != nil {
				return nil, domain.ValidationError{Message: fmt.Sprintf("%v is not an integer", v)}
			}
			return n, nil
		case domain.ValTypeFloat:
			return v.Float64()
		}
		return nil, domain.ValidationError{Message: fmt.Sprintf("unexpected number for %s value", t)}
	case bool:
		if t != domain.ValTypeBool {
			return nil, domain.ValidationError{Message: fmt.Sprintf("unexpected boolean for %s value", t)}
		}
		return v, nil
	case string:
		switch t {
		case domain.ValTypeStr:
			return v, nil
		case domain.ValTypeDate, domain.ValTypeDatetime:
			return decodeScalar(t, v)
		}
		return nil, domain.ValidationError{Message: fmt.Sprintf("unexpected string for %s value", t)}
	}
	return nil, domain.ValidationError{Message: fmt.Sprintf("unsupported element %v", elem)}
}

// splitElements parses the JSON array a multiple-valued KPI receives and
// renders each element back to its raw scalar text.
func splitElements(raw string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, domain.ValidationError{Message: "value must be a JSON array for a multiple-valued definition"}
	}
	out := make([]string, len(elems))
	for i, elem := range elems {
		switch v := elem.(type) {
		case json.Number:
			out[i] = v.String()
		case string:
			out[i] = v
		case bool:
			if v {
				out[i] = "True"
			} else {
				out[i] = "False"
			}
		default:
			return nil, domain.ValidationError{Field: fmt.Sprintf("element %d", i), Message: "unsupported element"}
		}
	}
	return out, nil
}

func parseDatetime(raw string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
