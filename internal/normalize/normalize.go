// Package normalize irons out the request shape differences between client
// types: JSON vs URL-encoded bodies, camelCase vs lower-case field names, and
// inconsistent header casing.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
)

// Values is a request body with lower-cased keys at every level.
type Values map[string]any

// Body decodes raw according to contentType. JSON is detected by media type
// or by a leading '{'; everything else is parsed as URL-encoded form data.
func Body(contentType string, raw []byte) (Values, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Values{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	isJSON := mediaType == "application/json" ||
		(mediaType != "application/x-www-form-urlencoded" && trimmed[0] == '{')
	if isJSON {
		var decoded map[string]any
		if err := json.Unmarshal(trimmed, &decoded); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		return lowerKeys(decoded), nil
	}

	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("decode form body: %w", err)
	}
	out := make(Values, len(form))
	for k, vs := range form {
		if len(vs) == 0 {
			continue
		}
		out[strings.ToLower(k)] = vs[0]
	}
	return out, nil
}

// Headers returns a copy of h keyed by lower-cased header name. When a name
// appears with several casings the last one visited wins.
func Headers(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

// String returns the value at key rendered as a string. Numbers and booleans
// are formatted; objects, arrays and null yield "".
func (v Values) String(key string) string {
	switch val := v[strings.ToLower(key)].(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// Object returns the nested object at key, or nil.
func (v Values) Object(key string) Values {
	if obj, ok := v[strings.ToLower(key)].(Values); ok {
		return obj
	}
	return nil
}

// Has reports whether key is present with a non-empty string value.
func (v Values) Has(key string) bool {
	return v.String(key) != ""
}

// DeviceType resolves the client's device-type code. The browser extension
// sends it in the body; web and mobile clients send a device-type header,
// sometimes lower-cased and as a string. A numeric header wins.
func DeviceType(body Values, headers map[string]string) (int, bool) {
	if raw, ok := headers["device-type"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return n, true
		}
	}
	if raw := strings.TrimSpace(body.String("devicetype")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n, true
		}
	}
	return 0, false
}

func lowerKeys(in map[string]any) Values {
	out := make(Values, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = lowerValue(v)
	}
	return out
}

func lowerValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return lowerKeys(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = lowerValue(item)
		}
		return items
	default:
		return v
	}
}
