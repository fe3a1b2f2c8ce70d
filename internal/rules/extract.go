package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// extractFields renders the seven addressable text fields of an exchange.
func extractFields(req Request, res Response) map[string]string {
	return map[string]string{
		LocRequestURL:      req.URL,
		LocRequestHeaders:  jsonText(req.Headers),
		LocRequestCookies:  jsonText(req.Cookies),
		LocRequestQuery:    jsonText(req.Query),
		LocRequestBody:     requestBodyText(req),
		LocResponseHeaders: jsonText(res.Headers),
		LocResponseBody:    res.Body,
	}
}

func requestBodyText(req Request) string {
	if req.JSON != nil {
		return jsonText(req.JSON)
	}
	switch v := req.Data.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return jsonText(v)
	}
}

// jsonText serializes without HTML escaping so markup in payloads stays
// matchable. Separators are ", " and ": " so packs written against the
// conventional spaced form keep matching.
func jsonText(value any) string {
	switch v := value.(type) {
	case nil:
		return "{}"
	case map[string]string:
		if len(v) == 0 {
			return "{}"
		}
	case map[string]any:
		if len(v) == 0 {
			return "{}"
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return fmt.Sprint(value)
	}
	return spaceSeparators(strings.TrimSuffix(buf.String(), "\n"))
}

// spaceSeparators adds a space after every ',' and ':' outside string literals
// of compact JSON.
func spaceSeparators(compact string) string {
	var b strings.Builder
	b.Grow(len(compact) + len(compact)/8)
	inString, escaped := false, false
	for i := 0; i < len(compact); i++ {
		c := compact[i]
		b.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == ':'):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func requestBody(req Request) any {
	if req.JSON != nil {
		return req.JSON
	}
	return req.Data
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func contentType(res Response) string {
	return strings.ToLower(strings.TrimSpace(headerValue(res.Headers, "Content-Type")))
}

func queryValues(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
