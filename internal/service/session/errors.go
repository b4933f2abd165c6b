package session

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/nkiryanov/eazynet/internal/apperrors"
)

// Longest plain text body used as an error message as is
const maxTextMessage = 200

// Non-2xx response from the identity backend
type APIError struct {
	StatusCode int
	Message    string

	// Field validation messages, if backend sent them
	Fields map[string][]string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// Build APIError from response, trying in order:
// JSON 'error', JSON 'message', JSON 'errors' map, short plain text, HTTP status
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	text := strings.TrimSpace(string(body))

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Fields = parseFields(payload.Errors)
		for _, candidate := range []json.RawMessage{payload.Error, payload.Message} {
			if msg := rawString(candidate); msg != "" {
				apiErr.Message = msg
				return apiErr
			}
		}
		if len(apiErr.Fields) > 0 {
			apiErr.Message = flattenFields(apiErr.Fields)
			return apiErr
		}
	} else if text != "" && len(text) <= maxTextMessage && !strings.HasPrefix(text, "<") {
		apiErr.Message = text
		return apiErr
	}

	apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	return apiErr
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Backend sends either {"field": ["msg", ...]} or {"field": "msg"}
func parseFields(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}

	var generic map[string]json.RawMessage
	if json.Unmarshal(raw, &generic) != nil {
		return nil
	}

	fields := make(map[string][]string, len(generic))
	for name, value := range generic {
		var many []string
		if json.Unmarshal(value, &many) == nil && len(many) > 0 {
			fields[name] = many
			continue
		}
		if one := rawString(value); one != "" {
			fields[name] = []string{one}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func flattenFields(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(fields[name], ", "))
	}
	return strings.Join(parts, "; ")
}
