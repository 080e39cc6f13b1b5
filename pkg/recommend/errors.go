package recommend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to test for them.
var (
	ErrConfiguration        = errors.New("recommend: configuration error")
	ErrTokenStoreCorrupt    = errors.New("recommend: token store corrupt")
	ErrInvalidTokenData     = errors.New("recommend: invalid token data")
	ErrTokenNotFound        = errors.New("recommend: token not found")
	ErrAuthentication       = errors.New("recommend: authentication failed")
	ErrUnauthorized         = errors.New("recommend: unauthorized")
	ErrNotFound             = errors.New("recommend: not found")
	ErrBatchErrorList       = errors.New("recommend: batch error list")
	ErrAPI                  = errors.New("recommend: api error")
	ErrUnsupportedOperation = errors.New("recommend: unsupported operation")
	ErrInvalidArgument      = errors.New("recommend: invalid argument")
)

// APIError is returned for every classified failure of a remote call and for
// authentication failures. It matches its Kind and ErrAPI with errors.Is.
type APIError struct {
	Kind       error
	StatusCode int
	ErrorCode  string
	Message    string
	Body       []byte
	Cause      error
}

func (e *APIError) Error() string {
	kind := ErrAPI
	if e.Kind != nil {
		kind = e.Kind
	}

	code := e.ErrorCode
	if code == "" && e.StatusCode != 0 {
		code = fmt.Sprintf("%d", e.StatusCode)
	}

	msg := kind.Error()
	if code != "" {
		msg += " " + code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	if target == ErrAPI {
		return true
	}
	return e.Kind != nil && target == e.Kind
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// newAPIError builds an APIError and fills ErrorCode and Message from the
// response body when it carries them.
func newAPIError(kind error, status int, body []byte, envelope map[string]any) *APIError {
	e := &APIError{Kind: kind, StatusCode: status, Body: body}
	if envelope == nil {
		return e
	}
	if msg, ok := envelope["error_message"]; ok && truthy(msg) {
		e.Message = stringify(msg)
	}
	if code, ok := envelope["error_code"]; ok && truthy(code) {
		e.ErrorCode = stringify(code)
	}
	return e
}

// authError reports a failed key or refresh exchange.
func authError(format string, args ...any) *APIError {
	return &APIError{Kind: ErrAuthentication, Message: fmt.Sprintf(format, args...)}
}

// BatchError is one failed item of a batch call.
type BatchError struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
	Code       string `json:"code"`
}

// BatchErrorListError is returned when a batch call succeeded at the
// transport level but some items failed.
type BatchErrorListError struct {
	*APIError
	items []BatchError
}

func (e *BatchErrorListError) Unwrap() error {
	return e.APIError
}

// Errors returns the failed items.
func (e *BatchErrorListError) Errors() []BatchError {
	out := make([]BatchError, len(e.items))
	copy(out, e.items)
	return out
}

func newBatchErrorListError(status int, body []byte, envelope map[string]any) *BatchErrorListError {
	base := newAPIError(ErrBatchErrorList, status, body, envelope)
	return &BatchErrorListError{APIError: base, items: parseBatchErrors(envelope["batch_error_list"])}
}

func parseBatchErrors(raw any) []BatchError {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	items := make([]BatchError, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, BatchError{
			Type:       stringify(m["type"]),
			Identifier: stringify(m["identifier"]),
			Message:    stringify(m["message"]),
			Code:       stringify(m["code"]),
		})
	}
	return items
}

// truthy applies JSON truthiness: null, false, 0, "", [] and {} are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%v", t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
