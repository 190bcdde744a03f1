package transport

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// APIError is returned for HTTP failures and for envelopes whose code is
// not 200.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 && e.Code != e.StatusCode {
		return fmt.Sprintf("gateway error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether the error means the token was rejected.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == http.StatusUnauthorized
}

// checkResponse turns a failed response into an APIError.
func checkResponse(statusCode int, body []byte, checkEnvelope bool) error {
	var root gjson.Result
	if gjson.ValidBytes(body) {
		root = gjson.ParseBytes(body)
	}

	if statusCode >= 400 {
		return &APIError{
			StatusCode: statusCode,
			Code:       int(root.Get("code").Int()),
			Message:    errorMessage(root, http.StatusText(statusCode)),
			Body:       body,
		}
	}

	if !checkEnvelope || !root.IsObject() {
		return nil
	}
	code := root.Get("code")
	if code.Type != gjson.Number || code.Int() == http.StatusOK {
		return nil
	}
	return &APIError{
		StatusCode: statusCode,
		Code:       int(code.Int()),
		Message:    errorMessage(root, "request failed"),
		Body:       body,
	}
}

func errorMessage(root gjson.Result, fallback string) string {
	for _, path := range []string{"msg", "message", "detail", "error.message", "error"} {
		if v := root.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return fallback
}
