package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OAuth error codes an issuer may return.
const (
	ErrorInvalidRequest = "invalid_request"
	ErrorInvalidGrant   = "invalid_grant"
	ErrorInvalidToken   = "invalid_token"
)

// UpstreamError is a non-2xx issuer response. Body is kept verbatim.
type UpstreamError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	body := string(e.Body)
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	return fmt.Sprintf("unexpected http response code (%s): %d: %s", e.URL, e.StatusCode, body)
}

// Fields decodes the body as a JSON object; nil when it is not one.
func (e *UpstreamError) Fields() map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(e.Body, &fields); err != nil {
		return nil
	}
	return fields
}

// OAuthErrorCode returns the "error" member of the body, if any.
func (e *UpstreamError) OAuthErrorCode() string {
	code, _ := e.Fields()["error"].(string)
	return code
}

// AsUpstream finds an UpstreamError in err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
