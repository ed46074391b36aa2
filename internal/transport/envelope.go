package transport

import (
	"encoding/json"
	"encoding/xml"
	"strings"

	"github.com/storagelite/storagelite/pkg/errors"
)

type xmlErrorEnvelope struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

type jsonErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorFromResponse builds a protocol error from a non-2xx response. The
// symbolic code comes from the x-ms-error-code header when present, otherwise
// from the XML (blob) or JSON (filesystem) error body.
func ErrorFromResponse(resp *Response) *errors.StorageError {
	code := resp.Header.Get("x-ms-error-code")
	var message string

	body := strings.TrimSpace(strings.TrimPrefix(string(resp.Body), "\ufeff"))
	switch {
	case strings.HasPrefix(body, "<"):
		var env xmlErrorEnvelope
		if err := xml.Unmarshal([]byte(body), &env); err == nil {
			if code == "" {
				code = env.Code
			}
			message = strings.TrimSpace(env.Message)
		}
	case strings.HasPrefix(body, "{"):
		var env jsonErrorEnvelope
		if err := json.Unmarshal([]byte(body), &env); err == nil {
			if code == "" {
				code = env.Error.Code
			}
			message = env.Error.Message
		}
	}

	if message == "" && body != "" && !strings.HasPrefix(body, "<") && !strings.HasPrefix(body, "{") {
		message = body
	}

	err := errors.NewProtocolError(resp.Status, code, message)
	if id := resp.Header.Get("x-ms-request-id"); id != "" {
		err.WithRequestID(id)
	}
	return err
}
