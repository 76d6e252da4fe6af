package devtools

import (
	"strings"

	"github.com/go-json-experiment/json/jsontext"
)

// Message is the wire envelope in both directions. Outbound commands carry
// ID, Method and Params; replies carry ID and Result or Error;
// notifications carry Method and Params.
type Message struct {
	ID     int64          `json:"id,omitzero"`
	Method string         `json:"method,omitzero"`
	Params jsontext.Value `json:"params,omitzero"`
	Result jsontext.Value `json:"result,omitzero"`
	Error  *Error         `json:"error,omitzero"`
}

// Error is the error object of a failed command reply.
type Error struct {
	Code    int64          `json:"code"`
	Message string         `json:"message"`
	Data    jsontext.Value `json:"data,omitzero"`
}

// lenient accepts strings with invalid UTF-8 or unpaired surrogate escapes,
// which a page emits for JS strings cut inside a surrogate pair. Offending
// code points decode as U+FFFD.
var lenient = jsontext.AllowInvalidUTF8(true)

// protocolDomain returns the part of a method name before the first dot.
func protocolDomain(method string) string {
	if i := strings.IndexByte(method, '.'); i > 0 {
		return method[:i]
	}
	return method
}

// Network.* payloads. Only the fields kept in the log are decoded.

type requestWillBeSent struct {
	RequestID   string `json:"requestId"`
	DocumentURL string `json:"documentURL"`
	Type        string `json:"type"`
	Request     struct {
		URL      string         `json:"url"`
		Method   string         `json:"method"`
		Headers  map[string]any `json:"headers"`
		PostData string         `json:"postData"`
	} `json:"request"`
}

type responseReceived struct {
	RequestID string `json:"requestId"`
	Response  struct {
		URL        string         `json:"url"`
		Status     float64        `json:"status"`
		StatusText string         `json:"statusText"`
		Headers    map[string]any `json:"headers"`
		MimeType   string         `json:"mimeType"`
	} `json:"response"`
}
