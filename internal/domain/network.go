package domain

import (
	"time"

	"github.com/go-json-experiment/json/jsontext"
)

// NetworkRequest is the request half of a captured network exchange.
type NetworkRequest struct {
	URL          string         `json:"url"`
	Method       string         `json:"method"`
	Headers      map[string]any `json:"headers,omitempty"`
	PostData     string         `json:"post_data,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	DocumentURL  string         `json:"document_url,omitempty"`
}

// NetworkResponse is merged into a NetworkEntry once the peer reports it.
type NetworkResponse struct {
	URL        string         `json:"url"`
	Status     int            `json:"status"`
	StatusText string         `json:"status_text,omitempty"`
	Headers    map[string]any `json:"headers,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
}

// NetworkEntry is one in-flight or completed request keyed by the peer's
// request id. Response is nil until a matching response arrives.
type NetworkEntry struct {
	RequestID string           `json:"request_id"`
	Request   NetworkRequest   `json:"request"`
	Response  *NetworkResponse `json:"response,omitempty"`
	Started   time.Time        `json:"started"`
}

// Clone returns a copy that shares no mutable state with e.
func (e NetworkEntry) Clone() NetworkEntry {
	c := e
	c.Request.Headers = cloneHeaders(e.Request.Headers)
	if e.Response != nil {
		r := *e.Response
		r.Headers = cloneHeaders(e.Response.Headers)
		c.Response = &r
	}
	return c
}

func cloneHeaders(h map[string]any) map[string]any {
	if h == nil {
		return nil
	}
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// PageEvent is one Page.* notification in arrival order.
type PageEvent struct {
	Method   string         `json:"method"`
	Params   jsontext.Value `json:"params,omitempty"`
	Received time.Time      `json:"received"`
}
