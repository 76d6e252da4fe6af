package devtools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-json-experiment/json"

	"devtools-bridge/internal/adapter/wsframe"
	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/metrics"
)

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		f, err := c.conn.NextFrame()
		if err != nil {
			c.fail(err)
			return
		}
		if f.Opcode != wsframe.OpText {
			metrics.RecordMalformed()
			c.logger.Debug("skipping non-text frame", "opcode", f.Opcode.String(), "size", len(f.Payload))
			continue
		}
		c.dispatch(f.Payload)
	}
}

// fail records the terminal error and releases every waiting caller.
func (c *Client) fail(err error) {
	if !errors.Is(err, domain.ErrConnectionClosed) {
		err = fmt.Errorf("%w: %w", domain.ErrConnectionClosed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	for id, ch := range c.pending {
		ch <- reply{err: err}
		delete(c.pending, id)
	}
	c.logger.Debug("reader stopped", "error", err)
}

func (c *Client) dispatch(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg, lenient); err != nil {
		metrics.RecordMalformed()
		if id, ok := replyID(payload); ok {
			c.reject(id, err)
			return
		}
		c.logger.Warn("skipping malformed message", "error", err, "size", len(payload))
		return
	}

	switch {
	case strings.HasPrefix(msg.Method, "Network."):
		metrics.RecordNotification("Network")
		c.handleNetwork(msg)

	case strings.HasPrefix(msg.Method, "Page."):
		metrics.RecordNotification("Page")
		c.mu.Lock()
		c.page.Append(msg.Method, msg.Params, time.Now())
		c.mu.Unlock()

	case msg.ID != 0:
		c.resolve(msg)

	case msg.Method != "":
		metrics.RecordNotification(protocolDomain(msg.Method))
		c.logger.Debug("ignoring notification", "method", msg.Method)

	default:
		c.logger.Debug("ignoring unclassified message", "size", len(payload))
	}
}

func (c *Client) resolve(msg Message) {
	c.deliver(msg.ID, reply{result: msg.Result, remote: msg.Error})
}

// reject fails the caller waiting on id with a decode error so it does not
// sit out its timeout on a reply that did arrive.
func (c *Client) reject(id int64, err error) {
	c.logger.Warn("reply could not be decoded", "id", id, "error", err)
	c.deliver(id, reply{invalid: err})
}

func (c *Client) deliver(id int64, r reply) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		metrics.RecordLateReply()
		c.logger.Debug("discarding reply with no waiting caller", "id", id)
		return
	}
	// Buffered; never blocks the reader.
	ch <- r
}

// replyID extracts a non-zero top-level id from a payload whose full
// envelope failed to decode.
func replyID(payload []byte) (int64, bool) {
	var head struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(payload, &head, lenient); err != nil || head.ID == 0 {
		return 0, false
	}
	return head.ID, true
}

func (c *Client) handleNetwork(msg Message) {
	switch msg.Method {
	case "Network.requestWillBeSent":
		var ev requestWillBeSent
		if err := json.Unmarshal(msg.Params, &ev, lenient); err != nil {
			metrics.RecordMalformed()
			c.logger.Warn("skipping malformed network event", "method", msg.Method, "error", err)
			return
		}
		entry := domain.NetworkEntry{
			RequestID: ev.RequestID,
			Request: domain.NetworkRequest{
				URL:          ev.Request.URL,
				Method:       ev.Request.Method,
				Headers:      ev.Request.Headers,
				PostData:     ev.Request.PostData,
				ResourceType: ev.Type,
				DocumentURL:  ev.DocumentURL,
			},
			Started: time.Now(),
		}
		c.mu.Lock()
		c.network.Append(entry)
		c.mu.Unlock()

	case "Network.responseReceived":
		var ev responseReceived
		if err := json.Unmarshal(msg.Params, &ev, lenient); err != nil {
			metrics.RecordMalformed()
			c.logger.Warn("skipping malformed network event", "method", msg.Method, "error", err)
			return
		}
		resp := domain.NetworkResponse{
			URL:        ev.Response.URL,
			Status:     int(ev.Response.Status),
			StatusText: ev.Response.StatusText,
			Headers:    ev.Response.Headers,
			MimeType:   ev.Response.MimeType,
		}
		c.mu.Lock()
		merged := c.network.Merge(ev.RequestID, resp)
		c.mu.Unlock()
		if !merged {
			c.logger.Debug("dropping response for unknown request", "request_id", ev.RequestID)
		}

	default:
		c.logger.Debug("ignoring network event", "method", msg.Method)
	}
}
