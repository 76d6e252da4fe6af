package transport

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"devtools-bridge/internal/domain"
)

const (
	websocketGUID         = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	websocketVersion      = "13"
	maxHandshakeHeaderLen = 8192
)

var headerTerminator = []byte("\r\n\r\n")

func newKey() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b[:]), nil
}

// acceptKey computes the Sec-WebSocket-Accept value the server must echo.
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func buildRequest(u *url.URL, key string, extra http.Header) *http.Request {
	req := &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", key)
	req.Header.Set("Sec-WebSocket-Version", websocketVersion)
	return req
}

func writeRequest(req *http.Request) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GET %s HTTP/1.1\r\n", req.URL.RequestURI())
	fmt.Fprintf(&buf, "Host: %s\r\n", req.Host)
	_ = req.Header.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// readResponseHeader reads from br one byte at a time until the blank line
// that ends the HTTP header block. Bytes after the terminator stay in br for
// the frame reader.
func readResponseHeader(br *bufio.Reader) ([]byte, error) {
	head := make([]byte, 0, 512)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read handshake response: %w", err)
		}
		head = append(head, b)
		if bytes.HasSuffix(head, headerTerminator) {
			return head, nil
		}
		if len(head) >= maxHandshakeHeaderLen {
			return nil, fmt.Errorf("handshake response header exceeds %d bytes", maxHandshakeHeaderLen)
		}
	}
}

func checkResponse(head []byte, req *http.Request, key string) error {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(head)), req)
	if err != nil {
		return fmt.Errorf("parse handshake response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("unexpected status %q", resp.Status)
	}
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return fmt.Errorf("missing Upgrade: websocket")
	}
	if !headerContainsToken(resp.Header, "Connection", "upgrade") {
		return fmt.Errorf("missing Connection: Upgrade")
	}
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != acceptKey(key) {
		return fmt.Errorf("bad Sec-WebSocket-Accept %q", got)
	}
	return nil
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}

func handshakeErr(detail string, err error) error {
	if err != nil {
		detail = detail + ": " + err.Error()
	}
	return domain.NewDomainError("transport.Handshake", domain.ErrHandshake, detail)
}
