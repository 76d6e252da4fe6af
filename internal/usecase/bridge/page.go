package bridge

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/tracer"
)

func decodeResult(method string, raw jsontext.Value, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v, lenient); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// emptyResult reports whether a command answered with no payload, which
// mutating commands use to signal success.
func emptyResult(raw jsontext.Value) bool {
	if len(raw) == 0 {
		return true
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m, lenient); err != nil {
		return false
	}
	return len(m) == 0
}

// Navigate enables page and network notifications, clears both logs and
// loads url. Element handles issued before the call become stale.
func (s *Session) Navigate(ctx context.Context, url string) (err error) {
	ctx, span := s.startSpan(ctx, "Navigate", tracer.StringAttr("url", url))
	defer func() { tracer.Finish(span, err) }()

	if url == "" {
		return domain.NewDomainError("Session.Navigate", domain.ErrInvalidInput, "empty url")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cmd.Call(ctx, page.CommandEnable, page.Enable()); err != nil {
		return err
	}
	if _, err := s.cmd.Call(ctx, network.CommandEnable, network.Enable()); err != nil {
		return err
	}
	s.cmd.ClearLogs()
	s.registry.Invalidate()

	raw, err := s.cmd.Call(ctx, page.CommandNavigate, page.Navigate(url))
	if err != nil {
		return err
	}
	var res page.NavigateReturns
	if err := decodeResult(page.CommandNavigate, raw, &res); err != nil {
		return err
	}
	if res.ErrorText != "" {
		return &domain.RemoteError{Method: page.CommandNavigate, Message: res.ErrorText}
	}
	s.logger.Debug("navigated", "url", url, "frame_id", string(res.FrameID))
	return nil
}

// Reload reloads the current page. Element handles become stale.
func (s *Session) Reload(ctx context.Context) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "Reload")
	defer func() { tracer.Finish(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Invalidate()
	raw, err := s.cmd.Call(ctx, page.CommandReload, page.Reload())
	if err != nil {
		return false, err
	}
	return emptyResult(raw), nil
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (title string, err error) {
	ctx, span := s.startSpan(ctx, "Title")
	defer func() { tracer.Finish(span, err) }()
	return s.evaluateString(ctx, "document.title")
}

// CurrentURL returns the location of the current document.
func (s *Session) CurrentURL(ctx context.Context) (u string, err error) {
	ctx, span := s.startSpan(ctx, "CurrentURL")
	defer func() { tracer.Finish(span, err) }()
	return s.evaluateString(ctx, "window.location.href")
}

func (s *Session) evaluateString(ctx context.Context, expr string) (string, error) {
	v, err := s.evaluate(ctx, expr)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("evaluate %s: expected a string, page returned %T %v", expr, v, v)
	}
	return str, nil
}

// Cookies returns the cookies visible to the current page.
func (s *Session) Cookies(ctx context.Context) (cookies []*network.Cookie, err error) {
	ctx, span := s.startSpan(ctx, "Cookies")
	defer func() { tracer.Finish(span, err) }()

	raw, err := s.cmd.Call(ctx, network.CommandGetCookies, network.GetCookies())
	if err != nil {
		return nil, err
	}
	var res network.GetCookiesReturns
	if err := decodeResult(network.CommandGetCookies, raw, &res); err != nil {
		return nil, err
	}
	return res.Cookies, nil
}

// DeleteCookie deletes the named cookie, scoped to url when given. It
// reports true when the peer answered with an empty result.
func (s *Session) DeleteCookie(ctx context.Context, name, url string) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "DeleteCookie", tracer.StringAttr("cookie", name))
	defer func() { tracer.Finish(span, err) }()

	if name == "" {
		return false, domain.NewDomainError("Session.DeleteCookie", domain.ErrInvalidInput, "empty cookie name")
	}
	params := network.DeleteCookies(name)
	if url != "" {
		params = params.WithURL(url)
	}
	raw, err := s.cmd.Call(ctx, network.CommandDeleteCookies, params)
	if err != nil {
		return false, err
	}
	return emptyResult(raw), nil
}

// SetHeaders sends headers with every subsequent request from the page.
func (s *Session) SetHeaders(ctx context.Context, headers map[string]string) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "SetHeaders", tracer.IntAttr("headers", len(headers)))
	defer func() { tracer.Finish(span, err) }()

	h := make(network.Headers, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	raw, err := s.cmd.Call(ctx, network.CommandSetExtraHTTPHeaders, network.SetExtraHTTPHeaders(h))
	if err != nil {
		return false, err
	}
	return emptyResult(raw), nil
}

// Screenshot captures the visible viewport as a base64-encoded PNG.
func (s *Session) Screenshot(ctx context.Context) (data string, err error) {
	ctx, span := s.startSpan(ctx, "Screenshot")
	defer func() { tracer.Finish(span, err) }()

	v, err := s.evaluate(ctx, "({width: window.innerWidth, height: window.innerHeight})")
	if err != nil {
		return "", err
	}
	size, _ := v.(map[string]any)
	width, _ := size["width"].(float64)
	height, _ := size["height"].(float64)
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("screenshot: viewport reported as %vx%v", size["width"], size["height"])
	}

	params := page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormatPng).
		WithClip(&page.Viewport{X: 0, Y: 0, Width: width, Height: height, Scale: 1})
	raw, err := s.cmd.Call(ctx, page.CommandCaptureScreenshot, params)
	if err != nil {
		return "", err
	}
	var res struct {
		Data string `json:"data"`
	}
	if err := decodeResult(page.CommandCaptureScreenshot, raw, &res); err != nil {
		return "", err
	}
	return res.Data, nil
}
