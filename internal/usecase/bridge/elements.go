package bridge

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/tracer"
)

func checkLocator(op, strategy, selector string) error {
	if !domain.ValidStrategy(strategy) {
		return domain.NewDomainError(op, domain.ErrInvalidInput, fmt.Sprintf("unsupported locator strategy %q", strategy))
	}
	if selector == "" {
		return domain.NewDomainError(op, domain.ErrInvalidInput, "empty selector")
	}
	return nil
}

func asCount(op string, v any) (int, error) {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, fmt.Errorf("%s: unexpected match count %v", op, v)
	}
	return int(f), nil
}

// asAppended reads the {start, count} record locateWithin returns.
func asAppended(op string, v any) (start, n int, err error) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("%s: unexpected append result %v", op, v)
	}
	if start, err = asCount(op, m["start"]); err != nil {
		return 0, 0, err
	}
	if n, err = asCount(op, m["count"]); err != nil {
		return 0, 0, err
	}
	return start, n, nil
}

// FindElements locates every element matching selector in the current
// document. The element table is replaced, so previously issued handles
// become stale. No match yields an empty slice.
func (s *Session) FindElements(ctx context.Context, strategy, selector string) (handles []domain.ElementHandle, err error) {
	ctx, span := s.startSpan(ctx, "FindElements", tracer.StringAttr("strategy", strategy), tracer.StringAttr("selector", selector))
	defer func() { tracer.Finish(span, err) }()

	if err := checkLocator("Session.FindElements", strategy, selector); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureLibrary(ctx); err != nil {
		return nil, err
	}
	epoch := s.registry.Invalidate()
	expr, err := locateExpression(strategy, selector, epoch)
	if err != nil {
		return nil, err
	}
	v, err := s.evaluate(ctx, expr)
	if err != nil {
		return nil, err
	}
	n, err := asCount("Session.FindElements", v)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("matches", n))
	return s.registry.Extend(epoch, n)
}

// FindElement returns the first element matching selector.
func (s *Session) FindElement(ctx context.Context, strategy, selector string) (domain.ElementHandle, error) {
	handles, err := s.FindElements(ctx, strategy, selector)
	if err != nil {
		return domain.ElementHandle{}, err
	}
	if len(handles) == 0 {
		return domain.ElementHandle{}, domain.NewDomainError("Session.FindElement", domain.ErrNotFound,
			fmt.Sprintf("%s %q matched nothing", strategy, selector))
	}
	return handles[0], nil
}

// FindChildElements locates elements under parent. Matches are appended to
// the element table: the returned handles continue the existing numbering
// and every earlier handle stays valid. If the outcome of the append is
// unknown or the page appended somewhere other than expected, the whole
// generation is expired.
func (s *Session) FindChildElements(ctx context.Context, parent domain.ElementHandle, strategy, selector string) (handles []domain.ElementHandle, err error) {
	ctx, span := s.startSpan(ctx, "FindChildElements",
		tracer.IntAttr("parent", parent.Index), tracer.StringAttr("strategy", strategy), tracer.StringAttr("selector", selector))
	defer func() { tracer.Finish(span, err) }()

	if err := checkLocator("Session.FindChildElements", strategy, selector); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.registry.Resolve(parent)
	if err != nil {
		return nil, err
	}
	expr, err := guardedCall(parent.Epoch, "locateWithin", idx, strategy, selector)
	if err != nil {
		return nil, err
	}
	v, err := s.evaluateGuarded(ctx, parent.Epoch, expr)
	if err != nil {
		// A thrown lookup leaves the table alone. Anything else may have
		// appended without the reply reaching us.
		if !errors.Is(err, domain.ErrScript) {
			s.registry.Expire(parent.Epoch)
		}
		return nil, err
	}
	start, n, err := asAppended("Session.FindChildElements", v)
	if err != nil {
		s.registry.Expire(parent.Epoch)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("matches", n))
	return s.registry.Append(parent.Epoch, start, n)
}

// call invokes a capability function on the element behind h.
func (s *Session) call(ctx context.Context, h domain.ElementHandle, fn string, args ...any) (any, error) {
	idx, err := s.registry.Resolve(h)
	if err != nil {
		return nil, err
	}
	expr, err := guardedCall(h.Epoch, fn, append([]any{idx}, args...)...)
	if err != nil {
		return nil, err
	}
	return s.evaluateGuarded(ctx, h.Epoch, expr)
}

func (s *Session) callBool(ctx context.Context, op string, h domain.ElementHandle) (b bool, err error) {
	ctx, span := s.startSpan(ctx, op, tracer.IntAttr("element", h.Index))
	defer func() { tracer.Finish(span, err) }()

	v, err := s.call(ctx, h, lowerFirst(op))
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, unexpectedResult(op, "boolean", v)
	}
	return b, nil
}

func (s *Session) callString(ctx context.Context, op string, h domain.ElementHandle) (str string, err error) {
	ctx, span := s.startSpan(ctx, op, tracer.IntAttr("element", h.Index))
	defer func() { tracer.Finish(span, err) }()

	v, err := s.call(ctx, h, lowerFirst(op))
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", unexpectedResult(op, "string", v)
	}
	return str, nil
}

func unexpectedResult(op, want string, v any) error {
	return fmt.Errorf("Session.%s: expected a %s, page returned %T %v", op, want, v, v)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// IsEnabled reports whether the element is not disabled.
func (s *Session) IsEnabled(ctx context.Context, h domain.ElementHandle) (bool, error) {
	return s.callBool(ctx, "IsEnabled", h)
}

// IsDisplayed reports whether the element is rendered and visible.
func (s *Session) IsDisplayed(ctx context.Context, h domain.ElementHandle) (bool, error) {
	return s.callBool(ctx, "IsDisplayed", h)
}

// Text returns the element's visible text.
func (s *Session) Text(ctx context.Context, h domain.ElementHandle) (string, error) {
	return s.callString(ctx, "Text", h)
}

// TagName returns the element's lower-case tag name.
func (s *Session) TagName(ctx context.Context, h domain.ElementHandle) (string, error) {
	return s.callString(ctx, "TagName", h)
}

// Attribute returns the named attribute. ok is false when the element has
// no such attribute.
func (s *Session) Attribute(ctx context.Context, h domain.ElementHandle, name string) (value string, ok bool, err error) {
	ctx, span := s.startSpan(ctx, "Attribute", tracer.IntAttr("element", h.Index), tracer.StringAttr("attribute", name))
	defer func() { tracer.Finish(span, err) }()

	v, err := s.call(ctx, h, "attribute", name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	value, ok = v.(string)
	if !ok {
		return "", false, unexpectedResult("Attribute", "string", v)
	}
	return value, true, nil
}

// Click clicks the element.
func (s *Session) Click(ctx context.Context, h domain.ElementHandle) (err error) {
	ctx, span := s.startSpan(ctx, "Click", tracer.IntAttr("element", h.Index))
	defer func() { tracer.Finish(span, err) }()

	_, err = s.call(ctx, h, "click")
	return err
}

// SetValue types text into the element, then waits one key interval per
// character so page handlers observe the input as typed.
func (s *Session) SetValue(ctx context.Context, h domain.ElementHandle, text string) (err error) {
	ctx, span := s.startSpan(ctx, "SetValue", tracer.IntAttr("element", h.Index), tracer.IntAttr("length", len(text)))
	defer func() { tracer.Finish(span, err) }()

	if _, err := s.call(ctx, h, "type", text); err != nil {
		return err
	}
	// The limiter starts with a token in hand; spend it so n characters
	// cost n intervals.
	s.keys.Reserve()
	n := utf8.RuneCountInString(text)
	for range n {
		if err := s.keys.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return fmt.Errorf("Session.SetValue: %w", ctx.Err())
			}
			return domain.NewDomainError("Session.SetValue", domain.ErrTimeout,
				fmt.Sprintf("pacing %d typed characters: %v", n, err))
		}
	}
	return nil
}

// ExecuteScript runs body as a function. With no handles it runs once with
// no arguments and returns its value. Otherwise it runs once per handle with
// the element as arguments[0]: one handle returns that run's value, several
// return a []any in handle order.
func (s *Session) ExecuteScript(ctx context.Context, body string, handles []domain.ElementHandle) (result any, err error) {
	ctx, span := s.startSpan(ctx, "ExecuteScript", tracer.IntAttr("handles", len(handles)))
	defer func() { tracer.Finish(span, err) }()

	if len(handles) == 0 {
		return s.evaluate(ctx, scriptFunction(body, ""))
	}

	results := make([]any, 0, len(handles))
	for _, h := range handles {
		idx, err := s.registry.Resolve(h)
		if err != nil {
			return nil, err
		}
		expr := guarded(h.Epoch, scriptFunction(body, fmt.Sprintf("b.element(%d)", idx)))
		v, err := s.evaluateGuarded(ctx, h.Epoch, expr)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}
