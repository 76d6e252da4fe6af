package bridge

import (
	"context"
	"fmt"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"devtools-bridge/internal/domain"
)

type remoteValue struct {
	Type        string         `json:"type"`
	Subtype     string         `json:"subtype,omitzero"`
	Value       jsontext.Value `json:"value,omitzero"`
	Description string         `json:"description,omitzero"`
}

// evaluateReply covers both reply shapes seen in the wild: Chrome reports a
// throw through exceptionDetails, WebKit through wasThrown and result.
type evaluateReply struct {
	Result           remoteValue `json:"result"`
	WasThrown        bool        `json:"wasThrown,omitzero"`
	ExceptionDetails *struct {
		Text      string       `json:"text"`
		Exception *remoteValue `json:"exception,omitzero"`
	} `json:"exceptionDetails,omitzero"`
}

// lenient tolerates lone surrogates in page strings, such as text cut
// inside an emoji. They decode as U+FFFD.
var lenient = jsontext.AllowInvalidUTF8(true)

func decodeValue(v jsontext.Value) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(v, &out, lenient); err != nil {
		return nil, fmt.Errorf("decode evaluation value: %w", err)
	}
	return out, nil
}

// evaluate runs expr in the page and returns its completion value decoded
// from JSON. An undefined completion value yields nil.
func (s *Session) evaluate(ctx context.Context, expr string) (any, error) {
	raw, err := s.cmd.Call(ctx, cdpruntime.CommandEvaluate, cdpruntime.Evaluate(expr).WithReturnByValue(true))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var rep evaluateReply
	if err := json.Unmarshal(raw, &rep, lenient); err != nil {
		return nil, fmt.Errorf("decode evaluation reply: %w", err)
	}

	if d := rep.ExceptionDetails; d != nil {
		se := &domain.ScriptError{Description: d.Text}
		if d.Exception != nil {
			se.Value, _ = decodeValue(d.Exception.Value)
			// Thrown primitives carry no description; their value reads
			// better than the generic "Uncaught".
			switch {
			case d.Exception.Description != "":
				se.Description = d.Exception.Description
			case se.Value != nil:
				se.Description = ""
			}
		}
		return nil, se
	}
	if rep.WasThrown {
		v, _ := decodeValue(rep.Result.Value)
		return nil, &domain.ScriptError{Value: v, Description: rep.Result.Description}
	}
	return decodeValue(rep.Result.Value)
}

// evaluateGuarded runs a guarded expression and unwraps its envelope. A
// stale envelope expires the generation and fails with domain.ErrNotFound.
func (s *Session) evaluateGuarded(ctx context.Context, epoch uint64, expr string) (any, error) {
	v, err := s.evaluate(ctx, expr)
	if err != nil {
		return nil, err
	}
	env, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected evaluation envelope %T", v)
	}
	if stale, _ := env["stale"].(bool); stale {
		s.registry.Expire(epoch)
		return nil, domain.NewDomainError("Session", domain.ErrNotFound, "element table was reset by the page")
	}
	return env["value"], nil
}
