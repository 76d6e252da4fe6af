package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"devtools-bridge/internal/domain"
)

type fakeElement struct {
	tag      string
	text     string
	attrs    map[string]string
	disabled bool
	hidden   bool
	value    string
	clicks   int
	children map[string][]*fakeElement // keyed by selector
}

type recordedCall struct {
	method string
	expr   string // Runtime.evaluate expression, empty otherwise
	params any
}

// fakePage is a Commander backed by a tiny model of a page with the
// capability library. It understands the expressions Session emits.
type fakePage struct {
	mu sync.Mutex

	doc       map[string][]*fakeElement // top-level matches keyed by selector
	title     string
	href      string
	installed bool
	epoch     uint64
	table     []*fakeElement

	injections int
	calls      []recordedCall
	cleared    int
	entries    []domain.NetworkEntry

	// replies answers non-evaluate methods; missing methods answer {}.
	replies map[string]string
	// rawEval answers specific expressions verbatim.
	rawEval map[string]string
	// script runs ExecuteScript bodies. el is nil without handles.
	script func(body string, el *fakeElement) any
	fail   map[string]error
}

func newFakePage() *fakePage {
	return &fakePage{
		doc:     make(map[string][]*fakeElement),
		title:   "Example Domain",
		href:    "https://example.com/",
		replies: make(map[string]string),
		rawEval: make(map[string]string),
		fail:    make(map[string]error),
	}
}

// unload simulates the page navigating on its own: the library and its
// table vanish.
func (f *fakePage) unload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = false
	f.table = nil
	f.epoch = 0
}

func (f *fakePage) evaluations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == cdpruntime.CommandEvaluate {
			n++
		}
	}
	return n
}

func (f *fakePage) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakePage) lastParams(method string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i].params
		}
	}
	return nil
}

func (f *fakePage) Call(_ context.Context, method string, params any) (jsontext.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := recordedCall{method: method, params: params}
	if p, ok := params.(*cdpruntime.EvaluateParams); ok {
		call.expr = p.Expression
	}
	f.calls = append(f.calls, call)

	if err := f.fail[method]; err != nil {
		return nil, err
	}
	if method == cdpruntime.CommandEvaluate {
		if raw, ok := f.rawEval[call.expr]; ok {
			return jsontext.Value(raw), nil
		}
		v, err := f.evaluate(call.expr)
		if err != nil {
			return nil, err
		}
		return evalReply(v), nil
	}
	if method == page.CommandNavigate {
		f.installed = false
		f.table = nil
		f.epoch = 0
	}
	if raw, ok := f.replies[method]; ok {
		return jsontext.Value(raw), nil
	}
	return jsontext.Value(`{}`), nil
}

func (f *fakePage) NetworkEntries() []domain.NetworkEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NetworkEntry(nil), f.entries...)
}

func (f *fakePage) PageEvents() []domain.PageEvent { return nil }

func (f *fakePage) ClearLogs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.entries = nil
}

type undefined struct{}

func evalReply(v any) jsontext.Value {
	if _, ok := v.(undefined); ok {
		return jsontext.Value(`{"result":{"type":"undefined"}}`)
	}
	b, err := json.Marshal(map[string]any{"result": map[string]any{"type": "object", "value": v}})
	if err != nil {
		panic(err)
	}
	return b
}

// The guard pieces are cut out of a real guarded expression so the fake
// follows any change to its shape.
var guardPrefix, guardMiddle, guardSuffix = splitGuard()

const (
	guardEpochMark = 918273645
	guardBodyMark  = "GUARDED_BODY"
)

func splitGuard() (prefix, middle, suffix string) {
	expr := guarded(guardEpochMark, guardBodyMark)
	prefix, rest, ok := strings.Cut(expr, strconv.Itoa(guardEpochMark))
	if !ok {
		panic("guarded expression lost its epoch")
	}
	middle, suffix, ok = strings.Cut(rest, guardBodyMark)
	if !ok {
		panic("guarded expression lost its body")
	}
	return prefix, middle, suffix
}

func (f *fakePage) evaluate(expr string) (any, error) {
	switch {
	case expr == missingLibraryExpression():
		return !f.installed, nil
	case expr == defaultCapability:
		f.installed = true
		f.injections++
		return undefined{}, nil
	case expr == "document.title":
		return f.title, nil
	case expr == "window.location.href":
		return f.href, nil
	case strings.HasPrefix(expr, "({width: window.innerWidth"):
		return map[string]any{"width": 800, "height": 600}, nil
	case strings.HasPrefix(expr, libraryGlobal+".locate("):
		args := parseArgs(strings.TrimSuffix(strings.TrimPrefix(expr, libraryGlobal+".locate("), ")"))
		if !f.installed {
			return nil, &domain.ScriptError{Description: "TypeError: library missing"}
		}
		f.table = append([]*fakeElement(nil), f.doc[args[1].(string)]...)
		f.epoch = uint64(args[2].(float64))
		return len(f.table), nil
	case strings.HasPrefix(expr, guardPrefix):
		return f.evaluateGuarded(expr)
	case strings.HasPrefix(expr, "(function(){"):
		body, _ := splitScript(expr)
		return f.runScript(body, nil), nil
	}
	return nil, fmt.Errorf("fakePage: unexpected expression %q", expr)
}

func (f *fakePage) evaluateGuarded(expr string) (any, error) {
	rest := strings.TrimPrefix(expr, guardPrefix)
	num, rest, ok := strings.Cut(rest, guardMiddle)
	if !ok {
		return nil, fmt.Errorf("fakePage: malformed guard %q", expr)
	}
	epoch, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return nil, err
	}
	if !f.installed || epoch != f.epoch {
		return map[string]any{"stale": true}, nil
	}
	body, ok := strings.CutSuffix(rest, guardSuffix)
	if !ok {
		return nil, fmt.Errorf("fakePage: malformed guard %q", expr)
	}

	if strings.HasPrefix(body, "(function(){") {
		script, arg := splitScript(body)
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(arg, "b.element("), ")"))
		if err != nil {
			return nil, err
		}
		v := f.runScript(script, f.table[idx])
		if _, ok := v.(undefined); ok {
			v = nil
		}
		return map[string]any{"value": v}, nil
	}

	fn, argText, _ := strings.Cut(strings.TrimPrefix(body, "b."), "(")
	args := parseArgs(strings.TrimSuffix(argText, ")"))
	el := f.table[int(args[0].(float64))]

	var v any
	switch fn {
	case "text":
		v = el.text
	case "tagName":
		v = el.tag
	case "attribute":
		if a, ok := el.attrs[args[1].(string)]; ok {
			v = a
		}
	case "isEnabled":
		v = !el.disabled
	case "isDisplayed":
		v = !el.hidden
	case "click":
		el.clicks++
		v = true
	case "type":
		el.value += args[1].(string)
		v = true
	case "locateWithin":
		found := el.children[args[2].(string)]
		start := len(f.table)
		f.table = append(f.table, found...)
		v = map[string]any{"start": start, "count": len(found)}
	default:
		return nil, fmt.Errorf("fakePage: unknown library function %q", fn)
	}
	return map[string]any{"value": v}, nil
}

func (f *fakePage) runScript(body string, el *fakeElement) any {
	if f.script == nil {
		return undefined{}
	}
	return f.script(body, el)
}

// splitScript takes apart a scriptFunction expression.
func splitScript(expr string) (body, arg string) {
	inner := strings.TrimPrefix(expr, "(function(){")
	body, rest, _ := strings.Cut(inner, "\n}).apply(null,[")
	return body, strings.TrimSuffix(rest, "])")
}

func parseArgs(s string) []any {
	var out []any
	if err := json.Unmarshal([]byte("["+s+"]"), &out); err != nil {
		panic(err)
	}
	return out
}
