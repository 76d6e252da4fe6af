package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devtools-bridge/internal/domain"
)

func links() []*fakeElement {
	return []*fakeElement{
		{tag: "a", text: "First", attrs: map[string]string{"href": "/one"}},
		{tag: "a", text: "Second", attrs: map[string]string{"href": "/two"}},
		{tag: "a", text: "Third", attrs: map[string]string{"href": "/three"}, disabled: true, hidden: true},
	}
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakePage) {
	t.Helper()
	f := newFakePage()
	f.doc["a"] = links()
	opts = append([]Option{WithKeyInterval(0)}, opts...)
	return NewSession(f, opts...), f
}

func TestNavigateFindTextClick(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, "https://example.com/"))

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	require.Len(t, handles, 3)
	for i, h := range handles {
		assert.Equal(t, i, h.Index)
	}

	text, err := s.Text(ctx, handles[1])
	require.NoError(t, err)
	assert.Equal(t, "Second", text)

	before := f.evaluations()
	require.NoError(t, s.Click(ctx, handles[1]))
	assert.Equal(t, before+1, f.evaluations(), "click should take exactly one evaluation")
	assert.Equal(t, 1, f.doc["a"][1].clicks)
	assert.Zero(t, f.doc["a"][0].clicks)
}

func TestNavigateCommandOrder(t *testing.T) {
	s, f := newTestSession(t)

	require.NoError(t, s.Navigate(context.Background(), "https://example.com/"))

	assert.Equal(t, []string{page.CommandEnable, network.CommandEnable, page.CommandNavigate}, f.methods())
	assert.Equal(t, 1, f.cleared)
	p, ok := f.lastParams(page.CommandNavigate).(*page.NavigateParams)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/", p.URL)
}

func TestNavigateErrorText(t *testing.T) {
	s, f := newTestSession(t)
	f.replies[page.CommandNavigate] = `{"frameId":"F1","errorText":"net::ERR_NAME_NOT_RESOLVED"}`

	err := s.Navigate(context.Background(), "https://nowhere.invalid/")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemote)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestNavigateEmptyURL(t *testing.T) {
	s, f := newTestSession(t)
	err := s.Navigate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.methods())
}

func TestNavigatePropagatesTransportError(t *testing.T) {
	s, f := newTestSession(t)
	f.fail[page.CommandEnable] = domain.ErrConnectionClosed

	err := s.Navigate(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
}

func TestFindElementsInjectsLibraryOnce(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	_, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	_, err = s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, f.injections)

	require.NoError(t, s.Navigate(ctx, "https://example.com/next"))
	_, err = s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.injections, "a new document needs the library again")
}

func TestFindElementsNoMatch(t *testing.T) {
	s, _ := newTestSession(t)

	handles, err := s.FindElements(context.Background(), domain.StrategyCSS, "table")
	require.NoError(t, err)
	assert.NotNil(t, handles)
	assert.Empty(t, handles)
}

func TestFindElementNoMatch(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.FindElement(context.Background(), domain.StrategyCSS, "table")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h, err := s.FindElement(context.Background(), domain.StrategyCSS, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, h.Index)
}

func TestFindElementsInvalidLocator(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	_, err := s.FindElements(ctx, "shadow", "a")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.FindElements(ctx, domain.StrategyCSS, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.methods())
}

func TestFindElementsStalesEarlierHandles(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	first, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	second, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)

	before := f.evaluations()
	_, err = s.Text(ctx, first[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, f.evaluations(), "stale handles are rejected locally")

	text, err := s.Text(ctx, second[0])
	require.NoError(t, err)
	assert.Equal(t, "First", text)
}

func TestNavigateStalesHandles(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	require.NoError(t, s.Navigate(ctx, "https://example.com/other"))

	err = s.Click(ctx, handles[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, s.Registry().Len())
}

func TestReloadStalesHandles(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)

	ok, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, f.methods(), page.CommandReload)

	_, err = s.Text(ctx, handles[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPageInitiatedNavigationDetected(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	epoch := s.Registry().Epoch()

	f.unload()

	_, err = s.Text(ctx, handles[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Greater(t, s.Registry().Epoch(), epoch)
	assert.Zero(t, s.Registry().Len())

	// Every other handle of that generation is now rejected locally.
	before := f.evaluations()
	_, err = s.Text(ctx, handles[1])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, f.evaluations())
}

func TestFindChildElementsAppends(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	f.doc["ul"] = []*fakeElement{{
		tag: "ul",
		children: map[string][]*fakeElement{
			"li": {{tag: "li", text: "alpha"}, {tag: "li", text: "beta"}},
		},
	}}

	lists, err := s.FindElements(ctx, domain.StrategyCSS, "ul")
	require.NoError(t, err)
	require.Len(t, lists, 1)

	items, err := s.FindChildElements(ctx, lists[0], domain.StrategyTagName, "li")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Index)
	assert.Equal(t, 2, items[1].Index)
	assert.Equal(t, lists[0].Epoch, items[0].Epoch)
	assert.Equal(t, 3, s.Registry().Len())

	tag, err := s.TagName(ctx, lists[0])
	require.NoError(t, err)
	assert.Equal(t, "ul", tag, "parent handle stays valid")

	text, err := s.Text(ctx, items[1])
	require.NoError(t, err)
	assert.Equal(t, "beta", text)
}

// lossyPage applies commands to the wrapped page but loses the reply of the
// first lose evaluations whose expression contains match.
type lossyPage struct {
	*fakePage
	match string
	lose  int
}

func (l *lossyPage) Call(ctx context.Context, method string, params any) (jsontext.Value, error) {
	raw, err := l.fakePage.Call(ctx, method, params)
	if p, ok := params.(*cdpruntime.EvaluateParams); ok && err == nil && l.lose > 0 && strings.Contains(p.Expression, l.match) {
		l.lose--
		return nil, domain.NewDomainError("Client.Call", domain.ErrTimeout, method)
	}
	return raw, err
}

func nestedList() []*fakeElement {
	return []*fakeElement{{
		tag: "ul",
		children: map[string][]*fakeElement{
			"li":   {{tag: "li", text: "alpha"}, {tag: "li", text: "beta"}},
			"span": {{tag: "span", text: "the-span"}},
		},
	}}
}

func TestFindChildElementsLostReplyExpiresGeneration(t *testing.T) {
	f := newFakePage()
	f.doc["ul"] = nestedList()
	lossy := &lossyPage{fakePage: f, match: "b.locateWithin(", lose: 1}
	s := NewSession(lossy, WithKeyInterval(0))
	ctx := context.Background()

	lists, err := s.FindElements(ctx, domain.StrategyCSS, "ul")
	require.NoError(t, err)

	_, err = s.FindChildElements(ctx, lists[0], domain.StrategyTagName, "li")
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Len(t, f.table, 3, "the page appended even though the reply was lost")

	before := f.evaluations()
	_, err = s.FindChildElements(ctx, lists[0], domain.StrategyTagName, "span")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Text(ctx, lists[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, f.evaluations(), "expired handles are rejected locally")

	lists, err = s.FindElements(ctx, domain.StrategyCSS, "ul")
	require.NoError(t, err)
	spans, err := s.FindChildElements(ctx, lists[0], domain.StrategyTagName, "span")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, 1, spans[0].Index)
	text, err := s.Text(ctx, spans[0])
	require.NoError(t, err)
	assert.Equal(t, "the-span", text)
}

func TestFindChildElementsDetectsDriftedTable(t *testing.T) {
	s, f := newTestSession(t)
	f.doc["ul"] = nestedList()
	ctx := context.Background()

	lists, err := s.FindElements(ctx, domain.StrategyCSS, "ul")
	require.NoError(t, err)

	// The page grew its table without the session knowing.
	f.mu.Lock()
	f.table = append(f.table, &fakeElement{tag: "p", text: "stray"})
	f.mu.Unlock()

	_, err = s.FindChildElements(ctx, lists[0], domain.StrategyTagName, "span")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.TagName(ctx, lists[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, s.Registry().Len())
}

func TestFindChildElementsScriptErrorKeepsHandles(t *testing.T) {
	s, f := newTestSession(t)
	f.doc["ul"] = nestedList()
	ctx := context.Background()

	lists, err := s.FindElements(ctx, domain.StrategyCSS, "ul")
	require.NoError(t, err)

	expr, err := guardedCall(lists[0].Epoch, "locateWithin", 0, domain.StrategyXPath, "//[")
	require.NoError(t, err)
	f.rawEval[expr] = `{"result":{"type":"object"},"exceptionDetails":{"exceptionId":1,"text":"Uncaught","exception":{"type":"object","description":"SyntaxError: bad xpath"}}}`

	_, err = s.FindChildElements(ctx, lists[0], domain.StrategyXPath, "//[")
	require.ErrorIs(t, err, domain.ErrScript)

	tag, err := s.TagName(ctx, lists[0])
	require.NoError(t, err)
	assert.Equal(t, "ul", tag)
}

func TestFindChildElementsStaleParent(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	_, err = s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)

	_, err = s.FindChildElements(ctx, handles[0], domain.StrategyCSS, "span")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestElementQueries(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)

	enabled, err := s.IsEnabled(ctx, handles[0])
	require.NoError(t, err)
	assert.True(t, enabled)
	enabled, err = s.IsEnabled(ctx, handles[2])
	require.NoError(t, err)
	assert.False(t, enabled)

	displayed, err := s.IsDisplayed(ctx, handles[2])
	require.NoError(t, err)
	assert.False(t, displayed)

	tag, err := s.TagName(ctx, handles[0])
	require.NoError(t, err)
	assert.Equal(t, "a", tag)

	href, ok, err := s.Attribute(ctx, handles[1], "href")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/two", href)

	_, ok, err = s.Attribute(ctx, handles[1], "target")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetValue(t *testing.T) {
	s, f := newTestSession(t)
	f.doc["input"] = []*fakeElement{{tag: "input"}}
	ctx := context.Background()

	h, err := s.FindElement(ctx, domain.StrategyTagName, "input")
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, h, `say "hi"`))
	assert.Equal(t, `say "hi"`, f.doc["input"][0].value)
}

func TestSetValuePacing(t *testing.T) {
	s, f := newTestSession(t, WithKeyInterval(10*time.Millisecond))
	f.doc["input"] = []*fakeElement{{tag: "input"}}
	ctx := context.Background()

	h, err := s.FindElement(ctx, domain.StrategyTagName, "input")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.SetValue(ctx, h, "abcd"))
	assert.GreaterOrEqual(t, time.Since(start), 38*time.Millisecond, "four characters take four intervals")

	// A fresh limiter token must not let a lone character through unpaced.
	start = time.Now()
	require.NoError(t, s.SetValue(ctx, h, "é"))
	assert.GreaterOrEqual(t, time.Since(start), 9*time.Millisecond)
	assert.Equal(t, "abcdé", f.doc["input"][0].value)
}

func TestSetValueDeadlineIsTimeout(t *testing.T) {
	s, f := newTestSession(t, WithKeyInterval(time.Hour))
	f.doc["input"] = []*fakeElement{{tag: "input"}}

	h, err := s.FindElement(context.Background(), domain.StrategyTagName, "input")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.SetValue(ctx, h, "ab")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, "ab", f.doc["input"][0].value)
}

func TestSetValueCanceled(t *testing.T) {
	s, f := newTestSession(t, WithKeyInterval(time.Hour))
	f.doc["input"] = []*fakeElement{{tag: "input"}}

	h, err := s.FindElement(context.Background(), domain.StrategyTagName, "input")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err = s.SetValue(ctx, h, "ab")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrTimeout)
}

func TestElementQueriesRejectMistypedResults(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	epoch := handles[0].Epoch

	mistype := func(fn string, value string, args ...any) {
		t.Helper()
		expr, err := guardedCall(epoch, fn, append([]any{0}, args...)...)
		require.NoError(t, err)
		f.rawEval[expr] = `{"result":{"type":"object","value":{"value":` + value + `}}}`
	}
	mistype("text", `42`)
	mistype("tagName", `{"tag":"a"}`)
	mistype("isEnabled", `"true"`)
	mistype("isDisplayed", `1`)
	mistype("attribute", `7`, "href")

	_, err = s.Text(ctx, handles[0])
	assert.ErrorContains(t, err, "expected a string")
	_, err = s.TagName(ctx, handles[0])
	assert.ErrorContains(t, err, "expected a string")
	_, err = s.IsEnabled(ctx, handles[0])
	assert.ErrorContains(t, err, "expected a boolean")
	_, err = s.IsDisplayed(ctx, handles[0])
	assert.ErrorContains(t, err, "expected a boolean")
	_, ok, err := s.Attribute(ctx, handles[0], "href")
	assert.ErrorContains(t, err, "expected a string")
	assert.False(t, ok)

	// Other elements are unaffected.
	text, err := s.Text(ctx, handles[1])
	require.NoError(t, err)
	assert.Equal(t, "Second", text)
}

func TestTitleRejectsNonString(t *testing.T) {
	s, f := newTestSession(t)
	f.rawEval["document.title"] = `{"result":{"type":"number","value":3}}`

	_, err := s.Title(context.Background())
	assert.ErrorContains(t, err, "expected a string")
}

func TestTitleWithLoneSurrogate(t *testing.T) {
	s, f := newTestSession(t)
	f.rawEval["document.title"] = `{"result":{"type":"string","value":"ab\ud83d"}}`

	title, err := s.Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ab\uFFFD", title)
}

func TestExecuteScript(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()
	f.script = func(body string, el *fakeElement) any {
		if el == nil {
			return 42
		}
		return el.text
	}

	v, err := s.ExecuteScript(ctx, "return 42;", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)

	v, err = s.ExecuteScript(ctx, "return arguments[0].innerText;", handles[2:])
	require.NoError(t, err)
	assert.Equal(t, "Third", v)

	v, err = s.ExecuteScript(ctx, "return arguments[0].innerText;", handles[:2])
	require.NoError(t, err)
	assert.Equal(t, []any{"First", "Second"}, v)
}

func TestExecuteScriptUndefined(t *testing.T) {
	s, _ := newTestSession(t)

	v, err := s.ExecuteScript(context.Background(), "document.body.click();", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExecuteScriptStaleHandle(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	handles, err := s.FindElements(ctx, domain.StrategyCSS, "a")
	require.NoError(t, err)
	require.NoError(t, s.Navigate(ctx, "https://example.com/"))

	_, err = s.ExecuteScript(ctx, "return 1;", handles)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScriptErrorShapes(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantDesc  string
		wantValue any
	}{
		{
			name:     "chrome exception object",
			reply:    `{"result":{"type":"object","subtype":"error","description":"Error: boom"},"exceptionDetails":{"exceptionId":1,"text":"Uncaught","lineNumber":0,"columnNumber":0,"exception":{"type":"object","subtype":"error","description":"Error: boom"}}}`,
			wantDesc: "Error: boom",
		},
		{
			name:      "chrome thrown primitive",
			reply:     `{"result":{"type":"string","value":"bad"},"exceptionDetails":{"exceptionId":2,"text":"Uncaught","lineNumber":0,"columnNumber":0,"exception":{"type":"string","value":"bad"}}}`,
			wantValue: "bad",
		},
		{
			name:     "chrome details without exception",
			reply:    `{"result":{"type":"undefined"},"exceptionDetails":{"exceptionId":3,"text":"SyntaxError: Unexpected token","lineNumber":0,"columnNumber":0}}`,
			wantDesc: "SyntaxError: Unexpected token",
		},
		{
			name:     "webkit wasThrown",
			reply:    `{"result":{"type":"object","description":"TypeError: undefined is not an object"},"wasThrown":true}`,
			wantDesc: "TypeError: undefined is not an object",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, f := newTestSession(t)
			f.rawEval["document.title"] = tt.reply

			_, err := s.Title(context.Background())
			require.ErrorIs(t, err, domain.ErrScript)
			var se *domain.ScriptError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantDesc, se.Description)
			assert.Equal(t, tt.wantValue, se.Value)
		})
	}
}

func TestTitleAndCurrentURL(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)

	u, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", u)

	f.rawEval["document.title"] = `{"result":{"type":"undefined"}}`
	title, err = s.Title(ctx)
	require.NoError(t, err)
	assert.Empty(t, title)

	p, ok := f.lastParams(cdpruntime.CommandEvaluate).(*cdpruntime.EvaluateParams)
	require.True(t, ok)
	assert.True(t, p.ReturnByValue)
}

func TestCookies(t *testing.T) {
	s, f := newTestSession(t)
	f.replies[network.CommandGetCookies] = `{"cookies":[{"name":"sid","value":"abc","domain":"example.com","path":"/","size":6,"httpOnly":true,"secure":true,"session":true}]}`

	cookies, err := s.Cookies(context.Background())
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.True(t, cookies[0].HTTPOnly)
}

func TestDeleteCookie(t *testing.T) {
	s, f := newTestSession(t)
	ctx := context.Background()

	ok, err := s.DeleteCookie(ctx, "sid", "https://example.com/")
	require.NoError(t, err)
	assert.True(t, ok)
	p, isParams := f.lastParams(network.CommandDeleteCookies).(*network.DeleteCookiesParams)
	require.True(t, isParams)
	assert.Equal(t, "sid", p.Name)
	assert.Equal(t, "https://example.com/", p.URL)

	f.replies[network.CommandDeleteCookies] = `{"unexpected":true}`
	ok, err = s.DeleteCookie(ctx, "sid", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeleteCookie(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSetHeaders(t *testing.T) {
	s, f := newTestSession(t)

	ok, err := s.SetHeaders(context.Background(), map[string]string{"X-Trace": "1"})
	require.NoError(t, err)
	assert.True(t, ok)

	p, isParams := f.lastParams(network.CommandSetExtraHTTPHeaders).(*network.SetExtraHTTPHeadersParams)
	require.True(t, isParams)
	assert.Equal(t, "1", p.Headers["X-Trace"])
}

func TestScreenshot(t *testing.T) {
	s, f := newTestSession(t)
	f.replies[page.CommandCaptureScreenshot] = `{"data":"iVBORw0KGgo="}`

	data, err := s.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iVBORw0KGgo=", data)

	p, ok := f.lastParams(page.CommandCaptureScreenshot).(*page.CaptureScreenshotParams)
	require.True(t, ok)
	require.NotNil(t, p.Clip)
	assert.Equal(t, float64(800), p.Clip.Width)
	assert.Equal(t, float64(600), p.Clip.Height)
	assert.Equal(t, page.CaptureScreenshotFormatPng, p.Format)
}

func TestNetworkTrafficSnapshot(t *testing.T) {
	s, f := newTestSession(t)
	f.entries = []domain.NetworkEntry{{RequestID: "1", Request: domain.NetworkRequest{URL: "https://example.com/"}}}

	got := s.NetworkTraffic()
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/", got[0].Request.URL)

	require.NoError(t, s.Navigate(context.Background(), "https://example.com/"))
	assert.Empty(t, s.NetworkTraffic())
}

func TestWithCapabilityOverride(t *testing.T) {
	s := NewSession(newFakePage(), WithCapability("window.__devtoolsBridge={};"))
	assert.Equal(t, "window.__devtoolsBridge={};", s.capability)

	s = NewSession(newFakePage(), WithCapability(""))
	assert.Equal(t, DefaultCapability(), s.capability)
}
