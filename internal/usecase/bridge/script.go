package bridge

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"devtools-bridge/internal/domain"
)

//go:embed capability.js
var defaultCapability string

// DefaultCapability returns the built-in capability library source.
func DefaultCapability() string { return defaultCapability }

const libraryGlobal = "window.__devtoolsBridge"

// jsLiteral encodes v as a JSON value safe to embed in script text.
// Strings come out quoted with U+2028 and U+2029 escaped.
func jsLiteral(v any) (string, error) {
	b, err := json.Marshal(v, jsontext.EscapeForJS(true))
	if err != nil {
		return "", domain.NewDomainError("bridge.jsLiteral", domain.ErrInvalidInput, err.Error())
	}
	return string(b), nil
}

func jsArgs(args []any) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		lit, err := jsLiteral(a)
		if err != nil {
			return "", err
		}
		parts[i] = lit
	}
	return strings.Join(parts, ","), nil
}

func missingLibraryExpression() string {
	return "typeof " + libraryGlobal + " === 'undefined'"
}

// locateExpression replaces the remote table and stamps it with epoch.
func locateExpression(strategy, selector string, epoch uint64) (string, error) {
	args, err := jsArgs([]any{strategy, selector, epoch})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.locate(%s)", libraryGlobal, args), nil
}

// guarded wraps body so it only runs while the remote table belongs to
// epoch. The result is {value: ...} on success or {stale: true} when the
// library is missing or was stamped by another generation. Inside body the
// library is bound to b.
func guarded(epoch uint64, body string) string {
	return fmt.Sprintf("(function(){var b=%s;if(b===undefined||b.epoch!==%d){return {stale:true};}return {value:%s};})()",
		libraryGlobal, epoch, body)
}

// guardedCall invokes library function fn with the given arguments under
// the epoch guard.
func guardedCall(epoch uint64, fn string, args ...any) (string, error) {
	a, err := jsArgs(args)
	if err != nil {
		return "", err
	}
	return guarded(epoch, fmt.Sprintf("b.%s(%s)", fn, a)), nil
}

// scriptFunction turns a script body into an applied function expression.
// argument is an expression for arguments[0], or empty for no arguments.
func scriptFunction(body, argument string) string {
	return fmt.Sprintf("(function(){%s\n}).apply(null,[%s])", body, argument)
}
