package domain

import "fmt"

// ElementHandle references an entry in the element table held by the remote
// page. Epoch is the registry generation the handle was issued in; a handle
// from an earlier generation no longer points at the node it was issued for.
type ElementHandle struct {
	Index int    `json:"index"`
	Epoch uint64 `json:"epoch"`
}

func (h ElementHandle) String() string {
	return fmt.Sprintf("element %d@%d", h.Index, h.Epoch)
}

// Locator strategies understood by the capability library.
const (
	StrategyCSS             = "css selector"
	StrategyXPath           = "xpath"
	StrategyID              = "id"
	StrategyName            = "name"
	StrategyTagName         = "tag name"
	StrategyClassName       = "class name"
	StrategyLinkText        = "link text"
	StrategyPartialLinkText = "partial link text"
)

// ValidStrategy reports whether s is a supported locator strategy.
func ValidStrategy(s string) bool {
	switch s {
	case StrategyCSS, StrategyXPath, StrategyID, StrategyName, StrategyTagName,
		StrategyClassName, StrategyLinkText, StrategyPartialLinkText:
		return true
	}
	return false
}

// Target is a debuggable page advertised by a discovery endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}
