// Package browser wraps a controllable browser context for driving the
// PJe portal. Each acquisition run exclusively owns one Session for its
// full lifetime; sessions are never shared across runs.
package browser

import (
	"context"
	"strings"
	"time"
)

// Session is the stateful remote-UI surface the acquisition flow drives.
// Every operation blocks and is bounded by an explicit timeout; a wait
// that expires returns an error rather than hanging.
//
// Tabs are tracked as opaque ordered handles. Opening a portal action is
// expected to add exactly one new handle; closing a transient viewer
// removes it. Callers diff handle sets with NewTabs.
type Session interface {
	// Open navigates the active tab to url.
	Open(url string, timeout time.Duration) error

	// Reload reloads the active tab.
	Reload(timeout time.Duration) error

	// WaitFor blocks until selector is present in the active tab.
	WaitFor(selector string, timeout time.Duration) error

	// Fill writes value into the element matching selector.
	Fill(selector, value string, timeout time.Duration) error

	// Click clicks the element matching selector.
	Click(selector string, timeout time.Duration) error

	// WaitForInFrame, FillInFrame and ClickInFrame operate on elements
	// inside an embedded frame located by frameSelector.
	WaitForInFrame(frameSelector, selector string, timeout time.Duration) error
	FillInFrame(frameSelector, selector, value string, timeout time.Duration) error
	ClickInFrame(frameSelector, selector string, timeout time.Duration) error

	// Evaluate runs a script in the active tab and returns its result.
	Evaluate(script string) (any, error)

	// Content returns the active tab's full HTML.
	Content() (string, error)

	// CurrentURL returns the active tab's address.
	CurrentURL() string

	// Tabs returns the handles of all open tabs in opening order.
	Tabs() []string

	// ActiveTab returns the handle of the tab operations act on.
	ActiveTab() string

	// SwitchTo makes the tab with the given handle active.
	SwitchTo(handle string) error

	// CloseTab closes the tab with the given handle.
	CloseTab(handle string) error

	// WaitForNewTab blocks until exactly one tab beyond those in before
	// exists, and returns its handle. More than one new tab within the
	// bound is an error, as is none.
	WaitForNewTab(before []string, timeout time.Duration) (string, error)

	// FetchBinary retrieves url directly over the session's authenticated
	// HTTP context, bypassing the UI download affordance.
	FetchBinary(ctx context.Context, url string, timeout time.Duration) ([]byte, error)

	// Close releases the browser context and every tab it owns.
	Close() error
}

// NewTabs returns the handles present in current but not in before,
// preserving current's order.
func NewTabs(before, current []string) []string {
	known := make(map[string]struct{}, len(before))
	for _, h := range before {
		known[h] = struct{}{}
	}

	var added []string
	for _, h := range current {
		if _, ok := known[h]; !ok {
			added = append(added, h)
		}
	}
	return added
}

// IsTimeout reports whether an operation failed by exceeding its bound.
// The driver does not expose a typed timeout error, so this matches the
// message it emits.
func IsTimeout(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "timeout")
}
