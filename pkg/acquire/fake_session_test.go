package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juridigo/pjefetch/pkg/browser"
)

// fakeSession is a scripted browser.Session. Operations succeed by
// default; individual operations fail when an error is registered under
// their name (or "op:selector" for a specific target). Click and
// Evaluate hooks let tests simulate the portal opening new tabs.
type fakeSession struct {
	mu      sync.Mutex
	tabs    []string
	urls    map[string]string
	active  string
	content string

	evalResult any
	evalHook   func()
	clickHooks map[string]func()
	failures   map[string]error
	fetched    map[string][]byte

	calls  []string
	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		tabs:       []string{"tab-1"},
		active:     "tab-1",
		urls:       map[string]string{"tab-1": "https://pje.tjmg.jus.br/pje/login.seam"},
		content:    "Quadro de Avisos - Consulta de Processo",
		evalResult: true,
		clickHooks: map[string]func(){},
		failures:   map[string]error{},
		fetched:    map[string][]byte{},
	}
}

func (f *fakeSession) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeSession) failure(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		if err, ok := f.failures[k]; ok {
			return err
		}
	}
	return nil
}

// addTab simulates the portal opening a new tab at url.
func (f *fakeSession) addTab(handle, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs = append(f.tabs, handle)
	f.urls[handle] = url
}

func (f *fakeSession) Open(url string, _ time.Duration) error {
	f.record("Open " + url)
	return f.failure("Open")
}

func (f *fakeSession) Reload(_ time.Duration) error {
	f.record("Reload")
	return f.failure("Reload")
}

func (f *fakeSession) WaitFor(selector string, _ time.Duration) error {
	f.record("WaitFor " + selector)
	return f.failure("WaitFor:"+selector, "WaitFor")
}

func (f *fakeSession) Fill(selector, value string, _ time.Duration) error {
	f.record(fmt.Sprintf("Fill %s=%s", selector, value))
	return f.failure("Fill:"+selector, "Fill")
}

func (f *fakeSession) Click(selector string, _ time.Duration) error {
	f.record("Click " + selector)
	if err := f.failure("Click:"+selector, "Click"); err != nil {
		return err
	}
	if hook, ok := f.clickHooks[selector]; ok {
		hook()
	}
	return nil
}

func (f *fakeSession) WaitForInFrame(frameSelector, selector string, _ time.Duration) error {
	f.record(fmt.Sprintf("WaitForInFrame %s %s", frameSelector, selector))
	return f.failure("WaitForInFrame:"+selector, "WaitForInFrame")
}

func (f *fakeSession) FillInFrame(frameSelector, selector, value string, _ time.Duration) error {
	f.record(fmt.Sprintf("FillInFrame %s %s=%s", frameSelector, selector, value))
	return f.failure("FillInFrame:"+selector, "FillInFrame")
}

func (f *fakeSession) ClickInFrame(frameSelector, selector string, _ time.Duration) error {
	f.record(fmt.Sprintf("ClickInFrame %s %s", frameSelector, selector))
	return f.failure("ClickInFrame:"+selector, "ClickInFrame")
}

func (f *fakeSession) Evaluate(script string) (any, error) {
	f.record("Evaluate")
	if err := f.failure("Evaluate"); err != nil {
		return nil, err
	}
	if f.evalHook != nil {
		f.evalHook()
	}
	return f.evalResult, nil
}

func (f *fakeSession) Content() (string, error) {
	f.record("Content")
	if err := f.failure("Content"); err != nil {
		return "", err
	}
	return f.content, nil
}

func (f *fakeSession) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urls[f.active]
}

func (f *fakeSession) Tabs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tabs))
	copy(out, f.tabs)
	return out
}

func (f *fakeSession) ActiveTab() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeSession) SwitchTo(handle string) error {
	f.record("SwitchTo " + handle)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.tabs {
		if h == handle {
			f.active = handle
			return nil
		}
	}
	return fmt.Errorf("unknown tab %q", handle)
}

func (f *fakeSession) CloseTab(handle string) error {
	f.record("CloseTab " + handle)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.tabs {
		if h == handle {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			delete(f.urls, handle)
			return nil
		}
	}
	return fmt.Errorf("unknown tab %q", handle)
}

func (f *fakeSession) WaitForNewTab(before []string, timeout time.Duration) (string, error) {
	f.record("WaitForNewTab")
	added := browser.NewTabs(before, f.Tabs())
	switch len(added) {
	case 0:
		return "", errors.New("no new tab appeared")
	case 1:
		return added[0], nil
	default:
		return "", fmt.Errorf("expected one new tab, found %d", len(added))
	}
}

func (f *fakeSession) FetchBinary(_ context.Context, url string, _ time.Duration) ([]byte, error) {
	f.record("FetchBinary " + url)
	if err := f.failure("FetchBinary"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.fetched[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no fixture for %s", url)
}

func (f *fakeSession) Close() error {
	f.record("Close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
