package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// tabPollInterval is how often WaitForNewTab re-checks the open tab set.
const tabPollInterval = 250 * time.Millisecond

// portalSession implements Session over a Playwright browser context.
type portalSession struct {
	browser playwright.Browser
	context playwright.BrowserContext
	active  playwright.Page

	mu      sync.Mutex
	handles map[playwright.Page]string
	nextTab int

	log *slog.Logger
}

// handleFor returns the stable handle for a page, assigning one on
// first sight.
func (s *portalSession) handleFor(page playwright.Page) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[page]; ok {
		return h
	}
	s.nextTab++
	h := fmt.Sprintf("tab-%d", s.nextTab)
	s.handles[page] = h
	return h
}

func (s *portalSession) pageFor(handle string) (playwright.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for page, h := range s.handles {
		if h == handle {
			return page, true
		}
	}
	return nil, false
}

func (s *portalSession) Open(url string, timeout time.Duration) error {
	_, err := s.active.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *portalSession) Reload(timeout time.Duration) error {
	_, err := s.active.Reload(playwright.PageReloadOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (s *portalSession) WaitFor(selector string, timeout time.Duration) error {
	state := playwright.WaitForSelectorStateVisible
	_, err := s.active.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   state,
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

func (s *portalSession) Fill(selector, value string, timeout time.Duration) error {
	err := s.active.Fill(selector, value, playwright.PageFillOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("fill %q failed: %w", selector, err)
	}
	return nil
}

func (s *portalSession) Click(selector string, timeout time.Duration) error {
	err := s.active.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}
	return nil
}

func (s *portalSession) WaitForInFrame(frameSelector, selector string, timeout time.Duration) error {
	state := playwright.WaitForSelectorStateVisible
	err := s.active.FrameLocator(frameSelector).Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("wait for %q in frame %q failed: %w", selector, frameSelector, err)
	}
	return nil
}

func (s *portalSession) FillInFrame(frameSelector, selector, value string, timeout time.Duration) error {
	err := s.active.FrameLocator(frameSelector).Locator(selector).Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("fill %q in frame %q failed: %w", selector, frameSelector, err)
	}
	return nil
}

func (s *portalSession) ClickInFrame(frameSelector, selector string, timeout time.Duration) error {
	err := s.active.FrameLocator(frameSelector).Locator(selector).Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("click %q in frame %q failed: %w", selector, frameSelector, err)
	}
	return nil
}

func (s *portalSession) Evaluate(script string) (any, error) {
	result, err := s.active.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	return result, nil
}

func (s *portalSession) Content() (string, error) {
	content, err := s.active.Content()
	if err != nil {
		return "", fmt.Errorf("reading page content failed: %w", err)
	}
	return content, nil
}

func (s *portalSession) CurrentURL() string {
	return s.active.URL()
}

func (s *portalSession) Tabs() []string {
	pages := s.context.Pages()
	handles := make([]string, 0, len(pages))
	for _, page := range pages {
		handles = append(handles, s.handleFor(page))
	}
	return handles
}

func (s *portalSession) ActiveTab() string {
	return s.handleFor(s.active)
}

func (s *portalSession) SwitchTo(handle string) error {
	page, ok := s.pageFor(handle)
	if !ok {
		return fmt.Errorf("unknown tab %q", handle)
	}
	s.active = page
	// Best effort; headless contexts have no real window stacking.
	if err := page.BringToFront(); err != nil {
		s.log.Debug("bring to front failed", "tab", handle, "error", err)
	}
	return nil
}

func (s *portalSession) CloseTab(handle string) error {
	page, ok := s.pageFor(handle)
	if !ok {
		return fmt.Errorf("unknown tab %q", handle)
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("closing tab %q failed: %w", handle, err)
	}

	s.mu.Lock()
	delete(s.handles, page)
	s.mu.Unlock()
	return nil
}

func (s *portalSession) WaitForNewTab(before []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		added := NewTabs(before, s.Tabs())
		switch len(added) {
		case 0:
			// keep waiting
		case 1:
			return added[0], nil
		default:
			return "", fmt.Errorf("expected one new tab, found %d", len(added))
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout waiting for new tab after %s", timeout)
		}
		time.Sleep(tabPollInterval)
	}
}

func (s *portalSession) FetchBinary(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	resp, err := s.context.Request().Get(url, playwright.APIRequestContextGetOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s failed: %w", url, err)
	}
	if resp.Status() < 200 || resp.Status() > 299 {
		return nil, fmt.Errorf("fetching %s returned status %d", url, resp.Status())
	}

	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("reading response body failed: %w", err)
	}
	return body, nil
}

func (s *portalSession) Close() error {
	// Ignore per-resource errors, continue cleanup.
	for _, page := range s.context.Pages() {
		_ = page.Close()
	}
	_ = s.context.Close()
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("closing browser failed: %w", err)
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
