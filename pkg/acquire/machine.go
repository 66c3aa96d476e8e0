// Package acquire drives one case acquisition through the PJe portal:
// SSO login, process consultation, search, and document retrieval from
// the viewer tab. The flow is a linear state machine; any fault ends the
// run with a classified failure and no state is retried automatically.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/juridigo/pjefetch/pkg/artifacts"
	"github.com/juridigo/pjefetch/pkg/browser"
	"github.com/juridigo/pjefetch/pkg/casenum"
	"github.com/juridigo/pjefetch/pkg/config"
)

// State names the steps of an acquisition run.
type State string

const (
	StateStart             State = "start"
	StateAuthenticating    State = "authenticating"
	StateAuthenticated     State = "authenticated"
	StateConsultationReady State = "consultation_ready"
	StateSearching         State = "searching"
	StateResultsFound      State = "results_found"
	StateDocumentOpened    State = "document_opened"
	StateDownloadMenuOpen  State = "download_menu_open"
	StateDownloadTriggered State = "download_triggered"
	StateArtifactRetrieved State = "artifact_retrieved"
	StateFailed            State = "failed"
)

// Poll intervals for condition waits that have no single selector to
// block on (page content markers, new-tab appearance with URL checks).
const (
	markerPollInterval = 500 * time.Millisecond
	viewerPollInterval = time.Second
)

// Outcome is the terminal result of one run. Not persisted; the
// orchestrator projects it into a registry write and a notification.
type Outcome struct {
	CaseNumber   string
	State        State
	ArtifactPath string
	ArtifactFile string
	Err          error
}

// DocumentSink persists validated document bytes and reports where they
// landed. *artifacts.Store satisfies it.
type DocumentSink interface {
	WritePDF(name string, data []byte) (string, error)
}

// Machine sequences browser operations for one case. A machine owns its
// session for the duration of Run and must not be reused afterwards.
type Machine struct {
	session browser.Session
	sink    DocumentSink
	creds   config.Credentials
	portal  *config.PortalConfig
	timing  *config.BrowserConfig
	log     *slog.Logger
	state   State
}

// NewMachine builds a machine over an already-open session.
func NewMachine(
	session browser.Session,
	sink DocumentSink,
	creds config.Credentials,
	portal *config.PortalConfig,
	timing *config.BrowserConfig,
	log *slog.Logger,
) *Machine {
	return &Machine{
		session: session,
		sink:    sink,
		creds:   creds,
		portal:  portal,
		timing:  timing,
		log:     log.With("component", "acquire"),
		state:   StateStart,
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// Run executes the full acquisition for caseNumber. The case number is
// parsed before any browser interaction so a malformed identifier never
// costs a remote round trip.
func (m *Machine) Run(ctx context.Context, caseNumber string) Outcome {
	parts, err := casenum.Parse(caseNumber)
	if err != nil {
		return m.fail(caseNumber, wrapError(KindValidation, err, "parsing case number %q", caseNumber))
	}

	m.transition(StateAuthenticating)
	if err := m.login(); err != nil {
		return m.fail(caseNumber, err)
	}
	m.transition(StateAuthenticated)

	if err := m.openConsultation(); err != nil {
		return m.fail(caseNumber, err)
	}
	m.transition(StateConsultationReady)

	m.transition(StateSearching)
	if err := m.search(parts); err != nil {
		return m.fail(caseNumber, err)
	}
	m.transition(StateResultsFound)

	docTab, baseline, openErr := m.openDocument(caseNumber)
	if openErr != nil {
		return m.fail(caseNumber, openErr)
	}
	m.transition(StateDocumentOpened)

	if err := m.openDownloadMenu(); err != nil {
		return m.fail(caseNumber, err)
	}
	m.transition(StateDownloadMenuOpen)

	if err := m.triggerDownload(); err != nil {
		return m.fail(caseNumber, err)
	}
	m.transition(StateDownloadTriggered)

	path, file, retrieveErr := m.retrieveArtifact(ctx, caseNumber, docTab, baseline)
	if retrieveErr != nil {
		return m.fail(caseNumber, retrieveErr)
	}
	m.transition(StateArtifactRetrieved)

	m.log.Info("acquisition complete", "case", caseNumber, "file", file)
	return Outcome{
		CaseNumber:   caseNumber,
		State:        StateArtifactRetrieved,
		ArtifactPath: path,
		ArtifactFile: file,
	}
}

func (m *Machine) transition(next State) {
	m.log.Debug("state transition", "from", m.state, "to", next)
	m.state = next
}

func (m *Machine) fail(caseNumber string, err *Error) Outcome {
	m.log.Error("acquisition failed", "case", caseNumber, "state", m.state, "kind", err.Kind, "error", err)
	m.state = StateFailed
	return Outcome{CaseNumber: caseNumber, State: StateFailed, Err: err}
}

// login opens the portal entry point, authenticates inside the embedded
// SSO frame and verifies the session by content markers. Credentials are
// static within a run, so a failed verification is terminal.
func (m *Machine) login() *Error {
	if err := m.session.Open(m.portal.LoginURL, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "opening login page")
	}
	if err := m.session.WaitFor("body", m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "waiting for login page")
	}

	if err := m.session.WaitForInFrame(selectorSSOFrame, selectorUsername, m.timing.LoginTimeout()); err != nil {
		return wrapError(KindAuthentication, err, "SSO frame not accessible")
	}
	if err := m.session.FillInFrame(selectorSSOFrame, selectorUsername, m.creds.Username, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindAuthentication, err, "entering username")
	}
	if err := m.session.FillInFrame(selectorSSOFrame, selectorPassword, m.creds.Password, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindAuthentication, err, "entering password")
	}
	if err := m.session.ClickInFrame(selectorSSOFrame, selectorLoginSubmit, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindAuthentication, err, "submitting login form")
	}

	if err := m.waitForLoginMarkers(); err != nil {
		return err
	}

	// The portal renders a broken shell right after SSO; one reload
	// settles it.
	if err := m.session.Reload(m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "post-login reload")
	}
	if err := m.session.WaitFor("body", m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "waiting for reloaded page")
	}
	return nil
}

// waitForLoginMarkers polls the top-level page content until any known
// post-login marker appears, bounded by the login timeout.
func (m *Machine) waitForLoginMarkers() *Error {
	deadline := time.Now().Add(m.timing.LoginTimeout())
	for {
		content, err := m.session.Content()
		if err == nil {
			lower := strings.ToLower(content)
			for _, marker := range loginMarkers {
				if strings.Contains(lower, marker) {
					m.log.Debug("login verified", "marker", marker)
					return nil
				}
			}
		}

		if time.Now().After(deadline) {
			return newError(KindAuthentication, "login not verified: no post-login content marker found")
		}
		time.Sleep(markerPollInterval)
	}
}

func (m *Machine) openConsultation() *Error {
	if err := m.session.Open(m.portal.ConsultationURL, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "opening consultation page")
	}
	if err := m.session.WaitFor(selectorFieldSequential, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "waiting for consultation form")
	}
	return nil
}

// search fills the decomposed case number into the form and submits it.
func (m *Machine) search(parts casenum.Parts) *Error {
	fields := []struct {
		selector string
		value    string
	}{
		{selectorFieldSequential, parts.Sequential},
		{selectorFieldDigit, parts.Digit},
		{selectorFieldYear, parts.Year},
		{selectorFieldCourt, parts.Court},
	}
	for _, f := range fields {
		if err := m.session.Fill(f.selector, f.value, m.timing.DefaultTimeout()); err != nil {
			return wrapError(KindNavigation, err, "filling search field %s", f.selector)
		}
	}

	if err := m.session.Click(selectorSearchButton, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindNavigation, err, "submitting search")
	}
	return nil
}

// openDocument clicks the result link for the case and switches into the
// tab it opens. Exactly one new tab is expected. Returns the document
// tab handle and the tab baseline to diff against for the viewer.
func (m *Machine) openDocument(caseNumber string) (string, []string, *Error) {
	linkSelector := fmt.Sprintf("a[title*='%s']", caseNumber)
	if err := m.session.WaitFor(linkSelector, m.timing.DefaultTimeout()); err != nil {
		return "", nil, wrapError(KindNotFound, err, "no result link for case %s", caseNumber)
	}

	before := m.session.Tabs()
	if err := m.session.Click(linkSelector, m.timing.DefaultTimeout()); err != nil {
		return "", nil, wrapError(KindNotFound, err, "opening result link for case %s", caseNumber)
	}

	docTab, err := m.session.WaitForNewTab(before, m.timing.DefaultTimeout())
	if err != nil {
		return "", nil, wrapExact(KindNotFound, err, "document tab for case %s did not open", caseNumber)
	}
	if err := m.session.SwitchTo(docTab); err != nil {
		return "", nil, wrapError(KindNotFound, err, "switching to document tab")
	}
	if err := m.session.WaitFor("body", m.timing.DefaultTimeout()); err != nil {
		return "", nil, wrapError(KindNavigation, err, "waiting for document tab")
	}

	return docTab, m.session.Tabs(), nil
}

func (m *Machine) openDownloadMenu() *Error {
	if err := m.session.WaitFor(selectorDownloadMenu, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindDownload, err, "download menu not present")
	}
	if err := m.session.Click(selectorDownloadMenu, m.timing.DefaultTimeout()); err != nil {
		return wrapError(KindDownload, err, "opening download menu")
	}
	return nil
}

// triggerDownload clicks the download action via script so the fallback
// by label works when the generated id is stale.
func (m *Machine) triggerDownload() *Error {
	result, err := m.session.Evaluate(downloadTriggerScript)
	if err != nil {
		return wrapError(KindDownload, err, "triggering download")
	}
	if clicked, ok := result.(bool); !ok || !clicked {
		return newError(KindDownload, "download control not found")
	}
	return nil
}

// retrieveArtifact waits for the viewer tab serving the document from
// the trusted host, fetches its bytes over the authenticated session,
// validates and stores them, then closes the viewer and returns to the
// document tab.
func (m *Machine) retrieveArtifact(ctx context.Context, caseNumber, docTab string, baseline []string) (string, string, *Error) {
	deadline := time.Now().Add(m.timing.DownloadTimeout())

	for {
		for _, tab := range browser.NewTabs(baseline, m.session.Tabs()) {
			if err := m.session.SwitchTo(tab); err != nil {
				continue
			}
			url := m.session.CurrentURL()
			if !strings.Contains(url, m.portal.DocumentHost) {
				// Viewer may still be navigating; check again next tick.
				continue
			}

			m.log.Debug("document viewer detected", "url", url)
			data, err := m.session.FetchBinary(ctx, url, m.timing.DefaultTimeout())
			if err != nil {
				return "", "", wrapError(KindDownload, err, "fetching document")
			}

			file := artifacts.FileName(caseNumber)
			path, err := m.sink.WritePDF(file, data)
			if err != nil {
				return "", "", wrapError(KindDownload, err, "storing document")
			}

			if err := m.session.CloseTab(tab); err != nil {
				m.log.Warn("closing viewer tab failed", "tab", tab, "error", err)
			}
			if err := m.session.SwitchTo(docTab); err != nil {
				m.log.Warn("returning to document tab failed", "error", err)
			}
			return path, file, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", "", newError(KindTimeout, "document viewer did not appear within %s", m.timing.DownloadTimeout())
		}
		wait := viewerPollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return "", "", wrapError(KindTimeout, ctx.Err(), "waiting for document viewer")
		case <-time.After(wait):
		}
	}
}
