// Package orchestrator coordinates a single case acquisition end to
// end: registry short-circuit, browser run, artifact persistence, and
// the one outbound notification every run produces.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/juridigo/pjefetch/pkg/acquire"
	"github.com/juridigo/pjefetch/pkg/artifacts"
	"github.com/juridigo/pjefetch/pkg/browser"
	"github.com/juridigo/pjefetch/pkg/config"
	"github.com/juridigo/pjefetch/pkg/notify"
	"github.com/juridigo/pjefetch/pkg/registry"
)

// Notifier delivers the per-run status callback. *notify.Dispatcher
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, p notify.Payload)
}

// SessionFactory opens a fresh browser session for one run.
type SessionFactory interface {
	NewSession() (browser.Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func() (browser.Session, error)

func (f SessionFactoryFunc) NewSession() (browser.Session, error) {
	return f()
}

// Orchestrator runs acquisitions. Safe for concurrent use; runs for the
// same identifier are serialized so the second observes the first's
// registry write and skips the browser entirely.
type Orchestrator struct {
	reg      *registry.Registry
	store    *artifacts.Store
	notifier Notifier
	sessions SessionFactory
	creds    config.Credentials
	portal   *config.PortalConfig
	timing   *config.BrowserConfig
	log      *slog.Logger

	mu    sync.Mutex
	locks map[string]*caseLock

	// run executes the acquisition flow on an open session. Replaced in
	// tests so the orchestrator is covered without a browser.
	run func(ctx context.Context, session browser.Session, caseNumber string) acquire.Outcome
}

// New wires an orchestrator from its collaborators.
func New(
	reg *registry.Registry,
	store *artifacts.Store,
	notifier Notifier,
	sessions SessionFactory,
	creds config.Credentials,
	portal *config.PortalConfig,
	timing *config.BrowserConfig,
	log *slog.Logger,
) *Orchestrator {
	o := &Orchestrator{
		reg:      reg,
		store:    store,
		notifier: notifier,
		sessions: sessions,
		creds:    creds,
		portal:   portal,
		timing:   timing,
		log:      log.With("component", "orchestrator"),
		locks:    map[string]*caseLock{},
	}
	o.run = func(ctx context.Context, session browser.Session, caseNumber string) acquire.Outcome {
		return acquire.NewMachine(session, store, creds, portal, timing, log).Run(ctx, caseNumber)
	}
	return o
}

// Acquire obtains the document for caseNumber, records it, and sends
// exactly one notification. The returned error mirrors what the
// notification reported; a skipped duplicate returns nil.
func (o *Orchestrator) Acquire(ctx context.Context, caseNumber string) error {
	caseNumber = strings.TrimSpace(caseNumber)
	runID := uuid.NewString()
	log := o.log.With("run_id", runID, "case", caseNumber)

	if caseNumber == "" {
		err := acquire.NewValidationError("case identifier is empty")
		log.Error("rejected request", "error", err)
		o.notifier.Notify(ctx, notify.Payload{
			CaseNumber:   caseNumber,
			Status:       notify.StatusError,
			ErrorMessage: err.Error(),
		})
		return err
	}

	unlock := o.lockCase(caseNumber)
	defer unlock()

	if done, err := o.shortCircuit(ctx, log, caseNumber); done {
		return err
	}

	log.Info("starting acquisition")
	session, err := o.sessions.NewSession()
	if err != nil {
		log.Error("opening browser session failed", "error", err)
		o.notifier.Notify(ctx, notify.Payload{
			CaseNumber:   caseNumber,
			Status:       notify.StatusError,
			ErrorMessage: err.Error(),
		})
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("closing browser session failed", "error", cerr)
		}
	}()

	outcome := o.run(ctx, session, caseNumber)
	if outcome.Err != nil {
		o.notifier.Notify(ctx, notify.Payload{
			CaseNumber:   caseNumber,
			Status:       notify.StatusError,
			ErrorMessage: outcome.Err.Error(),
		})
		return outcome.Err
	}

	if !o.reg.Save(caseNumber, outcome.ArtifactFile, registry.StatusCompleted) {
		// Another process won the insert. The artifact name is
		// deterministic and the bytes identical, so the run still
		// succeeded.
		log.Warn("registry already holds this case, keeping existing record")
	}
	log.Info("acquisition recorded", "file", outcome.ArtifactFile)

	o.notifier.Notify(ctx, notify.Payload{
		CaseNumber:   caseNumber,
		Status:       notify.StatusSuccess,
		ArtifactURL:  o.store.PublicURL(outcome.ArtifactFile),
		ArtifactPath: outcome.ArtifactPath,
	})
	return nil
}

// shortCircuit answers a request from the registry alone when the case
// was already acquired and its artifact is still on disk. A record
// whose file vanished triggers a full re-acquisition instead.
func (o *Orchestrator) shortCircuit(ctx context.Context, log *slog.Logger, caseNumber string) (bool, error) {
	if !o.reg.Exists(caseNumber) {
		return false, nil
	}
	record, ok := o.reg.Get(caseNumber)
	if !ok {
		return false, nil
	}
	if !o.store.Exists(record.FileName) {
		log.Warn("registry record present but artifact missing, re-acquiring", "file", record.FileName)
		return false, nil
	}

	log.Info("case already acquired, skipping browser run", "file", record.FileName)
	path, err := o.store.Path(record.FileName)
	if err != nil {
		log.Warn("resolving artifact path failed", "file", record.FileName, "error", err)
	}
	o.notifier.Notify(ctx, notify.Payload{
		CaseNumber:   caseNumber,
		Status:       notify.StatusSuccess,
		ArtifactURL:  o.store.PublicURL(record.FileName),
		ArtifactPath: path,
	})
	return true, nil
}

// caseLock serializes runs for one identifier. The reference count lets
// the entry be dropped from the map once the last holder releases it,
// so the map does not grow with every distinct case ever seen.
type caseLock struct {
	mu   sync.Mutex
	refs int
}

// lockCase acquires the per-identifier lock and returns its release
// function.
func (o *Orchestrator) lockCase(caseNumber string) func() {
	o.mu.Lock()
	lock, ok := o.locks[caseNumber]
	if !ok {
		lock = &caseLock{}
		o.locks[caseNumber] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, caseNumber)
		}
		o.mu.Unlock()
	}
}
