// Package notify delivers acquisition outcomes to an external webhook.
// Delivery is strictly best-effort: one attempt per run, bounded by a
// timeout, and no failure here ever influences the run's result.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/juridigo/pjefetch/pkg/config"
)

// Statuses reported in a payload. The consumer contract predates this
// implementation, hence the Portuguese values.
const (
	StatusSuccess = "sucesso"
	StatusError   = "erro"
)

// Payload is the outcome body posted to the webhook. Constructed once
// per run and sent at most once.
type Payload struct {
	CaseNumber   string `json:"case_identifier"`
	Status       string `json:"status"`
	ArtifactURL  string `json:"artifact_url,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Dispatcher posts outcome payloads to the configured endpoint.
type Dispatcher struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewDispatcher builds a dispatcher from the webhook configuration.
func NewDispatcher(cfg *config.WebhookConfig, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout()},
		log:    log.With("component", "notify"),
	}
}

// Notify sends the payload. Transport faults and non-2xx responses are
// logged and swallowed; there is no retry.
func (d *Dispatcher) Notify(ctx context.Context, p Payload) {
	if d.url == "" {
		d.log.Warn("no webhook configured, dropping notification", "case", p.CaseNumber, "status", p.Status)
		return
	}

	body, err := json.Marshal(p)
	if err != nil {
		d.log.Error("encoding notification failed", "case", p.CaseNumber, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.log.Error("building notification request failed", "case", p.CaseNumber, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Error("notification delivery failed", "case", p.CaseNumber, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.log.Warn("webhook returned non-success status",
			"case", p.CaseNumber, "status_code", resp.StatusCode)
		return
	}

	d.log.Info("notification delivered", "case", p.CaseNumber, "status", p.Status)
}
