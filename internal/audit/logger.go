// Package audit implements the security audit trail described in section
// 10 of the ambient stack: every tenant isolation violation, config
// violation, and GDPR data-subject request produces exactly one AuditEvent
// before control returns to its caller. It is deliberately a separate sink
// from infrastructure/logging's operational logrus logger — audit records
// are compliance artifacts, not debugging output, and must survive even
// when operational log levels are turned down.
package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphrag/orchestrator/domain"
)

// Config controls where and how audit events are written.
type Config struct {
	// Path is a file to append audit lines to, in addition to stdout: JSON
	// lines, or zerolog's console format when Pretty is set. Empty means
	// stdout only.
	Path string
	// Pretty switches to zerolog's console writer, for local development.
	Pretty bool
}

// ConfigFromEnv reads AUDIT_LOG_PATH and ENVIRONMENT, mirroring
// infrastructure/logging.NewFromEnv's env-driven construction.
func ConfigFromEnv() Config {
	return Config{
		Path:   os.Getenv("AUDIT_LOG_PATH"),
		Pretty: os.Getenv("ENVIRONMENT") != "production",
	}
}

// SecurityAuditLogger is a structured, append-only sink for AuditEvents,
// grounded on the Python audit_log.py SecurityAuditLogger: one log call per
// event, plus a bounded in-memory ring of recent events for introspection
// (health endpoints, admin tooling) without re-reading the log file.
type SecurityAuditLogger struct {
	logger zerolog.Logger
	closer io.Closer

	mu     sync.Mutex
	recent []domain.AuditEvent
	cap    int
}

// New constructs a SecurityAuditLogger from Config. Callers should Close it
// at shutdown if Path was set, to flush the underlying file.
func New(cfg Config) (*SecurityAuditLogger, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer

	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("channel", "security.audit").
		Logger()

	return &SecurityAuditLogger{logger: logger, closer: closer, cap: 500}, nil
}

// Close flushes the underlying audit log file, if one was configured.
func (a *SecurityAuditLogger) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Log records an AuditEvent. Timestamp and EventID are assigned by the
// caller (domain layer) so that callers composing multi-step operations
// can correlate an event with the error it accompanies.
func (a *SecurityAuditLogger) Log(event domain.AuditEvent) {
	evt := a.logger.Info()
	evt = evt.
		Str("event_id", event.EventID).
		Str("action", string(event.Action)).
		Str("tenant_id", event.TenantID).
		Str("principal", event.Principal).
		Str("outcome", string(event.Outcome))
	for k, v := range event.Detail {
		evt = evt.Interface(k, v)
	}
	evt.Msg("audit event")

	a.mu.Lock()
	a.recent = append(a.recent, event)
	if len(a.recent) > a.cap {
		a.recent = a.recent[len(a.recent)-a.cap:]
	}
	a.mu.Unlock()
}

// Recent returns up to limit of the most recently logged events, newest
// last, mirroring the Python implementation's recent_events().
func (a *SecurityAuditLogger) Recent(limit int) []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit <= 0 || limit > len(a.recent) {
		limit = len(a.recent)
	}
	out := make([]domain.AuditEvent, limit)
	copy(out, a.recent[len(a.recent)-limit:])
	return out
}

// ClearBuffer empties the in-memory recent-events ring without affecting
// what has already been written to the log sink.
func (a *SecurityAuditLogger) ClearBuffer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = nil
}

// Isolation logs a TenantIsolationViolation. Every call site that returns
// one of these errors must call this first, per section 7's "always
// audit-logged" requirement.
func (a *SecurityAuditLogger) Isolation(tenantID, principal, reason string) {
	a.Log(domain.AuditEvent{
		Action:    domain.AuditIsolationViolation,
		TenantID:  tenantID,
		Principal: principal,
		Timestamp: time.Now(),
		Outcome:   domain.AuditOutcomeDenied,
		Detail:    map[string]interface{}{"reason": reason},
	})
}

// ConfigViolation logs a ConfigViolation error.
func (a *SecurityAuditLogger) ConfigViolation(setting, reason string) {
	a.Log(domain.AuditEvent{
		Action:    domain.AuditConfigViolation,
		Timestamp: time.Now(),
		Outcome:   domain.AuditOutcomeDenied,
		Detail:    map[string]interface{}{"setting": setting, "reason": reason},
	})
}

// RateLimitHit logs a throttled request.
func (a *SecurityAuditLogger) RateLimitHit(tenantID, principal string) {
	a.Log(domain.AuditEvent{
		Action:    domain.AuditRateLimitHit,
		TenantID:  tenantID,
		Principal: principal,
		Timestamp: time.Now(),
		Outcome:   domain.AuditOutcomeDenied,
	})
}

// QueryReject logs a rejected query (rate limited, budget exhausted, or
// tenant-filter validation failure that did not rise to an isolation
// violation).
func (a *SecurityAuditLogger) QueryReject(tenantID, principal, reason string) {
	a.Log(domain.AuditEvent{
		Action:    domain.AuditQueryReject,
		TenantID:  tenantID,
		Principal: principal,
		Timestamp: time.Now(),
		Outcome:   domain.AuditOutcomeDenied,
		Detail:    map[string]interface{}{"reason": reason},
	})
}
