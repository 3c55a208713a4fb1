package domain

import "time"

// AuditAction tags the kind of tenant-sensitive decision an AuditEvent
// records. Unlike operational log lines, every value here is something a
// security reviewer would want to enumerate and query independently.
type AuditAction string

const (
	AuditTenantAccessDenied AuditAction = "tenant_access_denied"
	AuditIsolationViolation AuditAction = "isolation_violation"
	AuditConfigViolation    AuditAction = "config_violation"
	AuditGDPRExport         AuditAction = "gdpr_export"
	AuditGDPRErasure        AuditAction = "gdpr_erasure"
	AuditQueryReject        AuditAction = "query_reject"
	AuditRateLimitHit       AuditAction = "rate_limit_hit"
	AuditIngestStart        AuditAction = "ingest_start"
	AuditIngestComplete     AuditAction = "ingest_complete"
	AuditIngestFail         AuditAction = "ingest_fail"
)

// AuditOutcome tags whether the audited operation was allowed, denied, or
// errored. Recorded regardless of which branch the caller took.
type AuditOutcome string

const (
	AuditOutcomeAllowed AuditOutcome = "allowed"
	AuditOutcomeDenied  AuditOutcome = "denied"
	AuditOutcomeError   AuditOutcome = "error"
)

// AuditEvent is a structured, append-only record of a tenant-sensitive
// decision. An IsolationViolation or ConfigViolation anywhere in the system
// must produce exactly one AuditEvent before the triggering error returns
// to its caller.
type AuditEvent struct {
	EventID   string
	Action    AuditAction
	TenantID  string
	Principal string
	Timestamp time.Time
	Outcome   AuditOutcome
	Detail    map[string]interface{}
}
