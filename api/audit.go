package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/suilink/dispatch"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess      AuditEvent = "login_success"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLogout            AuditEvent = "logout"
	AuditLogoutFailure     AuditEvent = "logout_failure"
	AuditTransactionSigned AuditEvent = "transaction_signed"
	AuditSignFailure       AuditEvent = "sign_failure"
	AuditMessageSigned     AuditEvent = "message_signed"
	AuditConfigSaved       AuditEvent = "config_saved"
	AuditConfigRejected    AuditEvent = "config_rejected"
	AuditSessionsCleared   AuditEvent = "sessions_cleared"
	AuditAuthFailure       AuditEvent = "auth_failure"
	AuditAuthRateLimited   AuditEvent = "auth_rate_limited"
)

type eventPair struct {
	success AuditEvent
	failure AuditEvent
}

// auditEvents maps the state-changing request types to audit events. Reads
// are not audited.
var auditEvents = map[dispatch.Type]eventPair{
	dispatch.TypeStartLogin:          {AuditLoginSuccess, AuditLoginFailure},
	dispatch.TypeLogoutAccount:       {AuditLogout, AuditLogoutFailure},
	dispatch.TypeSignAndExecute:      {AuditTransactionSigned, AuditSignFailure},
	dispatch.TypeSignPersonalMessage: {AuditMessageSigned, AuditSignFailure},
	dispatch.TypeSaveConfig:          {AuditConfigSaved, AuditConfigRejected},
	dispatch.TypeClearSessions:       {AuditSessionsCleared, AuditLogoutFailure},
}

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logFailure logs a failed action with its reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
