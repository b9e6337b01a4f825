package twofa

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the two-factor authentication subsystem. Configure it through
// [Builder] and treat it as immutable afterwards; all methods are safe for
// concurrent use.
type Engine struct {
	config      Config
	store       ConfigStore
	pending     *pendingChallengeStore
	totp        *totpVerifier
	smsSender   CodeSender
	emailSender CodeSender
	clock       Clock
	logger      *zap.Logger
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close flushes and stops the audit dispatcher. The Engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// sender returns the delivery capability for out-of-band providers, nil for
// self-contained ones.
func (e *Engine) sender(t ProviderType) CodeSender {
	switch t {
	case ProviderSMS:
		return e.smsSender
	case ProviderEmail:
		return e.emailSender
	default:
		return nil
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	user User,
	provider string,
	opErr error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: e.clock.Now(),
		EventType: eventType,
		TenantID:  user.TenantID,
		UserID:    user.UserID,
		Provider:  provider,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
