package audit

import (
	"context"
	"time"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/errors"
)

var _ service.AuditService = (*Noop)(nil)

// Noop is the audit service used when auditing is disabled. Records vanish
// and stats report the feature as absent.
type Noop struct{}

// NewNoop creates the disabled audit service.
func NewNoop() *Noop { return &Noop{} }

// Record implements service.AuditService.
func (*Noop) Record(context.Context, models.Violation) {}

// Stats implements service.AuditService.
func (*Noop) Stats(context.Context, time.Time, int) (*models.ViolationStats, error) {
	return nil, errors.ErrNotFound("audit is disabled")
}

// Close implements service.AuditService.
func (*Noop) Close() error { return nil }
