package renewal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/passbill/pkg/async"
	"github.com/platinummonkey/passbill/pkg/billing"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/storage"
)

// Renewer lists and renews due subscriptions. *billing.Subscriptions
// implements it.
type Renewer interface {
	ListDue(ctx context.Context, limit int) ([]*storage.Subscription, error)
	Renew(ctx context.Context, orgID, id int64) (*billing.TransitionResult, error)
}

// Config tunes a renewal run
type Config struct {
	// Workers is the number of renewals in flight at once
	Workers int
	// BatchSize caps the subscriptions renewed per run
	BatchSize int
	// TaskTimeout bounds a single renewal, collection included
	TaskTimeout time.Duration
}

// DefaultConfig returns the settings used when a field is left zero
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		BatchSize:   500,
		TaskTimeout: 30 * time.Second,
	}
}

// Failure is a subscription that could not be renewed
type Failure struct {
	OrgID          int64
	SubscriptionID int64
	Kind           billing.Kind
	Err            error
}

// Summary reports one renewal run
type Summary struct {
	Due      int
	Renewed  int
	Failed   int
	Charged  map[string]decimal.Decimal
	Failures []Failure
	Duration time.Duration
}

// Runner renews every due subscription once per run. A subscription that
// is several cycles behind advances one cycle per run.
type Runner struct {
	subs    Renewer
	cfg     Config
	metrics *observability.Metrics
	log     logrus.FieldLogger
	pool    *observability.Logger
}

// NewRunner creates a runner. metrics may be nil.
func NewRunner(subs Renewer, cfg Config, metrics *observability.Metrics, log logrus.FieldLogger) *Runner {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaults.TaskTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		subs:    subs,
		cfg:     cfg,
		metrics: metrics,
		log:     log.WithField("component", "renewal"),
		pool:    observability.NewLogger(observability.WarnLevel, nil),
	}
}

// RunOnce renews the subscriptions due now. Individual failures are
// reported in the summary; only a failure to list due subscriptions is
// returned as an error.
func (r *Runner) RunOnce(ctx context.Context) (*Summary, error) {
	started := time.Now()
	summary := &Summary{Charged: make(map[string]decimal.Decimal)}

	due, err := r.subs.ListDue(ctx, r.cfg.BatchSize)
	if err != nil {
		summary.Duration = time.Since(started)
		r.metrics.RecordRenewalRun(0, 0, summary.Duration, err)
		r.log.WithError(err).Error("Failed to list due subscriptions")
		return summary, fmt.Errorf("renewal run: %w", err)
	}
	summary.Due = len(due)
	if len(due) == 0 {
		summary.Duration = time.Since(started)
		r.metrics.RecordRenewalRun(0, 0, summary.Duration, nil)
		r.log.Debug("No subscriptions due")
		return summary, nil
	}

	r.log.WithField("due", len(due)).Info("Renewing due subscriptions")

	var mu sync.Mutex
	errs := async.Batch(ctx, due, r.cfg.Workers, "renewal", r.cfg.TaskTimeout, r.pool,
		func(ctx context.Context, sub *storage.Subscription) error {
			res, err := r.subs.Renew(ctx, sub.Cycle.OrgID, sub.ID)
			if err != nil {
				return err
			}

			entry := r.log.WithFields(logrus.Fields{
				"org_id":          sub.Cycle.OrgID,
				"subscription_id": sub.ID,
				"token":           res.Token,
				"amount":          res.Amount.String(),
				"new_end_date":    res.NewEndDate.Format(time.RFC3339),
			})
			entry.Info("Subscription renewed")

			if res.Amount.IsPositive() {
				mu.Lock()
				summary.Charged[res.Token] = summary.Charged[res.Token].Add(res.Amount)
				mu.Unlock()
			}
			return nil
		})

	for i, err := range errs {
		if err == nil {
			summary.Renewed++
			continue
		}
		sub := due[i]
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{
			OrgID:          sub.Cycle.OrgID,
			SubscriptionID: sub.ID,
			Kind:           billing.KindOf(err),
			Err:            err,
		})
		r.log.WithFields(logrus.Fields{
			"org_id":          sub.Cycle.OrgID,
			"subscription_id": sub.ID,
			"kind":            billing.KindOf(err).String(),
		}).WithError(err).Warn("Subscription renewal failed")
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		a, b := summary.Failures[i], summary.Failures[j]
		if a.OrgID != b.OrgID {
			return a.OrgID < b.OrgID
		}
		return a.SubscriptionID < b.SubscriptionID
	})

	summary.Duration = time.Since(started)
	r.metrics.RecordRenewalRun(summary.Renewed, summary.Failed, summary.Duration, nil)
	r.log.WithFields(logrus.Fields{
		"due":         summary.Due,
		"renewed":     summary.Renewed,
		"failed":      summary.Failed,
		"duration_ms": summary.Duration.Milliseconds(),
	}).Info("Renewal run complete")

	return summary, nil
}
