package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/printquota/server/internal/shared/metrics"
	"github.com/printquota/server/internal/storage"
)

// Engine makes quota decisions and applies accounting.
type Engine struct {
	store   *storage.Storage
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Options configures an Engine. Now overrides the clock in tests.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// New creates an Engine over the given storage.
func New(store *storage.Storage, cfg Config, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, cfg: cfg, log: log, metrics: opts.Metrics, now: now}
}

// Estimate is the pre-job guess at what the job will consume.
type Estimate struct {
	Pages int
	Price float64
}

// CheckUser decides whether the user may print on the quota's printer.
// Group limits are checked first and their outcome is final: a denial
// rejects the job and a warning is returned without consulting the user's
// own record. Otherwise the user's record is evaluated together with its
// ancestors, keeping the most restrictive outcome.
func (e *Engine) CheckUser(ctx context.Context, quota *storage.UserQuota, est Estimate) (Decision, error) {
	if quota.Printer.PassThrough {
		return e.decided(quota, DecisionAllow), nil
	}
	if d := bypass(quota.User); d != "" {
		return e.decided(quota, d), nil
	}

	warned := false
	groups, err := e.store.UserGroups(ctx, quota.User)
	if err != nil {
		return "", err
	}
	for _, group := range groups {
		if group.LimitBy == storage.LimitNoQuota {
			continue
		}
		d, err := e.CheckGroup(ctx, group, quota.Printer, est)
		if err != nil {
			return "", err
		}
		if d.Denied() {
			return e.decided(quota, d), nil
		}
		if d == DecisionWarn {
			warned = true
		}
	}
	if warned {
		return e.decided(quota, DecisionWarn), nil
	}

	var d Decision
	if quota.User.LimitBy == storage.LimitBalance {
		d = e.evalBalance(quota.User.AccountBalance, quota.User.OverCharge, quota.Printer.Name, est)
	} else {
		d, err = e.evalUserPages(ctx, quota, est)
		if err != nil {
			return "", err
		}
	}
	return e.decided(quota, d), nil
}

// CheckGroup decides whether the group's limits admit one more job on the
// printer. Only existing quota records take part.
func (e *Engine) CheckGroup(ctx context.Context, group *storage.Group, printer *storage.Printer, est Estimate) (Decision, error) {
	if group.LimitBy == storage.LimitNoQuota || group.LimitBy == storage.LimitNoChange {
		return DecisionAllow, nil
	}
	if group.LimitBy == storage.LimitBalance {
		// An unknown balance means no member has one, which counts as 0.
		val := group.AccountBalance.OrElse(0)
		strict := e.cfg.PrinterEnforcement(printer.Name) == EnforcementStrict
		if strict {
			val -= est.Price
		}
		d := DecisionAllow
		switch {
		case val <= e.cfg.BalanceZero():
			d = DecisionDeny
		case val <= e.cfg.PoorMan():
			d = DecisionWarn
		}
		if strict && val == e.cfg.BalanceZero() {
			d = DecisionWarn
		}
		return d, nil
	}

	quota, err := e.store.GroupQuota(ctx, group, printer)
	if err != nil {
		return "", err
	}
	records := make([]*storage.GroupQuota, 0, 4)
	if quota.Exists {
		records = append(records, quota)
	}
	parents, err := e.store.ParentGroupQuotas(ctx, quota)
	if err != nil {
		return "", err
	}
	records = append(records, parents...)

	d := DecisionAllow
	for _, record := range records {
		rd, err := e.evalGroupPages(ctx, record, est)
		if err != nil {
			return "", err
		}
		d = worse(d, rd)
		if d.Denied() {
			break
		}
	}
	return d, nil
}

// evalUserPages evaluates the user's own record and its ancestors. A missing
// record falls back to the printer policy, but existing ancestor records are
// still consulted and can tighten the outcome.
func (e *Engine) evalUserPages(ctx context.Context, quota *storage.UserQuota, est Estimate) (Decision, error) {
	d := fallback(e.cfg.PrinterPolicy(quota.Printer.Name))
	if quota.Exists {
		var err error
		d, err = e.evalPageRecord(ctx, pageRecord{
			printer:   quota.Printer.Name,
			counter:   quota.PageCounter,
			soft:      quota.SoftLimit,
			hard:      quota.HardLimit,
			dateLimit: quota.DateLimit,
			persistDeadline: func(deadline time.Time) error {
				return e.store.SetUserQuotaDateLimit(ctx, quota, deadline)
			},
		}, est)
		if err != nil {
			return "", err
		}
	}
	if d.Denied() {
		return d, nil
	}
	parents, err := e.store.ParentUserQuotas(ctx, quota)
	if err != nil {
		return "", err
	}
	for _, parent := range parents {
		pd, err := e.evalPageRecord(ctx, pageRecord{
			printer:   parent.Printer.Name,
			counter:   parent.PageCounter,
			soft:      parent.SoftLimit,
			hard:      parent.HardLimit,
			dateLimit: parent.DateLimit,
			persistDeadline: func(deadline time.Time) error {
				return e.store.SetUserQuotaDateLimit(ctx, parent, deadline)
			},
		}, est)
		if err != nil {
			return "", err
		}
		d = worse(d, pd)
		if d.Denied() {
			break
		}
	}
	return d, nil
}

func (e *Engine) evalGroupPages(ctx context.Context, quota *storage.GroupQuota, est Estimate) (Decision, error) {
	return e.evalPageRecord(ctx, pageRecord{
		printer:   quota.Printer.Name,
		counter:   quota.PageCounter,
		soft:      quota.SoftLimit,
		hard:      quota.HardLimit,
		dateLimit: quota.DateLimit,
		persistDeadline: func(deadline time.Time) error {
			return e.store.SetGroupQuotaDateLimit(ctx, quota, deadline)
		},
	}, est)
}

// pageRecord is the common shape of a user or group quota record as seen by
// the page-limit arithmetic.
type pageRecord struct {
	printer         string
	counter         int
	soft            storage.Option[int]
	hard            storage.Option[int]
	dateLimit       storage.Option[time.Time]
	persistDeadline func(time.Time) error
}

// evalPageRecord applies the page-limit rules to one record. Under strict
// enforcement the estimated pages are counted as already printed. Crossing
// the soft limit for the first time starts the grace period; within it the
// job prints with a warning, past it the job is denied.
func (e *Engine) evalPageRecord(_ context.Context, rec pageRecord, est Estimate) (Decision, error) {
	counter := rec.counter
	if e.cfg.PrinterEnforcement(rec.printer) == EnforcementStrict {
		counter += est.Pages
	}

	soft, hasSoft := rec.soft.Get()
	hard, hasHard := rec.hard.Get()
	switch {
	case hasSoft:
		if counter < soft {
			return DecisionAllow, nil
		}
		if !hasHard || counter >= hard {
			return DecisionDeny, nil
		}
		if deadline, ok := rec.dateLimit.Get(); ok {
			if e.now().Before(deadline) {
				return DecisionWarn, nil
			}
			return DecisionDeny, nil
		}
		deadline := e.now().Add(e.cfg.GraceDelay(rec.printer))
		if err := rec.persistDeadline(deadline); err != nil {
			return "", err
		}
		return DecisionWarn, nil
	case hasHard:
		if counter < hard {
			return DecisionAllow, nil
		}
		return DecisionDeny, nil
	}
	// No limits set: the record only accumulates usage.
	return DecisionAllow, nil
}

// evalBalance applies the balance rules. The exact-zero case under strict
// enforcement warns instead of denying: the job spends the balance down to
// the zero point but not past it.
func (e *Engine) evalBalance(balance storage.Option[float64], overCharge float64, printer string, est Estimate) Decision {
	bal, known := balance.Get()
	if !known {
		return fallback(e.cfg.PrinterPolicy(printer))
	}
	if overCharge == 0 {
		return DecisionAllow
	}
	strict := e.cfg.PrinterEnforcement(printer) == EnforcementStrict
	val := bal
	if strict {
		val -= est.Price
	}
	d := DecisionAllow
	switch {
	case val <= e.cfg.BalanceZero():
		d = DecisionDeny
	case val <= e.cfg.PoorMan():
		d = DecisionWarn
	}
	if strict && val == e.cfg.BalanceZero() {
		d = DecisionWarn
	}
	return d
}

// ExceedsMaxJobSize reports whether a job of the given page count is over
// the applicable page ceiling. The quota-level ceiling overrides the
// printer's, which overrides the configured global one.
func (e *Engine) ExceedsMaxJobSize(quota *storage.UserQuota, pages int) bool {
	if limit, ok := quota.MaxJobSize.Get(); ok {
		return pages > limit
	}
	if limit, ok := quota.Printer.MaxJobSize.Get(); ok {
		return pages > limit
	}
	if limit, ok := e.cfg.MaxJobSize(quota.Printer.Name); ok {
		return pages > limit
	}
	return false
}

func (e *Engine) decided(quota *storage.UserQuota, d Decision) Decision {
	e.metrics.RecordDecision(string(d))
	e.log.Debug("quota decision",
		zap.String("user", quota.User.Name),
		zap.String("printer", quota.Printer.Name),
		zap.String("decision", string(d)),
	)
	return d
}
