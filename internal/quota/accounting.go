package quota

import (
	"context"

	"go.uber.org/zap"

	"github.com/printquota/server/internal/shared/errors"
	"github.com/printquota/server/internal/storage"
)

// JobRequest describes one processed job to be accounted.
type JobRequest struct {
	JobID  string
	Action Decision
	Pages  int
	Ink    []PageInk

	BillingCode        string
	PrinterPageCounter int

	FileName  string
	Title     string
	Copies    int
	Options   string
	HostName  string
	SizeBytes int64
	MD5Sum    string

	Precomputed Estimate
}

// ApplyJob charges a job against the quota record and appends the history
// entry, in one backend transaction where the backend supports them. Denied
// jobs are recorded in the history but consume nothing. The page counters of
// the target printer and all its ancestors move together; the user's balance
// moves unless the user's limiting mode exempts it.
func (e *Engine) ApplyJob(ctx context.Context, quota *storage.UserQuota, req JobRequest) (*storage.Job, error) {
	price, err := e.JobPrice(ctx, quota, req.Pages, req.Ink)
	if err != nil {
		return nil, err
	}

	accounted := !req.Action.Denied() && req.Pages > 0
	job := &storage.Job{
		UserName:           quota.User.Name,
		PrinterName:        quota.Printer.Name,
		JobID:              req.JobID,
		PrinterPageCounter: req.PrinterPageCounter,
		Action:             req.Action.Action(),
		FileName:           req.FileName,
		Title:              req.Title,
		Copies:             req.Copies,
		Options:            req.Options,
		HostName:           req.HostName,
		SizeBytes:          req.SizeBytes,
		MD5Sum:             req.MD5Sum,
		BillingCode:        req.BillingCode,
	}
	if req.Precomputed.Pages > 0 {
		job.PrecomputedSize = storage.Some(req.Precomputed.Pages)
		job.PrecomputedPrice = storage.Some(req.Precomputed.Price)
	}
	if accounted {
		job.JobSize = storage.Some(req.Pages)
		job.JobPrice = storage.Some(price)
	}

	err = e.transact(ctx, func() error {
		if accounted {
			if err := e.moveCounters(ctx, quota, req.Pages); err != nil {
				return err
			}
			if price != 0 && quota.User.LimitBy != storage.LimitNoChange {
				if err := e.store.ConsumeUserBalance(ctx, quota.User, price); err != nil {
					return err
				}
			}
			if err := e.moveBillingCode(ctx, req.BillingCode, req.Pages, price); err != nil {
				return err
			}
		}
		return e.store.AddJobToHistory(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	if accounted {
		e.flushDerived(ctx, quota)
		e.metrics.RecordJob(quota.Printer.Name, req.Pages)
		e.log.Info("job accounted",
			zap.String("user", quota.User.Name),
			zap.String("printer", quota.Printer.Name),
			zap.Int("pages", req.Pages),
			zap.Float64("price", price),
		)
	}
	return job, nil
}

// Refund reverses a previously accounted job: page counters on the target
// printer and its ancestors, the user's balance with a ledger entry, and the
// billing code. The history entry is marked refunded, which makes a second
// refund of the same job a rejected no-op.
func (e *Engine) Refund(ctx context.Context, job *storage.Job, reason string) error {
	if !job.Refundable() {
		e.log.Warn("refund rejected",
			zap.Int64("job", job.Ident),
			zap.String("action", job.Action),
		)
		return errors.Invariant("job %d with action %s cannot be refunded", job.Ident, job.Action)
	}
	pages := job.JobSize.Value()
	price := job.JobPrice.OrElse(0)

	user, err := e.store.User(ctx, job.UserName)
	if err != nil {
		return err
	}
	printer, err := e.store.Printer(ctx, job.PrinterName)
	if err != nil {
		return err
	}

	var quota *storage.UserQuota
	err = e.transact(ctx, func() error {
		if user.Exists && printer.Exists {
			quota, err = e.store.UserQuota(ctx, user, printer)
			if err != nil {
				return err
			}
			if err := e.moveCounters(ctx, quota, -pages); err != nil {
				return err
			}
		}
		if user.Exists && price != 0 {
			if err := e.store.RefundUser(ctx, user, price, reason); err != nil {
				return err
			}
		}
		if err := e.moveBillingCode(ctx, job.BillingCode, -pages, -price); err != nil {
			return err
		}
		return e.store.MarkJobRefunded(ctx, job)
	})
	if err != nil {
		return err
	}

	if quota != nil {
		e.flushDerived(ctx, quota)
	}
	e.metrics.RecordRefund()
	e.log.Info("job refunded",
		zap.Int64("job", job.Ident),
		zap.String("user", job.UserName),
		zap.String("printer", job.PrinterName),
		zap.Int("pages", pages),
		zap.Float64("price", price),
	)
	return nil
}

// moveCounters shifts the page counters of the quota record and every
// ancestor record by delta.
func (e *Engine) moveCounters(ctx context.Context, quota *storage.UserQuota, delta int) error {
	if quota.Exists {
		if err := e.store.IncrementUserQuotaPages(ctx, quota, delta); err != nil {
			return err
		}
	}
	parents, err := e.store.ParentUserQuotas(ctx, quota)
	if err != nil {
		return err
	}
	for _, parent := range parents {
		if err := e.store.IncrementUserQuotaPages(ctx, parent, delta); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) moveBillingCode(ctx context.Context, name string, pages int, price float64) error {
	if name == "" {
		return nil
	}
	code, err := e.store.BillingCode(ctx, name)
	if err != nil {
		return err
	}
	if !code.Exists {
		return nil
	}
	return e.store.ConsumeBillingCode(ctx, code, pages, price)
}

// flushDerived drops cached records whose derived values went stale: group
// quotas on the affected printers and the groups the user belongs to. Runs
// after commit so readers never observe uncommitted sums.
func (e *Engine) flushDerived(ctx context.Context, quota *storage.UserQuota) {
	e.store.FlushGroupQuotasForPrinter(quota.Printer.Name)
	if ancestors, err := e.store.ParentPrinters(ctx, quota.Printer); err == nil {
		for _, ancestor := range ancestors {
			e.store.FlushGroupQuotasForPrinter(ancestor.Name)
		}
	}
	if groups, err := e.store.UserGroups(ctx, quota.User); err == nil {
		for _, group := range groups {
			e.store.FlushGroup(group.Name)
		}
	}
	e.store.FlushLastJob(quota.Printer.Name)
}

// transact wraps fn in a backend transaction when the backend has them. On
// a non-atomic backend fn runs directly and partial failures can leave
// counters ahead of the history.
func (e *Engine) transact(ctx context.Context, fn func() error) error {
	if !e.store.Atomic() {
		return fn()
	}
	if err := e.store.Begin(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := e.store.Rollback(ctx); rbErr != nil {
			e.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return e.store.Commit(ctx)
}
