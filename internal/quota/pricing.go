package quota

import (
	"context"

	"github.com/printquota/server/internal/storage"
)

// PageInk maps ink channel names to coverage percentages for one page.
// A slice of these describes a job page by page; pages beyond the slice are
// priced at the plain per-page price.
type PageInk map[string]float64

// JobPrice computes what a job of the given size costs on the quota's
// printer. Every printer in the chain charges its per-job price plus its
// per-page price for each page; ink coverage scales the per-page price by
// the channel coefficients of the target printer. The user's overcharging
// factor multiplies the total; a factor of zero means the user is never
// charged.
func (e *Engine) JobPrice(ctx context.Context, quota *storage.UserQuota, pages int, ink []PageInk) (float64, error) {
	if pages == 0 || quota.User.OverCharge == 0 {
		return 0, nil
	}

	chain := []*storage.Printer{quota.Printer}
	ancestors, err := e.store.ParentPrinters(ctx, quota.Printer)
	if err != nil {
		return 0, err
	}
	chain = append(chain, ancestors...)

	coefs := e.coefficients(quota.Printer)
	var total float64
	for _, printer := range chain {
		total += printer.PricePerJob
		if len(ink) == 0 {
			total += float64(pages) * printer.PricePerPage
			continue
		}
		for page := 0; page < pages; page++ {
			if page >= len(ink) {
				total += printer.PricePerPage
				continue
			}
			for channel, percent := range ink[page] {
				coef := 1.0
				if c, ok := coefs[channel]; ok {
					coef = c
				}
				total += coef * printer.PricePerPage / 100.0 * percent
			}
		}
	}

	if quota.User.OverCharge != 1.0 {
		total *= quota.User.OverCharge
	}
	return total, nil
}

// coefficients resolves the printer's ink coefficient table, caching it on
// the entity.
func (e *Engine) coefficients(printer *storage.Printer) map[string]float64 {
	if coefs, ok := printer.Coefficients(); ok {
		return coefs
	}
	coefs := e.cfg.Coefficients(printer.Name)
	printer.SetCoefficients(coefs)
	return coefs
}
