package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/timeledger/internal/financials/domain"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/smallbiznis/timeledger/pkg/errs"
)

var secondsPerHour = decimal.NewFromInt(3600)

func hoursOf(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(secondsPerHour)
}

// currencyGuard pins the first currency seen and rejects any other.
type currencyGuard struct {
	currency string
}

func (g *currencyGuard) check(currency string) error {
	if currency == "" {
		return nil
	}
	if g.currency == "" {
		g.currency = currency
		return nil
	}
	if g.currency != currency {
		return domain.ErrCurrencyMismatch
	}
	return nil
}

type pricedEntry struct {
	hours         decimal.Decimal
	billableHours decimal.Decimal
	revenue       decimal.Decimal
	cost          decimal.Decimal
	unpricedCost  bool
}

// pricer prices finalized entries against one preloaded rate snapshot.
type pricer struct {
	resolver *ratedomain.Resolver
	source   ratedomain.Source
	guard    *currencyGuard
	projects map[snowflake.ID]*projectdomain.Project
}

func newPricer(rates []ratedomain.Rate, currency string) *pricer {
	return &pricer{
		resolver: ratedomain.NewResolver(),
		source:   ratedomain.NewSnapshotSource(rates),
		guard:    &currencyGuard{currency: currency},
		projects: map[snowflake.ID]*projectdomain.Project{},
	}
}

// price computes revenue at the billable rate (billable entries only) and cost at
// the internal rate. A missing billable rate fails; a missing internal rate is
// reported as unpriced cost.
func (p *pricer) price(ctx context.Context, entry timeentrydomain.TimeEntry, withRevenue bool) (pricedEntry, error) {
	project := p.projects[entry.ProjectID]
	subject := ratedomain.Subject{
		OrgID:     entry.OrgID,
		ProjectID: entry.ProjectID,
		UserID:    entry.UserID,
		At:        *entry.EndTS,
	}
	if project != nil {
		subject.ClientID = project.ClientID
	}

	hours := hoursOf(entry.DurationSeconds)
	out := pricedEntry{hours: hours, revenue: decimal.Zero, cost: decimal.Zero, billableHours: decimal.Zero}

	if withRevenue && entry.Billable {
		subject.RateType = ratedomain.RateTypeBillable
		billable, err := p.resolver.Resolve(ctx, p.source, subject)
		if err != nil {
			return pricedEntry{}, errs.NewItemError(entry.ID, err)
		}
		if err := p.guard.check(billable.Currency); err != nil {
			return pricedEntry{}, errs.NewItemError(entry.ID, err)
		}
		out.revenue = hours.Mul(billable.HourlyRate)
		out.billableHours = hours
	}

	subject.RateType = ratedomain.RateTypeInternal
	internal, err := p.resolver.Resolve(ctx, p.source, subject)
	switch {
	case errors.Is(err, ratedomain.ErrRateNotFound):
		out.unpricedCost = true
	case err != nil:
		return pricedEntry{}, errs.NewItemError(entry.ID, err)
	default:
		if err := p.guard.check(internal.Currency); err != nil {
			return pricedEntry{}, errs.NewItemError(entry.ID, err)
		}
		out.cost = hours.Mul(internal.HourlyRate)
	}
	return out, nil
}
