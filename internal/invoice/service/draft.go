package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	"github.com/smallbiznis/timeledger/internal/invoice/domain"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/smallbiznis/timeledger/pkg/errs"
)

var secondsPerHour = decimal.NewFromInt(3600)

type draftedLines struct {
	lines       []domain.Line
	currency    string
	total       decimal.Decimal
	entryIDs    []snowflake.ID
	expenseIDs  []snowflake.ID
	periodStart *time.Time
	periodEnd   *time.Time
}

// lineGroup accumulates entries sharing a task (or description) and a resolved rate.
type lineGroup struct {
	description string
	rate        decimal.Decimal
	seconds     int64
}

// buildLines prices every entry at the billable rate in force at its end and groups
// the result by task, falling back to description. Entries in one group billed at
// different rates become separate lines. Expenses follow as one line each.
// Rates are never converted: a resolved rate in a currency other than the
// project's fails the draft with ErrCurrencyMismatch.
func buildLines(ctx context.Context, project *projectdomain.Project, entries []timeentrydomain.TimeEntry, expenses []expensedomain.Expense, rates []ratedomain.Rate) (draftedLines, error) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].StartTS.Equal(entries[j].StartTS) {
			return entries[i].StartTS.Before(entries[j].StartTS)
		}
		return entries[i].ID < entries[j].ID
	})
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].IncurredOn.Equal(expenses[j].IncurredOn) {
			return expenses[i].IncurredOn.Before(expenses[j].IncurredOn)
		}
		return expenses[i].ID < expenses[j].ID
	})

	out := draftedLines{currency: project.Currency, total: decimal.Zero}
	resolver := ratedomain.NewResolver()
	source := ratedomain.NewSnapshotSource(rates)

	order := make([]string, 0)
	groups := make(map[string]*lineGroup)
	for _, entry := range entries {
		if entry.EndTS == nil {
			continue
		}
		resolved, err := resolver.Resolve(ctx, source, ratedomain.Subject{
			OrgID:     entry.OrgID,
			ProjectID: entry.ProjectID,
			ClientID:  project.ClientID,
			UserID:    entry.UserID,
			RateType:  ratedomain.RateTypeBillable,
			At:        *entry.EndTS,
		})
		if err != nil {
			return draftedLines{}, errs.NewItemError(entry.ID, err)
		}
		if out.currency == "" {
			out.currency = resolved.Currency
		}
		if resolved.Currency != out.currency {
			return draftedLines{}, errs.NewItemError(entry.ID, domain.ErrCurrencyMismatch)
		}

		groupKey, description := groupOf(entry)
		key := groupKey + "|" + resolved.HourlyRate.String()
		group, ok := groups[key]
		if !ok {
			group = &lineGroup{description: description, rate: resolved.HourlyRate}
			groups[key] = group
			order = append(order, key)
		}
		group.seconds += entry.DurationSeconds

		out.entryIDs = append(out.entryIDs, entry.ID)
		if out.periodStart == nil || entry.StartTS.Before(*out.periodStart) {
			start := entry.StartTS
			out.periodStart = &start
		}
		if out.periodEnd == nil || entry.EndTS.After(*out.periodEnd) {
			end := *entry.EndTS
			out.periodEnd = &end
		}
	}

	for _, key := range order {
		group := groups[key]
		hours := decimal.NewFromInt(group.seconds).Div(secondsPerHour)
		amount := hours.Mul(group.rate).Round(2)
		out.lines = append(out.lines, domain.Line{
			Kind:        domain.LineKindTime,
			Description: group.description,
			Hours:       hours.Round(4),
			Rate:        group.rate,
			Amount:      amount,
		})
		out.total = out.total.Add(amount)
	}

	for _, expense := range expenses {
		if out.currency == "" {
			out.currency = expense.Currency
		}
		if expense.Currency != out.currency {
			return draftedLines{}, errs.NewItemError(expense.ID, domain.ErrCurrencyMismatch)
		}
		amount := expense.Amount.Round(2)
		out.lines = append(out.lines, domain.Line{
			Kind:        domain.LineKindExpense,
			Description: expenseDescription(expense),
			Hours:       decimal.Zero,
			Rate:        decimal.Zero,
			Amount:      amount,
		})
		out.total = out.total.Add(amount)
		out.expenseIDs = append(out.expenseIDs, expense.ID)
	}
	return out, nil
}

func groupOf(entry timeentrydomain.TimeEntry) (string, string) {
	description := strings.TrimSpace(entry.Description)
	if entry.TaskID != nil {
		if description == "" {
			description = "Task " + entry.TaskID.String()
		}
		return "task:" + entry.TaskID.String(), description
	}
	if description == "" {
		description = "General"
	}
	return "description:" + description, description
}

func expenseDescription(expense expensedomain.Expense) string {
	description := strings.TrimSpace(expense.Description)
	category := strings.TrimSpace(expense.Category)
	switch {
	case description == "":
		return category
	case category == "":
		return description
	default:
		return category + ": " + description
	}
}
