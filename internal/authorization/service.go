package authorization

import "context"

const (
	ObjectTimeEntry    = "time_entry"
	ObjectRate         = "rate"
	ObjectFinancials   = "financials"
	ObjectExpense      = "expense"
	ObjectInvoice      = "invoice"
	ObjectPayout       = "payout"
	ObjectFinanceAlert = "finance_alert"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionTimeTrack    = "time:track"
	ActionFinanceRead  = "finance:read"
	ActionFinanceWrite = "finance:write"
)

// Service checks whether actor ("user:<id>" or "system") may perform action on object within orgID.
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}
