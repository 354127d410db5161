package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceQuery selects invoices by patient, status set and a half-open
// creation window [CreatedFrom, CreatedTo). Zero values mean "any".
type InvoiceQuery struct {
	PatientID   *uuid.UUID
	Statuses    []Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// Limit 0 returns every match.
	Limit  int
	Offset int
}

func (q InvoiceQuery) Validate() error {
	for _, s := range q.Statuses {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, s)
		}
	}
	if q.CreatedFrom != nil && q.CreatedTo != nil && q.CreatedTo.Before(*q.CreatedFrom) {
		return fmt.Errorf("%w: window ends before it starts", ErrInvalidQuery)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	return nil
}

// Matches applies the filter to an in-memory invoice, ignoring paging.
func (q InvoiceQuery) Matches(inv *Invoice) bool {
	if q.PatientID != nil && inv.PatientID != *q.PatientID {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if inv.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.CreatedFrom != nil && inv.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && !inv.CreatedAt.Before(*q.CreatedTo) {
		return false
	}
	return true
}

// StatusStrings returns the status filter as plain strings for SQL binding.
func (q InvoiceQuery) StatusStrings() []string {
	out := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		out[i] = string(s)
	}
	return out
}

// OpenStatuses are the statuses that still carry a collectible balance.
var OpenStatuses = []Status{StatusPending, StatusPartial}

// Where renders the filter as a SQL WHERE clause with ? placeholders. The
// status set binds as a single slice argument for "IN (?)", so callers
// expand it with sqlx.In and rebind for their driver.
func (q InvoiceQuery) Where() (string, []interface{}) {
	var preds []string
	var args []interface{}
	if q.PatientID != nil {
		preds = append(preds, "patient_id = ?")
		args = append(args, *q.PatientID)
	}
	if len(q.Statuses) > 0 {
		preds = append(preds, "status IN (?)")
		args = append(args, q.StatusStrings())
	}
	if q.CreatedFrom != nil {
		preds = append(preds, "created_at >= ?")
		args = append(args, *q.CreatedFrom)
	}
	if q.CreatedTo != nil {
		preds = append(preds, "created_at < ?")
		args = append(args, *q.CreatedTo)
	}
	if len(preds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(preds, " AND "), args
}
