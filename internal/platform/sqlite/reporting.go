package sqlite

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/internal/domain/reporting"
)

type reportStore struct{ d *DB }

// ReportStore reads report datasets from the embedded database.
func (d *DB) ReportStore() reporting.Store { return &reportStore{d: d} }

func (s *reportStore) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	q, a, err := sqlx.In(query, utc(args)...)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, s.d.ext(ctx), dest, q, a...)
}

func where(pred string) string {
	if pred == "" {
		return ""
	}
	return " WHERE " + pred
}

func (s *reportStore) Invoices(ctx context.Context, q billing.InvoiceQuery) ([]*billing.Invoice, error) {
	w, args := q.Where()
	var out []*billing.Invoice
	if err := s.selectIn(ctx, &out, `
		SELECT id, invoice_number, patient_id, total_amount, paid_amount, pending_amount,
			status, due_date, created_at, updated_at
		FROM invoice`+w+` ORDER BY created_at, id`, args...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	var lines []*billing.LineItem
	if err := s.selectIn(ctx, &lines, `
		SELECT li.id, li.invoice_id, li.service_id, li.service_name, li.quantity,
			li.unit_price, li.total_price, li.insurance_covers, li.patient_pays
		FROM invoice_line_item li
		WHERE li.invoice_id IN (SELECT id FROM invoice`+w+`)
		ORDER BY li.invoice_id, li.id`, args...); err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*billing.Invoice, len(out))
	for _, inv := range out {
		byID[inv.ID] = inv
	}
	for _, li := range lines {
		if inv, ok := byID[li.InvoiceID]; ok {
			inv.LineItems = append(inv.LineItems, li)
		}
	}
	return out, nil
}

func (s *reportStore) Exonerations(ctx context.Context, r reporting.Range) ([]*billing.Exoneration, error) {
	pred, args := r.Where("created_at")
	var out []*billing.Exoneration
	err := s.selectIn(ctx, &out, `SELECT `+exoCols+` FROM exoneration`+where(pred)+` ORDER BY created_at, id`, args...)
	return out, err
}

func (s *reportStore) Appointments(ctx context.Context, r reporting.Range) ([]*reporting.Appointment, error) {
	pred, args := r.Where("scheduled_at")
	var out []*reporting.Appointment
	err := s.selectIn(ctx, &out, `
		SELECT id, patient_id, doctor_id, doctor_name, status, scheduled_at
		FROM appointment`+where(pred)+` ORDER BY scheduled_at, id`, args...)
	return out, err
}

func (s *reportStore) Patients(ctx context.Context, r reporting.Range) ([]*reporting.Patient, error) {
	query := `SELECT id, name, created_at FROM patient`
	var args []interface{}
	if r.Bounded() {
		apPred, apArgs := r.Where("scheduled_at")
		invPred, invArgs := r.Where("created_at")
		query += ` WHERE id IN (SELECT patient_id FROM appointment WHERE ` + apPred + `)
			OR id IN (SELECT patient_id FROM invoice WHERE ` + invPred + `)`
		args = append(apArgs, invArgs...)
	}
	var out []*reporting.Patient
	err := s.selectIn(ctx, &out, query+` ORDER BY created_at, id`, args...)
	return out, err
}
