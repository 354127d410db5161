package reporting

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type storePG struct{ pool *pgxpool.Pool }

// NewStorePG reads report datasets from Postgres.
func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *storePG) query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	return s.conn(ctx).Query(ctx, sqlx.Rebind(sqlx.DOLLAR, q), a...)
}

func where(pred string) string {
	if pred == "" {
		return ""
	}
	return " WHERE " + pred
}

func (s *storePG) Invoices(ctx context.Context, q billing.InvoiceQuery) ([]*billing.Invoice, error) {
	w, args := q.Where()
	rows, err := s.query(ctx, `
		SELECT id, invoice_number, patient_id, total_amount, paid_amount, pending_amount,
			status, due_date, created_at, updated_at
		FROM invoice`+w+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*billing.Invoice
	byID := make(map[uuid.UUID]*billing.Invoice)
	for rows.Next() {
		var inv billing.Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.TotalAmount, &inv.PaidAmount,
			&inv.PendingAmount, &inv.Status, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &inv)
		byID[inv.ID] = &inv
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	lines, err := s.query(ctx, `
		SELECT li.id, li.invoice_id, li.service_id, li.service_name, li.quantity,
			li.unit_price, li.total_price, li.insurance_covers, li.patient_pays
		FROM invoice_line_item li
		WHERE li.invoice_id IN (SELECT id FROM invoice`+w+`)
		ORDER BY li.invoice_id, li.id`, args...)
	if err != nil {
		return nil, err
	}
	defer lines.Close()
	for lines.Next() {
		var li billing.LineItem
		if err := lines.Scan(&li.ID, &li.InvoiceID, &li.ServiceID, &li.ServiceName, &li.Quantity,
			&li.UnitPrice, &li.TotalPrice, &li.InsuranceCovers, &li.PatientPays); err != nil {
			return nil, err
		}
		if inv, ok := byID[li.InvoiceID]; ok {
			inv.LineItems = append(inv.LineItems, &li)
		}
	}
	return out, lines.Err()
}

func (s *storePG) Exonerations(ctx context.Context, r Range) ([]*billing.Exoneration, error) {
	pred, args := r.Where("created_at")
	rows, err := s.query(ctx, `
		SELECT id, invoice_id, original_amount, exonerated_amount, reason, authorized_by,
			is_printed, printed_at, created_at
		FROM exoneration`+where(pred)+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*billing.Exoneration
	for rows.Next() {
		var e billing.Exoneration
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.OriginalAmount, &e.ExoneratedAmount, &e.Reason,
			&e.AuthorizedBy, &e.IsPrinted, &e.PrintedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *storePG) Appointments(ctx context.Context, r Range) ([]*Appointment, error) {
	pred, args := r.Where("scheduled_at")
	rows, err := s.query(ctx, `
		SELECT id, patient_id, doctor_id, doctor_name, status, scheduled_at
		FROM appointment`+where(pred)+` ORDER BY scheduled_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.DoctorName, &a.Status, &a.ScheduledAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *storePG) Patients(ctx context.Context, r Range) ([]*Patient, error) {
	query := `SELECT id, name, created_at FROM patient`
	var args []interface{}
	if r.Bounded() {
		apPred, apArgs := r.Where("scheduled_at")
		invPred, invArgs := r.Where("created_at")
		query += ` WHERE id IN (SELECT patient_id FROM appointment WHERE ` + apPred + `)
			OR id IN (SELECT patient_id FROM invoice WHERE ` + invPred + `)`
		args = append(apArgs, invArgs...)
	}
	rows, err := s.query(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
