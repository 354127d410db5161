package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/internal/domain/coverage"
)

// =========== Invoice Repository ===========

type invoiceRepo struct{ d *DB }

func (d *DB) Invoices() billing.InvoiceRepository { return &invoiceRepo{d: d} }

const invCols = `id, invoice_number, patient_id, insurance_id, appointment_id,
	total_amount, paid_amount, pending_amount, status, due_date,
	insurance_calculation, notes, version, created_at, updated_at`

// invoiceRow carries the calculation snapshot as JSON text.
type invoiceRow struct {
	billing.Invoice
	Calc sql.NullString `db:"insurance_calculation"`
}

func (row *invoiceRow) decode() (*billing.Invoice, error) {
	inv := row.Invoice
	if row.Calc.Valid && row.Calc.String != "" {
		var calc coverage.Calculation
		if err := json.Unmarshal([]byte(row.Calc.String), &calc); err != nil {
			return nil, fmt.Errorf("decode insurance calculation of %s: %w", inv.ID, err)
		}
		inv.InsuranceCalculation = &calc
	}
	return &inv, nil
}

func encodeCalc(c *coverage.Calculation) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (r *invoiceRepo) get(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*billing.Invoice, error) {
	var row invoiceRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+invCols+` FROM invoice WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.decode()
}

func (r *invoiceRepo) Create(ctx context.Context, inv *billing.Invoice) error {
	calc, err := encodeCalc(inv.InsuranceCalculation)
	if err != nil {
		return fmt.Errorf("encode insurance calculation: %w", err)
	}
	return r.d.inTx(ctx, func(ctx context.Context) error {
		q := r.d.ext(ctx)
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoice (id, invoice_number, patient_id, insurance_id, appointment_id,
				total_amount, paid_amount, pending_amount, status, due_date,
				insurance_calculation, notes, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.InvoiceNumber, inv.PatientID, inv.InsuranceID, inv.AppointmentID,
			inv.TotalAmount, inv.PaidAmount, inv.PendingAmount, inv.Status, utcPtr(inv.DueDate),
			calc, inv.Notes, inv.Version, inv.CreatedAt.UTC(), inv.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		for _, li := range inv.LineItems {
			_, err := q.ExecContext(ctx, `
				INSERT INTO invoice_line_item (id, invoice_id, service_id, service_name, quantity,
					unit_price, total_price, insurance_covers, patient_pays)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				li.ID, li.InvoiceID, li.ServiceID, li.ServiceName, li.Quantity,
				li.UnitPrice, li.TotalPrice, li.InsuranceCovers, li.PatientPays)
			if err != nil {
				return fmt.Errorf("insert line item: %w", err)
			}
		}
		return nil
	})
}

func (r *invoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.get(ctx, r.d.ext(ctx), id)
}

func (r *invoiceRepo) List(ctx context.Context, q billing.InvoiceQuery) ([]*billing.Invoice, int, error) {
	where, args := q.Where()
	countSQL, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM invoice`+where, utc(args)...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := sqlx.GetContext(ctx, r.d.ext(ctx), &total, countSQL, countArgs...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + invCols + ` FROM invoice` + where + ` ORDER BY created_at DESC, id`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	}
	query, args, err = sqlx.In(query, utc(args)...)
	if err != nil {
		return nil, 0, err
	}
	var rows []invoiceRow
	if err := sqlx.SelectContext(ctx, r.d.ext(ctx), &rows, query, args...); err != nil {
		return nil, 0, err
	}
	items := make([]*billing.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].decode()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, nil
}

const lineCols = `id, invoice_id, service_id, service_name, quantity, unit_price, total_price, insurance_covers, patient_pays`

func (r *invoiceRepo) LineItems(ctx context.Context, invoiceID uuid.UUID) ([]*billing.LineItem, error) {
	var items []*billing.LineItem
	err := sqlx.SelectContext(ctx, r.d.ext(ctx), &items,
		`SELECT `+lineCols+` FROM invoice_line_item WHERE invoice_id = ? ORDER BY id`, invoiceID)
	return items, err
}

// Mutate reads the invoice outside the write transaction and applies the
// update only if the version is unchanged. A writer that lost the race gets
// ErrConcurrentUpdate and its transaction, audit rows included, rolls back.
func (r *invoiceRepo) Mutate(ctx context.Context, id uuid.UUID, fn billing.MutateFunc) (*billing.Invoice, error) {
	inv, err := r.get(ctx, r.d.ext(ctx), id)
	if err != nil {
		return nil, err
	}
	prevVersion := inv.Version

	err = r.d.inTx(ctx, func(ctx context.Context) error {
		q := r.d.ext(ctx)
		effects, err := fn(ctx, inv)
		if err != nil {
			return err
		}

		res, err := q.ExecContext(ctx, `
			UPDATE invoice SET paid_amount = ?, pending_amount = ?, status = ?,
				updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			inv.PaidAmount, inv.PendingAmount, inv.Status, inv.UpdatedAt.UTC(), inv.ID, prevVersion)
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return billing.ErrConcurrentUpdate
		}
		inv.Version = prevVersion + 1

		if effects != nil && effects.Payment != nil {
			p := effects.Payment
			if _, err := q.ExecContext(ctx, `
				INSERT INTO payment (id, invoice_id, amount, method, paid_at, notes, recorded_by, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.InvoiceID, p.Amount, p.Method, p.PaidAt.UTC(), p.Notes, p.RecordedBy, p.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}
		if effects != nil && effects.Exoneration != nil {
			e := effects.Exoneration
			if _, err := q.ExecContext(ctx, `
				INSERT INTO exoneration (id, invoice_id, original_amount, exonerated_amount, reason,
					authorized_by, is_printed, printed_at, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.InvoiceID, e.OriginalAmount, e.ExoneratedAmount, e.Reason,
				e.AuthorizedBy, e.IsPrinted, utcPtr(e.PrintedAt), e.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("insert exoneration: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// =========== Payment Repository ===========

type paymentRepo struct{ d *DB }

func (d *DB) Payments() billing.PaymentRepository { return &paymentRepo{d: d} }

func (r *paymentRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*billing.Payment, error) {
	var items []*billing.Payment
	err := sqlx.SelectContext(ctx, r.d.ext(ctx), &items, `
		SELECT id, invoice_id, amount, method, paid_at, notes, recorded_by, created_at
		FROM payment WHERE invoice_id = ? ORDER BY paid_at, created_at`, invoiceID)
	return items, err
}

// =========== Exoneration Repository ===========

type exonerationRepo struct{ d *DB }

func (d *DB) Exonerations() billing.ExonerationRepository { return &exonerationRepo{d: d} }

const exoCols = `id, invoice_id, original_amount, exonerated_amount, reason, authorized_by, is_printed, printed_at, created_at`

func (r *exonerationRepo) GetByID(ctx context.Context, id uuid.UUID) (*billing.Exoneration, error) {
	var e billing.Exoneration
	err := sqlx.GetContext(ctx, r.d.ext(ctx), &e, `SELECT `+exoCols+` FROM exoneration WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrExonerationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *exonerationRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*billing.Exoneration, error) {
	var items []*billing.Exoneration
	err := sqlx.SelectContext(ctx, r.d.ext(ctx), &items,
		`SELECT `+exoCols+` FROM exoneration WHERE invoice_id = ? ORDER BY created_at`, invoiceID)
	return items, err
}

func (r *exonerationRepo) MarkPrinted(ctx context.Context, id uuid.UUID, at time.Time) (*billing.Exoneration, error) {
	res, err := r.d.ext(ctx).ExecContext(ctx, `
		UPDATE exoneration SET is_printed = 1, printed_at = COALESCE(printed_at, ?)
		WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, billing.ErrExonerationNotFound
	}
	return r.GetByID(ctx, id)
}
