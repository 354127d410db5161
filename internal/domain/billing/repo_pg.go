package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/medledger/medledger/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Invoice Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const invCols = `id, invoice_number, patient_id, insurance_id, appointment_id,
	total_amount, paid_amount, pending_amount, status, due_date,
	insurance_calculation, notes, version, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.InsuranceID, &inv.AppointmentID,
		&inv.TotalAmount, &inv.PaidAmount, &inv.PendingAmount, &inv.Status, &inv.DueDate,
		&inv.InsuranceCalculation, &inv.Notes, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	return &inv, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO invoice (id, invoice_number, patient_id, insurance_id, appointment_id,
				total_amount, paid_amount, pending_amount, status, due_date,
				insurance_calculation, notes, version, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			inv.ID, inv.InvoiceNumber, inv.PatientID, inv.InsuranceID, inv.AppointmentID,
			inv.TotalAmount, inv.PaidAmount, inv.PendingAmount, inv.Status, inv.DueDate,
			inv.InsuranceCalculation, inv.Notes, inv.Version, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		for _, li := range inv.LineItems {
			_, err := q.Exec(ctx, `
				INSERT INTO invoice_line_item (id, invoice_id, service_id, service_name, quantity,
					unit_price, total_price, insurance_covers, patient_pays)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				li.ID, li.InvoiceID, li.ServiceID, li.ServiceName, li.Quantity,
				li.UnitPrice, li.TotalPrice, li.InsuranceCovers, li.PatientPays)
			if err != nil {
				return fmt.Errorf("insert line item: %w", err)
			}
		}
		return nil
	})
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE id = $1`, id))
}

// bindPG expands slice arguments and rewrites ? placeholders as $n.
func bindPG(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), a, nil
}

func (r *invoiceRepoPG) List(ctx context.Context, q InvoiceQuery) ([]*Invoice, int, error) {
	where, args := q.Where()

	countSQL, countArgs, err := bindPG(`SELECT COUNT(*) FROM invoice`+where, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + invCols + ` FROM invoice` + where + ` ORDER BY created_at DESC, id`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	}
	query, args, err = bindPG(query, args...)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

const lineCols = `id, invoice_id, service_id, service_name, quantity, unit_price, total_price, insurance_covers, patient_pays`

func scanLineItem(row pgx.Row) (*LineItem, error) {
	var li LineItem
	err := row.Scan(&li.ID, &li.InvoiceID, &li.ServiceID, &li.ServiceName, &li.Quantity,
		&li.UnitPrice, &li.TotalPrice, &li.InsuranceCovers, &li.PatientPays)
	return &li, err
}

func (r *invoiceRepoPG) LineItems(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+lineCols+` FROM invoice_line_item WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// Mutate locks the invoice row with SELECT ... FOR UPDATE for the length of
// the transaction, so concurrent mutations of one invoice serialize while
// other invoices are untouched.
func (r *invoiceRepoPG) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Invoice, error) {
	var out *Invoice
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		prevVersion := inv.Version

		effects, err := fn(ctx, inv)
		if err != nil {
			return err
		}

		tag, err := q.Exec(ctx, `
			UPDATE invoice SET paid_amount = $3, pending_amount = $4, status = $5,
				updated_at = $6, version = version + 1
			WHERE id = $1 AND version = $2`,
			inv.ID, prevVersion, inv.PaidAmount, inv.PendingAmount, inv.Status, inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrConcurrentUpdate
		}
		inv.Version = prevVersion + 1

		if effects != nil && effects.Payment != nil {
			p := effects.Payment
			if _, err := q.Exec(ctx, `
				INSERT INTO payment (id, invoice_id, amount, method, paid_at, notes, recorded_by, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				p.ID, p.InvoiceID, p.Amount, p.Method, p.PaidAt, p.Notes, p.RecordedBy, p.CreatedAt); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}
		if effects != nil && effects.Exoneration != nil {
			e := effects.Exoneration
			if _, err := q.Exec(ctx, `
				INSERT INTO exoneration (id, invoice_id, original_amount, exonerated_amount, reason,
					authorized_by, is_printed, printed_at, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				e.ID, e.InvoiceID, e.OriginalAmount, e.ExoneratedAmount, e.Reason,
				e.AuthorizedBy, e.IsPrinted, e.PrintedAt, e.CreatedAt); err != nil {
				return fmt.Errorf("insert exoneration: %w", err)
			}
		}
		out = inv
		return nil
	})
	return out, err
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *paymentRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, amount, method, paid_at, notes, recorded_by, created_at
		FROM payment WHERE invoice_id = $1 ORDER BY paid_at, created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.PaidAt, &p.Notes, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

// =========== Exoneration Repository ===========

type exonerationRepoPG struct{ pool *pgxpool.Pool }

func NewExonerationRepoPG(pool *pgxpool.Pool) ExonerationRepository {
	return &exonerationRepoPG{pool: pool}
}

func (r *exonerationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const exoCols = `id, invoice_id, original_amount, exonerated_amount, reason, authorized_by, is_printed, printed_at, created_at`

func scanExoneration(row pgx.Row) (*Exoneration, error) {
	var e Exoneration
	err := row.Scan(&e.ID, &e.InvoiceID, &e.OriginalAmount, &e.ExoneratedAmount, &e.Reason,
		&e.AuthorizedBy, &e.IsPrinted, &e.PrintedAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExonerationNotFound
	}
	return &e, err
}

func (r *exonerationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Exoneration, error) {
	return scanExoneration(r.conn(ctx).QueryRow(ctx, `SELECT `+exoCols+` FROM exoneration WHERE id = $1`, id))
}

func (r *exonerationRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Exoneration, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+exoCols+` FROM exoneration WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Exoneration
	for rows.Next() {
		e, err := scanExoneration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *exonerationRepoPG) MarkPrinted(ctx context.Context, id uuid.UUID, at time.Time) (*Exoneration, error) {
	return scanExoneration(r.conn(ctx).QueryRow(ctx, `
		UPDATE exoneration SET is_printed = TRUE, printed_at = COALESCE(printed_at, $2)
		WHERE id = $1
		RETURNING `+exoCols, id, at))
}
