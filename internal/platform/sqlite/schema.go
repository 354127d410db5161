package sqlite

// schema mirrors migrations/001_core.sql. Amounts are TEXT so decimals
// round-trip exactly; timestamps are DATETIME text in UTC.
const schema = `
CREATE TABLE IF NOT EXISTS service (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    base_price TEXT NOT NULL,
    price_type TEXT NOT NULL CHECK (price_type IN ('FIXED', 'DYNAMIC')),
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS coverage_rule (
    id TEXT PRIMARY KEY,
    insurance_id TEXT NOT NULL,
    service_id TEXT NOT NULL REFERENCES service(id),
    coverage_percent TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_coverage_rule_active
    ON coverage_rule (insurance_id, service_id) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS patient (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS appointment (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    doctor_id TEXT NOT NULL,
    doctor_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    scheduled_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_appointment_scheduled ON appointment (scheduled_at);

CREATE TABLE IF NOT EXISTS invoice (
    id TEXT PRIMARY KEY,
    invoice_number TEXT NOT NULL UNIQUE,
    patient_id TEXT NOT NULL,
    insurance_id TEXT,
    appointment_id TEXT,
    total_amount TEXT NOT NULL,
    paid_amount TEXT NOT NULL,
    pending_amount TEXT NOT NULL,
    status TEXT NOT NULL,
    due_date DATETIME,
    insurance_calculation TEXT,
    notes TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoice_created ON invoice (created_at);
CREATE INDEX IF NOT EXISTS idx_invoice_status ON invoice (status);
CREATE INDEX IF NOT EXISTS idx_invoice_patient ON invoice (patient_id);

CREATE TABLE IF NOT EXISTS invoice_line_item (
    id TEXT PRIMARY KEY,
    invoice_id TEXT NOT NULL REFERENCES invoice(id) ON DELETE CASCADE,
    service_id TEXT NOT NULL,
    service_name TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    unit_price TEXT NOT NULL,
    total_price TEXT NOT NULL,
    insurance_covers TEXT NOT NULL,
    patient_pays TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_item_invoice ON invoice_line_item (invoice_id);

CREATE TABLE IF NOT EXISTS payment (
    id TEXT PRIMARY KEY,
    invoice_id TEXT NOT NULL REFERENCES invoice(id),
    amount TEXT NOT NULL,
    method TEXT NOT NULL,
    paid_at DATETIME NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    recorded_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payment_invoice ON payment (invoice_id);

CREATE TABLE IF NOT EXISTS exoneration (
    id TEXT PRIMARY KEY,
    invoice_id TEXT NOT NULL REFERENCES invoice(id),
    original_amount TEXT NOT NULL,
    exonerated_amount TEXT NOT NULL,
    reason TEXT NOT NULL,
    authorized_by TEXT NOT NULL,
    is_printed INTEGER NOT NULL DEFAULT 0,
    printed_at DATETIME,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exoneration_invoice ON exoneration (invoice_id);
CREATE INDEX IF NOT EXISTS idx_exoneration_created ON exoneration (created_at);

CREATE TABLE IF NOT EXISTS ledger_audit_event (
    id TEXT PRIMARY KEY,
    entity TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    action TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT '',
    before_state TEXT,
    after_state TEXT,
    occurred_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON ledger_audit_event (entity, entity_id);
`
