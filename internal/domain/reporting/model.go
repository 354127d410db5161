// Package reporting turns fetched ledger state into the composite financial
// report. The calculators here are pure; Service does the fetching and
// caching around them.
package reporting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/billing"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Appointment is the read-only scheduling view the metrics consume.
type Appointment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patientId"`
	DoctorID    uuid.UUID         `db:"doctor_id" json:"doctorId"`
	DoctorName  string            `db:"doctor_name" json:"doctorName"`
	Status      AppointmentStatus `db:"status" json:"status"`
	ScheduledAt time.Time         `db:"scheduled_at" json:"scheduledAt"`
}

// Snapshot is one fetched dataset: everything the aggregator reads for a
// single scope (all history, the window, or the previous window).
type Snapshot struct {
	Invoices     []*billing.Invoice
	Exonerations []*billing.Exoneration
	Appointments []*Appointment
	Patients     []*Patient
}

// Input is what Aggregate needs. Window bounds are inclusive.
type Input struct {
	Start, End                 time.Time
	PreviousStart, PreviousEnd time.Time
	History                    Snapshot
	Window                     Snapshot
	Previous                   Snapshot
}

// -- Output --

type Report struct {
	PeriodInfo     PeriodInfo     `json:"periodInfo"`
	Global         StatusStats    `json:"global"`
	Period         StatusStats    `json:"period"`
	Financial      Financial      `json:"financial"`
	AgingReport    AgingReport    `json:"agingReport"`
	PatientMetrics PatientMetrics `json:"patientMetrics"`
	Comparison     Comparison     `json:"comparison"`
	Doctors        []DoctorStats  `json:"doctors"`
	DataQuality    DataQuality    `json:"dataQuality"`
}

type PeriodInfo struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	PreviousStart time.Time `json:"previousStart"`
	PreviousEnd   time.Time `json:"previousEnd"`
	Days          int       `json:"days"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

type StatusCount struct {
	Status billing.Status  `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// StatusStats is the per-status breakdown of one invoice set.
type StatusStats struct {
	TotalInvoices int             `json:"totalInvoices"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Revenue       decimal.Decimal `json:"revenue"`
	Pending       decimal.Decimal `json:"pending"`
	ByStatus      []StatusCount   `json:"byStatus"`
}

type MonthlyRevenue struct {
	Month        string          `json:"month"`
	Revenue      decimal.Decimal `json:"revenue"`
	InvoiceCount int             `json:"invoiceCount"`
}

type ServiceStats struct {
	ServiceID   uuid.UUID       `json:"serviceId"`
	ServiceName string          `json:"serviceName"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type ExonerationGroup struct {
	Reason string          `json:"reason"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type Financial struct {
	MonthlyRevenue     []MonthlyRevenue   `json:"monthlyRevenue"`
	TopServices        []ServiceStats     `json:"topServices"`
	Exonerations       []ExonerationGroup `json:"exonerations"`
	TotalExonerated    decimal.Decimal    `json:"totalExonerated"`
	CollectionRate     float64            `json:"collectionRate"`
	DelinquencyRate    float64            `json:"delinquencyRate"`
	AverageDaysOverdue float64            `json:"averageDaysOverdue"`
}

type DoctorStats struct {
	DoctorID              uuid.UUID `json:"doctorId"`
	DoctorName            string    `json:"doctorName"`
	UniquePatients        int       `json:"uniquePatients"`
	Appointments          int       `json:"appointments"`
	CompletedAppointments int       `json:"completedAppointments"`
}

// DataQuality counts records left out of the report because they could not
// be interpreted.
type DataQuality struct {
	ExcludedInvoices     int      `json:"excludedInvoices"`
	ExcludedAppointments int      `json:"excludedAppointments"`
	ExcludedIDs          []string `json:"excludedIds,omitempty"`
}

func (q DataQuality) Excluded() int { return q.ExcludedInvoices + q.ExcludedAppointments }
