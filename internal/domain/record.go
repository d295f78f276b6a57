package domain

import "time"

type SourceType string

const (
	SourceBilling  SourceType = "billing"
	SourceContract SourceType = "contract"
	SourceUsage    SourceType = "usage"
	SourceService  SourceType = "service"
)

// RowRef points back at the raw input row a record was normalized from,
// so every downstream error and finding stays actionable without
// re-parsing the source dataset.
type RowRef struct {
	Source  SourceType `json:"source"`
	Dataset string     `json:"dataset"`
	Line    int        `json:"line"`
}

type ServiceStatus string

const (
	ServiceActive        ServiceStatus = "active"
	ServiceSuspended     ServiceStatus = "suspended"
	ServiceDeprovisioned ServiceStatus = "deprovisioned"
)

// BillingRecord is one invoice line, amounts already converted to the
// canonical currency.
type BillingRecord struct {
	InvoiceID    string    `json:"invoice_id"`
	CustomerID   string    `json:"customer_id"`
	ServiceID    string    `json:"service_id"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	BilledRate   float64   `json:"billed_rate"`
	BilledAmount float64   `json:"billed_amount"`
	ChargeCode   string    `json:"charge_code"`
	Ref          RowRef    `json:"ref"`
}

// ContractRecord is the agreed pricing for one customer+service.
type ContractRecord struct {
	AgreedTermsID string    `json:"agreed_terms_id"`
	CustomerID    string    `json:"customer_id"`
	ServiceID     string    `json:"service_id"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	AgreedRate    float64   `json:"agreed_rate"`
	Ref           RowRef    `json:"ref"`
}

// UsageRecord is metered consumption, quantity already converted to the
// canonical unit for its service.
type UsageRecord struct {
	CustomerID    string    `json:"customer_id"`
	ServiceID     string    `json:"service_id"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	UsageQuantity float64   `json:"usage_quantity"`
	Unit          string    `json:"unit"`
	Ref           RowRef    `json:"ref"`
}

// ServiceRecord is the provisioning-system view of one customer+service.
type ServiceRecord struct {
	CustomerID     string        `json:"customer_id"`
	ServiceID      string        `json:"service_id"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	Status         ServiceStatus `json:"service_status"`
	ActivationDate time.Time     `json:"activation_date"`
	Ref            RowRef        `json:"ref"`
}

// NormalizedRecord is the tagged-union view over the four record types.
// Exactly one of the pointer fields is set.
type NormalizedRecord struct {
	Source   SourceType      `json:"source"`
	Billing  *BillingRecord  `json:"billing,omitempty"`
	Contract *ContractRecord `json:"contract,omitempty"`
	Usage    *UsageRecord    `json:"usage,omitempty"`
	Service  *ServiceRecord  `json:"service,omitempty"`
}

// Key returns the (customer, service) identifiers of the wrapped record.
func (r *NormalizedRecord) Key() (customerID, serviceID string) {
	switch r.Source {
	case SourceBilling:
		return r.Billing.CustomerID, r.Billing.ServiceID
	case SourceContract:
		return r.Contract.CustomerID, r.Contract.ServiceID
	case SourceUsage:
		return r.Usage.CustomerID, r.Usage.ServiceID
	case SourceService:
		return r.Service.CustomerID, r.Service.ServiceID
	}
	return "", ""
}

// Period returns the period boundaries of the wrapped record.
func (r *NormalizedRecord) Period() (start, end time.Time) {
	switch r.Source {
	case SourceBilling:
		return r.Billing.PeriodStart, r.Billing.PeriodEnd
	case SourceContract:
		return r.Contract.PeriodStart, r.Contract.PeriodEnd
	case SourceUsage:
		return r.Usage.PeriodStart, r.Usage.PeriodEnd
	case SourceService:
		return r.Service.PeriodStart, r.Service.PeriodEnd
	}
	return time.Time{}, time.Time{}
}

// Ref returns the source row reference of the wrapped record.
func (r *NormalizedRecord) Ref() RowRef {
	switch r.Source {
	case SourceBilling:
		return r.Billing.Ref
	case SourceContract:
		return r.Contract.Ref
	case SourceUsage:
		return r.Usage.Ref
	case SourceService:
		return r.Service.Ref
	}
	return RowRef{}
}
