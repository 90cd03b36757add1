package models

import "time"

// CustomerSegment constants
const (
	CustomerSegmentResidential   = "residential"
	CustomerSegmentSmallBusiness = "small_business"
	CustomerSegmentEnterprise    = "enterprise"
)

// Customer is the master record from the system of record (CRM).
// Clover only references customers, it never mutates them.
type Customer struct {
	CustomerID              string     `json:"customer_id" db:"customer_id"`
	AccountCreatedDate      time.Time  `json:"account_created_date" db:"account_created_date"`
	CustomerSegment         string     `json:"customer_segment" db:"customer_segment"`
	PlanID                  *string    `json:"plan_id,omitempty" db:"plan_id"`
	MonthlyRecurringRevenue *float64   `json:"monthly_recurring_revenue,omitempty" db:"monthly_recurring_revenue"`
	ContractEndDate         *time.Time `json:"contract_end_date,omitempty" db:"contract_end_date"`
	AutoRenew               bool       `json:"auto_renew" db:"auto_renew"`
	LifetimeValue           *float64   `json:"lifetime_value,omitempty" db:"lifetime_value"`
	ChurnDate               *time.Time `json:"churn_date,omitempty" db:"churn_date"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`
}
