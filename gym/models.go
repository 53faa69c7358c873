package gym

import "time"

// Status is the membership state recorded for a member.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// FreeMessageQuota is the number of reminders that may be sent without a valid license.
const FreeMessageQuota = 20

// Member represents one registered gym member.
// ExpirationDate is derived from ActivationDate and DurationMonths and is
// refreshed on every reconciliation pass.
type Member struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Age            int       `json:"age"`
	Gender         string    `json:"gender"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	DurationMonths int       `json:"duration_months"`
	Fees           float64   `json:"fees"`
	PaymentMethod  string    `json:"payment_method"`
	ActivationDate time.Time `json:"activation_date"`
	ExpirationDate time.Time `json:"expiration_date"`
	Status         Status    `json:"status"`
	Notified       bool      `json:"notified"`
}

// MemberUpdate carries a partial member edit. Nil fields are left unchanged.
type MemberUpdate struct {
	Name           *string
	Age            *int
	Gender         *string
	Phone          *string
	Address        *string
	DurationMonths *int
	Fees           *float64
	PaymentMethod  *string
	ActivationDate *time.Time
	Status         *Status
}

// MemberFilter narrows FindMembers. Zero values match everything.
type MemberFilter struct {
	Status   Status
	Notified *bool
	// ExpiringIn matches members whose expiration date falls in that month.
	ExpiringIn *Month
	// Query matches a substring of the name or phone number.
	Query string
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// AppState is the process-wide counter record.
type AppState struct {
	MessageCount         int
	LicenseKeyExpiration *time.Time
}

// AppStateUpdate is a partial AppState write. Nil fields are left unchanged.
type AppStateUpdate struct {
	MessageCount         *int
	LicenseKeyExpiration *time.Time
}

// LicenseValid reports whether a stored license covers today.
func (s AppState) LicenseValid(today time.Time) bool {
	return s.LicenseKeyExpiration != nil && !DateOf(today).After(*s.LicenseKeyExpiration)
}

// FreeMessagesLeft is the remaining free quota, never negative.
func (s AppState) FreeMessagesLeft() int {
	if s.MessageCount >= FreeMessageQuota {
		return 0
	}
	return FreeMessageQuota - s.MessageCount
}

// LicenseKeyRecord is one row of the remote license list.
type LicenseKeyRecord struct {
	Key        string
	Expiration string // DD-MM-YYYY as published
}

// Bill is a recorded gym expense.
type Bill struct {
	ID     int64     `json:"id"`
	Title  string    `json:"title"`
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
	Note   string    `json:"note"`
}

// MonthlySummary aggregates fees and expenses for one calendar month.
type MonthlySummary struct {
	Month      Month
	NewMembers int
	Revenue    float64
	Expenses   float64
}

// Net is revenue minus expenses.
func (s MonthlySummary) Net() float64 { return s.Revenue - s.Expenses }

// NotificationRecord is one successfully sent reminder.
type NotificationRecord struct {
	ID       int64
	RunID    string
	MemberID int64
	Phone    string
	Message  string
	SentAt   time.Time
}
