package gym

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const operatorPINKey = "operator_pin_hash"

// ErrWrongPIN is returned when the operator PIN does not match.
var ErrWrongPIN = errors.New("wrong operator PIN")

// Options wires the external collaborators of a GymManager.
// Any of them may be nil; the operations that need one report it.
type Options struct {
	Logger      *zap.Logger
	Sender      MessageSender
	Confirmer   Confirmer
	Licenses    LicenseSource
	CountryCode string
	GymName     string
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// GymManager is a thin façade over the Database plus the reminder and
// license collaborators, keeping CLI code simple.
type GymManager struct {
	db  *Database
	log *zap.Logger
	now func() time.Time

	sender      MessageSender
	confirmer   Confirmer
	licenses    LicenseSource
	countryCode string
	gymName     string
}

// NewGymManager opens (or creates) the SQLite database at dbPath.
func NewGymManager(dbPath string, opts Options) (*GymManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	lm := &GymManager{
		db:          db,
		log:         opts.Logger,
		now:         opts.Now,
		sender:      opts.Sender,
		confirmer:   opts.Confirmer,
		licenses:    opts.Licenses,
		countryCode: opts.CountryCode,
		gymName:     opts.GymName,
	}
	if lm.log == nil {
		lm.log = zap.NewNop()
	}
	if lm.now == nil {
		lm.now = time.Now
	}
	if lm.gymName == "" {
		lm.gymName = "the gym"
	}
	return lm, nil
}

// Close closes the underlying database.
func (lm *GymManager) Close() error { return lm.db.Close() }

// Today is the current local calendar date.
func (lm *GymManager) Today() time.Time { return DateOf(lm.now()) }

// SetConfirmer replaces the channel-readiness confirmer.
func (lm *GymManager) SetConfirmer(c Confirmer) { lm.confirmer = c }

// ------------------ Reconciliation ------------------

// Reconcile runs one reconciliation pass and logs its outcome.
func (lm *GymManager) Reconcile(ctx context.Context, today time.Time) (ReconcileResult, error) {
	res, err := lm.db.Reconcile(ctx, today)
	if err != nil {
		lm.log.Error("reconcile failed", zap.Error(err))
		return res, err
	}
	lm.log.Info("memberships reconciled",
		zap.Int("checked", res.Checked),
		zap.Int("expired", len(res.Expired)),
		zap.Bool("quota_reset", res.QuotaReset),
	)
	return res, nil
}

// ------------------ Member helpers ------------------

// RegisterMember validates in and stores a new Active member.
func (lm *GymManager) RegisterMember(ctx context.Context, in MemberInput) (*Member, error) {
	if in.ActivationDate.IsZero() {
		in.ActivationDate = lm.Today()
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m := in.newMember()
	id, err := lm.db.AddMember(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	m.ID = id
	lm.log.Info("member registered", zap.Int64("member_id", id), zap.Time("expiration", m.ExpirationDate))
	return m, nil
}

func (lm *GymManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	return lm.db.GetMember(ctx, id)
}

func (lm *GymManager) GetAllMembers(ctx context.Context) ([]*Member, error) {
	return lm.db.GetAllMembers(ctx)
}

func (lm *GymManager) FindMembers(ctx context.Context, f MemberFilter) ([]*Member, error) {
	return lm.db.FindMembers(ctx, f)
}

// SearchMembers matches q against names and phone numbers.
func (lm *GymManager) SearchMembers(ctx context.Context, q string) ([]*Member, error) {
	if strings.TrimSpace(q) == "" {
		return []*Member{}, nil
	}
	return lm.db.FindMembers(ctx, MemberFilter{Query: q})
}

// UpdateMember applies a partial edit.
func (lm *GymManager) UpdateMember(ctx context.Context, id int64, upd MemberUpdate) (*Member, error) {
	m, err := lm.db.UpdateMember(ctx, id, upd, lm.Today())
	if err != nil {
		return nil, err
	}
	lm.log.Info("member updated", zap.Int64("member_id", id), zap.String("status", string(m.Status)))
	return m, nil
}

// RenewMembership restarts a membership today with a new duration, fees and
// payment method.
func (lm *GymManager) RenewMembership(ctx context.Context, id int64, months int, fees float64, payment string) (*Member, error) {
	today := lm.Today()
	active := StatusActive
	return lm.UpdateMember(ctx, id, MemberUpdate{
		DurationMonths: &months,
		Fees:           &fees,
		PaymentMethod:  &payment,
		ActivationDate: &today,
		Status:         &active,
	})
}

func (lm *GymManager) DeleteMember(ctx context.Context, id int64) error {
	if err := lm.db.DeleteMember(ctx, id); err != nil {
		return err
	}
	lm.log.Info("member deleted", zap.Int64("member_id", id))
	return nil
}

// ------------------ App state ------------------

func (lm *GymManager) AppState(ctx context.Context) (AppState, error) {
	return lm.db.GetAppState(ctx)
}

func (lm *GymManager) NotificationLog(ctx context.Context, limit int) ([]NotificationRecord, error) {
	return lm.db.NotificationLog(ctx, limit)
}

// ------------------ Bills ------------------

// AddBill validates in and records the expense.
func (lm *GymManager) AddBill(ctx context.Context, in BillInput) (*Bill, error) {
	if in.Date.IsZero() {
		in.Date = lm.Today()
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b := &Bill{Title: in.Title, Amount: in.Amount, Date: DateOf(in.Date), Note: in.Note}
	id, err := lm.db.AddBill(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("add bill: %w", err)
	}
	b.ID = id
	return b, nil
}

func (lm *GymManager) ListBills(ctx context.Context, month *Month) ([]*Bill, error) {
	return lm.db.ListBills(ctx, month)
}

func (lm *GymManager) DeleteBill(ctx context.Context, id int64) error {
	return lm.db.DeleteBill(ctx, id)
}

func (lm *GymManager) MonthlySummary(ctx context.Context, month Month) (MonthlySummary, error) {
	return lm.db.MonthlySummary(ctx, month)
}

// ------------------ Operator PIN ------------------

// HasOperatorPIN reports whether a PIN has been set.
func (lm *GymManager) HasOperatorPIN(ctx context.Context) (bool, error) {
	_, ok, err := lm.db.GetSetting(ctx, operatorPINKey)
	return ok, err
}

// SetOperatorPIN stores a bcrypt hash of pin.
func (lm *GymManager) SetOperatorPIN(ctx context.Context, pin string) error {
	pin = strings.TrimSpace(pin)
	if len(pin) < 4 {
		return fmt.Errorf("%w: PIN must have at least 4 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash PIN: %w", err)
	}
	return lm.db.PutSetting(ctx, operatorPINKey, string(hash))
}

// CheckOperatorPIN verifies pin. With no PIN set every input is accepted.
func (lm *GymManager) CheckOperatorPIN(ctx context.Context, pin string) error {
	hash, ok, err := lm.db.GetSetting(ctx, operatorPINKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(pin))); err != nil {
		lm.log.Warn("operator PIN rejected")
		return ErrWrongPIN
	}
	return nil
}

// ------------------ Utilities ------------------

// PrettyMember formats a member for lists.
func PrettyMember(m *Member) string {
	notified := ""
	if m.Status == StatusInactive {
		notified = "no"
		if m.Notified {
			notified = "yes"
		}
	}
	return fmt.Sprintf("%-5d %-24s %-14s %-9s %-12s %-12s %-9s %-8s",
		m.ID, truncate(m.Name, 24), m.Phone, MonthsLabel(m.DurationMonths),
		FormatDate(m.ActivationDate), FormatDate(m.ExpirationDate), m.Status, notified)
}

// PrettyMemberHeader is the column header matching PrettyMember.
func PrettyMemberHeader() string {
	return fmt.Sprintf("%-5s %-24s %-14s %-9s %-12s %-12s %-9s %-8s",
		"ID", "Name", "Phone", "Duration", "Activated", "Expires", "Status", "Notified")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
