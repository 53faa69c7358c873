package gym

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageSender delivers one text message. phone carries the country code.
type MessageSender interface {
	Send(ctx context.Context, phone, text string) error
}

// Confirmer asks the operator whether the messaging channel is ready
// before a batch of pending reminders goes out.
type Confirmer interface {
	ConfirmReady(ctx context.Context, pending int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, pending int) (bool, error)

func (f ConfirmFunc) ConfirmReady(ctx context.Context, pending int) (bool, error) {
	return f(ctx, pending)
}

var (
	// ErrNotConfirmed is returned when the operator declines to start a batch.
	ErrNotConfirmed = errors.New("messaging channel not confirmed ready")
	// ErrNoSender is returned when no messaging channel is configured.
	ErrNoSender = errors.New("no messaging channel configured")
)

// SendError reports the recipient whose send aborted a batch.
type SendError struct {
	MemberID int64
	Phone    string
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send reminder to member %d (%s): %v", e.MemberID, e.Phone, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReminderOutcome classifies how a reminder run ended.
type ReminderOutcome int

const (
	ReminderNothingToDo ReminderOutcome = iota
	ReminderQuotaExhausted
	ReminderDeclined
	ReminderCompleted
	ReminderPartial
	ReminderFailed
)

func (o ReminderOutcome) String() string {
	switch o {
	case ReminderNothingToDo:
		return "nothing to do"
	case ReminderQuotaExhausted:
		return "quota exhausted"
	case ReminderDeclined:
		return "declined"
	case ReminderCompleted:
		return "completed"
	case ReminderPartial:
		return "partial"
	case ReminderFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ReminderOptions scopes a reminder run.
type ReminderOptions struct {
	// Month limits the run to members whose membership expired in that month.
	Month *Month
}

// ReminderReport describes what a reminder run did.
type ReminderReport struct {
	RunID             string
	Outcome           ReminderOutcome
	Eligible          int
	Sent              []*Member
	MessageCount      int
	LicenseExpiration *time.Time
}

// Remaining is the number of eligible members left unnotified by this run.
func (r ReminderReport) Remaining() int { return r.Eligible - len(r.Sent) }

// ReminderMessage composes the renewal text sent to m.
func ReminderMessage(gymName string, m *Member) string {
	return fmt.Sprintf("Hello %s, your %s membership at %s expired on %s. Please renew it to keep training with us.",
		m.Name, MonthsLabel(m.DurationMonths), gymName, FormatDate(m.ExpirationDate))
}

// MonthsLabel renders a duration such as "1 month" or "3 months".
func MonthsLabel(n int) string {
	if n == 1 {
		return "1 month"
	}
	return fmt.Sprintf("%d months", n)
}

// SendReminders messages every Inactive, unnotified member. Without a valid
// license the run stops once FreeMessageQuota messages have been sent in
// total. Each successful send is committed before the next one starts, so an
// aborted run keeps the progress it made.
func (lm *GymManager) SendReminders(ctx context.Context, today time.Time, opts ReminderOptions) (ReminderReport, error) {
	today = DateOf(today)
	report := ReminderReport{RunID: uuid.NewString()}
	log := lm.log.With(zap.String("run_id", report.RunID))

	notified := false
	eligible, err := lm.db.FindMembers(ctx, MemberFilter{
		Status:     StatusInactive,
		Notified:   &notified,
		ExpiringIn: opts.Month,
	})
	if err != nil {
		report.Outcome = ReminderFailed
		log.Error("load reminder candidates", zap.Error(err))
		return report, fmt.Errorf("load reminder candidates: %w", err)
	}
	report.Eligible = len(eligible)
	if len(eligible) == 0 {
		report.Outcome = ReminderNothingToDo
		log.Info("no members to remind")
		return report, nil
	}

	st, err := lm.db.GetAppState(ctx)
	if err != nil {
		report.Outcome = ReminderFailed
		log.Error("read app state", zap.Error(err))
		return report, fmt.Errorf("read app state: %w", err)
	}
	report.MessageCount = st.MessageCount
	report.LicenseExpiration = st.LicenseKeyExpiration

	licenseValid := st.LicenseValid(today)
	if !licenseValid && st.MessageCount >= FreeMessageQuota {
		report.Outcome = ReminderQuotaExhausted
		log.Warn("free message quota exhausted", zap.Int("message_count", st.MessageCount))
		return report, nil
	}

	if lm.sender == nil {
		report.Outcome = ReminderFailed
		return report, ErrNoSender
	}
	if lm.confirmer == nil {
		report.Outcome = ReminderDeclined
		return report, ErrNotConfirmed
	}
	ok, err := lm.confirmer.ConfirmReady(ctx, len(eligible))
	if err != nil {
		report.Outcome = ReminderDeclined
		return report, fmt.Errorf("confirm messaging channel: %w", err)
	}
	if !ok {
		report.Outcome = ReminderDeclined
		log.Info("reminder run declined by operator")
		return report, ErrNotConfirmed
	}

	count := st.MessageCount
	for _, m := range eligible {
		if !licenseValid && count >= FreeMessageQuota {
			report.Outcome = ReminderPartial
			log.Warn("free message quota reached mid-run",
				zap.Int("sent", len(report.Sent)), zap.Int("remaining", report.Remaining()))
			return report, nil
		}

		phone := WithCountryCode(m.Phone, lm.countryCode)
		text := ReminderMessage(lm.gymName, m)
		if err := lm.sender.Send(ctx, phone, text); err != nil {
			report.Outcome = ReminderFailed
			log.Error("send reminder", zap.Int64("member_id", m.ID), zap.Error(err))
			return report, &SendError{MemberID: m.ID, Phone: phone, Err: err}
		}

		count, err = lm.db.RecordReminderSent(ctx, report.RunID, m, phone, text)
		if err != nil {
			report.Outcome = ReminderFailed
			log.Error("record reminder", zap.Int64("member_id", m.ID), zap.Error(err))
			return report, fmt.Errorf("record reminder for member %d: %w", m.ID, err)
		}
		m.Notified = true
		report.Sent = append(report.Sent, m)
		report.MessageCount = count
	}

	report.Outcome = ReminderCompleted
	log.Info("reminder run completed", zap.Int("sent", len(report.Sent)), zap.Int("message_count", count))
	return report, nil
}
