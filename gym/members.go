package gym

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps every validation failure of member or bill input.
var ErrInvalidInput = errors.New("invalid input")

// PaymentMethods lists the accepted payment methods.
var PaymentMethods = []string{"Cash", "Card", "UPI", "Online"}

// MemberInput is the registration form for a new member.
type MemberInput struct {
	Name           string    `validate:"required,max=100"`
	Age            int       `validate:"gte=0,lte=120"`
	Gender         string    `validate:"omitempty,oneof=Male Female Other"`
	Phone          string    `validate:"required,phone"`
	Address        string    `validate:"max=300"`
	DurationMonths int       `validate:"gte=1,lte=60"`
	Fees           float64   `validate:"gte=0"`
	PaymentMethod  string    `validate:"omitempty,oneof=Cash Card UPI Online"`
	ActivationDate time.Time `validate:"required"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// NormalizePhone strips spaces, dashes and parentheses.
func NormalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

// WithCountryCode prefixes phone with code unless it already carries one.
// Numbers longer than a 10-digit national number that start with the code's
// digits are taken as international numbers written without the plus sign.
func WithCountryCode(phone, code string) string {
	phone = NormalizePhone(phone)
	if strings.HasPrefix(phone, "+") || code == "" {
		return phone
	}
	code = "+" + strings.TrimPrefix(code, "+")
	if len(phone) > nationalDigits && strings.HasPrefix(phone, code[1:]) {
		return "+" + phone
	}
	return code + strings.TrimLeft(phone, "0")
}

const nationalDigits = 10

func (in *MemberInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = NormalizePhone(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Gender = canonical(in.Gender, []string{"Male", "Female", "Other"})
	in.PaymentMethod = canonical(in.PaymentMethod, PaymentMethods)
}

// canonical maps a case-insensitive match onto its canonical spelling.
func canonical(s string, options []string) string {
	s = strings.TrimSpace(s)
	for _, o := range options {
		if strings.EqualFold(s, o) {
			return o
		}
	}
	return s
}

// Validate checks the input and returns an ErrInvalidInput-wrapped error.
func (in *MemberInput) Validate() error {
	in.normalize()
	return validationError(validatorInstance().Struct(in))
}

// newMember builds a freshly registered member: Active and not a reminder candidate.
func (in MemberInput) newMember() *Member {
	activation := DateOf(in.ActivationDate)
	return &Member{
		Name:           in.Name,
		Age:            in.Age,
		Gender:         in.Gender,
		Phone:          in.Phone,
		Address:        in.Address,
		DurationMonths: in.DurationMonths,
		Fees:           in.Fees,
		PaymentMethod:  in.PaymentMethod,
		ActivationDate: activation,
		ExpirationDate: ExpirationFor(activation, in.DurationMonths),
		Status:         StatusActive,
		Notified:       true,
	}
}

func validateMember(m *Member) error {
	in := MemberInput{
		Name:           m.Name,
		Age:            m.Age,
		Gender:         m.Gender,
		Phone:          m.Phone,
		Address:        m.Address,
		DurationMonths: m.DurationMonths,
		Fees:           m.Fees,
		PaymentMethod:  m.PaymentMethod,
		ActivationDate: m.ActivationDate,
	}
	if err := in.Validate(); err != nil {
		return err
	}
	if m.Status != StatusActive && m.Status != StatusInactive {
		return fmt.Errorf("%w: status %q", ErrInvalidInput, m.Status)
	}
	m.Name, m.Phone, m.Address, m.Gender, m.PaymentMethod = in.Name, in.Phone, in.Address, in.Gender, in.PaymentMethod
	return nil
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

// applyTo merges u into m. Forcing a lapsed member back to Active restarts
// the membership today (unless an activation date is given) and takes the
// member out of the reminder queue; moving to Inactive makes them notifiable.
func (u MemberUpdate) applyTo(m *Member, today time.Time) {
	wasStatus := m.Status

	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Age != nil {
		m.Age = *u.Age
	}
	if u.Gender != nil {
		m.Gender = *u.Gender
	}
	if u.Phone != nil {
		m.Phone = *u.Phone
	}
	if u.Address != nil {
		m.Address = *u.Address
	}
	if u.DurationMonths != nil {
		m.DurationMonths = *u.DurationMonths
	}
	if u.Fees != nil {
		m.Fees = *u.Fees
	}
	if u.PaymentMethod != nil {
		m.PaymentMethod = *u.PaymentMethod
	}
	if u.ActivationDate != nil {
		m.ActivationDate = DateOf(*u.ActivationDate)
	}
	if u.Status != nil {
		m.Status = *u.Status
	}

	switch {
	case wasStatus == StatusInactive && m.Status == StatusActive:
		if u.ActivationDate == nil {
			m.ActivationDate = DateOf(today)
		}
		m.Notified = true
	case wasStatus == StatusActive && m.Status == StatusInactive:
		m.Notified = false
	}
	m.ExpirationDate = ExpirationFor(m.ActivationDate, m.DurationMonths)
}
