package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gym-management/gym"
	"gym-management/internal/config"
	"gym-management/internal/licensefeed"
	"gym-management/internal/logger"
	"gym-management/internal/whatsapp"
)

// app holds everything a command needs once the store is open.
type app struct {
	cfg config.Config
	log *zap.Logger
	mgr *gym.GymManager

	in  io.Reader
	out io.Writer
	p   *prompter
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes one command line and releases the store afterwards.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{in: in, out: out, p: newPrompter(in, out)}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(errOut, "Error: %v\n", err)
	}
	return err
}

// errReported marks failures already explained to the operator.
var errReported = errors.New("reported")

func reported(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

func (a *app) rootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "gym",
		Short:         "Gym membership manager with WhatsApp renewal reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShell(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")
	root.SetIn(a.in)
	root.SetOut(a.out)

	root.AddCommand(
		a.reconcileCmd(),
		a.remindCmd(),
		a.licenseCmd(),
		a.statusCmd(),
		a.membersCmd(),
		a.pinCmd(),
	)
	return root
}

// open loads configuration, opens the store and runs the start-up
// reconciliation. A failed reconciliation is fatal.
func (a *app) open(ctx context.Context, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	var sender gym.MessageSender
	if cfg.CloudAPIEnabled() {
		sender = whatsapp.NewCloudSender(whatsapp.CloudConfig{
			APIURL:        cfg.WhatsAppAPIURL,
			PhoneNumberID: cfg.WhatsAppPhoneID,
			Token:         cfg.WhatsAppToken,
			Timeout:       cfg.HTTPTimeout,
			PerMinute:     cfg.SendPerMinute,
		}, log)
	} else {
		sender = whatsapp.NewLinkSender(a.out)
	}

	mgr, err := gym.NewGymManager(cfg.DBPath, gym.Options{
		Logger:      log,
		Sender:      sender,
		Confirmer:   a.p.confirmer(),
		Licenses:    licensefeed.For(cfg.LicenseListURL, cfg.HTTPTimeout, log),
		CountryCode: cfg.CountryCode,
		GymName:     cfg.GymName,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if _, err := mgr.Reconcile(ctx, mgr.Today()); err != nil {
		mgr.Close()
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	a.cfg, a.log, a.mgr = cfg, log, mgr
	return nil
}

func (a *app) close() {
	if a.mgr != nil {
		a.mgr.Close()
		a.mgr = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute expirations and lapse overdue memberships",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.mgr.Reconcile(cmd.Context(), a.mgr.Today())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Checked %d active member(s); %d lapsed.\n", res.Checked, len(res.Expired))
			if res.QuotaReset {
				fmt.Fprintln(a.out, "License window over: message counter reset.")
			}
			return nil
		},
	}
}

func (a *app) remindCmd() *cobra.Command {
	var (
		month string
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send renewal reminders to lapsed members",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts gym.ReminderOptions
			if month != "" {
				m, err := gym.ParseMonth(month)
				if err != nil {
					return err
				}
				opts.Month = &m
			}
			if yes {
				a.mgr.SetConfirmer(gym.ConfirmFunc(func(context.Context, int) (bool, error) { return true, nil }))
			}
			return a.remind(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "only members whose membership expired in this month (YYYY-MM)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the channel-ready confirmation")
	return cmd
}

// remind runs one reminder batch and prints its report.
func (a *app) remind(ctx context.Context, opts gym.ReminderOptions) error {
	report, err := a.mgr.SendReminders(ctx, a.mgr.Today(), opts)
	if errors.Is(err, gym.ErrNotConfirmed) {
		fmt.Fprintln(a.out, "Cancelled. No reminders were sent.")
		return nil
	}

	switch report.Outcome {
	case gym.ReminderNothingToDo:
		fmt.Fprintln(a.out, "No lapsed members are waiting for a reminder.")
	case gym.ReminderQuotaExhausted:
		fmt.Fprintf(a.out, "The free quota of %d messages is used up (%d sent).\n", gym.FreeMessageQuota, report.MessageCount)
		fmt.Fprintln(a.out, licenseHint(report.LicenseExpiration))
	case gym.ReminderPartial:
		fmt.Fprintf(a.out, "Sent %d reminder(s); %d member(s) still waiting.\n", len(report.Sent), report.Remaining())
		fmt.Fprintf(a.out, "The free quota of %d messages is now used up.\n", gym.FreeMessageQuota)
		fmt.Fprintln(a.out, licenseHint(report.LicenseExpiration))
	case gym.ReminderCompleted:
		fmt.Fprintf(a.out, "Sent %d reminder(s). Total messages sent: %d.\n", len(report.Sent), report.MessageCount)
	case gym.ReminderFailed:
		if len(report.Sent) == 0 {
			fmt.Fprintf(a.out, "Reminders could not be sent: %v\n", err)
		} else {
			fmt.Fprintf(a.out, "Stopped after %d reminder(s): %v\n", len(report.Sent), err)
		}
	}
	for _, m := range report.Sent {
		fmt.Fprintf(a.out, "  notified %s (ID %d)\n", m.Name, m.ID)
	}
	if report.Outcome == gym.ReminderFailed {
		return reported(err)
	}
	return err
}

func licenseHint(exp *time.Time) string {
	if exp == nil {
		return "Enter a license key to keep sending reminders."
	}
	return fmt.Sprintf("Your license expired on %s. Enter a new license key to keep sending reminders.", gym.FormatDate(*exp))
}

func (a *app) licenseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "license <key>",
		Short: "Validate a license key against the published list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateLicense(cmd.Context(), args[0])
		},
	}
}

func (a *app) validateLicense(ctx context.Context, key string) error {
	exp, err := a.mgr.ValidateLicense(ctx, key, a.mgr.Today())
	var (
		expired  *gym.KeyExpiredError
		fetchErr *gym.FetchError
	)
	switch {
	case err == nil:
		fmt.Fprintf(a.out, "License accepted. Valid until %s.\n", gym.FormatDate(exp))
	case errors.Is(err, gym.ErrInvalidKeyFormat):
		fmt.Fprintln(a.out, "That does not look like a license key (16 letters or digits, e.g. ABCD-1234-EFGH-5678).")
	case errors.Is(err, gym.ErrKeyNotFound):
		fmt.Fprintln(a.out, "License key not found.")
	case errors.As(err, &expired):
		fmt.Fprintf(a.out, "This license key expired on %s.\n", gym.FormatDate(expired.Expiration))
	case errors.As(err, &fetchErr):
		fmt.Fprintf(a.out, "Could not check the license list: %v\n", fetchErr.Err)
	default:
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
	return reported(err)
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show message quota, license and membership counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printStatus(cmd.Context())
		},
	}
}

func (a *app) printStatus(ctx context.Context) error {
	st, err := a.mgr.AppState(ctx)
	if err != nil {
		return err
	}
	all, err := a.mgr.GetAllMembers(ctx)
	if err != nil {
		return err
	}
	var active, inactive, waiting int
	for _, m := range all {
		if m.Status == gym.StatusActive {
			active++
			continue
		}
		inactive++
		if !m.Notified {
			waiting++
		}
	}

	today := a.mgr.Today()
	fmt.Fprintf(a.out, "Members:        %d active, %d inactive, %d awaiting a reminder\n", active, inactive, waiting)
	fmt.Fprintf(a.out, "Messages sent:  %d\n", st.MessageCount)
	switch {
	case st.LicenseValid(today):
		fmt.Fprintf(a.out, "License:        valid until %s\n", gym.FormatDate(*st.LicenseKeyExpiration))
	case st.LicenseKeyExpiration != nil:
		fmt.Fprintf(a.out, "License:        expired on %s\n", gym.FormatDate(*st.LicenseKeyExpiration))
		fmt.Fprintf(a.out, "Free messages:  %d of %d left\n", st.FreeMessagesLeft(), gym.FreeMessageQuota)
	default:
		fmt.Fprintln(a.out, "License:        none")
		fmt.Fprintf(a.out, "Free messages:  %d of %d left\n", st.FreeMessagesLeft(), gym.FreeMessageQuota)
	}
	return nil
}

func (a *app) membersCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := memberFilter(status)
			if err != nil {
				return err
			}
			members, err := a.mgr.FindMembers(cmd.Context(), f)
			if err != nil {
				return err
			}
			a.printMembers(members)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active, inactive or waiting (inactive and not yet reminded)")
	return cmd
}

func memberFilter(status string) (gym.MemberFilter, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
		return gym.MemberFilter{}, nil
	case "active":
		return gym.MemberFilter{Status: gym.StatusActive}, nil
	case "inactive":
		return gym.MemberFilter{Status: gym.StatusInactive}, nil
	case "waiting":
		notified := false
		return gym.MemberFilter{Status: gym.StatusInactive, Notified: &notified}, nil
	}
	return gym.MemberFilter{}, fmt.Errorf("unknown status %q: want active, inactive or waiting", status)
}

func (a *app) printMembers(members []*gym.Member) {
	if len(members) == 0 {
		fmt.Fprintln(a.out, "No members found.")
		return
	}
	fmt.Fprintln(a.out, gym.PrettyMemberHeader())
	fmt.Fprintln(a.out, strings.Repeat("-", 100))
	for _, m := range members {
		fmt.Fprintln(a.out, gym.PrettyMember(m))
	}
}

func (a *app) pinCmd() *cobra.Command {
	pin := &cobra.Command{
		Use:   "pin",
		Short: "Manage the operator PIN that guards the shell",
	}
	pin.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Set or change the operator PIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setPIN(cmd.Context())
		},
	})
	return pin
}

func (a *app) setPIN(ctx context.Context) error {
	has, err := a.mgr.HasOperatorPIN(ctx)
	if err != nil {
		return err
	}
	if has {
		current, err := a.p.secret("Current PIN: ")
		if err != nil {
			return err
		}
		if err := a.mgr.CheckOperatorPIN(ctx, current); err != nil {
			fmt.Fprintln(a.out, "Wrong PIN.")
			return reported(err)
		}
	}
	first, err := a.p.secret("New PIN: ")
	if err != nil {
		return err
	}
	second, err := a.p.secret("Repeat new PIN: ")
	if err != nil {
		return err
	}
	if first != second {
		fmt.Fprintln(a.out, "PINs do not match.")
		return reported(errors.New("PINs do not match"))
	}
	if err := a.mgr.SetOperatorPIN(ctx, first); err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return reported(err)
	}
	fmt.Fprintln(a.out, "PIN saved.")
	return nil
}
