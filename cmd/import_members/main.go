// Command import_members bulk-registers members from a CSV export.
//
// Expected header (order free, case-insensitive):
//
//	Name,Age,Gender,Phone,Address,Duration,Fees,Payment Method,Activation Date
//
// Only Name, Phone and Duration are required. Activation dates use DD-MM-YYYY.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gym-management/gym"
	"gym-management/internal/config"
	"gym-management/internal/logger"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "import_members <members.csv>",
		Short:         "Register members from a CSV file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := readMembers(f)
			if err != nil {
				return err
			}

			mgr, err := gym.NewGymManager(cfg.DBPath, gym.Options{Logger: log})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer mgr.Close()

			ctx := cmd.Context()
			imported, failed := importMembers(ctx, mgr, rows, cmd.OutOrStdout())
			// Rows with past activation dates must not stay Active until the next start.
			if _, err := mgr.Reconcile(ctx, mgr.Today()); err != nil {
				return err
			}
			if failed > 0 && imported == 0 {
				return fmt.Errorf("no members imported")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")
	return cmd
}

// memberRow is one CSV line, already parsed into registration input.
type memberRow struct {
	line int
	in   gym.MemberInput
	err  error
}

var errNoHeader = errors.New(`member CSV needs at least "Name", "Phone" and "Duration" columns`)

func readMembers(r io.Reader) ([]memberRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoHeader
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "phone", "duration"} {
		if _, ok := col[required]; !ok {
			return nil, errNoHeader
		}
	}

	var rows []memberRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		if get("name") == "" && get("phone") == "" {
			continue
		}
		row := memberRow{line: line}
		row.in, row.err = parseMember(get)
		rows = append(rows, row)
	}
	return rows, nil
}

func parseMember(get func(string) string) (gym.MemberInput, error) {
	in := gym.MemberInput{
		Name:          get("name"),
		Gender:        get("gender"),
		Phone:         get("phone"),
		Address:       get("address"),
		PaymentMethod: get("payment method"),
	}
	var err error
	if s := get("age"); s != "" {
		if in.Age, err = strconv.Atoi(s); err != nil {
			return in, fmt.Errorf("age %q is not a number", s)
		}
	}
	if in.DurationMonths, err = parseDuration(get("duration")); err != nil {
		return in, err
	}
	if s := get("fees"); s != "" {
		if in.Fees, err = strconv.ParseFloat(s, 64); err != nil {
			return in, fmt.Errorf("fees %q is not a number", s)
		}
	}
	if s := get("activation date"); s != "" {
		if in.ActivationDate, err = gym.ParseDate(s); err != nil {
			return in, err
		}
	}
	return in, nil
}

// parseDuration accepts "3", "3 months", "1 month" and the "3 month's" form
// found in older exports.
func parseDuration(s string) (int, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{"month's", "months", "month"} {
		if strings.HasSuffix(n, suffix) {
			n = strings.TrimSpace(strings.TrimSuffix(n, suffix))
			break
		}
	}
	months, err := strconv.Atoi(n)
	if err != nil {
		return 0, fmt.Errorf("duration %q is not a number of months", s)
	}
	return months, nil
}

// importMembers registers every parsable row and reports progress to out.
func importMembers(ctx context.Context, mgr *gym.GymManager, rows []memberRow, out io.Writer) (imported, failed int) {
	for _, row := range rows {
		fmt.Fprintf(out, "Line %d: %s... ", row.line, row.in.Name)
		if row.err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", row.err)
			failed++
			continue
		}
		m, err := mgr.RegisterMember(ctx, row.in)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", m.ID)
		imported++
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d members\n", imported)
	fmt.Fprintf(out, "Errors: %d\n", failed)
	return imported, failed
}
