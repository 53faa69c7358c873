// Command keygen issues license keys and appends them to the CSV that is
// published as the license list.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gym-management/gym"
	"gym-management/internal/licensefeed"
	"gym-management/internal/logger"
)

func main() {
	if err := newCmd(time.Now).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	count    int
	months   int
	from     string
	out      string
	logLevel string
}

func newCmd(now func() time.Time) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "keygen",
		Short:         "Generate license keys and append them to the published list",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(opts.logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()
			return generate(opts, now(), cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "number of keys to generate")
	cmd.Flags().IntVarP(&opts.months, "months", "m", 12, "validity of each key in months")
	cmd.Flags().StringVar(&opts.from, "from", "", "start of validity (DD-MM-YYYY), default today")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "license_keys.csv", "license list to append to")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "debug|info|warn|error")
	return cmd
}

func generate(opts options, today time.Time, out io.Writer, log *zap.Logger) error {
	if opts.count < 1 || opts.count > 1000 {
		return fmt.Errorf("--count must be between 1 and 1000, got %d", opts.count)
	}
	if opts.months < 1 {
		return fmt.Errorf("--months must be positive, got %d", opts.months)
	}
	from := gym.DateOf(today)
	if opts.from != "" {
		d, err := gym.ParseDate(opts.from)
		if err != nil {
			return err
		}
		from = d
	}
	expiration := gym.FormatDate(gym.AddMonths(from, opts.months))

	seen := map[string]bool{}
	records := make([]gym.LicenseKeyRecord, 0, opts.count)
	for len(records) < opts.count {
		key, err := gym.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		records = append(records, gym.LicenseKeyRecord{Key: gym.FormatKey(key), Expiration: expiration})
	}

	f, err := os.OpenFile(opts.out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := licensefeed.Write(f, records, info.Size() == 0); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	batch := uuid.NewString()
	log.Info("license keys issued",
		zap.String("batch", batch),
		zap.Int("count", len(records)),
		zap.String("expiration", expiration),
		zap.String("file", opts.out),
	)
	fmt.Fprintf(out, "Batch %s: %d key(s) valid until %s appended to %s\n", batch, len(records), expiration, opts.out)
	for _, r := range records {
		fmt.Fprintln(out, r.Key)
	}
	return nil
}
