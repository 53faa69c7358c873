package gym

import (
	"context"
	"fmt"
	"time"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Checked    int
	Expired    []int64
	QuotaReset bool
}

// Reconcile brings every Active member's expiration date and status in line
// with today and lazily resets the message counter once a used-up license
// window has passed. The whole pass is one transaction: on any error nothing
// is written.
func (d *Database) Reconcile(ctx context.Context, today time.Time) (ReconcileResult, error) {
	today = DateOf(today)
	var res ReconcileResult

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+memberColumns+` FROM members WHERE status=? ORDER BY id`, string(StatusActive))
	if err != nil {
		return res, fmt.Errorf("load active members: %w", err)
	}
	active, err := collectMembers(rows)
	if err != nil {
		return res, fmt.Errorf("load active members: %w", err)
	}

	for _, m := range active {
		res.Checked++
		exp := ExpirationFor(m.ActivationDate, m.DurationMonths)

		if today.After(exp) {
			if _, err := tx.ExecContext(ctx, `UPDATE members SET status=?, notified=0, expiration_date=? WHERE id=?`,
				string(StatusInactive), formatStorageDate(exp), m.ID); err != nil {
				return ReconcileResult{}, fmt.Errorf("expire member %d: %w", m.ID, err)
			}
			res.Expired = append(res.Expired, m.ID)
			continue
		}
		if exp.Equal(m.ExpirationDate) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE members SET expiration_date=? WHERE id=?`,
			formatStorageDate(exp), m.ID); err != nil {
			return ReconcileResult{}, fmt.Errorf("refresh member %d: %w", m.ID, err)
		}
	}

	st, err := readAppState(ctx, tx)
	if err != nil {
		return ReconcileResult{}, err
	}
	if st.LicenseKeyExpiration != nil && today.After(*st.LicenseKeyExpiration) && st.MessageCount > FreeMessageQuota {
		if _, err := tx.ExecContext(ctx, `UPDATE app_state SET message_count=0 WHERE id=1`); err != nil {
			return ReconcileResult{}, fmt.Errorf("reset message count: %w", err)
		}
		res.QuotaReset = true
	}

	if err := tx.Commit(); err != nil {
		return ReconcileResult{}, fmt.Errorf("commit reconcile: %w", err)
	}
	return res, nil
}
