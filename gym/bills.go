package gym

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BillInput is the form for recording an expense.
type BillInput struct {
	Title  string    `validate:"required,max=100"`
	Amount float64   `validate:"gt=0"`
	Date   time.Time `validate:"required"`
	Note   string    `validate:"max=300"`
}

// Validate trims and checks the input.
func (in *BillInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Note = strings.TrimSpace(in.Note)
	return validationError(validatorInstance().Struct(in))
}

// AddBill records an expense.
func (d *Database) AddBill(ctx context.Context, b *Bill) (int64, error) {
	res, err := d.addBillStmt.ExecContext(ctx, b.Title, b.Amount, formatStorageDate(b.Date), b.Note)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListBills returns bills ordered by date; a nil month lists all of them.
func (d *Database) ListBills(ctx context.Context, month *Month) ([]*Bill, error) {
	query := `SELECT id,title,amount,bill_date,note FROM bills`
	var args []any
	if month != nil {
		query += ` WHERE substr(bill_date,1,7) = ?`
		args = append(args, month.String())
	}
	query += ` ORDER BY bill_date, id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []*Bill
	for rows.Next() {
		var (
			b    Bill
			date string
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.Amount, &date, &b.Note); err != nil {
			return nil, err
		}
		if b.Date, err = parseStorageDate(date); err != nil {
			return nil, fmt.Errorf("bill %d date: %w", b.ID, err)
		}
		bills = append(bills, &b)
	}
	return bills, rows.Err()
}

// DeleteBill removes a bill.
func (d *Database) DeleteBill(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM bills WHERE id=?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("bill %d: %w", id, ErrBillNotFound)
	}
	return nil
}

// MonthlySummary totals the fees of memberships activated in month against
// the bills dated in it.
func (d *Database) MonthlySummary(ctx context.Context, month Month) (MonthlySummary, error) {
	s := MonthlySummary{Month: month}
	key := month.String()

	if err := d.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COALESCE(SUM(fees),0)
        FROM members
        WHERE substr(activation_date,1,7) = ?`, key).Scan(&s.NewMembers, &s.Revenue); err != nil {
		return s, fmt.Errorf("member totals: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(amount),0)
        FROM bills
        WHERE substr(bill_date,1,7) = ?`, key).Scan(&s.Expenses); err != nil {
		return s, fmt.Errorf("bill totals: %w", err)
	}
	return s, nil
}
