package gym

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrBillNotFound   = errors.New("bill not found")
)

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db *sql.DB

	addMemberStmt *sql.Stmt
	addBillStmt   *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single-writer engine, single-operator app.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addMemberStmt != nil {
		d.addMemberStmt.Close()
	}
	if d.addBillStmt != nil {
		d.addBillStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addMemberStmt, err = d.db.Prepare(`
        INSERT INTO members(name,age,gender,phone,address,duration_months,fees,payment_method,
                            activation_date,expiration_date,status,notified)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if d.addBillStmt, err = d.db.Prepare(`INSERT INTO bills(title,amount,bill_date,note) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

const memberColumns = `id,name,age,gender,phone,address,duration_months,fees,payment_method,
       activation_date,expiration_date,status,notified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	var (
		m                      Member
		activation, expiration string
		status                 string
		notified               int
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Age, &m.Gender, &m.Phone, &m.Address,
		&m.DurationMonths, &m.Fees, &m.PaymentMethod,
		&activation, &expiration, &status, &notified); err != nil {
		return nil, err
	}
	var err error
	if m.ActivationDate, err = parseStorageDate(activation); err != nil {
		return nil, fmt.Errorf("member %d activation date: %w", m.ID, err)
	}
	if m.ExpirationDate, err = parseStorageDate(expiration); err != nil {
		return nil, fmt.Errorf("member %d expiration date: %w", m.ID, err)
	}
	m.Status = Status(status)
	m.Notified = notified != 0
	return &m, nil
}

func collectMembers(rows *sql.Rows) ([]*Member, error) {
	defer rows.Close()
	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember inserts m as given and returns the new id.
func (d *Database) AddMember(ctx context.Context, m *Member) (int64, error) {
	res, err := d.addMemberStmt.ExecContext(ctx, m.Name, m.Age, m.Gender, m.Phone, m.Address,
		m.DurationMonths, m.Fees, m.PaymentMethod,
		formatStorageDate(m.ActivationDate), formatStorageDate(m.ExpirationDate),
		string(m.Status), boolToInt(m.Notified))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMember fetches a single member.
func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	m, err := scanMember(d.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	return m, err
}

// GetAllMembers returns all members ordered by id.
func (d *Database) GetAllMembers(ctx context.Context) ([]*Member, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

// FindMembers returns members matching every set field of f, ordered by id.
func (d *Database) FindMembers(ctx context.Context, f MemberFilter) ([]*Member, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Notified != nil {
		where = append(where, "notified = ?")
		args = append(args, boolToInt(*f.Notified))
	}
	if f.ExpiringIn != nil {
		where = append(where, "substr(expiration_date,1,7) = ?")
		args = append(args, f.ExpiringIn.String())
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(name LIKE ? OR phone LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}

	query := `SELECT ` + memberColumns + ` FROM members`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

// UpdateMember applies upd to member id in one transaction and returns the
// stored result. today is used when a lapsed member is forced back to Active.
func (d *Database) UpdateMember(ctx context.Context, id int64, upd MemberUpdate, today time.Time) (*Member, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := scanMember(tx.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	if err != nil {
		return nil, err
	}

	upd.applyTo(m, today)
	if err := validateMember(m); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE members
        SET name=?, age=?, gender=?, phone=?, address=?, duration_months=?, fees=?, payment_method=?,
            activation_date=?, expiration_date=?, status=?, notified=?
        WHERE id=?`,
		m.Name, m.Age, m.Gender, m.Phone, m.Address, m.DurationMonths, m.Fees, m.PaymentMethod,
		formatStorageDate(m.ActivationDate), formatStorageDate(m.ExpirationDate),
		string(m.Status), boolToInt(m.Notified), id); err != nil {
		return nil, err
	}
	return m, tx.Commit()
}

// DeleteMember removes a member and their notification history.
func (d *Database) DeleteMember(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM members WHERE id=?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// App state
// ---------------------------------------------------------------------------

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readAppState(ctx context.Context, q queryRower) (AppState, error) {
	var (
		st  AppState
		exp sql.NullString
	)
	if err := q.QueryRowContext(ctx, `SELECT message_count, license_key_expiration FROM app_state WHERE id=1`).
		Scan(&st.MessageCount, &exp); err != nil {
		return AppState{}, fmt.Errorf("read app state: %w", err)
	}
	if exp.Valid && exp.String != "" {
		t, err := parseStorageDate(exp.String)
		if err != nil {
			return AppState{}, fmt.Errorf("license expiration: %w", err)
		}
		st.LicenseKeyExpiration = &t
	}
	return st, nil
}

// GetAppState returns the single app_state row.
func (d *Database) GetAppState(ctx context.Context) (AppState, error) {
	return readAppState(ctx, d.db)
}

// SetAppState writes the non-nil fields of upd.
func (d *Database) SetAppState(ctx context.Context, upd AppStateUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.MessageCount != nil {
		sets = append(sets, "message_count = ?")
		args = append(args, *upd.MessageCount)
	}
	if upd.LicenseKeyExpiration != nil {
		sets = append(sets, "license_key_expiration = ?")
		args = append(args, formatStorageDate(*upd.LicenseKeyExpiration))
	}
	if len(sets) == 0 {
		return nil
	}
	_, err := d.db.ExecContext(ctx, `UPDATE app_state SET `+strings.Join(sets, ", ")+` WHERE id=1`, args...)
	return err
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the stored value for key and whether it exists.
func (d *Database) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// PutSetting upserts key.
func (d *Database) PutSetting(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO settings(key,value) VALUES(?,?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// RecordReminderSent marks the member notified, bumps the message counter and
// logs the message in one transaction. It returns the new message count.
func (d *Database) RecordReminderSent(ctx context.Context, runID string, m *Member, phone, message string) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE members SET notified=1 WHERE id=?`, m.ID)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, fmt.Errorf("member %d: %w", m.ID, ErrMemberNotFound)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE app_state SET message_count = message_count + 1 WHERE id=1`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO notifications(run_id,member_id,phone,message,sent_at) VALUES(?,?,?,?,?)`,
		runID, m.ID, phone, message, time.Now().UTC()); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT message_count FROM app_state WHERE id=1`).Scan(&count); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

// NotificationLog returns the most recent sent reminders, newest first.
func (d *Database) NotificationLog(ctx context.Context, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, run_id, member_id, phone, message, sent_at
        FROM notifications
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		var r NotificationRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.MemberID, &r.Phone, &r.Message, &r.SentAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
