package gym

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileScenarioA(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})
	m := register(t, mgr, "Asha", "9876543210", date(2025, time.January, 1), 1)

	res, err := mgr.Reconcile(ctx, date(2025, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Empty(t, res.Expired)

	got, err := mgr.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, date(2025, time.February, 1), got.ExpirationDate)

	// Still active on the expiration date itself.
	_, err = mgr.Reconcile(ctx, date(2025, time.February, 1))
	require.NoError(t, err)
	got, _ = mgr.GetMember(ctx, m.ID)
	assert.Equal(t, StatusActive, got.Status)

	res, err = mgr.Reconcile(ctx, date(2025, time.February, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{m.ID}, res.Expired)

	got, _ = mgr.GetMember(ctx, m.ID)
	assert.Equal(t, StatusInactive, got.Status)
	assert.False(t, got.Notified)
	assert.Equal(t, date(2025, time.February, 1), got.ExpirationDate)
}

func TestReconcileClampsEndOfMonth(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})
	m := register(t, mgr, "Leap", "9876543210", date(2024, time.January, 31), 1)

	_, err := mgr.Reconcile(ctx, date(2024, time.February, 29))
	require.NoError(t, err)
	got, _ := mgr.GetMember(ctx, m.ID)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, date(2024, time.February, 29), got.ExpirationDate)

	_, err = mgr.Reconcile(ctx, date(2024, time.March, 1))
	require.NoError(t, err)
	got, _ = mgr.GetMember(ctx, m.ID)
	assert.Equal(t, StatusInactive, got.Status)
}

func TestReconcileRefreshesStaleExpiration(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})
	m := register(t, mgr, "Stale", "9876543210", date(2025, time.January, 10), 3)

	_, err := mgr.db.db.Exec(`UPDATE members SET expiration_date='2030-01-01' WHERE id=?`, m.ID)
	require.NoError(t, err)

	_, err = mgr.Reconcile(ctx, date(2025, time.January, 15))
	require.NoError(t, err)
	got, _ := mgr.GetMember(ctx, m.ID)
	assert.Equal(t, date(2025, time.April, 10), got.ExpirationDate)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})
	expired := register(t, mgr, "Old", "9876543210", date(2024, time.March, 1), 2)
	current := register(t, mgr, "New", "9876543211", date(2025, time.January, 1), 6)
	today := date(2025, time.January, 20)

	first, err := mgr.Reconcile(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, []int64{expired.ID}, first.Expired)

	// A reminder goes out between the passes; a second pass must not re-arm it.
	_, err = mgr.db.RecordReminderSent(ctx, "run", expired, "+919876543210", "hi")
	require.NoError(t, err)
	before, err := mgr.GetAllMembers(ctx)
	require.NoError(t, err)

	second, err := mgr.Reconcile(ctx, today)
	require.NoError(t, err)
	assert.Empty(t, second.Expired)
	assert.Equal(t, 1, second.Checked)
	assert.False(t, second.QuotaReset)

	after, err := mgr.GetAllMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	got, _ := mgr.GetMember(ctx, current.ID)
	assert.Equal(t, StatusActive, got.Status)
}

func TestReconcileQuotaReset(t *testing.T) {
	today := date(2025, time.June, 1)
	tests := []struct {
		name      string
		count     int
		license   *time.Time
		wantCount int
		wantReset bool
	}{
		{"license lapsed and quota overrun", 35, ptr(date(2025, time.May, 31)), 0, true},
		{"license lapsed at exactly the quota", FreeMessageQuota, ptr(date(2025, time.May, 31)), FreeMessageQuota, false},
		{"license still valid today", 35, ptr(today), 35, false},
		{"no license ever entered", 35, nil, 35, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mgr := newManager(t, Options{})
			setMessageCount(t, mgr, tt.count)
			if tt.license != nil {
				setLicense(t, mgr, *tt.license)
			}

			res, err := mgr.Reconcile(ctx, today)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReset, res.QuotaReset)

			st, err := mgr.AppState(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, st.MessageCount)
		})
	}
}

func TestReconcileRollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})
	first := register(t, mgr, "First", "9876543210", date(2024, time.January, 1), 1)
	second := register(t, mgr, "Second", "9876543211", date(2024, time.January, 1), 1)
	setMessageCount(t, mgr, 40)
	setLicense(t, mgr, date(2024, time.December, 31))

	_, err := mgr.db.db.Exec(`CREATE TRIGGER fail_second BEFORE UPDATE ON members WHEN NEW.id = ` +
		`(SELECT MAX(id) FROM members) BEGIN SELECT RAISE(ABORT, 'disk on fire'); END;`)
	require.NoError(t, err)

	_, err = mgr.Reconcile(ctx, date(2025, time.January, 15))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")

	for _, id := range []int64{first.ID, second.ID} {
		got, err := mgr.GetMember(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, got.Status, "member %d must not be partially reconciled", id)
		assert.True(t, got.Notified)
	}
	st, err := mgr.AppState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, st.MessageCount)
}

func TestReconcileClosedDatabase(t *testing.T) {
	db := tempDB(t)
	require.NoError(t, db.Close())
	_, err := db.Reconcile(context.Background(), date(2025, time.January, 1))
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
