package gym

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "new db")
	t.Cleanup(func() { db.Close() })
	return db
}

func newManager(t *testing.T, opts Options) *GymManager {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return date(2025, time.January, 15) }
	}
	mgr, err := NewGymManager(filepath.Join(t.TempDir(), "gym.db"), opts)
	require.NoError(t, err, "new manager")
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func register(t *testing.T, mgr *GymManager, name, phone string, activation time.Time, months int) *Member {
	t.Helper()
	m, err := mgr.RegisterMember(context.Background(), MemberInput{
		Name:           name,
		Age:            30,
		Gender:         "Male",
		Phone:          phone,
		DurationMonths: months,
		Fees:           1500,
		PaymentMethod:  "Cash",
		ActivationDate: activation,
	})
	require.NoError(t, err, "register %s", name)
	return m
}

// lapsed registers members whose one-month memberships ended long before
// 2025-01-01 and reconciles so that they are Inactive and unnotified.
func lapsed(t *testing.T, mgr *GymManager, names ...string) []*Member {
	t.Helper()
	ctx := context.Background()
	var out []*Member
	for i, name := range names {
		out = append(out, register(t, mgr, name, fmt.Sprintf("98765432%02d", 10+i), date(2024, time.June, 1), 1))
	}
	_, err := mgr.Reconcile(ctx, date(2025, time.January, 1))
	require.NoError(t, err)
	for i, m := range out {
		got, err := mgr.GetMember(ctx, m.ID)
		require.NoError(t, err)
		require.Equal(t, StatusInactive, got.Status)
		require.False(t, got.Notified)
		out[i] = got
	}
	return out
}

func setMessageCount(t *testing.T, mgr *GymManager, n int) {
	t.Helper()
	require.NoError(t, mgr.db.SetAppState(context.Background(), AppStateUpdate{MessageCount: &n}))
}

func setLicense(t *testing.T, mgr *GymManager, exp time.Time) {
	t.Helper()
	require.NoError(t, mgr.db.SetAppState(context.Background(), AppStateUpdate{LicenseKeyExpiration: &exp}))
}
