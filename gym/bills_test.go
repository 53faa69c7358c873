package gym

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillsByMonth(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})

	for _, in := range []BillInput{
		{Title: "Electricity", Amount: 4200, Date: date(2025, time.January, 5)},
		{Title: "  Rent  ", Amount: 15000, Date: date(2025, time.January, 1), Note: "January"},
		{Title: "Dumbbells", Amount: 3100.5, Date: date(2025, time.February, 2)},
	} {
		_, err := mgr.AddBill(ctx, in)
		require.NoError(t, err)
	}

	jan := Month{Year: 2025, Month: time.January}
	bills, err := mgr.ListBills(ctx, &jan)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "Rent", bills[0].Title, "ordered by date and trimmed")
	assert.Equal(t, "Electricity", bills[1].Title)

	all, err := mgr.ListBills(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, mgr.DeleteBill(ctx, bills[0].ID))
	assert.ErrorIs(t, mgr.DeleteBill(ctx, bills[0].ID), ErrBillNotFound)
}

func TestAddBillDefaultsToToday(t *testing.T) {
	mgr := newManager(t, Options{})
	b, err := mgr.AddBill(context.Background(), BillInput{Title: "Water", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.January, 15), b.Date)
}

func TestAddBillValidation(t *testing.T) {
	mgr := newManager(t, Options{})
	tests := []BillInput{
		{Title: "", Amount: 10},
		{Title: "   ", Amount: 10},
		{Title: "Free", Amount: 0},
		{Title: "Negative", Amount: -5},
	}
	for _, in := range tests {
		_, err := mgr.AddBill(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
	all, err := mgr.ListBills(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMonthlySummary(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, Options{})

	register(t, mgr, "Jan A", "9000000001", date(2025, time.January, 3), 1)
	register(t, mgr, "Jan B", "9000000002", date(2025, time.January, 28), 3)
	register(t, mgr, "Feb", "9000000003", date(2025, time.February, 1), 1)
	_, err := mgr.AddBill(ctx, BillInput{Title: "Rent", Amount: 2000, Date: date(2025, time.January, 1)})
	require.NoError(t, err)
	_, err = mgr.AddBill(ctx, BillInput{Title: "Rent", Amount: 2000, Date: date(2025, time.February, 1)})
	require.NoError(t, err)

	s, err := mgr.MonthlySummary(ctx, Month{Year: 2025, Month: time.January})
	require.NoError(t, err)
	assert.Equal(t, 2, s.NewMembers)
	assert.InDelta(t, 3000, s.Revenue, 0.001)
	assert.InDelta(t, 2000, s.Expenses, 0.001)
	assert.InDelta(t, 1000, s.Net(), 0.001)

	empty, err := mgr.MonthlySummary(ctx, Month{Year: 2030, Month: time.March})
	require.NoError(t, err)
	assert.Zero(t, empty.NewMembers)
	assert.Zero(t, empty.Revenue)
	assert.Zero(t, empty.Expenses)
}
