package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-management/gym"
)

const sampleCSV = `Name,Phone,Duration,Fees,Payment Method,Activation Date,Gender
Asha,98765 43210,3,4500,cash,01-01-2020,female
Ravi,98765 43211,1 month,1500,UPI,15-02-2020,Male
,,,,,,
Broken,98765 43212,forever,0,,,
Tiny,12,1,0,,,
`

func TestReadMembers(t *testing.T) {
	rows, err := readMembers(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.NoError(t, rows[0].err)
	assert.Equal(t, "Asha", rows[0].in.Name)
	assert.Equal(t, 3, rows[0].in.DurationMonths)
	assert.Equal(t, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), rows[0].in.ActivationDate)

	assert.NoError(t, rows[1].err)
	assert.Equal(t, 1, rows[1].in.DurationMonths)

	assert.ErrorContains(t, rows[2].err, "forever")
	assert.Equal(t, 5, rows[2].line)
}

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]int{
		"3":          3,
		"1 month":    1,
		"6 months":   6,
		"3 month's":  3,
		"12 Month's": 12,
		" 2months ":  2,
	} {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseDuration("a month's")
	assert.ErrorContains(t, err, "not a number of months")
}

func TestReadMembersNeedsHeader(t *testing.T) {
	_, err := readMembers(strings.NewReader("Name,Age\nAsha,30\n"))
	assert.ErrorIs(t, err, errNoHeader)

	_, err = readMembers(strings.NewReader(""))
	assert.ErrorIs(t, err, errNoHeader)
}

func TestImportMembers(t *testing.T) {
	ctx := context.Background()
	mgr, err := gym.NewGymManager(filepath.Join(t.TempDir(), "gym.db"), gym.Options{})
	require.NoError(t, err)
	defer mgr.Close()

	rows, err := readMembers(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var out bytes.Buffer
	imported, failed := importMembers(ctx, mgr, rows, &out)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 2, failed)
	assert.Contains(t, out.String(), "Line 2: Asha... SUCCESS (ID: 1)")
	assert.Contains(t, out.String(), "Line 6: Tiny... ERROR")

	all, err := mgr.GetAllMembers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Female", all[0].Gender)
	assert.Equal(t, "Cash", all[0].PaymentMethod)
}

func TestCommandReconcilesAfterImport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "gym.db")
	t.Setenv("GYM_DB_PATH", dbPath)
	t.Setenv("GYM_LOG_LEVEL", "error")

	csvPath := filepath.Join(dir, "members.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))

	var out bytes.Buffer
	cmd := newCmd()
	cmd.SetArgs([]string{"--env-file=", csvPath})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	mgr, err := gym.NewGymManager(dbPath, gym.Options{})
	require.NoError(t, err)
	defer mgr.Close()
	all, err := mgr.FindMembers(context.Background(), gym.MemberFilter{Status: gym.StatusInactive})
	require.NoError(t, err)
	assert.Len(t, all, 2, "memberships from 2020 are lapsed right after import")
}
