package licensefeed

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-management/gym"
)

const sampleList = "Issued To,License Key,Expiration Date\n" +
	"Iron Temple,AAAA-1111-BBBB-2222,01-01-2020\n" +
	"\n" +
	"Flex Hub, cccc-3333-dddd-4444 ,31-12-2099\n"

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(sampleList))
	require.NoError(t, err)
	assert.Equal(t, []gym.LicenseKeyRecord{
		{Key: "AAAA-1111-BBBB-2222", Expiration: "01-01-2020"},
		{Key: "cccc-3333-dddd-4444", Expiration: "31-12-2099"},
	}, got)
}

func TestParseMissingColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("Key,Expires\nAAAA,01-01-2020\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)

	_, err = Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestWriteThenParse(t *testing.T) {
	var buf bytes.Buffer
	recs := []gym.LicenseKeyRecord{{Key: "ZZZZ-0000-YYYY-1111", Expiration: "15-06-2026"}}
	require.NoError(t, Write(&buf, recs, true))
	require.NoError(t, Write(&buf, recs, false))

	got, err := Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, recs[0], got[1])
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sampleList))
	}))
	defer srv.Close()

	got, err := NewHTTPSource(srv.URL, time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHTTPSourceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, time.Second, nil).Fetch(context.Background())
	assert.ErrorContains(t, err, "404")
}

func TestFileSourceAndFor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleList), 0o644))

	src := For("file://"+path, 0, nil)
	require.IsType(t, FileSource{}, src)
	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.IsType(t, &HTTPSource{}, For("https://example.com/keys.csv", 0, nil))
	assert.Nil(t, For("  ", 0, nil))

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "nope.csv")}.Fetch(context.Background())
	assert.Error(t, err)
}
