// Package licensefeed reads the published license list: a CSV with the
// columns "License Key" and "Expiration Date" (DD-MM-YYYY), served over
// HTTP(S) or kept as a local file.
package licensefeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"gym-management/gym"
)

const (
	KeyColumn        = "License Key"
	ExpirationColumn = "Expiration Date"
)

var ErrMissingColumns = errors.New(`license list must have "License Key" and "Expiration Date" columns`)

// HTTPSource downloads the list on every Fetch.
type HTTPSource struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPSource(url string, timeout time.Duration, log *zap.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPSource{url: url, httpClient: &http.Client{Timeout: timeout}, log: log}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]gym.LicenseKeyRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license list: unexpected status %d", resp.StatusCode)
	}
	records, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	s.log.Debug("license list fetched", zap.Int("keys", len(records)))
	return records, nil
}

// FileSource reads the list from disk, for offline installs.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]gym.LicenseKeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// For picks an HTTPSource for http(s) locations and a FileSource otherwise.
// An empty location yields nil.
func For(location string, timeout time.Duration, log *zap.Logger) gym.LicenseSource {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, timeout, log)
	default:
		return FileSource{Path: strings.TrimPrefix(location, "file://")}
	}
}

// Parse reads a license CSV. Column order is free; extra columns and blank
// rows are ignored.
func Parse(r io.Reader) ([]gym.LicenseKeyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingColumns
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	keyIdx, expIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case strings.ToLower(KeyColumn):
			keyIdx = i
		case strings.ToLower(ExpirationColumn):
			expIdx = i
		}
	}
	if keyIdx < 0 || expIdx < 0 {
		return nil, ErrMissingColumns
	}

	var out []gym.LicenseKeyRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if keyIdx >= len(row) || expIdx >= len(row) || strings.TrimSpace(row[keyIdx]) == "" {
			continue
		}
		out = append(out, gym.LicenseKeyRecord{
			Key:        strings.TrimSpace(row[keyIdx]),
			Expiration: strings.TrimSpace(row[expIdx]),
		})
	}
	return out, nil
}

// Write emits records as a license CSV, with the header when header is true.
func Write(w io.Writer, records []gym.LicenseKeyRecord, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write([]string{KeyColumn, ExpirationColumn}); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := cw.Write([]string{rec.Key, rec.Expiration}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
