package gym

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LicenseKeyLength is the number of characters in a normalized key.
const LicenseKeyLength = 16

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	ErrInvalidKeyFormat = errors.New("license key must be 16 letters or digits")
	ErrKeyNotFound      = errors.New("license key not found")
	ErrNoLicenseSource  = errors.New("no license list configured")
)

// LicenseSource fetches the authoritative license list.
type LicenseSource interface {
	Fetch(ctx context.Context) ([]LicenseKeyRecord, error)
}

// FetchError wraps network and parse failures of the license list.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetch license list: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// KeyExpiredError reports a known key whose expiration date has passed.
type KeyExpiredError struct {
	Expiration time.Time
}

func (e *KeyExpiredError) Error() string {
	return "license key expired on " + FormatDate(e.Expiration)
}

// NormalizeKey strips separators, uppercases and checks the key shape.
func NormalizeKey(raw string) (string, error) {
	key := strings.ToUpper(strings.NewReplacer("-", "", " ", "", "_", "", ".", "").Replace(strings.TrimSpace(raw)))
	if len(key) != LicenseKeyLength {
		return "", ErrInvalidKeyFormat
	}
	for _, r := range key {
		if !strings.ContainsRune(keyAlphabet, r) {
			return "", ErrInvalidKeyFormat
		}
	}
	return key, nil
}

// FormatKey groups a normalized key as XXXX-XXXX-XXXX-XXXX.
func FormatKey(key string) string {
	if len(key) != LicenseKeyLength {
		return key
	}
	return key[0:4] + "-" + key[4:8] + "-" + key[8:12] + "-" + key[12:16]
}

// GenerateKey returns a random normalized key.
func GenerateKey() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < LicenseKeyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(keyAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// ValidateLicense checks raw against the remote list and, when it is known
// and not expired on today, stores its expiration date. It returns the
// expiration on success. AppState is written only on success and members are
// never touched.
func (lm *GymManager) ValidateLicense(ctx context.Context, raw string, today time.Time) (time.Time, error) {
	key, err := NormalizeKey(raw)
	if err != nil {
		return time.Time{}, err
	}
	if lm.licenses == nil {
		return time.Time{}, &FetchError{Err: ErrNoLicenseSource}
	}

	records, err := lm.licenses.Fetch(ctx)
	if err != nil {
		lm.log.Warn("license list fetch failed", zap.Error(err))
		return time.Time{}, &FetchError{Err: err}
	}

	var (
		found  bool
		rawExp string
	)
	for _, rec := range records {
		if k, err := NormalizeKey(rec.Key); err == nil && k == key {
			found, rawExp = true, rec.Expiration
			break
		}
	}
	if !found {
		lm.log.Info("license key not found", zap.String("key", maskKey(key)))
		return time.Time{}, ErrKeyNotFound
	}

	exp, err := time.Parse(DisplayLayout, strings.TrimSpace(rawExp))
	if err != nil {
		return time.Time{}, &FetchError{Err: fmt.Errorf("expiration of key %s: %w", maskKey(key), err)}
	}
	if DateOf(today).After(exp) {
		lm.log.Info("license key expired", zap.String("key", maskKey(key)), zap.Time("expiration", exp))
		return time.Time{}, &KeyExpiredError{Expiration: exp}
	}

	if err := lm.db.SetAppState(ctx, AppStateUpdate{LicenseKeyExpiration: &exp}); err != nil {
		lm.log.Error("store license expiration", zap.Error(err))
		return time.Time{}, fmt.Errorf("store license expiration: %w", err)
	}
	lm.log.Info("license key accepted", zap.String("key", maskKey(key)), zap.Time("expiration", exp))
	return exp, nil
}

func maskKey(key string) string {
	if len(key) < 4 {
		return "****"
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
