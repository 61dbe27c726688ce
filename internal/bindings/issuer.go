package bindings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
)

const (
	keyLetters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	keyDigits      = "0123456789"
	keyLetterCount = 5
	keyDigitCount  = 12
)

// Issuer appends newly generated unbound keys to the store.
type Issuer struct {
	store   ContentStore
	logger  *slog.Logger
	retries int
}

// NewIssuer creates an issuer. retries bounds the compare-and-swap loop on
// write conflicts.
func NewIssuer(store ContentStore, retries int, logger *slog.Logger) *Issuer {
	if retries < 0 {
		retries = 0
	}
	return &Issuer{
		store:   store,
		logger:  logger.With(slog.String("component", "key_issuer")),
		retries: retries,
	}
}

// GenerateKey produces a license key of 5 uppercase letters followed by
// 12 digits, drawn from a cryptographically secure source.
func GenerateKey() (string, error) {
	var sb strings.Builder
	sb.Grow(keyLetterCount + keyDigitCount)
	for i := 0; i < keyLetterCount; i++ {
		c, err := randomChar(keyLetters)
		if err != nil {
			return "", err
		}
		sb.WriteByte(c)
	}
	for i := 0; i < keyDigitCount; i++ {
		c, err := randomChar(keyDigits)
		if err != nil {
			return "", err
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

func randomChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("reading random source: %w", err)
	}
	return alphabet[n.Int64()], nil
}

// Issue generates a fresh key, appends `key,UNBOUND` to the store content
// and writes the result back conditionally. A missing file is created. On a
// version conflict the read-append-write cycle is retried against the fresh
// revision before giving up.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	for attempt := 0; ; attempt++ {
		content, token, err := i.store.ReadContent(ctx)
		if errors.Is(err, ErrStoreNotFound) {
			content, token = "", ""
		} else if err != nil {
			return "", err
		}

		key, err := GenerateKey()
		if err != nil {
			return "", err
		}

		// Trim trailing blank lines so repeated issuance does not
		// accumulate empty records.
		line := key + "," + Unbound
		updated := strings.TrimSpace(content)
		if updated != "" {
			updated += "\n" + line
		} else {
			updated = line
		}

		err = i.store.WriteContent(ctx, updated, token)
		if err == nil {
			i.logger.InfoContext(ctx, "issued new license key",
				slog.Int("attempt", attempt+1))
			return key, nil
		}
		if errors.Is(err, ErrVersionConflict) && attempt < i.retries {
			i.logger.WarnContext(ctx, "key issue write conflict, retrying",
				slog.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, ErrVersionConflict) {
			return "", fmt.Errorf("%w: write conflict persisted after %d attempts", ErrStoreUnreachable, attempt+1)
		}
		return "", err
	}
}
