package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTelegramHashMismatch = errors.New("telegram login hash mismatch")
	ErrTelegramAuthExpired  = errors.New("telegram login data expired")
)

// VerifyTelegramLogin checks a Telegram login-widget payload. The fields are
// the widget's key/value pairs including "hash" and "auth_date"; the secret
// is SHA-256 of the bot token. A maxAge of zero skips the freshness check.
func VerifyTelegramLogin(botToken string, fields map[string]string, maxAge time.Duration, now time.Time) error {
	if strings.TrimSpace(botToken) == "" {
		return errors.New("telegram bot token is required")
	}
	provided := strings.ToLower(strings.TrimSpace(fields["hash"]))
	if provided == "" {
		return ErrTelegramHashMismatch
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrTelegramHashMismatch
	}

	if maxAge <= 0 {
		return nil
	}
	authDate, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid auth_date: %w", err)
	}
	if now.Sub(time.Unix(authDate, 0)) > maxAge {
		return ErrTelegramAuthExpired
	}
	return nil
}
