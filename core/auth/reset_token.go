package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	resetSalt = []byte("escola.auth.password_reset")
	b32       = base32.StdEncoding.WithPadding(base32.NoPadding)

	errBadResetToken     = errors.New("invalid reset token")
	errResetTokenExpired = errors.New("reset token expired")
)

// resetTokens makes and checks password reset tokens.
// A token is bound to the account's password hash and last login, so it stops working once either changes.
type resetTokens struct {
	secret  []byte
	timeout time.Duration
}

func encodeUID(acct Account) string {
	return base64.RawURLEncoding.EncodeToString([]byte(acct.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (rt resetTokens) make(acct Account) string {
	return rt.makeWithTimestamp(acct, daysSince2001(NowFunc()))
}

func (rt resetTokens) verify(acct Account, token string) error {
	parts := strings.SplitN(token, "-", 2)
	if token == "" || len(parts) < 2 {
		return errBadResetToken
	}
	data, err := b32.DecodeString(parts[0])
	if err != nil {
		return errBadResetToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errBadResetToken
	}

	// tampered with?
	if subtle.ConstantTimeCompare([]byte(rt.makeWithTimestamp(acct, ts)), []byte(token)) == 0 {
		return errBadResetToken
	}
	if daysSince2001(NowFunc())-ts > int(rt.timeout/(24*time.Hour)) {
		return errResetTokenExpired
	}
	return nil
}

func (rt resetTokens) makeWithTimestamp(acct Account, ts int) string {
	return b32.EncodeToString([]byte(strconv.Itoa(ts))) + "-" + rt.sign(hashValue(acct, ts))
}

func (rt resetTokens) sign(val []byte) string {
	key := sha256.Sum256(append(append([]byte{}, resetSalt...), rt.secret...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func daysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(acct Account, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(acct.ID)
	val.Write(acct.PasswordHash)
	if acct.LastLogin.Valid {
		val.WriteString(acct.LastLogin.Time.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
