package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

const MACHeader = "X-Airtable-Content-MAC"

var ErrBadMAC = errors.New("content MAC mismatch")

// CheckMAC verifies a webhook body against its "hmac-sha256=<hex>" MAC
// header, keyed with the base64 secret of the webhook.
func CheckMAC(secret string, body []byte, header string) error {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return errors.Wrap(err, "decode webhook secret")
	}

	sum, ok := strings.CutPrefix(header, "hmac-sha256=")
	if !ok {
		return ErrBadMAC
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sum))) {
		return ErrBadMAC
	}
	return nil
}
