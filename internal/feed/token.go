package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mazen160/go-random"
)

// tokenSalt keys the HMAC that derives the feed token from the portal
// credentials. The token gates read access only; it cannot be reversed
// into the credentials.
const tokenSalt = "timepool-webcal-secret-2024"

// tokenLength is the number of hex characters exposed in feed URLs.
const tokenLength = 32

// Token derives the feed access token. With credentials configured the
// token is deterministic across restarts, so subscribed clients keep
// working; without them a random token is generated so the feed is never
// left open.
func Token(username, password string) (string, error) {
	if username == "" || password == "" {
		return random.String(tokenLength)
	}
	mac := hmac.New(sha256.New, []byte(tokenSalt))
	fmt.Fprintf(mac, "%s:%s", username, password)
	return hex.EncodeToString(mac.Sum(nil))[:tokenLength], nil
}
