package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of an inbound webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// SignPayload returns the header value Meta sends for payload: "sha256="
// followed by the hex HMAC-SHA256 of the raw body under the app secret.
func SignPayload(payload []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is the signature of payload.
func VerifySignature(payload []byte, appSecret, header string) bool {
	if appSecret == "" || !strings.HasPrefix(header, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(SignPayload(payload, appSecret)), []byte(header))
}

// VerifyChallenge answers the subscription handshake: it returns the
// challenge to echo back when mode is "subscribe" and the token matches.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" || verifyToken == "" || !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}
