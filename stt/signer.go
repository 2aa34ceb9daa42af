package stt

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer computes the request signatures the transcription backend verifies.
// Poll and upload requests are time-sensitive, so every request gets a fresh
// signature.
type Signer struct {
	AppID     string
	APIKey    string
	APISecret string
}

// Signa computes the signa query parameter for a given unix timestamp:
// base64(HMAC-SHA1(apiSecret, hex(MD5(appId + ts)))). Reproduced exactly for
// backend compatibility.
func (s Signer) Signa(ts string) string {
	baseString := s.AppID + ts
	digest := md5.Sum([]byte(baseString))
	digestHex := hex.EncodeToString(digest[:])

	mac := hmac.New(sha1.New, []byte(s.APISecret))
	mac.Write([]byte(digestHex))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Timestamp returns the current unix time as the decimal string the signing
// scheme expects.
func (s Signer) Timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// StreamAuthorization computes the Authorization value for the streaming
// connection handshake: an HMAC-SHA256 signature over the canonical
// host/date/request-line string, wrapped in the api_key envelope and
// base64-encoded. date must be in RFC1123 GMT form.
func (s Signer) StreamAuthorization(host, date, requestPath string) string {
	origin := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", host, date, requestPath)

	mac := hmac.New(sha256.New, []byte(s.APISecret))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	auth := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		s.APIKey, signature,
	)
	return base64.StdEncoding.EncodeToString([]byte(auth))
}
