// Package checkout integrates the card-payment checkout provider: webhook
// signature verification, event payload shapes, and the line-item API client.
package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// Signature header format: "t=<unix>,v1=<hex hmac>[,v1=<hex hmac>...]".
// The signed payload is "<t>.<raw body>"; multiple v1 entries appear during
// endpoint-secret rotation and any one matching accepts the event.

// VerifySignature checks the webhook signature header against the raw body
// using the shared endpoint secret. Events with a timestamp outside the
// tolerance window are rejected to limit replay.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	eventTime := time.Unix(timestamp, 0)
	if now.Sub(eventTime) > tolerance || eventTime.Sub(now) > tolerance {
		return apperrors.Wrap(apperrors.ErrUnauthorized, "webhook timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, signature := range signatures {
		provided, err := hex.DecodeString(signature)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, provided) {
			return nil
		}
	}

	return apperrors.Wrap(apperrors.ErrUnauthorized, "no matching webhook signature")
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64 = -1
		signatures []string
	)

	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			parsed, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, apperrors.Wrap(apperrors.ErrUnauthorized, "malformed webhook timestamp")
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, parts[1])
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, apperrors.Wrap(apperrors.ErrUnauthorized, "malformed webhook signature header")
	}
	return timestamp, signatures, nil
}
