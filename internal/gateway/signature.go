package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

type SignatureCheck int

const (
	SignatureValid SignatureCheck = iota
	SignatureMismatch
	SignatureMissing
	SignatureNoSecret
)

func (s SignatureCheck) String() string {
	switch s {
	case SignatureValid:
		return "valid"
	case SignatureMismatch:
		return "mismatch"
	case SignatureMissing:
		return "missing"
	}
	return "no_secret"
}

// ParseSignatureHeader reads ts and v1 from an x-signature value such as
// "ts=1704908010,v1=618c85...".
func ParseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	return ts, v1
}

// SignatureManifest builds "id:<id>;request-id:<rid>;ts:<ts>;" skipping
// empty parts.
func SignatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + dataID + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

func SignManifest(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret, header, requestID, dataID string) SignatureCheck {
	if secret == "" {
		return SignatureNoSecret
	}
	if strings.TrimSpace(header) == "" {
		return SignatureMissing
	}
	ts, v1 := ParseSignatureHeader(header)
	if v1 == "" {
		return SignatureMissing
	}
	expected := SignManifest(secret, SignatureManifest(dataID, requestID, ts))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return SignatureMismatch
	}
	return SignatureValid
}

// TokenEqual compares callback tokens in constant time.
func TokenEqual(expected, got string) bool {
	return expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
