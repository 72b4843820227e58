package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Receipt is the payload encoded in a ticket receipt QR code.
type Receipt struct {
	GatewayPaymentID string
	RaffleID         uint
	Numbers          []int
}

type ReceiptSigner struct {
	SecretKey string
}

func NewReceiptSigner(secretKey string) *ReceiptSigner {
	return &ReceiptSigner{SecretKey: secretKey}
}

func (r *ReceiptSigner) GenerateSignature(receipt Receipt) string {
	data := fmt.Sprintf("%s:%d:%s", receipt.GatewayPaymentID, receipt.RaffleID, joinNumbers(receipt.Numbers))
	h := hmac.New(sha256.New, []byte(r.SecretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Encode renders payment:<ref>;raffle:<id>;numbers:<n,n>;signature:<hmac>.
func (r *ReceiptSigner) Encode(receipt Receipt) string {
	return fmt.Sprintf("payment:%s;raffle:%d;numbers:%s;signature:%s",
		receipt.GatewayPaymentID,
		receipt.RaffleID,
		joinNumbers(receipt.Numbers),
		r.GenerateSignature(receipt),
	)
}

// Decode parses and authenticates QR data.
func (r *ReceiptSigner) Decode(qrData string) (*Receipt, error) {
	parts := strings.Split(qrData, ";")
	if len(parts) != 4 ||
		!strings.HasPrefix(parts[0], "payment:") ||
		!strings.HasPrefix(parts[1], "raffle:") ||
		!strings.HasPrefix(parts[2], "numbers:") ||
		!strings.HasPrefix(parts[3], "signature:") {
		return nil, fmt.Errorf("invalid QR data format")
	}

	raffleID, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "raffle:"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid raffle id")
	}
	numbers, err := ParseNumberList(strings.TrimPrefix(parts[2], "numbers:"))
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{
		GatewayPaymentID: strings.TrimPrefix(parts[0], "payment:"),
		RaffleID:         uint(raffleID),
		Numbers:          numbers,
	}

	signature := strings.TrimPrefix(parts[3], "signature:")
	expectedSignature := r.GenerateSignature(*receipt)
	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		return nil, fmt.Errorf("invalid signature")
	}
	return receipt, nil
}

func joinNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
