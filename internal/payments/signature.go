package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayment returns the hex HMAC-SHA256 of "gatewayOrderID|gatewayPaymentID".
func SignPayment(secret, gatewayOrderID, gatewayPaymentID string) string {
	return sign(secret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// ValidPaymentSignature compares a client supplied signature in constant time.
func ValidPaymentSignature(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	return equalHex(SignPayment(secret, gatewayOrderID, gatewayPaymentID), signature)
}

// SignWebhook returns the hex HMAC-SHA256 of a raw webhook body.
func SignWebhook(secret string, body []byte) string {
	return sign(secret, body)
}

func ValidWebhookSignature(secret string, body []byte, header string) bool {
	return equalHex(SignWebhook(secret, body), header)
}

func sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, provided string) bool {
	provided = strings.ToLower(strings.TrimSpace(provided))
	if provided == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(provided))
}
