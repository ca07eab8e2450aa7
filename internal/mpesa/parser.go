package mpesa

import (
	"fmt"
	"regexp"
	"strings"
)

// Safaricom subscriber numbers: 7xx or 1xx followed by eight digits.
var msisdnPattern = regexp.MustCompile(`^(?:\+?254|0)?([71]\d{8})$`)

// Receipts are upper-case alphanumeric codes such as QAA1B2C3 or TIH5CRR635.
var receiptPattern = regexp.MustCompile(`^[A-Z0-9]{8,12}$`)

// NormalizeMSISDN accepts the usual ways a Kenyan number is written
// (0712..., 712..., +254712..., 254712..., with spaces or dashes) and returns
// the 2547xxxxxxxx form the aggregator expects.
func NormalizeMSISDN(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	matches := msisdnPattern.FindStringSubmatch(cleaned)
	if len(matches) < 2 {
		return "", fmt.Errorf("not a valid M-PESA phone number: %q", raw)
	}
	return "254" + matches[1], nil
}

// ParseReceipt trims and upper-cases an upstream receipt reference. An empty
// result means no receipt was issued.
func ParseReceipt(raw string) (string, error) {
	receipt := strings.ToUpper(strings.TrimSpace(raw))
	if receipt == "" {
		return "", nil
	}
	if !receiptPattern.MatchString(receipt) {
		return "", fmt.Errorf("malformed M-PESA receipt %q", raw)
	}
	return receipt, nil
}
