package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Completion is the aggregator's is_complete flag. It arrives as 0/1, a
// boolean or a quoted number depending on the endpoint version; Known is false
// when the field was absent or null.
type Completion struct {
	Known    bool
	Complete bool
}

func (c *Completion) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	switch strings.ToLower(raw) {
	case "null", "":
		*c = Completion{}
	case "1", "true":
		*c = Completion{Known: true, Complete: true}
	case "0", "false":
		*c = Completion{Known: true, Complete: false}
	default:
		return fmt.Errorf("unexpected is_complete value %s", data)
	}
	return nil
}

type StatusResponse struct {
	IsComplete   Completion `json:"is_complete"`
	SyncStatus   string     `json:"sync_status"`
	MpesaReceipt *string    `json:"mpesa_receipt"`
	CreatedAt    string     `json:"created_at"`
}

// Receipt returns the receipt reference or "" when none was issued.
func (s *StatusResponse) Receipt() string {
	if s.MpesaReceipt == nil {
		return ""
	}
	return strings.TrimSpace(*s.MpesaReceipt)
}

// Fragments of sync_status texts that mark a push as finished without
// payment, e.g. "Request cancelled by user" or "The balance is insufficient
// for the transaction".
var failureMarkers = []string{
	"cancel",
	"fail",
	"insufficient",
	"reject",
	"declin",
	"expired",
	"timeout",
	"timed out",
	"invalid",
	"error",
	"cannot be reached",
}

// Failed reports a sync_status that describes an unsuccessful payment.
func (s *StatusResponse) Failed() bool {
	status := strings.ToLower(s.SyncStatus)
	for _, marker := range failureMarkers {
		if strings.Contains(status, marker) {
			return true
		}
	}
	return false
}

// Pending reports an explicit "not yet complete" answer with no receipt and
// no failure status.
func (s *StatusResponse) Pending() bool {
	return s.IsComplete.Known && !s.IsComplete.Complete && s.Receipt() == "" && !s.Failed()
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
}

// CreatedTime parses created_at, returning false if the field is missing or
// in a format we do not recognise.
func (s *StatusResponse) CreatedTime() (time.Time, bool) {
	raw := strings.TrimSpace(s.CreatedAt)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var _ json.Unmarshaler = (*Completion)(nil)
