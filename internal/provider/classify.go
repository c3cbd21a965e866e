package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

const (
	duplicateKeyCode       = "DuplicateKey"
	reasonTransportFailure = "transport failure"
	reasonAuthFailed       = "authentication failed"
)

// RawOutcome is what a vendor list call produced before interpretation.
type RawOutcome struct {
	StatusCode int
	Body       []byte
	Err        error
}

// VendorBody is a vendor error payload. Known is set when the body is a JSON
// object carrying a code or message; otherwise only Raw is meaningful.
type VendorBody struct {
	Known   bool
	Code    string
	Message string
	Raw     string
}

type vendorErrorPayload struct {
	Code    *string `json:"code"`
	Message *string `json:"message"`
}

func ParseVendorBody(body []byte) VendorBody {
	parsed := VendorBody{Raw: strings.TrimSpace(string(body))}
	if parsed.Raw == "" {
		return parsed
	}

	var payload vendorErrorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return parsed
	}
	if payload.Code == nil && payload.Message == nil {
		return parsed
	}

	parsed.Known = true
	if payload.Code != nil {
		parsed.Code = strings.TrimSpace(*payload.Code)
	}
	if payload.Message != nil {
		parsed.Message = strings.TrimSpace(*payload.Message)
	}
	return parsed
}

// Classify maps a raw vendor call outcome to a TargetOutcome. It has no side
// effects: the same input always yields the same outcome.
func Classify(target domain.Target, raw RawOutcome) domain.TargetOutcome {
	if raw.Err != nil {
		return domain.Failed(reasonTransportFailure, raw.Err.Error())
	}

	if raw.StatusCode == http.StatusOK {
		return domain.Succeeded()
	}

	body := ParseVendorBody(raw.Body)
	if body.Known && body.Code == duplicateKeyCode {
		return domain.Duplicated(target.DuplicateToken())
	}

	reason := body.Message
	if reason == "" {
		reason = body.Raw
	}
	if reason == "" {
		reason = fmt.Sprintf("vendor returned status %d", raw.StatusCode)
	}

	return domain.Failed(reason, body.Raw)
}
