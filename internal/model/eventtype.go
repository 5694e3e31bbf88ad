package model

import (
	"regexp"
	"strings"
)

// Event types emitted by the portal backend.
const (
	TypeContractRequestCreated   = "CONTRACT_REQUEST_CREATED"
	TypeTechSurveyCompleted      = "TECH_SURVEY_COMPLETED"
	TypeSurveyApproved           = "SURVEY_APPROVED"
	TypeCustomerSignedContract   = "CUSTOMER_SIGNED_CONTRACT"
	TypeSentToInstallation       = "SENT_TO_INSTALLATION"
	TypeInstallationCompleted    = "INSTALLATION_COMPLETED"
	TypeSupportTicketCreated     = "SUPPORT_TICKET_CREATED"
	TypePaymentReceived          = "PAYMENT_RECEIVED"
	TypeWaterBillIssued          = "WATER_BILL_ISSUED"
	TypeWaterBillPaymentReceived = "WATER_BILL_PAYMENT_RECEIVED"

	// TypeError is used for locally raised error toasts.
	TypeError = "ERROR"
	// TypeUnknown replaces an empty or unparseable type.
	TypeUnknown = "UNKNOWN"
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// NormalizeType folds the inconsistent type spellings seen on the wire
// ("Sent To Installation", "customer-signed", ...) onto canonical constants.
func NormalizeType(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	t = strings.Trim(nonAlnum.ReplaceAllString(t, "_"), "_")
	if t == "" {
		return TypeUnknown
	}
	if strings.Contains(t, "SIGN") {
		return TypeCustomerSignedContract
	}
	return t
}
