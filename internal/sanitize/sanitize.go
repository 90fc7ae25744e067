// Package sanitize masks phone numbers and payment digits before they
// reach logs. Calls here are placed to real scammers on behalf of real
// victims, so a dialed number or a card number read aloud mid-call must
// never land in log storage verbatim.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`\+?[1-9]\d{6,14}`)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	creditCardPattern = regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)
)

// Phone masks a single phone number, keeping just enough digits to
// correlate against provider records.
func Phone(phone string) string {
	return maskPhone(phone)
}

// Text scrubs free-form text of phone numbers, card numbers, and email
// addresses. Provider error messages echo the dialed number back, so
// anything from the provider goes through here before logging.
func Text(input string) string {
	result := creditCardPattern.ReplaceAllStringFunc(input, maskCreditCard)
	result = emailPattern.ReplaceAllStringFunc(result, maskEmail)
	result = phonePattern.ReplaceAllStringFunc(result, maskPhone)
	return result
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	// Keep first 3 and last 2 characters
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "[email]"
	}
	if at <= 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}

func maskCreditCard(cc string) string {
	clean := strings.ReplaceAll(strings.ReplaceAll(cc, "-", ""), " ", "")
	if len(clean) < 4 {
		return "****"
	}
	return "****-****-****-" + clean[len(clean)-4:]
}
