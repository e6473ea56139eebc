package booking

import (
	"strings"
)

// placeholderNames are tokens the conversational layer sometimes hands over
// when a patient has not actually given their name.
var placeholderNames = map[string]struct{}{
	"test": {}, "testing": {}, "pending": {}, "n/a": {}, "na": {},
	"none": {}, "unknown": {}, "patient": {}, "user": {}, "asdf": {},
	"xxx": {}, "tbd": {},
}

// placeholderPhones are obviously fabricated numbers.
var placeholderPhones = map[string]struct{}{
	"000000": {}, "111111": {}, "123456": {}, "555555": {}, "999999": {},
}

// validateIdentity runs the identity sanity checks of the pipeline. Each
// failure produces a distinct prompt for the missing field so the channel
// layer can ask for exactly what is needed.
func validateIdentity(req *Request) *Rejection {
	name := strings.TrimSpace(req.PatientName)
	if len(name) < 2 {
		return missingInfo("patient_name", "Could you share your full name so I can book the appointment?")
	}
	if _, bad := placeholderNames[strings.ToLower(name)]; bad {
		return missingInfo("patient_name", "I still need your real name to book the appointment — could you share it?")
	}
	if words := strings.Fields(strings.ToLower(name)); len(words) == 2 && words[0] == words[1] {
		return missingInfo("patient_name", "That name doesn't look right — could you share your full name?")
	}

	phone := strings.TrimSpace(req.PatientPhone)
	if len(phone) < 6 {
		return missingInfo("patient_phone", "What's the best phone number to reach you on? We use it to confirm your booking.")
	}
	if _, bad := placeholderPhones[digitsOnly(phone)]; bad {
		return missingInfo("patient_phone", "That phone number doesn't look valid — could you double-check it?")
	}

	email := strings.TrimSpace(req.PatientEmail)
	if email == "" || !strings.Contains(email, "@") {
		return missingInfo("patient_email", "Could you share your email address? We'll send your confirmation there.")
	}

	return nil
}

// digitsOnly strips every non-digit rune from a phone number.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneAuthDigits is how many trailing digits must match for self-service
// cancel/reschedule/lookup. Deliberately tolerant of formatting differences
// (country codes, separators); this is the sole authorization mechanism on
// channels without logins.
const phoneAuthDigits = 6

// phoneMatches compares the stored and presented phone numbers on their
// last phoneAuthDigits digits.
func phoneMatches(stored, presented string) bool {
	s := digitsOnly(stored)
	p := digitsOnly(presented)
	if len(s) < phoneAuthDigits || len(p) < phoneAuthDigits {
		return false
	}
	return s[len(s)-phoneAuthDigits:] == p[len(p)-phoneAuthDigits:]
}
