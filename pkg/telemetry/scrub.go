package telemetry

import (
	"regexp"
	"strings"
)

// Redacted replaces identifying string values.
const Redacted = "[REDACTED]"

// piiExact are normalized keys dropped only on an exact match; they are too
// short to match as substrings.
var piiExact = map[string]bool{
	"ip":   true,
	"dob":  true,
	"ssn":  true,
	"name": true,
}

// piiFragments drop any key whose normalized form contains them.
var piiFragments = []string{
	"email", "phone", "mobile", "address", "street", "postcode", "zipcode",
	"firstname", "lastname", "fullname", "username", "displayname", "surname",
	"socialsecurity", "birth", "creditcard", "cardnumber", "ccnumber", "cvv",
	"iban", "accountnumber", "routing", "password", "passcode", "token", "secret",
	"recipient", "payee", "participant", "attendee", "signer", "contact",
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+[0-9]{1,3}[ .-]?)?\(?[0-9]{3}\)?[ .-]?[0-9]{3}[ .-]?[0-9]{4}\b`)
)

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "", " ", "", ".", "").Replace(k)
}

// IsPIIKey reports whether a data key names a personally identifying field.
func IsPIIKey(key string) bool {
	n := normalizeKey(key)
	if piiExact[n] {
		return true
	}
	for _, f := range piiFragments {
		if strings.Contains(n, f) {
			return true
		}
	}
	return false
}

// Scrub returns a copy of data without identifying keys, with email- and
// phone-shaped string values redacted. Nested maps and slices are scrubbed.
func Scrub(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if IsPIIKey(k) {
			continue
		}
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue(v any) any {
	switch t := v.(type) {
	case string:
		return scrubString(t)
	case map[string]any:
		return Scrub(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = scrubValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = scrubString(s)
		}
		return out
	default:
		return v
	}
}

func scrubString(s string) string {
	s = emailPattern.ReplaceAllString(s, Redacted)
	return phonePattern.ReplaceAllString(s, Redacted)
}
