package logger

import "strings"

// RedactEmail masks a recipient address before it reaches the log stream.
// "john.doe@example.com" → "jo***@example.com"
// Local parts of two characters or fewer are fully masked.
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "***@***"
	}
	name, domain := email[:at], email[at+1:]
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
