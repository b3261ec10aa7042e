package loyalty

import "strings"

// extractCSRFToken finds the crf=<value> fragment in a percent-decoded
// session cookie value. The fragment may appear anywhere in the string and
// is terminated by ';' or end of string.
func extractCSRFToken(decoded string) (string, bool) {
	const marker = "crf="
	i := strings.Index(decoded, marker)
	if i < 0 {
		return "", false
	}
	token := decoded[i+len(marker):]
	if j := strings.IndexByte(token, ';'); j >= 0 {
		token = token[:j]
	}
	return token, true
}
