package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive attribute values in log output.
const RedactedValue = "[REDACTED]"

// plainKeys name the request and ledger attributes that are public on the
// auction program and may be logged verbatim. Keys are matched lower-cased.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"component": {},
	"error":     {},
	"reason":    {},
	"requestid": {},
	"method":    {},
	"op":        {},
	"kind":      {},
	"outcome":   {},
	"auction":   {},
	"caller":    {},
	"address":   {},
	"control":   {},
	"nonce":     {},
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField builds a string attribute for key, replacing value with
// RedactedValue unless key is allowlisted. Empty values are kept so a missing
// field stays distinguishable from a masked one.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
