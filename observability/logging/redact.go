package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// Secret returns an attr whose value is masked when non-empty. Empty values
// pass through so absent credentials stay visible as absent.
func Secret(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
