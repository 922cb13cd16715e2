package cli

import (
	"fmt"
	"time"

	"agentgate/internal/gateway"

	"github.com/jedib0t/go-pretty/v6/text"
)

// FormatError formats an error message for CLI output
func FormatError(err error) string {
	return fmt.Sprintf("Error: %v", err)
}

// FormatSuccess formats a success message for CLI output
func FormatSuccess(msg string) string {
	return fmt.Sprintf("✓ %s", msg)
}

// FormatWarning formats a warning message for CLI output
func FormatWarning(msg string) string {
	return fmt.Sprintf("⚠ %s", msg)
}

// FormatStatus renders a resource status with color so READY, FAILED and
// the in-between states can be told apart at a glance.
func FormatStatus(status gateway.Status) string {
	switch status {
	case gateway.StatusReady:
		return text.FgGreen.Sprint(string(status))
	case gateway.StatusFailed:
		return text.FgRed.Sprint(string(status))
	case gateway.StatusCreating, gateway.StatusUpdating, gateway.StatusDeleting:
		return text.FgYellow.Sprint(string(status))
	case gateway.StatusAbsent, gateway.StatusDeleted:
		return text.FgHiBlack.Sprint(string(status))
	default:
		return string(status)
	}
}

// FormatDuration renders a duration in the largest sensible unit.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// FormatExpiry formats a time as "in X" or "expired X ago".
func FormatExpiry(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + FormatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", FormatDuration(-remaining))
}
