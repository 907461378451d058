package matchclock

import "fmt"

// FormatClock renders elapsed playing time the way the live ticker shows it.
func FormatClock(elapsedSeconds int64) string {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	minutes := elapsedSeconds / 60
	seconds := elapsedSeconds % 60

	switch {
	case minutes >= 90:
		return fmt.Sprintf("90+%d", minutes-90)
	case minutes >= 45 && minutes < 60:
		return fmt.Sprintf("45+%d", minutes-45)
	default:
		return fmt.Sprintf("%d:%02d", minutes, seconds)
	}
}

// FormatEventMinute renders an event minute, using the half to show
// stoppage time ("45+2" in the first half, "90+3" in the second).
func FormatEventMinute(minute int, half *int) string {
	if half != nil {
		switch {
		case *half == 1 && minute > 45:
			return fmt.Sprintf("45+%d", minute-45)
		case *half == 2 && minute > 90:
			return fmt.Sprintf("90+%d", minute-90)
		}
	}
	return fmt.Sprintf("%d'", minute)
}
