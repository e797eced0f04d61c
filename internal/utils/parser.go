package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string supporting multiple formats:
//   - Go duration: "2h", "30m", "1h30m", "90s"
//   - HH:MM:SS format: "02:00:00", "2:30:00", "00:30:00"
//   - H:MM format: "2:30" (interpreted as hours:minutes)
//   - SLURM day format: "1-12:00:00"
//   - Bare number: hours, as the in-job timer takes it ("23.5")
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	var days time.Duration
	if dash := strings.Index(s, "-"); dash > 0 && strings.Contains(s, ":") {
		d, err := strconv.Atoi(s[:dash])
		if err != nil || d < 0 {
			return 0, fmt.Errorf("invalid days: %s", s[:dash])
		}
		days = time.Duration(d) * 24 * time.Hour
		s = s[dash+1:]
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		nums := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid time component %q in %s", p, s)
			}
			nums[i] = n
		}
		switch len(nums) {
		case 2:
			return days + time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute, nil
		case 3:
			return days + time.Duration(nums[0])*time.Hour +
				time.Duration(nums[1])*time.Minute +
				time.Duration(nums[2])*time.Second, nil
		default:
			return 0, fmt.Errorf("invalid time format: %s (use HH:MM:SS or HH:MM)", s)
		}
	}

	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		if hours < 0 {
			return 0, fmt.Errorf("negative duration: %s", s)
		}
		return time.Duration(hours * float64(time.Hour)), nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s (use '2h', '30m', '1h30m', or '02:00:00')", s)
	}
	return dur, nil
}

// FormatDuration renders a duration as HH:MM:SS, the way job footers print elapsed time.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
