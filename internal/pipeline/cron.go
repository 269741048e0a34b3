package pipeline

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a 5-field "minute hour day-of-month month
// day-of-week" expression. Day-of-week 7 is accepted as Sunday.
func ParseSchedule(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	fields[4] = sundayAsZero(fields[4])
	return cron.ParseStandard(strings.Join(fields, " "))
}

// sundayAsZero rewrites day-of-week 7 to 0, including as a range end.
func sundayAsZero(field string) string {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		switch {
		case part == "7":
			parts[i] = "0"
		case strings.HasSuffix(part, "-7") && !strings.Contains(part, "/"):
			parts[i] = strings.TrimSuffix(part, "-7") + "-6,0"
		}
	}
	return strings.Join(parts, ",")
}
