package derive

import (
	"strings"
	"time"
)

// quarterWindow is one fiscal-quarter date range. Boundaries are inclusive
// on both ends. The label year is offset from the calendar dates: fiscal
// 2022 Q2 spans calendar 2021-04-30 through 2021-07-29.
type quarterWindow struct {
	start string
	end   string
	label string
}

// quarterWindows is the curated fiscal calendar. The boundary dates are
// fixed historical constants and are not aligned to calendar quarters.
// The slice order is significant: when windows overlap, the last matching
// window wins.
var quarterWindows = []quarterWindow{
	{"2020-02-01", "2020-04-30", "2021 Q1"},
	{"2020-05-01", "2020-07-30", "2021 Q2"},
	{"2020-07-31", "2020-10-29", "2021 Q3"},
	{"2020-10-30", "2021-01-28", "2021 Q4"},
	{"2021-01-29", "2021-04-29", "2022 Q1"},
	{"2021-04-30", "2021-07-29", "2022 Q2"},
	{"2021-07-30", "2021-10-28", "2022 Q3"},
	{"2021-10-29", "2022-01-27", "2022 Q4"},
	{"2022-01-28", "2022-04-28", "2023 Q1"},
	{"2022-04-29", "2022-07-28", "2023 Q2"},
	{"2022-07-29", "2022-10-27", "2023 Q3"},
	{"2022-10-28", "2023-01-26", "2023 Q4"},
	{"2023-01-27", "2023-04-27", "2024 Q1"},
	{"2023-04-28", "2023-07-27", "2024 Q2"},
	{"2023-07-28", "2023-10-26", "2024 Q3"},
	{"2023-10-27", "2024-01-25", "2024 Q4"},
	{"2024-01-26", "2024-04-25", "2025 Q1"},
	{"2024-04-26", "2024-07-25", "2025 Q2"},
	{"2024-07-26", "2024-10-24", "2025 Q3"},
	{"2024-10-25", "2025-01-23", "2025 Q4"},
	{"2025-01-24", "2025-04-24", "2026 Q1"},
	{"2025-04-25", "2025-07-24", "2026 Q2"},
	{"2025-07-25", "2025-10-23", "2026 Q3"},
	{"2025-10-24", "2026-01-22", "2026 Q4"},
}

const dateLayout = "2006-01-02"

// RenewalQuarter maps a close date onto its fiscal-quarter label, or
// "Unknown" when the date falls outside every window. The date may carry a
// time component; only the calendar day is considered.
func RenewalQuarter(closeDate string) string {
	day := closeDate
	if len(day) > len(dateLayout) {
		day = day[:len(dateLayout)]
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(day))
	if err != nil {
		return "Unknown"
	}

	label := "Unknown"
	for _, w := range quarterWindows {
		start, _ := time.Parse(dateLayout, w.start)
		end, _ := time.Parse(dateLayout, w.end)
		if !d.Before(start) && !d.After(end) {
			label = w.label
		}
	}
	return label
}
