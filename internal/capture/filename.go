package capture

import (
	"strconv"
	"strings"
)

// SubstituteFilename expands %s to the output index, %i to the application
// id and %% to a percent sign. Other escapes, and a trailing lone percent,
// are dropped.
func SubstituteFilename(pattern string, outputIndex int, appID string) string {
	var b strings.Builder
	percent := false
	for _, c := range pattern {
		if !percent {
			if c == '%' {
				percent = true
			} else {
				b.WriteRune(c)
			}
			continue
		}
		switch c {
		case '%':
			b.WriteRune('%')
		case 's':
			b.WriteString(strconv.Itoa(outputIndex))
		case 'i':
			b.WriteString(appID)
		}
		percent = false
	}
	return b.String()
}
