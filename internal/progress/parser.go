// Package progress turns raw extraction tool output into progress events.
package progress

import (
	"regexp"
	"strconv"

	"github.com/veranemoloko/audio-downloader/internal/domain"
)

var percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// ParseLine extracts the first "<number>%" in line. Lines without one are
// ordinary tool chatter and yield false.
func ParseLine(line string) (domain.ProgressEvent, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return domain.ProgressEvent{}, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.ProgressEvent{}, false
	}
	return domain.PercentEvent(value, m[1]), true
}
