package document

import (
	"fmt"
	"regexp"
	"strconv"
)

var headerMarker = regexp.MustCompile(`%PDF-(\d+)\.(\d+)`)

// maxHeaderVersion scans for every %PDF-x.y marker and returns the
// numerically greatest version. Some producers prepend junk or embed
// whole PDFs, so position in the file is no tiebreaker.
func maxHeaderVersion(data []byte) (string, bool) {
	matches := headerMarker.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return "", false
	}
	bestMajor, bestMinor := -1, -1
	for _, m := range matches {
		major, err1 := strconv.Atoi(string(m[1]))
		minor, err2 := strconv.Atoi(string(m[2]))
		if err1 != nil || err2 != nil {
			continue
		}
		if major > bestMajor || (major == bestMajor && minor > bestMinor) {
			bestMajor, bestMinor = major, minor
		}
	}
	if bestMajor < 0 {
		return "", false
	}
	return fmt.Sprintf("%d.%d", bestMajor, bestMinor), true
}
