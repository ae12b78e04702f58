package recording

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// renderPath expands pattern's strftime-style tokens against t, appends
// a zero-padded fragment index, and joins it under baseDir with the
// muxer's extension. The result is always absolute.
func renderPath(baseDir, pattern string, t time.Time, index int, muxer Muxer) (string, error) {
	replacer := strings.NewReplacer(
		"%Y", fmt.Sprintf("%04d", t.Year()),
		"%m", fmt.Sprintf("%02d", int(t.Month())),
		"%d", fmt.Sprintf("%02d", t.Day()),
		"%H", fmt.Sprintf("%02d", t.Hour()),
		"%M", fmt.Sprintf("%02d", t.Minute()),
		"%S", fmt.Sprintf("%02d", t.Second()),
	)
	name := fmt.Sprintf("%s_%04d.%s", replacer.Replace(pattern), index, muxer.String())

	abs, err := filepath.Abs(filepath.Join(baseDir, name))
	if err != nil {
		return "", err
	}
	return abs, nil
}
