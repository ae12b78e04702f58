package recording

import (
	"sync"
	"time"

	"github.com/streamvault/streamvault-go/internal/stream"
)

// recordGate stands in for a togglerecord element: it gates buffers on
// a record boolean and records the PTS of the first frame it sees as
// the playback origin, whether or not it is recording. It does not
// track playback time beyond that origin, and nothing outside the gate
// reads the origin; keyframe alignment after pause/resume comes from
// the segment writer, which opens a segment only on a keyframe.
type recordGate struct {
	mu         sync.Mutex
	recording  bool
	haveOrigin bool
	origin     time.Time
}

func newRecordGate() *recordGate {
	return &recordGate{}
}

func (g *recordGate) setRecording(v bool) {
	g.mu.Lock()
	g.recording = v
	g.mu.Unlock()
}

func (g *recordGate) isRecording() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recording
}

// admit tracks the playback origin unconditionally and reports whether
// the frame should pass through to the segment writer.
func (g *recordGate) admit(f stream.Frame) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.haveOrigin {
		g.origin = f.PTS
		g.haveOrigin = true
	}
	return g.recording
}
