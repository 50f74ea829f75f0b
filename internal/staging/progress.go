package staging

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// insertTracker reports bulk-load progress on stderr. It only renders when
// a load spans more than one chunk; small loads finish before a bar is
// worth drawing.
type insertTracker struct {
	pw      progress.Writer
	tracker *progress.Tracker
}

func (s *Store) newInsertTracker(table string, total int) *insertTracker {
	if total <= chunkRows {
		return &insertTracker{}
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(os.Stderr)
	pw.SetTrackerLength(40)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetAutoStop(true)

	tracker := &progress.Tracker{
		Message: fmt.Sprintf("loading %s", table),
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)
	go pw.Render()

	return &insertTracker{pw: pw, tracker: tracker}
}

func (t *insertTracker) advance(n int64) {
	if t.tracker != nil {
		t.tracker.Increment(n)
	}
}

func (t *insertTracker) done() {
	if t.tracker == nil {
		return
	}
	t.tracker.MarkAsDone()
	for t.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}
