package audit

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// FileSink appends each event to a local file, either as newline-
// delimited JSON or CEF. The path may embed strftime-style date
// placeholders (%Y, %m, %d), re-resolved on every Deliver call so
// writes naturally roll onto a new file at midnight.
type FileSink struct {
	baseSink
	pathTemplate string
	format       string // json, cef
	clockNow     func() time.Time
}

func NewFileSink(name, pathTemplate, format string, minSeverity Severity) *FileSink {
	return &FileSink{
		baseSink:     baseSink{name: name, minSeverity: minSeverity},
		pathTemplate: pathTemplate,
		format:       format,
		clockNow:     time.Now,
	}
}

// resolvePath expands the strftime-like placeholders this sink
// supports: %Y, %m, %d.
func resolvePath(template string, now time.Time) string {
	r := strings.NewReplacer(
		"%Y", now.Format("2006"),
		"%m", now.Format("01"),
		"%d", now.Format("02"),
	)
	return r.Replace(template)
}

func (s *FileSink) Deliver(ctx context.Context, batch []Event) error {
	path := resolvePath(s.pathTemplate, s.clockNow().UTC())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return trace.Wrap(&SinkUnavailableError{Sink: s.name})
	}
	defer f.Close()

	for _, e := range batch {
		var line string
		switch s.format {
		case "cef":
			line = formatCEF(e)
		default:
			b, err := json.Marshal(toStreamEvent(e))
			if err != nil {
				return trace.Wrap(&SinkFormatError{Sink: s.name, Detail: err.Error()})
			}
			line = string(b)
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			return trace.Wrap(&SinkUnavailableError{Sink: s.name})
		}
	}
	return nil
}
