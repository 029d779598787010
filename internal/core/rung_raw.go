package core

import (
	"time"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// encodeRaw emits one record per event. Code bodies appear only here, with
// string literals folded when redaction is enabled.
func (c *rungChain) encodeRaw() draft {
	var d draft
	records := make([]models.RawRecord, 0, len(c.trace.Events))
	for _, ev := range c.trace.Events {
		a := ev.Attrs
		rec := models.RawRecord{
			Seq:          a.Seq,
			Symbol:       ev.Symbol,
			Kind:         a.Kind,
			Timestamp:    ev.Timestamp.UTC().Format(time.RFC3339Nano),
			FilePath:     a.FilePath,
			Language:     a.Language,
			LinesAdded:   a.LinesAdded,
			LinesRemoved: a.LinesRemoved,
			Command:      a.Command,
			Intent:       intentOf(a),
		}
		if a.HasCode() {
			code := a.After
			if code == "" {
				code = a.Diff
			}
			if code == "" {
				code = a.Before
			}
			if c.opts.RedactPIIEnabled {
				code = c.enc.redactor.RedactCode(code)
			}
			rec.Code = code
		}
		if c.opts.IncludePrompts {
			rec.Prompt = a.Prompt
		}
		records = append(records, rec)
	}
	d.rep.Raw = records
	return d
}
