// Package testkit holds invariant checks shared by package tests.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"cabi/internal/diag"
	"cabi/internal/report"
	"cabi/internal/source"
)

// CheckDiagnosticSpans verifies that every primary and note span in bag
// points into a file of fs and lies within its content.
func CheckDiagnosticSpans(bag *diag.Bag, fs *source.FileSet) error {
	if bag == nil || fs == nil {
		return fmt.Errorf("nil bag or file set")
	}
	for _, d := range bag.Items() {
		if err := checkSpan(fs, d.Primary); err != nil {
			return fmt.Errorf("%s %q: %w", d.Code.ID(), d.Message, err)
		}
		for _, n := range d.Notes {
			if err := checkSpan(fs, n.Span); err != nil {
				return fmt.Errorf("%s note %q: %w", d.Code.ID(), n.Msg, err)
			}
		}
	}
	return nil
}

func checkSpan(fs *source.FileSet, sp source.Span) error {
	f := fs.Get(sp.File)
	if f == nil {
		return fmt.Errorf("span %v names an unknown file", sp)
	}
	n, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if sp.End < sp.Start {
		return fmt.Errorf("inverted span %v", sp)
	}
	if sp.End > n {
		return fmt.Errorf("span end beyond content: %d > %d", sp.End, n)
	}
	return nil
}

// CheckRecordLayout verifies the layout rules every complete record obeys:
// size is a positive multiple of align, fields are aligned and fit, and
// struct fields do not overlap while union fields all start at zero.
func CheckRecordLayout(rec report.Record) error {
	if !rec.Complete || rec.Error != "" {
		return nil
	}
	if rec.Align <= 0 || rec.Size <= 0 || rec.Size%rec.Align != 0 {
		return fmt.Errorf("%s %s: size %d is not a positive multiple of align %d", rec.Kind, rec.Name, rec.Size, rec.Align)
	}
	var end int64
	for _, f := range rec.Fields {
		if f.Align <= 0 || f.Offset%f.Align != 0 {
			return fmt.Errorf("%s.%s: offset %d not aligned to %d", rec.Name, f.Name, f.Offset, f.Align)
		}
		if f.Align > rec.Align {
			return fmt.Errorf("%s.%s: align %d exceeds record align %d", rec.Name, f.Name, f.Align, rec.Align)
		}
		if f.Offset+f.Size > rec.Size {
			return fmt.Errorf("%s.%s: ends at %d past size %d", rec.Name, f.Name, f.Offset+f.Size, rec.Size)
		}
		switch rec.Kind {
		case "union":
			if f.Offset != 0 {
				return fmt.Errorf("%s.%s: union member at offset %d", rec.Name, f.Name, f.Offset)
			}
		default:
			if f.Offset < end {
				return fmt.Errorf("%s.%s: offset %d overlaps previous field ending at %d", rec.Name, f.Name, f.Offset, end)
			}
			end = f.Offset + f.Size
		}
	}
	return nil
}
