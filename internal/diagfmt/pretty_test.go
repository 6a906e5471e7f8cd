package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"cabi/internal/diag"
	"cabi/internal/source"
)

func TestPathModes(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("[[typedef]]\nname = \"bad\"\ntype = \"int [-1]\"\n")
	fileID := fs.AddVirtual("/home/user/project/abi/desc.toml", content)
	fs.SetBaseDir("/home/user/project")

	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.AbiInvalidArraySize, source.Span{File: fileID, Start: 32, End: 40}, "array size -1 is negative"))

	tests := []struct {
		name     string
		mode     PathMode
		contains string
	}{
		{"absolute", PathModeAbsolute, "/home/user/project/abi/desc.toml:3:8"},
		{"relative", PathModeRelative, "abi/desc.toml:3:8"},
		{"basename", PathModeBasename, "desc.toml:3:8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode})
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.contains)
			}
		})
	}
}

func TestPrettyExcerpt(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("[[typedef]]\nname = \"bad\"\ntype = \"int [-1]\"\n")
	fileID := fs.AddVirtual("desc.toml", content)
	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.AbiInvalidArraySize, source.Span{File: fileID, Start: 32, End: 40}, "array size -1 is negative").
		WithNote(source.Span{File: fileID, Start: 12, End: 24}, "declared here"))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename, Context: 1, ShowNotes: true})
	want := strings.Join([]string{
		"desc.toml:3:8: ERROR ABI4003: array size -1 is negative",
		"2 | name = \"bad\"",
		"3 | type = \"int [-1]\"",
		"  |        ^~~~~~~~",
		"  note: desc.toml:2:1: declared here",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("Pretty output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrettyColor(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("a.toml", []byte("x = 1\n"))
	bag := diag.NewBag(1)
	bag.Add(diag.NewError(diag.DscInvalid, source.Span{File: fileID, Start: 0, End: 1}, "bad"))

	var plain, colored bytes.Buffer
	Pretty(&plain, bag, fs, PrettyOpts{})
	Pretty(&colored, bag, fs, PrettyOpts{Color: true})
	if strings.Contains(plain.String(), "\x1b[") {
		t.Errorf("plain output has escape codes: %q", plain.String())
	}
	if !strings.Contains(colored.String(), "\x1b[") {
		t.Errorf("colored output has no escape codes: %q", colored.String())
	}
}
