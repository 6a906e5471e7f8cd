package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// JSON writes rep as indented JSON.
func JSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// Encode writes rep as msgpack, the format code generators consume.
func Encode(w io.Writer, rep Report) error {
	return msgpack.NewEncoder(w).Encode(rep)
}

// Decode reads a report written by Encode.
func Decode(r io.Reader) (Report, error) {
	var rep Report
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&rep); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}
