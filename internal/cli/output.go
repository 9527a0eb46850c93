package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

func writeRecord(w io.Writer, format string, rec kv.Record) error {
	if format == "json" {
		return writeJSON(w, rec)
	}
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s rev=%d %s\n", rec.Key, rec.Revision, value)
	return err
}

func writeKeys(w io.Writer, format string, keys []string) error {
	if format == "json" {
		if keys == nil {
			keys = []string{}
		}
		return writeJSON(w, keys)
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(w, k); err != nil {
			return err
		}
	}
	return nil
}

func writeResult(w io.Writer, format, name string, ok bool) error {
	if format == "json" {
		return writeJSON(w, map[string]bool{name: ok})
	}
	_, err := fmt.Fprintf(w, "%s: %t\n", name, ok)
	return err
}
