// internal/writer/writer.go
package writer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// multi fans one record out to every sink.
// A failing sink does not stop delivery to the others.
type multi struct {
	sinks []namedWriter
}

type namedWriter struct {
	name string
	w    Writer
}

// Multi combines sinks. Nil writers are skipped.
func Multi(sinks map[string]Writer) Writer {
	m := &multi{}
	for _, name := range sortedKeys(sinks) {
		if sinks[name] == nil {
			continue
		}
		m.sinks = append(m.sinks, namedWriter{name: name, w: sinks[name]})
	}
	return m
}

func (m *multi) Write(ctx context.Context, rec Record) error {
	if len(rec.Fields) == 0 {
		return errors.New("writer: record has no fields")
	}

	var errs []string
	for _, s := range m.sinks {
		if err := s.w.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New("writer: " + strings.Join(errs, " | "))
	}
	return nil
}

// Discard drops every record.
type Discard struct{}

func (Discard) Write(context.Context, Record) error { return nil }

func sortedKeys(m map[string]Writer) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
