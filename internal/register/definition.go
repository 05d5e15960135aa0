// internal/register/definition.go
package register

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchema reports a malformed register definition.
	ErrInvalidSchema = errors.New("register: invalid schema")

	// ErrInsufficientWords reports a raw buffer shorter than the schema declares.
	ErrInsufficientWords = errors.New("register: insufficient words")
)

// Definition describes how to interpret raw words read from one address.
// Immutable after load.
type Definition struct {
	Name    string
	Address uint16

	// Count is 1 (16 bit) or 2 (32 bit). Unused for blocks.
	Count  int
	Signed bool
	Factor float64
	Float  bool

	// Block definitions are read in one contiguous request and decoded
	// entry by entry, back-to-back, in declaration order.
	Block   bool
	Entries []Definition
}

// Schema is an ordered set of top-level definitions read in one cycle.
type Schema struct {
	Name        string
	Definitions []Definition
}

// Words returns the number of raw words a read of d must return.
func (d Definition) Words() int {
	if !d.Block {
		return d.Count
	}
	n := 0
	for _, e := range d.Entries {
		n += e.Count
	}
	return n
}

// factor returns the scale factor, defaulting to 1 when unset.
func (d Definition) factor() float64 {
	if d.Factor == 0 {
		return 1
	}
	return d.Factor
}

// Validate checks the structural invariants of d.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: definition without name at address %d", ErrInvalidSchema, d.Address)
	}

	if d.Block {
		if len(d.Entries) == 0 {
			return fmt.Errorf("%w: block %q has no entries", ErrInvalidSchema, d.Name)
		}
		seen := make(map[string]struct{}, len(d.Entries))
		for _, e := range d.Entries {
			if e.Block {
				return fmt.Errorf("%w: block %q: nested block %q", ErrInvalidSchema, d.Name, e.Name)
			}
			if err := e.Validate(); err != nil {
				return fmt.Errorf("block %q: %w", d.Name, err)
			}
			if _, dup := seen[e.Name]; dup {
				return fmt.Errorf("%w: block %q: duplicate entry %q", ErrInvalidSchema, d.Name, e.Name)
			}
			seen[e.Name] = struct{}{}
		}
		return nil
	}

	switch d.Count {
	case 1:
		if d.Float {
			return fmt.Errorf("%w: %q: float requires count 2", ErrInvalidSchema, d.Name)
		}
	case 2:
	default:
		return fmt.Errorf("%w: %q: count %d not in {1,2}", ErrInvalidSchema, d.Name, d.Count)
	}
	return nil
}

// Validate checks every definition and rejects duplicate value names
// across the whole schema (block entries share the namespace).
func (s Schema) Validate() error {
	if len(s.Definitions) == 0 {
		return fmt.Errorf("%w: schema %q is empty", ErrInvalidSchema, s.Name)
	}

	seen := make(map[string]struct{})
	claim := func(name string) error {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: schema %q: duplicate value name %q", ErrInvalidSchema, s.Name, name)
		}
		seen[name] = struct{}{}
		return nil
	}

	for _, d := range s.Definitions {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("schema %q: %w", s.Name, err)
		}
		if !d.Block {
			if err := claim(d.Name); err != nil {
				return err
			}
			continue
		}
		for _, e := range d.Entries {
			if err := claim(e.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
