// internal/register/yaml.go
package register

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlDefinition is the on-disk shape of one definition.
// Entries stays a node so declaration order survives decoding.
type yamlDefinition struct {
	Address uint16    `yaml:"address"`
	Count   int       `yaml:"count"`
	Signed  bool      `yaml:"signed"`
	Factor  float64   `yaml:"factor"`
	Float   bool      `yaml:"float"`
	Block   bool      `yaml:"block"`
	Entries yaml.Node `yaml:"entries"`
}

// UnmarshalYAML decodes a mapping of name -> definition, keeping order.
// Schema.Name is left for the caller to set.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	defs, err := decodeDefinitions(node, 0, false)
	if err != nil {
		return err
	}
	s.Definitions = defs
	return nil
}

func decodeDefinitions(node *yaml.Node, base uint16, inBlock bool) ([]Definition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected mapping of register definitions", ErrInvalidSchema, node.Line)
	}

	defs := make([]Definition, 0, len(node.Content)/2)
	offset := base

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var yd yamlDefinition
		if err := val.Decode(&yd); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchema, key.Value, err)
		}

		d := Definition{
			Name:    key.Value,
			Address: yd.Address,
			Count:   yd.Count,
			Signed:  yd.Signed,
			Factor:  yd.Factor,
			Float:   yd.Float,
			Block:   yd.Block,
		}

		// Block entries are laid out back-to-back; their address is implied.
		if inBlock {
			d.Address = offset
			offset += uint16(d.Count)
		}

		if yd.Block {
			if inBlock {
				return nil, fmt.Errorf("%w: %q: nested block", ErrInvalidSchema, key.Value)
			}
			if yd.Entries.Kind == 0 {
				return nil, fmt.Errorf("%w: block %q has no entries", ErrInvalidSchema, key.Value)
			}
			entries, err := decodeDefinitions(&yd.Entries, yd.Address, true)
			if err != nil {
				return nil, fmt.Errorf("block %q: %w", key.Value, err)
			}
			d.Entries = entries
		}

		defs = append(defs, d)
	}

	return defs, nil
}
