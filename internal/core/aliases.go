package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasOverrides holds deployment-specific header spellings, keyed by kind
// then canonical field:
//
//	beneficiary:
//	  telephone: ["GSM", "N° portable"]
//	participant:
//	  nom: ["Nom de famille"]
type AliasOverrides map[Kind]map[Field][]string

// LoadAliasOverrides reads an override file. An empty path yields no overrides.
func LoadAliasOverrides(path string) (AliasOverrides, error) {
	if path == "" {
		return AliasOverrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	return ParseAliasOverrides(data)
}

// ParseAliasOverrides decodes YAML override data.
func ParseAliasOverrides(data []byte) (AliasOverrides, error) {
	var out AliasOverrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}
	if out == nil {
		out = AliasOverrides{}
	}
	return out, nil
}

// Apply returns a copy of schema with override aliases placed ahead of the
// built-in ones. Overrides naming unknown fields are reported as an error.
func (o AliasOverrides) Apply(schema Schema) (Schema, error) {
	extra := o[schema.Kind]
	if len(extra) == 0 {
		return schema, nil
	}

	fields := make([]FieldSpec, len(schema.Fields))
	copy(fields, schema.Fields)
	for name, aliases := range extra {
		found := false
		for i := range fields {
			if fields[i].Name == name {
				fields[i].Aliases = append(append([]string{}, aliases...), fields[i].Aliases...)
				found = true
				break
			}
		}
		if !found {
			return schema, fmt.Errorf("alias override for %s: unknown field %q", schema.Kind, name)
		}
	}
	schema.Fields = fields
	return schema, nil
}
