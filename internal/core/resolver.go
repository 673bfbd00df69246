package core

// HeaderMatchThreshold is the minimum number of recognized labels for a row
// to be treated as the header row.
const HeaderMatchThreshold = 2

// Resolver maps arbitrary header labels to canonical fields using the alias
// lists declared on a schema. Lookups are case and diacritics insensitive.
type Resolver struct {
	fields  []Field
	aliases map[Field][]string
	known   map[string]bool
}

// NewResolver builds a resolver for schema. The canonical field name is always
// accepted as a last-resort alias.
func NewResolver(schema Schema) *Resolver {
	r := &Resolver{
		aliases: make(map[Field][]string, len(schema.Fields)),
		known:   make(map[string]bool),
	}
	for _, spec := range schema.Fields {
		r.fields = append(r.fields, spec.Name)
		seen := make(map[string]bool)
		for _, a := range append(append([]string{}, spec.Aliases...), string(spec.Name)) {
			key := FoldText(a)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			r.aliases[spec.Name] = append(r.aliases[spec.Name], key)
			r.known[key] = true
		}
	}
	return r
}

// Resolve returns the raw value for every canonical field found in row. For
// each field the aliases are scanned in priority order and the first one
// present with a non-empty value wins. Missing fields are left out.
func (r *Resolver) Resolve(row RawRow) map[Field]string {
	cells := make(map[string]string, len(row.Cells))
	for _, c := range row.Cells {
		key := FoldText(c.Header)
		if key == "" {
			continue
		}
		if prev := cells[key]; prev != "" {
			continue
		}
		cells[key] = CleanCell(c.Value)
	}

	out := make(map[Field]string, len(r.fields))
	for _, f := range r.fields {
		for _, alias := range r.aliases[f] {
			if v := cells[alias]; v != "" {
				out[f] = v
				break
			}
		}
	}
	return out
}

// IsHeader reports whether cells look like the header row of this schema.
func (r *Resolver) IsHeader(cells []string) bool {
	matched := 0
	for _, c := range cells {
		if r.known[FoldText(CleanCell(c))] {
			matched++
			if matched >= HeaderMatchThreshold {
				return true
			}
		}
	}
	return false
}
