package vtab

// columnDef describes one column of a compressed table's declared schema,
// reflected from its backing table at create/connect time.
type columnDef struct {
	name       string
	affinity   string
	notNull    bool
	pk         bool
	unique     bool
	compressed bool
}

// instance is the per-virtual-table state the module callbacks operate on,
// captured once at create/connect and immutable thereafter: the
// compressed-column set and column list never change without dropping and
// recreating the virtual table. uniqueGroups holds multi-column UNIQUE
// constraints (single-column ones are folded into columnDef.unique); checks
// holds CHECK(...) expression text verbatim, table-level in the declared
// schema regardless of how they were written on the backing table.
// legacyFallback holds the opt-in decode-fallback set read from the
// registry at connect time, the same way the compressed set itself is
// captured once rather than re-consulted per row.
type instance struct {
	backing        string
	columns        []columnDef
	pkIndices      []int
	compressed     map[int]bool
	uniqueGroups   [][]int
	checks         []string
	legacyFallback map[int]bool
}

func (in *instance) isCompressed(col int) bool {
	return in.compressed[col]
}

func (in *instance) isLegacyFallback(col int) bool {
	return in.legacyFallback[col]
}

func (in *instance) quotedColumns() []string {
	out := make([]string, len(in.columns))
	for i, c := range in.columns {
		out[i] = quoteIdent(c.name)
	}
	return out
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
