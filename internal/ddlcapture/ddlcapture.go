// Package ddlcapture implements the process-utility DDL capture
// described in spec §9 DESIGN NOTES ("Linked list of GUC overrides"):
// an insertion-ordered map of GUC overrides that must be prepended to
// DDL before it is forwarded verbatim to peers. There is no teacher
// analogue (FC is a benchmarking harness with no DDL path); grounded
// directly on that design note.
package ddlcapture

import "sync"

// GUCKind distinguishes the host engine's four ways of setting a GUC
// during a utility command, mirroring Postgres' own VariableSetKind.
type GUCKind int

const (
	VarSetValue GUCKind = iota
	VarSetDefault
	VarSetCurrent
	VarSetMulti
)

// Pair is one GUC override in insertion order.
type Pair struct {
	Key   string
	Value string
}

// OrderedOverrides is an insertion-ordered map of GUC name to pending
// override value: a sequence of pairs backed by a hash index so a
// repeated Set on the same key updates in place without disturbing the
// original position, and Pairs() always replays in insertion order.
type OrderedOverrides struct {
	mu    sync.Mutex
	order []string
	vals  map[string]string
}

// NewOrderedOverrides returns an empty override map.
func NewOrderedOverrides() *OrderedOverrides {
	return &OrderedOverrides{vals: map[string]string{}}
}

// Set records name=value, appending name to the insertion order only
// the first time it is seen.
func (o *OrderedOverrides) Set(name, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, seen := o.vals[name]; !seen {
		o.order = append(o.order, name)
	}
	o.vals[name] = value
}

// Pairs returns every recorded override in insertion order.
func (o *OrderedOverrides) Pairs() []Pair {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Pair, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, Pair{Key: k, Value: o.vals[k]})
	}
	return out
}

// Reset clears every recorded override, called once a DDL statement
// using them has been forwarded.
func (o *OrderedOverrides) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.order = nil
	o.vals = map[string]string{}
}

// DDLRecord is one captured process-utility invocation ready for
// replication: the GUC overrides staged ahead of it (as SET
// statements, in the order they were staged) and the DDL string
// itself, forwarded verbatim (§1 non-goals: "SQL-level correctness of
// DDL" is out of scope — this core never parses the statement).
type DDLRecord struct {
	SetStatements []string
	Statement     string
}

// Capture accumulates GUC overrides across a utility command's nested
// SET processing and produces the combined DDLRecord to forward.
type Capture struct {
	overrides *OrderedOverrides
}

// NewCapture returns an empty Capture.
func NewCapture() *Capture {
	return &Capture{overrides: NewOrderedOverrides()}
}

// SetGUC stages a GUC override for the next forwarded statement.
// VAR_SET_CURRENT and VAR_SET_MULTI are a no-op: the source this spec
// is drawn from does not capture them either, preserved here as spec
// §9 flags ("possibly-buggy") rather than silently fixed.
func (c *Capture) SetGUC(kind GUCKind, name, value string) {
	switch kind {
	case VarSetCurrent, VarSetMulti:
		return
	default:
		c.overrides.Set(name, value)
	}
}

// ForwardDDL produces the DDLRecord for stmt using whatever overrides
// have been staged since the last call, then clears them.
func (c *Capture) ForwardDDL(stmt string) DDLRecord {
	pairs := c.overrides.Pairs()
	sets := make([]string, 0, len(pairs))
	for _, p := range pairs {
		sets = append(sets, "SET "+p.Key+" = "+p.Value)
	}
	c.overrides.Reset()
	return DDLRecord{SetStatements: sets, Statement: stmt}
}
