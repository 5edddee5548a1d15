package ddlcapture

import "testing"

func TestOrderedOverridesPreservesInsertionOrder(t *testing.T) {
	o := NewOrderedOverrides()
	o.Set("b", "2")
	o.Set("a", "1")
	o.Set("b", "20") // repeat key: updates value, keeps original position

	got := o.Pairs()
	want := []Pair{{Key: "b", Value: "20"}, {Key: "a", Value: "1"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResetClearsOverrides(t *testing.T) {
	o := NewOrderedOverrides()
	o.Set("a", "1")
	o.Reset()
	if pairs := o.Pairs(); len(pairs) != 0 {
		t.Fatalf("expected empty after reset, got %+v", pairs)
	}
}

func TestSetGUCIgnoresCurrentAndMulti(t *testing.T) {
	c := NewCapture()
	c.SetGUC(VarSetCurrent, "search_path", "public")
	c.SetGUC(VarSetMulti, "statement_timeout", "30s")
	c.SetGUC(VarSetValue, "work_mem", "'64MB'")

	rec := c.ForwardDDL("ALTER TABLE t ADD COLUMN v int")
	if len(rec.SetStatements) != 1 || rec.SetStatements[0] != "SET work_mem = '64MB'" {
		t.Fatalf("expected only the VAR_SET_VALUE override forwarded, got %+v", rec.SetStatements)
	}
}

func TestForwardDDLClearsOverridesForNextStatement(t *testing.T) {
	c := NewCapture()
	c.SetGUC(VarSetValue, "work_mem", "'64MB'")
	c.ForwardDDL("CREATE TABLE t(k int)")

	rec := c.ForwardDDL("ALTER TABLE t ADD COLUMN v int")
	if len(rec.SetStatements) != 0 {
		t.Fatalf("expected no leftover overrides, got %+v", rec.SetStatements)
	}
	if rec.Statement != "ALTER TABLE t ADD COLUMN v int" {
		t.Fatalf("unexpected statement: %s", rec.Statement)
	}
}

func TestForwardDDLOrdersSetStatementsByInsertion(t *testing.T) {
	c := NewCapture()
	c.SetGUC(VarSetValue, "b", "2")
	c.SetGUC(VarSetDefault, "a", "1")

	rec := c.ForwardDDL("CREATE INDEX idx ON t(k)")
	want := []string{"SET b = 2", "SET a = 1"}
	if len(rec.SetStatements) != 2 || rec.SetStatements[0] != want[0] || rec.SetStatements[1] != want[1] {
		t.Fatalf("got %+v, want %+v", rec.SetStatements, want)
	}
}
