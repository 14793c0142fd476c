package usecase

import "testing"

func TestDelimiterParserSplits(t *testing.T) {
	p := NewDelimiterParser()
	raw := "Some preamble\n- Problem: the loop never terminates\n- Solution: add a break condition\nremember edge cases"
	problem, solution := p.Parse(raw)
	if problem != "the loop never terminates" {
		t.Errorf("problem = %q", problem)
	}
	if solution != "add a break condition\nremember edge cases" {
		t.Errorf("solution = %q", solution)
	}
}

func TestDelimiterParserMissingMarkers(t *testing.T) {
	p := NewDelimiterParser()

	problem, solution := p.Parse("  just an answer with no structure  ")
	if problem != "" || solution != "just an answer with no structure" {
		t.Errorf("got problem=%q solution=%q", problem, solution)
	}

	// Problem marker without a solution marker falls back the same way.
	problem, solution = p.Parse("- Problem: something broke but no fix given")
	if problem != "" {
		t.Errorf("want empty problem, got %q", problem)
	}
	if solution != "- Problem: something broke but no fix given" {
		t.Errorf("solution = %q", solution)
	}
}
