package core

import "testing"

func TestBudgetLineArithmetic(t *testing.T) {
	l := BudgetLine{
		CategoryName: "Spesa",
		Budgeted:     Money{Cents: 50000},
		Shifted:      Money{Cents: -5000},
		Actual:       Money{Cents: 15000},
	}
	if got := l.EffectiveBudget().Cents; got != 45000 {
		t.Fatalf("effective budget: got %d", got)
	}
	if got := l.Available().Cents; got != 30000 {
		t.Fatalf("available: got %d", got)
	}

	// Overspending drives the available amount negative.
	over := BudgetLine{Budgeted: Money{Cents: 1000}, Actual: Money{Cents: 2500}}
	if got := over.Available().Cents; got != -1500 {
		t.Fatalf("available: got %d", got)
	}
}
