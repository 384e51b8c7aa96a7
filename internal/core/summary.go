package core

// BudgetLine is one row of the budget-vs-actual comparison for a month:
// the budgeted amount for a tracked category, the net budget moved in or
// out by shifts, and the sum of recorded expenses. Derived, never persisted.
type BudgetLine struct {
	CategoryID   string
	CategoryName string
	Budgeted     Money
	Shifted      Money // net shift: incoming minus outgoing, may be negative
	Actual       Money
}

// Available returns the spendable amount after shifts and recorded expenses.
func (l BudgetLine) Available() Money {
	return Money{Cents: l.Budgeted.Cents + l.Shifted.Cents - l.Actual.Cents}
}

// EffectiveBudget returns the budgeted amount adjusted by shifts.
func (l BudgetLine) EffectiveBudget() Money {
	return Money{Cents: l.Budgeted.Cents + l.Shifted.Cents}
}

// MonthOverview is a compact summary for a specific month.
type MonthOverview struct {
	Month Month
	Total Money
	Lines []BudgetLine
}
