package http

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

type budgetRow struct {
	CategoryID string
	Name       string
	Budgeted   string
	Shifted    string
	Actual     string
	Available  string
	Over       bool
	Width      int
}

type budgetTableData struct {
	Year  int
	Month int
	Total string
	Rows  []budgetRow
}

type monthNavData struct {
	Title     string
	Year      int
	Month     int
	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int
	HasNext   bool
}

type expenseRow struct {
	ID   string
	Day  int
	Desc string
	Amt  string
	Cat  string
	Sub  string
}

type expenseListData struct {
	Year  int
	Month int
	Items []expenseRow
}

func buildBudgetTable(m core.Month, ov core.MonthOverview) budgetTableData {
	data := budgetTableData{
		Year:  m.Year,
		Month: int(m.Month),
		Total: formatEuros(ov.Total.Cents),
	}
	for _, line := range ov.Lines {
		effective := line.EffectiveBudget().Cents
		available := line.Available().Cents

		width := 0
		if line.Actual.Cents > 0 {
			if effective > 0 {
				width = int((line.Actual.Cents*100 + effective/2) / effective)
				if width < 2 {
					width = 2
				}
				if width > 100 {
					width = 100
				}
			} else {
				width = 100
			}
		}

		data.Rows = append(data.Rows, budgetRow{
			CategoryID: line.CategoryID,
			Name:       line.CategoryName,
			Budgeted:   formatEuros(line.Budgeted.Cents),
			Shifted:    formatEuros(line.Shifted.Cents),
			Actual:     formatEuros(line.Actual.Cents),
			Available:  formatEuros(available),
			Over:       available < 0,
			Width:      width,
		})
	}
	return data
}

func buildMonthNav(m core.Month, now time.Time) monthNavData {
	prev := m.Prev()
	data := monthNavData{
		Title:     monthLabel(m),
		Year:      m.Year,
		Month:     int(m.Month),
		PrevYear:  prev.Year,
		PrevMonth: int(prev.Month),
	}
	// Navigation stops at the wall-clock month: the future has no data.
	if next, ok := m.NextAllowed(now); ok {
		data.NextYear = next.Year
		data.NextMonth = int(next.Month)
		data.HasNext = true
	}
	return data
}

func buildExpenseList(m core.Month, items []core.Expense, cats []core.Category, subs []core.Subcategory) expenseListData {
	catNames := make(map[string]string, len(cats))
	for _, c := range cats {
		catNames[c.ID] = c.Name
	}
	subNames := make(map[string]string, len(subs))
	for _, sc := range subs {
		subNames[sc.ID] = sc.Name
	}

	data := expenseListData{Year: m.Year, Month: int(m.Month)}
	for _, e := range items {
		data.Items = append(data.Items, expenseRow{
			ID:   e.ID,
			Day:  e.Date.Day(),
			Desc: e.Description,
			Amt:  formatEuros(e.Amount.Cents),
			Cat:  catNames[e.CategoryID],
			Sub:  subNames[e.SubcategoryID],
		})
	}
	return data
}

type categoryOption struct {
	ID      string
	Name    string
	Tracked bool
	Budget  string
}

type subcategoryOption struct {
	ID         string
	CategoryID string
	Name       string
}

type shiftRow struct {
	ID     string
	From   string
	To     string
	Amount string
	Note   string
}

type recurringRow struct {
	ID        string
	Desc      string
	Amount    string
	Category  string
	Frequency string
}

type noteRow struct {
	ID    string
	Title string
	Body  string
}

type dashboardData struct {
	UserName string
	Today    struct{ Year, Month, Day int }

	Nav      monthNavData
	Budget   budgetTableData
	Expenses expenseListData

	Categories    []categoryOption
	Subcategories []subcategoryOption
	Shifts        []shiftRow
	Recurring     []recurringRow
	Notes         []noteRow
}

// handleDashboard renders the main page. The per-user fetches are
// independent, so they run concurrently and each one degrades to an empty
// section on failure instead of failing the page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "path", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	now := time.Now()
	month := core.MonthOf(now)

	var (
		ov        core.MonthOverview
		expenses  []core.Expense
		shifts    []core.BudgetShift
		cats      []core.Category
		subs      []core.Subcategory
		recurring []core.RecurrentExpense
		notes     []core.Note
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		if ov, err = s.getOverview(ctx, id.UserID, month); err != nil {
			slog.ErrorContext(ctx, "Budget overview load failed", "error", err, "user_id", id.UserID, "month", month.String())
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if expenses, err = s.getExpenses(ctx, id.UserID, month); err != nil {
			slog.ErrorContext(ctx, "Expense list load failed", "error", err, "user_id", id.UserID, "month", month.String())
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if shifts, err = s.store.ListShifts(ctx, id.UserID, month); err != nil {
			slog.ErrorContext(ctx, "Shift list load failed", "error", err, "user_id", id.UserID, "month", month.String())
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cats, err = s.store.ListCategories(ctx, id.UserID); err != nil {
			slog.ErrorContext(ctx, "Category list load failed", "error", err, "user_id", id.UserID)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if subs, err = s.store.ListSubcategories(ctx, id.UserID); err != nil {
			slog.ErrorContext(ctx, "Subcategory list load failed", "error", err, "user_id", id.UserID)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if recurring, err = s.store.ListRecurring(ctx, id.UserID); err != nil {
			slog.ErrorContext(ctx, "Recurring list load failed", "error", err, "user_id", id.UserID)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if notes, err = s.store.ListNotes(ctx, id.UserID); err != nil {
			slog.ErrorContext(ctx, "Note list load failed", "error", err, "user_id", id.UserID)
		}
		return nil
	})
	_ = g.Wait()

	catNames := make(map[string]string, len(cats))
	for _, c := range cats {
		catNames[c.ID] = c.Name
	}

	data := dashboardData{
		UserName: id.Name,
		Nav:      buildMonthNav(month, now),
		Budget:   buildBudgetTable(month, ov),
		Expenses: buildExpenseList(month, expenses, cats, subs),
	}
	data.Today.Year, data.Today.Month, data.Today.Day = now.Year(), int(now.Month()), now.Day()

	for _, c := range cats {
		data.Categories = append(data.Categories, categoryOption{
			ID:      c.ID,
			Name:    c.Name,
			Tracked: c.Tracked,
			Budget:  formatEuros(c.Budget.Cents),
		})
	}
	for _, sc := range subs {
		data.Subcategories = append(data.Subcategories, subcategoryOption{
			ID:         sc.ID,
			CategoryID: sc.CategoryID,
			Name:       sc.Name,
		})
	}
	for _, sh := range shifts {
		data.Shifts = append(data.Shifts, shiftRow{
			ID:     sh.ID,
			From:   catNames[sh.FromCategoryID],
			To:     catNames[sh.ToCategoryID],
			Amount: formatEuros(sh.Amount.Cents),
			Note:   sh.Note,
		})
	}
	for _, re := range recurring {
		data.Recurring = append(data.Recurring, recurringRow{
			ID:        re.ID,
			Desc:      re.Description,
			Amount:    formatEuros(re.Amount.Cents),
			Category:  catNames[re.CategoryID],
			Frequency: frequencyLabel(re.Every),
		})
	}
	for _, n := range notes {
		data.Notes = append(data.Notes, noteRow{
			ID:    n.ID,
			Title: n.Title,
			Body:  n.Body,
		})
	}

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		slog.ErrorContext(ctx, "Dashboard template execution failed", "error", err, "template", "dashboard.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleBudgetTable renders the budget-vs-actual table partial.
func (s *Server) handleBudgetTable(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	now := time.Now()
	month := MonthParam(r.URL.Query(), now)
	if err := month.Validate(); err != nil {
		slog.WarnContext(r.Context(), "Invalid month parameter", "year", month.Year, "month", int(month.Month), "corrected_to", int(now.Month()))
		month = core.MonthOf(now)
	}

	ov, err := s.getOverview(r.Context(), id.UserID, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Budget table error", "error", err, "user_id", id.UserID, "month", month.String())
		_, _ = w.Write([]byte(`<section id="budget-table" class="budget-table"><div class="placeholder">Errore nel caricamento</div></section>`))
		return
	}
	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="budget-table" class="budget-table"><div class="placeholder">Totale: ` + formatEuros(ov.Total.Cents) + `</div></section>`))
		return
	}

	data := buildBudgetTable(month, ov)
	if err := s.templates.ExecuteTemplate(w, "budget_table.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Budget table template failed", "error", err, "template", "budget_table.html")
		_, _ = w.Write([]byte(`<section id="budget-table" class="budget-table"><div class="placeholder">Errore template</div></section>`))
	}
}

// handleMonthNav renders the month navigator partial. Stepping past the
// current month is clamped server side regardless of what the client asks.
func (s *Server) handleMonthNav(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	now := time.Now()
	month := MonthParam(r.URL.Query(), now)
	if err := month.Validate(); err != nil {
		slog.WarnContext(r.Context(), "Invalid month parameter", "year", month.Year, "month", int(month.Month), "corrected_to", int(now.Month()))
		month = core.MonthOf(now)
	}
	// A month in the future is clamped back to the present as well.
	if core.MonthOf(now).Before(month) {
		month = core.MonthOf(now)
	}

	data := buildMonthNav(month, now)
	if s.templates == nil {
		_, _ = w.Write([]byte(`<nav id="month-nav" class="month-nav">` + template.HTMLEscapeString(data.Title) + `</nav>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "month_nav.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Month nav template failed", "error", err, "template", "month_nav.html")
		_, _ = w.Write([]byte(`<nav id="month-nav" class="month-nav">` + template.HTMLEscapeString(data.Title) + `</nav>`))
	}
}

// handleMonthExpenses renders the expense list partial for a month.
func (s *Server) handleMonthExpenses(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	ctx := r.Context()
	now := time.Now()
	month := MonthParam(r.URL.Query(), now)
	if err := month.Validate(); err != nil {
		slog.WarnContext(ctx, "Invalid month parameter", "year", month.Year, "month", int(month.Month), "corrected_to", int(now.Month()))
		month = core.MonthOf(now)
	}

	var (
		items []core.Expense
		cats  []core.Category
		subs  []core.Subcategory
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		if items, err = s.getExpenses(ctx, id.UserID, month); err != nil {
			slog.ErrorContext(ctx, "Expense list load failed", "error", err, "user_id", id.UserID, "month", month.String())
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cats, err = s.store.ListCategories(ctx, id.UserID); err != nil {
			slog.ErrorContext(ctx, "Category list load failed", "error", err, "user_id", id.UserID)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if subs, err = s.store.ListSubcategories(ctx, id.UserID); err != nil {
			slog.ErrorContext(ctx, "Subcategory list load failed", "error", err, "user_id", id.UserID)
		}
		return nil
	})
	_ = g.Wait()

	data := buildExpenseList(month, items, cats, subs)
	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="expense-list" class="expense-list"><div class="placeholder">Nessuna spesa</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "expense_list.html", data); err != nil {
		slog.ErrorContext(ctx, "Expense list template failed", "error", err, "template", "expense_list.html")
		_, _ = w.Write([]byte(`<section id="expense-list" class="expense-list"><div class="placeholder">Errore template</div></section>`))
	}
}
