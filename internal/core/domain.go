package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

type (
	RepetitionTypes string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           string
		Email        string
		Name         string
		PasswordHash string
		CreatedAt    time.Time
	}

	Category struct {
		ID      string
		UserID  string
		Name    string
		Tracked bool // counts toward the monthly budget overview
		Budget  Money
	}

	Subcategory struct {
		ID         string
		UserID     string
		CategoryID string
		Name       string
	}

	Expense struct {
		ID            string
		UserID        string
		Date          Date
		Description   string
		Amount        Money
		CategoryID    string
		SubcategoryID string // optional
	}

	// BudgetShift moves budget from one category to another for a single month.
	BudgetShift struct {
		ID             string
		UserID         string
		Month          Month
		FromCategoryID string
		ToCategoryID   string
		Amount         Money
		Note           string
	}

	RecurrentExpense struct {
		ID            string
		UserID        string
		StartDate     Date
		EndDate       Date
		Every         RepetitionTypes
		Description   string
		Amount        Money
		CategoryID    string
		LastExecution time.Time
	}

	Note struct {
		ID        string
		UserID    string
		Title     string
		Body      string
		CreatedAt time.Time
	}

	// Article is a knowledge-base entry shared by all users, seeded at
	// migration time.
	Article struct {
		ID    string
		Title string
		Body  string
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrSameCategory     = errors.New("shift source and target categories match")
	ErrEmailTaken       = errors.New("email already registered")
	ErrCategoryInUse    = errors.New("category has recorded expenses")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	// Check basic ranges
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	// A zero budget means "no budget figure"; only negatives are invalid.
	if c.Budget.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s Subcategory) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if len(s.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if strings.TrimSpace(s.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (b BudgetShift) Validate() error {
	if err := b.Month.Validate(); err != nil {
		return err
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.FromCategoryID) == "" || strings.TrimSpace(b.ToCategoryID) == "" {
		return ErrEmptyCategory
	}
	if b.FromCategoryID == b.ToCategoryID {
		return ErrSameCategory
	}
	if len(b.Note) > 200 {
		return errors.New("note too long (max 200 characters)")
	}
	return nil
}

func (re RecurrentExpense) Validate() error {
	// Validate start date
	if err := re.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}

	// Validate end date if provided
	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}

		// Ensure end date is after start date
		if !re.EndDate.After(re.StartDate.Time) && !re.EndDate.Equal(re.StartDate.Time) {
			return errors.New("end date must be after start date")
		}
	}

	// Validate repetition type
	switch re.Every {
	case Daily, Weekly, Monthly, Yearly:
		// Valid repetition types
	default:
		return errors.New("invalid repetition type")
	}

	// Validate description
	if len(strings.TrimSpace(re.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(re.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}

	// Validate amount
	if err := re.Amount.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(re.CategoryID) == "" {
		return ErrEmptyCategory
	}

	return nil
}

func (n Note) Validate() error {
	if len(strings.TrimSpace(n.Title)) == 0 {
		return ErrEmptyName
	}
	if len(strings.TrimSpace(n.Body)) == 0 {
		return errors.New("empty body")
	}
	if len(n.Body) > 5000 {
		return errors.New("body too long (max 5000 characters)")
	}
	return nil
}
