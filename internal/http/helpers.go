package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
)

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (core.Date, error) {
	parsedTime, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: parsedTime}, nil
}

// formatEuros formats cents as a Euro currency string (e.g., "€12,34").
func formatEuros(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	euros := cents / 100
	rem := cents % 100
	s := strconv.FormatInt(euros, 10) + "," + fmt.Sprintf("%02d", rem)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

var monthNames = [...]string{
	"Gennaio", "Febbraio", "Marzo", "Aprile", "Maggio", "Giugno",
	"Luglio", "Agosto", "Settembre", "Ottobre", "Novembre", "Dicembre",
}

// monthLabel renders a month for display, e.g. "Marzo 2025".
func monthLabel(m core.Month) string {
	if m.Month < time.January || m.Month > time.December {
		return m.String()
	}
	return fmt.Sprintf("%s %d", monthNames[m.Month-1], m.Year)
}

// frequencyLabel translates a repetition type for display.
func frequencyLabel(every core.RepetitionTypes) string {
	switch every {
	case core.Daily:
		return "giornaliera"
	case core.Weekly:
		return "settimanale"
	case core.Monthly:
		return "mensile"
	case core.Yearly:
		return "annuale"
	default:
		return string(every)
	}
}

// writeStoreError maps write-path errors onto the response contract:
// missing rows 404, foreign rows 403, categories with recorded expenses
// 409, anything else a generic 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("Elemento non trovato").Write(w)
	case errors.Is(err, core.ErrUnauthorized):
		ForbiddenError("Operazione non consentita").Write(w)
	case errors.Is(err, core.ErrCategoryInUse):
		ConflictError("La categoria ha spese registrate e non può essere eliminata").Write(w)
	default:
		InternalServerError("Errore nel salvataggio").Write(w)
	}
}
