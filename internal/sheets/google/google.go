package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "bilancio/internal/sheets"
)

// Options carries everything needed to reach the report spreadsheet.
// Authentication prefers service-account credentials; an OAuth client
// file plus a token minted by cmd/oauth-init works as a fallback.
type Options struct {
	SpreadsheetID   string
	ReportSheetBase string // tab base name; tabs are named "<YYYY-MM> <base>"
	CredentialsJSON string // inline service-account JSON
	CredentialsFile string // path to a service-account JSON file
	OAuthClientFile string // OAuth client secret file
	OAuthTokenFile  string // token file written by cmd/oauth-init
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	reportBase    string
}

// Ensure interface conformance
var (
	_ ports.ReportWriter  = (*Client)(nil)
	_ ports.ReportDeleter = (*Client)(nil)
)

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(opts.ReportSheetBase)
	if base == "" {
		base = "Report"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		reportBase:    base,
	}, nil
}

// newSheetsService initializes a Sheets Service from the configured
// credentials, trying service-account auth first.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	var credentialsJSON []byte

	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline service-account credentials")
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading service-account credentials from file", "path", opts.CredentialsFile)
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	case strings.TrimSpace(opts.OAuthClientFile) != "" && strings.TrimSpace(opts.OAuthTokenFile) != "":
		return newOAuthService(ctx, opts.OAuthClientFile, opts.OAuthTokenFile)
	default:
		return nil, errors.New("missing sheets credentials (set service-account JSON/file or an OAuth client+token pair)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newOAuthService builds the service from an OAuth client secret file and
// the token file minted by cmd/oauth-init.
func newOAuthService(ctx context.Context, clientFile, tokenFile string) (*gsheet.Service, error) {
	clientJSON, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(cfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created from OAuth token", "token_file", tokenFile)
	return service, nil
}

// Append writes one expense row to the month tab named after the row date,
// creating the tab with a header row when it does not exist yet.
func (c *Client) Append(ctx context.Context, row ports.ReportRow) (string, error) {
	if strings.TrimSpace(row.ExpenseID) == "" {
		return "", errors.New("missing expense id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheetName := monthPrefixedName(c.reportBase, row.MonthKey())
	if err := c.ensureSheet(ctx, sheetName); err != nil {
		return "", err
	}

	// Find the next empty row by getting the sheet dimensions first
	rng := fmt.Sprintf("%s!A:A", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", sheetName, err)
	}
	nextRow := len(resp.Values) + 1

	// Amount leaves the integer-cents domain only here, at the sheet boundary
	euros := float64(row.AmountCents) / 100.0

	dataRange := fmt.Sprintf("%s!A%d:G%d", sheetName, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.Date, row.Description, euros, row.Category, row.Subcategory, row.UserEmail, row.ExpenseID,
	}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", dataRange, err)
	}

	return dataRange, nil
}

// Delete locates the exported row by expense id (column G) and clears it.
// A row that was never exported is not an error.
func (c *Client) Delete(ctx context.Context, expenseID string) error {
	expenseID = strings.TrimSpace(expenseID)
	if expenseID == "" {
		return errors.New("missing expense id")
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tabs, err := c.reportTabs(ctx)
	if err != nil {
		return err
	}
	for _, name := range tabs {
		rng := fmt.Sprintf("%s!G:G", name)
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read %s: %w", rng, err)
		}
		for i, rowVals := range resp.Values {
			if len(rowVals) == 0 {
				continue
			}
			if strings.TrimSpace(fmt.Sprint(rowVals[0])) != expenseID {
				continue
			}
			clearRange := fmt.Sprintf("%s!A%d:G%d", name, i+1, i+1)
			_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
				Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("clear %s: %w", clearRange, err)
			}
			slog.InfoContext(ctx, "Cleared exported row", "range", clearRange, "expense_id", expenseID)
			return nil
		}
	}

	slog.WarnContext(ctx, "Exported row not found for delete", "expense_id", expenseID)
	return nil
}

// ensureSheet creates the named tab with a header row when it is missing.
func (c *Client) ensureSheet(ctx context.Context, name string) error {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == name {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: name},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}

	header := &gsheet.ValueRange{Values: [][]any{{
		"Date", "Description", "Amount", "Category", "Subcategory", "User", "Expense ID",
	}}}
	headerRange := fmt.Sprintf("%s!A1:G1", name)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, headerRange, header).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}

	slog.InfoContext(ctx, "Created report tab", "sheet", name)
	return nil
}

// reportTabs lists report tabs newest-first so recent deletes resolve fast.
func (c *Client) reportTabs(ctx context.Context) ([]string, error) {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	var names []string
	for _, sh := range meta.Sheets {
		if sh.Properties == nil {
			continue
		}
		title := sh.Properties.Title
		if strings.HasSuffix(title, " "+c.reportBase) || title == c.reportBase {
			names = append(names, title)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
