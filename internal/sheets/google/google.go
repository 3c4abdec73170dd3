package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetly/internal/core"
	"budgetly/internal/ports"
)

var (
	_ ports.LedgerExporter = (*Client)(nil)
	_ ports.RateSource     = (*Client)(nil)
)

// Options selects the spreadsheet and how to authenticate against it.
type Options struct {
	SpreadsheetID string
	// LedgerSheet is the base name of the yearly ledger tab; the year of
	// the transaction is prefixed ("2024 Ledger").
	LedgerSheet string
	RatesSheet  string
	// CredentialsJSON or CredentialsFile hold a service account key. When
	// both are empty GOOGLE_APPLICATION_CREDENTIALS is used.
	CredentialsJSON string
	CredentialsFile string
}

// Client mirrors transactions into a spreadsheet ledger and reads the
// currency table from it.
type Client struct {
	values        valuesAPI
	spreadsheetID string
	ledgerBase    string
	ratesSheet    string

	// Appends are serialized so two writers never pick the same row.
	mu sync.Mutex
}

// valuesAPI is the subset of the Sheets values service the client uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(serviceValues{svc: svc}, opts), nil
}

func newClient(values valuesAPI, opts Options) *Client {
	ledger := strings.TrimSpace(opts.LedgerSheet)
	if ledger == "" {
		ledger = "Ledger"
	}
	rates := strings.TrimSpace(opts.RatesSheet)
	if rates == "" {
		rates = "Currencies"
	}
	return &Client{
		values:        values,
		spreadsheetID: opts.SpreadsheetID,
		ledgerBase:    ledger,
		ratesSheet:    rates,
	}
}

// newSheetsService initializes a Sheets service from service account
// credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(opts.CredentialsJSON))
	file := strings.TrimSpace(opts.CredentialsFile)
	if len(credentialsJSON) == 0 && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case len(credentialsJSON) > 0:
		slog.InfoContext(ctx, "Using inline service account credentials")
	case file != "":
		var err error
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", file, "size", len(credentialsJSON))
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

type serviceValues struct {
	svc *gsheet.Service
}

func (s serviceValues) Get(ctx context.Context, id, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s serviceValues) Update(ctx context.Context, id, rng string, rows [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.Update(id, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (s serviceValues) Clear(ctx context.Context, id, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(id, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// AppendTransaction writes tx to the next free row of its year's ledger
// tab and returns the A1 range it occupies.
func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction, categoryName string) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sheet := c.ledgerSheet(tx.Date.Year())
	existing, err := c.values.Get(ctx, c.spreadsheetID, fmt.Sprintf("%s!A:A", sheet))
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	next := len(existing) + 1
	if next == 1 {
		if err := c.values.Update(ctx, c.spreadsheetID,
			fmt.Sprintf("%s!A1:%s1", sheet, lastColumn), [][]interface{}{ledgerHeader}); err != nil {
			return "", fmt.Errorf("failed to write header in %s: %w", sheet, err)
		}
		next = 2
	}

	ref := fmt.Sprintf("%s!A%d:%s%d", sheet, next, lastColumn, next)
	if err := c.values.Update(ctx, c.spreadsheetID, ref, [][]interface{}{ledgerRow(tx, categoryName)}); err != nil {
		return "", fmt.Errorf("failed to update %s: %w", ref, err)
	}
	return ref, nil
}

// ReplaceTransaction rewrites the row at ref, as returned by an earlier
// append, with the current values of tx. When tx moved to another year's
// tab, or the row no longer holds tx, the old row is cleared by id and tx
// is appended instead. It returns the range tx occupies afterwards.
func (c *Client) ReplaceTransaction(ctx context.Context, ref string, tx core.Transaction, categoryName string) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	sheet, row, ok := splitRowRef(ref)
	if !ok {
		return c.AppendTransaction(ctx, tx, categoryName)
	}
	if sheet == c.ledgerSheet(tx.Date.Year()) {
		done, err := c.rewriteRow(ctx, sheet, row, tx, categoryName)
		if err != nil {
			return "", err
		}
		if done {
			return ref, nil
		}
	}
	if err := c.deleteIn(ctx, tx.ID, []string{sheet}); err != nil {
		return "", err
	}
	return c.AppendTransaction(ctx, tx, categoryName)
}

// rewriteRow updates row of sheet in place if it still holds tx.
func (c *Client) rewriteRow(ctx context.Context, sheet string, row int, tx core.Transaction, categoryName string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, row, lastColumn, row)
	current, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	if !rowHolds(current, tx.ID) {
		slog.WarnContext(ctx, "Ledger row moved, re-appending", "transaction_id", tx.ID, "range", rng)
		return false, nil
	}
	if err := c.values.Update(ctx, c.spreadsheetID, rng, [][]interface{}{ledgerRow(tx, categoryName)}); err != nil {
		return false, fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return true, nil
}

// DeleteTransaction clears the ledger row holding transactionID in the
// current and previous year tabs. A missing row is not an error.
func (c *Client) DeleteTransaction(ctx context.Context, transactionID string) error {
	years := c.searchYears()
	sheets := make([]string, len(years))
	for i, y := range years {
		sheets[i] = c.ledgerSheet(y)
	}
	return c.deleteIn(ctx, transactionID, sheets)
}

// DeleteTransactionIn clears the row of transactionID in the given year's
// tab.
func (c *Client) DeleteTransactionIn(ctx context.Context, transactionID string, year int) error {
	return c.deleteIn(ctx, transactionID, []string{c.ledgerSheet(year)})
}

func (c *Client) deleteIn(ctx context.Context, transactionID string, sheets []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sheet := range sheets {
		col := fmt.Sprintf("%s!%s:%s", sheet, idColumn, idColumn)
		ids, err := c.values.Get(ctx, c.spreadsheetID, col)
		if err != nil {
			return fmt.Errorf("read %s: %w", col, err)
		}
		row := findRow(ids, transactionID)
		if row == 0 {
			continue
		}
		rng := fmt.Sprintf("%s!A%d:%s%d", sheet, row, lastColumn, row)
		if err := c.values.Clear(ctx, c.spreadsheetID, rng); err != nil {
			return fmt.Errorf("clear %s: %w", rng, err)
		}
		slog.InfoContext(ctx, "Ledger row cleared", "transaction_id", transactionID, "range", rng)
		return nil
	}
	slog.WarnContext(ctx, "Ledger row not found", "transaction_id", transactionID)
	return nil
}

// Currencies reads the rate tab: a header row naming Code and Rate columns
// (Name and Symbol optional), then one currency per row.
func (c *Client) Currencies(ctx context.Context) ([]core.Currency, error) {
	rng := fmt.Sprintf("%s!A1:E200", c.ratesSheet)
	rows, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRatesTable(rows)
}

func (c *Client) ledgerSheet(year int) string {
	return yearPrefixedName(c.ledgerBase, year)
}

func (c *Client) searchYears() []int {
	y := nowFunc().Year()
	return []int{y, y - 1}
}
