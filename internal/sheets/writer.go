package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// spreadsheetAPI is the part of the Sheets API the writer uses.
type spreadsheetAPI interface {
	Create(ctx context.Context, title, timeZone string, tabs []string) (id, url string, err error)
	SheetIDs(ctx context.Context, spreadsheetID string) (map[string]int64, error)
	AddSheets(ctx context.Context, spreadsheetID string, titles []string) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error
}

// Writer exports TabData to a Google spreadsheet.
type Writer struct {
	api    spreadsheetAPI
	logger *slog.Logger
	config Config
}

// NewWriter creates a writer authenticated with the configured credentials.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(&serviceAPI{srv: srv}, config, logger), nil
}

func newWriter(api spreadsheetAPI, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{api: api, config: config, logger: logger}
}

// Write replaces the contents of every report tab and returns the spreadsheet ID.
func (w *Writer) Write(ctx context.Context, data TabData) (string, error) {
	w.logger.Info("starting sheets export",
		"gains", len(data.Gains),
		"income", len(data.Income),
		"open_lots", len(data.OpenLots))

	retryOpts := service.RetryOptions{
		MaxAttempts:  max(w.config.RetryAttempts, 1),
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	var spreadsheetID string
	err := common.WithRetry(ctx, func() error {
		var getErr error
		spreadsheetID, getErr = w.getOrCreateSpreadsheet(ctx)
		return getErr
	}, retryOpts)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	sheetIDs, err := w.ensureTabs(ctx, spreadsheetID)
	if err != nil {
		return "", err
	}

	rowCounts := make(map[string]int, len(Tabs))
	for _, tab := range Tabs {
		values, valErr := data.Values(tab)
		if valErr != nil {
			return "", valErr
		}
		rowCounts[tab] = len(values)

		err = common.WithRetry(ctx, func() error {
			if clearErr := w.api.Clear(ctx, spreadsheetID, quoteTab(tab)); clearErr != nil {
				return clearErr
			}
			return w.writeTab(ctx, spreadsheetID, tab, values)
		}, retryOpts)
		if err != nil {
			return "", fmt.Errorf("failed to write %s: %w", tab, err)
		}
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.api.BatchUpdate(ctx, spreadsheetID, formattingRequests(sheetIDs, rowCounts))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("sheets export completed", "spreadsheet_id", spreadsheetID)
	return spreadsheetID, nil
}

func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		return w.config.SpreadsheetID, nil
	}

	id, url, err := w.api.Create(ctx, w.config.SpreadsheetName, w.config.TimeZone, Tabs)
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}
	// Later retries and exports reuse the new spreadsheet.
	w.config.SpreadsheetID = id

	w.logger.Info("created new spreadsheet", "id", id, "url", url)
	return id, nil
}

// ensureTabs adds missing report tabs and returns every tab's sheet ID.
func (w *Writer) ensureTabs(ctx context.Context, spreadsheetID string) (map[string]int64, error) {
	ids, err := w.api.SheetIDs(ctx, spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}

	var missing []string
	for _, tab := range Tabs {
		if _, ok := ids[tab]; !ok {
			missing = append(missing, tab)
		}
	}
	if len(missing) == 0 {
		return ids, nil
	}

	if err := w.api.AddSheets(ctx, spreadsheetID, missing); err != nil {
		return nil, fmt.Errorf("failed to add tabs: %w", err)
	}
	ids, err = w.api.SheetIDs(ctx, spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}
	return ids, nil
}

// writeTab writes values in batches to stay under API payload limits.
func (w *Writer) writeTab(ctx context.Context, spreadsheetID, tab string, values [][]any) error {
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))
		rng := fmt.Sprintf("%s!A%d", quoteTab(tab), i+1)
		if err := w.api.Update(ctx, spreadsheetID, rng, values[i:end]); err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}
		w.logger.Debug("wrote batch", "tab", tab, "start_row", i+1, "rows", end-i)
	}
	return nil
}

func quoteTab(tab string) string {
	return "'" + tab + "'"
}

// currencyColumns lists the zero-based USD columns of each tab.
var currencyColumns = map[string][]int64{
	TabSummary:  {1},
	TabGains:    {5, 6, 7},
	TabIncome:   {3},
	TabTokens:   {2, 3},
	TabOpenLots: {3, 4},
}

func formattingRequests(sheetIDs map[string]int64, rowCounts map[string]int) []*sheets.Request {
	var requests []*sheets.Request
	for _, tab := range Tabs {
		id, ok := sheetIDs[tab]
		if !ok {
			continue
		}
		rows := int64(rowCounts[tab])

		requests = append(requests,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: id, StartRowIndex: 0, EndRowIndex: 1},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat: &sheets.TextFormat{Bold: true},
						},
					},
					Fields: "userEnteredFormat.textFormat",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        id,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		)

		for _, col := range currencyColumns[tab] {
			requests = append(requests, &sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          id,
						StartRowIndex:    1,
						EndRowIndex:      max(rows, 1),
						StartColumnIndex: col,
						EndColumnIndex:   col + 1,
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							NumberFormat: &sheets.NumberFormat{Type: "CURRENCY", Pattern: "$#,##0.00"},
						},
					},
					Fields: "userEnteredFormat.numberFormat",
				},
			})
		}

		requests = append(requests, &sheets.Request{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{SheetId: id, Dimension: "COLUMNS", StartIndex: 0, EndIndex: 10},
			},
		})
	}
	return requests
}

// createSheetsService authenticates with a service account key or a refresh token.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	switch config.Auth() {
	case AuthServiceAccount:
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	case AuthRefreshToken:
		oauthConfig := oauthClientConfig(config.ClientID, config.ClientSecret, "")
		tokenSource = oauthConfig.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	default:
		return nil, fmt.Errorf("%w: google sheets credentials", common.ErrMissingConfig)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// serviceAPI adapts *sheets.Service to spreadsheetAPI.
type serviceAPI struct {
	srv *sheets.Service
}

func (a *serviceAPI) Create(ctx context.Context, title, timeZone string, tabs []string) (string, string, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title, TimeZone: timeZone},
	}
	for _, tab := range tabs {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: tab},
		})
	}

	created, err := a.srv.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	return created.SpreadsheetId, created.SpreadsheetUrl, nil
}

func (a *serviceAPI) SheetIDs(ctx context.Context, spreadsheetID string) (map[string]int64, error) {
	ss, err := a.srv.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			ids[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return ids, nil
}

func (a *serviceAPI) AddSheets(ctx context.Context, spreadsheetID string, titles []string) error {
	requests := make([]*sheets.Request, 0, len(titles))
	for _, title := range titles {
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		})
	}
	return a.BatchUpdate(ctx, spreadsheetID, requests)
}

func (a *serviceAPI) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := a.srv.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (a *serviceAPI) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := a.srv.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

func (a *serviceAPI) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error {
	_, err := a.srv.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).
		Do()
	return err
}
