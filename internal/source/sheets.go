package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"eventsync/internal/ledger"
)

const (
	DefaultSheetsURL   = "https://sheets.googleapis.com"
	fallbackSheetRange = "A:Z"
)

// SheetsSource reads events from a Google Sheets tab. Columns are
// title, description, date, time, type, discord link; the first row is a header.
type SheetsSource struct {
	BaseURL    string
	SheetID    string
	SheetName  string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (s *SheetsSource) Name() string { return "sheets" }

// Refresh is a no-op: the sheet is always current.
func (s *SheetsSource) Refresh(ctx context.Context) (RefreshResult, error) {
	return RefreshResult{}, nil
}

func (s *SheetsSource) Fetch(ctx context.Context) (Batch, error) {
	if strings.TrimSpace(s.SheetID) == "" {
		return Batch{}, fmt.Errorf("sheets source: sheet id is empty")
	}
	primary := fallbackSheetRange
	if name := strings.TrimSpace(s.SheetName); name != "" {
		primary = "'" + name + "'!" + fallbackSheetRange
	}

	body, status, err := s.get(ctx, primary)
	if err != nil {
		return Batch{}, err
	}
	if status == http.StatusBadRequest && strings.Contains(string(body), "Unable to parse range") && primary != fallbackSheetRange {
		if s.Logger != nil {
			s.Logger.Warn("sheet tab not found, falling back to first sheet", zap.String("range", primary))
		}
		body, status, err = s.get(ctx, fallbackSheetRange)
		if err != nil {
			return Batch{}, err
		}
	}
	if status != http.StatusOK {
		return Batch{}, &ledger.TransportError{Op: "sheets values", Err: fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(body)))}
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Batch{}, &ledger.MalformedResponseError{What: "sheet values", Err: err}
	}
	return rowsToBatch(payload.Values), nil
}

func (s *SheetsSource) get(ctx context.Context, sheetRange string) ([]byte, int, error) {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = DefaultSheetsURL
	}
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s", base, url.PathEscape(s.SheetID), url.PathEscape(sheetRange))
	if s.APIKey != "" {
		u += "?" + url.Values{"key": {s.APIKey}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, &ledger.TransportError{Op: "sheets values", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, &ledger.TransportError{Op: "sheets values", Err: err}
	}
	return body, resp.StatusCode, nil
}

func rowsToBatch(rows [][]string) Batch {
	var batch Batch
	if len(rows) <= 1 {
		return batch
	}
	for _, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		ev := RawEvent{
			Title:       cell(row, 0),
			Description: cell(row, 1),
			Date:        cell(row, 2),
			Time:        cell(row, 3),
			Type:        cell(row, 4),
			DiscordLink: cell(row, 5),
		}
		batch.Events = append(batch.Events, ev)
	}
	batch.TotalCount = len(batch.Events)
	return batch
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
