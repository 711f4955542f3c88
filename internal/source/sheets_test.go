package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsync/internal/ledger"
)

const sheetValues = `{"range":"A1:F4","values":[
["Title","Description","Date","Time","Type","Discord"],
["Quiz Night","Trivia","3/10/2025","6:00 PM","Quiz","https://discord.gg/q"],
["","orphan row","3/11/2025"],
["Builders Call","Weekly","3/12/2025","15:00","Stream"]
]}`

func TestSheetsSource_Fetch(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotKey = r.URL.Query().Get("key")
		_, _ = w.Write([]byte(sheetValues))
	}))
	defer srv.Close()

	src := &SheetsSource{BaseURL: srv.URL, SheetID: "sheet-1", SheetName: "Genlayer events", APIKey: "k"}
	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Events, 2)
	assert.Equal(t, 2, b.TotalCount)
	assert.Equal(t, "Quiz Night", b.Events[0].Title)
	assert.Equal(t, "6:00 PM", b.Events[0].Time)
	assert.Equal(t, "https://discord.gg/q", b.Events[0].DiscordLink)
	assert.Equal(t, "Stream", b.Events[1].Type)
	assert.Empty(t, b.Events[1].DiscordLink)
	assert.True(t, strings.HasPrefix(gotPath, "/v4/spreadsheets/sheet-1/values/"), gotPath)
	assert.Contains(t, gotPath, "Genlayer")
	assert.Equal(t, "k", gotKey)
}

func TestSheetsSource_RangeFallback(t *testing.T) {
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		ranges = append(ranges, rng)
		if rng != fallbackSheetRange {
			http.Error(w, `{"error":{"message":"Unable to parse range: 'Missing'!A:Z"}}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(sheetValues))
	}))
	defer srv.Close()

	src := &SheetsSource{BaseURL: srv.URL, SheetID: "sheet-1", SheetName: "Missing"}
	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.Events, 2)
	assert.Equal(t, []string{"'Missing'!A:Z", "A:Z"}, ranges)
}

func TestSheetsSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := (&SheetsSource{BaseURL: srv.URL, SheetID: "s"}).Fetch(context.Background())
	var transport *ledger.TransportError
	assert.ErrorAs(t, err, &transport)

	_, err = (&SheetsSource{}).Fetch(context.Background())
	assert.Error(t, err)

	res, err := (&SheetsSource{}).Refresh(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, res.TxHash)
}

func TestSheetsSource_HeaderOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"values":[["Title"]]}`))
	}))
	defer srv.Close()

	b, err := (&SheetsSource{BaseURL: srv.URL, SheetID: "s"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.Events)
}
