package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/httpclient"
)

func newNoradTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/partnercode", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-functions-key"))
		assert.Equal(t, "2", r.URL.Query().Get("level"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"code": 123, "english": "NPA - Norwegian People's Aid", "norwegian": "Norsk Folkehjelp"},
			{"code": 456, "english": "Pacific Whale Trust", "norwegian": ""},
			{"code": null, "english": "Orphaned Partner"},
			{"code": 789, "english": ""}
		]`))
	})
	mux.HandleFunc("/latestdatayear", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"latest_historic_data_year": 2023}]`))
	})
	mux.HandleFunc("/money", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "data_year", r.URL.Query().Get("selection"))
		assert.Equal(t, "123", r.URL.Query().Get("agreement_partner_sid"))
		assert.Equal(t, "2010", r.URL.Query().Get("from_year"))
		assert.Equal(t, "2023", r.URL.Query().Get("to_year"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"data_year": 2021, "disbursement_earmarked_nok": 5000000},
			{"data_year": 2022, "disbursement_earmarked_nok": 0},
			{"data_year": 2023, "disbursement_earmarked_nok": -12.5},
			{"data_year": null, "disbursement_earmarked_nok": 99},
			{"data_year": 2024}
		]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newNoradTestProvider(t *testing.T, server *httptest.Server) *NoradProvider {
	t.Helper()
	logger := testLogger()
	config := DefaultNoradConfig()
	config.BaseURL = server.URL
	config.APIKey = "secret"
	return NewNoradProvider(httpclient.NewClient(httpclient.DefaultConfig(), logger), config, logger)
}

func TestNoradLookupMatchesPartner(t *testing.T) {
	provider := newNoradTestProvider(t, newNoradTestServer(t))

	candidate, err := provider.Lookup(context.Background(), "Norsk Folkehjelp", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, "123", candidate.Match.Code)
	assert.Equal(t, "NPA - Norwegian People's Aid", candidate.Match.Name)
	assert.InDelta(t, 1.0, candidate.Match.Score, 0.001)
	assert.Equal(t, "NORAD partner_sid=123", candidate.FundingChannel)
	assert.Empty(t, candidate.CurrencyCode)
	assert.Contains(t, candidate.SourceURL, "agreement_partner_sid=123")
	assert.Contains(t, candidate.FlowNotes, "Norad match 'Norsk Folkehjelp'")

	// Zero, negative, and incomplete rows are dropped.
	require.Len(t, candidate.Points, 1)
	assert.Equal(t, 2021, candidate.Points[0].Year)
	assert.InDelta(t, 5000000.0, candidate.Points[0].Amount, 0.001)
}

func TestNoradLookupMatchesAcronymSuffix(t *testing.T) {
	provider := newNoradTestProvider(t, newNoradTestServer(t))

	candidate, err := provider.Lookup(context.Background(), "Norwegian People's Aid", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "123", candidate.Match.Code)
	assert.InDelta(t, 1.0, candidate.Match.Score, 0.001)
}

func TestNoradLookupBelowThresholdReturnsNoCandidate(t *testing.T) {
	provider := newNoradTestProvider(t, newNoradTestServer(t))

	candidate, err := provider.Lookup(context.Background(), "Utterly Unrelated Entity Xyz", nil)
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestNoradLookupReusesPartnerCache(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/partnercode", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"code": 1, "english": "Alpha"}]`))
	})
	mux.HandleFunc("/latestdatayear", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"latest_historic_data_year": 2023}]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	provider := newNoradTestProvider(t, server)
	for i := 0; i < 3; i++ {
		_, err := provider.Lookup(context.Background(), "Nothing Similar At All", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}
