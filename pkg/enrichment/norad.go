package enrichment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/httpclient"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// NoradConfig holds Norad resultatportal API settings
type NoradConfig struct {
	BaseURL   string
	APIKey    string
	Threshold float64
	FromYear  int
	// ToYear zero means resolve the latest available data year from the
	// API, falling back to the current year.
	ToYear int
}

// DefaultNoradConfig returns the default Norad provider configuration
func DefaultNoradConfig() NoradConfig {
	return NoradConfig{
		BaseURL:   "https://apim-br-online-prod.azure-api.net/resultatportal-prod-api-dotnet",
		Threshold: 0.72,
		FromYear:  2010,
	}
}

type noradPartner struct {
	Code      *int   `json:"code"`
	English   string `json:"english"`
	Norwegian string `json:"norwegian"`
}

type noradMoneyRow struct {
	DataYear              *int     `json:"data_year"`
	DisbursementEarmarked *float64 `json:"disbursement_earmarked_nok"`
}

type noradLatestYearRow struct {
	LatestHistoricDataYear int `json:"latest_historic_data_year"`
}

// NoradProvider matches organizations against Norad's level-2 partner list
// and reads earmarked NOK disbursements per data year.
type NoradProvider struct {
	http     *httpclient.Client
	config   NoradConfig
	logger   ectologger.Logger
	partners []noradPartner
	loaded   bool
	toYear   int
}

// NewNoradProvider creates a Norad enrichment provider
func NewNoradProvider(http *httpclient.Client, config NoradConfig, logger ectologger.Logger) *NoradProvider {
	return &NoradProvider{
		http:   http,
		config: config,
		logger: logger,
	}
}

// Name returns the provider's source system name
func (p *NoradProvider) Name() string {
	return models.SourceSystemNorad
}

// Publisher returns the source document publisher
func (p *NoradProvider) Publisher() string {
	return "norad-resultatportal-api"
}

// RelationType returns the evidence relation for Norad flows
func (p *NoradProvider) RelationType() string {
	return "norad_api"
}

func (p *NoradProvider) headers() map[string]string {
	return map[string]string{"x-functions-key": p.config.APIKey}
}

func (p *NoradProvider) ensureLoaded(ctx context.Context) error {
	if p.loaded {
		return nil
	}

	var partners []noradPartner
	if err := p.http.GetJSON(ctx, p.config.BaseURL+"/partnercode?level=2", p.headers(), &partners); err != nil {
		return fmt.Errorf("failed to fetch norad partners: %w", err)
	}

	filtered := make([]noradPartner, 0, len(partners))
	for _, partner := range partners {
		partner.English = strings.TrimSpace(partner.English)
		partner.Norwegian = strings.TrimSpace(partner.Norwegian)
		if partner.Code == nil || partner.English == "" {
			continue
		}
		if partner.Norwegian == "" {
			partner.Norwegian = partner.English
		}
		filtered = append(filtered, partner)
	}

	toYear := p.config.ToYear
	if toYear == 0 {
		toYear = p.fetchLatestYear(ctx)
	}

	p.partners = filtered
	p.toYear = toYear
	p.loaded = true

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"partners": len(filtered),
		"to_year":  toYear,
	}).Info("Loaded Norad partner list")

	return nil
}

func (p *NoradProvider) fetchLatestYear(ctx context.Context) int {
	var rows []noradLatestYearRow
	if err := p.http.GetJSON(ctx, p.config.BaseURL+"/latestdatayear", p.headers(), &rows); err != nil || len(rows) == 0 {
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to fetch Norad latest data year, using current year")
		}
		return time.Now().UTC().Year()
	}
	return rows[0].LatestHistoricDataYear
}

// bestMatch scores the organization against every partner's name variants.
// Many partner entries carry an acronym prefix ("ABC - Long Name"); the
// suffix after " - " is scored as its own variant.
func (p *NoradProvider) bestMatch(orgName string) *MatchResult {
	var best *MatchResult
	for _, partner := range p.partners {
		candidates := []string{partner.English, partner.Norwegian}
		if _, suffix, found := strings.Cut(partner.English, " - "); found {
			candidates = append(candidates, suffix)
		}
		if _, suffix, found := strings.Cut(partner.Norwegian, " - "); found {
			candidates = append(candidates, suffix)
		}

		score := 0.0
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			if s := Similarity(orgName, candidate); s > score {
				score = s
			}
		}

		if best == nil || score > best.Score {
			best = &MatchResult{
				Code:  strconv.Itoa(*partner.Code),
				Name:  partner.English,
				Score: score,
			}
		}
	}
	return best
}

// Lookup finds the best partner match and its earmarked disbursements.
func (p *NoradProvider) Lookup(ctx context.Context, orgName string, hqCountry *string) (*Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "enrichment.NoradProvider.Lookup")
	defer span.End()

	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	match := p.bestMatch(orgName)
	if match == nil || match.Score < p.config.Threshold {
		return nil, nil
	}

	params := url.Values{}
	params.Set("selection", "data_year")
	params.Set("agreement_partner_sid", match.Code)
	params.Set("from_year", strconv.Itoa(p.config.FromYear))
	params.Set("to_year", strconv.Itoa(p.toYear))
	moneyURL := p.config.BaseURL + "/money?" + params.Encode()

	var rows []noradMoneyRow
	if err := p.http.GetJSON(ctx, moneyURL, p.headers(), &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch norad disbursements: %w", err)
	}

	points := make([]YearAmount, 0, len(rows))
	for _, row := range rows {
		if row.DataYear == nil || row.DisbursementEarmarked == nil {
			continue
		}
		if *row.DisbursementEarmarked <= 0 {
			continue
		}
		points = append(points, YearAmount{Year: *row.DataYear, Amount: *row.DisbursementEarmarked})
	}

	return &Candidate{
		Match:          *match,
		Points:         points,
		FundingChannel: fmt.Sprintf("NORAD partner_sid=%s", match.Code),
		SourceURL:      moneyURL,
		SourceNotes:    fmt.Sprintf("agreement_partner_sid=%s; matched_name=%s", match.Code, match.Name),
		FlowNotes:      fmt.Sprintf("Norad match '%s' -> '%s' (score=%.3f)", orgName, match.Name, match.Score),
	}, nil
}
