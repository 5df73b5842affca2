package enrichment

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/httpclient"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// The DAC2A dataflow: availableconstraint lists which recipient codes have
// data, the datastructure carries the CL_AREA_ORG codelist with readable
// recipient names, and the data endpoint serves generic SDMX-ML series.
const (
	oecdConstraintPath   = "/availableconstraint/OECD.DCD.FSD,DSD_DAC2@DF_DAC2A,1.4"
	oecdAreaOrgPath      = "/datastructure/OECD.DCD.FSD/DSD_DAC2/1.5?references=all"
	oecdDataPathTemplate = "/data/OECD.DCD.FSD,DSD_DAC2@DF_DAC2A,1.4/%s?startPeriod=%d&endPeriod=%d"
)

// OECDConfig holds OECD SDMX API settings
type OECDConfig struct {
	BaseURL   string
	Threshold float64
	FromYear  int
	// ToYear zero means the current year.
	ToYear int
}

// DefaultOECDConfig returns the default OECD provider configuration
func DefaultOECDConfig() OECDConfig {
	return OECDConfig{
		BaseURL:   "https://sdmx.oecd.org/public/rest",
		Threshold: 0.78,
		FromYear:  2010,
	}
}

// countryHintToISO3 maps headquarters-location hints to DAC recipient
// country codes, the fallback when fuzzy name matching comes up short.
var countryHintToISO3 = map[string]string{
	"kenya":         "KEN",
	"nairobi":       "KEN",
	"uganda":        "UGA",
	"tanzania":      "TZA",
	"ethiopia":      "ETH",
	"switzerland":   "CHE",
	"sveits":        "CHE",
	"geneve":        "CHE",
	"genève":        "CHE",
	"france":        "FRA",
	"frankrike":     "FRA",
	"paris":         "FRA",
	"denmark":       "DNK",
	"danmark":       "DNK",
	"kobenhavn":     "DNK",
	"københavn":     "DNK",
	"usa":           "USA",
	"united states": "USA",
	"washington":    "USA",
	"uk":            "GBR",
	"england":       "GBR",
	"norge":         "NOR",
	"norway":        "NOR",
}

// OECDProvider matches organizations against the DAC2A recipient codelist
// and reads Norwegian gross disbursements (USD) per recipient as a proxy.
type OECDProvider struct {
	http           *httpclient.Client
	config         OECDConfig
	logger         ectologger.Logger
	recipientCodes map[string]struct{}
	areaOrgNames   map[string]string
	loaded         bool
}

// NewOECDProvider creates an OECD DAC2A enrichment provider
func NewOECDProvider(http *httpclient.Client, config OECDConfig, logger ectologger.Logger) *OECDProvider {
	return &OECDProvider{
		http:   http,
		config: config,
		logger: logger,
	}
}

// Name returns the provider's source system name
func (p *OECDProvider) Name() string {
	return models.SourceSystemOECD
}

// Publisher returns the source document publisher
func (p *OECDProvider) Publisher() string {
	return "oecd-dac2a-api"
}

// RelationType returns the evidence relation for OECD flows
func (p *OECDProvider) RelationType() string {
	return "oecd_dac2a_api"
}

func (p *OECDProvider) ensureLoaded(ctx context.Context) error {
	if p.loaded {
		return nil
	}

	constraintBody, err := p.http.Get(ctx, p.config.BaseURL+oecdConstraintPath, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch oecd availableconstraint: %w", err)
	}
	codes, err := parseRecipientCodes(constraintBody)
	if err != nil {
		return err
	}

	areaOrgBody, err := p.http.Get(ctx, p.config.BaseURL+oecdAreaOrgPath, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch oecd codelist: %w", err)
	}
	names, err := parseAreaOrgNames(areaOrgBody)
	if err != nil {
		return err
	}

	p.recipientCodes = codes
	p.areaOrgNames = names
	p.loaded = true

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"recipient_codes": len(codes),
		"area_org_names":  len(names),
	}).Info("Loaded OECD DAC2A recipient codelist")

	return nil
}

func (p *OECDProvider) bestMatch(orgName string) *MatchResult {
	var best *MatchResult
	for code, name := range p.areaOrgNames {
		if _, ok := p.recipientCodes[code]; !ok {
			continue
		}
		score := Similarity(orgName, name)
		if best == nil || score > best.Score {
			best = &MatchResult{Code: code, Name: name, Score: score}
		}
	}
	return best
}

// hqCountryToISO3 resolves a free-text headquarters location to a DAC
// recipient country code.
func hqCountryToISO3(hqCountry *string) string {
	if hqCountry == nil {
		return ""
	}
	text := NormalizeName(*hqCountry)
	if text == "" {
		return ""
	}
	for hint, iso3 := range countryHintToISO3 {
		if strings.Contains(text, hint) {
			return iso3
		}
	}
	return ""
}

// Lookup finds the best recipient-code match, falling back to the
// organization's headquarters country, and reads its disbursement series.
func (p *OECDProvider) Lookup(ctx context.Context, orgName string, hqCountry *string) (*Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "enrichment.OECDProvider.Lookup")
	defer span.End()

	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	match := p.bestMatch(orgName)

	var used MatchResult
	if match != nil && match.Score >= p.config.Threshold {
		used = *match
	} else if iso3 := hqCountryToISO3(hqCountry); iso3 != "" {
		if _, ok := p.recipientCodes[iso3]; ok {
			name := p.areaOrgNames[iso3]
			if name == "" {
				name = iso3
			}
			used = MatchResult{Code: iso3, Name: name, Score: 0.0}
		}
	}
	if used.Code == "" {
		return nil, nil
	}

	toYear := p.config.ToYear
	if toYear == 0 {
		toYear = time.Now().UTC().Year()
	}

	dataKey := fmt.Sprintf("NOR.%s.206.USD.V", used.Code)
	dataURL := p.config.BaseURL + fmt.Sprintf(oecdDataPathTemplate, dataKey, p.config.FromYear, toYear)

	body, err := p.http.Get(ctx, dataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch oecd data: %w", err)
	}

	unitMult, points, err := parseObservations(body)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	return &Candidate{
		Match:          used,
		Points:         points,
		FundingChannel: "OECD DAC2A recipient proxy",
		CurrencyCode:   "USD",
		SourceURL:      dataURL,
		SourceNotes:    fmt.Sprintf("recipient=%s; matched=%s", used.Code, used.Name),
		FlowNotes:      fmt.Sprintf("OECD DAC2A proxy recipient=%s (%s); unit_mult=%d; match_score=%.3f", used.Code, used.Name, unitMult, used.Score),
	}, nil
}

// emptySDMXBody reports the API's plain-text "no data" responses, which
// come back with a 200 status.
func emptySDMXBody(body []byte) bool {
	return bytes.HasPrefix(body, []byte("NoRecordsFound")) || bytes.HasPrefix(body, []byte("NoResultsFound"))
}

// parseRecipientCodes extracts the RECIPIENT KeyValue values from an
// availableconstraint response.
func parseRecipientCodes(body []byte) (map[string]struct{}, error) {
	codes := make(map[string]struct{})
	if emptySDMXBody(body) {
		return codes, nil
	}

	decoder := xml.NewDecoder(bytes.NewReader(body))
	inRecipient := false
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "KeyValue":
				inRecipient = attrValue(el, "id") == "RECIPIENT"
			case "Value":
				if !inRecipient {
					continue
				}
				var value string
				if err := decoder.DecodeElement(&value, &el); err != nil {
					return nil, fmt.Errorf("failed to parse constraint value: %w", err)
				}
				if value != "" {
					codes[value] = struct{}{}
				}
			}
		case xml.EndElement:
			if el.Name.Local == "KeyValue" {
				inRecipient = false
			}
		}
	}

	return codes, nil
}

// parseAreaOrgNames extracts the CL_AREA_ORG codelist, preferring English
// names.
func parseAreaOrgNames(body []byte) (map[string]string, error) {
	names := make(map[string]string)
	if emptySDMXBody(body) {
		return names, nil
	}

	decoder := xml.NewDecoder(bytes.NewReader(body))
	inCodelist := false
	currentCode := ""
	englishName := ""
	anyName := ""
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Codelist":
				inCodelist = attrValue(el, "id") == "CL_AREA_ORG"
			case "Code":
				if inCodelist {
					currentCode = attrValue(el, "id")
					englishName = ""
					anyName = ""
				}
			case "Name":
				if !inCodelist || currentCode == "" {
					continue
				}
				lang := attrValue(el, "lang")
				var text string
				if err := decoder.DecodeElement(&text, &el); err != nil {
					return nil, fmt.Errorf("failed to parse codelist name: %w", err)
				}
				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}
				if lang == "en" && englishName == "" {
					englishName = text
				}
				if anyName == "" {
					anyName = text
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "Codelist":
				inCodelist = false
			case "Code":
				if inCodelist && currentCode != "" {
					name := englishName
					if name == "" {
						name = anyName
					}
					if name != "" {
						names[currentCode] = name
					}
				}
				currentCode = ""
			}
		}
	}

	return names, nil
}

// parseObservations reads the first series of a generic SDMX-ML data
// response. Amounts are scaled by the series UNIT_MULT power of ten.
func parseObservations(body []byte) (int, []YearAmount, error) {
	if emptySDMXBody(body) {
		return 0, nil, nil
	}

	decoder := xml.NewDecoder(bytes.NewReader(body))
	unitMult := 0
	inSeries := false
	seriesDone := false
	inObs := false
	obsYear := ""
	obsAmount := ""
	var raw []YearAmount
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Series":
				if !seriesDone {
					inSeries = true
				}
			case "Value":
				if inSeries && attrValue(el, "id") == "UNIT_MULT" {
					if mult, err := strconv.Atoi(attrValue(el, "value")); err == nil {
						unitMult = mult
					}
				}
			case "Obs":
				if inSeries {
					inObs = true
					obsYear = ""
					obsAmount = ""
				}
			case "ObsDimension":
				if inObs {
					obsYear = attrValue(el, "value")
				}
			case "ObsValue":
				if inObs {
					obsAmount = attrValue(el, "value")
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "Series":
				if inSeries {
					inSeries = false
					seriesDone = true
				}
			case "Obs":
				if !inObs {
					continue
				}
				inObs = false
				year, yearErr := strconv.Atoi(obsYear)
				amount, amountErr := strconv.ParseFloat(obsAmount, 64)
				if yearErr != nil || amountErr != nil || year <= 0 {
					continue
				}
				raw = append(raw, YearAmount{Year: year, Amount: amount})
			}
		}
	}

	scale := math.Pow10(unitMult)
	points := make([]YearAmount, 0, len(raw))
	for _, point := range raw {
		points = append(points, YearAmount{Year: point.Year, Amount: point.Amount * scale})
	}

	return unitMult, points, nil
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}
