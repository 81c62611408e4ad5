package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"newsradar/internal/domain"
)

const maxRawInError = 500

type classifiedItem struct {
	ID            json.RawMessage `json:"id"`
	Score         json.RawMessage `json:"score"`
	Sentiment     json.RawMessage `json:"sentiment"`
	Summary       string          `json:"summary"`
	Sector        string          `json:"sector"`
	SubSector     string          `json:"sub_sector"`
	Type          string          `json:"type"`
	ImpactHorizon string          `json:"impact_horizon"`
	KeyTrigger    string          `json:"key_trigger"`
	RelatedStocks json.RawMessage `json:"related_stocks"`
	Logic         string          `json:"logic"`
}

// ParseClassifications decodes a classifier reply into results keyed by
// item id. A bare object is treated as a one-element array. Objects without
// an id are skipped.
func ParseClassifications(responseText string) (map[string]domain.Classification, error) {
	payload := strings.TrimSpace(ExtractJSON(responseText))
	if strings.HasPrefix(payload, "{") {
		payload = "[" + payload + "]"
	}

	var classified []classifiedItem
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	if err := dec.Decode(&classified); err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", domain.ErrClassifyParseFailed, err, truncateRaw(responseText))
	}

	out := make(map[string]domain.Classification, len(classified))
	for _, c := range classified {
		id := parseIDField(c.ID)
		if id == "" {
			continue
		}
		score := int(math.Round(parseNumberField(c.Score)))
		out[id] = domain.Classification{
			Score:         score,
			Sentiment:     parseNumberField(c.Sentiment),
			Summary:       strings.TrimSpace(c.Summary),
			Sector:        strings.TrimSpace(c.Sector),
			SubSector:     strings.TrimSpace(c.SubSector),
			Type:          strings.TrimSpace(c.Type),
			ImpactHorizon: strings.TrimSpace(c.ImpactHorizon),
			KeyTrigger:    strings.TrimSpace(c.KeyTrigger),
			RelatedStocks: parseStocksField(c.RelatedStocks),
			Logic:         strings.TrimSpace(c.Logic),
		}.Clamp()
	}
	return out, nil
}

func parseIDField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if i, err := asNumber.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return asNumber.String()
	}
	return ""
}

// parseNumberField accepts 7, 7.5 or "7".
func parseNumberField(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return parsed
		}
	}
	return 0
}

func parseStocksField(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var asStringSlice []string
	if err := json.Unmarshal(raw, &asStringSlice); err == nil {
		return compactStrings(asStringSlice)
	}

	// Some replies send "A,B" or "A、B".
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return compactStrings(strings.FieldsFunc(asString, func(r rune) bool {
			return r == ',' || r == '，' || r == '、'
		}))
	}

	var asAnySlice []any
	if err := json.Unmarshal(raw, &asAnySlice); err == nil {
		var out []string
		for _, v := range asAnySlice {
			switch x := v.(type) {
			case string:
				out = append(out, x)
			case float64:
				out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
			}
		}
		return compactStrings(out)
	}
	return nil
}

func compactStrings(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRaw(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxRawInError {
		return s
	}
	return s[:maxRawInError] + "...(truncated)"
}
