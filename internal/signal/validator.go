// Package signal turns free-form generative replies into normalized signals.
//
// Parsing is a total function: a reply with a recoverable JSON object yields a
// parsed or repaired signal, and anything else degrades to a keyword-scored
// fallback. Callers never see a parse error.
package signal

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"stock-advisor/internal/models"
)

// Source tells how a signal was obtained.
type Source string

const (
	SourceParsed   Source = "parsed"
	SourceRepaired Source = "repaired"
	SourceFallback Source = "fallback"
)

// Judgment is a horizon-specific sub-signal.
type Judgment struct {
	Type       models.SignalType `json:"signalType"`
	Confidence float64           `json:"confidence"`
}

// Details carries the optional fields of a structured reply.
type Details struct {
	TargetPrice         *float64  `json:"targetPrice,omitempty"`
	StopLoss            *float64  `json:"stopLoss,omitempty"`
	ShortTerm           *Judgment `json:"shortTerm,omitempty"`
	LongTerm            *Judgment `json:"longTerm,omitempty"`
	TechnicalAnalysis   []string  `json:"technicalAnalysis,omitempty"`
	FundamentalAnalysis []string  `json:"fundamentalAnalysis,omitempty"`
	Risks               []string  `json:"risks,omitempty"`
	Opportunities       []string  `json:"opportunities,omitempty"`
}

// Result is the validator output. Signal is always well-formed whatever the
// Source.
type Result struct {
	Signal  models.Signal `json:"signal"`
	Source  Source        `json:"source"`
	Repairs []string      `json:"repairs,omitempty"`
	Details Details       `json:"details"`
}

// Field aliases, matched case-insensitively.
var (
	signalKeys     = []string{"signaltype", "signal", "signal_type", "action", "recommendation"}
	confidenceKeys = []string{"confidence", "confidence_score", "confidencescore", "score"}
	summaryKeys    = []string{"summary", "reason", "reasoning", "analysis"}
	targetKeys     = []string{"targetprice", "target_price", "target"}
	stopLossKeys   = []string{"stoploss", "stop_loss", "stop"}
	shortTermKeys  = []string{"shortterm", "short_term"}
	longTermKeys   = []string{"longterm", "long_term"}
)

// Validator parses generative replies.
type Validator struct {
	keywords   *KeywordTable
	maxSummary int
	logger     zerolog.Logger
}

// NewValidator creates a validator. A nil table selects the embedded default.
func NewValidator(keywords *KeywordTable, logger zerolog.Logger) *Validator {
	if keywords == nil {
		keywords = DefaultKeywordTable()
	}
	return &Validator{
		keywords:   keywords,
		maxSummary: MaxSummaryRunes,
		logger:     logger.With().Str("component", "validator").Logger(),
	}
}

// Keywords returns the classifier table in use.
func (v *Validator) Keywords() *KeywordTable {
	return v.keywords
}

// Parse extracts a Signal from raw. It never fails.
func (v *Validator) Parse(raw string) Result {
	for _, candidate := range extractObjects(raw, maxCandidates) {
		obj, applied, ok := decodeObject(candidate)
		if !ok {
			continue
		}
		sig, ok := toSignal(obj)
		if !ok {
			v.logger.Debug().Msg("object found but does not satisfy the signal contract")
			continue
		}

		source := SourceParsed
		if len(applied) > 0 {
			source = SourceRepaired
		}
		return Result{
			Signal:  sig,
			Source:  source,
			Repairs: applied,
			Details: toDetails(obj),
		}
	}

	res := v.fallback(raw)
	v.logger.Debug().
		Str("signal", string(res.Signal.Type)).
		Float64("confidence", res.Signal.Confidence).
		Msg("no structured signal, used keyword fallback")
	return res
}

// decodeObject parses candidate strictly, then after each cumulative repair.
func decodeObject(candidate string) (map[string]any, []string, bool) {
	if obj, ok := unmarshalObject(candidate); ok {
		return obj, nil, true
	}

	var applied []string
	text := candidate
	for _, r := range repairs {
		repaired := r.fn(text)
		if repaired == text {
			continue
		}
		text = repaired
		applied = append(applied, r.name)
		if obj, ok := unmarshalObject(text); ok {
			return obj, applied, true
		}
	}
	return nil, nil, false
}

func unmarshalObject(s string) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	obj := make(map[string]any, len(raw))
	for k, val := range raw {
		obj[strings.ToLower(strings.TrimSpace(k))] = val
	}
	return obj, true
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if val, ok := obj[k]; ok && val != nil {
			return val, true
		}
	}
	return nil, false
}

// toSignal validates obj against the signal contract.
func toSignal(obj map[string]any) (models.Signal, bool) {
	rawType, ok := lookup(obj, signalKeys)
	if !ok {
		return models.Signal{}, false
	}
	typeStr, ok := rawType.(string)
	if !ok {
		return models.Signal{}, false
	}
	sigType, ok := models.ParseSignalType(typeStr)
	if !ok {
		return models.Signal{}, false
	}

	confidence, ok := confidenceOf(obj)
	if !ok {
		return models.Signal{}, false
	}

	rawSummary, ok := lookup(obj, summaryKeys)
	if !ok {
		return models.Signal{}, false
	}
	summary, ok := rawSummary.(string)
	if !ok {
		return models.Signal{}, false
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return models.Signal{}, false
	}

	return models.Signal{
		Type:       sigType,
		Confidence: confidence,
		Summary:    summary,
	}, true
}

// confidenceOf reads the top-level confidence, or averages the horizon
// confidences when only those are present.
func confidenceOf(obj map[string]any) (float64, bool) {
	if raw, ok := lookup(obj, confidenceKeys); ok {
		return coerceConfidence(raw)
	}
	short, long := judgmentOf(obj, shortTermKeys), judgmentOf(obj, longTermKeys)
	if short != nil && long != nil {
		return FuseConfidence(short.Confidence, long.Confidence), true
	}
	return 0, false
}

// FuseConfidence averages two horizon confidences, rounds and clamps.
func FuseConfidence(short, long float64) float64 {
	return models.ClampConfidence(math.Round((short + long) / 2))
}

// coerceConfidence accepts numbers and numeric strings with an optional
// percent sign. Fractions below 1 without a percent sign are read as ratios.
func coerceConfidence(raw any) (float64, bool) {
	var f float64
	percent := false
	switch val := raw.(type) {
	case float64:
		f = val
	case string:
		s := strings.TrimSpace(val)
		percent = strings.HasSuffix(s, "%")
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		s = strings.Replace(s, ",", ".", 1)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if !percent && f > 0 && f < 1 {
		f *= 100
	}
	return models.ClampConfidence(f), true
}

func judgmentOf(obj map[string]any, keys []string) *Judgment {
	raw, ok := lookup(obj, keys)
	if !ok {
		return nil
	}
	nested, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	lowered := make(map[string]any, len(nested))
	for k, val := range nested {
		lowered[strings.ToLower(k)] = val
	}

	j := &Judgment{Type: models.SignalHold}
	if rawType, ok := lookup(lowered, signalKeys); ok {
		if s, ok := rawType.(string); ok {
			if t, ok := models.ParseSignalType(s); ok {
				j.Type = t
			}
		}
	}
	rawConf, ok := lookup(lowered, confidenceKeys)
	if !ok {
		return nil
	}
	if j.Confidence, ok = coerceConfidence(rawConf); !ok {
		return nil
	}
	return j
}

func toDetails(obj map[string]any) Details {
	d := Details{
		ShortTerm:           judgmentOf(obj, shortTermKeys),
		LongTerm:            judgmentOf(obj, longTermKeys),
		TechnicalAnalysis:   stringList(obj, "technicalanalysis", "technical_analysis"),
		FundamentalAnalysis: stringList(obj, "fundamentalanalysis", "fundamental_analysis"),
		Risks:               stringList(obj, "risks", "risk"),
		Opportunities:       stringList(obj, "opportunities", "opportunity"),
	}
	if raw, ok := lookup(obj, targetKeys); ok {
		d.TargetPrice = positivePrice(raw)
	}
	if raw, ok := lookup(obj, stopLossKeys); ok {
		d.StopLoss = positivePrice(raw)
	}
	return d
}

func stringList(obj map[string]any, keys ...string) []string {
	raw, ok := lookup(obj, keys)
	if !ok {
		return nil
	}
	var out []string
	add := func(val any) {
		switch x := val.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
		}
	}
	if list, ok := raw.([]any); ok {
		for _, item := range list {
			add(item)
		}
	} else {
		add(raw)
	}
	return out
}

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// positivePrice reads a price from a number or a string such as "125,000 VND".
func positivePrice(raw any) *float64 {
	var f float64
	switch val := raw.(type) {
	case float64:
		f = val
	case string:
		m := numberPattern.FindString(val)
		if m == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	return &f
}
