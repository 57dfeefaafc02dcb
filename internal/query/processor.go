// Package query turns natural-language fitness questions into structured
// intents: a classified query type, extracted entities, paraphrase variants
// for multi-query retrieval, and derived search filter criteria.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charlesparmar/kenko/internal/model"
)

// classifierGroup is one query type with its patterns. Groups are checked in
// slice order and patterns in declaration order within a group; the first
// match wins. The ordering is load-bearing: downstream filter selection and
// relevance boosts depend on which type wins, so more specific groups come
// first.
type classifierGroup struct {
	qtype    model.QueryType
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var classifierGroups = []classifierGroup{
	{model.QueryTimeRangeAnalysis, compileAll(
		`(until|till|up to|through|during|in|for).*(end|start|beginning|middle)`,
		`(since|from|starting|beginning).*(until|till|up to|end)`,
		`(last|this|next|previous).*(week|month|year|quarter)`,
		`(january|february|march|april|may|june|july|august|september|october|november|december)`,
		`(weight|fat|bmi).*(loss|change|progress).*(in|during|for).*(specific|period|time|date)`,
	)},
	{model.QueryCalculationRequest, compileAll(
		`(calculate|compute|total|sum|how much|how many)`,
		`(weeks|months|days).*(of|with|data)`,
		`(average|mean|median|total).*(weight|fat|bmi)`,
		`(weight loss|fat loss).*(total|overall|in|during)`,
	)},
	{model.QueryDataSummary, compileAll(
		`(statistics|stats|summary|overview).*(data|measurements)`,
		`(how many|count|number).*(records|measurements|data points)`,
		`(data|measurements).*(summary|overview|statistics)`,
	)},
	{model.QueryTrend, compileAll(
		`(how|what).*(changed|trend|progress|improved|decreased|increased)`,
		`(trend|progress|change).*(over|during|in|for)`,
		`(weight|fat|bmi|measurements).*(trend|change|progress)`,
	)},
	{model.QueryComparison, compileAll(
		`(compare|difference|vs|versus|between)`,
		`(week|month|period).*(to|vs|versus)`,
		`(then|now|before|after).*(vs|versus|compared)`,
	)},
	{model.QueryGoal, compileAll(
		`(goal|target|objective)`,
		`(am i|are you|how).*(progress|achieving|meeting)`,
		`(strongest|weakest|best|worst).*(areas|measurements)`,
	)},
	{model.QuerySummary, compileAll(
		`(summary|overview|statistics|stats)`,
		`(all|total|overall).*(data|measurements)`,
		`(journey|progress|fitness).*(summary|overview)`,
	)},
	{model.QuerySpecific, compileAll(
		`(what|show|get).*(weight|fat|bmi|measurements)`,
		`(current|latest|recent).*(measurements|data)`,
		`(on|at|for).*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`,
	)},
}

// measurementKeywords maps measurement categories to the surface forms that
// refer to them. Ordered so entity extraction is deterministic.
var measurementKeywords = []struct {
	category string
	keywords []string
}{
	{"weight", []string{"weight", "kg", "pounds", "lbs"}},
	{"fat_percent", []string{"fat", "fat percentage", "body fat", "fat%"}},
	{"bmi", []string{"bmi", "body mass index"}},
	{"fat_weight", []string{"fat weight", "fat mass"}},
	{"lean_weight", []string{"lean weight", "lean mass", "muscle mass"}},
	{"body_measurements", []string{
		"neck", "shoulders", "biceps", "forearms", "chest",
		"above navel", "navel", "waist", "hips", "thighs", "calves",
	}},
}

var (
	isoDateRE = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	numberRE  = regexp.MustCompile(`\d+(?:\.\d+)?`)

	spanREs = []struct {
		unit string
		re   *regexp.Regexp
	}{
		{"week", regexp.MustCompile(`(?i)(\d+)\s*(week|wk)s?`)},
		{"month", regexp.MustCompile(`(?i)(\d+)\s*(month|mo)s?`)},
		{"year", regexp.MustCompile(`(?i)(\d+)\s*(year|yr)s?`)},
		{"day", regexp.MustCompile(`(?i)(\d+)\s*(day|d)s?`)},
	}

	comparisonTerms = []string{"vs", "versus", "compare", "difference", "between"}
)

// Processor classifies queries and extracts structured information from them.
type Processor struct {
	now func() time.Time
}

// NewProcessor creates a query processor.
func NewProcessor() *Processor {
	return &Processor{now: time.Now}
}

// Process runs the full pipeline: classify, extract entities, synthesize
// enhanced query variants, and derive filter criteria.
func (p *Processor) Process(query string) (model.Intent, error) {
	if err := p.Validate(query); err != nil {
		return model.Intent{}, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	qtype := p.Classify(q)
	entities := p.ExtractEntities(q)

	return model.Intent{
		Original: q,
		Type:     qtype,
		Entities: entities,
		Enhanced: p.Enhance(q, qtype, entities),
		Filters:  p.BuildFilters(qtype, entities),
	}, nil
}

// Classify returns the query's type: groups are checked in priority order,
// patterns in order within each group, first match wins. No match means
// general.
func (p *Processor) Classify(query string) model.QueryType {
	q := strings.ToLower(query)
	for _, group := range classifierGroups {
		for _, re := range group.patterns {
			if re.MatchString(q) {
				return group.qtype
			}
		}
	}
	return model.QueryGeneral
}

// ExtractEntities pulls measurement references, explicit dates, relative
// time spans, comparison markers, and free numeric tokens out of the query.
func (p *Processor) ExtractEntities(query string) model.Entities {
	q := strings.ToLower(query)
	var e model.Entities

	for _, mk := range measurementKeywords {
		for _, keyword := range mk.keywords {
			if strings.Contains(q, keyword) {
				e.Measurements = append(e.Measurements, model.MeasurementRef{
					Category: mk.category,
					Keyword:  keyword,
				})
			}
		}
	}

	e.Dates = isoDateRE.FindAllString(q, -1)

	for _, span := range spanREs {
		for _, m := range span.re.FindAllStringSubmatch(q, -1) {
			count, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			e.TimeSpans = append(e.TimeSpans, model.TimeSpan{Unit: span.unit, Count: count})
		}
	}

	for _, term := range comparisonTerms {
		if strings.Contains(q, term) {
			e.ComparisonTerms = append(e.ComparisonTerms, term)
		}
	}

	for _, num := range numberRE.FindAllString(q, -1) {
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			e.Numbers = append(e.Numbers, f)
		}
	}

	return e
}

// Enhance synthesizes paraphrase variants for multi-query retrieval. The
// original query always comes first; duplicates are removed preserving
// first-seen order.
func (p *Processor) Enhance(query string, qtype model.QueryType, entities model.Entities) []string {
	enhanced := []string{query}

	for _, m := range entities.Measurements {
		switch qtype {
		case model.QueryTrend:
			enhanced = append(enhanced,
				m.Keyword+" trend over time",
				m.Keyword+" changes progress")
		case model.QueryComparison:
			enhanced = append(enhanced,
				m.Keyword+" comparison",
				m.Keyword+" difference")
		case model.QuerySpecific:
			enhanced = append(enhanced,
				m.Keyword+" measurements",
				"current "+m.Keyword)
		}
	}

	if qtype == model.QueryTrend {
		for _, span := range entities.TimeSpans {
			enhanced = append(enhanced,
				fmt.Sprintf("trend over %d %ss", span.Count, span.Unit),
				fmt.Sprintf("changes in last %d %ss", span.Count, span.Unit))
		}
	}

	switch qtype {
	case model.QuerySummary:
		enhanced = append(enhanced,
			"fitness data summary",
			"overall statistics",
			"complete measurements overview")
	case model.QueryGoal:
		enhanced = append(enhanced,
			"progress toward goals",
			"achievement analysis",
			"performance evaluation")
	}

	seen := make(map[string]struct{}, len(enhanced))
	unique := enhanced[:0]
	for _, q := range enhanced {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		unique = append(unique, q)
	}
	return unique
}

// BuildFilters derives search filter criteria from the query type and
// entities, keyed by payload field name. Returns nil when nothing applies.
func (p *Processor) BuildFilters(qtype model.QueryType, entities model.Entities) map[string]any {
	filters := make(map[string]any)

	if len(entities.Measurements) > 0 {
		categories := make([]string, 0, len(entities.Measurements))
		seen := make(map[string]struct{})
		for _, m := range entities.Measurements {
			if _, ok := seen[m.Category]; ok {
				continue
			}
			seen[m.Category] = struct{}{}
			categories = append(categories, m.Category)
		}
		filters["measurement_types"] = categories
	}

	if len(entities.Dates) > 0 && qtype == model.QuerySpecific {
		filters["dates"] = entities.Dates
	}

	if len(entities.TimeSpans) > 0 && (qtype == model.QueryTrend || qtype == model.QueryComparison) {
		end := p.now()
		for _, span := range entities.TimeSpans {
			var start time.Time
			switch span.Unit {
			case "week":
				start = end.AddDate(0, 0, -7*span.Count)
			case "month":
				start = end.AddDate(0, 0, -30*span.Count)
			case "year":
				start = end.AddDate(0, 0, -365*span.Count)
			default:
				start = end.AddDate(0, 0, -span.Count)
			}
			filters["date_from"] = start
			filters["date_to"] = end
		}
	}

	if len(filters) == 0 {
		return nil
	}
	return filters
}

var (
	whitespaceRE  = regexp.MustCompile(`\s+`)
	punctuationRE = regexp.MustCompile(`[^\w\s\-]`)

	normalizeREs = []struct {
		re  *regexp.Regexp
		rep string
	}{
		{regexp.MustCompile(`body mass index`), "bmi"},
		{regexp.MustCompile(`body fat`), "fat_percent"},
		{regexp.MustCompile(`fat\s*%`), "fat_percent"},
		{regexp.MustCompile(`fat percent(age)?`), "fat_percent"},
		{regexp.MustCompile(`\bvs\b`), "versus"},
		{regexp.MustCompile(`\bwks?\b`), "week"},
		{regexp.MustCompile(`\bmos?\b`), "month"},
		{regexp.MustCompile(`\byrs?\b`), "year"},
	}
)

// Normalize lowercases, collapses whitespace, strips punctuation, and maps
// common variations onto canonical terms.
func (p *Processor) Normalize(query string) string {
	normalized := strings.ToLower(query)
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")
	for _, r := range normalizeREs {
		normalized = r.re.ReplaceAllString(normalized, r.rep)
	}
	normalized = punctuationRE.ReplaceAllString(normalized, " ")
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Validate rejects queries that are empty, too short, too long, or lack
// meaningful content.
func (p *Processor) Validate(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("query: empty query")
	}
	if len(trimmed) < 3 {
		return fmt.Errorf("query: too short")
	}
	if len(trimmed) > 500 {
		return fmt.Errorf("query: too long")
	}
	if len(strings.Fields(trimmed)) < 2 {
		return fmt.Errorf("query: needs at least 2 words")
	}
	return nil
}

// Suggestions returns up to 10 completed queries matching a partial input.
func (p *Processor) Suggestions(partial string) []string {
	trimmed := strings.ToLower(strings.TrimSpace(partial))
	if trimmed == "" {
		return nil
	}

	commonPatterns := []string{
		"How has my weight changed",
		"Show me my fat percentage trends",
		"What's my BMI progression",
		"Compare my measurements from week",
		"Give me a summary of my fitness journey",
		"What are my current body measurements",
		"Am I making progress toward my goals",
		"Show me my chest measurements",
		"What was my weight on",
		"How did my body composition change",
	}

	var suggestions []string
	for _, pattern := range commonPatterns {
		if strings.Contains(strings.ToLower(pattern), trimmed) {
			suggestions = append(suggestions, pattern)
		}
	}

	for _, mk := range measurementKeywords {
		for _, keyword := range mk.keywords {
			if strings.Contains(trimmed, keyword) {
				suggestions = append(suggestions,
					"Show me my "+keyword+" trends",
					"What's my current "+keyword,
					"Compare my "+keyword+" over time")
			}
		}
	}

	seen := make(map[string]struct{}, len(suggestions))
	unique := suggestions[:0]
	for _, s := range suggestions {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}
	if len(unique) > 10 {
		unique = unique[:10]
	}
	return unique
}
