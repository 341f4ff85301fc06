package stages

import (
	"math"
	"regexp"
	"strings"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/readability"
)

var (
	realDataPattern    = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*%|\b(?:according to|survey|study|studies|statistics?|report(?:ed|s)?)\b`)
	caseStudyPattern   = regexp.MustCompile(`(?i)\bcase stud(?:y|ies)\b`)
	expertQuotePattern = regexp.MustCompile(`(?i)["“][^"”]{12,}["”]\s*(?:[,.-]|said|says|explains|notes)|\b(?:says|said|explains)\s+[A-Z]`)
)

// BuildMetrics 根据终稿推导文章指标，传播与商业维度使用固定基线
func BuildMetrics(state *model.GenerationState) *model.Metrics {
	content := state.FinalContent
	readable := readability.FleschReadingEase(content)
	seo := keywordCoverage(content, state.Keywords)
	hasData := realDataPattern.MatchString(content)
	hasCases := caseStudyPattern.MatchString(content)
	hasQuotes := expertQuotePattern.MatchString(content)

	m := &model.Metrics{
		ViralPotential: map[string]float64{
			"shareability":           70,
			"emotional_impact":       60,
			"trending_topic_fit":     80,
			"social_media_potential": 70,
		},
		BusinessImpact: map[string]float64{
			"sales_potential":    60,
			"lead_generation":    70,
			"brand_authority":    80,
			"customer_education": 75,
		},
		ContentType: map[string]float64{
			"educational":        0.8,
			"sales":              0.4,
			"thought_leadership": 0.6,
		},
		FunnelStage:      "middle",
		ReaderLevel:      readerLevel(readable),
		ReadTimeMinutes:  readability.ReadTimeMinutes(content),
		ReadabilityScore: &readable,
		SEOScore:         &seo,
		HasRealData:      &hasData,
		HasCaseStudies:   &hasCases,
		HasExpertQuotes:  &hasQuotes,
	}
	if state.Analysis != nil {
		engagement := round2(state.Analysis.Empathy.Score * 10)
		m.EngagementScore = &engagement
	}
	return m
}

// keywordCoverage 终稿中出现的关键词占比，0-100
func keywordCoverage(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			hits++
		}
	}
	return math.Round(float64(hits)/float64(len(keywords))*1000) / 10
}

func readerLevel(flesch float64) string {
	switch {
	case flesch >= 60:
		return "beginner"
	case flesch >= 30:
		return "intermediate"
	default:
		return "advanced"
	}
}
