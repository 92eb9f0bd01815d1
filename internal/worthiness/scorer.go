// Package worthiness implements the deterministic multi-component scoring
// function (spec.md C5, §4.4) that decides how much a pulse is worth
// spending LLM budget on.
package worthiness

import (
	"regexp"
	"strings"
)

const (
	Exceptional = 0.8
	Good        = 0.4
)

// Input is everything the scorer needs from a StoppedPulse plus the user's
// recent activity.
type Input struct {
	Intent                string
	Reflection            string
	IntentEmotion         string
	ReflectionEmotion     string
	ActualDurationSeconds int64
	// DailyPulseCount is the user's pulse count so far today, used for the
	// frequency bonus. -1 means "unknown".
	DailyPulseCount int
}

// Score computes score = 0.4*L + 0.3*D + 0.2*R + 0.1*F, each component in
// [0,1] (spec.md §4.4).
func Score(in Input) float64 {
	l := lengthScore(len(in.Intent) + len(in.Reflection))
	d := durationScore(in.ActualDurationSeconds)
	r := reflectionDepthScore(in)
	f := frequencyScore(in.DailyPulseCount)
	return 0.4*l + 0.3*d + 0.2*r + 0.1*f
}

// lengthScore is the L component (spec.md §4.4).
func lengthScore(n int) float64 {
	switch {
	case n >= 350:
		return 1.0
	case n >= 250:
		return 0.8 + float64(n-250)/100*0.2
	case n >= 150:
		return 0.5 + float64(n-150)/100*0.3
	case n >= 50:
		return 0.2 + float64(n-50)/100*0.3
	default:
		return float64(n) / 50 * 0.2
	}
}

// durationScore is the D component, using the Pomodoro-minutes formula
// (spec.md §9 open question 1: authoritative over the hours-based variant).
func durationScore(actualSeconds int64) float64 {
	m := float64(actualSeconds) / 60
	switch {
	case m >= 90:
		return 1.0
	case m >= 60:
		return 0.8 + (m-60)/30*0.2
	case m >= 30:
		return 0.6 + (m-30)/30*0.2
	case m >= 20:
		return 0.4 + (m-20)/10*0.2
	case m >= 10:
		return 0.2 + (m-10)/10*0.2
	default:
		return m / 10 * 0.2
	}
}

// breakthroughWords are the strong words that indicate a breakthrough or
// innovation moment (spec.md §4.4 "breakthrough-word count").
var breakthroughWords = []string{
	"breakthrough", "innovation", "revolutionary", "novel", "pioneering",
	"discovery", "groundbreaking", "cutting-edge", "advanced", "sophisticated",
	"exceptional", "remarkable", "extraordinary", "unprecedented", "milestone",
	"achievement", "success", "triumph", "victory", "accomplishment",
}

// technicalDomains are the five domain keyword groups checked in order;
// the first domain with any keyword present in the text sets domainScore
// (spec.md §4.4 "first matching technical domain").
var technicalDomains = [][]string{
	{ // ai_ml
		"ai", "artificial intelligence", "machine learning", "ml", "neural",
		"deep learning", "transformer", "algorithm", "model", "training",
		"inference", "data science",
	},
	{ // research
		"research", "study", "analysis", "investigation", "experiment",
		"hypothesis", "methodology", "findings", "results", "conclusion",
		"publication",
	},
	{ // engineering
		"engineering", "development", "coding", "programming", "software",
		"system", "architecture", "design", "implementation", "optimization",
		"performance",
	},
	{ // creative
		"creative", "design", "art", "writing", "content", "visual",
		"aesthetic", "inspiration", "imagination", "artistic", "innovative design",
	},
	{ // business
		"strategy", "planning", "meeting", "presentation", "analysis",
		"decision", "leadership", "management", "collaboration", "teamwork",
	},
}

var numericRe = regexp.MustCompile(`\d+(\.\d+)?\s*(%|percent|x|ms|s|min|hours?|hrs?)?`)
var technicalTermRe = regexp.MustCompile(`(?i)\b(function|class|module|component|pipeline|pattern|framework)\b`)
var actionVerbRe = regexp.MustCompile(`(?i)\b(built|wrote|fixed|designed|implemented|shipped|refactored|tested|debugged|deployed)\b`)

// reflectionDepthScore is the R component: four sub-scores summed and
// clamped to 1.0 (spec.md §4.4).
func reflectionDepthScore(in Input) float64 {
	text := strings.ToLower(in.Intent + " " + in.Reflection)

	// Breakthrough-word count, capped at 0.3.
	btCount := 0
	for _, w := range breakthroughWords {
		btCount += strings.Count(text, w)
	}
	breakthroughScore := min(float64(btCount)*0.1, 0.3)

	// First matching technical domain contributes min(0.2, matches*0.05).
	var domainScore float64
	for _, domain := range technicalDomains {
		matches := 0
		for _, term := range domain {
			if strings.Contains(text, term) {
				matches++
			}
		}
		if matches > 0 {
			domainScore = min(0.2, float64(matches)*0.05)
			break
		}
	}

	// Emotional-journey bonus, up to 0.3.
	journeyScore := emotionalJourneyScore(in.IntentEmotion, in.ReflectionEmotion)

	// Specificity bonus, up to 0.2.
	specificityScore := 0.0
	if numericRe.MatchString(text) {
		specificityScore += 0.05
	}
	techMatches := len(technicalTermRe.FindAllString(text, -1))
	specificityScore += float64(techMatches) * 0.03
	if longSentenceCount(in.Reflection) >= 2 {
		specificityScore += 0.05
	}
	actionVerbCount := len(actionVerbRe.FindAllString(text, -1))
	specificityScore += min(float64(actionVerbCount)*0.02, 0.05)
	specificityScore = min(specificityScore, 0.2)

	total := breakthroughScore + domainScore + journeyScore + specificityScore
	return min(total, 1.0)
}

var positiveEndEmotions = map[string]bool{"accomplished": true, "excited": true, "proud": true, "satisfied": true}
var negativeStartEmotions = map[string]bool{"stressed": true, "frustrated": true, "tired": true, "overwhelmed": true}
var eliteEmotions = map[string]bool{"triumphant": true, "accomplished": true}

func emotionalJourneyScore(introEmotion, outroEmotion string) float64 {
	if introEmotion == "" || outroEmotion == "" {
		return 0
	}
	var score float64
	if positiveEndEmotions[strings.ToLower(outroEmotion)] {
		score += 0.15
	}
	if negativeStartEmotions[strings.ToLower(introEmotion)] && positiveEndEmotions[strings.ToLower(outroEmotion)] {
		score += 0.15
	}
	if eliteEmotions[strings.ToLower(outroEmotion)] {
		score += 0.1
	}
	return min(score, 0.3)
}

func longSentenceCount(reflection string) int {
	count := 0
	for _, sentence := range strings.FieldsFunc(reflection, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if len(strings.Fields(sentence)) >= 12 {
			count++
		}
	}
	return count
}

// frequencyScore is the F component. -1 (unknown frequency signal) scores
// 0.5; every other value is a genuine daily pulse count and must stay
// monotone non-decreasing in n (spec.md §8 testable property 6), so 0 and 1
// pulses both land in the same low band rather than 0 reusing the unknown
// sentinel's 0.5.
func frequencyScore(n int) float64 {
	switch {
	case n < 0:
		return 0.5
	case n >= 5:
		return 1.0
	case n >= 3:
		return 0.7 + float64(n-3)*0.15
	case n >= 2:
		return 0.5 + float64(n-2)*0.2
	default: // 0 or 1 pulses today
		return 0.3
	}
}
