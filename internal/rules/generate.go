package rules

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// badgeTable is the curated (category, intensity) lookup, mirroring the
// `badges` dict literal in standard_enhancement/generators.py's
// get_achievement_badge verbatim (spec.md §4.3 step 6).
var badgeTable = map[string]map[string]string{
	"workout": {
		"epic": "🏆 Fitness Warrior", "grand": "🥇 Grand Fitness Champion", "major": "💪 Strong Performer",
		"minor": "🏃 Active Starter", "micro": "🔸 Quick Mover",
	},
	"meditation": {
		"epic": "☮️ Inner Peace Champion", "grand": "🌌 Grand Zen Sage", "major": "🧘‍♀️ Zen Master",
		"minor": "🌱 Calm Initiate", "micro": "🫧 Mindful Moment",
	},
	"study": {
		"epic": "🎓 Knowledge Seeker", "grand": "🏅 Grand Scholar", "major": "📚 Learning Champion",
		"minor": "✏️ Study Starter", "micro": "🔖 Quick Learner",
	},
	"work": {
		"epic": "🚀 Productivity Hero", "grand": "🏆 Grand Productivity Master", "major": "⚡ Task Crusher",
		"minor": "📝 Task Initiator", "micro": "⏳ Quick Contributor",
	},
	"reading": {
		"epic": "📖 Reading Legend", "grand": "🏅 Grand Bookworm", "major": "📚 Page Turner",
		"minor": "🔖 Reading Starter", "micro": "📄 Quick Reader",
	},
	"creative": {
		"epic": "🎨 Creative Virtuoso", "grand": "🏅 Grand Creator", "major": "🖌️ Artful Achiever",
		"minor": "✏️ Creative Starter", "micro": "🪄 Quick Creator",
	},
	"coding": {
		"epic": "💻 Code Ninja", "grand": "🏅 Grand Code Architect", "major": "🛠️ Bug Slayer",
		"minor": "👨‍💻 Code Starter", "micro": "⌨️ Quick Coder",
	},
	"music": {
		"epic": "🎶 Maestro Supreme", "grand": "🏅 Grand Virtuoso", "major": "🎸 Music Maker",
		"minor": "🎵 Music Starter", "micro": "🔔 Quick Tune",
	},
	"cooking": {
		"epic": "👨‍🍳 Culinary Legend", "grand": "🏅 Grand Chef", "major": "🍲 Kitchen Pro",
		"minor": "🥄 Cooking Starter", "micro": "🍪 Quick Cook",
	},
	"gaming": {
		"epic": "🎮 Gaming Champion", "grand": "🏅 Grand Gamer", "major": "🕹️ Game Master",
		"minor": "🎲 Game Starter", "micro": "🃏 Quick Player",
	},
	"social": {
		"epic": "🤝 Social Star", "grand": "🏅 Grand Connector", "major": "💬 Social Achiever",
		"minor": "👋 Social Starter", "micro": "📱 Quick Chat",
	},
	"travel": {
		"epic": "🌍 World Explorer", "grand": "🏅 Grand Traveler", "major": "🧳 Journey Maker",
		"minor": "🚗 Travel Starter", "micro": "🗺️ Quick Trip",
	},
	"default": {
		"epic": "🏆 Legendary Achiever", "grand": "⭐ Grand Performer", "major": "✨ Progress Maker",
		"minor": "🔹 Starter", "micro": "🔸 Quick Session",
	},
}

// journeyBadges fires when intent and reflection emotions differ and the
// pair is present here, overriding the plain badge lookup — the
// `emotion_journey_badges` dict from generators.py's get_achievement_badge
// (spec.md §4.3 step 6).
var journeyBadges = map[[2]string]string{
	{"focus", "accomplished"}:  "🎯➡️🏆 Focus Champion",
	{"creation", "fulfilled"}:  "💡➡️✨ Creative Master",
	{"study", "energized"}:     "📚➡️⚡ Learning Dynamo",
	{"work", "accomplished"}:   "💼➡️🎉 Task Conqueror",
	{"frustrated", "peaceful"}: "😤➡️🕯️ Transformation Hero",
	{"tired", "energized"}:     "😴➡️⚡ Energy Transformer",
}

// highEnergyEmotions gate the fuzzy-matched "Master" badge that generators.py
// awards on epic/grand sessions when no exact journey pair matches but the
// reflection emotion is itself a high-energy one.
var highEnergyEmotions = []string{"accomplished", "fulfilled", "energized", "excited", "peaceful"}

// titleTemplates are the four base templates from PulseTitleGenerator's
// generate_title (spec.md §4.3 step 5): intensity prefix, sentiment
// adjective, and action noun recombined in different orders.
var titleTemplates = []string{
	"%[1]s %[2]s %[3]s!",
	"%[2]s %[1]s %[3]s",
	"%[1]s & %[2]s %[3]s",
	"%[3]s: %[1]s and %[2]s!",
}

// journeyTemplates are the three additional templates generate_title mixes
// in once intent and reflection emotions differ. Args: [1] title-cased
// intent emotion, [2] title-cased reflection emotion, [3] action noun,
// [4] intensity prefix, [5] raw (un-cased) intent emotion, [6] raw
// reflection emotion — matching which form the source uses per template.
var journeyTemplates = []string{
	"%[1]s → %[2]s %[3]s",
	"%[4]s %[5]s to %[6]s Journey!",
	"%[3]s: %[5]s → %[6]s Growth",
}

// Result is the output of Enrich (spec.md §4.3: "Outputs: (gen_title,
// gen_badge)").
type Result struct {
	GenTitle string
	GenBadge string
}

// Enricher produces deterministic titles and badges from curated
// dictionaries (spec.md C4). All randomness is drawn from an injected
// *rand.Rand so callers can fix the seed in tests (spec.md §8 scenarios,
// seed=0).
type Enricher struct {
	dict *dictionaries
}

// NewEnricher loads the embedded dictionaries once.
func NewEnricher() (*Enricher, error) {
	d, err := loadDictionaries()
	if err != nil {
		return nil, err
	}
	return &Enricher{dict: d}, nil
}

// Input is the subset of a StoppedPulse the rule enricher consumes.
type Input struct {
	Intent                string
	IntentEmotion         string
	Reflection             string
	ReflectionEmotion      string
	ActualDurationSeconds  int64
}

// Enrich runs the full classification + generation pipeline.
func (e *Enricher) Enrich(in Input, rng *rand.Rand) Result {
	level := e.dict.classifyDuration(in.ActualDurationSeconds)
	category := e.dict.classifyCategory(in.Intent)
	sentiment := classifySentiment(in.ReflectionEmotion, in.Reflection)

	emoji := e.pickEmoji(category, rng)
	title := e.buildTitle(category, sentiment, level, in, emoji, rng)
	badge := e.buildBadge(category, level.Name, in)

	return Result{GenTitle: title, GenBadge: badge}
}

func (e *Enricher) pickEmoji(category string, rng *rand.Rand) string {
	emojis := e.dict.intentEmojis[category]
	if len(emojis) == 0 {
		emojis = e.dict.intentEmojis["default"]
	}
	if len(emojis) == 0 {
		return "✨"
	}
	return emojis[rng.IntN(len(emojis))]
}

func (e *Enricher) noun(category string, rng *rand.Rand) string {
	nouns := e.dict.categories[category]
	if len(nouns) == 0 {
		nouns = e.dict.categories["default"]
	}
	if len(nouns) == 0 {
		return "session"
	}
	return nouns[rng.IntN(len(nouns))]
}

func (e *Enricher) adjective(sentiment string, rng *rand.Rand) string {
	adjectives := e.dict.sentimentAdjectives[sentiment]
	if len(adjectives) == 0 {
		adjectives = e.dict.sentimentAdjectives["neutral"]
	}
	if len(adjectives) == 0 {
		return "Focused"
	}
	return adjectives[rng.IntN(len(adjectives))]
}

// buildTitle mirrors PulseTitleGenerator.generate_title: pick an intensity
// prefix, a sentiment adjective, and an action noun, recombine them through
// one of the base templates (plus three emotion-journey templates once
// intent and reflection emotions genuinely differ), then append the
// duration-band suffix.
func (e *Enricher) buildTitle(category, sentiment string, level IntensityLevel, in Input, emoji string, rng *rand.Rand) string {
	noun := e.noun(category, rng)
	adjective := e.adjective(sentiment, rng)
	prefix := adjective
	if len(level.Prefixes) > 0 {
		prefix = level.Prefixes[rng.IntN(len(level.Prefixes))]
	}

	n := len(titleTemplates)
	hasJourney := in.IntentEmotion != "" && in.ReflectionEmotion != "" &&
		!strings.EqualFold(in.IntentEmotion, in.ReflectionEmotion)
	if hasJourney {
		n += len(journeyTemplates)
	}

	var body string
	pick := rng.IntN(n)
	if pick < len(titleTemplates) {
		body = fmt.Sprintf(titleTemplates[pick], prefix, adjective, noun)
	} else {
		tmpl := journeyTemplates[pick-len(titleTemplates)]
		body = fmt.Sprintf(tmpl,
			capitalize(in.IntentEmotion), capitalize(in.ReflectionEmotion), noun, prefix,
			in.IntentEmotion, in.ReflectionEmotion)
	}

	return emoji + " " + body + durationSuffix(in.ActualDurationSeconds)
}

// durationSuffix renders the five duration bands from generate_title
// verbatim: a sub-minute burst, a minute count, a "focused" streak past 20
// minutes, a "power" session past an hour, and a marathon past two hours.
func durationSuffix(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf(" (Quick %ds burst!)", seconds)
	case seconds < 1200:
		return fmt.Sprintf(" (%.0f min session!)", float64(seconds)/60)
	case seconds < 3600:
		return fmt.Sprintf(" (Focused %.0f min streak!)", float64(seconds)/60)
	case seconds < 7200:
		return fmt.Sprintf(" (Power %.1fh session!)", float64(seconds)/3600)
	default:
		return fmt.Sprintf(" (%.1fh marathon!)", float64(seconds)/3600)
	}
}

// buildBadge mirrors get_achievement_badge: an exact emotion-journey pair
// wins first, then a fuzzy high-energy-emotion match on epic/grand
// sessions, then the plain (category, level) badge table.
func (e *Enricher) buildBadge(category, levelName string, in Input) string {
	if in.IntentEmotion != "" && in.ReflectionEmotion != "" {
		if !strings.EqualFold(in.IntentEmotion, in.ReflectionEmotion) {
			key := [2]string{strings.ToLower(in.IntentEmotion), strings.ToLower(in.ReflectionEmotion)}
			if badge, ok := journeyBadges[key]; ok {
				return badge
			}
		}

		if levelName == "epic" || levelName == "grand" {
			for _, energetic := range highEnergyEmotions {
				if fuzzyRatio(in.ReflectionEmotion, energetic) >= 50 {
					return fmt.Sprintf("🌟 %s Master", capitalize(in.ReflectionEmotion))
				}
			}
		}
	}

	if byLevel, ok := badgeTable[category]; ok {
		if badge, ok := byLevel[levelName]; ok {
			return badge
		}
	}
	switch levelName {
	case "epic":
		return "🏆 Legendary Achiever"
	case "major":
		return "⭐ Great Performer"
	default:
		return "✨ Progress Maker"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
