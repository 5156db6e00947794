package redflag

import (
	"sort"
	"strings"

	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// Category groups red-flag symptoms that warrant urgent care.
type Category string

const (
	Cardiac       Category = "cardiac"
	Respiratory   Category = "respiratory"
	Neurological  Category = "neurological"
	Bleeding      Category = "bleeding"
	MentalHealth  Category = "mental-health"
	Anaphylaxis   Category = "anaphylaxis"
	HighRiskFever Category = "high-fever"
)

// Assessment is the keyword screen result for a transcript.
type Assessment struct {
	Flags  []Flag
	Urgent bool
}

// Flag is one matched category with the phrases that triggered it.
type Flag struct {
	Category Category
	Matches  []string
}

var keywordBuckets = map[Category][]string{
	Cardiac: {
		"chest pain", "chest tightness", "chest pressure", "pain radiating to arm", "pain in left arm",
		"jaw pain", "heart attack", "palpitations with fainting",
	},
	Respiratory: {
		"can't breathe", "cannot breathe", "difficulty breathing", "short of breath", "shortness of breath",
		"struggling to breathe", "blue lips", "choking",
	},
	Neurological: {
		"face drooping", "slurred speech", "sudden weakness", "numbness on one side", "worst headache",
		"thunderclap headache", "seizure", "loss of consciousness", "passed out", "confusion",
	},
	Bleeding: {
		"vomiting blood", "coughing up blood", "blood in stool", "black stool", "heavy bleeding",
		"bleeding that won't stop",
	},
	MentalHealth: {
		"suicidal", "kill myself", "end my life", "self-harm", "hurt myself",
	},
	Anaphylaxis: {
		"swollen throat", "throat closing", "tongue swelling", "hives and breathing",
	},
}

// feverThreshold is the body temperature (°C) treated as a red flag on its own.
// Fahrenheit readings are converted first.
const feverThreshold = 40.0

// Analyze screens the symptom description and the answers for red-flag phrases.
// It is deterministic: flags and matches come back sorted.
func Analyze(symptom string, answers []diagnosis.FollowUpAnswer, temperature *float64) Assessment {
	var builder strings.Builder
	builder.WriteString(symptom)
	for _, a := range answers {
		if !diagnosis.IsAnswered(a) || diagnosis.IsControlQuestion(a.Question) {
			continue
		}
		builder.WriteString("\n")
		builder.WriteString(a.Answer)
	}
	text := normalize(builder.String())

	matches := make(map[Category][]string)
	if text != "" {
		for category, keywords := range keywordBuckets {
			for _, word := range keywords {
				if strings.Contains(text, word) {
					matches[category] = append(matches[category], word)
				}
			}
		}
	}
	if temperature != nil && diagnosis.CelsiusOf(*temperature) >= feverThreshold {
		matches[HighRiskFever] = append(matches[HighRiskFever], "temperature")
	}

	if len(matches) == 0 {
		return Assessment{}
	}

	flags := make([]Flag, 0, len(matches))
	for category, words := range matches {
		sort.Strings(words)
		flags = append(flags, Flag{Category: category, Matches: words})
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Category < flags[j].Category })

	return Assessment{Flags: flags, Urgent: true}
}

// Categories lists the matched categories in order.
func (a Assessment) Categories() []string {
	out := make([]string, 0, len(a.Flags))
	for _, f := range a.Flags {
		out = append(out, string(f.Category))
	}
	return out
}

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, "’", "'")
	return strings.Join(strings.Fields(text), " ")
}
