package security

import (
	"regexp"
	"strings"
)

// MinInputLength is the shortest accepted non-greeting input
const MinInputLength = 3

// Rejection reasons returned to the user verbatim
const (
	ReasonTooShort  = "Please provide a more detailed question."
	ReasonProfanity = "Please keep the conversation professional and respectful."
	ReasonOffTopic  = "I'm here to help with medical information and report analysis. Please ask health-related questions."
)

// Category is an output guardrail category
type Category string

const (
	CategoryNone         Category = ""
	CategoryDiagnosis    Category = "diagnosis"
	CategoryPrescription Category = "prescription"
	CategoryMentalHealth Category = "mental_health"
	CategoryJokes        Category = "jokes"
)

// Verdict describes which output rule fired, if any
type Verdict struct {
	Category Category
	Pattern  string
}

// Triggered reports whether the output was substituted
func (v Verdict) Triggered() bool {
	return v.Category != CategoryNone
}

type outputRule struct {
	category   Category
	substitute string
	patterns   []*regexp.Regexp
}

// Guardrail validates user input and filters generated output.
// It holds only compiled patterns and is safe for concurrent use.
type Guardrail struct {
	greeting  *regexp.Regexp
	profanity []*regexp.Regexp
	offTopic  []*regexp.Regexp
	output    []outputRule
}

// NewGuardrail creates a guardrail with the built-in pattern sets
func NewGuardrail() *Guardrail {
	return &Guardrail{
		greeting: regexp.MustCompile(`^(h+i+|h+e+y+|h+e+l+o+|hiya|y+o+|good (morning|afternoon|evening)|greetings)[\s!.,]*$`),
		profanity: compile(
			`(?i)\bfuck`,
			`(?i)\bshit`,
			`(?i)\bdamn\b`,
			`(?i)\bass\b`,
			`(?i)\bhell\b`,
		),
		offTopic: compile(
			`(?i)\blet'?s chat about\b`,
			`(?i)\btell me about yourself\b`,
			`(?i)\bwhat do you like\b`,
			`(?i)\bfavou?rite (movie|song|colou?r|food)\b`,
			`(?i)\btell me a joke\b`,
		),
		// Order is the precedence: the first matching category wins.
		output: []outputRule{
			{
				category:   CategoryDiagnosis,
				substitute: DiagnosisSubstitute,
				patterns: compile(
					`(?i)\bdiagnos(e|es|ed|is)\b`,
					`(?i)\byou have\b`,
					`(?i)\byou are suffering from\b`,
					`(?i)\byou might have\b`,
					`(?i)\bit (seems|appears|looks) like you have\b`,
				),
			},
			{
				category:   CategoryPrescription,
				substitute: PrescriptionSubstitute,
				patterns: compile(
					`(?i)\btake (this|these|the following)\b`,
					`(?i)\bprescrib(e|es|ed)\b`,
					`(?i)\bmedication\b.*\bdosage\b`,
					`(?i)\b\d+\s*mg\b`,
					`(?i)\btake\b.*\bpills?\b`,
					`(?i)\bdrug\b.*\btreatment\b`,
				),
			},
			{
				category:   CategoryMentalHealth,
				substitute: MentalHealthSubstitute,
				patterns: compile(
					`(?i)\bdepression\b`,
					`(?i)\banxiety disorder\b`,
					`(?i)\bbipolar\b`,
					`(?i)\bschizophrenia\b`,
					`(?i)\bptsd\b`,
					`(?i)\bmental illness\b`,
					`(?i)\bpsychiatric\b`,
				),
			},
			{
				category:   CategoryJokes,
				substitute: JokesSubstitute,
				patterns: compile(
					`(?i)\bjok(e|es|ing)\b`,
					`(?i)\bfunny\b`,
					`(?i)\blaugh(s|ing|ter)?\b`,
					`(?i)\bha(ha)+\b`,
					`(?i)\blol\b`,
					`(?i)\bhumou?r\b`,
					`(?i)\bpunchline\b`,
				),
			},
		},
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// IsGreeting reports whether text is a greeting and nothing else
func (g *Guardrail) IsGreeting(text string) bool {
	return g.greeting.MatchString(normalize(text))
}

// ValidateInput checks user text before any generation.
// Greetings are accepted without running the rejection checks.
func (g *Guardrail) ValidateInput(text string) (bool, string) {
	normalized := normalize(text)

	if g.greeting.MatchString(normalized) {
		return true, ""
	}

	if len([]rune(normalized)) < MinInputLength {
		return false, ReasonTooShort
	}

	for _, p := range g.profanity {
		if p.MatchString(normalized) {
			return false, ReasonProfanity
		}
	}

	for _, p := range g.offTopic {
		if p.MatchString(normalized) {
			return false, ReasonOffTopic
		}
	}

	return true, ""
}

// FilterOutput checks generated text against the output categories.
// On the first match the whole text is replaced by the category's
// substitute. Text that matches nothing is returned unchanged.
func (g *Guardrail) FilterOutput(text string) (string, Verdict) {
	for _, rule := range g.output {
		for _, p := range rule.patterns {
			if p.MatchString(text) {
				return rule.substitute, Verdict{Category: rule.category, Pattern: p.String()}
			}
		}
	}
	return text, Verdict{}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
