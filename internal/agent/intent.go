package agent

import (
	"regexp"
	"strings"
)

// Intent is what the user wants from one chat message.
type Intent string

const (
	IntentCreate   Intent = "create"
	IntentList     Intent = "list"
	IntentComplete Intent = "complete"
	IntentDelete   Intent = "delete"
	IntentUpdate   Intent = "update"
	IntentUnknown  Intent = "unknown"
)

// Classifier scores a message against keyword pattern groups per
// intent. Each intent has an action-verb group and an object group; the
// score is the fraction of groups that matched.
type Classifier struct {
	patterns map[Intent][]*regexp.Regexp
}

func NewClassifier() *Classifier {
	compile := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(exprs))
		for _, e := range exprs {
			out = append(out, regexp.MustCompile(e))
		}
		return out
	}

	return &Classifier{
		patterns: map[Intent][]*regexp.Regexp{
			IntentCreate: compile(
				`\b(add|create|remember|write down|make|put in|jot down|save|need to|have to|should|want to|going to|plan to|remind me to|put on my list|on my list|get started|start|begin)\b`,
				`\b(task|todo|thing to do|item|note|to do|to-do|list|my list|for later|something|for|about|regarding)\b`,
			),
			IntentList: compile(
				`\b(see|show|list|check|view|display|look at|what do i|what have i|what's|whats|give me|fetch|retrieve|get me|look up|find my|browse|review)\b`,
				`\b(tasks|todos|things to do|items|list|to do list|todo list|progress|status|pending|completed|done|finished|active|remaining)\b`,
			),
			IntentComplete: compile(
				`\b(done|complete|completed|finish|finished|check off|cross off|tick off|ticked off|closed|wrapped up|accomplished|knocked out|did|mark)\b`,
				`\b(task|the|it|that|this|that one|this one|number|no\.?\s*\d+|#\d+|first|second|third|last|previous)\b`,
			),
			IntentDelete: compile(
				`\b(delete|remove|cancel|get rid of|erase|trash|throw away|eliminate|discard|drop|scratch|take off|off my list|off the list)\b`,
				`\b(task|the|it|that|this|that one|this one|meeting|appointment|event|item|thing|one)\b`,
			),
			IntentUpdate: compile(
				`\b(change|update|rename|edit|modify|fix|alter|adjust|revise|correct|switch|swap|replace|rework|rewrite|rephrase|turn into|switch to)\b`,
				`\b(task|the|it|that|this|that one|this one|to|into|be|called|named|titled|labeled)\b`,
			),
		},
	}
}

var deleteRefRe = regexp.MustCompile(`\bthe\s+['"][^'"]+['"]\s+task\b|\bthe\s+\w+\s+task\b|\b[a-z\s']*task\b`)

// Classify returns the best-matching intent with a confidence in [0,1].
// A message with no matching group at all is unknown with confidence 0.
func (c *Classifier) Classify(message string) (Intent, float64) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return IntentUnknown, 0
	}

	scores := make(map[Intent]float64, len(c.patterns))
	for intent, groups := range c.patterns {
		matched := 0
		for _, re := range groups {
			if re.MatchString(lower) {
				matched++
			}
		}
		scores[intent] = float64(matched) / float64(len(groups))
	}

	// A message like `delete the "add milk" task` matches the creation
	// verbs through the quoted title; when it opens with a deletion verb
	// and references a task, creation loses its claim.
	words := strings.Fields(lower)
	if len(words) > 0 && (words[0] == "delete" || words[0] == "remove") {
		if deleteRefRe.MatchString(lower) && scores[IntentDelete] > 0 {
			scores[IntentCreate] -= 0.5
			if scores[IntentCreate] < 0 {
				scores[IntentCreate] = 0
			}
		}
	}

	best := IntentUnknown
	bestScore := 0.0
	// Stable tie-break so classification is deterministic across runs.
	for _, intent := range []Intent{IntentCreate, IntentList, IntentComplete, IntentDelete, IntentUpdate} {
		if scores[intent] > bestScore {
			best = intent
			bestScore = scores[intent]
		}
	}

	if bestScore == 0 {
		return IntentUnknown, 0
	}

	// Coarse bands: one group matched is tentative, both is firm.
	switch {
	case bestScore < 0.34:
		return best, 0.5
	case bestScore < 0.67:
		return best, 0.7
	default:
		return best, 0.9
	}
}
