package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
)

// Params are the task attributes and references pulled out of one
// message for the classified intent.
type Params struct {
	Title       string
	Description string
	Priority    *entities.Priority
	Tags        []string
	DueDate     *time.Time

	// Target references for complete/delete/update. TaskID is set when
	// the message carries a concrete identifier (uuid); Ordinal when it
	// names a position ("task 3"); TaskReference is free text otherwise.
	TaskID        *uuid.UUID
	Ordinal       int
	TaskReference string

	// StatusFilter for list: all, completed, pending.
	StatusFilter string
}

var (
	quotedRe    = regexp.MustCompile(`["']([^"']+)["']`)
	markerRe    = regexp.MustCompile(`(?i)\b(?:to|for|about|regarding)\s+([^.!?]+?)(?:\s+(?:task|todo|thing|item|later|tomorrow|today|tonight|soon))?$`)
	ordinalRe   = regexp.MustCompile(`(?i)(?:task|number|#)\s*(\d+)`)
	uuidRefRe   = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	updateRe    = regexp.MustCompile(`(?i)\b(?:update|change|modify|rename)\s+(.+)\s+to\s+(.+)$`)
	theRefRe    = regexp.MustCompile(`(?i)\b(?:the|a|an)\s+([^.!?,"]+?)(?:\s+(?:task|one|it|that|item|meeting|appointment|reminder|todo|thing))?$`)
	hashtagRe   = regexp.MustCompile(`#([\p{L}\d_-]+)`)
	createVerbs = regexp.MustCompile(`(?i)\b(add|create|remember|write down|make|put in|jot down|save|need to|have to|should|want to|going to|plan to|remind me to|put on my list|on my list|get started|start|begin|a|an|the|task|todo|thing to do|item|note|to do|to-do|list|my|that|it|this|for later|something|please)\b`)
	actionVerbs = regexp.MustCompile(`(?i)\b(done|complete|completed|finish|finished|check off|cross off|tick off|closed|did|mark|as|delete|remove|cancel|get rid of|erase|trash|eliminate|discard|drop|scratch|change|update|rename|edit|modify|fix|alter|revise)\b`)
	fillerWords = regexp.MustCompile(`(?i)\b(the|a|an|it|that|this|task|one|thing|item|my|of|off|list|from)\b`)

	completedFilterRe = regexp.MustCompile(`(?i)\b(completed|done|finished)\b`)
	pendingFilterRe   = regexp.MustCompile(`(?i)\b(pending|incomplete|not done|todo|to do|open|remaining|left|unfinished|active)\b`)
)

// Extract pulls parameters from a message for the given intent.
func Extract(message string, intent Intent) Params {
	var p Params

	switch intent {
	case IntentCreate:
		p.Title = extractTitle(message)
		p.Priority = extractPriority(message)
		p.Tags = extractTags(message)
		p.DueDate = extractDueDate(message)
	case IntentComplete, IntentDelete:
		extractTarget(message, &p)
	case IntentUpdate:
		extractTarget(message, &p)
		extractUpdateValues(message, &p)
	case IntentList:
		p.StatusFilter = extractStatusFilter(message)
	}

	return p
}

// extractTitle prefers a quoted span, then the clause after a
// to/for/about marker, then the cleaned-up remainder of the message.
func extractTitle(message string) string {
	if m := quotedRe.FindStringSubmatch(message); m != nil {
		return strings.TrimSpace(m[1])
	}

	if m := markerRe.FindStringSubmatch(message); m != nil {
		title := strings.TrimSpace(m[1])
		if len(title) > 2 {
			return title
		}
	}

	clean := createVerbs.ReplaceAllString(message, "")
	clean = hashtagRe.ReplaceAllString(clean, "")
	clean = strings.Join(strings.Fields(clean), " ")
	clean = strings.Trim(clean, "!.,?; ")
	if len(clean) > 2 {
		return clean
	}
	return strings.TrimSpace(message)
}

func extractPriority(message string) *entities.Priority {
	lower := strings.ToLower(message)
	var pr entities.Priority
	switch {
	case strings.Contains(lower, "urgent"):
		pr = entities.PriorityUrgent
	case strings.Contains(lower, "high priority"):
		pr = entities.PriorityHigh
	case strings.Contains(lower, "low priority"):
		pr = entities.PriorityLow
	default:
		return nil
	}
	return &pr
}

func extractTags(message string) []string {
	matches := hashtagRe.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return tags
}

// extractDueDate understands only the coarse day words; anything finer
// comes in through the structured task endpoints.
func extractDueDate(message string) *time.Time {
	lower := strings.ToLower(message)
	now := time.Now().UTC()
	endOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, time.UTC)
	}

	var due time.Time
	switch {
	case strings.Contains(lower, "tomorrow"):
		due = endOfDay(now.AddDate(0, 0, 1))
	case strings.Contains(lower, "tonight"), strings.Contains(lower, "today"):
		due = endOfDay(now)
	case strings.Contains(lower, "next week"):
		due = endOfDay(now.AddDate(0, 0, 7))
	default:
		return nil
	}
	return &due
}

// extractTarget finds what task the action refers to: a uuid, an
// ordinal ("task 3"), or a free-text reference.
func extractTarget(message string, p *Params) {
	if m := uuidRefRe.FindString(message); m != "" {
		if id, err := uuid.Parse(m); err == nil {
			p.TaskID = &id
			return
		}
	}

	if m := ordinalRe.FindStringSubmatch(message); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			p.Ordinal = n
			return
		}
	}

	if m := quotedRe.FindStringSubmatch(message); m != nil {
		p.TaskReference = strings.TrimSpace(m[1])
		return
	}

	// "the <something>" reference, minus a trailing noun.
	stripped := stripUpdateValue(message)
	if m := theRefRe.FindStringSubmatch(stripped); m != nil {
		ref := strings.TrimSpace(m[1])
		if len(ref) > 2 {
			p.TaskReference = ref
			return
		}
	}

	// Last resort: strip action verbs and filler, keep what's left.
	clean := actionVerbs.ReplaceAllString(stripped, "")
	clean = fillerWords.ReplaceAllString(clean, "")
	clean = strings.Join(strings.Fields(clean), " ")
	clean = strings.Trim(clean, "!.,?; ")
	if len(clean) > 2 {
		p.TaskReference = clean
	}
}

// stripUpdateValue removes the "... to <new value>" tail so the target
// reference does not swallow the new value.
func stripUpdateValue(message string) string {
	if m := updateRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return message
}

// extractUpdateValues parses "update X to Y" shapes and keyword
// attributes carried alongside the reference.
func extractUpdateValues(message string, p *Params) {
	if m := updateRe.FindStringSubmatch(message); m != nil {
		target := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])

		if q := quotedRe.FindStringSubmatch(value); q != nil {
			p.Title = strings.TrimSpace(q[1])
		} else {
			p.Title = strings.Trim(value, "!.,?; ")
		}

		if p.TaskID == nil && p.Ordinal == 0 {
			if q := quotedRe.FindStringSubmatch(target); q != nil {
				p.TaskReference = strings.TrimSpace(q[1])
			} else {
				ref := regexp.MustCompile(`(?i)^(?:the|a|an|my)\s+|^task\s+|\s+task$`).ReplaceAllString(target, "")
				ref = strings.TrimSpace(ref)
				if len(ref) > 2 {
					p.TaskReference = ref
				}
			}
		}
	}

	if pr := extractPriority(message); pr != nil {
		p.Priority = pr
	}
	if due := extractDueDate(message); due != nil {
		p.DueDate = due
	}
}

func extractStatusFilter(message string) string {
	switch {
	case completedFilterRe.MatchString(message):
		return "completed"
	case pendingFilterRe.MatchString(message):
		return "pending"
	default:
		return "all"
	}
}
