package agent

import (
	"regexp"
	"strings"
)

// AmbiguityKind says why a message could not be acted on directly.
type AmbiguityKind string

const (
	AmbiguityNone          AmbiguityKind = ""
	AmbiguityVagueDeixis   AmbiguityKind = "vague_deixis"
	AmbiguityGenericNoun   AmbiguityKind = "generic_noun"
	AmbiguityMissingObject AmbiguityKind = "missing_object"
	AmbiguityLowConfidence AmbiguityKind = "low_confidence"
	AmbiguityManyMatches   AmbiguityKind = "many_matches"
	AmbiguityNoMatch       AmbiguityKind = "no_match"
)

var (
	// "that", "it", "this one" with nothing concrete attached.
	vagueDeixisRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:complete|finish|delete|remove|cancel|update|change|edit|mark|do)\s+(?:that|it|this|this one|that one|them|those)\s*(?:off|now|please)?\s*[.!?]?\s*$`)

	// A bare generic noun carries no identity: "delete the task".
	genericNounRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:complete|finish|delete|remove|cancel|update|change|edit|mark)\s+(?:the|a|an|my)?\s*(?:task|todo|item|thing|one|entry)\s*(?:as\s+done)?\s*[.!?]?\s*$`)
)

// DetectAmbiguity inspects an action intent's params and reports
// whether the message identifies a target well enough to act.
func DetectAmbiguity(message string, intent Intent, params Params) AmbiguityKind {
	switch intent {
	case IntentComplete, IntentDelete, IntentUpdate:
	default:
		return AmbiguityNone
	}

	if params.TaskID != nil || params.Ordinal > 0 {
		return AmbiguityNone
	}

	if vagueDeixisRe.MatchString(message) {
		return AmbiguityVagueDeixis
	}
	if genericNounRe.MatchString(message) {
		return AmbiguityGenericNoun
	}

	ref := strings.TrimSpace(params.TaskReference)
	if ref == "" || len(ref) < 3 || isGenericReference(ref) {
		return AmbiguityMissingObject
	}
	return AmbiguityNone
}

func isGenericReference(ref string) bool {
	switch strings.ToLower(ref) {
	case "task", "todo", "item", "thing", "one", "that", "it", "this", "entry", "my task", "the task":
		return true
	}
	return false
}
