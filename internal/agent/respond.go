package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/taskforge/core/internal/domain/entities"
)

// defaultTemplates are overridable through configuration. Placeholders
// {title}, {count}, {error} are substituted at render time.
var defaultTemplates = map[string]string{
	"created":          "Added \"{title}\" to your tasks.",
	"created_warning":  "Added \"{title}\" to your tasks, but live sync may lag behind.",
	"completed":        "Marked \"{title}\" as complete. Nice work!",
	"deleted":          "Deleted \"{title}\".",
	"updated":          "Updated \"{title}\".",
	"list_empty":       "You have no tasks matching that.",
	"list_header":      "You have {count} task(s):",
	"tool_error":       "I couldn't do that: {error}",
	"clarify_target":   "Which task do you mean? Tell me its name or number.",
	"clarify_intent":   "I'm not sure what you'd like me to do. You can ask me to add, list, complete, update, or delete tasks.",
	"clarify_no_match": "I couldn't find a task matching \"{title}\".",
	"clarify_many":     "A few tasks match \"{title}\": {matches}. Which one?",
}

// Responder renders user-facing replies from templates.
type Responder struct {
	templates map[string]string
}

// NewResponder merges overrides on top of the default templates.
func NewResponder(overrides map[string]string) *Responder {
	merged := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return &Responder{templates: merged}
}

func (r *Responder) render(key string, vars map[string]string) string {
	out := r.templates[key]
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Render produces the reply for a plan whose invocations have settled.
func (r *Responder) Render(plan Plan, results []ToolResult) string {
	if len(results) == 0 {
		return r.render("clarify_intent", nil)
	}

	// The acting invocation is the last one; discovery listings that
	// precede it are not the user's answer.
	last := results[len(results)-1]
	if last.Err != nil {
		return r.render("tool_error", map[string]string{"error": userFacingError(last.Err)})
	}

	switch last.Invocation.Name() {
	case "add_task":
		key := "created"
		if last.Warning != "" {
			key = "created_warning"
		}
		return r.render(key, map[string]string{"title": taskTitle(last)})
	case "complete_task":
		return r.render("completed", map[string]string{"title": taskTitle(last)})
	case "delete_task":
		return r.render("deleted", map[string]string{"title": taskTitle(last)})
	case "update_task":
		return r.render("updated", map[string]string{"title": taskTitle(last)})
	case "list_tasks":
		return r.renderListing(last)
	}
	return r.render("clarify_intent", nil)
}

func (r *Responder) renderListing(res ToolResult) string {
	if len(res.Tasks) == 0 {
		return r.render("list_empty", nil)
	}
	var b strings.Builder
	b.WriteString(r.render("list_header", map[string]string{
		"count": fmt.Sprintf("%d", res.Total),
	}))
	for i, t := range res.Tasks {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, t.Title))
		if t.Status == entities.TaskStatusComplete {
			b.WriteString(" (done)")
		} else if t.DueDate != nil {
			b.WriteString(" (due " + t.DueDate.Format("Jan 2") + ")")
		}
	}
	return b.String()
}

// Clarification renders the question for a plan that could not act.
func (r *Responder) Clarification(plan Plan, matches []*entities.Task) string {
	switch plan.Ambiguity {
	case AmbiguityNoMatch:
		return r.render("clarify_no_match", map[string]string{"title": plan.Params.TaskReference})
	case AmbiguityManyMatches:
		titles := make([]string, 0, len(matches))
		for _, t := range matches {
			titles = append(titles, "\""+t.Title+"\"")
		}
		return r.render("clarify_many", map[string]string{
			"title":   plan.Params.TaskReference,
			"matches": strings.Join(titles, ", "),
		})
	case AmbiguityVagueDeixis, AmbiguityGenericNoun, AmbiguityMissingObject:
		return r.render("clarify_target", nil)
	default:
		return r.render("clarify_intent", nil)
	}
}

func taskTitle(res ToolResult) string {
	if res.Task != nil {
		return res.Task.Title
	}
	return "your task"
}

// userFacingError keeps internal errors out of chat replies.
func userFacingError(err error) string {
	if errors.Is(err, entities.ErrTaskNotFound) {
		return "that task no longer exists"
	}
	var ve *entities.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "something went wrong handling that task"
}
