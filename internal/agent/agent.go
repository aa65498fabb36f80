package agent

import (
	"strings"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
)

// PlanAction is what the chat cycle should do next for a message.
type PlanAction string

const (
	// ActionInvoke carries a fully-bound invocation ready to execute.
	ActionInvoke PlanAction = "invoke"
	// ActionDiscover means the target is referenced by text or position
	// and must be resolved against a listing first.
	ActionDiscover PlanAction = "discover"
	// ActionClarify means the message cannot be acted on and the user
	// should be asked to restate.
	ActionClarify PlanAction = "clarify"
)

// Plan is the shell's decision for one message.
type Plan struct {
	Intent     Intent
	Confidence float64
	Params     Params
	Action     PlanAction
	Ambiguity  AmbiguityKind
	Invocation *Invocation
}

// Shell turns chat messages into tool invocations. It classifies the
// intent, extracts parameters, flags ambiguity, and binds references to
// concrete task ids through discovery.
type Shell struct {
	classifier *Classifier
	responder  *Responder
	threshold  float64
}

// NewShell builds a shell with the given confidence threshold and
// response template overrides.
func NewShell(threshold float64, templates map[string]string) *Shell {
	return &Shell{
		classifier: NewClassifier(),
		responder:  NewResponder(templates),
		threshold:  threshold,
	}
}

// Turn is one prior transcript entry handed to the planner.
type Turn struct {
	Role    string
	Content string
}

// Plan classifies one message against the recent conversation window
// and decides what to do about it. history runs oldest first and does
// not include the message being planned.
func (s *Shell) Plan(message string, history []Turn) Plan {
	intent, confidence := s.classifier.Classify(message)
	plan := Plan{Intent: intent, Confidence: confidence}

	if intent == IntentUnknown || confidence < s.threshold {
		if followUp, ok := s.planFollowUp(message, history); ok {
			return followUp
		}
		plan.Action = ActionClarify
		plan.Ambiguity = AmbiguityLowConfidence
		return plan
	}

	plan.Params = Extract(message, intent)

	if kind := DetectAmbiguity(message, intent, plan.Params); kind != AmbiguityNone {
		plan.Action = ActionClarify
		plan.Ambiguity = kind
		return plan
	}

	switch intent {
	case IntentCreate:
		if strings.TrimSpace(plan.Params.Title) == "" {
			plan.Action = ActionClarify
			plan.Ambiguity = AmbiguityMissingObject
			return plan
		}
		plan.Action = ActionInvoke
		plan.Invocation = &Invocation{AddTask: &AddTaskArgs{
			Title:    plan.Params.Title,
			Priority: plan.Params.Priority,
			Tags:     plan.Params.Tags,
			DueDate:  plan.Params.DueDate,
		}}

	case IntentList:
		args := NewListTasksArgs()
		args.StatusFilter = plan.Params.StatusFilter
		plan.Action = ActionInvoke
		plan.Invocation = &Invocation{ListTasks: args}

	case IntentComplete, IntentDelete, IntentUpdate:
		if plan.Params.TaskID != nil {
			plan.Action = ActionInvoke
			inv := s.bindTarget(intent, *plan.Params.TaskID, plan.Params)
			plan.Invocation = &inv
			return plan
		}
		// Reference or ordinal: list first, then resolve.
		plan.Action = ActionDiscover
		plan.Invocation = &Invocation{ListTasks: NewListTasksArgs()}
	}

	return plan
}

// planFollowUp handles a message that classifies poorly on its own but
// reads as a continuation: the previous user turn named a target-bearing
// intent and the current message supplies the missing reference, e.g.
// "complete my task" followed by `"pay rent"`.
func (s *Shell) planFollowUp(message string, history []Turn) (Plan, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "user" {
			continue
		}
		intent, confidence := s.classifier.Classify(history[i].Content)
		if confidence < s.threshold {
			return Plan{}, false
		}
		switch intent {
		case IntentComplete, IntentDelete, IntentUpdate:
		default:
			return Plan{}, false
		}

		params := Extract(message, intent)
		if params.TaskID == nil && params.Ordinal == 0 && strings.TrimSpace(params.TaskReference) == "" {
			return Plan{}, false
		}

		plan := Plan{Intent: intent, Confidence: confidence, Params: params}
		if params.TaskID != nil {
			inv := s.bindTarget(intent, *params.TaskID, params)
			plan.Action = ActionInvoke
			plan.Invocation = &inv
			return plan, true
		}
		plan.Action = ActionDiscover
		plan.Invocation = &Invocation{ListTasks: NewListTasksArgs()}
		return plan, true
	}
	return Plan{}, false
}

// Resolve binds a discovery plan's target reference against the listed
// tasks. It returns the bound invocation, or an ambiguity kind when the
// reference matches no task or more than one.
func (s *Shell) Resolve(plan Plan, tasks []*entities.Task) (*Invocation, AmbiguityKind, []*entities.Task) {
	if plan.Params.Ordinal > 0 {
		if plan.Params.Ordinal > len(tasks) {
			return nil, AmbiguityNoMatch, nil
		}
		target := tasks[plan.Params.Ordinal-1]
		inv := s.bindTarget(plan.Intent, target.ID, plan.Params)
		return &inv, AmbiguityNone, []*entities.Task{target}
	}

	ref := strings.ToLower(strings.TrimSpace(plan.Params.TaskReference))
	if ref == "" {
		return nil, AmbiguityMissingObject, nil
	}

	var matches []*entities.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), ref) ||
			strings.Contains(strings.ToLower(t.Description), ref) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, AmbiguityNoMatch, nil
	case 1:
		inv := s.bindTarget(plan.Intent, matches[0].ID, plan.Params)
		return &inv, AmbiguityNone, matches
	default:
		return nil, AmbiguityManyMatches, matches
	}
}

func (s *Shell) bindTarget(intent Intent, id uuid.UUID, params Params) Invocation {
	switch intent {
	case IntentComplete:
		return Invocation{CompleteTask: &CompleteTaskArgs{TaskID: id}}
	case IntentDelete:
		return Invocation{DeleteTask: &DeleteTaskArgs{TaskID: id}}
	case IntentUpdate:
		args := &UpdateTaskArgs{TaskID: id}
		if params.Title != "" {
			title := params.Title
			args.Title = &title
		}
		if params.Priority != nil {
			args.Priority = params.Priority
		}
		if params.DueDate != nil {
			args.DueDate = params.DueDate
		}
		return Invocation{UpdateTask: args}
	}
	return Invocation{}
}

// Respond renders the assistant reply for the settled results.
func (s *Shell) Respond(plan Plan, results []ToolResult) string {
	return s.responder.Render(plan, results)
}

// Clarify renders the question to ask when a plan ends in clarification.
func (s *Shell) Clarify(plan Plan, matches []*entities.Task) string {
	return s.responder.Clarification(plan, matches)
}
