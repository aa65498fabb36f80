package agent

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
)

func testTask(title string) *entities.Task {
	now := time.Now().UTC()
	return &entities.Task{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Title:      title,
		Status:     entities.TaskStatusIncomplete,
		Priority:   entities.PriorityMedium,
		Recurrence: entities.RecurrenceNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPlanCreateInvokes(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan(`add a task called "buy groceries"`, nil)
	if plan.Action != ActionInvoke {
		t.Fatalf("action = %s, want invoke", plan.Action)
	}
	if plan.Invocation == nil || plan.Invocation.AddTask == nil {
		t.Fatalf("invocation = %+v, want add_task", plan.Invocation)
	}
	if plan.Invocation.AddTask.Title != "buy groceries" {
		t.Fatalf("title = %q", plan.Invocation.AddTask.Title)
	}
}

func TestPlanListCarriesStatusFilter(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan("show completed tasks", nil)
	if plan.Action != ActionInvoke || plan.Invocation.ListTasks == nil {
		t.Fatalf("plan = %+v, want list invocation", plan)
	}
	if plan.Invocation.ListTasks.StatusFilter != "completed" {
		t.Fatalf("status filter = %q", plan.Invocation.ListTasks.StatusFilter)
	}
	if plan.Invocation.ListTasks.Limit != 50 {
		t.Fatalf("limit = %d, want default 50", plan.Invocation.ListTasks.Limit)
	}
}

func TestPlanDirectBindOnUUID(t *testing.T) {
	s := NewShell(0.5, nil)
	id := uuid.New()

	plan := s.Plan("complete task "+id.String(), nil)
	if plan.Action != ActionInvoke {
		t.Fatalf("action = %s, want invoke", plan.Action)
	}
	if plan.Invocation.CompleteTask == nil || plan.Invocation.CompleteTask.TaskID != id {
		t.Fatalf("invocation = %+v", plan.Invocation)
	}
}

func TestPlanReferenceDiscovers(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan(`delete "pay rent"`, nil)
	if plan.Action != ActionDiscover {
		t.Fatalf("action = %s, want discover", plan.Action)
	}
	if plan.Invocation == nil || plan.Invocation.ListTasks == nil {
		t.Fatal("discovery must carry a listing invocation")
	}
	if plan.Params.TaskReference != "pay rent" {
		t.Fatalf("reference = %q", plan.Params.TaskReference)
	}
}

func TestPlanLowConfidenceClarifies(t *testing.T) {
	s := NewShell(0.8, nil)

	plan := s.Plan("remember to water plants", nil)
	if plan.Action != ActionClarify {
		t.Fatalf("action = %s, want clarify", plan.Action)
	}
	if plan.Ambiguity != AmbiguityLowConfidence {
		t.Fatalf("ambiguity = %q, want low_confidence", plan.Ambiguity)
	}
}

func TestPlanUnknownClarifies(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan("quantum entanglement", nil)
	if plan.Action != ActionClarify || plan.Ambiguity != AmbiguityLowConfidence {
		t.Fatalf("plan = %+v, want low-confidence clarification", plan)
	}
}

func TestPlanVagueReferenceClarifies(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan("complete that one", nil)
	if plan.Action != ActionClarify {
		t.Fatalf("action = %s, want clarify", plan.Action)
	}
	if plan.Ambiguity != AmbiguityVagueDeixis {
		t.Fatalf("ambiguity = %q, want vague_deixis", plan.Ambiguity)
	}
}

func TestPlanFollowUpInheritsIntent(t *testing.T) {
	s := NewShell(0.5, nil)
	history := []Turn{
		{Role: "user", Content: "complete my task"},
		{Role: "assistant", Content: "Which task did you mean?"},
	}

	plan := s.Plan(`"pay rent"`, history)
	if plan.Action != ActionDiscover {
		t.Fatalf("action = %s, want discover", plan.Action)
	}
	if plan.Intent != IntentComplete {
		t.Fatalf("intent = %s, want complete inherited from history", plan.Intent)
	}
	if plan.Params.TaskReference != "pay rent" {
		t.Fatalf("reference = %q", plan.Params.TaskReference)
	}
}

func TestPlanFollowUpNeedsActionableHistory(t *testing.T) {
	s := NewShell(0.5, nil)

	// A prior creation turn carries no pending target to bind.
	history := []Turn{
		{Role: "user", Content: "add a task to buy milk"},
		{Role: "assistant", Content: `Added "buy milk" to your tasks.`},
	}
	plan := s.Plan(`"pay rent"`, history)
	if plan.Action != ActionClarify || plan.Ambiguity != AmbiguityLowConfidence {
		t.Fatalf("plan = %+v, want clarification", plan)
	}

	// A follow-up with nothing extractable stays a clarification too.
	history = []Turn{{Role: "user", Content: "complete my task"}}
	plan = s.Plan("ok", history)
	if plan.Action != ActionClarify {
		t.Fatalf("action = %s, want clarify", plan.Action)
	}
}

func TestResolveSingleMatch(t *testing.T) {
	s := NewShell(0.5, nil)
	tasks := []*entities.Task{testTask("pay rent"), testTask("call dentist")}

	plan := s.Plan(`complete "pay rent"`, nil)
	inv, ambiguity, matches := s.Resolve(plan, tasks)
	if inv == nil || ambiguity != AmbiguityNone {
		t.Fatalf("inv=%v ambiguity=%q", inv, ambiguity)
	}
	if inv.CompleteTask == nil || inv.CompleteTask.TaskID != tasks[0].ID {
		t.Fatalf("invocation = %+v, want completion of pay rent", inv)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d", len(matches))
	}
}

func TestResolveCaseInsensitiveSubstring(t *testing.T) {
	s := NewShell(0.5, nil)
	tasks := []*entities.Task{testTask("Pay Rent by Friday")}

	plan := s.Plan(`complete "pay rent"`, nil)
	inv, ambiguity, _ := s.Resolve(plan, tasks)
	if inv == nil || ambiguity != AmbiguityNone {
		t.Fatalf("inv=%v ambiguity=%q, want case-insensitive match", inv, ambiguity)
	}
}

func TestResolveMatchesDescription(t *testing.T) {
	s := NewShell(0.5, nil)
	task := testTask("finish report")
	task.Description = "compile the Q3 numbers for finance"
	tasks := []*entities.Task{task, testTask("pay rent")}

	plan := s.Plan(`complete "q3 numbers"`, nil)
	inv, ambiguity, matches := s.Resolve(plan, tasks)
	if inv == nil || ambiguity != AmbiguityNone {
		t.Fatalf("inv=%v ambiguity=%q, want description match", inv, ambiguity)
	}
	if inv.CompleteTask == nil || inv.CompleteTask.TaskID != task.ID {
		t.Fatalf("invocation = %+v, want the described task bound", inv)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
}

func TestResolveManyMatches(t *testing.T) {
	s := NewShell(0.5, nil)
	tasks := []*entities.Task{testTask("call mom"), testTask("call dentist")}

	plan := s.Plan(`delete "call"`, nil)
	inv, ambiguity, matches := s.Resolve(plan, tasks)
	if inv != nil {
		t.Fatalf("inv = %+v, want none on ambiguity", inv)
	}
	if ambiguity != AmbiguityManyMatches {
		t.Fatalf("ambiguity = %q, want many_matches", ambiguity)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want both candidates", len(matches))
	}
}

func TestResolveNoMatch(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan(`delete "walk the dog"`, nil)
	inv, ambiguity, _ := s.Resolve(plan, []*entities.Task{testTask("pay rent")})
	if inv != nil || ambiguity != AmbiguityNoMatch {
		t.Fatalf("inv=%v ambiguity=%q, want no_match", inv, ambiguity)
	}
}

func TestResolveOrdinal(t *testing.T) {
	s := NewShell(0.5, nil)
	tasks := []*entities.Task{testTask("first"), testTask("second"), testTask("third")}

	plan := s.Plan("complete task 2", nil)
	inv, ambiguity, _ := s.Resolve(plan, tasks)
	if inv == nil || ambiguity != AmbiguityNone {
		t.Fatalf("inv=%v ambiguity=%q", inv, ambiguity)
	}
	if inv.CompleteTask.TaskID != tasks[1].ID {
		t.Fatal("ordinal 2 must bind the second listed task")
	}
}

func TestResolveOrdinalOutOfRange(t *testing.T) {
	s := NewShell(0.5, nil)

	plan := s.Plan("complete task 5", nil)
	inv, ambiguity, _ := s.Resolve(plan, []*entities.Task{testTask("only one")})
	if inv != nil || ambiguity != AmbiguityNoMatch {
		t.Fatalf("inv=%v ambiguity=%q, want no_match", inv, ambiguity)
	}
}

func TestResolveUpdateCarriesNewValues(t *testing.T) {
	s := NewShell(0.5, nil)
	tasks := []*entities.Task{testTask("report draft")}

	plan := s.Plan(`change the report task to "final report"`, nil)
	if plan.Action != ActionDiscover {
		t.Fatalf("action = %s, want discover", plan.Action)
	}
	inv, ambiguity, _ := s.Resolve(plan, tasks)
	if inv == nil || ambiguity != AmbiguityNone {
		t.Fatalf("inv=%v ambiguity=%q", inv, ambiguity)
	}
	if inv.UpdateTask == nil || inv.UpdateTask.Title == nil || *inv.UpdateTask.Title != "final report" {
		t.Fatalf("invocation = %+v, want title carried", inv.UpdateTask)
	}
	if inv.UpdateTask.TaskID != tasks[0].ID {
		t.Fatal("target not bound")
	}
}
