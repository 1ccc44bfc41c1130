package orchestrator

import "documind/models"

// State is a node of the pipeline state machine. The five working states
// share their names with the stages they run.
type State string

const (
	StateParse      State = "parse"
	StateSummarize  State = "summarize"
	StateQA         State = "qa"
	StateCompliance State = "compliance"
	StateReport     State = "report"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Stage is the stage a working state runs.
func (s State) Stage() models.Stage { return models.Stage(s) }

// Outcome of the stage that just ran.
type Outcome int

const (
	Success Outcome = iota
	Errored
)

// OutcomeOf maps a stage result onto the transition input.
func OutcomeOf(res *models.AgentResult) Outcome {
	if res.Succeeded() {
		return Success
	}
	return Errored
}

type edge struct {
	from    State
	outcome Outcome
	qa      bool
}

var transitions = map[edge]State{
	{StateParse, Success, false}: StateSummarize,
	{StateParse, Success, true}:  StateSummarize,
	{StateParse, Errored, false}: StateFailed,
	{StateParse, Errored, true}:  StateFailed,

	// summarize failures are recorded, the pipeline carries on
	{StateSummarize, Success, true}:  StateQA,
	{StateSummarize, Errored, true}:  StateQA,
	{StateSummarize, Success, false}: StateCompliance,
	{StateSummarize, Errored, false}: StateCompliance,

	{StateQA, Success, true}: StateCompliance,
	{StateQA, Errored, true}: StateCompliance,

	{StateCompliance, Success, false}: StateReport,
	{StateCompliance, Errored, false}: StateReport,
	{StateCompliance, Success, true}:  StateReport,
	{StateCompliance, Errored, true}:  StateReport,

	{StateReport, Success, false}: StateDone,
	{StateReport, Success, true}:  StateDone,
	{StateReport, Errored, false}: StateFailed,
	{StateReport, Errored, true}:  StateFailed,
}

// Next returns the state after from given the outcome. qaWanted is true
// when the task requested qa or supplied questions. Unknown combinations
// fail the task.
func Next(from State, outcome Outcome, qaWanted bool) State {
	if to, ok := transitions[edge{from, outcome, qaWanted}]; ok {
		return to
	}
	return StateFailed
}

// QAWanted reports whether the task enters the QA state.
func QAWanted(task *models.AnalysisTask) bool {
	return task.Requested(models.StageQA) || len(task.Questions) > 0
}

// FinalStatus derives the task status from the terminal state and the
// results of every stage that ran.
func FinalStatus(end State, results map[models.Stage]*models.AgentResult) models.TaskStatus {
	if end == StateFailed {
		return models.TaskFailed
	}
	for _, res := range results {
		if !res.Succeeded() {
			return models.TaskPartial
		}
	}
	return models.TaskComplete
}
