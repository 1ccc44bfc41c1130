package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"documind/internal/assembler"
	"documind/internal/logger"
	"documind/models"
)

// Retriever is the retrieval entry point the RAG stages use.
type Retriever interface {
	Retrieve(ctx context.Context, query, documentID string, k int, mode models.RetrievalMode) ([]models.ScoredChunk, error)
}

// RAGOptions sizes retrieval and context for QA and compliance.
type RAGOptions struct {
	K             int
	ContextBudget int
}

type Answer struct {
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	CitedChunkIDs []string `json:"cited_chunk_ids"`
	Confidence    float64  `json:"confidence"`
	Truncated     bool     `json:"truncated"`
	Error         string   `json:"error,omitempty"`
}

// QAResult is the QA payload.
type QAResult struct {
	Answers     []Answer `json:"answers"`
	NoQuestions bool     `json:"no_questions,omitempty"`
}

const noContextAnswer = "The document does not contain information relevant to this question."

var sourceRef = regexp.MustCompile(`\[Source (\d+)\]`)

type QA struct {
	caller    *Caller
	retriever Retriever
	opts      RAGOptions
}

func NewQA(caller *Caller, r Retriever, opts RAGOptions) *QA {
	return &QA{caller: caller, retriever: r, opts: opts}
}

func (q *QA) Stage() models.Stage { return models.StageQA }

func (q *QA) Execute(ctx context.Context, st *State) (*models.AgentResult, error) {
	res := newResult(models.StageQA)
	if err := requireDocument(st); err != nil {
		return res, err
	}

	out := QAResult{Answers: []Answer{}}
	if len(st.Task.Questions) == 0 {
		out.NoQuestions = true
		return res, setPayload(res, out)
	}

	var firstErr error
	failed := 0
	cited := map[string]bool{}
	for _, question := range st.Task.Questions {
		ans, meta, err := q.answer(ctx, st, question)
		res.Meta.Add(meta)
		res.Meta.LatencyMS += meta.LatencyMS
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("Question failed", "task_id", st.Task.ID, "question", question, "error", err)
			ans.Error = err.Error()
		}
		if ans.Truncated {
			res.BudgetExceeded = true
		}
		for _, id := range ans.CitedChunkIDs {
			if !cited[id] {
				cited[id] = true
				res.CitedChunkIDs = append(res.CitedChunkIDs, id)
			}
		}
		out.Answers = append(out.Answers, ans)
	}

	if err := setPayload(res, out); err != nil {
		return res, err
	}
	if failed == len(st.Task.Questions) {
		return res, fmt.Errorf("%w: all %d questions failed: %w", models.ErrStageFailure, failed, firstErr)
	}
	logger.Info("Questions answered",
		"task_id", st.Task.ID,
		"questions", len(st.Task.Questions),
		"failed", failed,
	)
	return res, nil
}

func (q *QA) answer(ctx context.Context, st *State, question string) (Answer, models.ResultMeta, error) {
	ans := Answer{Question: question, CitedChunkIDs: []string{}}

	ranked, err := q.retriever.Retrieve(ctx, question, st.Document.ID, q.opts.K, models.ModeDiversity)
	if err != nil {
		return ans, models.ResultMeta{}, fmt.Errorf("retrieve: %w", err)
	}
	rc := assembler.Assemble(question, ranked, q.opts.ContextBudget)
	ans.Truncated = rc.Truncated
	ans.Confidence = rc.Confidence()
	if len(rc.UsedChunkIDs) == 0 {
		ans.Answer = noContextAnswer
		return ans, models.ResultMeta{}, nil
	}

	out, err := q.caller.Call(ctx, Call{
		Stage:         models.StageQA,
		TaskID:        st.Task.ID,
		System:        qaSystem,
		Prompt:        qaPrompt(rc.Text, question),
		RouteText:     question,
		ContextTokens: rc.Tokens,
		Override:      st.Task.TierOverride,
		Temperature:   0.1,
	})
	if err != nil {
		return ans, models.ResultMeta{}, err
	}
	ans.Answer = strings.TrimSpace(out.Text)
	ans.CitedChunkIDs = citedChunks(ans.Answer, rc.UsedChunkIDs)
	return ans, out.Meta, nil
}

// citedChunks maps [Source N] references back to chunk ids, falling back to
// every chunk in the context when the answer cites nothing resolvable.
func citedChunks(answer string, used []string) []string {
	var ids []string
	seen := map[int]bool{}
	for _, m := range sourceRef.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(used) || seen[n] {
			continue
		}
		seen[n] = true
		ids = append(ids, used[n-1])
	}
	if len(ids) == 0 {
		return append([]string{}, used...)
	}
	return ids
}
