package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lifecoachhq/coachapi/internal/ai"
	"github.com/lifecoachhq/coachapi/internal/sqlexec"
)

type fakeGenerator struct {
	classifyResult ai.GenerationResult
	answerResult   ai.GenerationResult
	sqlOutcome     ai.SQLOutcome
	summaryResult  ai.GenerationResult
	visualResult   ai.GenerationResult
	sectionsResult ai.GenerationResult

	classifyCalls int
	answerCalls   int
	sqlCalls      int
	summaryCalls  int
	visualCalls   int
	sectionsCalls int

	lastSQLReq     ai.SQLRequest
	lastSummaryReq ai.SummaryRequest
	lastVisualReq  ai.VisualRequest
}

func (f *fakeGenerator) ClassifyMessage(ctx context.Context, req ai.ClassifyRequest) ai.GenerationResult {
	f.classifyCalls++
	return f.classifyResult
}

func (f *fakeGenerator) GenerateAnswer(ctx context.Context, req ai.AnswerRequest) ai.GenerationResult {
	f.answerCalls++
	return f.answerResult
}

func (f *fakeGenerator) ExecuteSQLWithFeedback(ctx context.Context, req ai.SQLRequest) ai.SQLOutcome {
	f.sqlCalls++
	f.lastSQLReq = req
	return f.sqlOutcome
}

func (f *fakeGenerator) Summarize(ctx context.Context, req ai.SummaryRequest) ai.GenerationResult {
	f.summaryCalls++
	f.lastSummaryReq = req
	return f.summaryResult
}

func (f *fakeGenerator) VisualizationCode(ctx context.Context, req ai.VisualRequest) ai.GenerationResult {
	f.visualCalls++
	f.lastVisualReq = req
	return f.visualResult
}

func (f *fakeGenerator) RelevantSections(ctx context.Context, req ai.SectionsRequest) ai.GenerationResult {
	f.sectionsCalls++
	return f.sectionsResult
}

func okGen(content string, usage ai.Usage) ai.GenerationResult {
	return ai.GenerationResult{Success: true, Content: content, Usage: usage}
}

var (
	testUser = User{ID: 1, Name: "ada", Type: UserTypeHuman}

	sqlUsage     = ai.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120, TotalCost: 0.01}
	summaryUsage = ai.Usage{InputTokens: 50, OutputTokens: 30, TotalTokens: 80, TotalCost: 0.002}
	clsUsage     = ai.Usage{InputTokens: 10, OutputTokens: 1, TotalTokens: 11, TotalCost: 0.0001}
)

func newTestSession(t *testing.T, gen *fakeGenerator) *Session {
	t.Helper()
	s, err := NewSession(SessionParams{
		Name:      "test",
		Users:     []User{testUser},
		SchemaDoc: "# goals\n\ngoal table\n\n# habit_logs\n\nhabit table",
		Engine:    gen,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func happyQueryGenerator() *fakeGenerator {
	return &fakeGenerator{
		sqlOutcome: ai.SQLOutcome{
			Generation: okGen("SELECT COUNT(*) FROM goals", sqlUsage),
			Execution: &sqlexec.Result{
				Success:  true,
				Rows:     []map[string]any{{"count": int64(3)}},
				RowCount: 1,
			},
			Attempts: 1,
		},
		summaryResult: okGen("You finished three goals.", summaryUsage),
	}
}

func TestNewSession_MissingSchemaDocIsFatal(t *testing.T) {
	_, err := NewSession(SessionParams{
		SchemaDocPath: "testdata/does-not-exist.md",
		Engine:        &fakeGenerator{},
	})
	if err == nil {
		t.Fatalf("expected error for missing schema document")
	}
}

func TestSubmitMessage_UnknownUserRejected(t *testing.T) {
	s := newTestSession(t, happyQueryGenerator())

	_, err := s.SubmitMessage(context.Background(), User{ID: 42, Name: "eve", Type: UserTypeHuman}, "hi", nil)
	if !errors.Is(err, ErrUserNotPermitted) {
		t.Fatalf("err = %v, want ErrUserNotPermitted", err)
	}
	if s.history.Len() != 0 {
		t.Fatalf("rejected message reached history")
	}
}

func TestSubmitMessage_ForcedQuerySkipsClassification(t *testing.T) {
	gen := happyQueryGenerator()
	s := newTestSession(t, gen)

	res, err := s.SubmitMessage(context.Background(), testUser, "how many goals did I finish", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gen.classifyCalls != 0 {
		t.Fatalf("classification ran on the forced-query path")
	}
	if res.MessageType != MessageTypeQuery {
		t.Fatalf("message type = %s", res.MessageType)
	}
	if !res.Success {
		t.Fatalf("result not successful: %+v", res)
	}
}

func TestSubmitMessage_QueryEchoRoundTrip(t *testing.T) {
	gen := happyQueryGenerator()
	s := newTestSession(t, gen)

	res, err := s.SubmitMessage(context.Background(), testUser, "how many goals did I finish", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Summary != "You finished three goals." {
		t.Fatalf("summary = %q", res.Summary)
	}

	// The echo entry is appended during processing, the user entry after,
	// so the echo sits first with the higher id.
	hist := s.GetHistory(0)
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	echo, user := hist[0], hist[1]
	if echo.UserType != UserTypeAI || echo.Message != "You finished three goals." {
		t.Fatalf("echo entry wrong: %+v", echo)
	}
	if user.ID != 1 || echo.ID != 2 {
		t.Fatalf("ids: user=%d echo=%d", user.ID, echo.ID)
	}
	if user.SQL != "SELECT COUNT(*) FROM goals" || user.SQLRowCount != 1 {
		t.Fatalf("query fields not recorded: %+v", user)
	}
	if user.Summary != "You finished three goals." {
		t.Fatalf("summary not recorded on entry")
	}
}

func TestSubmitMessage_UsageAccounting(t *testing.T) {
	gen := happyQueryGenerator()
	s := newTestSession(t, gen)

	if _, err := s.SubmitMessage(context.Background(), testUser, "count my goals", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	q := s.QueryUsage()
	if q.TotalTokens != sqlUsage.TotalTokens || q.TotalCost != sqlUsage.TotalCost {
		t.Fatalf("query usage = %+v", q)
	}
	nq := s.NonQueryUsage()
	if nq.TotalTokens != summaryUsage.TotalTokens {
		t.Fatalf("non-query usage = %+v", nq)
	}
	if v := s.VisualizationUsage(); v.TotalTokens != 0 {
		t.Fatalf("visualization usage touched: %+v", v)
	}

	cs := s.CostSummary()
	if cs.QueryCost != sqlUsage.TotalCost || cs.NonQueryCost != summaryUsage.TotalCost {
		t.Fatalf("cost summary = %+v", cs)
	}
	if cs.TotalCost != round5(sqlUsage.TotalCost+summaryUsage.TotalCost) {
		t.Fatalf("total cost = %v", cs.TotalCost)
	}
}

func TestSubmitMessage_FailedSQLStillAppends(t *testing.T) {
	gen := happyQueryGenerator()
	gen.sqlOutcome.Execution = &sqlexec.Result{Success: false, ErrorMessage: "no such table: goalz"}
	s := newTestSession(t, gen)

	res, err := s.SubmitMessage(context.Background(), testUser, "count my goals", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failed result")
	}
	if res.ErrorMessage != "no such table: goalz" {
		t.Fatalf("error message = %q", res.ErrorMessage)
	}
	if gen.summaryCalls != 0 {
		t.Fatalf("summary ran after failed execution")
	}
	// No echo: just the user's turn, with the failure visible on it.
	if s.history.Len() != 1 {
		t.Fatalf("history len = %d, want 1", s.history.Len())
	}
	// Generation usage is still charged even though execution failed.
	if q := s.QueryUsage(); q.TotalTokens != sqlUsage.TotalTokens {
		t.Fatalf("query usage = %+v", q)
	}
	if nq := s.NonQueryUsage(); nq.TotalTokens != 0 {
		t.Fatalf("non-query usage touched on failure: %+v", nq)
	}
}

func TestSubmitMessage_FreeTalkBranch(t *testing.T) {
	gen := happyQueryGenerator()
	gen.classifyResult = okGen("free_talk", clsUsage)
	gen.answerResult = okGen("That sounds like a hard week.", ai.Usage{TotalTokens: 40, TotalCost: 0.001})
	s := newTestSession(t, gen)

	freeChat := true
	res, err := s.SubmitMessage(context.Background(), testUser, "I feel stuck lately", &MessageOptions{FreeChat: &freeChat})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gen.classifyCalls != 1 || gen.answerCalls != 1 || gen.sqlCalls != 0 {
		t.Fatalf("calls: classify=%d answer=%d sql=%d", gen.classifyCalls, gen.answerCalls, gen.sqlCalls)
	}
	if res.MessageType != MessageTypeFreeTalk {
		t.Fatalf("message type = %s", res.MessageType)
	}
	if res.Answer != "That sounds like a hard week." {
		t.Fatalf("answer = %q", res.Answer)
	}
	// Classification and the reply both land on the non-query meter.
	if nq := s.NonQueryUsage(); nq.TotalTokens != clsUsage.TotalTokens+40 {
		t.Fatalf("non-query usage = %+v", nq)
	}
	// Result usage covers everything this turn consumed.
	if res.Usage.TotalTokens != clsUsage.TotalTokens+40 {
		t.Fatalf("result usage = %+v", res.Usage)
	}
	if s.history.Len() != 1 {
		t.Fatalf("history len = %d, want 1", s.history.Len())
	}
}

func TestSubmitMessage_RAGTrimsSchemaDoc(t *testing.T) {
	gen := happyQueryGenerator()
	gen.sectionsResult = okGen("goals", ai.Usage{TotalTokens: 5, TotalCost: 0.0001})
	s := newTestSession(t, gen)

	rag := true
	if _, err := s.SubmitMessage(context.Background(), testUser, "count my goals", &MessageOptions{EnableRAGOptimization: &rag}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gen.sectionsCalls != 1 {
		t.Fatalf("sections calls = %d", gen.sectionsCalls)
	}
	if got := strings.TrimSpace(gen.lastSQLReq.SchemaDoc); got != "# goals\n\ngoal table" {
		t.Fatalf("schema doc not trimmed: %q", got)
	}
	// Section-picking spend lands on the query meter with the SQL spend.
	if q := s.QueryUsage(); q.TotalTokens != sqlUsage.TotalTokens+5 {
		t.Fatalf("query usage = %+v", q)
	}
}

func TestSubmitMessage_AIAuthoredShortCircuits(t *testing.T) {
	gen := happyQueryGenerator()
	s := newTestSession(t, gen)

	res, err := s.SubmitMessage(context.Background(), s.AIUser(), "closing thought", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success {
		t.Fatalf("result: %+v", res)
	}
	if gen.sqlCalls != 0 || gen.classifyCalls != 0 || gen.answerCalls != 0 {
		t.Fatalf("ai-authored message triggered generation")
	}
	hist := s.GetHistory(0)
	if len(hist) != 1 || hist[0].UserType != UserTypeAI {
		t.Fatalf("history: %+v", hist)
	}
}

func TestClearHistory_ResetsIDsKeepsCosts(t *testing.T) {
	gen := happyQueryGenerator()
	s := newTestSession(t, gen)

	if _, err := s.SubmitMessage(context.Background(), testUser, "count my goals", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	costBefore := s.CostSummary()
	s.ClearHistory()

	if s.history.Len() != 0 {
		t.Fatalf("history not cleared")
	}
	if got := s.CostSummary(); got != costBefore {
		t.Fatalf("costs changed on clear: %+v != %+v", got, costBefore)
	}

	res, err := s.SubmitMessage(context.Background(), testUser, "again", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.MessageID != 1 {
		t.Fatalf("id counter not reset: %d", res.MessageID)
	}
}

func TestRunVisualization_AttachesCode(t *testing.T) {
	gen := happyQueryGenerator()
	gen.visualResult = okGen("<div id=\"chart\"></div>", ai.Usage{TotalTokens: 25, TotalCost: 0.0005})
	s := newTestSession(t, gen)

	if _, err := s.SubmitMessage(context.Background(), testUser, "count my goals", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := s.RunVisualization(context.Background(), VisualizationRequest{
		MessageID: 1,
		Query:     "count my goals",
		Result:    []map[string]any{{"count": 3}},
	})
	if !res.Success || res.Code == "" {
		t.Fatalf("visualization result: %+v", res)
	}
	if e := s.history.GetByID(1); e.VisualCode != res.Code {
		t.Fatalf("code not attached to entry")
	}
	if v := s.VisualizationUsage(); v.TotalTokens != 25 {
		t.Fatalf("visualization usage = %+v", v)
	}
	// The other meters stay put.
	if q := s.QueryUsage(); q.TotalTokens != sqlUsage.TotalTokens {
		t.Fatalf("query usage moved: %+v", q)
	}
}

func TestRunVisualization_UnknownID(t *testing.T) {
	gen := happyQueryGenerator()
	s := newTestSession(t, gen)

	res := s.RunVisualization(context.Background(), VisualizationRequest{MessageID: 77})
	if res.Success {
		t.Fatalf("expected failure for unknown id")
	}
	if gen.visualCalls != 0 {
		t.Fatalf("generation ran for unknown id")
	}
	if v := s.VisualizationUsage(); v != (UsageStats{}) {
		t.Fatalf("usage charged for unknown id: %+v", v)
	}
}

func TestSubmitMessage_LargeResultOmittedFromSummary(t *testing.T) {
	gen := happyQueryGenerator()
	rows := make([]map[string]any, 0, summaryRowLimit+1)
	for i := 0; i <= summaryRowLimit; i++ {
		rows = append(rows, map[string]any{"n": i})
	}
	gen.sqlOutcome.Execution = &sqlexec.Result{Success: true, Rows: rows, RowCount: len(rows)}
	s := newTestSession(t, gen)

	if _, err := s.SubmitMessage(context.Background(), testUser, "list everything", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gen.lastSummaryReq.Rows != nil {
		t.Fatalf("oversized rows reached the summary prompt")
	}
	if gen.lastSummaryReq.RowCount != len(rows) {
		t.Fatalf("row count missing from summary request")
	}
}
