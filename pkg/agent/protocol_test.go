package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orito-labs/orito/pkg/events"
)

// stubRouter answers questions from a queue and runs a scripted sub-agent
// reply.
type stubRouter struct {
	answers  []string
	subReply *SubAgentReply
	silent   bool

	questions []*QuestionRequest
	subReqs   []*SubAgentRequest
}

func (r *stubRouter) RouteQuestion(_ context.Context, req *QuestionRequest) error {
	r.questions = append(r.questions, req)
	if r.silent {
		return nil
	}
	answer := ""
	if len(r.answers) > 0 {
		answer = r.answers[0]
		r.answers = r.answers[1:]
	}
	req.Reply <- answer
	return nil
}

func (r *stubRouter) RouteSubAgent(_ context.Context, req *SubAgentRequest) error {
	r.subReqs = append(r.subReqs, req)
	if r.silent {
		return nil
	}
	reply := SubAgentReply{Result: "sub result"}
	if r.subReply != nil {
		reply = *r.subReply
	}
	req.Reply <- reply
	return nil
}

func TestAskQuestionsCollectsAnswersInOrder(t *testing.T) {
	bus := events.NewBus(16)
	router := &stubRouter{answers: []string{"Ubuntu", "apt"}}
	b := newTestBase(t, "curious", &fakeCompleter{}, bus, router)

	answers, err := b.AskQuestions(context.Background(), []Question{
		{Question: "Which distribution do you use?"},
		{Question: "Which package manager?"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ubuntu", "apt"}, answers)

	var qEvents []*events.AgentQuestion
	for _, e := range drain(bus) {
		if q, ok := e.(*events.AgentQuestion); ok {
			qEvents = append(qEvents, q)
		}
	}
	require.Len(t, qEvents, 2)
	assert.Equal(t, "Which distribution do you use?", qEvents[0].Question)
	assert.NotEmpty(t, qEvents[0].QuestionID)
	assert.NotEqual(t, qEvents[0].QuestionID, qEvents[1].QuestionID, "every question gets a fresh id")
}

func TestAskQuestionsTimesOut(t *testing.T) {
	router := &stubRouter{silent: true}
	b := newTestBase(t, "curious", &fakeCompleter{}, nil, router)

	_, err := b.AskQuestions(context.Background(), []Question{{Question: "anyone there?"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuestionTimeout)
}

func TestAskQuestionsWithoutRouter(t *testing.T) {
	b := newTestBase(t, "curious", &fakeCompleter{}, nil, nil)
	_, err := b.AskQuestions(context.Background(), []Question{{Question: "q"}})
	assert.ErrorIs(t, err, ErrNoRouter)
}

func TestSpawnSubAgent(t *testing.T) {
	router := &stubRouter{}
	b := newTestBase(t, "research", &fakeCompleter{}, nil, router)

	reply, err := b.SpawnSubAgent(context.Background(), "research", "dig deeper", "input", nil)
	require.NoError(t, err)
	assert.Equal(t, "sub result", reply.Result)

	require.Len(t, router.subReqs, 1)
	req := router.subReqs[0]
	assert.Equal(t, b.ID, req.ParentID)
	assert.Equal(t, b.Depth, req.Depth)
}

func TestSpawnSubAgentDepthLimit(t *testing.T) {
	router := &stubRouter{}
	b := newTestBase(t, "research", &fakeCompleter{}, nil, router)
	b.Depth = MaxAgentDepth

	_, err := b.SpawnSubAgent(context.Background(), "research", "t", "i", nil)
	assert.ErrorIs(t, err, ErrDepthExceeded)
	assert.Empty(t, router.subReqs, "the router is never consulted past the depth limit")
}

func TestSpawnSubAgentPerDefinitionLimit(t *testing.T) {
	router := &stubRouter{}
	// The research definition allows one sub-agent.
	b := newTestBase(t, "research", &fakeCompleter{}, nil, router)

	_, err := b.SpawnSubAgent(context.Background(), "research", "t", "i", nil)
	require.NoError(t, err)

	_, err = b.SpawnSubAgent(context.Background(), "research", "t", "i", nil)
	assert.ErrorIs(t, err, ErrSubAgentLimit)
}

func TestSpawnSubAgentTimesOut(t *testing.T) {
	router := &stubRouter{silent: true}
	b := newTestBase(t, "research", &fakeCompleter{}, nil, router)

	_, err := b.SpawnSubAgent(context.Background(), "research", "t", "i", nil)
	assert.ErrorIs(t, err, ErrSubAgentTimeout)
}

func TestSpawnSubAgentPropagatesFailure(t *testing.T) {
	router := &stubRouter{subReply: &SubAgentReply{Err: assert.AnError}}
	b := newTestBase(t, "research", &fakeCompleter{}, nil, router)

	_, err := b.SpawnSubAgent(context.Background(), "research", "t", "i", nil)
	assert.ErrorIs(t, err, assert.AnError)
}
