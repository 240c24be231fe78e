package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orito-labs/orito/pkg/events"
)

// Question is one interactive question put to the user.
type Question struct {
	Question    string
	Header      string
	Purpose     string
	Options     []events.QuestionOption
	Multiple    bool
	AllowCustom bool
}

// QuestionRequest is sent to the router when an agent needs a user answer.
// The router (orchestrator) indexes Reply by QuestionID and sends exactly
// one answer on it.
type QuestionRequest struct {
	QuestionID string
	AgentID    string
	Reply      chan string
}

// SubAgentReply carries a completed sub-agent's result back to its parent.
type SubAgentReply struct {
	Result     any
	TokensUsed int
	Err        error
}

// SubAgentRequest is sent to the router when an agent wants a sub-agent.
type SubAgentRequest struct {
	RequestID string
	ParentID  string
	Depth     int
	AgentType string
	Task      string
	Input     string
	Extra     map[string]any
	Reply     chan SubAgentReply
}

// Router handles question and sub-agent requests on behalf of agents.
// Implemented by the orchestrator; defined here to avoid an import cycle.
type Router interface {
	// RouteQuestion registers the pending question. The answer arrives on
	// req.Reply; the router clears its index on resolve or timeout.
	RouteQuestion(ctx context.Context, req *QuestionRequest) error

	// RouteSubAgent constructs and runs the requested sub-agent, then
	// replies on req.Reply with the result or error.
	RouteSubAgent(ctx context.Context, req *SubAgentRequest) error
}

// AskQuestions emits one agent:question event per question and waits for
// each answer in order. Each question gets a fresh questionId; a question
// that is not answered within QuestionWait fails the whole call.
func (b *Base) AskQuestions(ctx context.Context, questions []Question) ([]string, error) {
	if b.router == nil {
		return nil, ErrNoRouter
	}

	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		req := &QuestionRequest{
			QuestionID: uuid.NewString(),
			AgentID:    b.ID,
			Reply:      make(chan string, 1),
		}
		if err := b.router.RouteQuestion(ctx, req); err != nil {
			return nil, err
		}

		b.publish(&events.AgentQuestion{
			Type:        events.TypeAgentQuestion,
			AgentID:     b.ID,
			QuestionID:  req.QuestionID,
			Question:    q.Question,
			Header:      q.Header,
			Purpose:     q.Purpose,
			Options:     q.Options,
			Multiple:    q.Multiple,
			AllowCustom: q.AllowCustom,
			Timestamp:   events.Now(),
		})

		answer, err := b.waitForAnswer(ctx, req)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return answers, nil
}

func (b *Base) waitForAnswer(ctx context.Context, req *QuestionRequest) (string, error) {
	wait := b.defaults.QuestionWait
	if wait <= 0 {
		wait = 120 * time.Second
	}
	select {
	case answer := <-req.Reply:
		return answer, nil
	case <-time.After(wait):
		return "", fmt.Errorf("%w: question %s", ErrQuestionTimeout, req.QuestionID)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CanSpawnSubAgent reports whether depth and per-definition limits allow
// another sub-agent.
func (b *Base) CanSpawnSubAgent() error {
	if b.Depth >= MaxAgentDepth {
		return fmt.Errorf("%w: depth %d", ErrDepthExceeded, b.Depth)
	}
	b.mu.Lock()
	spawned := b.spawned
	b.mu.Unlock()
	if spawned >= b.def.MaxSubAgents {
		return fmt.Errorf("%w: %d of %d used", ErrSubAgentLimit, spawned, b.def.MaxSubAgents)
	}
	return nil
}

// SpawnSubAgent requests a sub-agent from the router and blocks until its
// terminal result or the SubAgentWait timeout.
func (b *Base) SpawnSubAgent(ctx context.Context, agentType, task, input string, extra map[string]any) (*SubAgentReply, error) {
	if b.router == nil {
		return nil, ErrNoRouter
	}
	if err := b.CanSpawnSubAgent(); err != nil {
		return nil, err
	}

	req := &SubAgentRequest{
		RequestID: uuid.NewString(),
		ParentID:  b.ID,
		Depth:     b.Depth,
		AgentType: agentType,
		Task:      task,
		Input:     input,
		Extra:     extra,
		Reply:     make(chan SubAgentReply, 1),
	}
	if err := b.router.RouteSubAgent(ctx, req); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.spawned++
	b.mu.Unlock()

	wait := b.defaults.SubAgentWait
	if wait <= 0 {
		wait = 120 * time.Second
	}
	select {
	case reply := <-req.Reply:
		if reply.Err != nil {
			return nil, reply.Err
		}
		return &reply, nil
	case <-time.After(wait):
		return nil, fmt.Errorf("%w: request %s", ErrSubAgentTimeout, req.RequestID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
