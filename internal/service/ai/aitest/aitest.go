// Package aitest provides a scripted ai.Client for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/service/ai"
)

// Client replays Chunks as the reply to every request. When Err is set the
// request fails before streaming. Gate, when non-nil, is received from before
// each fragment so tests can hold a turn open.
type Client struct {
	Chunks []string
	Err    error
	Gate   chan struct{}

	mu       sync.Mutex
	requests [][]chat.Message
}

// Stream implements ai.Client.
func (c *Client) Stream(ctx context.Context, messages []chat.Message) (ai.Stream, error) {
	c.mu.Lock()
	c.requests = append(c.requests, messages)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	return &stream{ctx: ctx, chunks: append([]string(nil), c.Chunks...), gate: c.Gate}, nil
}

// Requests returns the message lists sent so far.
func (c *Client) Requests() [][]chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]chat.Message(nil), c.requests...)
}

type stream struct {
	ctx    context.Context
	chunks []string
	gate   chan struct{}
}

func (s *stream) Next() ai.Fragment {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			return ai.Fragment{Kind: ai.FragmentDone}
		}
	}
	if len(s.chunks) == 0 {
		return ai.Fragment{Kind: ai.FragmentDone}
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return ai.Fragment{Kind: ai.FragmentText, Text: chunk}
}

func (s *stream) Close() error { return nil }
