package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/quailyquaily/kbrelay/kb"
)

type platformCall struct {
	Op        string
	ChannelID string
	MessageID string
	ReplyTo   string
	Reply     Reply
}

type fakePlatform struct {
	mu sync.Mutex

	nextID   int
	calls    []platformCall
	history  []IncomingMessage
	messages map[string]IncomingMessage

	historyErr error
	sendErrAt  map[int]error
	editID     string
	sends      int
	historyHit int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{nextID: 1000, messages: map[string]IncomingMessage{}}
}

func (p *fakePlatform) Typing(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, platformCall{Op: "typing", ChannelID: channelID})
	return nil
}

func (p *fakePlatform) Send(_ context.Context, channelID, replyToID string, reply Reply) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends++
	if err := p.sendErrAt[p.sends]; err != nil {
		p.calls = append(p.calls, platformCall{Op: "send_failed", ChannelID: channelID, ReplyTo: replyToID, Reply: reply})
		return "", err
	}
	p.nextID++
	id := fmt.Sprintf("%d", p.nextID)
	p.calls = append(p.calls, platformCall{Op: "send", ChannelID: channelID, MessageID: id, ReplyTo: replyToID, Reply: reply})
	return id, nil
}

func (p *fakePlatform) Edit(_ context.Context, channelID, messageID string, reply Reply) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, platformCall{Op: "edit", ChannelID: channelID, MessageID: messageID, Reply: reply})
	if p.editID != "" {
		return p.editID, nil
	}
	return messageID, nil
}

func (p *fakePlatform) Delete(_ context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, platformCall{Op: "delete", ChannelID: channelID, MessageID: messageID})
	return nil
}

func (p *fakePlatform) History(_ context.Context, channelID, beforeID string, limit int) ([]IncomingMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.historyHit++
	if p.historyErr != nil {
		return nil, p.historyErr
	}
	out := make([]IncomingMessage, 0, limit)
	for _, msg := range p.history {
		if len(out) == limit {
			break
		}
		out = append(out, msg)
	}
	return out, nil
}

func (p *fakePlatform) Message(_ context.Context, channelID, messageID string) (IncomingMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, ok := p.messages[messageID]
	if !ok {
		return IncomingMessage{}, fmt.Errorf("unknown message %s", messageID)
	}
	return msg, nil
}

func (p *fakePlatform) snapshot() []platformCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platformCall(nil), p.calls...)
}

func (p *fakePlatform) ops() []string {
	calls := p.snapshot()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

type fakeClient struct {
	mu       sync.Mutex
	results  []kb.Result
	requests []kb.Request
	hook     func()
}

func (c *fakeClient) Send(_ context.Context, req kb.Request) kb.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.hook != nil {
		c.hook()
	}
	if len(c.results) == 0 {
		return kb.Success("", nil)
	}
	res := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return res
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type fakeResponder struct {
	private   []string
	followups []string
	deferred  int
}

func (r *fakeResponder) RespondPrivate(_ context.Context, text string) error {
	r.private = append(r.private, text)
	return nil
}

func (r *fakeResponder) DeferUpdate(context.Context) error {
	r.deferred++
	return nil
}

func (r *fakeResponder) FollowupPrivate(_ context.Context, text string) error {
	r.followups = append(r.followups, text)
	return nil
}
