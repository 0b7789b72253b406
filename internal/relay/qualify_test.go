package relay

import (
	"context"
	"testing"
	"time"
)

const (
	testBotID     = "42"
	testChannelID = "100"
)

func TestQualifierQualifies(t *testing.T) {
	platform := newFakePlatform()
	platform.messages["900"] = IncomingMessage{ID: "900", AuthorID: testBotID}
	platform.messages["901"] = IncomingMessage{ID: "901", AuthorID: "7"}
	q := Qualifier{MonitoredChannelID: testChannelID, BotUserID: testBotID, Messages: platform}

	cases := []struct {
		name string
		msg  IncomingMessage
		want bool
	}{
		{name: "mention", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "<@42> hi"}, want: true},
		{name: "nick_mention", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "<@!42> hi"}, want: true},
		{name: "thread_mention", msg: IncomingMessage{ChannelID: "555", ParentChannelID: testChannelID, AuthorID: "7", Content: "<@42> hi"}, want: true},
		{name: "other_channel", msg: IncomingMessage{ChannelID: "101", AuthorID: "7", Content: "<@42> hi"}, want: false},
		{name: "other_thread", msg: IncomingMessage{ChannelID: "555", ParentChannelID: "101", AuthorID: "7", Content: "<@42> hi"}, want: false},
		{name: "bot_author_mention", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "8", AuthorIsBot: true, Content: "<@42> hi"}, want: false},
		{name: "bot_author_reply", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "8", AuthorIsBot: true, ReferenceMessageID: "900"}, want: false},
		{name: "no_mention", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "hello"}, want: false},
		{name: "other_user_mention", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "<@43> hi"}, want: false},
		{name: "reply_to_bot_fetched", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "and then?", ReferenceMessageID: "900"}, want: true},
		{name: "reply_to_user_fetched", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "and then?", ReferenceMessageID: "901"}, want: false},
		{name: "reply_to_bot_resolved", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "and then?", ReferenceMessageID: "x", ReferencedAuthorID: testBotID}, want: true},
		{name: "reply_fetch_error", msg: IncomingMessage{ChannelID: testChannelID, AuthorID: "7", Content: "and then?", ReferenceMessageID: "missing"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := q.Qualifies(context.Background(), tc.msg); got != tc.want {
				t.Fatalf("Qualifies() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStripMentionsIdempotent(t *testing.T) {
	inputs := []string{
		"<@42> what is X?",
		"  <@!42>   <@42> ",
		"<@<@42>42> nested",
		"no mention here",
		"<@43> keep other users",
		"",
	}
	for _, in := range inputs {
		once := StripMentions(in, testBotID)
		twice := StripMentions(once, testBotID)
		if once != twice {
			t.Fatalf("StripMentions not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
		if MentionsBot(once, testBotID) {
			t.Fatalf("StripMentions(%q) = %q still mentions bot", in, once)
		}
	}
	if got := StripMentions("<@42> what is X?", testBotID); got != "what is X?" {
		t.Fatalf("StripMentions() = %q, want %q", got, "what is X?")
	}
	if got := StripMentions("<@43> hi", testBotID); got != "<@43> hi" {
		t.Fatalf("StripMentions() = %q, want other mentions kept", got)
	}
}

func TestSamplerZeroCountSkipsFetch(t *testing.T) {
	platform := newFakePlatform()
	platform.history = []IncomingMessage{{ID: "1", AuthorID: "7", Content: "hello"}}
	s := Sampler{Source: platform, BotUserID: testBotID}
	if got := s.Sample(context.Background(), testChannelID, "2", 0); len(got) != 0 {
		t.Fatalf("Sample(count=0) = %#v, want empty", got)
	}
	if platform.historyHit != 0 {
		t.Fatalf("history fetches = %d, want 0", platform.historyHit)
	}
}

func TestSamplerOrdersAndDropsEmpty(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	platform := newFakePlatform()
	// Newest first, the way the platform lists history.
	platform.history = []IncomingMessage{
		{ID: "5", AuthorID: testBotID, Content: "answer two", SentAt: base.Add(4 * time.Minute)},
		{ID: "4", AuthorID: "7", Content: "<@42>", SentAt: base.Add(3 * time.Minute)},
		{ID: "3", AuthorID: "7", Content: "<@42> question two", SentAt: base.Add(2 * time.Minute)},
		{ID: "2", AuthorID: testBotID, Content: "answer one", SentAt: base.Add(time.Minute)},
		{ID: "1", AuthorID: "7", Content: "   ", SentAt: base},
	}
	s := Sampler{Source: platform, BotUserID: testBotID}
	got := s.Sample(context.Background(), testChannelID, "6", 5)
	want := []struct{ role, content string }{
		{"assistant", "answer one"},
		{"user", "question two"},
		{"assistant", "answer two"},
	}
	if len(got) != len(want) {
		t.Fatalf("len(Sample()) = %d, want %d (%#v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Role != want[i].role || got[i].Content != want[i].content {
			t.Fatalf("Sample()[%d] = %#v, want %s %q", i, got[i], want[i].role, want[i].content)
		}
	}
}

func TestSamplerFetchErrorYieldsEmptyContext(t *testing.T) {
	platform := newFakePlatform()
	platform.historyErr = context.DeadlineExceeded
	s := Sampler{Source: platform, BotUserID: testBotID}
	if got := s.Sample(context.Background(), testChannelID, "2", 5); len(got) != 0 {
		t.Fatalf("Sample() = %#v, want empty on fetch error", got)
	}
}
