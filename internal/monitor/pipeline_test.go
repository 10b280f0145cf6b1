package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/store"
)

type fakeNotifier struct {
	calls []notifyCall
}

type notifyCall struct {
	target, secret, title, body string
}

func (f *fakeNotifier) Notify(target, secret, title, body string, isTest bool) string {
	f.calls = append(f.calls, notifyCall{target, secret, title, body})
	return "sent"
}

func testStore(t *testing.T) *store.MonitorStore {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewMonitorStore(db)
}

func testEvent(chatID int64, text string) domain.MessageEvent {
	return domain.MessageEvent{
		MessageID:      42,
		ChatID:         chatID,
		ChatTitle:      "Golang News",
		SenderUsername: "gopher",
		Text:           text,
		Date:           time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandleMessage_FirstMatchWins(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	p := NewPipeline(st, notifier, logging.New(nil, "silent"))

	g, err := st.AddGroup(domain.Group{Identifier: "-100123", Name: "Golang News"})
	require.NoError(t, err)
	_, err = st.AddKeyword("alpha", []int64{g.ID})
	require.NoError(t, err)
	_, err = st.AddKeyword("beta", []int64{g.ID})
	require.NoError(t, err)
	require.NoError(t, st.SaveSettings(domain.Settings{
		WebhookURL: "https://oapi.dingtalk.com/robot/send?access_token=x",
	}))

	// Both keywords appear; only the first stored one records a match.
	p.HandleMessage(testEvent(-100123, "beta then ALPHA in one message"))

	matches, err := st.RecentMatches(10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "alpha", matches[0].Keyword)

	require.Len(t, notifier.calls, 1)
	assert.Contains(t, notifier.calls[0].title, "alpha")
	assert.Contains(t, notifier.calls[0].body, "gopher")
}

func TestHandleMessage_CaseInsensitive(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	p := NewPipeline(st, notifier, logging.New(nil, "silent"))

	g, err := st.AddGroup(domain.Group{Identifier: "-100123", Name: "Golang News"})
	require.NoError(t, err)
	_, err = st.AddKeyword("Release", []int64{g.ID})
	require.NoError(t, err)

	p.HandleMessage(testEvent(-100123, "the RELEASE is out"))

	matches, err := st.RecentMatches(10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Release", matches[0].Keyword)
}

func TestHandleMessage_UnmonitoredChatIgnored(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	p := NewPipeline(st, notifier, logging.New(nil, "silent"))

	g, err := st.AddGroup(domain.Group{Identifier: "-100123", Name: "Golang News"})
	require.NoError(t, err)
	_, err = st.AddKeyword("alpha", []int64{g.ID})
	require.NoError(t, err)

	p.HandleMessage(testEvent(-100999, "alpha everywhere"))

	matches, err := st.RecentMatches(10)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, notifier.calls)
}

func TestHandleMessage_NoHitNoRecord(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	p := NewPipeline(st, notifier, logging.New(nil, "silent"))

	g, err := st.AddGroup(domain.Group{Identifier: "-100123", Name: "Golang News"})
	require.NoError(t, err)
	_, err = st.AddKeyword("alpha", []int64{g.ID})
	require.NoError(t, err)

	p.HandleMessage(testEvent(-100123, "nothing interesting here"))

	matches, err := st.RecentMatches(10)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, notifier.calls)
}

func TestHandleMessage_GroupWebhookOverride(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	p := NewPipeline(st, notifier, logging.New(nil, "silent"))

	g, err := st.AddGroup(domain.Group{
		Identifier: "-100123",
		Name:       "Golang News",
		WebhookURL: "https://oapi.dingtalk.com/robot/send?access_token=group-specific",
	})
	require.NoError(t, err)
	_, err = st.AddKeyword("alpha", []int64{g.ID})
	require.NoError(t, err)
	require.NoError(t, st.SaveSettings(domain.Settings{
		WebhookURL: "https://oapi.dingtalk.com/robot/send?access_token=global",
	}))

	p.HandleMessage(testEvent(-100123, "alpha"))

	require.Len(t, notifier.calls, 1)
	assert.Contains(t, notifier.calls[0].target, "group-specific")
}

func TestHandleMessage_IdentifierSpellingsMatch(t *testing.T) {
	st := testStore(t)
	notifier := &fakeNotifier{}
	p := NewPipeline(st, notifier, logging.New(nil, "silent"))

	// Stored without the supergroup prefix; the event carries it.
	g, err := st.AddGroup(domain.Group{Identifier: "123456", Name: "Golang News"})
	require.NoError(t, err)
	_, err = st.AddKeyword("alpha", []int64{g.ID})
	require.NoError(t, err)

	p.HandleMessage(testEvent(-100123456, "alpha"))

	matches, err := st.RecentMatches(10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestHandleMessage_MatchSurvivesNotifierFailure(t *testing.T) {
	st := testStore(t)
	p := NewPipeline(st, failingNotifier{}, logging.New(nil, "silent"))

	g, err := st.AddGroup(domain.Group{Identifier: "-100123", Name: "Golang News"})
	require.NoError(t, err)
	_, err = st.AddKeyword("alpha", []int64{g.ID})
	require.NoError(t, err)
	require.NoError(t, st.SaveSettings(domain.Settings{
		WebhookURL: "https://oapi.dingtalk.com/robot/send?access_token=x",
	}))

	p.HandleMessage(testEvent(-100123, "alpha"))

	matches, err := st.RecentMatches(10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

type failingNotifier struct{}

func (failingNotifier) Notify(target, secret, title, body string, isTest bool) string {
	return "send error: connection refused"
}
