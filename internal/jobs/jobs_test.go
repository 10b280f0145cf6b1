package jobs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/config"
	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/remote"
	"github.com/Kalinx99/TelScan/internal/store"
)

// scriptedSession satisfies remote.Session with per-test behavior.
type scriptedSession struct {
	events chan domain.MessageEvent
	done   chan struct{}
	once   sync.Once

	joinFn    func(ref string) (remote.Entity, error)
	resolveFn func(ref string) (remote.Entity, error)
	historyFn func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error)
}

func newScriptedSession() *scriptedSession {
	return &scriptedSession{
		events: make(chan domain.MessageEvent),
		done:   make(chan struct{}),
	}
}

func (s *scriptedSession) Events() <-chan domain.MessageEvent { return s.events }
func (s *scriptedSession) Done() <-chan struct{}              { return s.done }

func (s *scriptedSession) Resolve(ctx context.Context, ref string) (remote.Entity, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ref)
	}
	return remote.Entity{ID: 100, Title: ref}, nil
}

func (s *scriptedSession) Join(ctx context.Context, ref string) (remote.Entity, error) {
	if s.joinFn != nil {
		return s.joinFn(ref)
	}
	return remote.Entity{ID: 100, Title: ref}, nil
}

func (s *scriptedSession) History(ctx context.Context, peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
	if s.historyFn != nil {
		return s.historyFn(peerID, offsetID, limit)
	}
	return nil, nil
}

func (s *scriptedSession) ProfilePhoto(ctx context.Context, peerID int64) ([]byte, error) {
	return nil, nil
}

func (s *scriptedSession) Close(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type sessionDialer struct {
	sess *scriptedSession
}

func (d *sessionDialer) Dial(ctx context.Context) (remote.Session, error) {
	return d.sess, nil
}

type fixture struct {
	manager *Manager
	db      *store.DB
	store   *store.MonitorStore
	tasks   *store.TaskStore
	session *scriptedSession
	bridge  *bridge.Bridge
}

func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	log := logging.New(nil, "silent")

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sess := newScriptedSession()
	br := bridge.New(&sessionDialer{sess: sess}, log)
	if connect {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		br.Start(ctx)
		require.True(t, br.WaitReady(time.Second))
		t.Cleanup(br.Stop)
	}

	cfg := config.JobsConfig{
		JoinDelayFloorSeconds:   20,
		JoinDelayDefaultSeconds: 60,
		ExportDir:               t.TempDir(),
	}

	f := &fixture{
		db:      db,
		store:   store.NewMonitorStore(db),
		tasks:   store.NewTaskStore(db),
		session: sess,
		bridge:  br,
	}
	f.manager = NewManager(br, f.store, f.tasks, cfg, 45*time.Second, log)
	f.manager.sleep = func(time.Duration) {} // jobs never really sleep in tests
	return f
}

func waitTerminal(t *testing.T, m *Manager, id string) domain.TaskSnapshot {
	t.Helper()
	var snap domain.TaskSnapshot
	require.Eventually(t, func() bool {
		s, ok := m.Get(id)
		if !ok {
			return false
		}
		snap = s
		return s.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func logContains(snap domain.TaskSnapshot, substr string) bool {
	for _, line := range snap.Log {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
