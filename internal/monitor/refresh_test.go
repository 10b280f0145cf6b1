package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/remote"
)

type refreshSession struct {
	events chan domain.MessageEvent
	done   chan struct{}
	once   sync.Once

	entities map[string]remote.Entity
	photos   map[int64][]byte
}

func newRefreshSession() *refreshSession {
	return &refreshSession{
		events:   make(chan domain.MessageEvent),
		done:     make(chan struct{}),
		entities: make(map[string]remote.Entity),
		photos:   make(map[int64][]byte),
	}
}

func (s *refreshSession) Events() <-chan domain.MessageEvent { return s.events }
func (s *refreshSession) Done() <-chan struct{}              { return s.done }

func (s *refreshSession) Resolve(ctx context.Context, ref string) (remote.Entity, error) {
	if ent, ok := s.entities[ref]; ok {
		return ent, nil
	}
	return remote.Entity{}, &remote.Error{Kind: remote.KindNotFound, Code: "USERNAME_NOT_FOUND"}
}

func (s *refreshSession) Join(ctx context.Context, ref string) (remote.Entity, error) {
	return remote.Entity{}, nil
}

func (s *refreshSession) History(ctx context.Context, peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
	return nil, nil
}

func (s *refreshSession) ProfilePhoto(ctx context.Context, peerID int64) ([]byte, error) {
	return s.photos[peerID], nil
}

func (s *refreshSession) Close(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type refreshDialer struct{ sess *refreshSession }

func (d *refreshDialer) Dial(ctx context.Context) (remote.Session, error) {
	return d.sess, nil
}

func TestRefreshAll_UpdatesRenamedGroup(t *testing.T) {
	log := logging.New(nil, "silent")
	st := testStore(t)

	sess := newRefreshSession()
	sess.entities["golangnews"] = remote.Entity{ID: 42, Title: "Golang News v2"}

	br := bridge.New(&refreshDialer{sess: sess}, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)
	require.True(t, br.WaitReady(time.Second))
	defer br.Stop()

	_, err := st.AddGroup(domain.Group{Identifier: "@golangnews", Name: "Golang News"})
	require.NoError(t, err)

	r := NewRefresher(st, br, t.TempDir(), time.Second, log)
	r.RefreshAll()

	got, err := st.GroupByIdentifier("@golangnews")
	require.NoError(t, err)
	assert.Equal(t, "Golang News v2", got.Name)
}

func TestRefreshAll_DownloadsLogo(t *testing.T) {
	log := logging.New(nil, "silent")
	st := testStore(t)

	sess := newRefreshSession()
	sess.entities["golangnews"] = remote.Entity{ID: 42, Title: "Golang News"}
	sess.photos[42] = []byte{0xFF, 0xD8, 0xFF}

	br := bridge.New(&refreshDialer{sess: sess}, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)
	require.True(t, br.WaitReady(time.Second))
	defer br.Stop()

	_, err := st.AddGroup(domain.Group{Identifier: "golangnews", Name: "Golang News"})
	require.NoError(t, err)

	logosDir := t.TempDir()
	r := NewRefresher(st, br, logosDir, time.Second, log)
	r.RefreshAll()

	data, err := os.ReadFile(filepath.Join(logosDir, "42.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data)

	got, err := st.GroupByIdentifier("golangnews")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("logos", "42.jpg"), got.LogoPath)
}

func TestRefreshAll_UnresolvableGroupSkipped(t *testing.T) {
	log := logging.New(nil, "silent")
	st := testStore(t)

	sess := newRefreshSession() // resolves nothing

	br := bridge.New(&refreshDialer{sess: sess}, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)
	require.True(t, br.WaitReady(time.Second))
	defer br.Stop()

	_, err := st.AddGroup(domain.Group{Identifier: "vanished", Name: "Old Name"})
	require.NoError(t, err)

	r := NewRefresher(st, br, t.TempDir(), time.Second, log)
	r.RefreshAll()

	got, err := st.GroupByIdentifier("vanished")
	require.NoError(t, err)
	assert.Equal(t, "Old Name", got.Name)
}

func TestRefreshAll_NotConnectedSkipsPass(t *testing.T) {
	log := logging.New(nil, "silent")
	st := testStore(t)

	_, err := st.AddGroup(domain.Group{Identifier: "g", Name: "Name"})
	require.NoError(t, err)

	br := bridge.New(&refreshDialer{sess: newRefreshSession()}, log) // never started
	r := NewRefresher(st, br, t.TempDir(), time.Second, log)
	r.RefreshAll() // must not panic or modify anything

	got, err := st.GroupByIdentifier("g")
	require.NoError(t, err)
	assert.Equal(t, "Name", got.Name)
}
