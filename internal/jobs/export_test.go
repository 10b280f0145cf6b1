package jobs

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/remote"
)

func historyMessages(from, count int) []remote.HistoryMessage {
	msgs := make([]remote.HistoryMessage, 0, count)
	for i := 0; i < count; i++ {
		id := int64(from + i)
		msgs = append(msgs, remote.HistoryMessage{
			ID:             id,
			SenderUsername: "gopher",
			Text:           fmt.Sprintf("message %d", id),
			Date:           time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		})
	}
	return msgs
}

func TestStartExport_InvalidFormat(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.manager.StartExport("g1", "xml")
	assert.Error(t, err)
}

func TestStartExport_UnknownGroup(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.manager.StartExport("nobody", "json")
	assert.Error(t, err)
}

func TestExport_JSONComplete(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.store.AddGroup(domain.Group{Identifier: "golangnews", Name: "Golang News"})
	require.NoError(t, err)

	f.session.resolveFn = func(ref string) (remote.Entity, error) {
		return remote.Entity{ID: 100, Title: "Golang News"}, nil
	}
	f.session.historyFn = func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
		if offsetID >= 4 {
			return nil, nil
		}
		return []remote.HistoryMessage{
			{ID: 1, SenderUsername: "gopher", Text: "hello", Date: time.Now()},
			{ID: 2, SenderFirstName: "Ada", SenderLastName: "L", Text: "", HasPhoto: true, Date: time.Now()},
			{ID: 3, Text: "reply here", ReplyToID: 1, Date: time.Now()},
			{ID: 4, Text: "anonymous channel post", Date: time.Now()},
		}, nil
	}

	id, err := f.manager.StartExport("golangnews", "json")
	require.NoError(t, err)

	snap := waitTerminal(t, f.manager, id)
	require.Equal(t, domain.TaskCompleted, snap.Status)
	assert.Equal(t, 4, snap.Records)
	require.NotEmpty(t, snap.FilePath)

	data, err := os.ReadFile(snap.FilePath)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 4)
	assert.Equal(t, "gopher", records[0]["sender"])
	assert.Equal(t, "[photo]", records[1]["text"])
	assert.Equal(t, "Ada L", records[1]["sender"])
	assert.Equal(t, float64(1), records[2]["reply_to_message_id"])
	// Identity-less posts carry the group's title as the sender.
	assert.Equal(t, "Golang News", records[3]["sender"])

	// The persisted row agrees with the in-memory snapshot.
	task, err := f.tasks.GetExport(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, snap.FilePath, task.FilePath)
}

func TestExport_CSVHasBOMAndHeader(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.store.AddGroup(domain.Group{Identifier: "golangnews", Name: "Golang News"})
	require.NoError(t, err)

	f.session.historyFn = func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
		if offsetID >= 2 {
			return nil, nil
		}
		return historyMessages(1, 2), nil
	}

	id, err := f.manager.StartExport("golangnews", "csv")
	require.NoError(t, err)

	snap := waitTerminal(t, f.manager, id)
	require.Equal(t, domain.TaskCompleted, snap.Status)

	data, err := os.ReadFile(snap.FilePath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"message_id", "sender", "text", "date", "reply_to_message_id"}, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "message 1", rows[1][2])
}

func TestExport_FilenameSanitized(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.store.AddGroup(domain.Group{Identifier: "g1", Name: "My Group / 测试!"})
	require.NoError(t, err)

	f.session.historyFn = func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
		if offsetID >= 1 {
			return nil, nil
		}
		return historyMessages(1, 1), nil
	}

	id, err := f.manager.StartExport("g1", "json")
	require.NoError(t, err)

	snap := waitTerminal(t, f.manager, id)
	require.Equal(t, domain.TaskCompleted, snap.Status)

	name := filepath.Base(snap.FilePath)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "!")
	assert.Contains(t, name, "My_Group")
	assert.Contains(t, name, "测试")
}

func TestExport_StopAtCheckpoint(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.store.AddGroup(domain.Group{Identifier: "golangnews", Name: "Golang News"})
	require.NoError(t, err)

	// Hold the runner in Resolve until the stop request is persisted,
	// then feed endless full pages; the 100-record checkpoint must end it.
	proceed := make(chan struct{})
	f.session.resolveFn = func(ref string) (remote.Entity, error) {
		<-proceed
		return remote.Entity{ID: 100, Title: "Golang News"}, nil
	}
	f.session.historyFn = func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
		return historyMessages(int(offsetID)+1, limit), nil
	}

	id, err := f.manager.StartExport("golangnews", "json")
	require.NoError(t, err)
	require.NoError(t, f.manager.RequestStop(id))
	close(proceed)

	snap := waitTerminal(t, f.manager, id)
	assert.Equal(t, domain.TaskStopped, snap.Status)
	assert.Equal(t, 100, snap.Current)
	assert.Empty(t, snap.FilePath)
	assert.True(t, logContains(snap, "stopped early"))

	// No file was written.
	entries, err := os.ReadDir(f.manager.cfg.ExportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_StatusReadFailureLogged(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.store.AddGroup(domain.Group{Identifier: "g1", Name: "G"})
	require.NoError(t, err)

	// Hold the runner in Resolve until the database is gone, so the
	// 100-record checkpoint cannot read the stop status.
	proceed := make(chan struct{})
	f.session.resolveFn = func(ref string) (remote.Entity, error) {
		<-proceed
		return remote.Entity{ID: 100, Title: "G"}, nil
	}
	f.session.historyFn = func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
		if offsetID >= 150 {
			return nil, nil
		}
		count := limit
		if remaining := 150 - int(offsetID); remaining < count {
			count = remaining
		}
		return historyMessages(int(offsetID)+1, count), nil
	}

	id, err := f.manager.StartExport("g1", "json")
	require.NoError(t, err)
	require.NoError(t, f.db.Close())
	close(proceed)

	snap := waitTerminal(t, f.manager, id)
	assert.Equal(t, domain.TaskCompleted, snap.Status)
	assert.True(t, logContains(snap, "could not check for a stop request"),
		"a failed checkpoint read must appear in the task narrative")
}

func TestExport_NotConnectedFails(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.store.AddGroup(domain.Group{Identifier: "g1", Name: "G"})
	require.NoError(t, err)

	id, err := f.manager.StartExport("g1", "json")
	require.NoError(t, err)

	snap := waitTerminal(t, f.manager, id)
	assert.Equal(t, domain.TaskError, snap.Status)

	status, err := f.tasks.ExportStatus(id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskError, status)
}

func TestManager_GetUnknownTask(t *testing.T) {
	f := newFixture(t, false)
	_, ok := f.manager.Get("nope")
	assert.False(t, ok)
}

func TestManager_RequestStopTerminalTask(t *testing.T) {
	f := newFixture(t, true)

	f.session.historyFn = func(peerID, offsetID int64, limit int) ([]remote.HistoryMessage, error) {
		return nil, nil
	}
	_, err := f.store.AddGroup(domain.Group{Identifier: "g1", Name: "G"})
	require.NoError(t, err)

	id, err := f.manager.StartExport("g1", "json")
	require.NoError(t, err)
	waitTerminal(t, f.manager, id)

	assert.Error(t, f.manager.RequestStop(id))
}
