package jobs

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/monitor"
	"github.com/Kalinx99/TelScan/internal/remote"
)

const (
	exportPageSize = 100
	// stopCheckInterval is how many records pass between re-reads of the
	// persisted task row. A stop request lands in the row; the runner
	// only sees it at these checkpoints.
	stopCheckInterval = 100
)

// exportRecord is one exported message row.
type exportRecord struct {
	MessageID int64  `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Date      string `json:"date"`
	ReplyToID *int64 `json:"reply_to_message_id"`
}

// StartExport launches a background job that pages through a group's full
// message history and writes it to a JSON or CSV file.
func (m *Manager) StartExport(groupIdentifier, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "csv" {
		return "", fmt.Errorf("unsupported export format %q", format)
	}

	group, err := m.store.GroupByIdentifier(groupIdentifier)
	if err != nil {
		return "", fmt.Errorf("group %q is not monitored", groupIdentifier)
	}

	id := m.newTask(domain.TaskExport, 0, fmt.Sprintf("export created for %q (%s)", group.Name, format))
	if err := m.tasks.CreateExport(id, group.Identifier, group.Name); err != nil {
		m.setStatus(id, domain.TaskError)
		return "", fmt.Errorf("persisting export task: %w", err)
	}

	go m.runExport(id, group, format)
	return id, nil
}

func (m *Manager) runExport(id string, group domain.Group, format string) {
	m.setStatus(id, domain.TaskRunning)
	if err := m.tasks.SetExportStatus(id, domain.TaskRunning); err != nil {
		m.log.Error().Err(err).Str("task", id).Msg("marking export running")
	}

	fail := func(msg string, err error) {
		m.appendLog(id, fmt.Sprintf("%s: %v", msg, err))
		m.setStatus(id, domain.TaskError)
		if serr := m.tasks.SetExportStatus(id, domain.TaskError); serr != nil {
			m.log.Error().Err(serr).Str("task", id).Msg("marking export failed")
		}
	}

	ref := monitor.Normalize(group.Identifier)
	res, err := m.bridge.Submit(context.Background(), func(ctx context.Context, s remote.Session) (any, error) {
		return s.Resolve(ctx, ref)
	}, m.submitTimeout)
	if err != nil {
		fail("resolving group", err)
		return
	}
	ent := res.(remote.Entity)
	m.appendLog(id, fmt.Sprintf("resolved %q, fetching history", ent.Title))

	groupTitle := ent.Title
	if groupTitle == "" {
		groupTitle = group.Name
	}

	var records []exportRecord
	var offsetID int64

	for {
		res, err := m.bridge.Submit(context.Background(), func(ctx context.Context, s remote.Session) (any, error) {
			return s.History(ctx, ent.ID, offsetID, exportPageSize)
		}, m.submitTimeout)
		if err != nil {
			fail("fetching history page", err)
			return
		}
		page := res.([]remote.HistoryMessage)
		if len(page) == 0 {
			break
		}

		for _, msg := range page {
			records = append(records, toRecord(msg, groupTitle))
			offsetID = msg.ID

			if len(records)%stopCheckInterval == 0 {
				m.setProgress(id, len(records))
				m.appendLog(id, fmt.Sprintf("fetched %d messages", len(records)))

				status, err := m.tasks.ExportStatus(id)
				if err != nil {
					// The row is the stop channel; a failed read means a
					// stop request may go unseen until the next checkpoint.
					m.appendLog(id, fmt.Sprintf("could not check for a stop request: %v", err))
					m.log.Error().Err(err).Str("task", id).Msg("reading export status")
					continue
				}
				if status == domain.TaskStopped {
					m.appendLog(id, fmt.Sprintf("stopped early at %d messages, no file written", len(records)))
					m.setStatus(id, domain.TaskStopped)
					return
				}
			}
		}
	}

	m.setProgress(id, len(records))
	m.appendLog(id, fmt.Sprintf("history complete: %d messages, writing %s file", len(records), format))

	path, err := m.writeExportFile(group.Name, format, records)
	if err != nil {
		fail("writing export file", err)
		return
	}

	m.setResult(id, path, len(records))
	if err := m.tasks.SetExportResult(id, path); err != nil {
		m.log.Error().Err(err).Str("task", id).Msg("persisting export result")
	}
	m.setStatus(id, domain.TaskCompleted)
	if err := m.tasks.SetExportStatus(id, domain.TaskCompleted); err != nil {
		m.log.Error().Err(err).Str("task", id).Msg("marking export completed")
	}
	m.appendLog(id, fmt.Sprintf("export finished: %d messages in %s", len(records), filepath.Base(path)))
	m.log.Info().Str("task", id).Int("records", len(records)).Str("file", path).Msg("export completed")
}

// toRecord flattens a history message. Messages with no text but an
// attachment get a placeholder so the row is not empty.
func toRecord(msg remote.HistoryMessage, groupTitle string) exportRecord {
	text := msg.Text
	if text == "" {
		switch {
		case msg.HasPhoto:
			text = "[photo]"
		case msg.HasVideo:
			text = "[video]"
		}
	}
	rec := exportRecord{
		MessageID: msg.ID,
		Sender:    senderLabel(msg, groupTitle),
		Text:      text,
		Date:      msg.Date.UTC().Format(time.RFC3339),
	}
	if msg.ReplyToID != 0 {
		reply := msg.ReplyToID
		rec.ReplyToID = &reply
	}
	return rec
}

// senderLabel picks a display label for the message author: handle,
// then real name, then the group's title for anonymous posts.
func senderLabel(msg remote.HistoryMessage, fallback string) string {
	if msg.SenderUsername != "" {
		return msg.SenderUsername
	}
	if name := strings.TrimSpace(msg.SenderFirstName + " " + msg.SenderLastName); name != "" {
		return name
	}
	return fallback
}

// writeExportFile writes the records under the configured export
// directory and returns the file path.
func (m *Manager) writeExportFile(groupName, format string, records []exportRecord) (string, error) {
	if err := os.MkdirAll(m.cfg.ExportDir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.%s", sanitizeFilename(groupName), time.Now().Format("20060102_150405"), format)
	path := filepath.Join(m.cfg.ExportDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch format {
	case "json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []exportRecord{}
		}
		if err := enc.Encode(records); err != nil {
			return "", err
		}
	case "csv":
		// BOM so spreadsheet tools detect UTF-8.
		if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return "", err
		}
		w := csv.NewWriter(f)
		if err := w.Write([]string{"message_id", "sender", "text", "date", "reply_to_message_id"}); err != nil {
			return "", err
		}
		for _, rec := range records {
			reply := ""
			if rec.ReplyToID != nil {
				reply = strconv.FormatInt(*rec.ReplyToID, 10)
			}
			row := []string{strconv.FormatInt(rec.MessageID, 10), rec.Sender, rec.Text, rec.Date, reply}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", err
		}
	default:
		return "", errors.New("unsupported format")
	}

	if err := f.Sync(); err != nil {
		return "", err
	}
	return path, nil
}

// sanitizeFilename keeps letters, digits, spaces and underscores from the
// group name; anything else is dropped. Spaces collapse to underscores.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "export"
	}
	return out
}
