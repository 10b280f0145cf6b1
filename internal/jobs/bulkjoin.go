package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/monitor"
	"github.com/Kalinx99/TelScan/internal/remote"
)

// StartBulkJoin launches a background job that joins the given links in
// order, sleeping the configured delay between attempts. Delays below the
// safety floor are coerced upward.
func (m *Manager) StartBulkJoin(links []string, delaySeconds int) (string, error) {
	if len(links) == 0 {
		return "", errors.New("link list is empty")
	}

	if delaySeconds <= 0 {
		delaySeconds = m.cfg.JoinDelayDefaultSeconds
	}
	delay := time.Duration(delaySeconds) * time.Second
	floor := time.Duration(m.cfg.JoinDelayFloorSeconds) * time.Second

	id := m.newTask(domain.TaskBulkJoin, len(links), fmt.Sprintf("bulk join created: %d links", len(links)))

	if delay < floor {
		m.appendLog(id, fmt.Sprintf("requested delay %s is below the safety floor, using %s", delay, floor))
		delay = floor
	}

	go m.runBulkJoin(id, links, delay)
	return id, nil
}

// runBulkJoin is the job body. It classifies each attempt's outcome;
// only too-many-memberships and a lost connection abort the whole job.
func (m *Manager) runBulkJoin(id string, links []string, delay time.Duration) {
	m.setStatus(id, domain.TaskRunning)
	joined := 0

	for i, link := range links {
		if m.stopRequested(id) {
			m.appendLog(id, "stop observed, aborting remaining links")
			m.setStatus(id, domain.TaskStopped)
			return
		}

		ref := monitor.Normalize(link)
		res, err := m.bridge.Submit(context.Background(), func(ctx context.Context, s remote.Session) (any, error) {
			return s.Join(ctx, ref)
		}, m.submitTimeout)

		switch {
		case err == nil:
			ent := res.(remote.Entity)
			joined++
			m.appendLog(id, fmt.Sprintf("joined %q", ent.Title))

		case errors.Is(err, bridge.ErrNotConnected):
			m.appendLog(id, "session lost, aborting job: "+err.Error())
			m.setStatus(id, domain.TaskError)
			return

		case errors.Is(err, bridge.ErrTimeout) && i == 0:
			m.appendLog(id, "first remote call timed out, aborting job")
			m.setStatus(id, domain.TaskError)
			return

		case errors.Is(err, bridge.ErrTimeout):
			m.appendLog(id, fmt.Sprintf("timed out joining %q, continuing", link))

		default:
			fatal := m.classifyJoinFailure(id, link, err)
			if fatal {
				m.setStatus(id, domain.TaskError)
				return
			}
		}

		m.setProgress(id, i+1)

		if i < len(links)-1 {
			m.sleep(delay)
		}
	}

	m.appendLog(id, fmt.Sprintf("bulk join finished: %d of %d joined", joined, len(links)))
	m.setStatus(id, domain.TaskCompleted)
	m.log.Info().Str("task", id).Int("joined", joined).Msg("bulk join completed")
}

// classifyJoinFailure logs one attempt's failure and reports whether it
// is fatal to the whole job.
func (m *Manager) classifyJoinFailure(id, link string, err error) bool {
	re, ok := remote.AsError(err)
	if !ok {
		m.appendLog(id, fmt.Sprintf("unexpected error for %q: %v", link, err))
		return false
	}

	switch re.Kind {
	case remote.KindAlreadyMember:
		m.appendLog(id, fmt.Sprintf("already a member of %q, skipping", link))
	case remote.KindPrivate:
		m.appendLog(id, fmt.Sprintf("%q is private or forbidden, skipping", link))
	case remote.KindFloodWait:
		// Policy: log the demanded wait but only sleep the regular
		// delay; the next attempt may fail the same way.
		m.appendLog(id, fmt.Sprintf("rate limited on %q: service demands a %s wait", link, re.Wait))
	case remote.KindTooManyChannels:
		m.appendLog(id, "account has joined too many channels, aborting job")
		return true
	case remote.KindNotFound:
		m.appendLog(id, fmt.Sprintf("%q is malformed or does not exist, skipping", link))
	default:
		m.appendLog(id, fmt.Sprintf("unclassified error for %q: %s", link, re.Message))
	}
	return false
}
