package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/store"
)

// Notifier is the outbound alert capability consumed by the pipeline.
type Notifier interface {
	Notify(target, secret, title, body string, isTest bool) string
}

// Pipeline evaluates inbound message events against the monitored set.
// It runs on the session bridge's worker goroutine, one event at a time,
// so it must stay cheap: one store read pass, one insert, one webhook
// post with retries handled inside the HTTP client.
type Pipeline struct {
	store  *store.MonitorStore
	notify Notifier
	log    *logging.Logger
}

// NewPipeline creates the match pipeline.
func NewPipeline(st *store.MonitorStore, notify Notifier, log *logging.Logger) *Pipeline {
	return &Pipeline{
		store:  st,
		notify: notify,
		log:    log.Sub("monitor"),
	}
}

// HandleMessage processes one inbound event: resolve its group, evaluate
// keyword membership first-match-wins, persist the hit, and trigger the
// notifier. Notifier failures never cause the match to be lost.
func (p *Pipeline) HandleMessage(ev domain.MessageEvent) {
	groups, err := p.store.ListGroups()
	if err != nil {
		p.log.Error().Err(err).Msg("loading monitored groups")
		return
	}

	group, ok := resolveGroup(groups, ev)
	if !ok {
		p.log.Debug().
			Int64("chatId", ev.ChatID).
			Str("title", ev.ChatTitle).
			Msg("message from unmonitored chat, ignoring")
		return
	}

	keywords, err := p.store.KeywordsForGroup(group.ID)
	if err != nil {
		p.log.Error().Err(err).Int64("group", group.ID).Msg("loading keywords")
		return
	}
	if len(keywords) == 0 {
		p.log.Debug().Str("group", group.Name).Msg("group has no keywords configured")
		return
	}

	lower := strings.ToLower(ev.Text)
	var hit *domain.Keyword
	for i := range keywords {
		if strings.Contains(lower, strings.ToLower(keywords[i].Text)) {
			hit = &keywords[i]
			break
		}
	}
	if hit == nil {
		return
	}

	groupName := ev.ChatTitle
	if groupName == "" {
		groupName = group.Name
	}
	sender := ev.SenderLabel()

	match := domain.MatchedMessage{
		GroupName: groupName,
		Content:   ev.Text,
		Sender:    sender,
		Date:      ev.Date,
		Keyword:   hit.Text,
	}
	if err := p.store.InsertMatch(match); err != nil {
		p.log.Error().Err(err).Msg("persisting matched message")
		return
	}
	p.log.Info().
		Str("group", groupName).
		Str("keyword", hit.Text).
		Msg("keyword matched")

	target, secret := p.webhookFor(group)
	if target == "" {
		return
	}

	title := fmt.Sprintf("Keyword %q triggered", hit.Text)
	body := formatAlert(groupName, sender, hit.Text, ev.Text)
	outcome := p.notify.Notify(target, secret, title, body, false)
	if outcome != "sent" {
		p.log.Warn().Str("outcome", outcome).Msg("alert delivery failed")
	}
}

// resolveGroup finds the monitored group for an event: first by canonical
// identifier, then by raw username. When several stored entries normalize
// to the same key, the first in stored order wins.
func resolveGroup(groups []domain.Group, ev domain.MessageEvent) (domain.Group, bool) {
	canonical := Normalize(strconv.FormatInt(ev.ChatID, 10))
	for _, g := range groups {
		if Normalize(g.Identifier) == canonical {
			return g, true
		}
	}
	if ev.ChatUsername != "" {
		for _, g := range groups {
			if g.Identifier == ev.ChatUsername {
				return g, true
			}
		}
	}
	return domain.Group{}, false
}

// webhookFor resolves the notification target: the group's own override,
// falling back to the global settings row.
func (p *Pipeline) webhookFor(g domain.Group) (target, secret string) {
	if g.WebhookURL != "" {
		return g.WebhookURL, g.WebhookSecret
	}
	settings, err := p.store.Settings()
	if err != nil {
		p.log.Error().Err(err).Msg("loading settings")
		return "", ""
	}
	return settings.WebhookURL, settings.WebhookSecret
}

func formatAlert(group, sender, keyword, content string) string {
	if sender == "" {
		sender = "N/A"
	}
	return fmt.Sprintf(
		"#### **Keyword alert**\n\n"+
			"> **Group**: %s\n\n"+
			"> **Sender**: %s\n\n"+
			"> **Keyword**: %s\n\n"+
			"> **Message**: %s\n",
		group, sender, keyword, content,
	)
}
