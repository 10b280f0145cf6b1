package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/remote"
	"github.com/Kalinx99/TelScan/internal/store"
)

// Refresher periodically re-resolves every monitored group through the
// session bridge, picking up renamed groups and new profile photos.
type Refresher struct {
	store         *store.MonitorStore
	bridge        *bridge.Bridge
	logosDir      string
	submitTimeout time.Duration
	log           *logging.Logger
	cron          *cron.Cron
}

// NewRefresher creates the profile refresh job.
func NewRefresher(st *store.MonitorStore, br *bridge.Bridge, logosDir string, submitTimeout time.Duration, log *logging.Logger) *Refresher {
	if submitTimeout <= 0 {
		submitTimeout = 45 * time.Second
	}
	return &Refresher{
		store:         st,
		bridge:        br,
		logosDir:      logosDir,
		submitTimeout: submitTimeout,
		log:           log.Sub("refresh"),
	}
}

// Start schedules the refresh on the given cron spec (e.g. "@hourly").
func (r *Refresher) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, r.RefreshAll); err != nil {
		return fmt.Errorf("scheduling profile refresh: %w", err)
	}
	c.Start()
	r.cron = c
	r.log.Info().Str("schedule", schedule).Msg("profile refresh scheduled")
	return nil
}

// Stop cancels the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RefreshAll walks all monitored groups once. Per-group failures are
// logged and skipped; the session being down skips the whole pass.
func (r *Refresher) RefreshAll() {
	groups, err := r.store.ListGroups()
	if err != nil {
		r.log.Error().Err(err).Msg("loading groups for refresh")
		return
	}
	if len(groups) == 0 {
		return
	}

	r.log.Info().Int("groups", len(groups)).Msg("starting profile refresh")
	updated := 0

	for _, g := range groups {
		ref := Normalize(g.Identifier)
		res, err := r.bridge.Submit(context.Background(), func(ctx context.Context, s remote.Session) (any, error) {
			return s.Resolve(ctx, ref)
		}, r.submitTimeout)
		if err == bridge.ErrNotConnected {
			r.log.Warn().Msg("session not connected, skipping refresh pass")
			return
		}
		if err != nil {
			r.log.Error().Err(err).Str("group", g.Name).Msg("could not resolve group")
			continue
		}
		ent := res.(remote.Entity)

		logoPath, err := r.downloadLogo(ent.ID)
		if err != nil {
			r.log.Debug().Err(err).Str("group", g.Name).Msg("no profile photo update")
		}

		if ent.Title != g.Name || (logoPath != "" && logoPath != g.LogoPath) {
			name := ent.Title
			if name == "" {
				name = g.Name
			}
			if err := r.store.UpdateGroupProfile(g.ID, name, logoPath); err != nil {
				r.log.Error().Err(err).Str("group", g.Name).Msg("updating group profile")
				continue
			}
			updated++
			r.log.Info().Str("group", name).Msg("group profile updated")
		}
	}

	r.log.Info().Int("updated", updated).Msg("profile refresh finished")
}

// downloadLogo fetches the entity's profile photo and writes it under the
// logos directory. Returns the relative path, or "" when there is no
// photo.
func (r *Refresher) downloadLogo(peerID int64) (string, error) {
	res, err := r.bridge.Submit(context.Background(), func(ctx context.Context, s remote.Session) (any, error) {
		return s.ProfilePhoto(ctx, peerID)
	}, r.submitTimeout)
	if err != nil {
		return "", err
	}
	data := res.([]byte)
	if len(data) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(r.logosDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d.jpg", peerID)
	if err := os.WriteFile(filepath.Join(r.logosDir, name), data, 0o644); err != nil {
		return "", err
	}
	return filepath.Join("logos", name), nil
}
