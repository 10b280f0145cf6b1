package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kalinx99/TelScan/internal/domain"
)

// MonitorStore reads and writes the monitoring entities: groups, keywords,
// matched messages, and the global notification settings.
type MonitorStore struct {
	db *DB
}

// NewMonitorStore creates a monitor store using the given database.
func NewMonitorStore(db *DB) *MonitorStore {
	return &MonitorStore{db: db}
}

// Settings returns the global notification settings.
func (s *MonitorStore) Settings() (domain.Settings, error) {
	var set domain.Settings
	err := s.db.sql.QueryRow(
		`SELECT webhook_url, webhook_secret FROM settings WHERE id = 1`,
	).Scan(&set.WebhookURL, &set.WebhookSecret)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	return set, nil
}

// SaveSettings replaces the global notification settings.
func (s *MonitorStore) SaveSettings(set domain.Settings) error {
	_, err := s.db.sql.Exec(
		`UPDATE settings SET webhook_url = ?, webhook_secret = ? WHERE id = 1`,
		set.WebhookURL, set.WebhookSecret,
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// AddGroup inserts a monitored group and returns it with its id set.
func (s *MonitorStore) AddGroup(g domain.Group) (domain.Group, error) {
	res, err := s.db.sql.Exec(
		`INSERT INTO monitored_groups (identifier, name, logo_path, webhook_url, webhook_secret)
		 VALUES (?, ?, ?, ?, ?)`,
		g.Identifier, g.Name, g.LogoPath, g.WebhookURL, g.WebhookSecret,
	)
	if err != nil {
		return g, fmt.Errorf("inserting group %q: %w", g.Identifier, err)
	}
	g.ID, _ = res.LastInsertId()
	return g, nil
}

// ListGroups returns all monitored groups in stored order. Lookup code
// relies on this ordering for deterministic first-match resolution.
func (s *MonitorStore) ListGroups() ([]domain.Group, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, identifier, name, logo_path, webhook_url, webhook_secret
		 FROM monitored_groups ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Identifier, &g.Name, &g.LogoPath, &g.WebhookURL, &g.WebhookSecret); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupByIdentifier returns the group stored under the exact identifier.
func (s *MonitorStore) GroupByIdentifier(identifier string) (domain.Group, error) {
	var g domain.Group
	err := s.db.sql.QueryRow(
		`SELECT id, identifier, name, logo_path, webhook_url, webhook_secret
		 FROM monitored_groups WHERE identifier = ?`, identifier,
	).Scan(&g.ID, &g.Identifier, &g.Name, &g.LogoPath, &g.WebhookURL, &g.WebhookSecret)
	if err == sql.ErrNoRows {
		return g, fmt.Errorf("group %q not found", identifier)
	}
	if err != nil {
		return g, fmt.Errorf("loading group %q: %w", identifier, err)
	}
	return g, nil
}

// UpdateGroupProfile updates the display name and logo path of a group.
// Empty logoPath leaves the stored path untouched.
func (s *MonitorStore) UpdateGroupProfile(id int64, name, logoPath string) error {
	var err error
	if logoPath == "" {
		_, err = s.db.sql.Exec(`UPDATE monitored_groups SET name = ? WHERE id = ?`, name, id)
	} else {
		_, err = s.db.sql.Exec(`UPDATE monitored_groups SET name = ?, logo_path = ? WHERE id = ?`, name, logoPath, id)
	}
	if err != nil {
		return fmt.Errorf("updating group %d: %w", id, err)
	}
	return nil
}

// AddKeyword inserts a keyword and associates it with the given groups.
func (s *MonitorStore) AddKeyword(text string, groupIDs []int64) (domain.Keyword, error) {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return domain.Keyword{}, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO keywords (text) VALUES (?)`, text)
	if err != nil {
		return domain.Keyword{}, fmt.Errorf("inserting keyword %q: %w", text, err)
	}
	id, _ := res.LastInsertId()

	for _, gid := range groupIDs {
		if _, err := tx.Exec(
			`INSERT INTO keyword_groups (keyword_id, group_id) VALUES (?, ?)`, id, gid,
		); err != nil {
			return domain.Keyword{}, fmt.Errorf("linking keyword %q to group %d: %w", text, gid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Keyword{}, err
	}
	return domain.Keyword{ID: id, Text: text}, nil
}

// KeywordsForGroup returns the keywords watched in a group, in stored
// order. Match evaluation stops at the first hit, so order matters.
func (s *MonitorStore) KeywordsForGroup(groupID int64) ([]domain.Keyword, error) {
	rows, err := s.db.sql.Query(
		`SELECT k.id, k.text FROM keywords k
		 JOIN keyword_groups kg ON kg.keyword_id = k.id
		 WHERE kg.group_id = ? ORDER BY k.id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing keywords for group %d: %w", groupID, err)
	}
	defer rows.Close()

	var kws []domain.Keyword
	for rows.Next() {
		var k domain.Keyword
		if err := rows.Scan(&k.ID, &k.Text); err != nil {
			return nil, err
		}
		kws = append(kws, k)
	}
	return kws, rows.Err()
}

// InsertMatch appends one matched message record.
func (s *MonitorStore) InsertMatch(m domain.MatchedMessage) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO matched_messages (group_name, content, sender, matched_keyword, message_date)
		 VALUES (?, ?, ?, ?, ?)`,
		m.GroupName, m.Content, m.Sender, m.Keyword, m.Date.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting matched message: %w", err)
	}
	return nil
}

// RecentMatches returns the newest matched messages, most recent first.
func (s *MonitorStore) RecentMatches(limit int) ([]domain.MatchedMessage, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, group_name, content, sender, matched_keyword, message_date
		 FROM matched_messages ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchedMessage
	for rows.Next() {
		var m domain.MatchedMessage
		var date string
		if err := rows.Scan(&m.ID, &m.GroupName, &m.Content, &m.Sender, &m.Keyword, &date); err != nil {
			return nil, err
		}
		m.Date, _ = time.Parse(time.RFC3339, date)
		out = append(out, m)
	}
	return out, rows.Err()
}
