package storyweaver

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists rated stories in a local sqlite database. Reads are
// fail-soft: a broken database yields an empty listing and a log line, not
// an error that reaches the UI.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func OpenSQLiteStore(path string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening story db: %w", err)
	}
	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS stories (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		text   TEXT    NOT NULL,
		image  TEXT    NOT NULL,
		rating INTEGER NOT NULL,
		date   TEXT    NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrating story db: %w", err)
	}
	return nil
}

// Append inserts one finished story.
func (s *SQLiteStore) Append(art StoryArtifact) error {
	_, err := s.db.Exec(
		`INSERT INTO stories (text, image, rating, date) VALUES (?, ?, ?, ?)`,
		art.Text, art.Image, art.Rating, art.Date.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

// ListAll returns every saved story in append order, most recent last.
func (s *SQLiteStore) ListAll() []StoryArtifact {
	return s.query(`SELECT text, image, rating, date FROM stories ORDER BY id ASC`)
}

// ListBest returns the highest-rated stories, ties broken newest first.
func (s *SQLiteStore) ListBest(limit int) []StoryArtifact {
	if limit <= 0 {
		limit = 10
	}
	return s.query(
		`SELECT text, image, rating, date FROM stories ORDER BY rating DESC, id DESC LIMIT ?`,
		limit,
	)
}

func (s *SQLiteStore) query(q string, args ...any) []StoryArtifact {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		s.log.Warn().Err(err).Msg("story listing failed")
		return nil
	}
	defer rows.Close()

	var out []StoryArtifact
	for rows.Next() {
		var art StoryArtifact
		var date string
		if err := rows.Scan(&art.Text, &art.Image, &art.Rating, &date); err != nil {
			// Skip the bad row, keep the rest.
			s.log.Warn().Err(err).Msg("skipping unreadable story row")
			continue
		}
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			art.Date = t
		}
		out = append(out, art)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn().Err(err).Msg("story listing interrupted")
	}
	return out
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
