package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lidco/lidco/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	category   TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	seq        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category, seq);
`

// recentPerCategory is how many entries of each category the prompt
// context shows.
const recentPerCategory = 5

// Options configures a SQLiteStore.
type Options struct {
	// MaxEntries caps each category; the oldest entries are pruned on Add.
	MaxEntries int
	// OverlayFiles are MEMORY.md candidates, lowest precedence first. The
	// last non-empty one is rendered at the top of the prompt context.
	OverlayFiles []string
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	maxEntries int
	overlay    string
	mu         sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// DefaultPath returns ~/.lidco/memory/memory.db.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lidco", "memory", "memory.db")
}

// DefaultOverlayFiles lists the MEMORY.md locations for a project.
func DefaultOverlayFiles(projectDir string) []string {
	var files []string
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".lidco", "memory", "MEMORY.md"))
	}
	if projectDir != "" {
		files = append(files, filepath.Join(projectDir, ".lidco", "memory", "MEMORY.md"))
	}
	return files
}

// Open opens (creating if needed) the store at path.
func Open(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent Adds.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memory schema: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		path:       path,
		maxEntries: opts.MaxEntries,
		overlay:    readOverlay(opts.OverlayFiles),
	}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}
	return s, nil
}

func readOverlay(paths []string) string {
	var overlay string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.WarnCF("memory", "Failed to read memory overlay", map[string]any{
					"path":  p,
					"error": err.Error(),
				})
			}
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			overlay = text
		}
	}
	return overlay
}

func (s *SQLiteStore) Path() string { return s.path }

// Overlay returns the MEMORY.md text in effect, if any.
func (s *SQLiteStore) Overlay() string { return s.overlay }

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) Add(ctx context.Context, e Entry) (Entry, error) {
	if e.Key == "" {
		return Entry{}, errors.New("memory key is empty")
	}
	if e.Category == "" {
		e.Category = CategoryGeneral
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(nonNil(e.Tags))
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO entries (key, content, category, tags, created_at, source, seq)
VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entries))
ON CONFLICT(key) DO UPDATE SET
	content = excluded.content,
	category = excluded.category,
	tags = excluded.tags,
	created_at = excluded.created_at,
	source = excluded.source,
	seq = excluded.seq`,
		e.Key, e.Content, e.Category, string(tags), formatTime(e.CreatedAt), e.Source)
	if err != nil {
		return Entry{}, fmt.Errorf("insert memory %q: %w", e.Key, err)
	}

	res, err := tx.ExecContext(ctx, `
DELETE FROM entries WHERE category = ? AND seq NOT IN (
	SELECT seq FROM entries WHERE category = ? ORDER BY seq DESC LIMIT ?
)`, e.Category, e.Category, s.maxEntries)
	if err != nil {
		return Entry{}, fmt.Errorf("prune memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, err
	}

	if pruned, _ := res.RowsAffected(); pruned > 0 {
		logger.DebugCF("memory", "Pruned old entries", map[string]any{
			"category": e.Category,
			"pruned":   pruned,
		})
	}
	return e, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, content, category, tags, created_at, source FROM entries WHERE key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	candidates, err := s.List(ctx, opts.Category)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var out []Entry
	for _, e := range candidates {
		if len(opts.Tags) > 0 && !e.HasTag(opts.Tags...) {
			continue
		}
		if !strings.Contains(strings.ToLower(e.Content), q) && !strings.Contains(strings.ToLower(e.Key), q) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) List(ctx context.Context, category string) ([]Entry, error) {
	query := `SELECT key, content, category, tags, created_at, source FROM entries ORDER BY seq`
	var args []any
	if category != "" {
		query = `SELECT key, content, category, tags, created_at, source FROM entries WHERE category = ? ORDER BY seq`
		args = append(args, category)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// BuildContextString renders the overlay under "## Persistent Memory"
// followed by the newest entries of each category.
func (s *SQLiteStore) BuildContextString(ctx context.Context, maxLines int) (string, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	entries, err := s.List(ctx, "")
	if err != nil {
		return "", err
	}

	var parts []string
	if s.overlay != "" {
		parts = append(parts, "## Persistent Memory\n"+s.overlay)
	}

	byCategory := make(map[string][]Entry)
	for _, e := range entries {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, c := range categories {
		parts = append(parts, "\n### "+title(c))
		list := byCategory[c]
		if len(list) > recentPerCategory {
			list = list[len(list)-recentPerCategory:]
		}
		for _, e := range list {
			tags := ""
			if len(e.Tags) > 0 {
				tags = " [" + strings.Join(e.Tags, ", ") + "]"
			}
			parts = append(parts, fmt.Sprintf("- **%s**%s: %s", e.Key, tags, e.Content))
		}
	}

	lines := strings.Split(strings.Join(parts, "\n"), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "\n... (memory truncated)")
	}
	return strings.Join(lines, "\n"), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		tags    string
		created string
	)
	if err := row.Scan(&e.Key, &e.Content, &e.Category, &tags, &created, &e.Source); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return Entry{}, fmt.Errorf("decode tags of %q: %w", e.Key, err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
