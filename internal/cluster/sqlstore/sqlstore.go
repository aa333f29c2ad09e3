// Package sqlstore provides a SQLite-backed implementation of
// cluster.Store. Canonical state, members and the validation report are
// written in one transaction so readers never observe a half-updated
// cluster.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kvollan/ridgeline/internal/cluster"
	"github.com/kvollan/ridgeline/internal/model"
)

// Store persists clusters in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs the embedded schema statement by statement.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(migrationsSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Put upserts a cluster and its members atomically.
func (s *Store) Put(ctx context.Context, c *model.Cluster) error {
	canonical, err := json.Marshal(c.Canonical)
	if err != nil {
		return fmt.Errorf("marshal canonical: %w", err)
	}
	sar, err := json.Marshal(c.SAR)
	if err != nil {
		return fmt.Errorf("marshal sar: %w", err)
	}

	coords := ""
	if c.Coords != nil {
		b, err := json.Marshal(c.Coords)
		if err != nil {
			return fmt.Errorf("marshal coords: %w", err)
		}
		coords = string(b)
	}

	report := ""
	if c.Report != nil {
		b, err := json.Marshal(c.Report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		report = string(b)
	}

	jurisdiction := c.Canonical[model.FieldJurisdiction].Value
	eventDate := c.Canonical[model.FieldDateOfDeath].Value
	if eventDate == "" {
		eventDate = c.Canonical[model.FieldDateEventStart].Value
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clusters (id, seq, status, created_at, merged_into, overall, jurisdiction, event_date, canonical, sar, coords, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			merged_into = excluded.merged_into,
			overall = excluded.overall,
			jurisdiction = excluded.jurisdiction,
			event_date = excluded.event_date,
			canonical = excluded.canonical,
			sar = excluded.sar,
			coords = excluded.coords,
			report = excluded.report`,
		c.ID, c.Seq, string(c.Status), c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.MergedInto, c.Overall, jurisdiction, eventDate,
		string(canonical), string(sar), coords, report,
	)
	if err != nil {
		return fmt.Errorf("upsert cluster: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE cluster_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for _, m := range c.Members {
		if m.Document == nil {
			continue
		}
		doc, err := json.Marshal(m.Document)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		rec, err := json.Marshal(m.Record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO members (cluster_id, url_key, document, record) VALUES (?, ?, ?, ?)`,
			c.ID, m.Document.URLKey, string(doc), string(rec),
		)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get retrieves a cluster by ID.
func (s *Store) Get(ctx context.Context, id string) (*model.Cluster, bool, error) {
	row := s.db.QueryRowContext(ctx, selectClusters+` WHERE id = ?`, id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.loadMembers(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// GetByURLKey retrieves the cluster holding a document with the given URL
// key, following merge pointers to the live cluster.
func (s *Store) GetByURLKey(ctx context.Context, urlKey string) (*model.Cluster, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT cluster_id FROM members WHERE url_key = ? LIMIT 1`, urlKey).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	for seen := map[string]bool{}; !seen[id]; {
		seen[id] = true
		c, ok, err := s.Get(ctx, id)
		if err != nil || !ok {
			return nil, false, err
		}
		if c.Status != model.StatusMerged || c.MergedInto == "" {
			return c, true, nil
		}
		id = c.MergedInto
	}
	return nil, false, fmt.Errorf("merge pointer cycle at cluster %s", id)
}

// List returns clusters passing the filter, ordered by creation sequence.
func (s *Store) List(ctx context.Context, f cluster.Filter) ([]*model.Cluster, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Cluster
	for _, c := range all {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Load returns every stored cluster, ordered by creation sequence.
func (s *Store) Load(ctx context.Context) ([]*model.Cluster, error) {
	rows, err := s.db.QueryContext(ctx, selectClusters+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		if err := s.loadMembers(ctx, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const selectClusters = `SELECT id, seq, status, created_at, merged_into, overall, canonical, sar, coords, report FROM clusters`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCluster(row rowScanner) (*model.Cluster, error) {
	var (
		c         model.Cluster
		status    string
		createdAt string
		canonical string
		sar       string
		coords    string
		report    string
	)
	err := row.Scan(&c.ID, &c.Seq, &status, &createdAt, &c.MergedInto, &c.Overall, &canonical, &sar, &coords, &report)
	if err != nil {
		return nil, err
	}

	c.Status = model.ClusterStatus(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		c.CreatedAt = t
	}
	if err := json.Unmarshal([]byte(canonical), &c.Canonical); err != nil {
		return nil, fmt.Errorf("decode canonical for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(sar), &c.SAR); err != nil {
		return nil, fmt.Errorf("decode sar for %s: %w", c.ID, err)
	}
	if coords != "" {
		c.Coords = &model.LatLon{}
		if err := json.Unmarshal([]byte(coords), c.Coords); err != nil {
			return nil, fmt.Errorf("decode coords for %s: %w", c.ID, err)
		}
	}
	if report != "" {
		c.Report = &model.ValidationReport{}
		if err := json.Unmarshal([]byte(report), c.Report); err != nil {
			return nil, fmt.Errorf("decode report for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (s *Store) loadMembers(ctx context.Context, c *model.Cluster) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document, record FROM members WHERE cluster_id = ? ORDER BY url_key`, c.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var doc, rec string
		if err := rows.Scan(&doc, &rec); err != nil {
			return err
		}
		var m model.Member
		m.Document = &model.Document{}
		if err := json.Unmarshal([]byte(doc), m.Document); err != nil {
			return fmt.Errorf("decode member document: %w", err)
		}
		m.Record = &model.CandidateRecord{}
		if err := json.Unmarshal([]byte(rec), m.Record); err != nil {
			return fmt.Errorf("decode member record: %w", err)
		}
		c.Members = append(c.Members, m)
	}
	return rows.Err()
}
