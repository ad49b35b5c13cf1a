package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS leads (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	name          TEXT    NOT NULL,
	email         TEXT    NOT NULL,
	phone         TEXT,
	company       TEXT    NOT NULL,
	role          TEXT    NOT NULL,
	location      TEXT    NOT NULL,
	score         INTEGER NOT NULL,
	created_at_ns INTEGER NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS leads (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT    NOT NULL UNIQUE,
	name          TEXT    NOT NULL,
	email         TEXT    NOT NULL,
	phone         TEXT,
	company       TEXT    NOT NULL,
	role          TEXT    NOT NULL,
	location      TEXT    NOT NULL,
	score         INTEGER NOT NULL,
	created_at_ns BIGINT  NOT NULL
)`

const (
	leadColumns = `id, name, email, phone, company, role, location, score, created_at_ns`

	leadsInsert = `INSERT INTO leads (` + leadColumns + `)
VALUES (:id, :name, :email, :phone, :company, :role, :location, :score, :created_at_ns)`

	leadsSelectAll  = `SELECT seq, ` + leadColumns + ` FROM leads ORDER BY seq`
	leadsSelectByID = `SELECT seq, ` + leadColumns + ` FROM leads WHERE id = ?`
	leadsCount      = `SELECT COUNT(*) FROM leads`
	leadsLatest     = `SELECT COALESCE(MAX(created_at_ns), 0) FROM leads`
)

type leadRow struct {
	Seq         int64          `db:"seq"`
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Email       string         `db:"email"`
	Phone       sql.NullString `db:"phone"`
	Company     string         `db:"company"`
	Role        string         `db:"role"`
	Location    string         `db:"location"`
	Score       int            `db:"score"`
	CreatedAtNS int64          `db:"created_at_ns"`
}

func rowOf(l schema.Lead) leadRow {
	r := leadRow{
		ID:          l.ID,
		Name:        l.Name,
		Email:       l.Email,
		Company:     l.Company,
		Role:        l.Role,
		Location:    l.Location,
		Score:       l.Score,
		CreatedAtNS: l.Timestamp.UnixNano(),
	}
	if l.Phone != nil {
		r.Phone = sql.NullString{String: *l.Phone, Valid: true}
	}
	return r
}

func (r leadRow) lead() schema.Lead {
	l := schema.Lead{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Company:   r.Company,
		Role:      r.Role,
		Location:  r.Location,
		Score:     r.Score,
		Timestamp: time.Unix(0, r.CreatedAtNS).UTC(),
	}
	if r.Phone.Valid {
		p := r.Phone.String
		l.Phone = &p
	}
	return l
}

// SQLStore keeps leads in a relational table, ordered by an autoincrement key.
type SQLStore struct {
	db    *sqlx.DB
	clock *clock

	// Serializes inserts from this process so seq order matches timestamp order.
	mu sync.Mutex
}

// OpenSQLite opens (or creates) a sqlite database file.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite typically wants 1 writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQLStore(ctx, db, sqliteSchema)
}

// OpenPostgres connects to a postgres database.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQLStore(ctx, db, postgresSchema)
}

func newSQLStore(ctx context.Context, db *sqlx.DB, ddl string) (*SQLStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", db.DriverName(), err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create leads table: %w", err)
	}

	s := &SQLStore{db: db, clock: newClock(nil)}
	var latest int64
	if err := db.GetContext(ctx, &latest, leadsLatest); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read latest lead: %w", err)
	}
	if latest > 0 {
		s.clock.observe(time.Unix(0, latest))
	}
	return s, nil
}

func (s *SQLStore) Create(ctx context.Context, in schema.LeadInput) (schema.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead := in.Lead(newID(), s.clock.next())
	if _, err := s.db.NamedExecContext(ctx, leadsInsert, rowOf(lead)); err != nil {
		return schema.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return lead, nil
}

func (s *SQLStore) ListAll(ctx context.Context) ([]schema.Lead, error) {
	var rows []leadRow
	if err := s.db.SelectContext(ctx, &rows, leadsSelectAll); err != nil {
		return nil, fmt.Errorf("select leads: %w", err)
	}
	out := make([]schema.Lead, len(rows))
	for i, r := range rows {
		out[i] = r.lead()
	}
	return out, nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (schema.Lead, error) {
	var r leadRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(leadsSelectByID), id)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Lead{}, schema.ErrLeadNotFound
	}
	if err != nil {
		return schema.Lead{}, fmt.Errorf("select lead %s: %w", id, err)
	}
	return r.lead(), nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, leadsCount); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
