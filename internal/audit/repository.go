package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL flavour differences between the supported stores.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// sqlite keeps timestamps as fixed-width UTC text so range filters compare lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Open connects to databaseURL. postgres:// and postgresql:// use pgx; sqlite:
// and file: URLs (or a bare *.db path) use the embedded SQLite driver.
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dsn := strings.TrimSpace(databaseURL)
	var (
		driver  string
		dialect Dialect
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, dialect = "pgx", DialectPostgres
	case strings.HasPrefix(dsn, "sqlite:"):
		driver, dialect = "sqlite", DialectSQLite
		dsn = strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		driver, dialect = "sqlite", DialectSQLite
	default:
		return nil, "", fmt.Errorf("audit: unsupported database url %q", databaseURL)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("audit: open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

// Filter narrows List results. Zero times leave the range open.
type Filter struct {
	From  time.Time
	To    time.Time
	Site  string
	Limit int
}

// Repository reads and writes audit logs.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	if db == nil {
		return nil
	}
	if dialect == "" {
		dialect = DialectPostgres
	}
	return &Repository{db: db, dialect: dialect}
}

// EnsureSchema creates the audit table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	tsType := "TIMESTAMPTZ"
	if r.dialect == DialectSQLite {
		tsType = "TEXT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	role TEXT NOT NULL,
	action TEXT NOT NULL,
	site TEXT NOT NULL,
	verb TEXT NOT NULL,
	command TEXT NOT NULL,
	delivered BOOLEAN NOT NULL,
	status_code INTEGER NOT NULL,
	error TEXT NOT NULL,
	metadata TEXT NOT NULL,
	payload_digest TEXT NOT NULL,
	ip TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	created_at ` + tsType + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS audit_logs_created_at_idx ON audit_logs (created_at)`,
		`CREATE INDEX IF NOT EXISTS audit_logs_site_idx ON audit_logs (site, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit repo: schema: %w", err)
		}
	}
	return nil
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = []byte("{}")
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, r.rebind(`
INSERT INTO audit_logs (
	id, batch_id, actor, role, action, site, verb, command, delivered, status_code,
	error, metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?
)`), entry.ID, entry.BatchID, entry.Actor, entry.Role, entry.Action, entry.Site, entry.Verb, entry.Command,
		entry.Delivered, entry.StatusCode, entry.Error, string(entry.Metadata), entry.PayloadDigest,
		entry.IP, entry.UserAgent, r.timeArg(entry.CreatedAt))
	return err
}

// List returns entries in creation order.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, r.timeArg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, r.timeArg(filter.To))
	}
	if filter.Site != "" {
		where = append(where, "site = ?")
		args = append(args, filter.Site)
	}
	query := `
SELECT id, batch_id, actor, role, action, site, verb, command, delivered, status_code,
	error, metadata, payload_digest, ip, user_agent, created_at
FROM audit_logs`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY created_at, id"
	if filter.Limit > 0 {
		query += "\nLIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry    Entry
			metadata string
			created  timeValue
		)
		if err := rows.Scan(&entry.ID, &entry.BatchID, &entry.Actor, &entry.Role, &entry.Action, &entry.Site,
			&entry.Verb, &entry.Command, &entry.Delivered, &entry.StatusCode, &entry.Error, &metadata,
			&entry.PayloadDigest, &entry.IP, &entry.UserAgent, &created); err != nil {
			return nil, err
		}
		if metadata != "" {
			entry.Metadata = []byte(metadata)
		}
		entry.CreatedAt = created.Time
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) timeArg(t time.Time) any {
	if r.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

type timeValue struct {
	Time time.Time
}

func (v *timeValue) Scan(src any) error {
	switch value := src.(type) {
	case time.Time:
		v.Time = value.UTC()
		return nil
	case string:
		return v.parse(value)
	case []byte:
		return v.parse(string(value))
	case nil:
		v.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("audit repo: unsupported time value %T", src)
	}
}

func (v *timeValue) parse(value string) error {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return fmt.Errorf("audit repo: parse time %q: %w", value, err)
	}
	v.Time = parsed.UTC()
	return nil
}
