package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQL is a Registry backed by SQLite or Postgres. All interface methods are
// read-only; Seed exists for bootstrap and tests.
type SQL struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLite opens a SQLite-backed registry. dsn can be a file path or a
// SQLite DSN (":memory:" works for tests).
func NewSQLite(dsn string) (*SQL, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "meshgw-registry.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite registry: %w", err)
	}
	r := &SQL{db: db, dialect: dialectSQLite}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgres opens a Postgres-backed registry.
func NewPostgres(dsn string) (*SQL, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres registry: %w", err)
	}
	r := &SQL{db: db, dialect: dialectPostgres}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *SQL) Close() error { return r.db.Close() }

func (r *SQL) init() error {
	if err := r.db.Ping(); err != nil {
		return fmt.Errorf("ping %s registry: %w", r.dialect, err)
	}

	var joinRecordsID string
	switch r.dialect {
	case dialectPostgres:
		joinRecordsID = "id BIGSERIAL PRIMARY KEY"
	default:
		joinRecordsID = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	ddl := `
CREATE TABLE IF NOT EXISTS logic_modules (
	name TEXT PRIMARY KEY,
	schema_url TEXT NOT NULL,
	base_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS logic_module_models (
	service TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	lookup_field TEXT NOT NULL,
	PRIMARY KEY (service, endpoint)
);
CREATE TABLE IF NOT EXISTS relationships (
	key TEXT PRIMARY KEY,
	origin_service TEXT NOT NULL,
	origin_endpoint TEXT NOT NULL,
	related_service TEXT NOT NULL,
	related_endpoint TEXT NOT NULL,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS join_records (
	` + joinRecordsID + `,
	relationship TEXT NOT NULL,
	record_id BIGINT NULL,
	record_uuid TEXT NULL,
	related_record_id BIGINT NULL,
	related_record_uuid TEXT NULL
);
CREATE INDEX IF NOT EXISTS idx_join_records_relationship ON join_records(relationship);`

	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s registry schema: %w", r.dialect, err)
	}
	return nil
}

// Seed loads a registry document into the database. Existing rows are kept;
// callers wanting a clean slate should start from an empty database.
func (r *SQL) Seed(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed registry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range doc.Services {
		q := r.bind(`INSERT INTO logic_modules(name, schema_url, base_url) VALUES(?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, s.Name, s.SchemaURL, s.BaseURL); err != nil {
			return fmt.Errorf("seed service %q: %w", s.Name, err)
		}
	}
	for _, m := range doc.Models {
		// Endpoints are stored trimmed so lookups by URL fragment match.
		q := r.bind(`INSERT INTO logic_module_models(service, endpoint, lookup_field) VALUES(?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, m.Service, strings.Trim(m.Endpoint, "/"), m.LookupField); err != nil {
			return fmt.Errorf("seed model %s%s: %w", m.Service, m.Endpoint, err)
		}
	}
	for i, rel := range doc.Relationships {
		q := r.bind(`
INSERT INTO relationships(key, origin_service, origin_endpoint, related_service, related_endpoint, position)
VALUES(?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, rel.Key,
			rel.Origin.Service, rel.Origin.EndpointName(),
			rel.Related.Service, rel.Related.EndpointName(), i); err != nil {
			return fmt.Errorf("seed relationship %q: %w", rel.Key, err)
		}
	}
	for i, jr := range doc.JoinRecords {
		q := r.bind(`
INSERT INTO join_records(relationship, record_id, record_uuid, related_record_id, related_record_uuid)
VALUES(?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, jr.Relationship,
			jr.RecordID, jr.RecordUUID, jr.RelatedRecordID, jr.RelatedRecordUUID); err != nil {
			return fmt.Errorf("seed join record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LogicModule implements Registry.
func (r *SQL) LogicModule(ctx context.Context, name string) (*LogicModule, error) {
	q := r.bind(`SELECT name, schema_url, base_url FROM logic_modules WHERE name = ?`)
	var m LogicModule
	err := r.db.QueryRowContext(ctx, q, name).Scan(&m.Name, &m.SchemaURL, &m.BaseURL)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "service", Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("query service %q: %w", name, err)
	}
	return &m, nil
}

// Model implements Registry.
func (r *SQL) Model(ctx context.Context, service, endpoint string) (*Model, error) {
	q := r.bind(`
SELECT service, endpoint, lookup_field FROM logic_module_models
WHERE service = ? AND endpoint = ?`)
	var m Model
	err := r.db.QueryRowContext(ctx, q, service, strings.Trim(endpoint, "/")).Scan(&m.Service, &m.Endpoint, &m.LookupField)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "model", Name: service + endpoint}
	}
	if err != nil {
		return nil, fmt.Errorf("query model %s%s: %w", service, endpoint, err)
	}
	return &m, nil
}

// Relationships implements Registry.
func (r *SQL) Relationships(ctx context.Context, service, endpoint string) ([]Link, error) {
	q := r.bind(`
SELECT key, origin_service, origin_endpoint, related_service, related_endpoint
FROM relationships
WHERE (origin_service = ? AND origin_endpoint = ?)
   OR (related_service = ? AND related_endpoint = ?)
ORDER BY position`)

	name := strings.Trim(endpoint, "/")
	rows, err := r.db.QueryContext(ctx, q, service, name, service, name)
	if err != nil {
		return nil, fmt.Errorf("query relationships for %s%s: %w", service, endpoint, err)
	}
	defer func() { _ = rows.Close() }()

	ref := ModelRef{Service: service, Endpoint: name}
	var links []Link
	for rows.Next() {
		var rel Relationship
		if err := rows.Scan(&rel.Key,
			&rel.Origin.Service, &rel.Origin.Endpoint,
			&rel.Related.Service, &rel.Related.Endpoint); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		links = append(links, Link{Relationship: rel, Forward: rel.Origin == ref})
	}
	return links, rows.Err()
}

// JoinRecords implements Registry.
func (r *SQL) JoinRecords(ctx context.Context, originPK string, rel Relationship, forward bool) ([]JoinRecord, error) {
	idCol, uuidCol := "record_id", "record_uuid"
	if !forward {
		idCol, uuidCol = "related_record_id", "related_record_uuid"
	}

	var q string
	var args []any
	if id, err := strconv.ParseInt(originPK, 10, 64); err == nil {
		q = `
SELECT relationship, record_id, record_uuid, related_record_id, related_record_uuid
FROM join_records WHERE relationship = ? AND ` + idCol + ` = ? ORDER BY id`
		args = []any{rel.Key, id}
	} else {
		q = `
SELECT relationship, record_id, record_uuid, related_record_id, related_record_uuid
FROM join_records WHERE relationship = ? AND ` + uuidCol + ` = ? ORDER BY id`
		args = []any{rel.Key, originPK}
	}

	rows, err := r.db.QueryContext(ctx, r.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query join records for %q: %w", rel.Key, err)
	}
	defer func() { _ = rows.Close() }()

	var out []JoinRecord
	for rows.Next() {
		var (
			jr      JoinRecord
			recID   sql.NullInt64
			recUUID sql.NullString
			relID   sql.NullInt64
			relUUID sql.NullString
		)
		if err := rows.Scan(&jr.Relationship, &recID, &recUUID, &relID, &relUUID); err != nil {
			return nil, fmt.Errorf("scan join record: %w", err)
		}
		if recID.Valid {
			v := recID.Int64
			jr.RecordID = &v
		}
		if recUUID.Valid {
			v := recUUID.String
			jr.RecordUUID = &v
		}
		if relID.Valid {
			v := relID.Int64
			jr.RelatedRecordID = &v
		}
		if relUUID.Valid {
			v := relUUID.String
			jr.RelatedRecordUUID = &v
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

// bind rewrites ? placeholders to $n for Postgres.
func (r *SQL) bind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
