// pkg/directory/postgres.go
package directory

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresProvider constructs a PostgreSQL-backed directory.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schools (
  id uuid PRIMARY KEY,
  name text NOT NULL,
  domain text UNIQUE,
  db_name text,
  conn_uri text,
  active boolean NOT NULL DEFAULT true,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS users (
  id uuid PRIMARY KEY,
  email text UNIQUE NOT NULL,
  role text NOT NULL DEFAULT 'user',
  school_id uuid REFERENCES schools(id) ON DELETE SET NULL,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
-- Backfill / ensure columns exist (for upgrades)
ALTER TABLE schools ADD COLUMN IF NOT EXISTS db_name text;
ALTER TABLE schools ADD COLUMN IF NOT EXISTS conn_uri text;
ALTER TABLE schools ADD COLUMN IF NOT EXISTS active boolean NOT NULL DEFAULT true;
CREATE INDEX IF NOT EXISTS users_school_idx ON users(school_id);
`)
	return err
}

// SeedFromEnv ingests initial school + identity data.
// jsonSeed format (SCHOOL_SEED_JSON):
//
//	[
//	  {"id":"...","name":"...","domain":"acme.edu","db_name":"acme","admin_email":"root@acme.edu"}
//	]
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []struct {
		ID, Name, Domain, DBName, ConnURI string
		AdminEmail                        string `json:"admin_email"`
	}
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, entry := range entries {
		_, _ = dbPool.Exec(ctx, `INSERT INTO schools(id,name,domain,db_name,conn_uri,active)
		  VALUES ($1,$2,$3,$4,$5,true)
		  ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name,domain=EXCLUDED.domain,db_name=EXCLUDED.db_name,conn_uri=EXCLUDED.conn_uri`,
			entry.ID, entry.Name, entry.Domain, entry.DBName, entry.ConnURI)
		if entry.AdminEmail != "" {
			_, _ = dbPool.Exec(ctx, `INSERT INTO users(id,email,role,school_id)
			 VALUES ($1,$2,'admin',$3) ON CONFLICT (email) DO NOTHING`, uuid.New(), entry.AdminEmail, entry.ID)
		}
	}
	return nil
}

const schoolCols = `id,name,COALESCE(domain,''),COALESCE(db_name,''),COALESCE(conn_uri,''),active`

func scanSchool(row pgx.Row) (School, error) {
	var s School
	if err := row.Scan(&s.ID, &s.Name, &s.Domain, &s.DBName, &s.ConnURI, &s.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return School{}, ErrNotFound
		}
		return School{}, err
	}
	return s, nil
}

// FindByID fetches a school descriptor by its UUID.
func (p *pgProvider) FindByID(ctx context.Context, id string) (School, error) {
	return scanSchool(p.dbPool.QueryRow(ctx, `SELECT `+schoolCols+` FROM schools WHERE id=$1`, id))
}

// FindByDomain fetches the school whose routing domain matches.
func (p *pgProvider) FindByDomain(ctx context.Context, domain string) (School, error) {
	return scanSchool(p.dbPool.QueryRow(ctx, `SELECT `+schoolCols+` FROM schools WHERE domain=$1`, domain))
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var schoolID *string
	if err := row.Scan(&u.ID, &u.Email, &u.Role, &schoolID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if schoolID != nil {
		u.SchoolID = *schoolID
	}
	return u, nil
}

func (p *pgProvider) FindUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(p.dbPool.QueryRow(ctx, `SELECT id,email,role,school_id FROM users WHERE id=$1`, id))
}

func (p *pgProvider) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(p.dbPool.QueryRow(ctx, `SELECT id,email,role,school_id FROM users WHERE email=$1`, email))
}
