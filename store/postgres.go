package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const pgUniqueViolation = "23505"

// Postgres is a UserStore and KeyStore over a shared Postgres database.
// All queries are tenant-scoped by column, matching row isolation.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenPostgres connects to dsn, verifies the connection, and applies
// pending schema migrations.
func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	log.Debug().Msg("store: migrations applied")

	return &Postgres{db: db, log: log}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// CreateUser implements UserStore. The unique index on
// (tenant_id, lower(email)) makes the conflict check atomic.
func (p *Postgres) CreateUser(ctx context.Context, u *User) error {
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO auth_users (id, email, password_hash, tenant_id, permissions, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		u.ID, u.Email, u.PasswordHash, u.TenantID, permissionsValue(u.Permissions), u.Active, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// UserByEmail implements UserStore.
func (p *Postgres) UserByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, tenant_id, permissions, active, created_at, updated_at
		FROM auth_users
		WHERE tenant_id = $1 AND lower(email) = lower($2)`,
		tenantID, email,
	)
	return scanUser(row)
}

// UserByID implements UserStore.
func (p *Postgres) UserByID(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, tenant_id, permissions, active, created_at, updated_at
		FROM auth_users
		WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

// UpdatePasswordHash implements UserStore.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return p.updateOne(ctx, `
		UPDATE auth_users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, time.Now())
}

// SetActive implements UserStore.
func (p *Postgres) SetActive(ctx context.Context, id string, active bool) error {
	return p.updateOne(ctx, `
		UPDATE auth_users SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now())
}

// DeleteUser implements UserStore.
func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	return p.updateOne(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
}

// CountUsers implements UserStore.
func (p *Postgres) CountUsers(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM auth_users WHERE tenant_id = $1`, tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SaveKey implements KeyStore. Saving an existing locator replaces the
// stored key material.
func (p *Postgres) SaveKey(ctx context.Context, k *Key) error {
	now := time.Now()
	if k.CreatedAt.IsZero() {
		k.CreatedAt = now
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO auth_keys (locator_hash, database_id, key_hash, encrypted_key, acl, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (locator_hash) DO UPDATE
		SET database_id = EXCLUDED.database_id,
		    key_hash = EXCLUDED.key_hash,
		    encrypted_key = EXCLUDED.encrypted_key,
		    acl = EXCLUDED.acl,
		    expires_at = EXCLUDED.expires_at`,
		k.LocatorHash, k.DatabaseID, k.KeyHash, k.EncryptedKey, k.ACL, k.ExpiresAt, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	return nil
}

// KeyByLocator implements KeyStore.
func (p *Postgres) KeyByLocator(ctx context.Context, locatorHash string) (*Key, error) {
	var k Key
	err := p.db.QueryRowContext(ctx, `
		SELECT locator_hash, database_id, key_hash, encrypted_key, acl, expires_at, created_at
		FROM auth_keys
		WHERE locator_hash = $1`,
		locatorHash,
	).Scan(&k.LocatorHash, &k.DatabaseID, &k.KeyHash, &k.EncryptedKey, &k.ACL, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("key by locator: %w", err)
	}
	return &k, nil
}

// DeleteKey implements KeyStore.
func (p *Postgres) DeleteKey(ctx context.Context, locatorHash string) error {
	return p.updateOne(ctx, `DELETE FROM auth_keys WHERE locator_hash = $1`, locatorHash)
}

func (p *Postgres) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u     User
		perms string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TenantID, &perms, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Permissions = parsePermissions(perms)
	return &u, nil
}
