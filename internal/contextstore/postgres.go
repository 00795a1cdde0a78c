package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
)

// ProfileRepository is the durable counterpart to Store's in-memory
// cache: Load returns a user's last-persisted profile (nil if none
// exists yet), Save writes the current snapshot. Store uses it on a
// cache miss and before evicting a profile from memory.
type ProfileRepository interface {
	Load(ctx context.Context, userID string) (*domain.BehavioralProfile, error)
	Save(ctx context.Context, profile *domain.BehavioralProfile) error
}

// dbProfile mirrors the teacher's db-tagged row-mapping idiom
// (ContextPostgresRepository's dbContext in multi-context/infrastructure/
// persistence): the profile itself is stored as a JSON snapshot rather
// than normalized columns, since its shape (histograms, bounded lists,
// nested maps) changes with the signal processors that populate it.
type dbProfile struct {
	UserID    string    `db:"user_id"`
	Snapshot  []byte    `db:"snapshot"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PostgresProfileRepository implements ProfileRepository over a
// `behavioral_profiles(user_id text primary key, snapshot jsonb,
// updated_at timestamptz)` table, using pgx's database/sql driver under
// sqlx the same way the teacher mixes the two in its postgres
// repositories.
type PostgresProfileRepository struct {
	db *sqlx.DB
}

// NewPostgresProfileRepository opens a connection pool against dsn
// (a standard postgres:// URL) via pgx's stdlib adapter, wrapped in sqlx
// for the teacher's struct-tag row mapping.
func NewPostgresProfileRepository(dsn string) (*PostgresProfileRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	return &PostgresProfileRepository{db: sqlx.NewDb(db, "pgx")}, nil
}

func (r *PostgresProfileRepository) Load(ctx context.Context, userID string) (*domain.BehavioralProfile, error) {
	var row dbProfile
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, snapshot, updated_at FROM behavioral_profiles WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load behavioral profile: %w", err)
	}

	var profile domain.BehavioralProfile
	if err := json.Unmarshal(row.Snapshot, &profile); err != nil {
		return nil, fmt.Errorf("decode behavioral profile snapshot: %w", err)
	}
	return &profile, nil
}

func (r *PostgresProfileRepository) Save(ctx context.Context, profile *domain.BehavioralProfile) error {
	snapshot, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode behavioral profile snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO behavioral_profiles (user_id, snapshot, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		profile.UserID, snapshot, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save behavioral profile: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *PostgresProfileRepository) Close() error {
	return r.db.Close()
}
