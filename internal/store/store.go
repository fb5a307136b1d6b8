package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andresmejia3/recallme/internal/embedding"
	"github.com/andresmejia3/recallme/internal/types"
)

// querier is satisfied by both *pgx.Conn and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages the PostgreSQL connection and pgvector operations.
type Store struct {
	conn *pgx.Conn // nil inside InTx
	db   querier
}

// Sample is one enrolled photo of an identity.
type Sample struct {
	ImageID    string
	Source     string
	EnrolledAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn, db: conn}, nil
}

// initSchema creates the gallery tables and vector extension if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS known_identities (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			embedding VECTOR(%d) NOT NULL,
			face_count INT DEFAULT 1,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_samples (
			id BIGSERIAL PRIMARY KEY,
			identity_id INT NOT NULL REFERENCES known_identities(id) ON DELETE CASCADE,
			image_id TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			enrolled_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (identity_id, image_id)
		);
		CREATE INDEX IF NOT EXISTS face_samples_identity_id_idx ON face_samples (identity_id);
	`, embedding.Size)
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(ctx)
}

// InTx runs fn against a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// vecToString formats a float slice into a PostgreSQL vector string format "[1.0,2.0,...]"
func vecToString(vec []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector is the inverse of vecToString for pgvector's text output.
func parseVector(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec[i] = v
	}
	return vec, nil
}

// FindClosestIdentity searches for the nearest neighbor in the database using cosine distance.
// Returns -1 if no match is found within the threshold.
func (s *Store) FindClosestIdentity(ctx context.Context, vec []float64, threshold float64) (int, string, error) {
	vecStr := vecToString(vec)
	// <=> is the cosine distance operator in pgvector
	query := `SELECT id, name FROM known_identities WHERE embedding <=> $1::vector < $2 ORDER BY embedding <=> $1::vector ASC LIMIT 1`

	var id int
	var name string
	err := s.db.QueryRow(ctx, query, vecStr, threshold).Scan(&id, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return -1, "", nil // No match found
	}
	if err != nil {
		return 0, "", err
	}

	return id, name, nil
}

// CreateIdentity inserts a new identity and returns its ID. An empty name
// becomes "Identity <ID>".
func (s *Store) CreateIdentity(ctx context.Context, name string, vec []float64) (int, error) {
	vecStr := vecToString(vec)
	var id int

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	insertName := name
	if insertName == "" {
		// We use a temporary unique name to avoid collisions before we know the ID
		insertName = fmt.Sprintf("pending-%d", time.Now().UnixNano())
	}

	err = tx.QueryRow(ctx, "INSERT INTO known_identities (name, embedding, face_count) VALUES ($1, $2::vector, 1) RETURNING id", insertName, vecStr).Scan(&id)
	if err != nil {
		return 0, err
	}

	if name == "" {
		_, err = tx.Exec(ctx, "UPDATE known_identities SET name = $1 WHERE id = $2", fmt.Sprintf("Identity %d", id), id)
		if err != nil {
			return 0, err
		}
	}

	return id, tx.Commit(ctx)
}

// UpdateIdentity folds newVec, the mean of newCount faces, into the identity's running mean.
func (s *Store) UpdateIdentity(ctx context.Context, id int, newVec []float64, newCount int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var oldVecStr string
	var oldCount int
	// FOR UPDATE locks the row so concurrent enrollments of the same ID serialize
	err = tx.QueryRow(ctx, "SELECT embedding::text, face_count FROM known_identities WHERE id = $1 FOR UPDATE", id).Scan(&oldVecStr, &oldCount)
	if err != nil {
		return err
	}

	oldVec, err := parseVector(oldVecStr)
	if err != nil {
		return err
	}
	finalVec := weightedMean(oldVec, oldCount, newVec, newCount)

	_, err = tx.Exec(ctx, "UPDATE known_identities SET embedding = $1::vector, face_count = $2 WHERE id = $3", vecToString(finalVec), oldCount+newCount, id)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// weightedMean combines two means by their sample counts.
func weightedMean(oldVec []float64, oldCount int, newVec []float64, newCount int) []float64 {
	out := make([]float64, embedding.Size)
	total := float64(oldCount + newCount)
	if total == 0 {
		return out
	}
	for i := range out {
		var o, n float64
		if i < len(oldVec) {
			o = oldVec[i]
		}
		if i < len(newVec) {
			n = newVec[i]
		}
		out[i] = (o*float64(oldCount) + n*float64(newCount)) / total
	}
	return out
}

// AddSample records that imageID was enrolled under the identity. Re-adding
// the same image is a no-op; the returned bool reports whether a row was inserted.
func (s *Store) AddSample(ctx context.Context, identityID int, imageID, source string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO face_samples (identity_id, image_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id, image_id) DO NOTHING
	`, identityID, imageID, source)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetIdentitySamples returns the photos enrolled for an identity, oldest first.
func (s *Store) GetIdentitySamples(ctx context.Context, identityID int) ([]Sample, error) {
	rows, err := s.db.Query(ctx, "SELECT image_id, source, enrolled_at FROM face_samples WHERE identity_id = $1 ORDER BY enrolled_at, id", identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ImageID, &smp.Source, &smp.EnrolledAt); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// RenameIdentity updates the name of a known identity.
func (s *Store) RenameIdentity(ctx context.Context, id int, newName string) error {
	tag, err := s.db.Exec(ctx, "UPDATE known_identities SET name = $1 WHERE id = $2", newName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %d not found", id)
	}
	return nil
}

// ListIdentities returns every identity ordered by ID.
func (s *Store) ListIdentities(ctx context.Context) ([]types.Identity, error) {
	rows, err := s.db.Query(ctx, "SELECT id, name, face_count, created_at FROM known_identities ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []types.Identity
	for rows.Next() {
		var id types.Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.Count, &id.CreatedAt); err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, rows.Err()
}

// GetIdentityVectors returns the current mean embeddings of the given identities.
func (s *Store) GetIdentityVectors(ctx context.Context, ids []int) (map[int][]float64, error) {
	rows, err := s.db.Query(ctx, "SELECT id, embedding::text FROM known_identities WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vectors := make(map[int][]float64, len(ids))
	for rows.Next() {
		var id int
		var vecStr string
		if err := rows.Scan(&id, &vecStr); err != nil {
			return nil, err
		}
		vec, err := parseVector(vecStr)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", id, err)
		}
		vectors[id] = vec
	}
	return vectors, rows.Err()
}

// Reset drops all application tables to clear the database state.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		DROP TABLE IF EXISTS face_samples CASCADE;
		DROP TABLE IF EXISTS known_identities CASCADE;
	`)
	return err
}
