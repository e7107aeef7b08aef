package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mordechaipotash/talmudic-study-app/models"
)

// Store wraps the Postgres connection for translations, users, and journeys.
type Store struct {
	DB *sql.DB
}

// New constructs the Store from DATABASE_URL or the POSTGRES_* environment.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// GetTranslation returns the stored record for a reference, or
// models.ErrTranslationNotFound when none exists.
func (s *Store) GetTranslation(ctx context.Context, ref string) (models.TranslationRecord, error) {
	var rec models.TranslationRecord
	var metaRaw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT id, sefaria_ref, hebrew_text, english_translation, model_used, request_cost, metadata, created_at FROM translations WHERE sefaria_ref=$1`, ref).
		Scan(&rec.ID, &rec.SefariaRef, &rec.HebrewText, &rec.EnglishTranslation, &rec.ModelUsed, &rec.RequestCost, &metaRaw, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TranslationRecord{}, models.ErrTranslationNotFound
	}
	if err != nil {
		return models.TranslationRecord{}, err
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &rec.Metadata)
	}
	return rec, nil
}

// SaveTranslation persists a record keyed uniquely by reference. A second
// write under the same reference overwrites the first; re-translate requests
// go through the same path.
func (s *Store) SaveTranslation(ctx context.Context, rec models.TranslationRecord) (string, error) {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal translation metadata: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO translations (sefaria_ref, hebrew_text, english_translation, model_used, request_cost, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (sefaria_ref) DO UPDATE SET
  hebrew_text         = EXCLUDED.hebrew_text,
  english_translation = EXCLUDED.english_translation,
  model_used          = EXCLUDED.model_used,
  request_cost        = EXCLUDED.request_cost,
  metadata            = EXCLUDED.metadata
RETURNING id`, rec.SefariaRef, rec.HebrewText, rec.EnglishTranslation, rec.ModelUsed, rec.RequestCost, metaRaw).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// RecordVisit appends one navigation step to a user's journey history.
func (s *Store) RecordVisit(ctx context.Context, userID, ref, parentRef string) error {
	var parent sql.NullString
	if parentRef != "" {
		parent = sql.NullString{String: parentRef, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO journeys (user_id, sefaria_ref, parent_ref, visited_at) VALUES ($1,$2,$3,NOW())`, userID, ref, parent)
	return err
}

// RecentVisits lists a user's latest navigation steps, newest first.
func (s *Store) RecentVisits(ctx context.Context, userID string, limit int) ([]models.Visit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id, sefaria_ref, parent_ref, visited_at FROM journeys WHERE user_id=$1 ORDER BY visited_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Visit
	for rows.Next() {
		var v models.Visit
		var parent sql.NullString
		var at time.Time
		if err := rows.Scan(&v.UserID, &v.SefariaRef, &parent, &at); err != nil {
			return nil, err
		}
		v.ParentRef = parent.String
		v.VisitedAt = at
		out = append(out, v)
	}
	return out, rows.Err()
}
