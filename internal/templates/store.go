package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("templates: not found")

type Store interface {
	Create(ctx context.Context, t Template, fields []TemplateField) (Template, error)
	Get(ctx context.Context, templateID string) (Template, error)
	Fields(ctx context.Context, templateID string) ([]TemplateField, error)
	ListByOwner(ctx context.Context, userID string) ([]Template, error)
}

// MemoryStore is the in-memory Store used by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
	fields    map[string][]TemplateField
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]Template),
		fields:    make(map[string][]TemplateField),
	}
}

func (s *MemoryStore) Create(_ context.Context, t Template, fields []TemplateField) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	fs := make([]TemplateField, len(fields))
	copy(fs, fields)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Position < fs[j].Position })
	s.fields[t.ID] = fs
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, templateID string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Fields(_ context.Context, templateID string) ([]TemplateField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.templates[templateID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]TemplateField, len(s.fields[templateID]))
	copy(out, s.fields[templateID])
	return out, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, userID string) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Template
	for _, t := range s.templates {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PostgresStore persists templates in the templates / template_fields tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const templateColumns = `id, COALESCE(org_id, ''), user_id, name, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t Template, fields []TemplateField) (Template, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Template{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, org_id, user_id, name, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
		t.ID, t.OrgID, t.UserID, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Template{}, fmt.Errorf("insert template: %w", err)
	}
	for _, f := range fields {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO template_fields (id, template_id, name, field_type, position)
			VALUES ($1, $2, $3, $4, $5)`,
			f.ID, t.ID, f.Name, f.FieldType, f.Position)
		if err != nil {
			return Template{}, fmt.Errorf("insert template field %s: %w", f.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Template{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Get(ctx context.Context, templateID string) (Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, templateID)
	var t Template
	err := row.Scan(&t.ID, &t.OrgID, &t.UserID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Fields(ctx context.Context, templateID string) ([]TemplateField, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, name, field_type, position
		FROM template_fields WHERE template_id = $1 ORDER BY position`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list template fields: %w", err)
	}
	defer rows.Close()

	var out []TemplateField
	for rows.Next() {
		var f TemplateField
		if err := rows.Scan(&f.ID, &f.TemplateID, &f.Name, &f.FieldType, &f.Position); err != nil {
			return nil, fmt.Errorf("scan template field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByOwner(ctx context.Context, userID string) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.OrgID, &t.UserID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
