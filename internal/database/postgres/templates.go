package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/presensia/presensia/internal/database"
)

// TemplateRepository provides PostgreSQL-backed face template storage with an
// optional in-memory HNSW index for ranking.
type TemplateRepository struct {
	pool        *Pool
	index       *database.TemplateIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewTemplateRepository creates a new PostgreSQL template repository.
func NewTemplateRepository(pool *Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// EnableHNSW builds the in-memory index from all active templates. This
// should be called once at startup; Upsert keeps it current afterwards.
func (r *TemplateRepository) EnableHNSW(ctx context.Context) error {
	templates, err := r.ListActiveTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	idx := database.NewTemplateIndex()
	if err := idx.Build(templates); err != nil {
		return fmt.Errorf("failed to build template index: %w", err)
	}

	r.hnswMu.Lock()
	r.index = idx
	r.hnswEnabled = true
	r.hnswMu.Unlock()
	return nil
}

// IsHNSWEnabled returns whether the in-memory index is active.
func (r *TemplateRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.index != nil
}

// IndexCount returns the number of templates in the in-memory index.
func (r *TemplateRepository) IndexCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.index == nil {
		return 0
	}
	return r.index.Count()
}

// RankBySimilarity returns the top-k active templates by cosine similarity.
// Uses the in-memory HNSW index if enabled, otherwise falls back to
// PostgreSQL's <=> operator. The pgvector operator yields cosine distance;
// score = 1 - distance.
func (r *TemplateRepository) RankBySimilarity(
	ctx context.Context, query []float32, topK int,
) ([]database.TemplateCandidate, error) {
	r.hnswMu.RLock()
	idx := r.index
	hnswEnabled := r.hnswEnabled && idx != nil
	r.hnswMu.RUnlock()

	if hnswEnabled && !idx.IsEmpty() {
		return idx.Search(query, topK)
	}

	return r.rankBySimilarityPostgres(ctx, query, topK)
}

func (r *TemplateRepository) rankBySimilarityPostgres(
	ctx context.Context, query []float32, topK int,
) ([]database.TemplateCandidate, error) {
	sqlQuery := `
		SELECT t.id, t.employee_id, 1 - (t.embedding <=> $1::vector) AS score
		FROM face_templates t
		WHERE t.is_active
		ORDER BY t.embedding <=> $1::vector
		LIMIT $2
	`

	vec := pgvector.NewVector(query)
	rows, err := r.pool.Query(ctx, sqlQuery, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query similar templates: %w", err)
	}
	defer rows.Close()

	var candidates []database.TemplateCandidate
	for rows.Next() {
		var c database.TemplateCandidate
		if err := rows.Scan(&c.TemplateID, &c.EmployeeID, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	return candidates, nil
}

// GetTemplateByEmployee retrieves the employee's template, or (nil, nil).
func (r *TemplateRepository) GetTemplateByEmployee(
	ctx context.Context, employeeID uuid.UUID,
) (*database.FaceTemplate, error) {
	query := `
		SELECT id, employee_id, embedding, template_version, quality_score,
		       is_active, photo_path, created_at, updated_at
		FROM face_templates
		WHERE employee_id = $1
	`

	tpl, err := scanTemplate(r.pool.QueryRow(ctx, query, employeeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// ListActiveTemplates returns all active templates.
func (r *TemplateRepository) ListActiveTemplates(ctx context.Context) ([]database.FaceTemplate, error) {
	query := `
		SELECT id, employee_id, embedding, template_version, quality_score,
		       is_active, photo_path, created_at, updated_at
		FROM face_templates
		WHERE is_active
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active templates: %w", err)
	}
	defer rows.Close()

	var templates []database.FaceTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	return templates, nil
}

// UpsertTemplate inserts or replaces the employee's template (one active
// template per employee). The in-memory index is updated after commit.
func (r *TemplateRepository) UpsertTemplate(ctx context.Context, tpl *database.FaceTemplate) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO face_templates (id, employee_id, embedding, template_version,
		                            quality_score, is_active, photo_path, created_at, updated_at)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (employee_id) DO UPDATE SET
			embedding        = EXCLUDED.embedding,
			template_version = EXCLUDED.template_version,
			quality_score    = EXCLUDED.quality_score,
			is_active        = EXCLUDED.is_active,
			photo_path       = COALESCE(NULLIF(EXCLUDED.photo_path, ''), face_templates.photo_path),
			updated_at       = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	var qualityScore sql.NullFloat64
	if tpl.QualityScore != nil {
		qualityScore = sql.NullFloat64{Float64: *tpl.QualityScore, Valid: true}
	}
	var photoPath sql.NullString
	if tpl.PhotoPath != "" {
		photoPath = sql.NullString{String: tpl.PhotoPath, Valid: true}
	}

	vec := pgvector.NewVector(tpl.Embedding)
	err := r.pool.QueryRow(ctx, query,
		tpl.ID,
		tpl.EmployeeID,
		vec,
		tpl.TemplateVersion,
		qualityScore,
		tpl.IsActive,
		photoPath,
		now,
	).Scan(&tpl.ID, &tpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	tpl.UpdatedAt = now

	r.hnswMu.RLock()
	idx := r.index
	hnswEnabled := r.hnswEnabled && idx != nil
	r.hnswMu.RUnlock()
	if hnswEnabled {
		idx.Upsert(tpl)
	}

	return nil
}

// scanTemplate scans a single template row.
func scanTemplate(scanner interface{ Scan(...any) error }) (*database.FaceTemplate, error) {
	var tpl database.FaceTemplate
	var vec pgvector.Vector
	var qualityScore sql.NullFloat64
	var photoPath sql.NullString

	err := scanner.Scan(
		&tpl.ID,
		&tpl.EmployeeID,
		&vec,
		&tpl.TemplateVersion,
		&qualityScore,
		&tpl.IsActive,
		&photoPath,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tpl.Embedding = vec.Slice()
	if qualityScore.Valid {
		tpl.QualityScore = &qualityScore.Float64
	}
	if photoPath.Valid {
		tpl.PhotoPath = photoPath.String
	}
	return &tpl, nil
}

// Verify interface compliance.
var _ database.TemplateReader = (*TemplateRepository)(nil)
var _ database.TemplateWriter = (*TemplateRepository)(nil)
