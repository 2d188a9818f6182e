package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
)

// UsageRepository persists question usages and their question attempts.
type UsageRepository struct {
	db database.Querier
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db database.Querier) *UsageRepository {
	return &UsageRepository{db: db}
}

// GetUsage loads a usage with all of its question attempts.
func (r *UsageRepository) GetUsage(ctx context.Context, id uuid.UUID) (*questionusage.Usage, error) {
	u := &questionusage.Usage{ID: id}
	if err := r.db.QueryRow(ctx,
		`SELECT behaviour FROM question_usages WHERE id = $1`, id,
	).Scan(&u.Behaviour); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT slot, question_id, variant, max_mark, length, behaviour, state, fraction,
		        response, right_answer, flagged, metadata, time_modified
		 FROM question_attempts WHERE usage_id = $1
		 ORDER BY slot`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		qa := &questionusage.QuestionAttempt{}
		if err := rows.Scan(&qa.Slot, &qa.QuestionID, &qa.Variant, &qa.MaxMark, &qa.Length, &qa.Behaviour,
			&qa.State, &qa.Fraction, &qa.Response, &qa.RightAnswer, &qa.Flagged, &qa.Metadata,
			&qa.TimeModified); err != nil {
			return nil, err
		}
		u.Attempts = append(u.Attempts, qa)
	}
	return u, rows.Err()
}

// SaveUsage upserts the usage and every question attempt in one batch.
// Slots are never removed, so an upsert per slot is enough.
func (r *UsageRepository) SaveUsage(ctx context.Context, u *questionusage.Usage) error {
	b := &pgx.Batch{}
	b.Queue(
		`INSERT INTO question_usages (id, behaviour) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET behaviour = EXCLUDED.behaviour`,
		u.ID, u.Behaviour)
	for _, qa := range u.Attempts {
		b.Queue(
			`INSERT INTO question_attempts (usage_id, slot, question_id, variant, max_mark, length, behaviour,
			                                state, fraction, response, right_answer, flagged, metadata, time_modified)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (usage_id, slot) DO UPDATE SET
			     question_id = EXCLUDED.question_id, variant = EXCLUDED.variant, max_mark = EXCLUDED.max_mark,
			     length = EXCLUDED.length, behaviour = EXCLUDED.behaviour, state = EXCLUDED.state,
			     fraction = EXCLUDED.fraction, response = EXCLUDED.response, right_answer = EXCLUDED.right_answer,
			     flagged = EXCLUDED.flagged, metadata = EXCLUDED.metadata, time_modified = EXCLUDED.time_modified`,
			u.ID, qa.Slot, qa.QuestionID, qa.Variant, qa.MaxMark, qa.Length, qa.Behaviour,
			qa.State, qa.Fraction, qa.Response, qa.RightAnswer, qa.Flagged, qa.Metadata, qa.TimeModified)
	}
	return r.db.SendBatch(ctx, b).Close()
}

// DeleteUsage removes a usage; its question attempts cascade.
func (r *UsageRepository) DeleteUsage(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM question_usages WHERE id = $1`, id)
	return err
}
