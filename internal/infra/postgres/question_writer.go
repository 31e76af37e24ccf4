package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"tugwar-quiz-service/internal/domain"
)

// QuestionWriter replaces question sets in the questions table.
type QuestionWriter struct {
	db *bun.DB
}

func NewQuestionWriter(db *bun.DB) *QuestionWriter {
	return &QuestionWriter{db: db}
}

// ReplaceQuestionSet swaps the stored set for the given one in a single transaction.
func (w *QuestionWriter) ReplaceQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	if set.ID == "" {
		return fmt.Errorf("question set id is required")
	}
	now := time.Now().UTC()
	rows := make([]questionRow, 0, len(set.Questions))
	for _, q := range set.Questions {
		rows = append(rows, questionRow{
			SetID:     set.ID,
			No:        q.No,
			Question:  q.Prompt,
			Answer:    q.Answer,
			TimeSec:   q.TimeSec,
			Category:  q.Category,
			Keyword:   q.Keyword,
			UpdatedAt: now,
		})
	}
	return w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("set_id = ?", set.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear question set: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}
