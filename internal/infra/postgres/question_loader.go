package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"tugwar-quiz-service/internal/domain"
)

// QuestionLoader loads question sets from the questions table.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT question_id, question, answer, time_sec, COALESCE(category, ''), COALESCE(keyword, '')
		FROM questions
		WHERE set_id = $1
		ORDER BY question_id`, setID)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	set := domain.QuestionSet{ID: setID}
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.No, &q.Prompt, &q.Answer, &q.TimeSec, &q.Category, &q.Keyword); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("scan question: %w", err)
		}
		set.Questions = append(set.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	if len(set.Questions) == 0 {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	return set, nil
}
