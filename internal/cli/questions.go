package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tugwar-quiz-service/internal/config"
	"tugwar-quiz-service/internal/domain"
	"tugwar-quiz-service/internal/infra/postgres"
	redisinfra "tugwar-quiz-service/internal/infra/redis"
)

// NewQuestionsCmd groups question set maintenance.
func NewQuestionsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage question sets",
	}
	cmd.AddCommand(newQuestionsImportCmd(opts))
	return cmd
}

func newQuestionsImportCmd(opts *globalOptions) *cobra.Command {
	var file, setID string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a question set from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			set, err := readQuestionSet(file)
			if err != nil {
				return err
			}
			if setID != "" {
				set.ID = setID
			}
			if set.ID == "" {
				set.ID = cfg.Quiz.QuestionSet
			}
			if err := importQuestionSet(cmd.Context(), cfg, set); err != nil {
				return err
			}
			log.WithField("set", set.ID).WithField("questions", len(set.Questions)).Info("question set imported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with id and questions")
	cmd.Flags().StringVar(&setID, "set", "", "question set id (overrides the file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readQuestionSet(path string) (domain.QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	var set domain.QuestionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validateQuestionSet(set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func validateQuestionSet(set domain.QuestionSet) error {
	if len(set.Questions) == 0 {
		return fmt.Errorf("no questions")
	}
	seen := make(map[int]struct{}, len(set.Questions))
	for _, q := range set.Questions {
		if q.No <= 0 {
			return fmt.Errorf("question %q: no must be positive", q.Prompt)
		}
		if _, dup := seen[q.No]; dup {
			return fmt.Errorf("question %d: duplicate number", q.No)
		}
		seen[q.No] = struct{}{}
		if strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("question %d: empty answer", q.No)
		}
		if q.TimeSec < 0 {
			return fmt.Errorf("question %d: negative time", q.No)
		}
	}
	return nil
}

func importQuestionSet(ctx context.Context, cfg config.Config, set domain.QuestionSet) error {
	db, err := openBunDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.NewQuestionWriter(db).ReplaceQuestionSet(ctx, set); err != nil {
		return err
	}

	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()
	cache := redisinfra.NewQuestionRepository(client, nil, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
	return cache.Invalidate(ctx, set.ID)
}
