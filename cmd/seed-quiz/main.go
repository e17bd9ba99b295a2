package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/cache"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/service"
)

// Seeds a published demo quiz with a standard and an IQ scoring policy.
// With -quiz an existing quiz is re-seeded in place.
func main() {
	var (
		existing  = flag.String("quiz", "", "Existing quiz ID to re-seed")
		questions = flag.Int("questions", 10, "Number of questions")
		duration  = flag.Int("duration", 30, "Duration in minutes (0 = untimed)")
		activate  = flag.String("activate", "standard", "Policy to activate: standard or iq")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	var durationMinutes *int
	if *duration > 0 {
		durationMinutes = duration
	}

	passing := float64(*questions) * 0.7

	var quizID uuid.UUID
	if *existing != "" {
		quizID, err = uuid.Parse(*existing)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid quiz ID")
		}
		tag, err := pool.Exec(ctx,
			`UPDATE quizzes SET is_active = TRUE, is_published = TRUE, duration_minutes = $2,
			 passing_score = $3, updated_at = NOW() WHERE id = $1`,
			quizID, durationMinutes, passing)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to update quiz")
		}
		if tag.RowsAffected() == 0 {
			log.Fatal().Str("quiz_id", quizID.String()).Msg("Quiz not found")
		}
		if _, err := pool.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quizID); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear questions")
		}
		fmt.Printf("Re-seeding quiz %s\n", quizID)
	} else {
		err = pool.QueryRow(ctx,
			`INSERT INTO quizzes (title, is_active, is_published, duration_minutes, passing_score)
			 VALUES ($1, TRUE, TRUE, $2, $3) RETURNING id`,
			"Kuis Demo "+time.Now().Format("2006-01-02 15:04"), durationMinutes, passing,
		).Scan(&quizID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create quiz")
		}
		fmt.Printf("Created quiz %s\n", quizID)
	}

	for i := 0; i < *questions; i++ {
		if _, err := pool.Exec(ctx,
			`INSERT INTO questions (quiz_id, order_num, question_text, correct_answer) VALUES ($1, $2, $3, 'A')`,
			quizID, i+1, fmt.Sprintf("Soal nomor %d", i+1)); err != nil {
			log.Fatal().Err(err).Int("question", i+1).Msg("Failed to create question")
		}
	}
	fmt.Printf("Created %d questions (correct answer: A)\n", *questions)

	quizzes := cache.NewQuizCache(rdb, repository.NewQuizRepository(pool), cfg.QuizCacheTTL, log)
	// Servers keep serving the old questions of a re-seeded quiz until its entries are dropped.
	if err := quizzes.Invalidate(ctx, quizID); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate quiz cache")
	}

	policyRepo := repository.NewScoringPolicyRepository(pool)
	scoring := service.NewScoringService(policyRepo, quizzes, repository.NewSessionAnswerRepository(pool), log)

	standard := &model.ScoringPolicy{
		QuizID: quizID,
		Name:   "Bobot standar",
		Mode:   model.ScoringModeStandard,
		Standard: &model.StandardParams{
			PointsPerCorrect:    1,
			Multiplier:          1,
			TimeBonusEnabled:    true,
			BonusPerSecondSaved: 0.01,
		},
	}
	table := make([]model.IQTableEntry, 0, *questions+1)
	for c := 0; c <= *questions; c++ {
		// Spread 70..140 across the possible correct counts.
		score := 70.0
		if *questions > 0 {
			score += 70 * float64(c) / float64(*questions)
		}
		table = append(table, model.IQTableEntry{CorrectCount: c, Score: score})
	}
	iq := &model.ScoringPolicy{
		QuizID: quizID,
		Name:   "Tabel IQ",
		Mode:   model.ScoringModeIQ,
		IQ:     &model.IQParams{Table: table},
	}

	for _, p := range []*model.ScoringPolicy{standard, iq} {
		if err := policyRepo.Create(ctx, p); err != nil {
			log.Fatal().Err(err).Str("policy", p.Name).Msg("Failed to create policy")
		}
		fmt.Printf("Created policy %q (%s) %s\n", p.Name, p.Mode, p.ID)
	}

	target := standard
	if *activate == "iq" {
		target = iq
	}
	if err := scoring.SetActivePolicy(ctx, quizID, target.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to activate policy")
	}
	fmt.Printf("\nSeed completed! Active policy: %s\n", target.Name)
}
