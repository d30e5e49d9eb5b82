package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sankhya-academy/exam-backend/internal/config"
	"github.com/sankhya-academy/exam-backend/internal/database"
	"github.com/sankhya-academy/exam-backend/internal/logger"
	"github.com/sankhya-academy/exam-backend/internal/model"
	"github.com/sankhya-academy/exam-backend/internal/repository"
	"github.com/sankhya-academy/exam-backend/internal/service"
)

// seed-exam creates a demo mock test with generated abacus drills: addition
// and subtraction chains, multiplication and division. Useful for local
// development and portal smoke testing.
func main() {
	var (
		title    = flag.String("title", "Demo Abacus Mock Test", "Exam title")
		count    = flag.Int("questions", 20, "Number of questions")
		duration = flag.Int("duration", 30, "Duration in minutes")
		publish  = flag.Bool("publish", true, "Publish the exam after seeding")
		seed     = flag.Int64("seed", 42, "Random seed for reproducible papers")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

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

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)

	exam := &model.Exam{
		Title:           *title,
		Type:            model.ExamTypeMockTest,
		DurationMinutes: *duration,
	}
	if err := examService.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	rng := rand.New(rand.NewSource(*seed))
	questions := make([]model.Question, *count)
	for i := range questions {
		questions[i] = generateQuestion(rng, exam.ID, i+1)
	}

	if err := examService.ReplaceQuestions(ctx, exam.ID, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed questions")
	}

	if *publish {
		if err := examService.Publish(ctx, exam.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish exam")
		}
	}

	fmt.Printf("Seeded exam %s (%q) with %d questions\n", exam.ID, exam.Title, *count)
}

func generateQuestion(rng *rand.Rand, examID uuid.UUID, orderNum int) model.Question {
	var (
		operands []int64
		operator model.Operator
		answer   int64
	)

	switch rng.Intn(3) {
	case 0: // addition/subtraction chain
		operator = model.OperatorAddition
		n := 3 + rng.Intn(4)
		operands = make([]int64, n)
		for {
			answer = 0
			for i := range operands {
				v := int64(1 + rng.Intn(99))
				if i > 0 && rng.Intn(3) == 0 {
					v = -v
				}
				operands[i] = v
				answer += v
			}
			// Running totals stay representable on a physical abacus.
			if answer > 0 {
				break
			}
		}
	case 1:
		operator = model.OperatorMultiplication
		operands = []int64{int64(2 + rng.Intn(98)), int64(2 + rng.Intn(18))}
		answer = operands[0] * operands[1]
	default:
		operator = model.OperatorDivision
		quotient := int64(2 + rng.Intn(48))
		divisor := int64(2 + rng.Intn(18))
		operands = []int64{quotient * divisor, divisor}
		answer = quotient
	}

	options := buildOptions(rng, answer)
	correct := 0
	for i, opt := range options {
		if opt.Text == strconv.FormatInt(answer, 10) {
			correct = i
			break
		}
	}

	op := operator
	return model.Question{
		ExamID:        examID,
		QuestionText:  questionText(operands, operator),
		Options:       options,
		CorrectOption: correct,
		Operations:    operands,
		OperatorType:  &op,
		OrderNum:      orderNum,
	}
}

// buildOptions returns four shuffled choices containing the answer and three
// nearby distractors.
func buildOptions(rng *rand.Rand, answer int64) []model.Option {
	seen := map[int64]bool{answer: true}
	values := []int64{answer}
	for len(values) < 4 {
		delta := int64(1 + rng.Intn(10))
		if rng.Intn(2) == 0 {
			delta = -delta
		}
		v := answer + delta
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})

	options := make([]model.Option, len(values))
	for i, v := range values {
		options[i] = model.Option{Index: i, Text: strconv.FormatInt(v, 10)}
	}
	return options
}

func questionText(operands []int64, operator model.Operator) string {
	parts := make([]string, len(operands))
	for i, v := range operands {
		parts[i] = strconv.FormatInt(v, 10)
	}
	switch operator {
	case model.OperatorMultiplication:
		return strings.Join(parts, " × ")
	case model.OperatorDivision:
		return strings.Join(parts, " ÷ ")
	default:
		text := parts[0]
		for _, p := range parts[1:] {
			if strings.HasPrefix(p, "-") {
				text += " - " + strings.TrimPrefix(p, "-")
			} else {
				text += " + " + p
			}
		}
		return text
	}
}
