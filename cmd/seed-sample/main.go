package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type sampleQuestion struct {
	body    string
	choices []string
	correct int
}

var questions = []sampleQuestion{
	{"What is 12 × 12?", []string{"124", "144", "132", "154"}, 1},
	{"Which gas do plants absorb from the air?", []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Hydrogen"}, 2},
	{"What is the capital of Nigeria?", []string{"Lagos", "Kano", "Ibadan", "Abuja"}, 3},
	{"Solve for x: 3x + 5 = 20", []string{"5", "3", "15", "25/3"}, 0},
	{"Which of these is a prime number?", []string{"21", "27", "29", "33"}, 2},
	{"How many sides does a hexagon have?", []string{"5", "6", "7", "8"}, 1},
	{"Water boils at sea level at:", []string{"90°C", "100°C", "110°C", "120°C"}, 1},
	{"What is 3/4 as a percentage?", []string{"34%", "43%", "75%", "80%"}, 2},
	{"Which organ pumps blood?", []string{"Liver", "Heart", "Lungs", "Kidney"}, 1},
	{"What is the square root of 81?", []string{"7", "8", "9", "10"}, 2},
}

var students = []string{
	"Adaeze Okafor", "Bola Adeyemi", "Chidi Nwosu", "Damilola Ojo", "Emeka Eze",
	"Funmi Balogun", "Gbenga Ade", "Halima Musa", "Ifeanyi Obi", "Jumoke Salami",
}

func main() {
	password := flag.String("password", "password", "Password for every seeded account")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	fmt.Println("=== Seeding sample exam ===")

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		classID, err := upsertNamed(ctx, tx, "student_classes", "JSS 2A")
		if err != nil {
			return err
		}
		subjectID, err := upsertNamed(ctx, tx, "subjects", "General Studies")
		if err != nil {
			return err
		}
		sessionID, err := upsertNamed(ctx, tx, "academic_sessions", "2025/2026")
		if err != nil {
			return err
		}
		termID, err := upsertNamed(ctx, tx, "academic_terms", "First Term")
		if err != nil {
			return err
		}

		authorID, err := upsertUser(ctx, tx, "staff01", "Grace", "Ike", model.RoleStaff, nil, string(hash))
		if err != nil {
			return err
		}
		for i, name := range students {
			var first, last string
			fmt.Sscanf(name, "%s %s", &first, &last)
			if _, err := upsertUser(ctx, tx, fmt.Sprintf("student%02d", i+1), first, last,
				model.RoleStudent, &classID, string(hash)); err != nil {
				return err
			}
		}

		var examID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO exams (title, class_group_id, session_id, term_id, subject_id, exam_type,
			                    duration, choices_per_question, number_of_questions, author_id,
			                    published, show_feedback, show_result, description, anti_cheat)
			 VALUES ($1, $2, $3, $4, $5, $6, 20, 4, $7, $8, TRUE, TRUE, TRUE, $9, $10)
			 RETURNING id`,
			"General Studies CA2", classID, sessionID, termID, subjectID, model.ExamTypeCA2,
			len(questions), authorID, "Sample exam seeded for local testing.",
			`{"mode":"terminate_after_n","max_violations":3}`,
		).Scan(&examID)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}

		for pos, q := range questions {
			var questionID int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO questions (subject_id, class_group_id, body, author_id)
				 VALUES ($1, $2, $3, $4) RETURNING id`,
				subjectID, classID, q.body, authorID,
			).Scan(&questionID); err != nil {
				return fmt.Errorf("insert question: %w", err)
			}

			batch := &pgx.Batch{}
			for i, body := range q.choices {
				batch.Queue(`INSERT INTO choices (question_id, body, is_correct) VALUES ($1, $2, $3)`,
					questionID, body, i == q.correct)
			}
			batch.Queue(`INSERT INTO exam_questions (exam_id, question_id, position) VALUES ($1, $2, $3)`,
				examID, questionID, pos)
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert choices: %w", err)
			}
		}

		fmt.Printf("Created exam %d with %d questions for class %d\n", examID, len(questions), classID)
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Seed failed")
	}

	fmt.Printf("\nSeed completed! Log in as staff01 or student01..student%02d with password %q.\n",
		len(students), *password)
}

func upsertNamed(ctx context.Context, tx pgx.Tx, table, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO `+table+` (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}
	return id, nil
}

func upsertUser(ctx context.Context, tx pgx.Tx, username, first, last string, role model.Role, classID *int64, hash string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO users (username, first_name, last_name, role, student_class_id, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
		 RETURNING id`,
		username, first, last, role, classID, hash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user %s: %w", username, err)
	}
	return id, nil
}
