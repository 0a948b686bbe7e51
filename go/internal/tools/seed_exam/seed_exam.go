package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/examclock/go/internal/dbconfig"
)

// User mirrors one entry of the seed file
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Exam mirrors one entry of the seed file, with its enrolled students
type Exam struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	DurationSec  int      `json:"duration_sec"`
	InstructorID string   `json:"instructor_id"`
	StudentIDs   []string `json:"student_ids"`
}

type seedFile struct {
	Users []User `json:"users"`
	Exams []Exam `json:"exams"`
}

type counts struct {
	inserted int
	skipped  int
	errs     int
}

func (c *counts) record(tag int64, err error) {
	switch {
	case err != nil:
		c.errs++
	case tag == 1:
		c.inserted++
	default:
		c.skipped++
	}
}

func main() {
	path := "go/internal/assets/exam_seed.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON fixture
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert users, exams and enrollments in one transaction per exam
	var users, exams, enrollments counts

	for _, u := range seed.Users {
		tag, err := pool.Exec(ctx, `
            INSERT INTO users (id, username, display_name, email, role)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO NOTHING
        `, u.ID, u.Username, u.DisplayName, u.Email, u.Role)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting user %s: %v\n", u.Username, err)
		}
		users.record(tag.RowsAffected(), err)
	}

	for _, e := range seed.Exams {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
                INSERT INTO exams (id, title, duration_sec, instructor_id)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (id) DO NOTHING
            `, e.ID, e.Title, e.DurationSec, e.InstructorID)
			if err != nil {
				return fmt.Errorf("insert exam: %w", err)
			}
			exams.record(tag.RowsAffected(), nil)

			for _, studentID := range e.StudentIDs {
				tag, err := tx.Exec(ctx, `
                    INSERT INTO exam_enrollments (exam_id, student_id)
                    VALUES ($1, $2)
                    ON CONFLICT DO NOTHING
                `, e.ID, studentID)
				if err != nil {
					return fmt.Errorf("enroll student %s: %w", studentID, err)
				}
				enrollments.record(tag.RowsAffected(), nil)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding exam %s: %v\n", e.Title, err)
			exams.errs++
		}
	}

	// 4) Print summary
	fmt.Printf("Users seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		len(seed.Users), users.inserted, users.skipped, users.errs)
	fmt.Printf("Exams seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		len(seed.Exams), exams.inserted, exams.skipped, exams.errs)
	fmt.Printf("Enrollments seed complete: %d inserted, %d skipped\n",
		enrollments.inserted, enrollments.skipped)
}
