//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080"
	quizName       = "E2E Quiz"
	studentID      = 90001
	adminID        = 90002
	rightAnswer    = "4"
)

var (
	baseURL      string
	quizID       string
	attemptID    string
	studentToken string
	adminToken   string
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := config.Load()
	if err := seedQuiz(cfg.DatabaseURL); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	auth := service.NewAuthService(cfg)
	var err error
	if studentToken, err = auth.GenerateToken(studentID, []string{string(model.PermissionQuizAttempt)}); err != nil {
		fmt.Printf("Token failed: %v\n", err)
		os.Exit(1)
	}
	if adminToken, err = auth.GenerateToken(adminID, []string{string(model.PermissionQuizManage)}); err != nil {
		fmt.Printf("Token failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// seedQuiz replaces the e2e quiz with a fresh one holding two fixed questions.
func seedQuiz(dbURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `DELETE FROM quiz_attempts WHERE quiz_id IN (SELECT id FROM quizzes WHERE name = $1)`, quizName); err != nil {
		return fmt.Errorf("cleanup attempts: %w", err)
	}
	if _, err := conn.Exec(ctx, `DELETE FROM quiz_grades WHERE quiz_id IN (SELECT id FROM quizzes WHERE name = $1)`, quizName); err != nil {
		return fmt.Errorf("cleanup grades: %w", err)
	}
	if _, err := conn.Exec(ctx, `DELETE FROM quizzes WHERE name = $1`, quizName); err != nil {
		return fmt.Errorf("cleanup quiz: %w", err)
	}

	var categoryID int64
	if err := conn.QueryRow(ctx, `INSERT INTO question_categories (name) VALUES ('e2e') RETURNING id`).Scan(&categoryID); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	var q1, q2 int64
	for _, id := range []*int64{&q1, &q2} {
		err := conn.QueryRow(ctx,
			`INSERT INTO questions (category_id, name, question_text, right_answer)
			 VALUES ($1, 'sum', 'What is 2+2?', $2) RETURNING id`,
			categoryID, rightAnswer,
		).Scan(id)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	now := time.Now().Unix()
	err = conn.QueryRow(ctx,
		`INSERT INTO quizzes (name, time_open, time_close, time_limit, attempts, sum_grades, grade, questions_per_page)
		 VALUES ($1, $2, $3, 1800, 2, 2, 10, 1) RETURNING id`,
		quizName, now-60, now+3600,
	).Scan(&quizID)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	_, err = conn.Exec(ctx,
		`INSERT INTO quiz_slots (quiz_id, slot, page, question_id) VALUES ($1, 1, 1, $2), ($1, 2, 2, $3)`,
		quizID, q1, q2,
	)
	if err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	_, err = conn.Exec(ctx, `INSERT INTO quiz_sections (quiz_id, first_slot, heading) VALUES ($1, 1, '')`, quizID)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func TestE2EFlow(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		resp, err := get("/health", "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("Summary", func(t *testing.T) {
		resp, err := get("/api/v1/quizzes/"+quizID, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("StartAttempt", func(t *testing.T) {
		resp, err := post("/api/v1/quizzes/"+quizID+"/attempts", nil, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Attempt struct {
					ID    string `json:"id"`
					State string `json:"state"`
				} `json:"attempt"`
				NumPages int `json:"num_pages"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		attemptID = body.Data.Attempt.ID
		if attemptID == "" || body.Data.Attempt.State != string(model.StateInProgress) {
			t.Fatalf("unexpected attempt %+v", body.Data.Attempt)
		}
		t.Logf("Attempt started: %s (%d pages)", attemptID, body.Data.NumPages)
	})

	t.Run("StartAgainContinues", func(t *testing.T) {
		resp, err := post("/api/v1/quizzes/"+quizID+"/attempts", nil, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("Autosave", func(t *testing.T) {
		reqBody := map[string]any{"actions": []map[string]any{{"slot": 1, "response": "3"}}}
		resp, err := post("/api/v1/attempts/"+attemptID+"/autosave", reqBody, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("OtherUserIsRejected", func(t *testing.T) {
		resp, err := get("/api/v1/attempts/"+attemptID, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("ProcessAndFinish", func(t *testing.T) {
		reqBody := map[string]any{
			"actions": []map[string]any{
				{"slot": 1, "response": rightAnswer},
				{"slot": 2, "response": rightAnswer},
			},
			"finish": true,
		}
		resp, err := post("/api/v1/attempts/"+attemptID+"/process", reqBody, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Attempt struct {
					State     string   `json:"state"`
					SumGrades *float64 `json:"sum_grades"`
				} `json:"attempt"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Attempt.State != string(model.StateFinished) {
			t.Fatalf("state = %s, want finished", body.Data.Attempt.State)
		}
		if body.Data.Attempt.SumGrades == nil || *body.Data.Attempt.SumGrades != 2 {
			t.Errorf("sum_grades = %v, want 2", body.Data.Attempt.SumGrades)
		}
	})

	t.Run("FinishedAttemptRejectsChanges", func(t *testing.T) {
		reqBody := map[string]any{"actions": []map[string]any{{"slot": 1, "response": "5"}}}
		resp, err := post("/api/v1/attempts/"+attemptID+"/autosave", reqBody, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("AdminMonitor", func(t *testing.T) {
		resp, err := get("/api/v1/admin/quizzes/"+quizID+"/monitor", adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data service.QuizProgressSnapshot `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.States[model.StateFinished] != 1 {
			t.Errorf("finished attempts = %d, want 1", body.Data.States[model.StateFinished])
		}
	})

	t.Run("StudentCannotSweep", func(t *testing.T) {
		resp, err := post("/api/v1/admin/sweep", nil, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})
}

// Helpers

func post(path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func get(path string, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
