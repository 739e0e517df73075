package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"career-agent/internal/domain"
)

// timeLayout is fixed-width so that TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Gateway on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository: database path must not be empty")
	}
	logger := slog.Default().With("component", "store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: create schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	// UNIQUE(user_id, question_number) closes the race where two concurrent
	// submissions observe the same answer count.
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS questionnaire (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			question_number INTEGER NOT NULL,
			question TEXT NOT NULL,
			answer TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users (id),
			UNIQUE (user_id, question_number)
		);

		CREATE TABLE IF NOT EXISTS career_plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			plan_content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users (id)
		);

		CREATE INDEX IF NOT EXISTS idx_career_plans_user_created
			ON career_plans(user_id, created_at);

		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			is_user BOOLEAN NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users (id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user_created
			ON conversations(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var (
		id        int64
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE email = ?`, email,
	).Scan(&id, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindUserByEmail: %w", err)
	}
	return domain.User{
		ID:        strconv.FormatInt(id, 10),
		Email:     email,
		CreatedAt: parseTime(createdAt),
	}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email string) (domain.User, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, created_at) VALUES (?, ?)`, email, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, ErrConflict
		}
		return domain.User{}, fmt.Errorf("repository: CreateUser: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: CreateUser last insert id: %w", err)
	}
	s.logger.Debug("created user", "id", id)
	return domain.User{
		ID:        strconv.FormatInt(id, 10),
		Email:     email,
		CreatedAt: parseTime(now),
	}, nil
}

func (s *SQLiteStore) RecordAnswer(ctx context.Context, userID string, seq int, question, answer string) error {
	uid, err := parseUserID(userID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questionnaire (user_id, question_number, question, answer, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uid, seq, question, answer, s.timestamp())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("repository: RecordAnswer: %w", err)
	}
	s.logger.Debug("recorded answer", "user_id", userID, "seq", seq)
	return nil
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, userID string) ([]domain.Answer, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_number, question, COALESCE(answer, ''), created_at
		FROM questionnaire
		WHERE user_id = ?
		ORDER BY question_number
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("repository: ListAnswers query: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		a := domain.Answer{UserID: userID}
		var createdAt string
		if err := rows.Scan(&a.Seq, &a.Question, &a.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("repository: ListAnswers scan: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: ListAnswers rows: %w", err)
	}
	return answers, nil
}

func (s *SQLiteStore) RecordPlan(ctx context.Context, userID, content string) (domain.Plan, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return domain.Plan{}, err
	}
	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO career_plans (user_id, plan_content, created_at) VALUES (?, ?, ?)`,
		uid, content, now,
	); err != nil {
		return domain.Plan{}, fmt.Errorf("repository: RecordPlan: %w", err)
	}
	return domain.Plan{UserID: userID, Content: content, CreatedAt: parseTime(now)}, nil
}

func (s *SQLiteStore) LatestPlan(ctx context.Context, userID string) (domain.Plan, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return domain.Plan{}, err
	}
	var content, createdAt string
	err = s.db.QueryRowContext(ctx, `
		SELECT plan_content, created_at
		FROM career_plans
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, uid).Scan(&content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plan{}, ErrNotFound
	}
	if err != nil {
		return domain.Plan{}, fmt.Errorf("repository: LatestPlan: %w", err)
	}
	return domain.Plan{UserID: userID, Content: content, CreatedAt: parseTime(createdAt)}, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, userID, text string, isUser bool) error {
	uid, err := parseUserID(userID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, message, is_user, created_at) VALUES (?, ?, ?, ?)`,
		uid, text, isUser, s.timestamp(),
	); err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.Turn{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message, is_user, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentTurns query: %w", err)
	}
	defer rows.Close()

	turns := make([]domain.Turn, 0, min(limit, 64))
	for rows.Next() {
		t := domain.Turn{UserID: userID}
		var createdAt string
		if err := rows.Scan(&t.Text, &t.IsUser, &createdAt); err != nil {
			return nil, fmt.Errorf("repository: RecentTurns scan: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: RecentTurns rows: %w", err)
	}
	return turns, nil
}

func parseUserID(userID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: invalid user id %q: %w", userID, err)
	}
	return id, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use RFC3339.
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// SQLite reports constraint violations only through the error message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
