package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcliao/meridian/internal/domain"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id);
CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	data       TEXT NOT NULL
);
`

// SQLiteStorage persists tasks and agents as JSON documents in SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Tasks() *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: s.db}
}

func (s *SQLiteStorage) Agents() *SQLiteAgentRepository {
	return &SQLiteAgentRepository{db: s.db}
}

func (s *SQLiteStorage) CreateProject(project *domain.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encoding project: %w", err)
	}
	_, err = s.db.Exec("INSERT INTO projects (id, created_at, data) VALUES (?, ?, ?)",
		project.ID, project.CreatedAt.UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("inserting project %s: %w", project.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) GetProject(id string) (*domain.Project, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM projects WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying project %s: %w", id, err)
	}
	return decodeProject(data)
}

func (s *SQLiteStorage) ListProjects() ([]*domain.Project, error) {
	rows, err := s.db.Query("SELECT data FROM projects ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Project, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		project, err := decodeProject(data)
		if err != nil {
			return nil, err
		}
		result = append(result, project)
	}
	return result, rows.Err()
}

func decodeProject(data string) (*domain.Project, error) {
	var project domain.Project
	if err := json.Unmarshal([]byte(data), &project); err != nil {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	return &project, nil
}

// userClause restricts a query to the bound user, if any.
func userClause(userID string, args []any) (string, []any) {
	if userID == "" {
		return "", args
	}
	return " AND user_id = ?", append(args, userID)
}

// SQLiteTaskRepository reads and writes tasks for a single user (or all users
// when unbound). It shares the session of the storage that created it.
type SQLiteTaskRepository struct {
	db     *sql.DB
	userID string
}

func (r *SQLiteTaskRepository) UserID() string {
	return r.userID
}

// ForUser returns a repository on the same session bound to userID.
func (r *SQLiteTaskRepository) ForUser(userID string) domain.TaskRepository {
	return &SQLiteTaskRepository{db: r.db, userID: userID}
}

func (r *SQLiteTaskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	clause, args := userClause(r.userID, []any{id})
	var data string
	err := r.db.QueryRowContext(ctx, "SELECT data FROM tasks WHERE id = ?"+clause, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task %s: %w", id, err)
	}
	return decodeTask(data)
}

func (r *SQLiteTaskRepository) List(ctx context.Context, ids []string) ([]*domain.Task, error) {
	if len(ids) == 0 {
		return []*domain.Task{}, nil
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	clause, args := userClause(r.userID, args)

	rows, err := r.db.QueryContext(ctx, "SELECT id, data FROM tasks WHERE id IN ("+placeholders+")"+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Task, len(ids))
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		task, err := decodeTask(data)
		if err != nil {
			return nil, err
		}
		byID[id] = task
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	result := make([]*domain.Task, 0, len(byID))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if task, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			result = append(result, task)
		}
	}
	return result, nil
}

func (r *SQLiteTaskRepository) Find(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	query := "SELECT data FROM tasks WHERE 1 = 1"
	var args []any
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	clause, args := userClause(r.userID, args)
	query += clause + " ORDER BY rowid"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding tasks: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Task, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		task, err := decodeTask(data)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

func (r *SQLiteTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	stored := task.Clone()
	if stored.UserID == "" {
		stored.UserID = r.userID
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO tasks (id, user_id, project_id, status, data) VALUES (?, ?, ?, ?, ?)",
		stored.ID, stored.UserID, stored.ProjectID, string(stored.Status), string(data))
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", stored.ID, err)
	}
	return nil
}

func (r *SQLiteTaskRepository) Update(ctx context.Context, task *domain.Task) error {
	existing, err := r.Get(ctx, task.ID)
	if err != nil {
		return err
	}

	stored := task.Clone()
	stored.UserID = existing.UserID
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE tasks SET project_id = ?, status = ?, data = ? WHERE id = ?",
		stored.ProjectID, string(stored.Status), string(data), stored.ID)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", stored.ID, err)
	}
	return nil
}

func decodeTask(data string) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	return &task, nil
}

// SQLiteAgentRepository mirrors SQLiteTaskRepository for agents.
type SQLiteAgentRepository struct {
	db     *sql.DB
	userID string
}

func (r *SQLiteAgentRepository) UserID() string {
	return r.userID
}

func (r *SQLiteAgentRepository) ForUser(userID string) domain.AgentRepository {
	return &SQLiteAgentRepository{db: r.db, userID: userID}
}

func (r *SQLiteAgentRepository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	clause, args := userClause(r.userID, []any{id})
	var data string
	err := r.db.QueryRowContext(ctx, "SELECT data FROM agents WHERE id = ?"+clause, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent %s: %w", id, err)
	}
	return decodeAgent(data)
}

func (r *SQLiteAgentRepository) GetAll(ctx context.Context) ([]*domain.Agent, error) {
	clause, args := userClause(r.userID, nil)
	return r.query(ctx, "SELECT data FROM agents WHERE 1 = 1"+clause+" ORDER BY rowid", args...)
}

func (r *SQLiteAgentRepository) GetByProject(ctx context.Context, projectID string) ([]*domain.Agent, error) {
	clause, args := userClause(r.userID, []any{projectID})
	return r.query(ctx, "SELECT data FROM agents WHERE project_id = ?"+clause+" ORDER BY rowid", args...)
}

func (r *SQLiteAgentRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Agent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Agent, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agent, err := decodeAgent(data)
		if err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

func (r *SQLiteAgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	stored := agent.Clone()
	if stored.UserID == "" {
		stored.UserID = r.userID
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding agent: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO agents (id, user_id, project_id, data) VALUES (?, ?, ?, ?)",
		stored.ID, stored.UserID, stored.ProjectID, string(data))
	if err != nil {
		return fmt.Errorf("inserting agent %s: %w", stored.ID, err)
	}
	return nil
}

func (r *SQLiteAgentRepository) Update(ctx context.Context, agent *domain.Agent) error {
	existing, err := r.Get(ctx, agent.ID)
	if err != nil {
		return err
	}

	stored := agent.Clone()
	stored.UserID = existing.UserID
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding agent: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE agents SET project_id = ?, data = ? WHERE id = ?",
		stored.ProjectID, string(data), stored.ID)
	if err != nil {
		return fmt.Errorf("updating agent %s: %w", stored.ID, err)
	}
	return nil
}

func decodeAgent(data string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := json.Unmarshal([]byte(data), &agent); err != nil {
		return nil, fmt.Errorf("decoding agent: %w", err)
	}
	return &agent, nil
}
