package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as unix microseconds so that ORDER BY is numeric
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS lily_users (
	phone TEXT PRIMARY KEY,
	first_task_sent INTEGER NOT NULL DEFAULT 0,
	lily_memory TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lily_tasks (
	id TEXT PRIMARY KEY,
	phone TEXT NOT NULL,
	summary TEXT NOT NULL,
	reminder_at INTEGER,
	scratch TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	is_preview INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_due ON lily_tasks(status, reminder_at);
CREATE INDEX IF NOT EXISTS idx_tasks_phone ON lily_tasks(phone, status);

CREATE TABLE IF NOT EXISTS lily_conversations (
	id TEXT PRIMARY KEY,
	phone TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_phone ON lily_conversations(phone, created_at);
`

// SQLite implements Repository on a single SQLite file
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLite)(nil)

// NewSQLite opens the database at dbPath and applies the schema
func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}
	// one writer at a time; guarded updates rely on it
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping database", goerr.V("path", dbPath))
	}

	repo := &SQLite{db: db, now: time.Now}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates tables and indexes when they do not exist
func (r *SQLite) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return goerr.Wrap(err, "failed to initialize schema")
	}
	return nil
}

func toMicro(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicro(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func (r *SQLite) EnsureUser(ctx context.Context, addr model.Address) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lily_users (phone, created_at) VALUES (?, ?) ON CONFLICT(phone) DO NOTHING`,
		addr.String(), toMicro(r.now()))
	if err != nil {
		return goerr.Wrap(err, "failed to ensure user", goerr.V("address", addr))
	}
	return nil
}

func (r *SQLite) GetUser(ctx context.Context, addr model.Address) (*model.User, error) {
	user := model.User{Address: addr}
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT first_task_sent, lily_memory, created_at FROM lily_users WHERE phone = ?`,
		addr.String()).Scan(&user.FirstTaskSent, &user.Memory, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrUserNotFound, "failed to get user", goerr.V("address", addr))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("address", addr))
	}
	user.CreatedAt = fromMicro(createdAt)
	return &user, nil
}

func (r *SQLite) execUser(ctx context.Context, addr model.Address, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to update user", goerr.V("address", addr))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return goerr.Wrap(model.ErrUserNotFound, "failed to update user", goerr.V("address", addr))
	}
	return nil
}

func (r *SQLite) UpdateUserMemory(ctx context.Context, addr model.Address, memory string) error {
	return r.execUser(ctx, addr, `UPDATE lily_users SET lily_memory = ? WHERE phone = ?`, memory, addr.String())
}

func (r *SQLite) MarkFirstTaskSent(ctx context.Context, addr model.Address) error {
	return r.execUser(ctx, addr, `UPDATE lily_users SET first_task_sent = 1 WHERE phone = ?`, addr.String())
}

func (r *SQLite) PutTask(ctx context.Context, task *model.Task) error {
	var dueAt sql.NullInt64
	if task.DueAt != nil {
		dueAt = sql.NullInt64{Int64: toMicro(*task.DueAt), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lily_tasks (id, phone, summary, reminder_at, scratch, status, is_preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			reminder_at = excluded.reminder_at,
			scratch = excluded.scratch,
			status = excluded.status,
			is_preview = excluded.is_preview`,
		string(task.ID), task.Address.String(), task.Summary, dueAt,
		task.Scratch, string(task.Status), task.IsPreview, toMicro(task.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put task", goerr.V("id", task.ID))
	}
	return nil
}

func (r *SQLite) queryTasks(ctx context.Context, query string, args ...any) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query tasks")
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var (
			task         model.Task
			id, addr, st string
			dueAt        sql.NullInt64
			createdAt    int64
		)
		if err := rows.Scan(&id, &addr, &task.Summary, &dueAt, &task.Scratch, &st, &task.IsPreview, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan task")
		}
		task.ID = model.TaskID(id)
		task.Address = model.Address(addr)
		task.Status = model.TaskStatus(st)
		task.CreatedAt = fromMicro(createdAt)
		if dueAt.Valid {
			due := fromMicro(dueAt.Int64)
			task.DueAt = &due
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate tasks")
	}
	return tasks, nil
}

func (r *SQLite) ListTasks(ctx context.Context, input ListTasksInput) ([]*model.Task, error) {
	order := `reminder_at IS NULL, reminder_at ASC, created_at ASC`
	if input.Order == OrderByCreatedDesc {
		order = `created_at DESC`
	}

	limit := input.Limit
	if limit <= 0 {
		limit = -1
	}

	tasks, err := r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM lily_tasks WHERE phone = ? AND status = ? ORDER BY `+order+` LIMIT ?`,
		input.Address.String(), string(input.Status), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tasks", goerr.V("address", input.Address))
	}
	return tasks, nil
}

func (r *SQLite) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]*model.Task, error) {
	tasks, err := r.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM lily_tasks
		WHERE status = 'pending' AND reminder_at IS NOT NULL AND reminder_at <= ?
		ORDER BY reminder_at ASC, created_at ASC LIMIT ?`,
		toMicro(now), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list due tasks", goerr.V("now", now))
	}
	return tasks, nil
}

func (r *SQLite) execGuarded(ctx context.Context, id model.TaskID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to update task", goerr.V("id", id))
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM lily_tasks WHERE id = ?)`, string(id)).Scan(&exists); err != nil {
		return goerr.Wrap(err, "failed to check task", goerr.V("id", id))
	}
	if !exists {
		return goerr.Wrap(model.ErrTaskNotFound, "failed to update task", goerr.V("id", id))
	}
	return goerr.Wrap(model.ErrTaskNotPending, "failed to update task", goerr.V("id", id))
}

func (r *SQLite) CompleteTask(ctx context.Context, id model.TaskID) error {
	return r.execGuarded(ctx, id,
		`UPDATE lily_tasks SET status = 'done' WHERE id = ? AND status = 'pending'`, string(id))
}

func (r *SQLite) RescheduleTask(ctx context.Context, id model.TaskID, dueAt time.Time) error {
	return r.execGuarded(ctx, id,
		`UPDATE lily_tasks SET reminder_at = ? WHERE id = ? AND status = 'pending'`, toMicro(dueAt), string(id))
}

func (r *SQLite) MarkTaskReminded(ctx context.Context, id model.TaskID, scratch string) error {
	return r.execGuarded(ctx, id,
		`UPDATE lily_tasks SET status = 'reminded', scratch = ? WHERE id = ? AND status = 'pending'`, scratch, string(id))
}

func (r *SQLite) PutTurns(ctx context.Context, turns ...*model.Turn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, turn := range turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lily_conversations (id, phone, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			string(turn.ID), turn.Address.String(), string(turn.Role), turn.Content, toMicro(turn.CreatedAt))
		if err != nil {
			return goerr.Wrap(err, "failed to put turn", goerr.V("id", turn.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit turns")
	}
	return nil
}

func (r *SQLite) ListRecentTurns(ctx context.Context, addr model.Address, limit int) ([]*model.Turn, error) {
	if limit <= 0 {
		limit = defaultTurnLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at FROM lily_conversations
			WHERE phone = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`,
		addr.String(), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list turns", goerr.V("address", addr))
	}
	defer rows.Close()

	var turns []*model.Turn
	for rows.Next() {
		turn := model.Turn{Address: addr}
		var id, role string
		var createdAt int64
		if err := rows.Scan(&id, &role, &turn.Content, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan turn")
		}
		turn.ID = model.TurnID(id)
		turn.Role = model.Role(role)
		turn.CreatedAt = fromMicro(createdAt)
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate turns")
	}
	return turns, nil
}

func (r *SQLite) Close() error {
	if err := r.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close database")
	}
	return nil
}
