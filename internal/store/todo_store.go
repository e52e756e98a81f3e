package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/pool"
)

// TodoStore runs todo CRUD against whichever tenant pool the request carries.
// It holds no connection state of its own; isolation is entirely a property
// of the pool handed in.
type TodoStore struct {
	logger *zap.Logger
}

// NewTodoStore creates a todo store.
func NewTodoStore(logger *zap.Logger) *TodoStore {
	return &TodoStore{logger: logger}
}

// List returns all todos in the tenant's store, oldest first.
func (s *TodoStore) List(ctx context.Context, db pool.DB) ([]model.TodoRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT id, title, description, created, updated, completed
		FROM todos
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]model.TodoRecord, 0)
	for rows.Next() {
		var t model.TodoRecord
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Created, &t.Updated, &t.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}

	return todos, rows.Err()
}

// Get returns one todo by id.
func (s *TodoStore) Get(ctx context.Context, db pool.DB, id int64) (*model.TodoRecord, error) {
	var t model.TodoRecord
	err := db.QueryRow(ctx, `
		SELECT id, title, description, created, updated, completed
		FROM todos
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Title, &t.Description, &t.Created, &t.Updated, &t.Completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTodoNotFound
		}
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}

	return &t, nil
}

// Create inserts a new todo and returns it.
func (s *TodoStore) Create(ctx context.Context, db pool.DB, title, description string) (*model.TodoRecord, error) {
	now := time.Now().UnixMilli()

	t := model.TodoRecord{
		Title:       title,
		Description: description,
		Created:     now,
		Updated:     now,
		Completed:   false,
	}

	err := db.QueryRow(ctx, `
		INSERT INTO todos (title, description, created, updated, completed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, t.Title, t.Description, t.Created, t.Updated, t.Completed).Scan(&t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}

	return &t, nil
}

// Update applies a partial update: only the supplied fields change, and the
// modification timestamp always advances.
func (s *TodoStore) Update(ctx context.Context, db pool.DB, id int64, patch model.TodoPatch) (*model.TodoRecord, error) {
	query, args := buildUpdate(id, patch, time.Now().UnixMilli())

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTodoNotFound
	}

	return s.Get(ctx, db, id)
}

// Toggle flips the completed flag and bumps the modification timestamp.
func (s *TodoStore) Toggle(ctx context.Context, db pool.DB, id int64) (*model.TodoRecord, error) {
	tag, err := db.Exec(ctx, `
		UPDATE todos SET completed = NOT completed, updated = $1 WHERE id = $2
	`, time.Now().UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTodoNotFound
	}

	return s.Get(ctx, db, id)
}

// Delete removes a todo by id.
func (s *TodoStore) Delete(ctx context.Context, db pool.DB, id int64) error {
	tag, err := db.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTodoNotFound
	}
	return nil
}

// buildUpdate assembles the SET clause from the non-nil patch fields plus
// the updated timestamp.
func buildUpdate(id int64, patch model.TodoPatch, updated int64) (string, []any) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Completed != nil {
		add("completed", *patch.Completed)
	}
	add("updated", updated)

	args = append(args, id)
	query := fmt.Sprintf("UPDATE todos SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	return query, args
}
