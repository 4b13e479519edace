package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskdeck/internal/domain"
)

const taskColumns = `id,title,description,due_date,priority,status,creator_id,assignee_id,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,due_date,priority,status,creator_id,assignee_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), nullableStringPtr(t.DueDate), t.Priority, t.Status,
		t.CreatorID, t.AssigneeID, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, due_date=?, priority=?, status=?, assignee_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullableStringPtr(t.DueDate), t.Priority, t.Status, t.AssigneeID, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var description, dueDate sql.NullString
	err := scan(&t.ID, &t.Title, &description, &dueDate, &t.Priority, &t.Status, &t.CreatorID, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// TaskFilters narrows ListTasks. Identity is mandatory: a task is visible
// when the identity is its creator or its assignee.
type TaskFilters struct {
	Identity string
	Status   string
	Priority string
	Query    string
	Sort     string
	Limit    int
}

// Sort column whitelist; anything else falls back to due date.
var sortColumns = map[string]string{
	"dueDate":   "due_date IS NULL, due_date",
	"title":     "title",
	"priority":  "CASE priority WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 ELSE 0 END",
	"updatedAt": "updated_at",
}

func orderClause(sort string) string {
	field, dir, _ := strings.Cut(sort, "-")
	col, ok := sortColumns[field]
	if !ok {
		col = sortColumns["dueDate"]
	}
	direction := "ASC"
	if dir == "desc" {
		direction = "DESC"
	}
	return "ORDER BY " + col + " " + direction
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"(creator_id=? OR assignee_id=?)"}
	args := []any{f.Identity, f.Identity}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Query != "" {
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(COALESCE(description,'')) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Query) + "%"
		args = append(args, pattern, pattern)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ` + orderClause(f.Sort)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// RecentTasks returns the identity's most recently updated tasks.
func (r Repo) RecentTasks(ctx context.Context, identity string, limit int) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE creator_id=? OR assignee_id=? ORDER BY updated_at DESC LIMIT ?`,
		identity, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountFilters narrows CountTasks; zero-value fields are skipped.
type CountFilters struct {
	CreatorID  string
	AssigneeID string
	Status     string
	NotStatus  string
	DueBefore  string
}

func (r Repo) CountTasks(ctx context.Context, f CountFilters) (int, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.NotStatus != "" {
		clauses = append(clauses, "status != ?")
		args = append(args, f.NotStatus)
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, f.DueBefore)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks `+where, args...).Scan(&count)
	return count, err
}
