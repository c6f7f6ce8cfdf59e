package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"banyg/internal/core"
	"banyg/internal/log"
)

const categoryColumns = `id, name, group_id, group_name, is_hidden, icon, color`

// CreateCategory inserts a category. A duplicate name is a user-correctable
// validation error, not a crash.
func (s *Store) CreateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	row := categoryToRow(c)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Name, row.GroupID, row.GroupName, row.IsHidden, row.Icon, row.Color)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ValidationErr("name", fmt.Errorf("category %q already exists", c.Name))
		}
		return fmt.Errorf("insert category: %w", err)
	}
	s.logger.InfoContext(ctx, "category created", log.FieldCategoryID, c.ID)
	return nil
}

// GetCategory loads one category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var row categoryRow
	err := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id).Scan(
		&row.ID, &row.Name, &row.GroupID, &row.GroupName, &row.IsHidden, &row.Icon, &row.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("query category: %w", err)
	}
	return row.toDomain(), nil
}

// ListCategories returns categories ordered by group then name. Hidden
// categories are excluded unless includeHidden is set.
func (s *Store) ListCategories(ctx context.Context, includeHidden bool) ([]core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	if !includeHidden {
		query += ` WHERE is_hidden = 0`
	}
	query += ` ORDER BY group_name, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var row categoryRow
		if err := rows.Scan(&row.ID, &row.Name, &row.GroupID, &row.GroupName,
			&row.IsHidden, &row.Icon, &row.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, row.toDomain())
	}
	return categories, rows.Err()
}

// UpdateCategory rewrites a category row.
func (s *Store) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	row := categoryToRow(c)
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, group_id = ?, group_name = ?, is_hidden = ?, icon = ?, color = ?
		WHERE id = ?`,
		row.Name, row.GroupID, row.GroupName, row.IsHidden, row.Icon, row.Color, row.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ValidationErr("name", fmt.Errorf("category %q already exists", c.Name))
		}
		return fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteCategory removes a category. Referential policy is deliberately
// asymmetric and enforced by the schema: split rows for the category are
// cascade-deleted, while transactions keep their row and drop the category
// reference (SET NULL).
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	s.logger.InfoContext(ctx, "category deleted", log.FieldCategoryID, id)
	s.notifyChanges(ctx)
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
