package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrValidation is returned when a record is rejected at the store
// boundary.
var ErrValidation = errors.New("validation failed")

// CreateBoard inserts a new board. A missing ID is generated; missing
// timestamps default to now.
func (s *Store) CreateBoard(ctx context.Context, board *model.Board) error {
	if strings.TrimSpace(board.Title) == "" {
		return fmt.Errorf("%w: board title is required", ErrValidation)
	}
	if board.ID == "" {
		board.ID = GenID()
	}
	now := time.Now().UTC()
	if board.CreatedAt.IsZero() {
		board.CreatedAt = now
	}
	if board.UpdatedAt.IsZero() {
		board.UpdatedAt = now
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO boards (id, title, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		board.ID, board.Title, board.SortOrder,
		timeToString(board.CreatedAt), timeToString(board.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}
	return nil
}

// UpdateBoard updates an existing board's title and sort order.
func (s *Store) UpdateBoard(ctx context.Context, board *model.Board) error {
	board.UpdatedAt = time.Now().UTC()
	res, err := s.conn.ExecContext(ctx, `
		UPDATE boards SET title = ?, sort_order = ?, updated_at = ? WHERE id = ?`,
		board.Title, board.SortOrder, timeToString(board.UpdatedAt), board.ID)
	if err != nil {
		return fmt.Errorf("failed to update board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("board %s: %w", board.ID, ErrNotFound)
	}
	return nil
}

// DeleteBoard removes a board. Categories under it are removed by the
// foreign key cascade. Deleting a missing board is a no-op.
func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}
	return nil
}

// GetBoard fetches a board by id.
func (s *Store) GetBoard(ctx context.Context, id string) (*model.Board, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, sort_order, created_at, updated_at FROM boards WHERE id = ?`, id)

	var b model.Board
	var created, updated string
	if err := row.Scan(&b.ID, &b.Title, &b.SortOrder, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	b.CreatedAt = stringToTime(created)
	b.UpdatedAt = stringToTime(updated)
	return &b, nil
}

// ListBoards returns all boards ordered by sort order, then title.
func (s *Store) ListBoards(ctx context.Context) ([]*model.Board, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, sort_order, created_at, updated_at
		FROM boards ORDER BY sort_order, title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	var boards []*model.Board
	for rows.Next() {
		var b model.Board
		var created, updated string
		if err := rows.Scan(&b.ID, &b.Title, &b.SortOrder, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		b.CreatedAt = stringToTime(created)
		b.UpdatedAt = stringToTime(updated)
		boards = append(boards, &b)
	}
	return boards, rows.Err()
}

// CreateCategory inserts a new category under a board.
func (s *Store) CreateCategory(ctx context.Context, cat *model.Category) error {
	if strings.TrimSpace(cat.Title) == "" {
		return fmt.Errorf("%w: category title is required", ErrValidation)
	}
	if strings.TrimSpace(cat.BoardID) == "" {
		return fmt.Errorf("%w: category board id is required", ErrValidation)
	}
	if cat.ID == "" {
		cat.ID = GenID()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO categories (id, board_id, title, sort_order) VALUES (?, ?, ?, ?)`,
		cat.ID, cat.BoardID, cat.Title, cat.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// UpdateCategory updates an existing category.
func (s *Store) UpdateCategory(ctx context.Context, cat *model.Category) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE categories SET board_id = ?, title = ?, sort_order = ? WHERE id = ?`,
		cat.BoardID, cat.Title, cat.SortOrder, cat.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", cat.ID, ErrNotFound)
	}
	return nil
}

// DeleteCategory removes a category. Bookmarks keep their category_id
// reference cleared. Deleting a missing category is a no-op.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE bookmarks SET category_id = NULL WHERE category_id = ?`, id); err != nil {
			return fmt.Errorf("failed to detach bookmarks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
}

// ListCategories returns all categories, optionally filtered by board.
// Pass an empty boardID for all categories.
func (s *Store) ListCategories(ctx context.Context, boardID string) ([]*model.Category, error) {
	query := `SELECT id, board_id, title, sort_order FROM categories`
	var args []any
	if boardID != "" {
		query += ` WHERE board_id = ?`
		args = append(args, boardID)
	}
	query += ` ORDER BY sort_order, title`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []*model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}

// CreateBookmark inserts a new bookmark.
func (s *Store) CreateBookmark(ctx context.Context, bm *model.Bookmark) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertBookmark(ctx, tx, bm)
	})
}

// insertBookmark performs the insert inside an existing transaction so
// callers can pair it with a mapping write.
func insertBookmark(ctx context.Context, tx *sql.Tx, bm *model.Bookmark) error {
	if strings.TrimSpace(bm.URL) == "" {
		return fmt.Errorf("%w: bookmark url is required", ErrValidation)
	}
	if bm.ID == "" {
		bm.ID = GenID()
	}
	now := time.Now().UTC()
	if bm.CreatedAt.IsZero() {
		bm.CreatedAt = now
	}
	if bm.UpdatedAt.IsZero() {
		bm.UpdatedAt = now
	}

	tags, err := json.Marshal(bm.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookmarks (id, url, title, category_id, tags, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bm.ID, bm.URL, bm.Title, nullable(bm.CategoryID), string(tags), bm.Notes,
		timeToString(bm.CreatedAt), timeToString(bm.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create bookmark: %w", err)
	}
	return nil
}

// UpdateBookmark updates an existing bookmark.
func (s *Store) UpdateBookmark(ctx context.Context, bm *model.Bookmark) error {
	if bm.UpdatedAt.IsZero() {
		bm.UpdatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(bm.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE bookmarks
		SET url = ?, title = ?, category_id = ?, tags = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		bm.URL, bm.Title, nullable(bm.CategoryID), string(tags), bm.Notes,
		timeToString(bm.UpdatedAt), bm.ID)
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bookmark %s: %w", bm.ID, ErrNotFound)
	}
	return nil
}

// DeleteBookmark removes a bookmark. Deleting a missing bookmark is a
// no-op.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// GetBookmark fetches a bookmark by id.
func (s *Store) GetBookmark(ctx context.Context, id string) (*model.Bookmark, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, url, title, category_id, tags, notes, created_at, updated_at
		FROM bookmarks WHERE id = ?`, id)
	bm, err := scanBookmark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return bm, nil
}

// ListBookmarks returns all bookmarks ordered by creation time.
func (s *Store) ListBookmarks(ctx context.Context) ([]*model.Bookmark, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, url, title, category_id, tags, notes, created_at, updated_at
		FROM bookmarks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var bms []*model.Bookmark
	for rows.Next() {
		bm, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bms = append(bms, bm)
	}
	return bms, rows.Err()
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(sc scanner) (*model.Bookmark, error) {
	var bm model.Bookmark
	var category sql.NullString
	var tags, created, updated string
	if err := sc.Scan(&bm.ID, &bm.URL, &bm.Title, &category, &tags, &bm.Notes, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan bookmark: %w", err)
	}
	bm.CategoryID = category.String
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &bm.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	bm.CreatedAt = stringToTime(created)
	bm.UpdatedAt = stringToTime(updated)
	return &bm, nil
}

// nullable converts an empty string to NULL for optional reference
// columns.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
