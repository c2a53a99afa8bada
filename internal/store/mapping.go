package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
)

// PutMapping inserts or replaces the mapping for a native node. The
// mapping is normalized and validated first; invalid mappings are
// rejected with ErrValidation.
func (s *Store) PutMapping(ctx context.Context, m *model.Mapping) error {
	m.Normalize()
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if m.LastSyncAt.IsZero() {
		m.LastSyncAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO mappings (native_id, local_id, node_type, board_id, category_id, last_sync_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(native_id) DO UPDATE SET
			local_id = excluded.local_id,
			node_type = excluded.node_type,
			board_id = excluded.board_id,
			category_id = excluded.category_id,
			last_sync_at = excluded.last_sync_at`,
		m.NativeID, m.LocalID, string(m.NodeType), m.BoardID, m.CategoryID,
		timeToString(m.LastSyncAt))
	if err != nil {
		return fmt.Errorf("failed to put mapping: %w", err)
	}
	return nil
}

// GetMappingByNativeID fetches the mapping for a native node id.
func (s *Store) GetMappingByNativeID(ctx context.Context, nativeID string) (*model.Mapping, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT native_id, local_id, node_type, board_id, category_id, last_sync_at
		FROM mappings WHERE native_id = ?`, nativeID)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mapping for native node %s: %w", nativeID, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// GetMappingsByLocalID returns every mapping that points at the given
// local entity id. More than one native node can mirror the same local
// bookmark after dedup.
func (s *Store) GetMappingsByLocalID(ctx context.Context, localID string) ([]*model.Mapping, error) {
	return s.queryMappings(ctx, `
		SELECT native_id, local_id, node_type, board_id, category_id, last_sync_at
		FROM mappings WHERE local_id = ?`, localID)
}

// DeleteMappingByNativeID removes the mapping record for a native node.
// Deleting a missing mapping is a no-op.
func (s *Store) DeleteMappingByNativeID(ctx context.Context, nativeID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM mappings WHERE native_id = ?`, nativeID); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

// ListMappingsByNodeType returns all mappings of the given type.
func (s *Store) ListMappingsByNodeType(ctx context.Context, nt model.NodeType) ([]*model.Mapping, error) {
	if !nt.Valid() {
		return nil, fmt.Errorf("%w: invalid node type %q", ErrValidation, nt)
	}
	return s.queryMappings(ctx, `
		SELECT native_id, local_id, node_type, board_id, category_id, last_sync_at
		FROM mappings WHERE node_type = ?`, string(nt))
}

// CountMappingsByNodeType returns how many mappings exist per node type.
func (s *Store) CountMappingsByNodeType(ctx context.Context) (map[model.NodeType]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT node_type, COUNT(*) FROM mappings GROUP BY node_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count mappings: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.NodeType]int)
	for rows.Next() {
		var nt string
		var n int
		if err := rows.Scan(&nt, &n); err != nil {
			return nil, fmt.Errorf("failed to scan mapping count: %w", err)
		}
		counts[model.NodeType(nt)] = n
	}
	return counts, rows.Err()
}

// LastSyncTime returns the most recent last_sync_at across all mappings,
// or the zero time when nothing has synced yet.
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(last_sync_at), '') FROM mappings`)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sync time: %w", err)
	}
	return stringToTime(raw), nil
}

// FolderMappingForBoard returns the folder mapping whose placement is the
// given board with no category, i.e. the native folder mirroring the
// board itself.
func (s *Store) FolderMappingForBoard(ctx context.Context, boardID string) (*model.Mapping, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT native_id, local_id, node_type, board_id, category_id, last_sync_at
		FROM mappings WHERE node_type = ? AND board_id = ? AND category_id = ''
		LIMIT 1`, string(model.NodeTypeFolder), boardID)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("folder mapping for board %s: %w", boardID, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// FolderMappingForCategory returns the folder mapping mirroring the given
// category.
func (s *Store) FolderMappingForCategory(ctx context.Context, categoryID string) (*model.Mapping, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT native_id, local_id, node_type, board_id, category_id, last_sync_at
		FROM mappings WHERE node_type = ? AND category_id = ?
		LIMIT 1`, string(model.NodeTypeFolder), categoryID)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("folder mapping for category %s: %w", categoryID, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// ClearMappings removes every mapping record. Used when sync is reset.
func (s *Store) ClearMappings(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM mappings`); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}
	return nil
}

// CreateBookmarkWithMapping creates a bookmark and its mapping in one
// transaction so the pair appears atomically.
func (s *Store) CreateBookmarkWithMapping(ctx context.Context, bm *model.Bookmark, m *model.Mapping) error {
	m.Normalize()
	if m.LastSyncAt.IsZero() {
		m.LastSyncAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertBookmark(ctx, tx, bm); err != nil {
			return err
		}
		if m.LocalID == "" {
			m.LocalID = bm.ID
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mappings (native_id, local_id, node_type, board_id, category_id, last_sync_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(native_id) DO UPDATE SET
				local_id = excluded.local_id,
				node_type = excluded.node_type,
				board_id = excluded.board_id,
				category_id = excluded.category_id,
				last_sync_at = excluded.last_sync_at`,
			m.NativeID, m.LocalID, string(m.NodeType), m.BoardID, m.CategoryID,
			timeToString(m.LastSyncAt))
		if err != nil {
			return fmt.Errorf("failed to put mapping: %w", err)
		}
		return nil
	})
}

// GetSyncSettings returns the stored settings merged over defaults, so a
// partially written settings row still yields a complete value.
func (s *Store) GetSyncSettings(ctx context.Context) (model.SyncSettings, error) {
	settings := model.DefaultSyncSettings()

	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT settings FROM sync_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to get sync settings: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return model.DefaultSyncSettings(), fmt.Errorf("failed to decode sync settings: %w", err)
	}
	return settings, nil
}

// SaveSyncSettings merges the patch into the stored settings and persists
// the result, returning the merged value.
func (s *Store) SaveSyncSettings(ctx context.Context, patch model.SyncSettingsPatch) (model.SyncSettings, error) {
	settings, err := s.GetSyncSettings(ctx)
	if err != nil {
		return settings, err
	}
	patch.Apply(&settings)

	raw, err := json.Marshal(settings)
	if err != nil {
		return settings, fmt.Errorf("failed to encode sync settings: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO sync_settings (id, settings) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET settings = excluded.settings`, string(raw))
	if err != nil {
		return settings, fmt.Errorf("failed to save sync settings: %w", err)
	}
	return settings, nil
}

func (s *Store) queryMappings(ctx context.Context, query string, args ...any) ([]*model.Mapping, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*model.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func scanMapping(sc scanner) (*model.Mapping, error) {
	var m model.Mapping
	var nt, lastSync string
	if err := sc.Scan(&m.NativeID, &m.LocalID, &nt, &m.BoardID, &m.CategoryID, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}
	m.NodeType = model.NodeType(nt)
	m.LastSyncAt = stringToTime(lastSync)
	return &m, nil
}
