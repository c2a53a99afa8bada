package store

// schemaSQL creates all tables and indexes. Every statement is idempotent
// so Open can run it unconditionally.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS boards (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
    id         TEXT PRIMARY KEY,
    board_id   TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
    title      TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_categories_board ON categories(board_id);

CREATE TABLE IF NOT EXISTS bookmarks (
    id          TEXT PRIMARY KEY,
    url         TEXT NOT NULL,
    title       TEXT NOT NULL,
    category_id TEXT,
    tags        TEXT NOT NULL DEFAULT '[]',
    notes       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_category ON bookmarks(category_id);
CREATE INDEX IF NOT EXISTS idx_bookmarks_url ON bookmarks(url);

CREATE TABLE IF NOT EXISTS mappings (
    native_id    TEXT PRIMARY KEY,
    local_id     TEXT NOT NULL DEFAULT '',
    node_type    TEXT NOT NULL,
    board_id     TEXT NOT NULL DEFAULT '',
    category_id  TEXT NOT NULL DEFAULT '',
    last_sync_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mappings_local ON mappings(local_id);
CREATE INDEX IF NOT EXISTS idx_mappings_type ON mappings(node_type);
CREATE INDEX IF NOT EXISTS idx_mappings_board ON mappings(board_id);
CREATE INDEX IF NOT EXISTS idx_mappings_category ON mappings(category_id);

CREATE TABLE IF NOT EXISTS sync_settings (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    settings TEXT NOT NULL
);
`
