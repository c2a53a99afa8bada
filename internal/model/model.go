// Package model provides the data structures shared by the Link-o-Saurus
// catalog, mapping store, and sync engine.
//
// The catalog is a flat two-level model: a Board groups Categories, and a
// Category groups Bookmarks. The browser's native bookmark tree is mapped
// onto this model by the sync engine; the Mapping record is the only
// correlation between the two id spaces.
package model

import (
	"fmt"
	"strings"
	"time"
)

// NodeType classifies which side of the native tree a Mapping refers to.
type NodeType string

const (
	// NodeTypeBookmark marks a mapping for a native bookmark node (has a URL).
	NodeTypeBookmark NodeType = "bookmark"

	// NodeTypeFolder marks a mapping for a native folder node.
	NodeTypeFolder NodeType = "folder"
)

// Valid reports whether nt is one of the two defined node types.
func (nt NodeType) Valid() bool {
	return nt == NodeTypeBookmark || nt == NodeTypeFolder
}

// Board is the top-level grouping in the catalog.
type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is the second-level grouping, always owned by a Board.
type Category struct {
	ID        string `json:"id"`
	BoardID   string `json:"board_id"`
	Title     string `json:"title"`
	SortOrder int    `json:"sort_order"`
}

// Bookmark is a single saved link in the catalog.
//
// CategoryID may be empty for uncategorized bookmarks. Notes carries
// free-form markdown, including the "Imported from path: ..." note the
// importer attaches when folder depth information would otherwise be lost.
type Bookmark struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	CategoryID string    `json:"category_id,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Mapping correlates one native tree node with its catalog counterpart.
//
// There is at most one Mapping per native id. A bookmark-type mapping has
// LocalID set once the local Bookmark exists; a folder-type mapping never
// has a LocalID. BoardID/CategoryID record the catalog placement the native
// node currently resolves to.
type Mapping struct {
	NativeID   string    `json:"native_id"`
	LocalID    string    `json:"local_id,omitempty"`
	NodeType   NodeType  `json:"node_type"`
	BoardID    string    `json:"board_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Normalize trims whitespace from all id fields in place.
func (m *Mapping) Normalize() {
	m.NativeID = strings.TrimSpace(m.NativeID)
	m.LocalID = strings.TrimSpace(m.LocalID)
	m.BoardID = strings.TrimSpace(m.BoardID)
	m.CategoryID = strings.TrimSpace(m.CategoryID)
}

// Validate checks the Mapping invariants before it is written to the store.
func (m *Mapping) Validate() error {
	if m.NativeID == "" {
		return fmt.Errorf("native id is required")
	}
	if !m.NodeType.Valid() {
		return fmt.Errorf("node type must be %q or %q (got %q)",
			NodeTypeBookmark, NodeTypeFolder, m.NodeType)
	}
	if m.NodeType == NodeTypeFolder && m.LocalID != "" {
		return fmt.Errorf("folder mapping must not carry a local id")
	}
	return nil
}

// ConflictPolicy selects how concurrent edits of the same bookmark field
// are resolved. Only last-writer-wins is defined; any other value means
// the local side always wins.
type ConflictPolicy string

// PolicyLastWriterWins resolves field conflicts by effective timestamp.
const PolicyLastWriterWins ConflictPolicy = "last-writer-wins"

// DeleteBehavior selects what a local deletion does to the mirrored
// native node.
type DeleteBehavior string

const (
	// DeleteBehaviorDelete removes the native node when the local
	// bookmark is deleted.
	DeleteBehaviorDelete DeleteBehavior = "delete"

	// DeleteBehaviorArchive keeps the native node but severs the
	// correlation (the mapping record is still deleted).
	DeleteBehaviorArchive DeleteBehavior = "archive"
)

// SyncSettings is the process-wide sync configuration. It is loaded once
// at engine construction and mutable through the settings surface.
type SyncSettings struct {
	// EnableBidirectional is the master switch; when false both sync
	// engines are no-ops.
	EnableBidirectional bool `json:"enable_bidirectional"`

	// MirrorRootName is the display name of the native folder under
	// which outbound-created nodes are nested.
	MirrorRootName string `json:"mirror_root_name"`

	// ImportFolderHierarchy controls whether folder depth maps to
	// Board/Category placement or everything collapses into one
	// default placement.
	ImportFolderHierarchy bool `json:"import_folder_hierarchy"`

	// ConflictPolicy picks the field-level conflict winner.
	ConflictPolicy ConflictPolicy `json:"conflict_policy"`

	// DeleteBehavior picks what local deletion does to the native node.
	DeleteBehavior DeleteBehavior `json:"delete_behavior"`
}

// DefaultSyncSettings returns the settings used before the user has
// configured anything.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		EnableBidirectional:   true,
		MirrorRootName:        "Link-o-Saurus",
		ImportFolderHierarchy: true,
		ConflictPolicy:        PolicyLastWriterWins,
		DeleteBehavior:        DeleteBehaviorDelete,
	}
}

// SyncSettingsPatch is a partial update merged into stored settings.
// Nil fields keep their stored value.
type SyncSettingsPatch struct {
	EnableBidirectional   *bool           `json:"enable_bidirectional,omitempty"`
	MirrorRootName        *string         `json:"mirror_root_name,omitempty"`
	ImportFolderHierarchy *bool           `json:"import_folder_hierarchy,omitempty"`
	ConflictPolicy        *ConflictPolicy `json:"conflict_policy,omitempty"`
	DeleteBehavior        *DeleteBehavior `json:"delete_behavior,omitempty"`
}

// Apply merges the patch into s.
func (p SyncSettingsPatch) Apply(s *SyncSettings) {
	if p.EnableBidirectional != nil {
		s.EnableBidirectional = *p.EnableBidirectional
	}
	if p.MirrorRootName != nil {
		s.MirrorRootName = *p.MirrorRootName
	}
	if p.ImportFolderHierarchy != nil {
		s.ImportFolderHierarchy = *p.ImportFolderHierarchy
	}
	if p.ConflictPolicy != nil {
		s.ConflictPolicy = *p.ConflictPolicy
	}
	if p.DeleteBehavior != nil {
		s.DeleteBehavior = *p.DeleteBehavior
	}
}
