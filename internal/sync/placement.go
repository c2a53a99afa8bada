package sync

// Placement is the catalog position a native folder or bookmark resolves
// to: a board, optionally a category under it.
type Placement struct {
	BoardTitle    string
	CategoryTitle string

	// Flattened reports that the node sits deeper than the two-level
	// catalog can represent, so its ancestry context was collapsed and
	// the original folder path is worth preserving in a note.
	Flattened bool
}

// ResolvePlacement maps a folder depth and ancestor folder titles onto
// the two-level catalog.
//
// Depth counts folders below the import root: depth 1 folders become
// Boards, depth 2 folders become Categories under their parent Board,
// and anything deeper keeps the deepest Board/Category context from its
// ancestors without creating further structure. ancestorTitles lists the
// folder titles below the import root, outermost first, down to the
// folder being placed (or a bookmark's containing folder).
//
// The rule is pure so it can be tested independently of tree traversal.
func ResolvePlacement(depth int, ancestorTitles []string) Placement {
	if depth > len(ancestorTitles) {
		depth = len(ancestorTitles)
	}
	var p Placement
	if depth >= 1 {
		p.BoardTitle = ancestorTitles[0]
	}
	if depth >= 2 {
		p.CategoryTitle = ancestorTitles[1]
	}
	p.Flattened = depth > 2
	return p
}
