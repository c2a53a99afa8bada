package sync

import (
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
)

// Source identifies which side won a field resolution.
type Source string

const (
	// SourceLocal means the catalog's value was kept.
	SourceLocal Source = "local"

	// SourceNative means the native tree's value was applied.
	SourceNative Source = "native"
)

// FieldResolution is the outcome of resolving one field.
type FieldResolution struct {
	Value  string
	Source Source
}

// ResolveField decides which of two timestamped values wins.
//
// Under any policy other than last-writer-wins the local value always
// wins. Under last-writer-wins, missing timestamps are defaulted so that
// an untimestamped native change counts as concurrent rather than stale:
// a zero native timestamp becomes "now", and a zero local timestamp
// becomes the native's effective timestamp. The native side then wins
// only when its effective timestamp is strictly greater than local's.
//
// ResolveField is pure and never fails; it always returns a winner.
func ResolveField(local string, localUpdatedAt time.Time, native string, nativeUpdatedAt time.Time, policy model.ConflictPolicy) FieldResolution {
	if policy != model.PolicyLastWriterWins {
		return FieldResolution{Value: local, Source: SourceLocal}
	}

	nativeEffective := nativeUpdatedAt
	if nativeEffective.IsZero() {
		nativeEffective = time.Now().UTC()
	}
	localEffective := localUpdatedAt
	if localEffective.IsZero() {
		localEffective = nativeEffective
	}

	if nativeEffective.After(localEffective) {
		return FieldResolution{Value: native, Source: SourceNative}
	}
	return FieldResolution{Value: local, Source: SourceLocal}
}

// BookmarkResolution is the merged outcome of a bookmark-level conflict.
type BookmarkResolution struct {
	Title     string
	URL       string
	UpdatedAt time.Time

	// NativeWon reports whether any field took the native value.
	NativeWon bool
}

// ResolveBookmarkConflict applies ResolveField per field (title, url) and
// computes an aggregate UpdatedAt reflecting whichever source won.
//
// Empty native values are treated as "not reported" and keep the local
// value, matching hosts that deliver partial change payloads.
func ResolveBookmarkConflict(local *model.Bookmark, nativeTitle, nativeURL string, nativeUpdatedAt time.Time, policy model.ConflictPolicy) BookmarkResolution {
	res := BookmarkResolution{
		Title:     local.Title,
		URL:       local.URL,
		UpdatedAt: local.UpdatedAt,
	}

	if nativeTitle != "" && nativeTitle != local.Title {
		r := ResolveField(local.Title, local.UpdatedAt, nativeTitle, nativeUpdatedAt, policy)
		res.Title = r.Value
		if r.Source == SourceNative {
			res.NativeWon = true
		}
	}
	if nativeURL != "" && nativeURL != local.URL {
		r := ResolveField(local.URL, local.UpdatedAt, nativeURL, nativeUpdatedAt, policy)
		res.URL = r.Value
		if r.Source == SourceNative {
			res.NativeWon = true
		}
	}

	if res.NativeWon {
		res.UpdatedAt = nativeUpdatedAt
		if res.UpdatedAt.IsZero() {
			res.UpdatedAt = time.Now().UTC()
		}
	}
	return res
}
