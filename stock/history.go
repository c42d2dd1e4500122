package stock

import (
	"sort"
	"strings"
)

// HistoryFilter selects ledger entries for the move history.
// Family "Transfer" matches both transfer legs; an empty Family matches all.
// Search matches the product name, reference document or partner, ignoring case.
type HistoryFilter struct {
	Family string
	Search string
}

func (f HistoryFilter) matchesType(t MovementType) bool {
	switch f.Family {
	case "", "All":
		return true
	case string(IntentTransfer):
		return t.IsTransfer()
	default:
		return string(t) == f.Family
	}
}

// History returns the matching entries, newest first. Product names come
// from ix; entries with an unknown product are searched by id. The legs of
// a transfer stay adjacent, Out before In.
func History(entries []Entry, ix *Index, f HistoryFilter) []Entry {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !f.matchesType(e.Type) {
			continue
		}
		if search != "" {
			name := string(e.ProductID)
			if ix != nil {
				if p, ok := ix.Product(e.ProductID); ok {
					name = p.Name
				}
			}
			if !containsFold(name, search) &&
				!containsFold(e.ReferenceDoc, search) &&
				!containsFold(e.Partner, search) {
				continue
			}
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if ka, kb := pairKey(a), pairKey(b); ka != kb {
			return ka > kb
		}
		return legRank(a.Type) < legRank(b.Type)
	})
	return out
}

func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}

// pairKey is the same for both legs of a transfer: the Out leg's id.
func pairKey(e Entry) EntryID {
	if e.Type == MoveTransferIn && e.CounterpartID != "" {
		return e.CounterpartID
	}
	return e.ID
}

func legRank(t MovementType) int {
	if t == MoveTransferIn {
		return 1
	}
	return 0
}
