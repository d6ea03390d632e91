// Package sortorder orders review lists for display.
package sortorder

import (
	"sort"
	"strings"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/pkg/fold"
)

// Kind identifies one of the supported orderings.
type Kind int

const (
	// DateNewest orders by watch date descending, unset dates last, then id descending.
	DateNewest Kind = iota
	// DateOldest orders by watch date ascending, unset dates first, then id ascending.
	DateOldest
	// RatingHigh orders by rating descending, then title ascending.
	RatingHigh
	// RatingLow orders by rating ascending, then title ascending.
	RatingLow
	// TitleAZ orders by title ascending ignoring case, blank titles last, then director ascending.
	TitleAZ
	// TitleZA orders by title descending ignoring case, blank titles last, then director descending.
	TitleZA
)

// Default is used whenever a label is not recognised.
const Default = DateNewest

var labels = [...]string{
	DateNewest: "Date (Newest)",
	DateOldest: "Date (Oldest)",
	RatingHigh: "Rating (High)",
	RatingLow:  "Rating (Low)",
	TitleAZ:    "Title (A-Z)",
	TitleZA:    "Title (Z-A)",
}

// Kinds returns every ordering in display order.
func Kinds() []Kind {
	return []Kind{DateNewest, DateOldest, RatingHigh, RatingLow, TitleAZ, TitleZA}
}

// Labels returns the display labels in the order of Kinds.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels[:])
	return out
}

// String returns the display label.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(labels) {
		return labels[Default]
	}
	return labels[k]
}

// Parse maps a display label to its Kind. Unknown or blank labels yield Default.
func Parse(label string) Kind {
	label = strings.TrimSpace(label)
	for i, l := range labels {
		if strings.EqualFold(l, label) {
			return Kind(i)
		}
	}
	return Default
}

// Apply returns a new slice holding reviews in the order selected by kind.
// The input slice is left untouched.
func Apply(kind Kind, reviews []*domain.Review) []*domain.Review {
	entries := make([]entry, 0, len(reviews))
	for _, r := range reviews {
		if r != nil {
			entries = append(entries, newEntry(r))
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return less(kind, &entries[i], &entries[j])
	})

	out := make([]*domain.Review, len(entries))
	for i := range entries {
		out[i] = entries[i].review
	}
	return out
}

// entry carries the case-folded sort keys of one review.
type entry struct {
	review     *domain.Review
	title      string
	director   string
	blankTitle bool
}

func newEntry(r *domain.Review) entry {
	return entry{
		review:     r,
		title:      fold.String(r.Title),
		director:   fold.String(r.Director),
		blankTitle: strings.TrimSpace(r.Title) == "",
	}
}

func less(kind Kind, a, b *entry) bool {
	ra, rb := a.review, b.review
	switch kind {
	case DateOldest:
		if c := compareDates(ra, rb); c != 0 {
			return c < 0
		}
		return ra.ID < rb.ID
	case RatingHigh:
		if ra.Rating() != rb.Rating() {
			return ra.Rating() > rb.Rating()
		}
		return a.title < b.title
	case RatingLow:
		if ra.Rating() != rb.Rating() {
			return ra.Rating() < rb.Rating()
		}
		return a.title < b.title
	case TitleAZ:
		if c, done := compareTitles(a, b); done {
			return c < 0
		}
		return a.director < b.director
	case TitleZA:
		if c, done := compareTitles(a, b); done {
			// blank titles stay last in both directions
			if a.blankTitle != b.blankTitle {
				return c < 0
			}
			return c > 0
		}
		return a.director > b.director
	default:
		// reversing the ascending order also moves unset dates last
		if c := compareDates(ra, rb); c != 0 {
			return c > 0
		}
		return ra.ID > rb.ID
	}
}

// compareDates orders unset dates before set ones.
func compareDates(a, b *domain.Review) int {
	az, bz := a.DateWatched.IsZero(), b.DateWatched.IsZero()
	switch {
	case az && bz:
		return 0
	case az:
		return -1
	case bz:
		return 1
	}
	return a.DateWatched.Compare(b.DateWatched)
}

// compareTitles orders blank titles after non-blank ones and reports whether
// the titles differ.
func compareTitles(a, b *entry) (int, bool) {
	switch {
	case a.blankTitle && b.blankTitle:
		return 0, false
	case a.blankTitle:
		return 1, true
	case b.blankTitle:
		return -1, true
	}
	c := strings.Compare(a.title, b.title)
	return c, c != 0
}
