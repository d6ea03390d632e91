package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// MinRating is the lowest accepted rating.
	MinRating = 0.0

	// MaxRating is the highest accepted rating.
	MaxRating = 5.0

	// DefaultTitle replaces a blank title on insert and edit.
	DefaultTitle = "Untitled"

	// DefaultDirector replaces a blank director on insert and edit.
	DefaultDirector = "Unknown"

	// WatchDateLayout is the display layout of DateWatched.
	WatchDateLayout = "01/02/2006"
)

// Review is one journal entry about a watched movie.
type Review struct {
	// ID is the unique identifier for the review (assigned by the store).
	ID int64

	// UserID is the owning user.
	UserID int64

	Title    string
	Director string

	// Genre is free text.
	Genre string

	// Body is the free-text review.
	Body string

	// DateWatched is a calendar date; the zero value means unset.
	DateWatched time.Time

	// TicketImagePath is the storage key of the ticket image, empty if none.
	TicketImagePath string

	IsFavorite bool

	CreatedAt time.Time
	UpdatedAt time.Time

	rating float64
}

// reviewDoc is the serialized form of a Review.
type reviewDoc struct {
	ID              int64     `json:"id" yaml:"id"`
	UserID          int64     `json:"user_id" yaml:"user_id"`
	Title           string    `json:"title" yaml:"title"`
	Director        string    `json:"director" yaml:"director"`
	Genre           string    `json:"genre" yaml:"genre"`
	Rating          float64   `json:"rating" yaml:"rating"`
	Body            string    `json:"review,omitempty" yaml:"review,omitempty"`
	DateWatched     string    `json:"date_watched" yaml:"date_watched"`
	TicketImagePath string    `json:"ticket_image_path,omitempty" yaml:"ticket_image_path,omitempty"`
	IsFavorite      bool      `json:"is_favorite" yaml:"is_favorite"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

func (r *Review) doc() reviewDoc {
	return reviewDoc{
		ID:              r.ID,
		UserID:          r.UserID,
		Title:           r.Title,
		Director:        r.Director,
		Genre:           r.Genre,
		Rating:          r.rating,
		Body:            r.Body,
		DateWatched:     r.DateWatchedString(),
		TicketImagePath: r.TicketImagePath,
		IsFavorite:      r.IsFavorite,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// MarshalJSON renders the rating and the MM/DD/YYYY watch date.
func (r *Review) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.doc())
}

// MarshalYAML implements yaml.Marshaler with the same fields as MarshalJSON.
func (r *Review) MarshalYAML() (interface{}, error) {
	return r.doc(), nil
}

// ReviewIdentity is the comparable identity of a review.
type ReviewIdentity struct {
	ID       int64
	UserID   int64
	Title    string
	Director string
}

// ReviewKey addresses one stored row.
type ReviewKey struct {
	ID     int64
	UserID int64
}

// NewReview builds a review from user input. An unparseable date
// falls back to today.
func NewReview(userID int64, title, director, genre string, rating float64, body, dateWatched string) *Review {
	r := &Review{
		UserID:      userID,
		Title:       title,
		Director:    director,
		Genre:       genre,
		Body:        body,
		DateWatched: ParseWatchDate(dateWatched),
	}
	r.SetRating(rating)
	return r
}

// Rating returns the rating in [0, 5].
func (r *Review) Rating() float64 {
	return r.rating
}

// SetRating stores rating when it lies in [0, 5]; other values are ignored.
func (r *Review) SetRating(rating float64) {
	if math.IsNaN(rating) || rating < MinRating || rating > MaxRating {
		return
	}
	r.rating = rating
}

// Key returns the (id, owner) pair addressing the stored row.
func (r *Review) Key() ReviewKey {
	return ReviewKey{ID: r.ID, UserID: r.UserID}
}

// Identity returns the fields that decide equality.
func (r *Review) Identity() ReviewIdentity {
	return ReviewIdentity{ID: r.ID, UserID: r.UserID, Title: r.Title, Director: r.Director}
}

// Equal reports whether both reviews have the same id, owner, title and director.
func (r *Review) Equal(other *Review) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Identity() == other.Identity()
}

// HasTicket reports whether a ticket image is attached.
func (r *Review) HasTicket() bool {
	return strings.TrimSpace(r.TicketImagePath) != ""
}

// DateWatchedString renders DateWatched as MM/DD/YYYY, or "" when unset.
func (r *Review) DateWatchedString() string {
	if r.DateWatched.IsZero() {
		return ""
	}
	return r.DateWatched.Format(WatchDateLayout)
}

// ApplyDefaults replaces blank required fields with their placeholders.
func (r *Review) ApplyDefaults() {
	if strings.TrimSpace(r.Title) == "" {
		r.Title = DefaultTitle
	}
	if strings.TrimSpace(r.Director) == "" {
		r.Director = DefaultDirector
	}
	if r.DateWatched.IsZero() {
		r.DateWatched = Today()
	}
}

// Clone returns a shallow copy of r.
func (r *Review) Clone() *Review {
	c := *r
	return &c
}

// Today returns the current local date at midnight.
func Today() time.Time {
	return DateOf(time.Now())
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// ParseWatchDate parses "M/D/YYYY" with one or two digit month and day.
// Any malformed or impossible date yields today's date.
func ParseWatchDate(s string) time.Time {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return Today()
	}
	if !isDigits(parts[0], 1, 2) || !isDigits(parts[1], 1, 2) || !isDigits(parts[2], 4, 4) {
		return Today()
	}

	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return Today()
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return Today()
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 1 {
		return Today()
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// time.Date normalises overflow (2/30 -> 3/1); reject those.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return Today()
	}
	return t
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
