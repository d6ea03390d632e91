package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReview_SetRating(t *testing.T) {
	r := &Review{}
	r.SetRating(3.5)
	require.Equal(t, 3.5, r.Rating())

	for _, bad := range []float64{-0.1, 5.01, -100, 42, math.NaN(), math.Inf(1), math.Inf(-1)} {
		r.SetRating(bad)
		require.Equal(t, 3.5, r.Rating(), "rating %v must be ignored", bad)
	}

	for _, good := range []float64{0, 0.5, 2.7, 5} {
		r.SetRating(good)
		require.Equal(t, good, r.Rating())
	}
}

func TestNewReview_OutOfRangeRatingStaysZero(t *testing.T) {
	r := NewReview(1, "Inception", "Christopher Nolan", "Sci-Fi", 7, "", "12/15/2023")
	require.Zero(t, r.Rating())
}

func TestParseWatchDate(t *testing.T) {
	valid := []struct {
		in   string
		want string
	}{
		{"12/15/2023", "12/15/2023"},
		{"1/5/2024", "01/05/2024"},
		{"10/05/2023", "10/05/2023"},
		{"2/29/2024", "02/29/2024"},
		{" 3/7/1999 ", "03/07/1999"},
	}
	for _, tt := range valid {
		r := NewReview(1, "t", "d", "", 1, "", tt.in)
		require.Equal(t, tt.want, r.DateWatchedString(), "input %q", tt.in)
	}

	invalid := []string{
		"",
		"   ",
		"2023-12-15",
		"12/15",
		"12/15/2023/1",
		"aa/bb/cccc",
		"13/01/2023",
		"2/30/2023",
		"2/29/2023",
		"0/10/2023",
		"+1/10/2023",
		"1/10/23",
		"123/1/2023",
	}
	for _, in := range invalid {
		before := Today()
		got := ParseWatchDate(in)
		after := Today()
		require.True(t, got.Equal(before) || got.Equal(after), "input %q parsed to %v", in, got)
	}
}

func TestReview_DateWatchedStringUnset(t *testing.T) {
	require.Empty(t, (&Review{}).DateWatchedString())
}

func TestReview_ApplyDefaults(t *testing.T) {
	r := &Review{Title: "  ", Director: ""}
	r.ApplyDefaults()

	require.Equal(t, DefaultTitle, r.Title)
	require.Equal(t, DefaultDirector, r.Director)
	require.Empty(t, r.Genre)
	require.Empty(t, r.Body)
	require.Equal(t, Today(), r.DateWatched)

	kept := &Review{Title: "Heat", Director: "Michael Mann", DateWatched: time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local)}
	kept.ApplyDefaults()
	require.Equal(t, "Heat", kept.Title)
	require.Equal(t, "Michael Mann", kept.Director)
	require.Equal(t, "01/02/2020", kept.DateWatchedString())
}

func TestReview_Equal(t *testing.T) {
	a := NewReview(1, "Inception", "Christopher Nolan", "Sci-Fi", 4.5, "great", "12/15/2023")
	a.ID = 10
	b := NewReview(1, "Inception", "Christopher Nolan", "Drama", 1.0, "meh", "01/01/2020")
	b.ID = 10

	require.True(t, a.Equal(b), "rating, genre and date are not part of identity")

	b.UserID = 2
	require.False(t, a.Equal(b))

	var nilReview *Review
	require.False(t, a.Equal(nil))
	require.True(t, nilReview.Equal(nil))
}

func TestReview_HasTicket(t *testing.T) {
	require.False(t, (&Review{}).HasTicket())
	require.False(t, (&Review{TicketImagePath: "  "}).HasTicket())
	require.True(t, (&Review{TicketImagePath: "ab/cd/abcd.png"}).HasTicket())
}

func TestScope(t *testing.T) {
	g := GlobalScope()
	require.True(t, g.IsGlobal())
	require.True(t, g.Owns(7))
	require.Equal(t, "global", g.String())

	u := UserScope(0)
	id, ok := u.UserID()
	require.True(t, ok)
	require.Zero(t, id)
	require.False(t, u.IsGlobal(), "user 0 is a real owner, not the global scope")
	require.True(t, u.Owns(0))
	require.False(t, u.Owns(1))
	require.Equal(t, "user:0", u.String())
}

func TestReview_MarshalJSON(t *testing.T) {
	r := NewReview(3, "Inception", "Christopher Nolan", "Sci-Fi", 4.5, "", "12/15/2023")
	r.ID = 9

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, 4.5, got["rating"])
	require.Equal(t, "12/15/2023", got["date_watched"])
	require.EqualValues(t, 9, got["id"])
	require.NotContains(t, got, "review")
	require.NotContains(t, got, "ticket_image_path")

	doc, err := r.MarshalYAML()
	require.NoError(t, err)
	require.Equal(t, 4.5, doc.(reviewDoc).Rating)
}
