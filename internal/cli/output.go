package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/repository"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation (bad credentials, duplicate, unknown review)
	ExitCommandError = 2 // Command error (bad flags, store unreachable)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose diagnostics; defaults to Writer
	Verbose   bool
}

// Print writes data in the configured format. text renders the human form.
func (f *OutputFormatter) Print(data interface{}, text func(w io.Writer) error) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return text(f.Writer)
}

// Message prints a one-line confirmation. Structured formats get {"message": ...}.
func (f *OutputFormatter) Message(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return f.Print(map[string]string{"message": msg}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, msg)
		return err
	})
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

const reviewRow = "%-4s  %-24s  %-20s  %-10s  %-6s  %-10s  %s"

// renderReviews writes one line per review followed by a count.
func renderReviews(w io.Writer, reviews []*domain.Review) error {
	var b strings.Builder
	b.WriteString(row(reviewRow, "ID", "TITLE", "DIRECTOR", "GENRE", "RATING", "WATCHED", "FAV"))
	for _, r := range reviews {
		fav := ""
		if r.IsFavorite {
			fav = "*"
		}
		b.WriteString(row(reviewRow,
			fmt.Sprint(r.ID),
			truncate(r.Title, 24),
			truncate(r.Director, 20),
			truncate(r.Genre, 10),
			fmt.Sprintf("%.1f", r.Rating()),
			r.DateWatchedString(),
			fav,
		))
	}
	fmt.Fprintf(&b, "%d %s\n", len(reviews), plural(len(reviews), "review", "reviews"))
	_, err := io.WriteString(w, b.String())
	return err
}

// renderReview writes every field of one review.
func renderReview(w io.Writer, r *domain.Review) error {
	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(strings.TrimRight(fmt.Sprintf("%-10s %s", name+":", value), " "))
		b.WriteByte('\n')
	}
	field("ID", fmt.Sprint(r.ID))
	field("Title", r.Title)
	field("Director", r.Director)
	field("Genre", r.Genre)
	field("Rating", fmt.Sprintf("%.1f", r.Rating()))
	field("Watched", r.DateWatchedString())
	field("Favorite", yesNo(r.IsFavorite))
	if r.HasTicket() {
		field("Ticket", r.TicketImagePath)
	}
	if body := strings.TrimSpace(r.Body); body != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(body, "\n") {
			b.WriteString(strings.TrimRight("  "+line, " "))
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

const userRow = "%-4s  %-20s  %-30s  %-6s  %s"

// renderUsers writes one line per user.
func renderUsers(w io.Writer, users []*domain.User) error {
	var b strings.Builder
	b.WriteString(row(userRow, "ID", "USERNAME", "EMAIL", "ACTIVE", "LAST LOGIN"))
	for _, u := range users {
		last := "never"
		if u.LastLogin != nil {
			last = u.LastLogin.Format("2006-01-02 15:04")
		}
		b.WriteString(row(userRow,
			fmt.Sprint(u.ID),
			truncate(u.Username, 20),
			truncate(u.Email, 30),
			yesNo(u.IsActive),
			last,
		))
	}
	fmt.Fprintf(&b, "%d %s\n", len(users), plural(len(users), "user", "users"))
	_, err := io.WriteString(w, b.String())
	return err
}

// renderUser writes the public fields of one user.
func renderUser(w io.Writer, u *domain.User) error {
	_, err := fmt.Fprintf(w, "%s <%s> (id %d)\n", u.Username, u.Email, u.ID)
	return err
}

// renderStats writes the aggregate values of a ledger.
func renderStats(w io.Writer, stats *repository.ReviewStats) error {
	_, err := fmt.Fprintf(w,
		"Total reviews:   %d\nAverage rating:  %.2f\nTheater visits:  %d\nFavorites:       %d\n",
		stats.Total, stats.AverageRating, stats.TheaterVisits, stats.Favorites)
	return err
}

func row(format string, cols ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, cols...), " ") + "\n"
}

// truncate shortens s to n runes, marking the cut with "~".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "~"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
