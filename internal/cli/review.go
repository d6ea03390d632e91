package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/prn-tf/cinelog/internal/app"
	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/service"
	"github.com/prn-tf/cinelog/internal/sortorder"
)

// reviewOptions selects the ledger review subcommands work on.
type reviewOptions struct {
	*RootOptions
	user     string
	password string
	all      bool
}

// NewReviewCommand creates the review command group.
// Subcommands log in with --user/--password and work on that user's reviews;
// --all works on every user's reviews instead and needs no credentials.
func NewReviewCommand(opts *RootOptions) *cobra.Command {
	ro := &reviewOptions{RootOptions: opts}

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage movie reviews",
	}

	cmd.PersistentFlags().StringVarP(&ro.user, "user", "u", "", "username or email of the journal owner")
	cmd.PersistentFlags().StringVar(&ro.password, "password", "", "password (default $"+PasswordEnv+")")
	cmd.PersistentFlags().BoolVar(&ro.all, "all", false, "operate on the reviews of every user")

	cmd.AddCommand(newReviewAddCommand(ro))
	cmd.AddCommand(newReviewListCommand(ro))
	cmd.AddCommand(newReviewShowCommand(ro))
	cmd.AddCommand(newReviewEditCommand(ro))
	cmd.AddCommand(newReviewDeleteCommand(ro))
	cmd.AddCommand(newReviewFavoriteCommand(ro))
	cmd.AddCommand(newReviewStatsCommand(ro))
	cmd.AddCommand(newReviewTicketCommand(ro))
	cmd.AddCommand(newReviewSortsCommand(ro))

	return cmd
}

// ledger resolves the scope from the flags and opens a ledger over it.
func (ro *reviewOptions) ledger(ctx context.Context, a *app.App) (*service.ReviewService, error) {
	if ro.all {
		return a.Reviews(ctx, domain.GlobalScope()), nil
	}
	if ro.user == "" {
		return nil, NewExitError(ExitCommandError, "either --user or --all is required")
	}
	user, err := authenticate(ctx, a, ro.user, ro.password)
	if err != nil {
		return nil, err
	}
	return a.Reviews(ctx, domain.UserScope(user.ID)), nil
}

func (ro *reviewOptions) run(cmd *cobra.Command, fn func(ctx context.Context, ledger *service.ReviewService) error) error {
	return withApp(cmd, ro.RootOptions, func(ctx context.Context, a *app.App) error {
		ledger, err := ro.ledger(ctx, a)
		if err != nil {
			return err
		}
		return fn(ctx, ledger)
	})
}

// reviewFields are the editable fields shared by add and edit.
type reviewFields struct {
	title, director, genre string
	rating                 float64
	body, date             string
	favorite               bool
}

func (f *reviewFields) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "movie title")
	cmd.Flags().StringVar(&f.director, "director", "", "director")
	cmd.Flags().StringVar(&f.genre, "genre", "", "genre")
	cmd.Flags().Float64Var(&f.rating, "rating", 0, "rating from 0 to 5")
	cmd.Flags().StringVar(&f.body, "review", "", "review text")
	cmd.Flags().StringVar(&f.date, "date", "", "date watched as MM/DD/YYYY (default today)")
	cmd.Flags().BoolVar(&f.favorite, "favorite", false, "mark as favorite")
}

func newReviewAddCommand(ro *reviewOptions) *cobra.Command {
	var f reviewFields

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ro.all {
				return NewExitError(ExitCommandError, "add needs --user: a review belongs to one user")
			}
			if f.rating < domain.MinRating || f.rating > domain.MaxRating {
				return NewExitError(ExitCommandError, fmt.Sprintf("rating must be between %.0f and %.0f", domain.MinRating, domain.MaxRating))
			}
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				review := domain.NewReview(0, f.title, f.director, f.genre, f.rating, f.body, f.date)
				review.IsFavorite = f.favorite
				if !ledger.Add(ctx, review) {
					return NewExitError(ExitFailure, "review not added: a review of this title and director already exists")
				}
				return ro.formatter(cmd).Print(review, func(w io.Writer) error {
					return renderReview(w, review)
				})
			})
		},
	}
	f.bind(cmd)

	return cmd
}

func newReviewListCommand(ro *reviewOptions) *cobra.Command {
	var query, sortLabel string
	var favorites bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				var reviews []*domain.Review
				if favorites {
					reviews = ledger.Favorites(ctx)
				} else {
					reviews = ledger.Search(ctx, query)
				}
				reviews = sortorder.Apply(sortorder.Parse(sortLabel), reviews)

				return ro.formatter(cmd).Print(reviews, func(w io.Writer) error {
					return renderReviews(w, reviews)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "match title, director or genre")
	cmd.Flags().StringVar(&sortLabel, "sort", sortorder.Default.String(), "sort order (see 'review sorts')")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "only favorites")

	return cmd
}

func newReviewShowCommand(ro *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				review, err := findReview(ctx, ledger, args[0])
				if err != nil {
					return err
				}
				return ro.formatter(cmd).Print(review, func(w io.Writer) error {
					return renderReview(w, review)
				})
			})
		},
	}
}

func newReviewEditCommand(ro *reviewOptions) *cobra.Command {
	var f reviewFields

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				original, err := findReview(ctx, ledger, args[0])
				if err != nil {
					return err
				}

				updated := original.Clone()
				flags := cmd.Flags()
				if flags.Changed("title") {
					updated.Title = f.title
				}
				if flags.Changed("director") {
					updated.Director = f.director
				}
				if flags.Changed("genre") {
					updated.Genre = f.genre
				}
				if flags.Changed("rating") {
					if f.rating < domain.MinRating || f.rating > domain.MaxRating {
						return NewExitError(ExitCommandError, "rating must be between 0 and 5")
					}
					updated.SetRating(f.rating)
				}
				if flags.Changed("review") {
					updated.Body = f.body
				}
				if flags.Changed("date") {
					updated.DateWatched = domain.ParseWatchDate(f.date)
				}
				if flags.Changed("favorite") {
					updated.IsFavorite = f.favorite
				}

				if !ledger.Update(ctx, original, updated) {
					return NewExitError(ExitFailure, "review not updated")
				}
				return ro.formatter(cmd).Print(updated, func(w io.Writer) error {
					return renderReview(w, updated)
				})
			})
		},
	}
	f.bind(cmd)

	return cmd
}

func newReviewDeleteCommand(ro *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete one or more reviews",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				reviews := make([]*domain.Review, 0, len(args))
				for _, arg := range args {
					review, err := findReview(ctx, ledger, arg)
					if err != nil {
						return err
					}
					reviews = append(reviews, review)
				}

				var n int
				if len(reviews) == 1 {
					if ledger.Delete(ctx, reviews[0]) {
						n = 1
					}
				} else {
					n = ledger.DeleteMany(ctx, reviews)
				}
				if n == 0 {
					return NewExitError(ExitFailure, "nothing deleted")
				}
				return ro.formatter(cmd).Message("deleted %d %s", n, plural(n, "review", "reviews"))
			})
		},
	}
}

func newReviewFavoriteCommand(ro *reviewOptions) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "favorite ID",
		Short: "Mark a review as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				review, err := findReview(ctx, ledger, args[0])
				if err != nil {
					return err
				}
				if !ledger.SetFavorite(ctx, review, !off) {
					return NewExitError(ExitFailure, "favorite flag not changed")
				}
				if off {
					return ro.formatter(cmd).Message("%q is no longer a favorite", review.Title)
				}
				return ro.formatter(cmd).Message("%q is now a favorite", review.Title)
			})
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "clear the favorite flag instead")

	return cmd
}

func newReviewStatsCommand(ro *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show review statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				stats := ledger.Statistics(ctx)
				return ro.formatter(cmd).Print(stats, func(w io.Writer) error {
					return renderStats(w, stats)
				})
			})
		},
	}
}

func newReviewTicketCommand(ro *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ticket ID IMAGE",
		Short: "Attach a ticket image to a review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd, func(ctx context.Context, ledger *service.ReviewService) error {
				review, err := findReview(ctx, ledger, args[0])
				if err != nil {
					return err
				}

				f, err := os.Open(args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "cannot read ticket image", err)
				}
				defer f.Close()

				if !ledger.AttachTicket(ctx, review, f, filepath.Ext(args[1])) {
					return NewExitError(ExitFailure, "ticket image not attached")
				}
				return ro.formatter(cmd).Print(review, func(w io.Writer) error {
					return renderReview(w, review)
				})
			})
		},
	}
}

func newReviewSortsCommand(ro *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sorts",
		Short: "List the accepted --sort labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels := sortorder.Labels()
			return ro.formatter(cmd).Print(labels, func(w io.Writer) error {
				for _, l := range labels {
					if _, err := fmt.Fprintln(w, l); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// findReview looks id up among the reviews visible to ledger.
func findReview(ctx context.Context, ledger *service.ReviewService, arg string) (*domain.Review, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid review id %q", arg))
	}
	if review := ledger.Get(ctx, id); review != nil {
		return review, nil
	}
	return nil, NewExitError(ExitFailure, fmt.Sprintf("review %d not found", id))
}
