package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/prn-tf/cinelog/internal/app"
	"github.com/prn-tf/cinelog/internal/config"
)

// testOpener opens a fresh sqlite journal under a temp dir. Every command
// run with it sees the same database file.
func testOpener(t *testing.T) Opener {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(dir, "cinelog.db")
	cfg.Storage.Backend = "filesystem"
	cfg.Storage.DataDir = filepath.Join(dir, "tickets")
	cfg.Redis.Enabled = false
	cfg.Auth.BcryptCost = bcrypt.MinCost

	return func(ctx context.Context, opts *RootOptions) (*app.App, error) {
		return app.Open(ctx, cfg, zerolog.Nop())
	}
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, open Opener, args ...string) string {
	t.Helper()
	out, err := execute(t, open, args...)
	require.NoError(t, err, "cinelog %v: %s", args, out)
	return out
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil)
	require.NotNil(t, cmd)
	assert.Equal(t, "cinelog", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	commands := [][]string{
		{"user", "register"}, {"user", "login"}, {"user", "passwd"}, {"user", "deactivate"}, {"user", "list"},
		{"review", "add"}, {"review", "list"}, {"review", "show"}, {"review", "edit"}, {"review", "delete"},
		{"review", "favorite"}, {"review", "stats"}, {"review", "ticket"}, {"review", "sorts"},
		{"serve"}, {"migrate"}, {"version"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(nil)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestReviewCommandFlags(t *testing.T) {
	cmd := NewRootCommand(nil)
	reviewCmd, _, err := cmd.Find([]string{"review"})
	require.NoError(t, err)

	for _, name := range []string{"user", "password", "all"} {
		assert.NotNil(t, reviewCmd.PersistentFlags().Lookup(name), name)
	}

	listCmd, _, err := cmd.Find([]string{"review", "list"})
	require.NoError(t, err)
	sortFlag := listCmd.Flags().Lookup("sort")
	require.NotNil(t, sortFlag)
	assert.Equal(t, "Date (Newest)", sortFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, nil, "--format", "xml", "version")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersionCommand(t *testing.T) {
	out := mustExecute(t, nil, "version")
	assert.Contains(t, out, "cinelog dev")

	out = mustExecute(t, nil, "--format", "json", "version")
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
}

func TestUserCommands(t *testing.T) {
	open := testOpener(t)

	out := mustExecute(t, open, "user", "register", "--username", "alice", "--email", "alice@example.com", "--password", "secret1")
	assert.Contains(t, out, "alice <alice@example.com>")

	_, err := execute(t, open, "user", "register", "--username", "ALICE", "--email", "other@example.com", "--password", "secret1")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	mustExecute(t, open, "user", "login", "-u", "alice@example.com", "--password", "secret1")
	_, err = execute(t, open, "user", "login", "-u", "alice", "--password", "wrong!!")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	mustExecute(t, open, "user", "passwd", "-u", "alice", "--password", "secret1", "--new-password", "secret2")
	mustExecute(t, open, "user", "login", "-u", "alice", "--password", "secret2")

	out = mustExecute(t, open, "user", "list")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1 user\n")

	mustExecute(t, open, "user", "deactivate", "alice")
	_, err = execute(t, open, "user", "login", "-u", "alice", "--password", "secret2")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, open, "user", "deactivate", "nobody")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

type listedReview struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Rating     float64 `json:"rating"`
	IsFavorite bool    `json:"is_favorite"`
}

func listJSON(t *testing.T, open Opener, args ...string) []listedReview {
	t.Helper()
	out := mustExecute(t, open, append([]string{"--format", "json", "review", "list"}, args...)...)
	var got []listedReview
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got
}

func TestReviewCommands(t *testing.T) {
	open := testOpener(t)
	t.Setenv(PasswordEnv, "secret1")

	mustExecute(t, open, "user", "register", "--username", "alice", "--email", "alice@example.com")
	mustExecute(t, open, "user", "register", "--username", "bob", "--email", "bob@example.com")

	out := mustExecute(t, open, "review", "add", "-u", "alice",
		"--title", "Inception", "--director", "Christopher Nolan", "--genre", "Sci-Fi",
		"--rating", "4.5", "--date", "12/15/2023")
	assert.Contains(t, out, "Title:     Inception")

	mustExecute(t, open, "review", "add", "-u", "alice",
		"--title", "Titanic", "--director", "James Cameron", "--genre", "Romance", "--rating", "4", "--date", "10/5/2023")
	mustExecute(t, open, "review", "add", "-u", "bob", "--title", "Heat", "--director", "Michael Mann", "--rating", "3")

	_, err := execute(t, open, "review", "add", "-u", "alice", "--title", "Inception", "--director", "Christopher Nolan")
	assert.Equal(t, ExitFailure, GetExitCode(err), "duplicate title and director")

	_, err = execute(t, open, "review", "add", "-u", "alice", "--title", "Dune", "--rating", "7")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, open, "review", "list")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "no scope selected")

	alice := listJSON(t, open, "-u", "alice", "--sort", "Title (A-Z)")
	require.Len(t, alice, 2)
	assert.Equal(t, "Inception", alice[0].Title)
	assert.Equal(t, "Titanic", alice[1].Title)

	assert.Len(t, listJSON(t, open, "--all"), 3)
	assert.Len(t, listJSON(t, open, "-u", "bob"), 1)

	found := listJSON(t, open, "-u", "alice", "-q", "nolan")
	require.Len(t, found, 1)
	inceptionID := found[0].ID

	out = mustExecute(t, open, "review", "list", "-u", "alice")
	assert.Contains(t, out, "2 reviews\n")

	// bob cannot see or touch alice's reviews
	_, err = execute(t, open, "review", "show", "-u", "bob", itoa(inceptionID))
	assert.Equal(t, ExitFailure, GetExitCode(err))

	mustExecute(t, open, "review", "favorite", "-u", "alice", itoa(inceptionID))
	favs := listJSON(t, open, "-u", "alice", "--favorites")
	require.Len(t, favs, 1)
	assert.Equal(t, inceptionID, favs[0].ID)

	mustExecute(t, open, "review", "edit", "-u", "alice", itoa(inceptionID), "--rating", "5", "--title", "Inception (IMAX)")
	out = mustExecute(t, open, "review", "show", "-u", "alice", itoa(inceptionID))
	assert.Contains(t, out, "Title:     Inception (IMAX)")
	assert.Contains(t, out, "Rating:    5.0")
	assert.Contains(t, out, "Director:  Christopher Nolan")
	assert.Contains(t, out, "Favorite:  yes")

	out = mustExecute(t, open, "--format", "yaml", "review", "stats", "-u", "alice")
	var stats map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats["total_reviews"])
	assert.Equal(t, 4.5, stats["average_rating"])
	assert.Equal(t, 1, stats["favorites"])

	ticket := filepath.Join(t.TempDir(), "stub.png")
	require.NoError(t, os.WriteFile(ticket, []byte("\x89PNG fake ticket"), 0o600))
	out = mustExecute(t, open, "review", "ticket", "-u", "alice", itoa(inceptionID), ticket)
	assert.Contains(t, out, "Ticket:")
	out = mustExecute(t, open, "review", "stats", "-u", "alice")
	assert.Contains(t, out, "Theater visits:  1\n")

	out = mustExecute(t, open, "review", "delete", "-u", "alice", itoa(inceptionID))
	assert.Equal(t, "deleted 1 review\n", out)
	_, err = execute(t, open, "review", "delete", "-u", "alice", itoa(inceptionID))
	assert.Equal(t, ExitFailure, GetExitCode(err))

	all := listJSON(t, open, "--all")
	require.Len(t, all, 2)
	out = mustExecute(t, open, "review", "delete", "--all", itoa(all[0].ID), itoa(all[1].ID))
	assert.Equal(t, "deleted 2 reviews\n", out)
	assert.Empty(t, listJSON(t, open, "--all"))
}

func TestReviewSortsCommand(t *testing.T) {
	out := mustExecute(t, nil, "review", "sorts")
	assert.Equal(t, "Date (Newest)\nDate (Oldest)\nRating (High)\nRating (Low)\nTitle (A-Z)\nTitle (Z-A)\n", out)
}

func TestMigrateCommand(t *testing.T) {
	out := mustExecute(t, testOpener(t), "migrate")
	assert.Equal(t, "sqlite schema is up to date\n", out)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
