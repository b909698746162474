// internal/cli/desk.go
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bookrec/internal/catalog"
	"bookrec/internal/circulation"
	"bookrec/internal/membership"
)

// withBackend opens the backend for the duration of fn.
func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	b, closeFn, err := openBackend(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, b)
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var req membership.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				user, err := b.Register(ctx, req)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), user, func(w io.Writer) {
					fmt.Fprintf(w, "registered %s with ID %d\n", user.Username, user.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "login name")
	cmd.Flags().StringVar(&req.Password, "password", "", "password")
	cmd.Flags().StringVar(&req.Name, "name", "", "full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")

	return cmd
}

// NewAddBookCommand creates the add-book command.
func NewAddBookCommand(rootOpts *RootOptions) *cobra.Command {
	var req catalog.AddBookRequest

	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a title to the catalog",
		Long: `Add a title to the catalog.

A title and author matching an existing book, ignoring case, is reported as a
duplicate and nothing is inserted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				result, err := b.AddBook(ctx, req)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), result, func(w io.Writer) {
					if result.Warning() {
						fmt.Fprintf(w, "warning: %s\n", result.Message)
						return
					}
					fmt.Fprintf(w, "%s (ID %d)\n", result.Message, result.Book.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "book title")
	cmd.Flags().StringVar(&req.Author, "author", "", "author")
	cmd.Flags().StringVar(&req.Genre, "genre", "", "genre")
	cmd.Flags().IntVar(&req.Year, "year", 0, "publication year")
	cmd.Flags().IntVar(&req.TotalCopies, "copies", 1, "number of copies")

	return cmd
}

// NewBooksCommand creates the books command.
func NewBooksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the catalog with copy counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				books, err := b.ListBooks(ctx)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), books, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tGENRE\tYEAR\tAVAILABLE")
					for _, bk := range books {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d/%d\n",
							bk.ID, bk.Title, bk.Author, bk.Genre, bk.Year, bk.AvailableCopies, bk.TotalCopies)
					}
					tw.Flush()
				})
			})
		},
	}
}

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <username> <book-id>",
		Short: "Lend a book to a student for 14 days",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseID(args[1], "book ID")
			if err != nil {
				return err
			}
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				result, err := b.IssueBook(ctx, args[0], bookID)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), result, func(w io.Writer) {
					fmt.Fprintln(w, result.Message)
				})
			})
		},
	}
}

// NewReturnCommand creates the return command.
func NewReturnCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "return <username> <book-id>",
		Short: "Close a student's open loan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseID(args[1], "book ID")
			if err != nil {
				return err
			}
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				result, err := b.ReturnBook(ctx, args[0], bookID)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), result, func(w io.Writer) {
					fmt.Fprintln(w, result.Message)
				})
			})
		},
	}
}

// NewLoansCommand creates the loans command.
func NewLoansCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "loans [user-id]",
		Short: "List open loans, for one user or the whole library",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var userID int64
			if len(args) == 1 {
				id, err := parseID(args[0], "user ID")
				if err != nil {
					return err
				}
				userID = id
			}
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				var (
					loans []circulation.Loan
					err   error
				)
				if userID != 0 {
					loans, err = b.ActiveLoans(ctx, userID)
				} else {
					loans, err = b.AllActiveLoans(ctx)
				}
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), loans, func(w io.Writer) {
					printLoans(w, loans)
				})
			})
		},
	}
}

func printLoans(w io.Writer, loans []circulation.Loan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ISSUE\tUSER\tBOOK\tTITLE\tDUE\tSTATUS\tFINE")
	for _, l := range loans {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			l.ID, l.Username, l.BookID, l.Title, l.DueDate.Format("2006-01-02"), l.Status, l.Fine.StringFixed(2))
	}
	tw.Flush()
}

// NewFinesCommand creates the fines command.
func NewFinesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fines <username>",
		Short: "Assess overdue fines for a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				report, err := b.SettleFines(ctx, args[0])
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), report, func(w io.Writer) {
					if len(report.Lines) == 0 {
						fmt.Fprintf(w, "no overdue books for %s\n", report.Username)
					}
					for _, line := range report.Lines {
						fmt.Fprintf(w, "%s: %d days overdue, fine %s\n",
							line.Title, line.DaysOverdue, line.Fine.StringFixed(2))
					}
					fmt.Fprintf(w, "new fines %s, outstanding %s\n",
						report.TotalNewFine.StringFixed(2), report.TotalOutstanding.StringFixed(2))
				})
			})
		},
	}
}

// NewRecommendCommand creates the recommend command.
func NewRecommendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <user-id>",
		Short: "Suggest unread books by genre and author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user ID")
			if err != nil {
				return err
			}
			return withBackend(cmd, rootOpts, func(ctx context.Context, b Backend) error {
				entries, err := b.Recommendations(ctx, userID)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
					if len(entries) == 0 {
						fmt.Fprintln(w, "no recommendations yet")
					}
					for i, e := range entries {
						fmt.Fprintf(w, "%d. %s by %s [%s]\n", i+1, e.Title, e.Author, e.Genre)
					}
				})
			})
		},
	}
}
