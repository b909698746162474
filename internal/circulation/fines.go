// internal/circulation/fines.go
package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"bookrec/internal/apperr"
	"bookrec/internal/logging"
	"bookrec/internal/membership"
	"bookrec/internal/store"
)

type dueRow struct {
	IssueID int64     `db:"issue_id"`
	BookID  int64     `db:"book_id"`
	Title   string    `db:"title"`
	DueDate time.Time `db:"due_date"`
}

// SettleFines charges every issue of the student that is still 'issued' and
// past its due date, then reports the outstanding total.
//
// Only 'issued' rows are selected. Once a row is marked 'overdue' its fine
// stays at the amount computed on that run and does not grow on later runs.
func (s *service) SettleFines(ctx context.Context, actor membership.Actor, username string) (*FineReport, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.settle_fines")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, apperr.Validation(apperr.ReasonNotAdmin, "only admins can settle fines")
	}
	username, userID, err := s.resolveStudent(ctx, username)
	if err != nil {
		return nil, err
	}

	today := s.today()
	var due []dueRow
	ds := s.store.From(goqu.T("book_issues").As("bi")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("bi.book_id").Eq(goqu.I("b.book_id")))).
		Select(
			goqu.I("bi.issue_id").As("issue_id"),
			goqu.I("bi.book_id").As("book_id"),
			goqu.I("b.title").As("title"),
			goqu.I("bi.due_date").As("due_date"),
		).
		Where(
			goqu.I("bi.user_id").Eq(userID),
			goqu.I("bi.status").Eq(string(StatusIssued)),
			goqu.I("bi.due_date").Lt(today),
		).
		Order(goqu.I("bi.due_date").Asc(), goqu.I("bi.issue_id").Asc())
	if err := store.Select(ctx, s.store.DB(), &due, ds); err != nil {
		return nil, apperr.Store(err, "select overdue issues")
	}

	report := &FineReport{
		Username:     username,
		UserID:       userID,
		Lines:        []FineLine{},
		TotalNewFine: decimal.Zero,
	}
	for _, row := range due {
		days, fine := FineFor(row.DueDate, today)
		if days <= 0 {
			continue
		}
		report.Lines = append(report.Lines, FineLine{
			IssueID:     row.IssueID,
			BookID:      row.BookID,
			Title:       row.Title,
			DueDate:     row.DueDate,
			DaysOverdue: days,
			Fine:        fine,
		})
		report.TotalNewFine = report.TotalNewFine.Add(fine)
	}

	if len(report.Lines) > 0 {
		err = s.store.WithTx(ctx, "settle_fines", func(tx *sqlx.Tx) error {
			return s.chargeFines(ctx, tx, report.Lines)
		})
		if err != nil {
			return nil, s.txFailure(ctx, span, err, "fine calculation")
		}
		s.metrics.fined.Add(ctx, int64(len(report.Lines)))
	}

	report.TotalOutstanding, err = s.outstanding(ctx, userID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("fines.charged", len(report.Lines)),
		attribute.String("fines.total_new", report.TotalNewFine.StringFixed(2)),
	)
	logging.Ctx(ctx).Info().
		Str("username", username).
		Int("charged", len(report.Lines)).
		Str("total_new_fine", report.TotalNewFine.StringFixed(2)).
		Str("total_outstanding", report.TotalOutstanding.StringFixed(2)).
		Msg("fines settled")
	return report, nil
}

func (s *service) chargeFines(ctx context.Context, tx *sqlx.Tx, lines []FineLine) error {
	for _, line := range lines {
		upd := s.store.Update("book_issues").
			Set(goqu.Record{"fine": line.Fine, "status": string(StatusOverdue)}).
			Where(goqu.C("issue_id").Eq(line.IssueID), goqu.C("status").Eq(string(StatusIssued)))
		n, err := store.ExecAffected(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("update fine of issue %d: %w", line.IssueID, err)
		}
		if n == 0 {
			return fmt.Errorf("issue %d changed while fines were settled", line.IssueID)
		}
	}
	return nil
}

// outstanding sums the fines of every non-returned issue of the user.
func (s *service) outstanding(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	ds := s.store.From("book_issues").
		Select(goqu.COALESCE(goqu.SUM("fine"), goqu.L("0"))).
		Where(goqu.C("user_id").Eq(userID), goqu.C("status").Neq(string(StatusReturned)))
	if err := store.Get(ctx, s.store.DB(), &total, ds); err != nil {
		return decimal.Zero, apperr.Store(err, "sum outstanding fines")
	}
	return total, nil
}
