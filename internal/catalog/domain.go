// internal/catalog/domain.go
package catalog

// Book is a catalog title and its copy counts.
type Book struct {
	ID              int64  `json:"id" db:"book_id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	Genre           string `json:"genre" db:"genre"`
	Year            int    `json:"year" db:"publication"`
	TotalCopies     int    `json:"total_copies" db:"total_copies"`
	AvailableCopies int    `json:"available_copies" db:"available_copies"`
}

// Entry is the read-only projection of a Book kept in the Cache.
type Entry struct {
	ID     int64  `json:"id" db:"book_id"`
	Title  string `json:"title" db:"title"`
	Author string `json:"author" db:"author"`
	Genre  string `json:"genre" db:"genre"`
	Year   int    `json:"year" db:"publication"`
}

// AddBookRequest carries the fields of a new catalog title.
type AddBookRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	Genre       string `json:"genre" validate:"required,max=100"`
	Year        int    `json:"year" validate:"gt=0"`
	TotalCopies int    `json:"total_copies" validate:"gt=0"`
}

// Outcome tells an added book apart from a skipped duplicate.
type Outcome string

const (
	OutcomeAdded     Outcome = "added"
	OutcomeDuplicate Outcome = "duplicate"
)

// AddResult is returned by AddBook. A duplicate is a warning, not an error:
// nothing was inserted and ExistingID names the book that matched.
type AddResult struct {
	Outcome    Outcome `json:"outcome"`
	Book       *Book   `json:"book,omitempty"`
	ExistingID int64   `json:"existing_id,omitempty"`
	Message    string  `json:"message"`
}

// Warning reports whether the caller should surface the result as a warning.
func (r *AddResult) Warning() bool {
	return r.Outcome == OutcomeDuplicate
}
