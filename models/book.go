package models

import "time"

// Book is the point-in-time view of a library entry the engine receives from
// the bookshelf service. The engine never persists books itself.
type Book struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Genre           string     `json:"genre"`
	Format          string     `json:"format"` // e.g., "paperback", "ebook", "audiobook"
	Rating          *float64   `json:"rating,omitempty"`
	PublicationYear *int       `json:"publication_year,omitempty"`
	FinishDate      *time.Time `json:"finish_date,omitempty"`
}

// Finished reports whether the book carries a finish date.
func (b *Book) Finished() bool {
	return b.FinishDate != nil && !b.FinishDate.IsZero()
}

// DateOnly truncates t to midnight UTC so day arithmetic ignores clock time.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StatsSnapshot aggregates the counters the reward catalog is evaluated
// against, computed fresh per finished-book event.
type StatsSnapshot struct {
	TotalBooks          int64 `json:"total_books"`
	FinishedBooks       int64 `json:"finished_books"`
	CurrentLevel        int64 `json:"current_level"`
	CurrentStreak       int64 `json:"current_streak"`
	BooksThisMonth      int64 `json:"books_this_month"`
	CompletedChallenges int64 `json:"completed_challenges"`
}

// Stat returns the snapshot counter named by field (0 for unknown fields).
func (s StatsSnapshot) Stat(field StatField) int64 {
	switch field {
	case StatTotalBooks:
		return s.TotalBooks
	case StatFinishedBooks:
		return s.FinishedBooks
	case StatCurrentLevel:
		return s.CurrentLevel
	case StatCurrentStreak:
		return s.CurrentStreak
	case StatBooksThisMonth:
		return s.BooksThisMonth
	case StatCompletedChallenges:
		return s.CompletedChallenges
	}
	return 0
}
