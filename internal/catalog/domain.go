// internal/catalog/domain.go
package catalog

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind is the closed set of document variants.
type Kind string

const (
	KindBook     Kind = "book"
	KindMagazine Kind = "magazine"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBook, KindMagazine:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown document kind %q", s)
	}
}

// Periodicity is how often a magazine issue appears.
type Periodicity string

const (
	PeriodicityDaily     Periodicity = "DAILY"
	PeriodicityWeekly    Periodicity = "WEEKLY"
	PeriodicityBiweekly  Periodicity = "BIWEEKLY"
	PeriodicityMonthly   Periodicity = "MONTHLY"
	PeriodicityBimonthly Periodicity = "BIMONTHLY"
	PeriodicityQuarterly Periodicity = "QUARTERLY"
	PeriodicityYearly    Periodicity = "YEARLY"
)

// ParsePeriodicity validates a periodicity string.
func ParsePeriodicity(s string) (Periodicity, error) {
	switch Periodicity(s) {
	case PeriodicityDaily, PeriodicityWeekly, PeriodicityBiweekly,
		PeriodicityMonthly, PeriodicityBimonthly, PeriodicityQuarterly,
		PeriodicityYearly:
		return Periodicity(s), nil
	default:
		return "", fmt.Errorf("unknown periodicity %q", s)
	}
}

// BookDetails holds the book-specific payload.
type BookDetails struct {
	ISBN      string `json:"isbn"`
	PageCount int    `json:"page_count"`
}

// MagazineDetails holds the magazine-specific payload.
type MagazineDetails struct {
	IssueNumber int         `json:"issue_number"`
	Periodicity Periodicity `json:"periodicity"`
}

// Document is a lendable catalog entry: the shared field set plus exactly
// one kind-specific payload selected by Kind.
//
// Available mirrors the loan ledger; it is refreshed in the same
// transaction as every loan mutation and is never authoritative on its
// own.
type Document struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Author    string           `json:"author"`
	Genre     string           `json:"genre"`
	Kind      Kind             `json:"kind"`
	Available bool             `json:"available"`
	Book      *BookDetails     `json:"book,omitempty"`
	Magazine  *MagazineDetails `json:"magazine,omitempty"`
}

// Validate checks intrinsic attributes and kind/payload consistency.
func (d Document) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if d.Author == "" {
		return fmt.Errorf("author is required")
	}
	switch d.Kind {
	case KindBook:
		if d.Book == nil || d.Magazine != nil {
			return fmt.Errorf("a book document requires exactly the book payload")
		}
		if d.Book.ISBN == "" {
			return fmt.Errorf("isbn is required")
		}
		if d.Book.PageCount <= 0 {
			return fmt.Errorf("page count must be > 0")
		}
	case KindMagazine:
		if d.Magazine == nil || d.Book != nil {
			return fmt.Errorf("a magazine document requires exactly the magazine payload")
		}
		if d.Magazine.IssueNumber <= 0 {
			return fmt.Errorf("issue number must be > 0")
		}
		if _, err := ParsePeriodicity(string(d.Magazine.Periodicity)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown document kind %q", d.Kind)
	}
	return nil
}

// Update describes a partial attribute edit. Nil fields are left alone.
type Update struct {
	Title       *string
	Author      *string
	Genre       *string
	ISBN        *string
	PageCount   *int
	IssueNumber *int
	Periodicity *Periodicity
}

// apply merges the update into doc, enforcing kind-specific rules.
func (u Update) apply(doc *Document) error {
	if u.Title != nil {
		doc.Title = *u.Title
	}
	if u.Author != nil {
		doc.Author = *u.Author
	}
	if u.Genre != nil {
		doc.Genre = *u.Genre
	}
	switch doc.Kind {
	case KindBook:
		if u.IssueNumber != nil || u.Periodicity != nil {
			return fmt.Errorf("magazine fields cannot be set on a book")
		}
		if u.ISBN != nil {
			doc.Book.ISBN = *u.ISBN
		}
		if u.PageCount != nil {
			doc.Book.PageCount = *u.PageCount
		}
	case KindMagazine:
		if u.ISBN != nil || u.PageCount != nil {
			return fmt.Errorf("book fields cannot be set on a magazine")
		}
		if u.IssueNumber != nil {
			doc.Magazine.IssueNumber = *u.IssueNumber
		}
		if u.Periodicity != nil {
			doc.Magazine.Periodicity = *u.Periodicity
		}
	}
	return doc.Validate()
}
