package model

import "context"

// Searcher opens a marketplace session scoped to one poll cycle.
type Searcher interface {
	OpenSession(ctx context.Context) (SearchSession, error)
}

// SearchSession runs catalog searches until it is closed.
type SearchSession interface {
	Search(ctx context.Context, term string) ([]Listing, error)
	Close()
}

// Notifier delivers a listing to the user.
type Notifier interface {
	Notify(ctx context.Context, l Listing) (Delivery, error)
}
