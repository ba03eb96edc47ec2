// Package model defines the domain types shared across the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is a normalized marketplace item. Empty strings mean unknown.
type Listing struct {
	ID          string
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Brand       string
	Size        string
	Condition   string
	HasImage    bool

	// AgeMinutes is nil when the listing age is unknown.
	AgeMinutes *int
	// SellerIsBusiness is nil when the seller type is unknown.
	SellerIsBusiness *bool

	URL         string
	PhotoURLs   []string
	Location    string
	SellerLogin string
	TimeAgo     string
}

// FilterResult is the outcome of evaluating one listing against a policy.
type FilterResult struct {
	Passed  bool
	Reasons []string
	Score   int
}

// SeenRecord marks a listing as already notified.
type SeenRecord struct {
	ID          string
	FirstSeenAt time.Time
	Title       string
	Price       decimal.Decimal
}

// RuntimeState is the mutable state of the polling loop.
type RuntimeState struct {
	Paused       bool
	PollInterval time.Duration
	BackoffUntil time.Time
}

// LoopState names what the polling loop is currently doing.
type LoopState string

const (
	StateIdle    LoopState = "idle"
	StateBackoff LoopState = "backoff"
	StatePolling LoopState = "polling"
)

// Stats is the snapshot returned by the control surface.
type Stats struct {
	Total          int
	Recent         int
	Paused         bool
	PollIntervalMs int64
	BackoffUntil   time.Time
	State          LoopState
}

// Delivery tells how a notification reached the chat.
type Delivery string

const (
	DeliveryAlbum Delivery = "album"
	DeliveryPhoto Delivery = "photo"
	// DeliveryText means no image could be attached.
	DeliveryText Delivery = "text"
)

// Notification is one row of the notification history.
type Notification struct {
	ID        int64
	ListingID string
	Title     string
	Price     decimal.Decimal
	Currency  string
	Score     int
	Delivery  Delivery
	Error     string
	SentAt    time.Time
}
