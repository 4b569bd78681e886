// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL, along with its
// associated metadata, and the error kinds shared by every layer.
package entity

import "time"

// URL represents a shortened URL record.
type URL struct {
	ID             int64      // ID is the unique identifier of the URL in the store.
	ShortCode      string     // ShortCode is the code used to resolve the original URL.
	OriginalURL    string     // OriginalURL is the full URL that the short code resolves to.
	IsActive       bool       // IsActive is false once the URL has been deactivated.
	URLStats                  // URLStats contains statistics about the URL.
	CreatedByIP    string     // CreatedByIP is the identity of the client that shortened the URL.
	CreatedAt      time.Time  // CreatedAt is the timestamp when the URL was created.
	LastAccessedAt *time.Time // LastAccessedAt is the timestamp of the latest resolution, if any.
}

// URLStats contains statistics related to a shortened URL.
type URLStats struct {
	ClickCount int64 // ClickCount is the number of times the short code has been resolved.
}

// URLPage is a single page of URL records ordered from newest to oldest.
type URLPage struct {
	URLs  []*URL
	Total int64
}

// Analytics aggregates counters across all URL records.
type Analytics struct {
	TotalURLs   int64
	ActiveURLs  int64
	TotalClicks int64
	ClicksToday int64
}
