package scraper

import (
	"sync"

	"jobs-scraper/models"
)

// ResultAccumulator keeps the listings of one crawl in discovery order,
// deduplicated by link with the first occurrence winning. Listings without
// a link are never considered duplicates.
type ResultAccumulator struct {
	mu       sync.Mutex
	seen     map[string]bool
	listings []models.Listing
}

func NewResultAccumulator() *ResultAccumulator {
	return &ResultAccumulator{seen: make(map[string]bool)}
}

// Add stores l unless its link was stored before.
func (a *ResultAccumulator) Add(l models.Listing) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if l.Link != "" {
		if a.seen[l.Link] {
			return false
		}
		a.seen[l.Link] = true
	}
	a.listings = append(a.listings, l)
	return true
}

func (a *ResultAccumulator) AddAll(listings []models.Listing) int {
	added := 0
	for _, l := range listings {
		if a.Add(l) {
			added++
		}
	}
	return added
}

// Unseen returns the listings that Add would accept, in order. Duplicates
// within listings are dropped too.
func (a *ResultAccumulator) Unseen(listings []models.Listing) []models.Listing {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := make(map[string]bool)
	fresh := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Link != "" {
			if a.seen[l.Link] || batch[l.Link] {
				continue
			}
			batch[l.Link] = true
		}
		fresh = append(fresh, l)
	}
	return fresh
}

func (a *ResultAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listings)
}

// Snapshot returns a copy of the stored listings.
func (a *ResultAccumulator) Snapshot() []models.Listing {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Listing, len(a.listings))
	copy(out, a.listings)
	return out
}
