// Package subs tracks which ticker each user session is watching and how many
// sessions are interested in each ticker. Transitions on the per-ticker count
// (0->1 and 1->0) drive upstream subscribe/unsubscribe.
package subs

import (
	"strings"
	"sync"
)

// Registry is an in-memory subscription table. Each user has at most one
// active ticker; selecting a new one implicitly abandons the old one. State is
// never persisted: clients re-subscribe after a restart.
type Registry struct {
	mu            sync.Mutex
	currentByUser map[string]string
	countByTicker map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		currentByUser: make(map[string]string),
		countByTicker: make(map[string]int),
	}
}

// Subscribe switches the user's active ticker. It returns first=true when this
// user is the ticker's first active watcher (0->1), signalling the caller to
// open upstream interest. When the switch released the user's previous ticker
// down to zero watchers, vacated carries that ticker so the caller can close
// upstream interest for it.
func (r *Registry) Subscribe(userKey, rawTicker string) (first bool, vacated string) {
	user := NormalizeUser(userKey)
	ticker := NormalizeTicker(rawTicker)
	if ticker == "" {
		return false, ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.currentByUser[user]
	if prev == ticker {
		// Re-selecting the active ticker changes nothing.
		return false, ""
	}
	r.currentByUser[user] = ticker
	if prev != "" && r.dec(prev) {
		vacated = prev
	}
	r.countByTicker[ticker]++
	return r.countByTicker[ticker] == 1, vacated
}

// Unsubscribe clears the user's active ticker, but only if it currently equals
// the given one; stale or duplicate unsubscribes are no-ops. It returns true
// when this user was the ticker's last active watcher (1->0).
func (r *Registry) Unsubscribe(userKey, rawTicker string) bool {
	user := NormalizeUser(userKey)
	ticker := NormalizeTicker(rawTicker)
	if ticker == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentByUser[user] != ticker {
		return false
	}
	delete(r.currentByUser, user)
	return r.dec(ticker)
}

// UsersInterestedIn returns every user whose active ticker is the given one.
// O(n) over concurrent sessions, which stays small relative to tick volume.
func (r *Registry) UsersInterestedIn(rawTicker string) []string {
	ticker := NormalizeTicker(rawTicker)

	r.mu.Lock()
	defer r.mu.Unlock()

	var users []string
	for user, t := range r.currentByUser {
		if t == ticker {
			users = append(users, user)
		}
	}
	return users
}

// ActiveTicker returns the user's currently selected ticker, if any.
func (r *Registry) ActiveTicker(userKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.currentByUser[NormalizeUser(userKey)]
	return t, ok
}

// Subscribers returns the number of users currently watching the ticker.
func (r *Registry) Subscribers(rawTicker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.countByTicker[NormalizeTicker(rawTicker)]
}

// dec decrements the ticker's watcher count and reports whether it reached
// zero. The entry is removed exactly when the count hits zero; an absent or
// zero entry is never driven negative (clamped, treated as a no-op).
func (r *Registry) dec(ticker string) bool {
	c, ok := r.countByTicker[ticker]
	if !ok || c <= 0 {
		delete(r.countByTicker, ticker)
		return false
	}
	c--
	if c == 0 {
		delete(r.countByTicker, ticker)
		return true
	}
	r.countByTicker[ticker] = c
	return false
}

// NormalizeTicker trims and uppercases a raw ticker.
func NormalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeUser maps a blank user key to "guest".
func NormalizeUser(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "guest"
	}
	return u
}
