// Package memory keeps per-user conversational memory: free-text snippets
// retrieved as context for later queries, and a bounded interaction history.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/upb/llm-governance/models"
)

// DefaultHistory is how many entries a session keeps per user
const DefaultHistory = 50

// Store holds free-text memory per user
type Store interface {
	// Retrieve returns up to limit texts relevant to query, best first
	Retrieve(ctx context.Context, userID, query string, limit int) ([]string, error)

	// Store remembers text for the user
	Store(ctx context.Context, userID, text string) error
}

// HistoryRecorder keeps structured query/answer history
type HistoryRecorder interface {
	AddInteraction(ctx context.Context, it *models.Interaction) error
}

// SessionSummary describes a user's session history
type SessionSummary struct {
	UserID           string     `json:"user_id"`
	InteractionCount int        `json:"interaction_count"`
	FirstInteraction *time.Time `json:"first_interaction"`
	LastInteraction  *time.Time `json:"last_interaction"`
}

type snippet struct {
	text  string
	terms map[string]struct{}
	seq   uint64
}

// SessionStore is an in-process Store and HistoryRecorder. Each user keeps
// at most capacity snippets and capacity interactions; older ones are dropped.
type SessionStore struct {
	mu       sync.RWMutex
	capacity int
	seq      uint64
	snippets map[string][]snippet
	history  map[string][]*models.Interaction
}

// NewSessionStore creates a session store. A capacity <= 0 uses DefaultHistory.
func NewSessionStore(capacity int) *SessionStore {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &SessionStore{
		capacity: capacity,
		snippets: make(map[string][]snippet),
		history:  make(map[string][]*models.Interaction),
	}
}

// Store implements Store
func (s *SessionStore) Store(ctx context.Context, userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	list := append(s.snippets[userID], snippet{text: text, terms: terms(text), seq: s.seq})
	if len(list) > s.capacity {
		list = list[len(list)-s.capacity:]
	}
	s.snippets[userID] = list
	return nil
}

// Retrieve ranks the user's snippets by how many distinct query terms they
// contain, newest first on ties. Snippets sharing no term are left out unless
// the query has no terms, in which case the newest snippets are returned.
func (s *SessionStore) Retrieve(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	list := make([]snippet, len(s.snippets[userID]))
	copy(list, s.snippets[userID])
	s.mu.RUnlock()

	want := terms(query)
	type scored struct {
		snippet
		score int
	}
	candidates := make([]scored, 0, len(list))
	for _, sn := range list {
		score := 0
		for term := range want {
			if _, ok := sn.terms[term]; ok {
				score++
			}
		}
		if score == 0 && len(want) > 0 {
			continue
		}
		candidates = append(candidates, scored{snippet: sn, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq > candidates[j].seq
	})

	out := make([]string, 0, min(limit, len(candidates)))
	for _, c := range candidates[:min(limit, len(candidates))] {
		out = append(out, c.text)
	}
	return out, nil
}

// AddInteraction implements HistoryRecorder
func (s *SessionStore) AddInteraction(ctx context.Context, it *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.history[it.UserID], it)
	if len(list) > s.capacity {
		list = list[len(list)-s.capacity:]
	}
	s.history[it.UserID] = list
	return nil
}

// History returns up to limit of the user's most recent interactions, oldest first
func (s *SessionStore) History(userID string, limit int) []*models.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.history[userID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]*models.Interaction, len(list))
	copy(out, list)
	return out
}

// Summary describes the user's session
func (s *SessionStore) Summary(userID string) SessionSummary {
	list := s.History(userID, 0)
	summary := SessionSummary{UserID: userID, InteractionCount: len(list)}
	if len(list) > 0 {
		first, last := list[0].CreatedAt, list[len(list)-1].CreatedAt
		summary.FirstInteraction = &first
		summary.LastInteraction = &last
	}
	return summary
}

// Clear forgets everything about the user
func (s *SessionStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snippets, userID)
	delete(s.history, userID)
}

// terms lower-cases text and splits it into distinct words of two or more runes
func terms(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			set[f] = struct{}{}
		}
	}
	return set
}
