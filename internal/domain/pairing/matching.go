package pairing

import (
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"
)

// NeverMetOffset is added to the cycle number to score a pair with no shared
// history, so it always outranks any real elapsed-cycle count.
const NeverMetOffset = 1000

// MatchInput is a snapshot of everything one matching pass needs.
type MatchInput struct {
	Cycle       int64   // the cycle being formed
	Pool        []int64 // eligible member ids
	Preferences []*Preference
	History     []*Record
}

// MatchResult holds disjoint pairs covering all but at most one pool member.
type MatchResult struct {
	Pairs               []Pair
	Unpaired            []int64 // zero or one member
	ConsumedPreferences []*Preference
}

// ConsumedPreferenceIDs returns the ids of the preferences satisfied by the pass.
func (r *MatchResult) ConsumedPreferenceIDs() []int64 {
	ids := make([]int64, 0, len(r.ConsumedPreferences))
	for _, p := range r.ConsumedPreferences {
		ids = append(ids, p.ID)
	}
	return ids
}

// Matcher forms pairs for a cycle. The only nondeterminism is the pool shuffle,
// driven by the Matcher's random source.
type Matcher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMatcher returns a Matcher using rng for the pool shuffle. A nil rng gets a
// time-seeded source.
func NewMatcher(rng *rand.Rand) *Matcher {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Matcher{rng: rng}
}

// RecencyScore is the number of cycles since a pair last met, or the never-met
// sentinel when met is false.
func RecencyScore(cycle, lastMet int64, met bool) int64 {
	if !met {
		return cycle + NeverMetOffset
	}
	return cycle - lastMet
}

type candidate struct {
	a, b  int64
	score int64
}

// Match runs preference satisfaction followed by greedy recency matching.
//
// Preferences are honoured in creation order whenever both endpoints are still
// unmatched. The remaining members are paired greedily by descending recency
// score; ties keep the shuffled order. This is not an optimal weighted matching.
func (m *Matcher) Match(in MatchInput) *MatchResult {
	pool := uniqueSorted(in.Pool)
	m.shuffle(pool)

	result := &MatchResult{}
	remaining := make(map[int64]bool, len(pool))
	for _, id := range pool {
		remaining[id] = true
	}

	prefs := slices.Clone(in.Preferences)
	sort.SliceStable(prefs, func(i, j int) bool {
		if !prefs[i].CreatedAt.Equal(prefs[j].CreatedAt) {
			return prefs[i].CreatedAt.Before(prefs[j].CreatedAt)
		}
		return prefs[i].ID < prefs[j].ID
	})
	for _, p := range prefs {
		if p.UserA == p.UserB || !remaining[p.UserA] || !remaining[p.UserB] {
			continue
		}
		result.Pairs = append(result.Pairs, Pair{A: p.UserA, B: p.UserB})
		result.ConsumedPreferences = append(result.ConsumedPreferences, p)
		delete(remaining, p.UserA)
		delete(remaining, p.UserB)
	}

	rest := make([]int64, 0, len(remaining))
	for _, id := range pool {
		if remaining[id] {
			rest = append(rest, id)
		}
	}

	lastMet := lastSharedCycles(in.History)
	candidates := make([]candidate, 0, len(rest)*(len(rest)-1)/2+1)
	for i := 0; i < len(rest); i++ {
		for j := i + 1; j < len(rest); j++ {
			last, met := lastMet[keyOf(rest[i], rest[j])]
			candidates = append(candidates, candidate{
				a:     rest[i],
				b:     rest[j],
				score: RecencyScore(in.Cycle, last, met),
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, c := range candidates {
		if !remaining[c.a] || !remaining[c.b] {
			continue
		}
		result.Pairs = append(result.Pairs, Pair{A: c.a, B: c.b})
		delete(remaining, c.a)
		delete(remaining, c.b)
	}

	for _, id := range rest {
		if remaining[id] {
			result.Unpaired = append(result.Unpaired, id)
		}
	}
	return result
}

func (m *Matcher) shuffle(ids []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

// lastSharedCycles maps each unordered pair to the latest cycle it was recorded in.
func lastSharedCycles(history []*Record) map[pairKey]int64 {
	last := make(map[pairKey]int64, len(history))
	for _, r := range history {
		k := keyOf(r.UserA, r.UserB)
		if prev, ok := last[k]; !ok || r.Cycle > prev {
			last[k] = r.Cycle
		}
	}
	return last
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
