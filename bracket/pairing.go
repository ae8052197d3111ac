package bracket

import (
	"math/bits"
	"sort"

	"game-room-engine/models"
)

// pair is one pairing of a round. An empty second slot is a bye.
type pair struct {
	P1, P2 string
}

// bracketSize returns the smallest power of two that seats n players.
func bracketSize(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// eliminationRounds is log2 of the bracket size.
func eliminationRounds(n int) int {
	return bits.Len(uint(bracketSize(n))) - 1
}

// swissRounds is ceil(log2 n).
func swissRounds(n int) int {
	return eliminationRounds(n)
}

// seedOrder lists seeds (1-based) in bracket order, so that seed 1 and seed 2
// can only meet in the final.
func seedOrder(size int) []int {
	order := []int{1}
	for n := 2; n <= size; n *= 2 {
		next := make([]int, 0, n)
		for _, s := range order {
			next = append(next, s, n+1-s)
		}
		order = next
	}
	return order
}

// eliminationPairs seeds players (in seed order) into round one. Missing
// seeds at the bottom of the order become byes.
func eliminationPairs(players []string) []pair {
	size := bracketSize(len(players))
	order := seedOrder(size)
	at := func(seed int) string {
		if seed > len(players) {
			return ""
		}
		return players[seed-1]
	}
	pairs := make([]pair, 0, size/2)
	for i := 0; i < len(order); i += 2 {
		a, b := at(order[i]), at(order[i+1])
		if a == "" {
			a, b = b, a
		}
		pairs = append(pairs, pair{P1: a, P2: b})
	}
	return pairs
}

// roundRobinRounds is the number of rounds of a circle schedule.
func roundRobinRounds(n int) int {
	if n%2 == 1 {
		return n
	}
	return n - 1
}

// roundRobinPairs returns round r (1-based) of the circle method: the first
// player stays put and the others rotate one place per round. An odd field
// gets a phantom player whose opponent has the bye.
func roundRobinPairs(players []string, r int) []pair {
	ring := append([]string(nil), players...)
	if len(ring)%2 == 1 {
		ring = append(ring, "")
	}
	n := len(ring)
	if n < 2 {
		return nil
	}
	rest := ring[1:]
	shift := (r - 1) % len(rest)
	rotated := append(append([]string{ring[0]}, rest[len(rest)-shift:]...), rest[:len(rest)-shift]...)

	pairs := make([]pair, 0, n/2)
	for i := 0; i < n/2; i++ {
		a, b := rotated[i], rotated[n-1-i]
		if a == "" {
			a, b = b, a
		}
		pairs = append(pairs, pair{P1: a, P2: b})
	}
	return pairs
}

type pairKey [2]string

func keyOf(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// playedPairs collects who has already met whom.
func playedPairs(matches []models.TournamentMatch) map[pairKey]bool {
	played := make(map[pairKey]bool)
	for _, m := range matches {
		if !m.IsBye && m.Participant1ID != "" && m.Participant2ID != "" {
			played[keyOf(m.Participant1ID, m.Participant2ID)] = true
		}
	}
	return played
}

// swissPairs pairs a field ranked by standings. The lowest-ranked player
// without a bye sits out an odd round. Everyone else meets the nearest ranked
// opponent they have not played yet; when no such pairing exists for the
// whole field, rematches are allowed.
func swissPairs(ranked []models.TournamentParticipant, played map[pairKey]bool) []pair {
	field := make([]string, 0, len(ranked))
	for _, p := range ranked {
		field = append(field, p.UserID)
	}
	var bye string
	if len(field)%2 == 1 {
		at := len(field) - 1
		for i := len(ranked) - 1; i >= 0; i-- {
			if !ranked[i].HadBye {
				at = i
				break
			}
		}
		bye = field[at]
		field = append(field[:at:at], field[at+1:]...)
	}

	pairs, ok := pairFresh(field, played, make([]bool, len(field)), nil)
	if !ok {
		pairs = nil
		for i := 0; i+1 < len(field); i += 2 {
			pairs = append(pairs, pair{P1: field[i], P2: field[i+1]})
		}
	}
	if bye != "" {
		pairs = append(pairs, pair{P1: bye})
	}
	return pairs
}

// pairFresh pairs the highest unpaired player with the nearest opponent not
// met before, backtracking when the rest of the field cannot be paired.
func pairFresh(field []string, played map[pairKey]bool, used []bool, acc []pair) ([]pair, bool) {
	i := 0
	for i < len(field) && used[i] {
		i++
	}
	if i == len(field) {
		return acc, true
	}
	used[i] = true
	for j := i + 1; j < len(field); j++ {
		if used[j] || played[keyOf(field[i], field[j])] {
			continue
		}
		used[j] = true
		if out, ok := pairFresh(field, played, used, append(acc, pair{P1: field[i], P2: field[j]})); ok {
			return out, true
		}
		used[j] = false
	}
	used[i] = false
	return nil, false
}

// rank orders participants by points, then point differential, then seed.
func rank(ps []models.TournamentParticipant) []models.TournamentParticipant {
	out := append([]models.TournamentParticipant(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Differential() != b.Differential() {
			return a.Differential() > b.Differential()
		}
		return a.Seed < b.Seed
	})
	return out
}
