package games

import (
	"fmt"
	"sort"

	"github.com/paulhankin/poker"
)

// Streets
const (
	StreetPreflop  = "preflop"
	StreetFlop     = "flop"
	StreetTurn     = "turn"
	StreetRiver    = "river"
	StreetComplete = "complete"
)

// Card is a playing card; Rank runs 2..14 with the ace high, Suit 0..3
// (clubs, diamonds, hearts, spades).
type Card struct {
	Rank int `json:"rank"`
	Suit int `json:"suit"`
}

func (c Card) String() string {
	return string("--23456789TJQKA"[c.Rank]) + string("cdhs"[c.Suit])
}

func (c Card) eval() (poker.Card, error) {
	r := c.Rank
	if r == 14 {
		r = 1
	}
	return poker.MakeCard(poker.Suit(c.Suit), poker.Rank(r))
}

// PokerSeat is a player at the table.
type PokerSeat struct {
	ID        string `json:"id"`
	Stack     int64  `json:"stack"`
	Bet       int64  `json:"bet"`       // this street
	Committed int64  `json:"committed"` // this hand
	Hole      []Card `json:"hole,omitempty"`
	Folded    bool   `json:"folded"`
	AllIn     bool   `json:"all_in"`
	Acted     bool   `json:"acted"`
	InHand    bool   `json:"in_hand"`
	Forfeited bool   `json:"forfeited"`
	Pending   int64  `json:"pending"` // rebuy chips added at the next deal
}

func (s *PokerSeat) live() bool { return s.InHand && !s.Folded }

func (s *PokerSeat) canAct() bool { return s.live() && !s.AllIn }

// PotAward records who won a pot at the end of a hand.
type PotAward struct {
	Amount  int64    `json:"amount"`
	Winners []string `json:"winners"`
	Hand    string   `json:"hand,omitempty"`
}

// PokerState is a no-limit hold'em table played hand after hand until one
// player holds every chip.
type PokerState struct {
	Seats      []PokerSeat `json:"seats"`
	SmallBlind int64       `json:"small_blind"`
	BigBlind   int64       `json:"big_blind"`
	Seed       uint64      `json:"seed"`
	HandNumber int         `json:"hand_number"`
	Dealer     int         `json:"dealer"`
	Deck       []Card      `json:"deck"`
	Board      []Card      `json:"board"`
	Street     string      `json:"street"`
	CurrentBet int64       `json:"current_bet"`
	MinRaise   int64       `json:"min_raise"`
	Turn       int         `json:"turn"`
	Showdown   bool        `json:"showdown"`
	Awards     []PotAward  `json:"awards,omitempty"`
	Over       bool        `json:"over"`
}

func (PokerState) GameType() GameType { return Poker }

func (s *PokerState) clone() *PokerState {
	c := *s
	c.Seats = make([]PokerSeat, len(s.Seats))
	for i, seat := range s.Seats {
		seat.Hole = append([]Card(nil), seat.Hole...)
		c.Seats[i] = seat
	}
	c.Deck = append([]Card(nil), s.Deck...)
	c.Board = append([]Card(nil), s.Board...)
	c.Awards = append([]PotAward(nil), s.Awards...)
	return &c
}

func (s *PokerState) seat(id string) int {
	for i := range s.Seats {
		if s.Seats[i].ID == id {
			return i
		}
	}
	return -1
}

// Pot is every chip committed to the current hand.
func (s *PokerState) Pot() int64 {
	var pot int64
	for _, seat := range s.Seats {
		pot += seat.Committed
	}
	return pot
}

func (s *PokerState) funded() []int {
	var out []int
	for i, seat := range s.Seats {
		if !seat.Forfeited && seat.Stack+seat.Pending > 0 {
			out = append(out, i)
		}
	}
	return out
}

func (s *PokerState) liveCount() int {
	n := 0
	for _, seat := range s.Seats {
		if seat.live() {
			n++
		}
	}
	return n
}

// PokerRules implements Rules for no-limit Texas hold'em.
type PokerRules struct{}

func (PokerRules) Type() GameType { return Poker }

func (r PokerRules) NewGame(players []string, opts Options) (Result, error) {
	if len(players) < 2 || len(players) > 6 {
		return Result{}, fmt.Errorf("poker needs 2-6 players, got %d", len(players))
	}
	if opts.SmallBlind <= 0 || opts.BigBlind < opts.SmallBlind {
		return Result{}, fmt.Errorf("invalid blinds %d/%d", opts.SmallBlind, opts.BigBlind)
	}
	st := &PokerState{
		SmallBlind: opts.SmallBlind,
		BigBlind:   opts.BigBlind,
		Seed:       opts.Seed,
		Dealer:     len(players) - 1,
		Street:     StreetComplete,
		Turn:       -1,
	}
	for _, p := range players {
		stack := opts.Stacks[p]
		if stack <= 0 {
			return Result{}, fmt.Errorf("player %s has no chips", p)
		}
		st.Seats = append(st.Seats, PokerSeat{ID: p, Stack: stack})
	}
	return r.deal(st), nil
}

// NextHand deals the next hand, or ends the game once fewer than two players
// have chips.
func (r PokerRules) NextHand(state State) (Result, error) {
	cur, ok := state.(*PokerState)
	if !ok {
		return Result{}, wrongState(Poker, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Street != StreetComplete {
		return Result{}, invalid("hand %d is still running", cur.HandNumber)
	}
	st := cur.clone()
	if len(st.funded()) < 2 {
		return r.finish(st, "last_player_standing"), nil
	}
	return r.deal(st), nil
}

func (r PokerRules) deal(st *PokerState) Result {
	for i := range st.Seats {
		seat := &st.Seats[i]
		seat.Stack += seat.Pending
		seat.Pending = 0
		seat.Bet, seat.Committed = 0, 0
		seat.Hole = nil
		seat.Folded, seat.AllIn, seat.Acted = false, false, false
		seat.InHand = !seat.Forfeited && seat.Stack > 0
	}
	st.HandNumber++
	st.Board = nil
	st.Awards = nil
	st.Showdown = false
	st.Street = StreetPreflop

	inHand := func(i int) bool { return !st.Seats[i].InHand }
	n := len(st.Seats)
	st.Dealer = nextActive(n, st.Dealer, inHand)

	deck := make([]Card, 0, 52)
	for suit := 0; suit < 4; suit++ {
		for rank := 2; rank <= 14; rank++ {
			deck = append(deck, Card{Rank: rank, Suit: suit})
		}
	}
	rng := newRand(st.Seed, uint64(st.HandNumber))
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	for round := 0; round < 2; round++ {
		for step := 1; step <= n; step++ {
			i := (st.Dealer + step) % n
			if st.Seats[i].InHand {
				st.Seats[i].Hole = append(st.Seats[i].Hole, deck[0])
				deck = deck[1:]
			}
		}
	}
	st.Deck = deck

	players := 0
	for _, seat := range st.Seats {
		if seat.InHand {
			players++
		}
	}
	sb := nextActive(n, st.Dealer, inHand)
	if players == 2 {
		sb = st.Dealer
	}
	bb := nextActive(n, sb, inHand)

	events := []Event{{Action: "new_hand", Amount: int64(st.HandNumber), Detail: st.Seats[st.Dealer].ID}}
	events = append(events, r.post(st, sb, st.SmallBlind, "small_blind"))
	events = append(events, r.post(st, bb, st.BigBlind, "big_blind"))
	st.CurrentBet = st.BigBlind
	st.MinRaise = st.BigBlind
	st.Turn = bb

	return r.advance(st, events)
}

func (PokerRules) post(st *PokerState, i int, amount int64, action string) Event {
	seat := &st.Seats[i]
	if amount >= seat.Stack {
		amount = seat.Stack
		seat.AllIn = true
	}
	seat.Stack -= amount
	seat.Bet += amount
	seat.Committed += amount
	return Event{ParticipantID: seat.ID, Action: action, Amount: amount}
}

func (r PokerRules) ApplyMove(state State, participantID string, move Move) (Result, error) {
	cur, ok := state.(*PokerState)
	if !ok {
		return Result{}, wrongState(Poker, state)
	}
	if cur.Over {
		return Result{}, invalid("game is over")
	}
	if cur.Street == StreetComplete || cur.Turn < 0 {
		return Result{}, invalid("no hand in progress")
	}
	if cur.Seats[cur.Turn].ID != participantID {
		return Result{}, invalid("%s is not on turn", participantID)
	}

	st := cur.clone()
	seat := &st.Seats[st.Turn]
	toCall := st.CurrentBet - seat.Bet

	var amount int64
	if move.Action == "bet" || move.Action == "raise" {
		var p struct {
			Amount int64 `json:"amount"`
		}
		if err := move.Decode(&p); err != nil {
			return Result{}, err
		}
		if p.Amount <= 0 {
			return Result{}, invalid("%s amount must be positive", move.Action)
		}
		amount = p.Amount
	}

	ev := Event{ParticipantID: seat.ID, Action: move.Action}
	switch move.Action {
	case "fold":
		seat.Folded = true

	case "check":
		if toCall > 0 {
			return Result{}, invalid("cannot check facing a bet of %d", toCall)
		}

	case "call":
		if toCall <= 0 {
			ev.Action = "check"
			break
		}
		pay := min(toCall, seat.Stack)
		r.commit(seat, pay)
		ev.Amount = pay

	case "bet":
		if st.CurrentBet > 0 {
			return Result{}, invalid("cannot bet into an open bet, raise instead")
		}
		if amount < st.BigBlind && amount < seat.Stack {
			return Result{}, invalid("bet must be at least %d", st.BigBlind)
		}
		if amount > seat.Stack {
			return Result{}, invalid("bet %d exceeds stack %d", amount, seat.Stack)
		}
		r.commit(seat, amount)
		r.reopen(st, seat.Bet)
		ev.Amount = amount

	case "raise":
		if st.CurrentBet == 0 {
			return Result{}, invalid("nothing to raise, bet instead")
		}
		need := toCall + amount
		if need > seat.Stack {
			return Result{}, invalid("raise needs %d, stack is %d", need, seat.Stack)
		}
		if amount < st.MinRaise && need < seat.Stack {
			return Result{}, invalid("raise must be at least %d", st.MinRaise)
		}
		r.commit(seat, need)
		r.reopen(st, seat.Bet)
		ev.Amount = need

	case "allin":
		if seat.Stack == 0 {
			return Result{}, invalid("no chips left")
		}
		pay := seat.Stack
		r.commit(seat, pay)
		if seat.Bet > st.CurrentBet {
			r.reopen(st, seat.Bet)
		}
		ev.Amount = pay

	default:
		return Result{}, invalid("unknown action %q", move.Action)
	}

	seat.Acted = true
	return r.advance(st, []Event{ev}), nil
}

func (PokerRules) commit(seat *PokerSeat, amount int64) {
	seat.Stack -= amount
	seat.Bet += amount
	seat.Committed += amount
	if seat.Stack == 0 {
		seat.AllIn = true
	}
}

// reopen raises the bet to newBet; a full raise reopens the action for
// everybody else.
func (PokerRules) reopen(st *PokerState, newBet int64) {
	raise := newBet - st.CurrentBet
	if raise >= st.MinRaise {
		st.MinRaise = raise
		for i := range st.Seats {
			st.Seats[i].Acted = false
		}
	}
	st.CurrentBet = newBet
}

// advance finds the next player to act, or moves the hand along.
func (r PokerRules) advance(st *PokerState, events []Event) Result {
	if st.liveCount() == 1 {
		return r.endHand(st, events)
	}

	if !r.roundComplete(st) {
		from := st.Turn
		next := nextActive(len(st.Seats), from, func(i int) bool {
			s := st.Seats[i]
			return !s.canAct() || (s.Acted && s.Bet == st.CurrentBet)
		})
		if next >= 0 {
			st.Turn = next
			return Result{State: st, NextTurn: st.Seats[next].ID, TurnAdvanced: true, Events: events}
		}
	}

	for {
		actors := 0
		for _, s := range st.Seats {
			if s.canAct() {
				actors++
			}
		}
		if st.Street == StreetRiver {
			return r.showdown(st, events)
		}
		r.nextStreet(st)
		events = append(events, Event{Action: st.Street, Detail: cardsString(st.Board)})
		if actors >= 2 {
			break
		}
	}
	st.Turn = nextActive(len(st.Seats), st.Dealer, func(i int) bool { return !st.Seats[i].canAct() })
	return Result{State: st, NextTurn: st.Seats[st.Turn].ID, TurnAdvanced: true, Events: events}
}

func (PokerRules) roundComplete(st *PokerState) bool {
	for _, s := range st.Seats {
		if s.canAct() && (!s.Acted || s.Bet != st.CurrentBet) {
			return false
		}
	}
	return true
}

func (PokerRules) nextStreet(st *PokerState) {
	for i := range st.Seats {
		st.Seats[i].Bet = 0
		st.Seats[i].Acted = false
	}
	st.CurrentBet = 0
	st.MinRaise = st.BigBlind

	draw := func(n int) {
		st.Deck = st.Deck[1:] // burn
		st.Board = append(st.Board, st.Deck[:n]...)
		st.Deck = st.Deck[n:]
	}
	switch st.Street {
	case StreetPreflop:
		draw(3)
		st.Street = StreetFlop
	case StreetFlop:
		draw(1)
		st.Street = StreetTurn
	case StreetTurn:
		draw(1)
		st.Street = StreetRiver
	}
}

// endHand awards the whole pot to the last live player.
func (r PokerRules) endHand(st *PokerState, events []Event) Result {
	var winner int
	for i, s := range st.Seats {
		if s.live() {
			winner = i
		}
	}
	pot := st.Pot()
	st.Seats[winner].Stack += pot
	st.Awards = []PotAward{{Amount: pot, Winners: []string{st.Seats[winner].ID}}}
	events = append(events, Event{ParticipantID: st.Seats[winner].ID, Action: "win", Amount: pot})
	return r.closeHand(st, events)
}

// showdown splits the main pot and every side pot among the best hands.
func (r PokerRules) showdown(st *PokerState, events []Event) Result {
	st.Showdown = true
	scores := make(map[int]int16)
	names := make(map[int]string)
	for i, s := range st.Seats {
		if !s.live() {
			continue
		}
		var hand [7]poker.Card
		cards := append(append([]Card(nil), st.Board...), s.Hole...)
		for j, c := range cards {
			pc, err := c.eval()
			if err != nil {
				continue
			}
			hand[j] = pc
		}
		scores[i] = poker.Eval7(&hand)
		if desc, err := poker.Describe(hand[:]); err == nil {
			names[i] = desc
		}
	}

	var levels []int64
	seen := map[int64]bool{}
	for _, s := range st.Seats {
		if s.live() && !seen[s.Committed] {
			seen[s.Committed] = true
			levels = append(levels, s.Committed)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var prev int64
	for li, level := range levels {
		var amount int64
		for _, s := range st.Seats {
			amount += min(s.Committed, level) - min(s.Committed, prev)
			if li == len(levels)-1 && s.Committed > level {
				amount += s.Committed - level
			}
		}
		var best int16
		var winners []int
		for i, s := range st.Seats {
			if !s.live() || s.Committed < level {
				continue
			}
			switch {
			case len(winners) == 0 || scores[i] > best:
				best = scores[i]
				winners = []int{i}
			case scores[i] == best:
				winners = append(winners, i)
			}
		}
		prev = level
		if amount == 0 || len(winners) == 0 {
			continue
		}

		// Odd chips go to the first winner left of the dealer.
		sort.Slice(winners, func(a, b int) bool {
			return seatDistance(st.Dealer, winners[a], len(st.Seats)) < seatDistance(st.Dealer, winners[b], len(st.Seats))
		})
		share := amount / int64(len(winners))
		odd := amount - share*int64(len(winners))
		award := PotAward{Amount: amount, Hand: names[winners[0]]}
		for k, w := range winners {
			won := share
			if k == 0 {
				won += odd
			}
			st.Seats[w].Stack += won
			award.Winners = append(award.Winners, st.Seats[w].ID)
			events = append(events, Event{ParticipantID: st.Seats[w].ID, Action: "win", Amount: won, Detail: names[w]})
		}
		st.Awards = append(st.Awards, award)
	}
	return r.closeHand(st, events)
}

func (r PokerRules) closeHand(st *PokerState, events []Event) Result {
	for i := range st.Seats {
		st.Seats[i].Bet = 0
		st.Seats[i].Committed = 0
	}
	st.Street = StreetComplete
	st.Turn = -1
	st.CurrentBet = 0
	res := Result{State: st, TurnAdvanced: true, HandEnded: true, Events: events}

	active := 0
	for _, s := range st.Seats {
		if !s.Forfeited {
			active++
		}
	}
	if active <= 1 {
		fin := r.finish(st, "forfeit")
		fin.Events = append(events, fin.Events...)
		return fin
	}
	return res
}

func (PokerRules) finish(st *PokerState, reason string) Result {
	st.Over = true
	st.Turn = -1
	stacks := make(map[string]int64, len(st.Seats))
	var winners []string
	var best int64 = -1
	for _, s := range st.Seats {
		stacks[s.ID] = s.Stack + s.Pending
		if s.Forfeited {
			continue
		}
		total := s.Stack + s.Pending
		switch {
		case total > best:
			best = total
			winners = []string{s.ID}
		case total == best:
			winners = append(winners, s.ID)
		}
	}
	return Result{
		State:    st,
		Terminal: true,
		Outcome: &Outcome{
			Winners: winners,
			Scores:  copyScores(stacks),
			Stacks:  stacks,
			Reason:  reason,
		},
		Events: []Event{{Action: "game_over", Detail: reason}},
	}
}

// DefaultMove folds.
func (PokerRules) DefaultMove(State, string) Move {
	return Move{Action: "fold"}
}

func (r PokerRules) Forfeit(state State, participantID string) (Result, error) {
	cur, ok := state.(*PokerState)
	if !ok {
		return Result{}, wrongState(Poker, state)
	}
	i := cur.seat(participantID)
	if i < 0 {
		return Result{}, invalid("%s is not seated", participantID)
	}
	st := cur.clone()
	seat := &st.Seats[i]
	seat.Forfeited = true
	ev := Event{ParticipantID: participantID, Action: "forfeit"}

	if st.Street == StreetComplete {
		active := 0
		for _, s := range st.Seats {
			if !s.Forfeited {
				active++
			}
		}
		if active <= 1 {
			fin := r.finish(st, "forfeit")
			fin.Events = append([]Event{ev}, fin.Events...)
			return fin, nil
		}
		return Result{State: st, Events: []Event{ev}}, nil
	}

	if seat.live() {
		seat.Folded = true
		seat.Acted = true
	}
	if st.Turn == i || st.liveCount() <= 1 || r.roundComplete(st) {
		return r.advance(st, []Event{ev}), nil
	}
	return Result{State: st, NextTurn: st.Seats[st.Turn].ID, Events: []Event{ev}}, nil
}

// Rebuy adds chips to a participant's stack. Chips bought during a hand the
// participant is still playing are added at the next deal.
func (PokerRules) Rebuy(state State, participantID string, amount int64) (State, error) {
	cur, ok := state.(*PokerState)
	if !ok {
		return nil, wrongState(Poker, state)
	}
	if amount <= 0 {
		return nil, invalid("rebuy amount must be positive")
	}
	if cur.Over {
		return nil, invalid("game is over")
	}
	i := cur.seat(participantID)
	if i < 0 {
		return nil, invalid("%s is not seated", participantID)
	}
	if cur.Seats[i].Forfeited {
		return nil, invalid("%s has forfeited", participantID)
	}
	st := cur.clone()
	seat := &st.Seats[i]
	if st.Street != StreetComplete && seat.live() {
		seat.Pending += amount
	} else {
		seat.Stack += amount
	}
	return st, nil
}

// StackOf returns a participant's chips including pending rebuys.
func (s *PokerState) StackOf(participantID string) int64 {
	i := s.seat(participantID)
	if i < 0 {
		return 0
	}
	return s.Seats[i].Stack + s.Seats[i].Pending
}

func (PokerRules) View(state State, viewerID string) any {
	st, ok := state.(*PokerState)
	if !ok {
		return state
	}
	seats := make([]map[string]any, len(st.Seats))
	for i, s := range st.Seats {
		seat := map[string]any{
			"id":        s.ID,
			"stack":     s.Stack,
			"bet":       s.Bet,
			"committed": s.Committed,
			"folded":    s.Folded,
			"all_in":    s.AllIn,
			"in_hand":   s.InHand,
			"forfeited": s.Forfeited,
			"pending":   s.Pending,
			"cards":     len(s.Hole),
		}
		if s.ID == viewerID || (st.Showdown && s.live()) {
			seat["hole"] = cardStrings(s.Hole)
		}
		seats[i] = seat
	}
	view := map[string]any{
		"seats":       seats,
		"board":       cardStrings(st.Board),
		"pot":         st.Pot(),
		"street":      st.Street,
		"current_bet": st.CurrentBet,
		"min_raise":   st.MinRaise,
		"small_blind": st.SmallBlind,
		"big_blind":   st.BigBlind,
		"hand_number": st.HandNumber,
		"dealer":      st.Seats[st.Dealer].ID,
		"awards":      st.Awards,
		"over":        st.Over,
	}
	if st.Turn >= 0 {
		view["turn"] = st.Seats[st.Turn].ID
		if i := st.seat(viewerID); i == st.Turn {
			view["to_call"] = st.CurrentBet - st.Seats[i].Bet
		}
	}
	return view
}

func seatDistance(dealer, seat, n int) int {
	return (seat - dealer + n) % n
}

func cardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

func cardsString(cards []Card) string {
	s := ""
	for i, c := range cards {
		if i > 0 {
			s += " "
		}
		s += c.String()
	}
	return s
}

// HandStrength exposes the evaluator for a seven card hand; higher is better.
func HandStrength(cards []Card) (int16, error) {
	if len(cards) != 7 {
		return 0, fmt.Errorf("need 7 cards, got %d", len(cards))
	}
	var hand [7]poker.Card
	for i, c := range cards {
		pc, err := c.eval()
		if err != nil {
			return 0, fmt.Errorf("card %s: %w", c, err)
		}
		hand[i] = pc
	}
	return poker.Eval7(&hand), nil
}
