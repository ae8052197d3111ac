package economy

import (
	"encoding/json"
	"fmt"
	"strings"

	"game-room-engine/games"
	"game-room-engine/models"
)

// Stake is what one participant put into a room's pot.
type Stake struct {
	UserID string `json:"user_id"`
	BuyIn  int64  `json:"buy_in"`
}

// Settlement is the terminal result of a room to be paid out.
type Settlement struct {
	RoomID  string         `json:"room_id"`
	Version uint64         `json:"version"`
	Stakes  []Stake        `json:"stakes"`
	Outcome *games.Outcome `json:"outcome"`
}

// SettlementFromRoom rebuilds the settlement of a finished room from its
// persisted snapshot. ok is false when the room has nothing to pay out.
func SettlementFromRoom(room models.GameRoom) (s Settlement, ok bool, err error) {
	if room.Status != models.RoomFinished || room.TournamentID != nil {
		return Settlement{}, false, nil
	}
	s = Settlement{RoomID: room.ID, Version: room.Version}
	for _, p := range room.Participants {
		s.Stakes = append(s.Stakes, Stake{UserID: p.UserID, BuyIn: p.BuyIn})
	}
	if s.Pot() == 0 {
		return Settlement{}, false, nil
	}
	var o games.Outcome
	if room.Outcome != "" {
		if err := json.Unmarshal([]byte(room.Outcome), &o); err != nil {
			return Settlement{}, false, fmt.Errorf("room %s outcome: %w", room.ID, err)
		}
	} else {
		o.Draw = room.IsDraw
		if room.WinnerIDs != "" {
			o.Winners = strings.Split(room.WinnerIDs, ",")
		}
	}
	s.Outcome = &o
	return s, true, nil
}

// Key is the idempotence key of the settlement.
func (s Settlement) Key() string {
	return SettlementKey(s.RoomID, s.Version)
}

// Pot is the sum of every buy-in and rebuy.
func (s Settlement) Pot() int64 {
	var pot int64
	for _, st := range s.Stakes {
		pot += st.BuyIn
	}
	return pot
}

// Payouts computes the ledger entries for a settlement:
//
//	rake   = floor(pot * rakePercent / 100)
//	payout = share of pot - rake (or final stack scaled by the rake)
//	bonus  = floor(payout * bonusPercent / 100), a separate entry
//
// A draw credits every participant their own buy-in and takes no rake.
func Payouts(s Settlement, rakePercent, bonusPercent int64) []models.Transaction {
	roomID := s.RoomID
	pot := s.Pot()
	if pot == 0 || s.Outcome == nil {
		return nil
	}

	var out []models.Transaction
	entry := func(user, typ string, amount int64, reason string) {
		if amount <= 0 {
			return
		}
		out = append(out, models.Transaction{
			UserID:   user,
			RoomID:   &roomID,
			Type:     typ,
			Amount:   amount,
			Currency: models.CurrencyCoin,
			Reason:   reason,
		})
	}

	if s.Outcome.Draw || (len(s.Outcome.Winners) == 0 && len(s.Outcome.Stacks) == 0) {
		for _, st := range s.Stakes {
			entry(st.UserID, models.TxRefund, st.BuyIn, "draw")
		}
		return out
	}

	rake := pot * rakePercent / 100
	net := pot - rake
	winners := make(map[string]bool, len(s.Outcome.Winners))
	for _, w := range s.Outcome.Winners {
		winners[w] = true
	}

	payouts := make(map[string]int64)
	var order []string
	if len(s.Outcome.Stacks) > 0 {
		var chips int64
		for _, st := range s.Stakes {
			chips += s.Outcome.Stacks[st.UserID]
		}
		for _, st := range s.Stakes {
			if chips > 0 {
				payouts[st.UserID] = s.Outcome.Stacks[st.UserID] * net / chips
			}
			order = append(order, st.UserID)
		}
	} else {
		share := net / int64(len(s.Outcome.Winners))
		odd := net - share*int64(len(s.Outcome.Winners))
		for i, w := range s.Outcome.Winners {
			payouts[w] = share
			if i == 0 {
				payouts[w] += odd
			}
			order = append(order, w)
		}
	}

	for _, user := range order {
		p := payouts[user]
		entry(user, models.TxCredit, p, "winnings")
		if winners[user] {
			entry(user, models.TxBonus, p*bonusPercent/100, "winner bonus")
		}
	}
	return out
}
