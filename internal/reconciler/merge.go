package reconciler

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/cdc"
	"github.com/DoyleJ11/cardparty-sync/internal/game"
)

func (r *Reconciler) handleChange(ev cdc.Event) {
	r.seq++
	log := r.logger.With(zap.String("table", string(ev.Table)), zap.String("op", string(ev.Operation)))

	switch ev.Table {
	case cdc.TableGames:
		if ev.Operation != cdc.OpUpdate {
			return
		}
		// A games row alone cannot rebuild the joined view (judge
		// rotation, round, submissions), so always refetch everything.
		r.refreshSeq = r.seq
		r.spawn(r.fetchSnapshot(r.seq))

	case cdc.TablePlayers:
		row, err := game.DecodeRow[game.PlayerRow](ev.NewRow)
		if err != nil {
			log.Warn("bad players row", zap.Error(err))
			return
		}
		if row.ID == "" {
			// Deletes carry no row; the next full refresh drops the player.
			log.Debug("players change without id")
			return
		}
		r.apply(func(s *game.GameClientState) bool {
			changed, err := game.MergePlayer(s, row)
			return err == nil && changed
		})

	case cdc.TableResponses:
		if ev.Operation != cdc.OpInsert {
			return
		}
		row, err := game.DecodeRow[game.ResponseRow](ev.NewRow)
		if err != nil {
			log.Warn("bad responses row", zap.Error(err))
			return
		}
		r.handleResponse(row, log)

	case cdc.TablePlayerHands:
		row, err := game.DecodeRow[game.PlayerHandRow](ev.NewRow)
		if err != nil {
			log.Warn("bad player_hands row", zap.Error(err))
			return
		}
		r.handleHandChange(ev.Operation, row)

	default:
		log.Debug("ignoring change on unwatched table")
	}
}

func (r *Reconciler) handleResponse(row game.ResponseRow, log *zap.Logger) {
	if row.PlayerID == "" {
		log.Warn("response without player id")
		return
	}
	if r.state != nil && earlierRound(row, r.state) {
		log.Debug("dropping response from earlier round", zap.Int("round", *row.RoundNumber))
		return
	}

	text, hasText := game.SubmittedText(row)
	if hasText || row.ResponseCardID == nil || *row.ResponseCardID == "" {
		// The synthesized card id depends on the round of the state the
		// patch lands on, which during a refresh is not known yet.
		r.apply(func(s *game.GameClientState) bool {
			if earlierRound(row, s) {
				return false
			}
			return game.AddSubmission(s, game.Submission{
				PlayerID: row.PlayerID,
				CardID:   game.SubmissionCardID(row, s.Round),
				CardText: text,
			})
		})
		return
	}

	sub := game.Submission{PlayerID: row.PlayerID, CardID: *row.ResponseCardID}
	key := [2]string{sub.PlayerID, sub.CardID}
	if r.pendingCards[key] || (r.state != nil && r.state.HasSubmission(sub.PlayerID, sub.CardID)) {
		return
	}
	r.pendingCards[key] = true
	r.spawn(func(ctx context.Context) Msg {
		text, found, err := r.deps.Gateway.FetchCardText(ctx, sub.CardID)
		sub.CardText = text
		return cardTextLoaded{sub: sub, found: found, err: err}
	})
}

func earlierRound(row game.ResponseRow, s *game.GameClientState) bool {
	return row.RoundNumber != nil && *row.RoundNumber < s.Round
}

func (r *Reconciler) applyCardText(msg cardTextLoaded) {
	delete(r.pendingCards, [2]string{msg.sub.PlayerID, msg.sub.CardID})
	log := r.logger.With(zap.String("player_id", msg.sub.PlayerID), zap.String("card_id", msg.sub.CardID))
	if msg.err != nil {
		log.Warn("card text lookup failed", zap.Error(msg.err))
		return
	}
	if !msg.found {
		log.Warn("submitted card has no text")
	}
	sub := msg.sub
	r.apply(func(s *game.GameClientState) bool { return game.AddSubmission(s, sub) })
}

// handleHandChange only ever looks at the local player's own hand. A
// delete arrives without a row, so it cannot be attributed and the local
// hand is refetched to be safe.
func (r *Reconciler) handleHandChange(op cdc.Operation, row game.PlayerHandRow) {
	if r.state == nil && !r.loaded {
		// The initial load may already have read the hand; refetch once
		// we know who the local player is.
		r.handDirty = true
		return
	}
	if r.state == nil || r.state.LocalPlayerID == "" {
		return
	}
	local := r.state.LocalPlayerID
	if row.PlayerID != local && !(op == cdc.OpDelete && row.PlayerID == "") {
		return
	}
	r.spawn(r.fetchHand(r.seq, local))
}

func (r *Reconciler) fetchHand(seq int, playerID string) func(ctx context.Context) Msg {
	gameID := r.gameID
	return func(ctx context.Context) Msg {
		detail, err := r.deps.Gateway.FetchPlayerDetail(ctx, playerID, gameID)
		return handLoaded{seq: seq, playerID: playerID, detail: detail, err: err}
	}
}

func (r *Reconciler) applyHand(msg handLoaded) {
	log := r.logger.With(zap.String("player_id", msg.playerID))
	if msg.err != nil {
		log.Warn("hand refresh failed", zap.Error(msg.err))
		return
	}
	if msg.detail == nil {
		log.Warn("local player not found on hand refresh")
		return
	}
	// A slower, older fetch must not overwrite a newer hand.
	if msg.seq < r.handSeq {
		return
	}
	r.handSeq = msg.seq
	hand := msg.detail.Hand
	playerID := msg.playerID
	r.apply(func(s *game.GameClientState) bool { return game.ReplaceHand(s, playerID, hand) })
}

func (r *Reconciler) fetchSnapshot(seq int) func(ctx context.Context) Msg {
	gameID := r.gameID
	return func(ctx context.Context) Msg {
		s, err := r.deps.Gateway.FetchGameSnapshot(ctx, gameID)
		return snapshotLoaded{seq: seq, state: s, err: err}
	}
}

// initialLoad fetches the snapshot, works out who this device is and, if
// known, pulls the local hand, all before the first publish.
func (r *Reconciler) initialLoad(seq int) func(ctx context.Context) Msg {
	gameID := r.gameID
	return func(ctx context.Context) Msg {
		s, err := r.deps.Gateway.FetchGameSnapshot(ctx, gameID)
		if err != nil || s == nil || s.GameID == "" {
			return snapshotLoaded{seq: seq, err: err}
		}
		if r.deps.Identity == nil {
			return snapshotLoaded{seq: seq, state: s}
		}

		playerID, ok, err := r.deps.Identity.Resolve(ctx, s.GameID, s.Players)
		if err != nil {
			r.logger.Warn("identity unresolved", zap.Error(err))
		}
		if !ok {
			return snapshotLoaded{seq: seq, state: s}
		}
		s.LocalPlayerID = playerID

		detail, err := r.deps.Gateway.FetchPlayerDetail(ctx, playerID, gameID)
		if err != nil {
			r.logger.Warn("initial hand fetch failed", zap.String("player_id", playerID), zap.Error(err))
		}
		if i := s.PlayerIndex(playerID); i < 0 && detail != nil {
			// joined after the snapshot was read
			detail.Hand = nil
			s.Players = append(s.Players, *detail)
		}
		if detail != nil {
			game.ReplaceHand(s, playerID, detail.Hand)
		}
		return snapshotLoaded{seq: seq, state: s}
	}
}

func (r *Reconciler) applySnapshot(msg snapshotLoaded) {
	if msg.seq != r.refreshSeq {
		// superseded by a newer refresh
		return
	}
	journal := r.journal
	r.refreshSeq = 0
	r.journal = nil
	first := !r.loaded
	r.loaded = true

	if msg.err != nil || msg.state == nil || msg.state.GameID == "" {
		if msg.err != nil {
			r.logger.Warn("snapshot fetch failed", zap.Error(msg.err))
		} else {
			r.logger.Info("game not found")
		}
		if first {
			// Nothing usable yet: consumers see "not in game".
			r.state = nil
			r.publish()
		}
		return
	}

	r.state = game.ReplaceSnapshot(r.state, msg.state)
	for _, p := range journal {
		p(r.state)
	}
	r.publish()

	if r.handDirty {
		r.handDirty = false
		if local := r.state.LocalPlayerID; local != "" {
			r.seq++
			r.spawn(r.fetchHand(r.seq, local))
		}
	}
}

func (r *Reconciler) setLocalPlayer(msg SetLocalPlayer) {
	if msg.PlayerID == "" {
		msg.Reply <- ErrNoGame
		return
	}
	if r.state == nil {
		msg.Reply <- ErrNoGame
		return
	}
	playerID := msg.PlayerID
	r.apply(func(s *game.GameClientState) bool {
		if s.LocalPlayerID == playerID {
			return false
		}
		s.LocalPlayerID = playerID
		for i := range s.Players {
			if s.Players[i].ID != playerID {
				s.Players[i].Hand = nil
			}
		}
		return true
	})

	r.seq++
	seq := r.seq
	gameID := r.gameID
	fetch := r.fetchHand(seq, playerID)
	r.spawn(func(ctx context.Context) Msg {
		var err error
		if r.deps.Identity != nil {
			err = r.deps.Identity.Remember(ctx, gameID, playerID)
		}
		msg.Reply <- err
		return fetch(ctx)
	})
}
