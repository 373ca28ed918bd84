package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/game"
)

type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect gateway: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

const (
	sqlLatestGame = `
		SELECT id::text FROM games
		WHERE status <> 'game_over'
		ORDER BY created_at DESC
		LIMIT 1`

	sqlGame = `
		SELECT id::text, status, COALESCE(current_judge_id::text, ''),
		       COALESCE(round_number, 0), COALESCE(category, ''),
		       COALESCE(winner_id::text, '')
		FROM games WHERE id::text = $1`

	sqlPlayers = `
		SELECT id::text, player_name, COALESCE(avatar_src, ''), score, is_ready
		FROM players WHERE game_id::text = $1
		ORDER BY created_at, id`

	sqlPlayer = `
		SELECT id::text, player_name, COALESCE(avatar_src, ''), score, is_ready
		FROM players WHERE id::text = $1 AND game_id::text = $2`

	sqlSubmissions = `
		SELECT r.player_id::text, r.response_card_id::text, r.submitted_text,
		       COALESCE(c.text, ''), COALESCE(r.round_number, $2)
		FROM responses r
		LEFT JOIN cards c ON c.id = r.response_card_id
		WHERE r.game_id::text = $1 AND COALESCE(r.round_number, $2) = $2
		ORDER BY r.created_at`

	sqlHand = `
		SELECT c.id::text, c.text
		FROM player_hands h
		JOIN cards c ON c.id = h.card_id
		WHERE h.player_id::text = $1 AND h.game_id::text = $2
		ORDER BY h.created_at, c.id`

	sqlCardText = `SELECT text FROM cards WHERE id::text = $1`
)

func (p *Postgres) FetchGameSnapshot(ctx context.Context, gameID string) (*game.GameClientState, error) {
	if gameID == "" {
		err := p.pool.QueryRow(ctx, sqlLatestGame).Scan(&gameID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("latest game: %w", err)
		}
	}

	var (
		s      game.GameClientState
		status string
	)
	err := p.pool.QueryRow(ctx, sqlGame, gameID).Scan(
		&s.GameID, &status, &s.CurrentJudgeID, &s.Round, &s.Category, &s.WinningPlayerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}
	if s.Phase, err = game.ParsePhase(status); err != nil {
		return nil, fmt.Errorf("game %s status %q: %w", gameID, status, err)
	}
	if s.Phase != game.PhaseGameOver {
		s.WinningPlayerID = ""
	}

	if s.Players, err = p.players(ctx, gameID); err != nil {
		return nil, err
	}
	if s.Submissions, err = p.submissions(ctx, gameID, s.Round); err != nil {
		return nil, err
	}
	s.TransitionState = game.TransitionIdle
	s.DeriveJudges()
	p.logger.Debug("fetched snapshot",
		zap.String("game_id", s.GameID),
		zap.String("phase", string(s.Phase)),
		zap.Int("players", len(s.Players)),
		zap.Int("submissions", len(s.Submissions)))
	return &s, nil
}

func (p *Postgres) players(ctx context.Context, gameID string) ([]game.PlayerClientState, error) {
	rows, err := p.pool.Query(ctx, sqlPlayers, gameID)
	if err != nil {
		return nil, fmt.Errorf("players of %s: %w", gameID, err)
	}
	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.PlayerClientState, error) {
		var pl game.PlayerClientState
		err := row.Scan(&pl.ID, &pl.Name, &pl.Avatar, &pl.Score, &pl.IsReady)
		return pl, err
	})
	if err != nil {
		return nil, fmt.Errorf("players of %s: %w", gameID, err)
	}
	return players, nil
}

func (p *Postgres) submissions(ctx context.Context, gameID string, round int) ([]game.Submission, error) {
	rows, err := p.pool.Query(ctx, sqlSubmissions, gameID, round)
	if err != nil {
		return nil, fmt.Errorf("submissions of %s: %w", gameID, err)
	}
	subs := []game.Submission{}
	seen := map[[2]string]bool{}
	for rows.Next() {
		var (
			row      game.ResponseRow
			cardText string
			rowRound int
		)
		if err := rows.Scan(&row.PlayerID, &row.ResponseCardID, &row.SubmittedText, &cardText, &rowRound); err != nil {
			rows.Close()
			return nil, fmt.Errorf("submissions of %s: %w", gameID, err)
		}
		row.RoundNumber = &rowRound
		sub := game.Submission{PlayerID: row.PlayerID, CardID: game.SubmissionCardID(row, round), CardText: cardText}
		if text, ok := game.SubmittedText(row); ok {
			sub.CardText = text
		}
		key := [2]string{sub.PlayerID, sub.CardID}
		if seen[key] {
			continue
		}
		seen[key] = true
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("submissions of %s: %w", gameID, err)
	}
	return subs, nil
}

func (p *Postgres) FetchPlayerDetail(ctx context.Context, playerID, gameID string) (*game.PlayerClientState, error) {
	var pl game.PlayerClientState
	err := p.pool.QueryRow(ctx, sqlPlayer, playerID, gameID).Scan(&pl.ID, &pl.Name, &pl.Avatar, &pl.Score, &pl.IsReady)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", playerID, err)
	}

	rows, err := p.pool.Query(ctx, sqlHand, playerID, gameID)
	if err != nil {
		return nil, fmt.Errorf("hand of %s: %w", playerID, err)
	}
	pl.Hand, err = pgx.CollectRows(rows, pgx.RowToStructByPos[game.Card])
	if err != nil {
		return nil, fmt.Errorf("hand of %s: %w", playerID, err)
	}
	return &pl, nil
}

func (p *Postgres) FetchCardText(ctx context.Context, cardID string) (string, bool, error) {
	var text string
	err := p.pool.QueryRow(ctx, sqlCardText, cardID).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("card %s: %w", cardID, err)
	}
	return text, true, nil
}
