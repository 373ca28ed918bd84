package game

import (
	"encoding/json"
	"fmt"
)

// Row column layouts as they arrive in CDC payloads. Pointer fields are
// absent when the column was not part of the change.

type GameRow struct {
	ID             string  `json:"id"`
	Status         *string `json:"status"`
	CurrentJudgeID *string `json:"current_judge_id"`
	RoundNumber    *int    `json:"round_number"`
}

type PlayerRow struct {
	ID        string  `json:"id"`
	GameID    string  `json:"game_id"`
	Name      *string `json:"player_name"`
	AvatarSrc *string `json:"avatar_src"`
	Score     *int    `json:"score"`
	IsReady   *bool   `json:"is_ready"`
}

type ResponseRow struct {
	ID             string  `json:"id"`
	GameID         string  `json:"game_id"`
	PlayerID       string  `json:"player_id"`
	ResponseCardID *string `json:"response_card_id"`
	SubmittedText  *string `json:"submitted_text"`
	RoundNumber    *int    `json:"round_number"`
}

type PlayerHandRow struct {
	ID       string `json:"id"`
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	CardID   string `json:"card_id"`
}

// DecodeRow converts a loosely typed CDC record into one of the row types.
func DecodeRow[T any](record map[string]any) (T, error) {
	var row T
	raw, err := json.Marshal(record)
	if err != nil {
		return row, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, fmt.Errorf("decode record: %w", err)
	}
	return row, nil
}
