package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/scoring"
)

var (
	ErrNoPlayer      = errors.New("Falta el nombre del jugador.")
	ErrInvalidAmount = errors.New("Importe de premio inválido.")
)

const (
	SourceHistory     = "history"
	SourcePredictions = "predictions"
)

// PlayerPicks 是一名玩家在某轮次的全部预测。
type PlayerPicks struct {
	Player string         `json:"player"`
	Picks  []scoring.Pick `json:"picks"`
}

type Prize struct {
	ID        string    `json:"id"`
	JornadaID string    `json:"jornada_id"`
	Player    string    `json:"player"`
	Amount    float64   `json:"amount"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JornadaPoints 是某玩家在某轮次的得分；Source 标明来自历史导入还是预测计分。
type JornadaPoints struct {
	JornadaID string `json:"jornada_id"`
	Number    int    `json:"jornada_number"`
	Player    string `json:"player"`
	Points    int    `json:"points"`
	Source    string `json:"source"`
}

// SavePredictions 写入（或覆盖）一名玩家对某轮次的预测，返回写入的场数。
func (s *Store) SavePredictions(ctx context.Context, jornadaID, player string, picks []scoring.Pick) (int, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return 0, ErrNoPlayer
	}
	if err := scoring.Validate(picks); err != nil {
		return 0, err
	}
	j, err := s.GetJornada(ctx, jornadaID)
	if err != nil {
		return 0, err
	}
	if len(j.Matches) != domain.SlotCount {
		return 0, ErrIncomplete
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range picks {
			m := j.Matches[p.Order-1]
			if _, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO predictions (player, match_id, predicted_1x2, predicted_home, predicted_away)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (player, match_id) DO UPDATE SET
					predicted_1x2 = excluded.predicted_1x2,
					predicted_home = excluded.predicted_home,
					predicted_away = excluded.predicted_away`),
				player, m.ID, nullSign(p.Sign), nullGoals(p.Home), nullGoals(p.Away)); err != nil {
				return fmt.Errorf("guardar pronóstico del partido %d: %w", p.Order, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("predictions saved", "jornada", jornadaID, "player", player, "count", len(picks))
	return len(picks), nil
}

// Predictions 列出某轮次全部玩家的预测，按玩家名与场次排序。
func (s *Store) Predictions(ctx context.Context, jornadaID string) ([]PlayerPicks, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT p.player, m.match_order, p.predicted_1x2, p.predicted_home, p.predicted_away
		FROM predictions p JOIN matches m ON m.id = p.match_id
		WHERE m.jornada_id = ?
		ORDER BY p.player, m.match_order`), jornadaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PlayerPicks{}
	for rows.Next() {
		var (
			player       string
			pick         scoring.Pick
			sign, gh, ga sql.NullString
		)
		if err := rows.Scan(&player, &pick.Order, &sign, &gh, &ga); err != nil {
			return nil, err
		}
		if v, ok := domain.ParseSign(sign.String); sign.Valid && ok {
			pick.Sign = &v
		}
		if v, ok := domain.ParseGoals(gh.String); gh.Valid && ok {
			pick.Home = &v
		}
		if v, ok := domain.ParseGoals(ga.String); ga.Valid && ok {
			pick.Away = &v
		}
		if n := len(out); n == 0 || out[n-1].Player != player {
			out = append(out, PlayerPicks{Player: player})
		}
		out[len(out)-1].Picks = append(out[len(out)-1].Picks, pick)
	}
	return out, rows.Err()
}

// AddPrize 记录某玩家在某轮次赢得的奖金。
func (s *Store) AddPrize(ctx context.Context, jornadaID, player string, amount float64, notes string) (*Prize, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, ErrNoPlayer
	}
	if amount <= 0 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return nil, ErrInvalidAmount
	}
	if _, err := s.GetJornada(ctx, jornadaID); err != nil {
		return nil, err
	}
	p := &Prize{
		ID:        uuid.NewString(),
		JornadaID: jornadaID,
		Player:    player,
		Amount:    amount,
		Notes:     strings.TrimSpace(notes),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO prizes (id, jornada_id, player, amount, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		p.ID, p.JornadaID, p.Player, p.Amount, p.Notes, p.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	s.log.Info("prize added", "jornada", jornadaID, "player", player, "amount", amount)
	return p, nil
}

// PrizesBySeason 汇总某赛季每名玩家的奖金。
func (s *Store) PrizesBySeason(ctx context.Context, season string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT z.player, SUM(z.amount)
		FROM prizes z JOIN jornadas j ON j.id = z.jornada_id
		WHERE j.season = ?
		GROUP BY z.player`), season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var (
			player string
			total  float64
		)
		if err := rows.Scan(&player, &total); err != nil {
			return nil, err
		}
		out[player] = total
	}
	return out, rows.Err()
}

// PointsByJornada 给出某赛季每轮次每名玩家的得分。
// 有历史积分的轮次只用历史积分；其余轮次按预测计分，且只计已有结果的轮次。
// 排序：轮次号升序，同轮次按玩家名。
func (s *Store) PointsByJornada(ctx context.Context, season string) ([]JornadaPoints, error) {
	out := []JornadaPoints{}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT j.id, j.number, p.player, p.points
		FROM points_history p JOIN jornadas j ON j.id = p.jornada_id
		WHERE j.season = ?`), season)
	if err != nil {
		return nil, err
	}
	withHistory := map[string]bool{}
	for rows.Next() {
		e := JornadaPoints{Source: SourceHistory}
		if err := rows.Scan(&e.JornadaID, &e.Number, &e.Player, &e.Points); err != nil {
			rows.Close()
			return nil, err
		}
		withHistory[e.JornadaID] = true
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jornadas, err := s.ListJornadas(ctx, season)
	if err != nil {
		return nil, err
	}
	for _, j := range jornadas {
		if withHistory[j.ID] {
			continue
		}
		ms, err := s.matches(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		outcomes := make([]scoring.Outcome, 0, len(ms))
		for _, m := range ms {
			outcomes = append(outcomes, scoring.Outcome{Order: m.Order, Sign: m.Result1X2, Home: m.ResultHome, Away: m.ResultAway})
		}
		if !scoring.Decided(outcomes) {
			continue
		}
		picks, err := s.Predictions(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		for _, pp := range picks {
			pts, _ := scoring.Jornada(outcomes, pp.Picks)
			out = append(out, JornadaPoints{JornadaID: j.ID, Number: j.Number, Player: pp.Player, Points: pts, Source: SourcePredictions})
		}
	}

	sort.SliceStable(out, func(i, k int) bool {
		if out[i].Number != out[k].Number {
			return out[i].Number < out[k].Number
		}
		return out[i].Player < out[k].Player
	})
	return out, nil
}

func nullSign(v *domain.Sign) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func nullGoals(v *domain.Goals) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
