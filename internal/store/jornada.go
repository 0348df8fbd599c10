package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xavivs/la-quiniela/internal/domain"
)

// PlaceholderTeam 填充空槽位，保证每个轮次总是 15 场。
const PlaceholderTeam = "—"

type Match struct {
	ID         string        `json:"id"`
	Order      int           `json:"match_order"`
	HomeTeam   string        `json:"home_team"`
	AwayTeam   string        `json:"away_team"`
	Result1X2  *domain.Sign  `json:"result_1x2"`
	ResultHome *domain.Goals `json:"result_home"`
	ResultAway *domain.Goals `json:"result_away"`
}

type Jornada struct {
	ID         string    `json:"id"`
	Number     int       `json:"number"`
	Season     string    `json:"season"`
	Historical bool      `json:"is_historical"`
	CreatedAt  time.Time `json:"created_at"`
	Matches    []Match   `json:"matches,omitempty"`
}

// CreateJornada 新建一个轮次并写入恰好 15 场比赛（不足补占位，超出截断）。
func (s *Store) CreateJornada(ctx context.Context, number int, season string, matches []domain.MatchPair) (*Jornada, error) {
	if number < 1 {
		return nil, ErrInvalidNumber
	}
	j := &Jornada{
		ID:        uuid.NewString(),
		Number:    number,
		Season:    season,
		CreatedAt: time.Now().UTC(),
	}
	for i, m := range domain.PadMatches(matches) {
		home, away := strings.TrimSpace(m.HomeTeam), strings.TrimSpace(m.AwayTeam)
		if home == "" {
			home = PlaceholderTeam
		}
		if away == "" {
			away = PlaceholderTeam
		}
		j.Matches = append(j.Matches, Match{ID: uuid.NewString(), Order: i + 1, HomeTeam: home, AwayTeam: away})
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM jornadas WHERE number = ? AND season = ?`), number, season).Scan(&one)
		switch {
		case err == nil:
			return &DuplicateError{Number: number, Season: season}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if err := s.insertJornada(ctx, tx, j); err != nil {
			return err
		}
		for _, m := range j.Matches {
			if _, err := tx.ExecContext(ctx,
				s.q(`INSERT INTO matches (id, jornada_id, match_order, home_team, away_team) VALUES (?, ?, ?, ?, ?)`),
				m.ID, j.ID, m.Order, m.HomeTeam, m.AwayTeam); err != nil {
				return fmt.Errorf("写入第 %d 场失败: %w", m.Order, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("jornada created", "id", j.ID, "number", number, "season", season)
	return j, nil
}

func (s *Store) insertJornada(ctx context.Context, tx *sql.Tx, j *Jornada) error {
	hist := 0
	if j.Historical {
		hist = 1
	}
	_, err := tx.ExecContext(ctx,
		s.q(`INSERT INTO jornadas (id, number, season, is_historical, created_at) VALUES (?, ?, ?, ?, ?)`),
		j.ID, j.Number, j.Season, hist, j.CreatedAt.Format(time.RFC3339Nano))
	return err
}

const jornadaCols = `id, number, season, is_historical, created_at`

func scanJornada(row interface{ Scan(...any) error }) (*Jornada, error) {
	var (
		j    Jornada
		hist int
		ts   string
	)
	if err := row.Scan(&j.ID, &j.Number, &j.Season, &hist, &ts); err != nil {
		return nil, err
	}
	j.Historical = hist != 0
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return &j, nil
}

// GetJornada 读取轮次及其比赛（按场次排序）。
func (s *Store) GetJornada(ctx context.Context, id string) (*Jornada, error) {
	j, err := scanJornada(s.db.QueryRowContext(ctx, s.q(`SELECT `+jornadaCols+` FROM jornadas WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if j.Matches, err = s.matches(ctx, j.ID); err != nil {
		return nil, err
	}
	return j, nil
}

// LatestJornada 返回号码最大的轮次（同号取最新创建）。
func (s *Store) LatestJornada(ctx context.Context) (*Jornada, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM jornadas ORDER BY number DESC, created_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJornada
	}
	if err != nil {
		return nil, err
	}
	return s.GetJornada(ctx, id)
}

// ListJornadas 按号码倒序列出轮次（不含比赛）；season 为空时列出全部。
func (s *Store) ListJornadas(ctx context.Context, season string) ([]Jornada, error) {
	query := `SELECT ` + jornadaCols + ` FROM jornadas`
	var args []any
	if season != "" {
		query += ` WHERE season = ?`
		args = append(args, season)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY number DESC, created_at DESC`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Jornada{}
	for rows.Next() {
		j, err := scanJornada(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *Store) matches(ctx context.Context, jornadaID string) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, match_order, home_team, away_team, result_1x2, result_home, result_away
		FROM matches WHERE jornada_id = ? ORDER BY match_order`), jornadaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			m            Match
			sign, gh, ga sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Order, &m.HomeTeam, &m.AwayTeam, &sign, &gh, &ga); err != nil {
			return nil, err
		}
		if v, ok := domain.ParseSign(sign.String); sign.Valid && ok {
			m.Result1X2 = &v
		}
		if v, ok := domain.ParseGoals(gh.String); gh.Valid && ok {
			m.ResultHome = &v
		}
		if v, ok := domain.ParseGoals(ga.String); ga.Valid && ok {
			m.ResultAway = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ApplyResults 把结果写入某轮次：第 1-14 场写 1X2，第 15 场写 Pleno 比分。
// 轮次必须恰好有 15 场；返回实际更新的场数。
func (s *Store) ApplyResults(ctx context.Context, jornadaID string, r domain.JornadaResults) (int, error) {
	ms, err := s.matches(ctx, jornadaID)
	if err != nil {
		return 0, err
	}
	if len(ms) != domain.SlotCount {
		return 0, ErrIncomplete
	}
	updated := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for i, m := range ms {
			var res sql.Result
			var err error
			switch {
			case i < domain.RegularCount && i < len(r.Signs):
				res, err = tx.ExecContext(ctx, s.q(`UPDATE matches SET result_1x2 = ? WHERE id = ?`), string(r.Signs[i]), m.ID)
			case i == domain.RegularCount && r.Pleno != nil:
				res, err = tx.ExecContext(ctx, s.q(`UPDATE matches SET result_home = ?, result_away = ? WHERE id = ?`),
					string(r.Pleno.Home), string(r.Pleno.Away), m.ID)
			default:
				continue
			}
			if err != nil {
				return fmt.Errorf("更新第 %d 场失败: %w", m.Order, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// EnsureJornada 按号码查找轮次（任一赛季，取最早创建者）；不存在时以历史轮次创建。
func (s *Store) EnsureJornada(ctx context.Context, number int, season string) (id string, created bool, err error) {
	err = s.db.QueryRowContext(ctx, s.q(`SELECT id FROM jornadas WHERE number = ? ORDER BY created_at LIMIT 1`), number).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}
	j := &Jornada{ID: uuid.NewString(), Number: number, Season: season, Historical: true, CreatedAt: time.Now().UTC()}
	if err := s.withTx(ctx, func(tx *sql.Tx) error { return s.insertJornada(ctx, tx, j) }); err != nil {
		return "", false, fmt.Errorf("Error al crear jornada %d: %w", number, err)
	}
	return j.ID, true, nil
}

// UpsertPoints 写入（或覆盖）某玩家在某轮次的历史积分。
func (s *Store) UpsertPoints(ctx context.Context, player, jornadaID string, points int) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO points_history (player, jornada_id, points) VALUES (?, ?, ?)
		ON CONFLICT (player, jornada_id) DO UPDATE SET points = excluded.points`),
		player, jornadaID, points)
	return err
}

type RankingEntry struct {
	Player   string  `json:"player"`
	Points   int     `json:"points"`
	Jornadas int     `json:"jornadas"`
	Prizes   float64 `json:"prizes"`
}

// Ranking 汇总某赛季的积分（历史积分优先，其余轮次按预测计分）与奖金。
// players 中没有积分的玩家以 0 分出现。排序：积分降序，同分按名字。
func (s *Store) Ranking(ctx context.Context, season string, players []string) ([]RankingEntry, error) {
	points, err := s.PointsByJornada(ctx, season)
	if err != nil {
		return nil, err
	}
	prizes, err := s.PrizesBySeason(ctx, season)
	if err != nil {
		return nil, err
	}

	byName := map[string]*RankingEntry{}
	entry := func(name string) *RankingEntry {
		e, ok := byName[name]
		if !ok {
			e = &RankingEntry{Player: name}
			byName[name] = e
		}
		return e
	}
	for _, p := range players {
		entry(p)
	}
	for _, p := range points {
		e := entry(p.Player)
		e.Points += p.Points
		e.Jornadas++
	}
	for name, amount := range prizes {
		entry(name).Prizes = amount
	}

	out := make([]RankingEntry, 0, len(byName))
	for _, e := range byName {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Points != out[k].Points {
			return out[i].Points > out[k].Points
		}
		return out[i].Player < out[k].Player
	})
	return out, nil
}
