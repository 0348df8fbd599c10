package run

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/history"
	"github.com/xavivs/la-quiniela/internal/scoring"
	"github.com/xavivs/la-quiniela/internal/store"
)

// CreateJornada 新建轮次；season 为空时使用配置中的赛季。
func (r *Runner) CreateJornada(ctx context.Context, number int, season string, matches []domain.MatchPair) (*store.Jornada, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(season) == "" {
		season = r.eff.Season
	}
	j, err := r.store.CreateJornada(ctx, number, season, matches)
	if err != nil {
		return nil, err
	}
	r.log.Info("jornada created", "number", number, "season", season, "id", j.ID, "filled", domain.CountFilled(matches))
	return j, nil
}

func (r *Runner) ListJornadas(ctx context.Context, season string) ([]store.Jornada, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(season) == "" {
		season = r.eff.Season
	}
	return r.store.ListJornadas(ctx, season)
}

func (r *Runner) GetJornada(ctx context.Context, id string) (*store.Jornada, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.GetJornada(ctx, id)
}

func (r *Runner) Ranking(ctx context.Context, season string) ([]store.RankingEntry, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(season) == "" {
		season = r.eff.Season
	}
	return r.store.Ranking(ctx, season, r.eff.Players)
}

// SavePredictions 保存一名玩家对某轮次的预测。
func (r *Runner) SavePredictions(ctx context.Context, jornadaID, player string, picks []scoring.Pick) (int, error) {
	if r.store == nil {
		return 0, ErrNoStore
	}
	return r.store.SavePredictions(ctx, jornadaID, player, picks)
}

func (r *Runner) Predictions(ctx context.Context, jornadaID string) ([]store.PlayerPicks, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.Predictions(ctx, jornadaID)
}

// PointsHistory 返回某赛季逐轮次的得分；season 为空时使用配置中的赛季。
func (r *Runner) PointsHistory(ctx context.Context, season string) ([]store.JornadaPoints, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(season) == "" {
		season = r.eff.Season
	}
	return r.store.PointsByJornada(ctx, season)
}

func (r *Runner) AddPrize(ctx context.Context, jornadaID, player string, amount float64, notes string) (*store.Prize, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.AddPrize(ctx, jornadaID, player, amount, notes)
}

// ImportHistory 导入历史积分表：缺失的轮次以“历史轮次”创建，积分按 (玩家, 轮次) 覆盖写入。
// 单条写入失败记入 Errors，不中断其余行。
func (r *Runner) ImportHistory(ctx context.Context, in io.Reader, name string) domain.HistoryReport {
	started := r.now()
	r.obs.OnStart("history", r.eff)
	rep := domain.HistoryReport{Source: name, StartedAt: started}

	fail := func(code, msg string) domain.HistoryReport {
		rep.Status = domain.StatusFailed
		rep.ErrorCode = code
		rep.ErrorMsg = msg
		rep.FinishedAt = r.now()
		rep.Finalize()
		r.log.Warn("history import failed", "source", name, "error_code", code, "error", msg)
		return rep
	}

	if r.store == nil {
		return fail(domain.ErrCodeStoreFailed, ErrNoStore.Error())
	}
	sheet, err := history.ParseWorkbook(in, r.eff.Players)
	if err != nil {
		return fail(domain.ErrCodeInputFailed, err.Error())
	}
	rep.Players = sheet.Players
	rep.RowsProcessed = sheet.Rows
	r.obs.OnPhaseDone("sheet", map[string]any{
		"players":  len(sheet.Players),
		"jornadas": len(sheet.Jornadas),
		"entries":  len(sheet.Entries),
	}, r.since(started))

	ids := make(map[int]string, len(sheet.Jornadas))
	for _, n := range sheet.Jornadas {
		if err := ctx.Err(); err != nil {
			return fail(domain.ErrCodeStoreFailed, err.Error())
		}
		id, created, err := r.store.EnsureJornada(ctx, n, r.eff.Season)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("Jornada %d: %v", n, err))
			continue
		}
		ids[n] = id
		if created {
			rep.JornadasCreated = append(rep.JornadasCreated, n)
		}
	}

	storeStarted := r.now()
	for _, e := range sheet.Entries {
		id, ok := ids[e.Jornada]
		if !ok {
			continue
		}
		if err := r.store.UpsertPoints(ctx, e.Player, id, e.Points); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("Jornada %d, %s: %v", e.Jornada, e.Player, err))
			continue
		}
		rep.PointsInserted++
	}
	r.obs.OnPhaseDone("store", map[string]any{
		"points":  rep.PointsInserted,
		"created": len(rep.JornadasCreated),
		"errors":  len(rep.Errors),
	}, r.since(storeStarted))

	rep.FinishedAt = r.now()
	rep.Finalize()
	return rep
}
