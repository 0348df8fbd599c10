package domain

import (
	"fmt"
	"time"
)

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

const (
	ErrCodeInputFailed    = "input_failed"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeParseFailed    = "parse_failed"
	ErrCodeStoreFailed    = "store_failed"
	ErrCodeNoMatches      = "no_matches"
	ErrCodeNoJornada      = "no_jornada"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
)

// StrategyAttempt 记录一次抽取策略的贡献（用于解释结果从哪里来）。
type StrategyAttempt struct {
	Strategy string `json:"strategy"`
	Found    int    `json:"found"`
	Accepted int    `json:"accepted"`
}

// ProviderAttempt 记录一次页面来源尝试（fetch/parse/ok）。
type ProviderAttempt struct {
	Provider  string `json:"provider"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// ParseReport 是 parse / teams 命令与对应 HTTP 接口的稳定输出。
type ParseReport struct {
	Source string `json:"source"`
	Origin Origin `json:"origin"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Message   string `json:"message"`

	Count    int  `json:"count"`
	HasPleno bool `json:"has_pleno"`
	ViaData  bool `json:"via_data"`

	// Matches 恒为 15 个槽位（由 Finalize 补齐）。
	Matches      []MatchPair       `json:"matches"`
	Strategies   []StrategyAttempt `json:"strategies"`
	ProviderUsed string            `json:"provider_used,omitempty"`
	Attempts     []ProviderAttempt `json:"attempts"`
}

// Finalize 统一时间为 UTC，补齐 15 槽位并由槽位推导 count/status/message。
// 已标记为 failed 的报告保留其错误信息。
func (r *ParseReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	r.Matches = PadMatches(r.Matches)
	r.Count = CountFilled(r.Matches)
	r.HasPleno = !r.Matches[SlotCount-1].IsEmpty()
	if r.Strategies == nil {
		r.Strategies = []StrategyAttempt{}
	}
	if r.Attempts == nil {
		r.Attempts = []ProviderAttempt{}
	}

	if r.Status == StatusFailed {
		return
	}
	switch {
	case r.Count == 0:
		r.Status = StatusEmpty
		r.ErrorCode = ErrCodeNoMatches
	case r.Count < SlotCount:
		r.Status = StatusPartial
	default:
		r.Status = StatusOK
	}
	r.Message = StatusMessage(r.Origin, r.Count, r.ViaData)
}

// ResultsReport 是 results 命令（抓取/应用结果）的稳定输出。
type ResultsReport struct {
	Source string `json:"source"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Message   string `json:"message"`

	Jornadas     []JornadaResults  `json:"jornadas"`
	Applied      bool              `json:"applied"`
	JornadaID    string            `json:"jornada_id,omitempty"`
	Updated      int               `json:"updated"`
	ProviderUsed string            `json:"provider_used,omitempty"`
	Attempts     []ProviderAttempt `json:"attempts"`
}

func (r *ResultsReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Jornadas == nil {
		r.Jornadas = []JornadaResults{}
	}
	if r.Attempts == nil {
		r.Attempts = []ProviderAttempt{}
	}
	if r.Status == StatusFailed {
		return
	}
	if len(r.Jornadas) == 0 {
		r.Status = StatusEmpty
		r.ErrorCode = ErrCodeNoMatches
		r.Message = "No se pudieron extraer resultados (la página puede cargar datos por JS)."
		return
	}
	r.Status = StatusOK
	if r.Applied {
		r.Message = fmt.Sprintf("Resultados actualizados: %d partidos. Si la web no devolvió datos completos, completa el resto manualmente.", r.Updated)
		return
	}
	r.Message = "Datos extraídos."
}

// HistoryReport 是历史积分表导入的稳定输出。
type HistoryReport struct {
	Source string `json:"source"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Players         []string `json:"players"`
	RowsProcessed   int      `json:"rows_processed"`
	PointsInserted  int      `json:"points_inserted"`
	JornadasCreated []int    `json:"jornadas_created"`
	Errors          []string `json:"errors"`
}

func (r *HistoryReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Players == nil {
		r.Players = []string{}
	}
	if r.JornadasCreated == nil {
		r.JornadasCreated = []int{}
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Status == StatusFailed {
		return
	}
	switch {
	case r.PointsInserted == 0:
		r.Status = StatusEmpty
	case len(r.Errors) > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusOK
	}
}
