package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/infra/cache"
	"github.com/xavivs/la-quiniela/internal/provider"
	"github.com/xavivs/la-quiniela/internal/provider/web"
	"github.com/xavivs/la-quiniela/internal/store"
)

var teams = [][2]string{
	{"Alaves", "Betis"}, {"Celta", "Elche"}, {"Espanyol", "Girona"}, {"Levante", "Osasuna"},
	{"Sevilla", "Valencia"}, {"Villarreal", "Oviedo"}, {"Athletic", "Barcelona"}, {"Almeria", "Granada"},
	{"Cadiz", "Leganes"}, {"Malaga", "Huesca"}, {"Zaragoza", "Eibar"}, {"Burgos", "Cordoba"},
	{"Albacete", "Castellon"}, {"Mirandes", "Ceuta"}, {"Getafe", "Mallorca"},
}

func teamsPage() string {
	items := make([]string, 0, len(teams))
	for _, p := range teams {
		items = append(items, fmt.Sprintf(`{"local":%q,"visitante":%q}`, p[0], p[1]))
	}
	return `<html><body><script type="application/json">{"partidos":[` + strings.Join(items, ",") + `]}</script></body></html>`
}

func resultsPage(number int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h2>JORNADA %d</h2><ul>", number)
	for _, s := range strings.Fields("1 X 2 1 1 X 2 2 1 X 1 1 2 X") {
		b.WriteString(`<li class="resultado">` + s + "</li>")
	}
	b.WriteString("</ul><div>Pleno al 15: 2 - M</div></body></html>")
	return b.String()
}

type site struct {
	hits  atomic.Int32
	teams string
	res   string
	code  int
}

func (s *site) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/partidos", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.code != 0 {
			w.WriteHeader(s.code)
			return
		}
		_, _ = w.Write([]byte(s.teams))
	})
	mux.HandleFunc("/resultados", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		_, _ = w.Write([]byte(s.res))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	runner *Runner
	store  *store.Store
	eff    config.EffectiveConfig
}

func newFixture(t *testing.T, srv *httptest.Server, offline bool) fixture {
	t.Helper()
	dir := t.TempDir()

	eff := config.EffectiveConfig{
		Season:     "2025-26",
		Players:    []string{"Xavi", "Laura"},
		Sources:    []config.Source{{Name: "loterias", URL: srv.URL + "/partidos"}},
		ResultsURL: srv.URL + "/resultados",
		Providers:  []string{provider.NameWeb},
		Offline:    offline,
	}

	st, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(dir, "q.db")}, nil)
	if err != nil {
		t.Fatalf("打开数据库失败：%v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("迁移失败：%v", err)
	}

	reg, err := provider.NewRegistry(web.New(srv.Client()))
	if err != nil {
		t.Fatalf("NewRegistry：%v", err)
	}
	fs := cache.NewFileStore(filepath.Join(dir, "cache"), offline)
	r := New(eff, Deps{Registry: reg, Cache: fs, Store: st})
	return fixture{runner: r, store: st, eff: eff}
}

func TestFetchTeams_FromEmbeddedDataThenCache(t *testing.T) {
	s := &site{teams: teamsPage()}
	f := newFixture(t, s.server(t), false)

	rep := f.runner.FetchTeams(context.Background(), "")
	if rep.Status != domain.StatusOK || rep.Count != domain.SlotCount {
		t.Fatalf("期望 ok/15，实际 status=%q count=%d err=%s", rep.Status, rep.Count, rep.ErrorMsg)
	}
	if !rep.ViaData || rep.ProviderUsed != provider.NameWeb {
		t.Fatalf("期望 web + via_data，实际 provider=%q via=%v", rep.ProviderUsed, rep.ViaData)
	}
	if rep.Matches[14] != (domain.MatchPair{HomeTeam: "Getafe", AwayTeam: "Mallorca"}) {
		t.Fatalf("第 15 场不符合预期：%+v", rep.Matches[14])
	}
	if rep.Message != "Se encontraron 15 partidos (desde datos de la página)." {
		t.Fatalf("提示文案不正确：%q", rep.Message)
	}

	again := f.runner.FetchTeams(context.Background(), "loterias")
	if again.ProviderUsed != cacheAttempt {
		t.Fatalf("期望第二次命中缓存，实际 provider=%q", again.ProviderUsed)
	}
	if got := s.hits.Load(); got != 1 {
		t.Fatalf("期望只请求 1 次，实际 %d", got)
	}
}

func TestFetchTeams_JSOnlyPageIsEmpty(t *testing.T) {
	s := &site{teams: `<html><body><div id="app"></div><script src="/app.js"></script></body></html>`}
	f := newFixture(t, s.server(t), false)

	rep := f.runner.FetchTeams(context.Background(), "")
	if rep.Status != domain.StatusEmpty || rep.ErrorCode != domain.ErrCodeNoMatches {
		t.Fatalf("期望 empty/no_matches，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if len(rep.Attempts) != 1 || rep.Attempts[0].Stage != "parse" {
		t.Fatalf("attempts 不符合预期：%+v", rep.Attempts)
	}
	if !strings.Contains(rep.Message, "JavaScript") {
		t.Fatalf("提示文案应提示 JS 加载：%q", rep.Message)
	}
}

func TestFetchTeams_HTTPErrorFails(t *testing.T) {
	s := &site{code: http.StatusNotFound}
	f := newFixture(t, s.server(t), false)

	rep := f.runner.FetchTeams(context.Background(), "")
	if rep.Status != domain.StatusFailed || rep.ErrorCode != domain.ErrCodeFetchFailed {
		t.Fatalf("期望 failed/fetch_failed，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if !strings.Contains(rep.ErrorMsg, "404") {
		t.Fatalf("错误信息应包含状态码：%q", rep.ErrorMsg)
	}
	if len(rep.Matches) != domain.SlotCount {
		t.Fatalf("失败报告也应补齐槽位")
	}
}

func TestFetchTeams_UnknownSource(t *testing.T) {
	s := &site{teams: teamsPage()}
	f := newFixture(t, s.server(t), false)

	rep := f.runner.FetchTeams(context.Background(), "nope")
	if rep.ErrorCode != domain.ErrCodeInputFailed {
		t.Fatalf("期望 input_failed，实际 %q", rep.ErrorCode)
	}
	if s.hits.Load() != 0 {
		t.Fatalf("未知来源不应发请求")
	}
}

func TestFetchTeams_OfflineWithoutCache(t *testing.T) {
	s := &site{teams: teamsPage()}
	f := newFixture(t, s.server(t), true)

	rep := f.runner.FetchTeams(context.Background(), "")
	if rep.Status != domain.StatusFailed || !strings.Contains(rep.ErrorMsg, "离线") {
		t.Fatalf("期望离线失败，实际 %q: %q", rep.Status, rep.ErrorMsg)
	}
	if s.hits.Load() != 0 {
		t.Fatalf("离线模式不应发请求")
	}
}

func TestFetchResults(t *testing.T) {
	s := &site{res: resultsPage(32)}
	f := newFixture(t, s.server(t), false)

	rep := f.runner.FetchResults(context.Background())
	if rep.Status != domain.StatusOK || rep.Message != "Datos extraídos." {
		t.Fatalf("期望 ok，实际 %q: %q", rep.Status, rep.Message)
	}
	if len(rep.Jornadas) != 1 || rep.Jornadas[0].Number != 32 || rep.Jornadas[0].Count() != 15 {
		t.Fatalf("结果不符合预期：%+v", rep.Jornadas)
	}
}

func TestApplyLatestResults(t *testing.T) {
	s := &site{res: resultsPage(32)}
	f := newFixture(t, s.server(t), false)
	ctx := context.Background()

	pairs := make([]domain.MatchPair, 0, len(teams))
	for _, p := range teams {
		pairs = append(pairs, domain.MatchPair{HomeTeam: p[0], AwayTeam: p[1]})
	}
	if _, err := f.runner.CreateJornada(ctx, 31, "", pairs); err != nil {
		t.Fatalf("CreateJornada：%v", err)
	}
	j, err := f.runner.CreateJornada(ctx, 32, "", pairs)
	if err != nil {
		t.Fatalf("CreateJornada：%v", err)
	}

	rep := f.runner.ApplyLatestResults(ctx)
	if rep.Status != domain.StatusOK || !rep.Applied || rep.Updated != 15 || rep.JornadaID != j.ID {
		t.Fatalf("应用结果不符合预期：%+v", rep)
	}
	want := "Resultados actualizados: 15 partidos. Si la web no devolvió datos completos, completa el resto manualmente."
	if rep.Message != want {
		t.Fatalf("提示文案不正确：%q", rep.Message)
	}

	got, err := f.store.GetJornada(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJornada：%v", err)
	}
	if got.Matches[0].Result1X2 == nil || *got.Matches[0].Result1X2 != domain.SignHome {
		t.Fatalf("第 1 场结果未写入：%+v", got.Matches[0])
	}
	if got.Matches[14].ResultAway == nil || *got.Matches[14].ResultAway != "M" {
		t.Fatalf("Pleno 结果未写入：%+v", got.Matches[14])
	}
}

func TestApplyLatestResults_NoJornada(t *testing.T) {
	s := &site{res: resultsPage(32)}
	f := newFixture(t, s.server(t), false)

	rep := f.runner.ApplyLatestResults(context.Background())
	if rep.Status != domain.StatusFailed || rep.ErrorCode != domain.ErrCodeNoJornada {
		t.Fatalf("期望 no_jornada，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if rep.Message != "No hay ninguna jornada. Crea una primero." {
		t.Fatalf("提示文案不正确：%q", rep.Message)
	}
}

func TestParseReader_OriginDetection(t *testing.T) {
	r := New(config.EffectiveConfig{}, Deps{})

	var b strings.Builder
	for i, p := range teams {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p[0], p[1])
	}
	rep := r.ParseReader(context.Background(), strings.NewReader(b.String()), "slip.txt")
	if rep.Origin != domain.OriginOCR || rep.Count != domain.SlotCount {
		t.Fatalf("期望 OCR 15 场，实际 origin=%q count=%d", rep.Origin, rep.Count)
	}
	if rep.Message != "OCR: 15 partidos detectados. Revisa la tabla." {
		t.Fatalf("提示文案不正确：%q", rep.Message)
	}

	html := r.ParseReader(context.Background(), strings.NewReader(teamsPage()), "-")
	if html.Origin != domain.OriginHTML || !html.ViaData {
		t.Fatalf("期望按内容识别为 HTML，实际 origin=%q via=%v", html.Origin, html.ViaData)
	}

	pdf := r.ParseReader(context.Background(), strings.NewReader("%PDF-1.4 garbage"), "-")
	if pdf.Origin != domain.OriginPDF || pdf.ErrorCode != domain.ErrCodeInputFailed {
		t.Fatalf("期望 PDF 输入失败，实际 origin=%q code=%q", pdf.Origin, pdf.ErrorCode)
	}
}

func TestParseFile_Missing(t *testing.T) {
	r := New(config.EffectiveConfig{}, Deps{})
	rep := r.ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	if rep.Status != domain.StatusFailed || rep.ErrorCode != domain.ErrCodeInputFailed || rep.Origin != domain.OriginPDF {
		t.Fatalf("期望 input_failed，实际 %+v", rep)
	}
}

func TestParseSlip_EmptyText(t *testing.T) {
	r := New(config.EffectiveConfig{}, Deps{})
	rep := r.ParseSlip(context.Background(), domain.RawText{Text: "   "}, "paste")
	if rep.Status != domain.StatusEmpty || rep.Count != 0 || len(rep.Matches) != domain.SlotCount {
		t.Fatalf("空文本应得到 empty 报告：%+v", rep)
	}
}

func TestImportHistoryAndRanking(t *testing.T) {
	s := &site{}
	f := newFixture(t, s.server(t), false)
	ctx := context.Background()

	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	rows := [][]any{
		{"Nombre", "Xavi", "Laura"},
		{"Jornada 1", 10, 7},
		{"Jornada 2", 5, "-"},
	}
	for ri, row := range rows {
		for ci, v := range row {
			cell, _ := excelize.CoordinatesToCellName(ci+1, ri+1)
			if err := x.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("SetCellValue：%v", err)
			}
		}
	}
	buf, err := x.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer：%v", err)
	}

	rep := f.runner.ImportHistory(ctx, buf, "historial.xlsx")
	if rep.Status != domain.StatusOK || rep.PointsInserted != 4 || len(rep.JornadasCreated) != 2 {
		t.Fatalf("导入结果不符合预期：%+v", rep)
	}

	rank, err := f.runner.Ranking(ctx, "")
	if err != nil {
		t.Fatalf("Ranking：%v", err)
	}
	if len(rank) != 2 || rank[0].Player != "Xavi" || rank[0].Points != 15 || rank[1].Points != 7 {
		t.Fatalf("排名不符合预期：%+v", rank)
	}
}

func TestNoStore(t *testing.T) {
	r := New(config.EffectiveConfig{}, Deps{})
	if _, err := r.Ranking(context.Background(), ""); !errors.Is(err, ErrNoStore) {
		t.Fatalf("期望 ErrNoStore，实际 %v", err)
	}
	rep := r.ImportHistory(context.Background(), strings.NewReader(""), "x.xlsx")
	if rep.ErrorCode != domain.ErrCodeStoreFailed {
		t.Fatalf("期望 store_failed，实际 %q", rep.ErrorCode)
	}
}

type recordObserver struct {
	mu       sync.Mutex
	starts   []string
	phases   []string
	attempts []domain.ProviderAttempt
}

func (o *recordObserver) OnStart(op string, _ config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, op)
}

func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnAttempt(a domain.ProviderAttempt, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, a)
}

func TestObserver_ReceivesEvents(t *testing.T) {
	s := &site{teams: teamsPage()}
	f := newFixture(t, s.server(t), false)
	obs := &recordObserver{}

	rep := f.runner.WithObserver(obs).FetchTeams(context.Background(), "")
	if rep.Status != domain.StatusOK {
		t.Fatalf("期望 ok，实际 %q", rep.Status)
	}
	if len(obs.starts) != 1 || obs.starts[0] != "teams" {
		t.Fatalf("OnStart 不符合预期：%v", obs.starts)
	}
	if len(obs.phases) != 1 || obs.phases[0] != "fetch" {
		t.Fatalf("阶段事件不符合预期：%v", obs.phases)
	}
	if len(obs.attempts) != 1 || obs.attempts[0].Stage != "ok" {
		t.Fatalf("attempt 事件不符合预期：%+v", obs.attempts)
	}
}

func TestBuild_Defaults(t *testing.T) {
	eff, err := config.LoadEffective(t.TempDir(), config.CLIArgs{})
	if err != nil {
		t.Fatalf("LoadEffective：%v", err)
	}
	r, closeFn, err := Build(context.Background(), eff, nil, BuildOptions{WithStore: true})
	if err != nil {
		t.Fatalf("Build：%v", err)
	}
	defer func() { _ = closeFn() }()
	if _, err := r.ListJornadas(context.Background(), ""); err != nil {
		t.Fatalf("ListJornadas：%v", err)
	}
}

func TestBuild_BadNoiseTables(t *testing.T) {
	eff, err := config.LoadEffective(t.TempDir(), config.CLIArgs{})
	if err != nil {
		t.Fatalf("LoadEffective：%v", err)
	}
	eff.NoiseTables = filepath.Join(t.TempDir(), "missing.json")
	if _, _, err := Build(context.Background(), eff, nil, BuildOptions{}); config.Code(err) != config.ErrCodeInvalid {
		t.Fatalf("期望 config_invalid，实际 %v", err)
	}
}
