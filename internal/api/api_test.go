package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/xavivs/la-quiniela/internal/app/run"
	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/provider"
	"github.com/xavivs/la-quiniela/internal/provider/web"
	"github.com/xavivs/la-quiniela/internal/store"
)

func slipText() string {
	names := []string{
		"Alaves", "Betis", "Celta", "Elche", "Espanyol", "Girona", "Levante", "Osasuna",
		"Sevilla", "Valencia", "Villarreal", "Oviedo", "Athletic", "Barcelona", "Almeria", "Granada",
		"Cadiz", "Leganes", "Malaga", "Huesca", "Zaragoza", "Eibar", "Burgos", "Cordoba",
		"Albacete", "Castellon", "Mirandes", "Ceuta", "Getafe", "Mallorca",
	}
	var b strings.Builder
	for i := 0; i < len(names); i += 2 {
		fmt.Fprintf(&b, "%d. %s - %s\n", i/2+1, names[i], names[i+1])
	}
	return b.String()
}

func teamsPage() string {
	var items []string
	for _, line := range strings.Split(strings.TrimSpace(slipText()), "\n") {
		_, pair, _ := strings.Cut(line, ". ")
		home, away, _ := strings.Cut(pair, " - ")
		items = append(items, fmt.Sprintf(`{"local":%q,"visitante":%q}`, home, away))
	}
	return `<html><body><script type="application/json">{"partidos":[` + strings.Join(items, ",") + `]}</script></body></html>`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resultados":
			var b strings.Builder
			b.WriteString("<h2>JORNADA 3</h2>")
			for _, s := range strings.Fields(resultSigns) {
				b.WriteString(`<span class="resultado">` + s + "</span>")
			}
			b.WriteString("<p>Pleno al 15: 1 - 0</p>")
			_, _ = w.Write([]byte(b.String()))
		default:
			_, _ = w.Write([]byte(teamsPage()))
		}
	}))
	t.Cleanup(site.Close)

	st, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "q.db")}, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	reg, err := provider.NewRegistry(web.New(site.Client()))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	eff := config.EffectiveConfig{
		Season:     "2024-25",
		Players:    []string{"Xavi", "Laura"},
		Sources:    []config.Source{{Name: "loterias", URL: site.URL + "/partidos"}},
		ResultsURL: site.URL + "/resultados",
		Providers:  []string{provider.NameWeb},
	}
	r := run.New(eff, run.Deps{Registry: reg, Store: st})

	srv := httptest.NewServer(NewHandler(r, nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

const resultSigns = "1 X 2 1 1 X 2 2 1 X 1 1 2 X"

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("解码响应失败：%v", err)
		}
	}
	return resp.StatusCode
}

func upload(t *testing.T, url, filename string, data []byte, out any) int {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("写入表单失败：%v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("关闭表单失败：%v", err)
	}

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("解码响应失败：%v", err)
		}
	}
	return resp.StatusCode
}

func expectStatus(t *testing.T, want, got int) {
	t.Helper()
	if got != want {
		t.Fatalf("期望 HTTP %d，实际 %d", want, got)
	}
}

func TestParseSlip_JSON(t *testing.T) {
	srv := newTestServer(t)

	var rep domain.ParseReport
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/slip/parse", parseRequest{Text: slipText()}, &rep))
	if rep.Status != domain.StatusOK || len(rep.Matches) != domain.SlotCount {
		t.Fatalf("期望 ok 且 15 场，实际 status=%s matches=%d", rep.Status, len(rep.Matches))
	}
	if want := (domain.MatchPair{HomeTeam: "Getafe", AwayTeam: "Mallorca"}); rep.Matches[14] != want {
		t.Fatalf("期望第 15 场 %v，实际 %v", want, rep.Matches[14])
	}
}

func TestParseSlip_Upload(t *testing.T) {
	srv := newTestServer(t)

	var rep domain.ParseReport
	expectStatus(t, http.StatusOK, upload(t, srv.URL+"/api/slip/parse", "boleto.txt", []byte(slipText()), &rep))
	if rep.Origin != domain.OriginOCR || rep.Count != domain.SlotCount {
		t.Fatalf("期望 ocr 且 count=15，实际 origin=%s count=%d", rep.Origin, rep.Count)
	}
}

func TestParseSlip_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	var e map[string]string
	expectStatus(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/slip/parse", map[string]any{"texto": "x"}, &e))
	expectStatus(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/slip/parse", parseRequest{Origin: "fax"}, &e))
	if !strings.Contains(e["error"], "fax") {
		t.Fatalf("期望错误信息提到 fax，实际 %q", e["error"])
	}
}

func TestFetchTeamsWeb(t *testing.T) {
	srv := newTestServer(t)

	var rep domain.ParseReport
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/quiniela/fetch-teams-web", nil, &rep))
	if rep.Origin != domain.OriginHTML || rep.Count != domain.SlotCount || !rep.ViaData {
		t.Fatalf("期望 html/15/via_data，实际 %s/%d/%v", rep.Origin, rep.Count, rep.ViaData)
	}
	if rep.ProviderUsed != provider.NameWeb {
		t.Fatalf("期望 provider=%s，实际 %s", provider.NameWeb, rep.ProviderUsed)
	}
}

func TestFetchResultsWeb_GetAndApply(t *testing.T) {
	srv := newTestServer(t)

	var got domain.ResultsReport
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/quiniela/fetch-results-web", nil, &got))
	if got.Message != "Datos extraídos." {
		t.Fatalf("message 不对：%q", got.Message)
	}
	if len(got.Jornadas) != 1 || got.Jornadas[0].Number != 3 {
		t.Fatalf("期望 jornada 3，实际 %+v", got.Jornadas)
	}

	// 没有轮次时应用失败。
	var fail domain.ResultsReport
	expectStatus(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/quiniela/fetch-results-web", nil, &fail))
	if fail.Message != "No hay ninguna jornada. Crea una primero." {
		t.Fatalf("message 不对：%q", fail.Message)
	}

	var j store.Jornada
	expectStatus(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/api/quiniela/jornadas",
		createJornadaRequest{Number: 3, Matches: []domain.MatchPair{{HomeTeam: "Alaves", AwayTeam: "Betis"}}}, &j))
	if len(j.Matches) != domain.SlotCount || j.Matches[14].HomeTeam != store.PlaceholderTeam {
		t.Fatalf("期望补齐到 15 场，实际 %+v", j.Matches)
	}

	var applied domain.ResultsReport
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/quiniela/fetch-results-web", nil, &applied))
	if !applied.Applied || applied.Updated != 15 || applied.JornadaID != j.ID {
		t.Fatalf("期望写入 %s 的 15 场，实际 %+v", j.ID, applied)
	}

	var one store.Jornada
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/quiniela/jornadas/"+j.ID, nil, &one))
	if r := one.Matches[0].Result1X2; r == nil || *r != domain.SignHome {
		t.Fatalf("期望第 1 场为 1，实际 %v", r)
	}
}

func TestJornadas_CreateErrors(t *testing.T) {
	srv := newTestServer(t)

	var e map[string]string
	expectStatus(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/quiniela/jornadas", createJornadaRequest{Number: 0}, &e))
	if e["error"] != "Número de jornada inválido (debe ser 1 o más)." {
		t.Fatalf("错误信息不对：%q", e["error"])
	}

	expectStatus(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/api/quiniela/jornadas", createJornadaRequest{Number: 7}, nil))
	expectStatus(t, http.StatusConflict, doJSON(t, http.MethodPost, srv.URL+"/api/quiniela/jornadas", createJornadaRequest{Number: 7}, &e))
	if !strings.Contains(e["error"], "Ya existe una jornada con número 7") {
		t.Fatalf("错误信息不对：%q", e["error"])
	}

	var list struct {
		Jornadas []store.Jornada `json:"jornadas"`
	}
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/quiniela/jornadas", nil, &list))
	if len(list.Jornadas) != 1 || list.Jornadas[0].Season != "2024-25" {
		t.Fatalf("期望默认赛季的 1 个轮次，实际 %+v", list.Jornadas)
	}

	expectStatus(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/api/quiniela/jornadas/nope", nil, &e))
}

func TestUploadPointsHistoryAndRanking(t *testing.T) {
	srv := newTestServer(t)

	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	for ri, row := range [][]any{{"Nombre", "Xavi", "Laura"}, {"Jornada 1", 4, 9}} {
		for ci, v := range row {
			cell, err := excelize.CoordinatesToCellName(ci+1, ri+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName: %v", err)
			}
			if err := x.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	buf, err := x.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	var e map[string]string
	expectStatus(t, http.StatusBadRequest, upload(t, srv.URL+"/api/quiniela/upload-points-history", "hist.csv", buf.Bytes(), &e))

	var rep domain.HistoryReport
	expectStatus(t, http.StatusOK, upload(t, srv.URL+"/api/quiniela/upload-points-history", "hist.xlsx", buf.Bytes(), &rep))
	if rep.PointsInserted != 2 || !reflect.DeepEqual(rep.JornadasCreated, []int{1}) {
		t.Fatalf("期望写入 2 条并新建 jornada 1，实际 %d %v", rep.PointsInserted, rep.JornadasCreated)
	}

	var rank struct {
		Season  string               `json:"season"`
		Ranking []store.RankingEntry `json:"ranking"`
	}
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/quiniela/ranking", nil, &rank))
	if rank.Season != "2024-25" || len(rank.Ranking) != 2 {
		t.Fatalf("期望 2024-25 的 2 名玩家，实际 %+v", rank)
	}
	if want := (store.RankingEntry{Player: "Laura", Points: 9, Jornadas: 1}); rank.Ranking[0] != want {
		t.Fatalf("期望第一名 %+v，实际 %+v", want, rank.Ranking[0])
	}
}

func TestPredictionsPrizesAndPoints(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/quiniela"

	var j store.Jornada
	expectStatus(t, http.StatusCreated, doJSON(t, http.MethodPost, base+"/jornadas", createJornadaRequest{Number: 3}, &j))
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodPost, base+"/fetch-results-web", nil, nil))

	body := map[string]any{"player": "Xavi", "picks": picksJSON(strings.Fields(resultSigns), "1", "0")}
	var saved map[string]any
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodPost, base+"/jornadas/"+j.ID+"/predictions", body, &saved))
	if saved["saved"] != float64(15) {
		t.Fatalf("期望保存 15 场，实际 %v", saved)
	}

	var e map[string]string
	bad := map[string]any{"player": "Laura", "picks": []map[string]any{{"match_order": 1, "predicted_1x2": "Z"}}}
	expectStatus(t, http.StatusBadRequest, doJSON(t, http.MethodPost, base+"/jornadas/"+j.ID+"/predictions", bad, &e))
	if !strings.Contains(e["error"], "第 1 场") {
		t.Fatalf("期望指出第 1 场，实际 %q", e["error"])
	}
	expectStatus(t, http.StatusNotFound, doJSON(t, http.MethodPost, base+"/jornadas/nope/predictions", body, &e))

	var list struct {
		Predictions []store.PlayerPicks `json:"predictions"`
	}
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, base+"/jornadas/"+j.ID+"/predictions", nil, &list))
	if len(list.Predictions) != 1 || list.Predictions[0].Player != "Xavi" || len(list.Predictions[0].Picks) != 15 {
		t.Fatalf("期望 Xavi 的 15 场预测，实际 %+v", list.Predictions)
	}

	expectStatus(t, http.StatusBadRequest, doJSON(t, http.MethodPost, base+"/jornadas/"+j.ID+"/prizes", addPrizeRequest{Player: "Xavi", Amount: -1}, &e))
	var prize store.Prize
	expectStatus(t, http.StatusCreated, doJSON(t, http.MethodPost, base+"/jornadas/"+j.ID+"/prizes", addPrizeRequest{Player: "Xavi", Amount: 25, Notes: "pleno"}, &prize))
	if prize.Amount != 25 || prize.JornadaID != j.ID {
		t.Fatalf("奖金字段不对：%+v", prize)
	}

	var hist struct {
		Season string                `json:"season"`
		Points []store.JornadaPoints `json:"points"`
	}
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, base+"/points-history", nil, &hist))
	want := []store.JornadaPoints{{JornadaID: j.ID, Number: 3, Player: "Xavi", Points: 15, Source: store.SourcePredictions}}
	if hist.Season != "2024-25" || !reflect.DeepEqual(hist.Points, want) {
		t.Fatalf("期望 %+v，实际 %+v", want, hist)
	}

	var rank struct {
		Ranking []store.RankingEntry `json:"ranking"`
	}
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, base+"/ranking", nil, &rank))
	wantRank := []store.RankingEntry{
		{Player: "Xavi", Points: 15, Jornadas: 1, Prizes: 25},
		{Player: "Laura"},
	}
	if !reflect.DeepEqual(rank.Ranking, wantRank) {
		t.Fatalf("期望 %+v，实际 %+v", wantRank, rank.Ranking)
	}
}

func picksJSON(signs []string, home, away string) []map[string]any {
	out := make([]map[string]any, 0, len(signs)+1)
	for i, s := range signs {
		out = append(out, map[string]any{"match_order": i + 1, "predicted_1x2": s})
	}
	return append(out, map[string]any{"match_order": domain.SlotCount, "predicted_home": home, "predicted_away": away})
}

func TestRoutes_NotFoundAndMethod(t *testing.T) {
	srv := newTestServer(t)

	var e map[string]string
	expectStatus(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/api/nope", nil, &e))
	expectStatus(t, http.StatusMethodNotAllowed, doJSON(t, http.MethodDelete, srv.URL+"/api/quiniela/ranking", nil, nil))
	expectStatus(t, http.StatusMethodNotAllowed, doJSON(t, http.MethodPut, srv.URL+"/api/quiniela/jornadas/x/predictions", nil, nil))
	expectStatus(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, &e))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		status, code string
		want         int
	}{
		{domain.StatusEmpty, domain.ErrCodeNoMatches, http.StatusOK},
		{domain.StatusFailed, domain.ErrCodeFetchFailed, http.StatusBadGateway},
		{domain.StatusFailed, domain.ErrCodeInputFailed, http.StatusBadRequest},
		{domain.StatusFailed, domain.ErrCodeStoreFailed, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.status, c.code); got != c.want {
			t.Fatalf("statusFor(%s,%s)：期望 %d，实际 %d", c.status, c.code, c.want, got)
		}
	}
}
