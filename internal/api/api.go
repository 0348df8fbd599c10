// Package api 暴露与前端约定的 HTTP 接口（JSON）。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/xavivs/la-quiniela/internal/app/run"
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/scoring"
	"github.com/xavivs/la-quiniela/internal/store"
)

const (
	maxJSONBytes   = 4 << 20
	maxUploadBytes = 16 << 20
)

// Handler 把 HTTP 请求翻译为 run.Runner 的操作。
type Handler struct {
	runner *run.Runner
	log    *slog.Logger
}

func NewHandler(r *run.Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: r, log: logger}
}

// Routes 配置全部路由。
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/slip/parse", h.handleParseSlip).Methods(http.MethodPost)

	// 全部注册在根路由上：子路由上的方法不匹配会落到 404 而不是 405。
	const q = "/api/quiniela"
	r.HandleFunc(q+"/fetch-teams-web", h.handleFetchTeams).Methods(http.MethodGet)
	r.HandleFunc(q+"/fetch-results-web", h.handleFetchResults).Methods(http.MethodGet)
	r.HandleFunc(q+"/fetch-results-web", h.handleApplyResults).Methods(http.MethodPost)
	r.HandleFunc(q+"/jornadas", h.handleListJornadas).Methods(http.MethodGet)
	r.HandleFunc(q+"/jornadas", h.handleCreateJornada).Methods(http.MethodPost)
	r.HandleFunc(q+"/jornadas/{id}", h.handleGetJornada).Methods(http.MethodGet)
	r.HandleFunc(q+"/jornadas/{id}/predictions", h.handleListPredictions).Methods(http.MethodGet)
	r.HandleFunc(q+"/jornadas/{id}/predictions", h.handleSavePredictions).Methods(http.MethodPost)
	r.HandleFunc(q+"/jornadas/{id}/prizes", h.handleAddPrize).Methods(http.MethodPost)
	r.HandleFunc(q+"/points-history", h.handlePointsHistory).Methods(http.MethodGet)
	r.HandleFunc(q+"/ranking", h.handleRanking).Methods(http.MethodGet)
	r.HandleFunc(q+"/upload-points-history", h.handleUploadHistory).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Ruta no encontrada.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Método no permitido.")
	})
	return r
}

// NewServer 返回带超时的 http.Server（浏览器渲染可能较慢，写超时放宽）。
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

// Serve 监听直到 ctx 结束，然后优雅关闭。
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type parseRequest struct {
	Text   string        `json:"text"`
	Origin domain.Origin `json:"origin"`
}

// handleParseSlip 接受 JSON {"text","origin"}，或 multipart 上传的文件（字段 "file"）。
func (h *Handler) handleParseSlip(w http.ResponseWriter, r *http.Request) {
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Falta el archivo (campo \"file\").")
			return
		}
		defer f.Close()
		rep := h.runner.ParseReader(r.Context(), f, hdr.Filename)
		writeJSON(w, statusFor(rep.Status, rep.ErrorCode), rep)
		return
	}

	var req parseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Origin {
	case "", domain.OriginOCR, domain.OriginHTML, domain.OriginPDF:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Origen no válido: %q.", req.Origin))
		return
	}
	rep := h.runner.ParseSlip(r.Context(), domain.RawText{Text: req.Text, Origin: req.Origin}, "api")
	writeJSON(w, statusFor(rep.Status, rep.ErrorCode), rep)
}

func (h *Handler) handleFetchTeams(w http.ResponseWriter, r *http.Request) {
	rep := h.runner.FetchTeams(r.Context(), r.URL.Query().Get("source"))
	writeJSON(w, statusFor(rep.Status, rep.ErrorCode), rep)
}

func (h *Handler) handleFetchResults(w http.ResponseWriter, r *http.Request) {
	rep := h.runner.FetchResults(r.Context())
	writeJSON(w, statusFor(rep.Status, rep.ErrorCode), rep)
}

func (h *Handler) handleApplyResults(w http.ResponseWriter, r *http.Request) {
	rep := h.runner.ApplyLatestResults(r.Context())
	writeJSON(w, statusFor(rep.Status, rep.ErrorCode), rep)
}

func (h *Handler) handleListJornadas(w http.ResponseWriter, r *http.Request) {
	list, err := h.runner.ListJornadas(r.Context(), r.URL.Query().Get("season"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jornadas": list})
}

func (h *Handler) handleGetJornada(w http.ResponseWriter, r *http.Request) {
	j, err := h.runner.GetJornada(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type createJornadaRequest struct {
	Number  int                `json:"number"`
	Season  string             `json:"season"`
	Matches []domain.MatchPair `json:"matches"`
}

func (h *Handler) handleCreateJornada(w http.ResponseWriter, r *http.Request) {
	var req createJornadaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	j, err := h.runner.CreateJornada(r.Context(), req.Number, req.Season, req.Matches)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	rank, err := h.runner.Ranking(r.Context(), season)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if season == "" {
		season = h.runner.Config().Season
	}
	writeJSON(w, http.StatusOK, map[string]any{"season": season, "ranking": rank})
}

type savePredictionsRequest struct {
	Player string         `json:"player"`
	Picks  []scoring.Pick `json:"picks"`
}

func (h *Handler) handleSavePredictions(w http.ResponseWriter, r *http.Request) {
	var req savePredictionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.runner.SavePredictions(r.Context(), mux.Vars(r)["id"], req.Player, req.Picks)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": strings.TrimSpace(req.Player), "saved": n})
}

func (h *Handler) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	list, err := h.runner.Predictions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": list})
}

type addPrizeRequest struct {
	Player string  `json:"player"`
	Amount float64 `json:"amount"`
	Notes  string  `json:"notes"`
}

func (h *Handler) handleAddPrize(w http.ResponseWriter, r *http.Request) {
	var req addPrizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.runner.AddPrize(r.Context(), mux.Vars(r)["id"], req.Player, req.Amount, req.Notes)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handlePointsHistory(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	points, err := h.runner.PointsHistory(r.Context(), season)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if season == "" {
		season = h.runner.Config().Season
	}
	writeJSON(w, http.StatusOK, map[string]any{"season": season, "points": points})
}

func (h *Handler) handleUploadHistory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No se ha enviado ningún archivo.")
		return
	}
	defer f.Close()
	if !strings.HasSuffix(strings.ToLower(hdr.Filename), ".xlsx") {
		writeError(w, http.StatusBadRequest, "El archivo debe ser un Excel (.xlsx).")
		return
	}
	rep := h.runner.ImportHistory(r.Context(), f, hdr.Filename)
	writeJSON(w, statusFor(rep.Status, rep.ErrorCode), rep)
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	var (
		dup  *store.DuplicateError
		pick *scoring.PickError
	)
	switch {
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &pick):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidNumber), errors.Is(err, store.ErrNoJornada), errors.Is(err, store.ErrIncomplete),
		errors.Is(err, store.ErrNoPlayer), errors.Is(err, store.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, run.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno de base de datos.")
	}
}

// statusFor 把报告的 status/error_code 映射为 HTTP 状态码。
// empty/partial 仍是 200：前端根据 count 与 message 提示用户手动补全。
func statusFor(status, code string) int {
	if status != domain.StatusFailed {
		return http.StatusOK
	}
	switch code {
	case domain.ErrCodeInputFailed, domain.ErrCodeNoJornada, domain.ErrCodeNoMatches:
		return http.StatusBadRequest
	case domain.ErrCodeFetchFailed, domain.ErrCodeParseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "JSON no válido.")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"dur", time.Since(started).Round(time.Millisecond),
		)
	})
}
