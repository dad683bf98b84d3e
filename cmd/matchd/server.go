package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/rookline/livematch/internal/heuristic"
	"github.com/rookline/livematch/internal/match"
	"github.com/rookline/livematch/internal/obslog"
	"github.com/rookline/livematch/internal/spotlight"
	"github.com/rookline/livematch/pkg/matchdto"
)

type server struct {
	manager    *match.Manager
	selector   *spotlight.Selector
	adminToken string
	http       *fasthttp.Server
}

func newServer(manager *match.Manager, selector *spotlight.Selector, adminToken string) *server {
	s := &server{manager: manager, selector: selector, adminToken: adminToken}
	s.http = &fasthttp.Server{
		Handler:            s.route,
		Name:               "matchd",
		MaxRequestBodySize: 64 << 10,
	}
	return s
}

func (s *server) ListenAndServe(addr string) error {
	return s.http.ListenAndServe(addr)
}

func (s *server) Shutdown() error {
	return s.http.Shutdown()
}

func (s *server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/spotlight" && method == fasthttp.MethodGet:
		s.handleSpotlight(ctx)
	case path == "/matches" && method == fasthttp.MethodPost:
		s.handleCreate(ctx)
	case strings.HasPrefix(path, "/admin/matches/") && method == fasthttp.MethodPost:
		s.handleForceEnd(ctx, strings.TrimSuffix(strings.TrimPrefix(path, "/admin/matches/"), "/force-end"))
	case strings.HasPrefix(path, "/matches/"):
		s.routeMatch(ctx, strings.TrimPrefix(path, "/matches/"), method)
	default:
		writeError(ctx, fasthttp.StatusNotFound, matchdto.CodeNotFound, "unknown route")
	}
}

func (s *server) routeMatch(ctx *fasthttp.RequestCtx, rest, method string) {
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(ctx, fasthttp.StatusNotFound, matchdto.CodeNotFound, "missing match id")
		return
	}

	switch {
	case action == "" && method == fasthttp.MethodGet:
		s.handleRead(ctx, id)
	case action == "move" && method == fasthttp.MethodPost:
		s.handleMove(ctx, id)
	case action == "draw/offer" && method == fasthttp.MethodPost:
		s.handleDraw(ctx, id, s.manager.OfferDraw)
	case action == "draw/accept" && method == fasthttp.MethodPost:
		s.handleDraw(ctx, id, s.manager.AcceptDraw)
	case action == "draw/decline" && method == fasthttp.MethodPost:
		s.handleDraw(ctx, id, s.manager.DeclineDraw)
	case action == "resign" && method == fasthttp.MethodPost:
		s.handleResign(ctx, id)
	default:
		writeError(ctx, fasthttp.StatusNotFound, matchdto.CodeNotFound, "unknown route")
	}
}

func (s *server) handleCreate(ctx *fasthttp.RequestCtx) {
	var req matchdto.CreateMatchRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, matchdto.CodeIllegalMove, "malformed body")
		return
	}

	m, err := s.manager.CreateMatch(ctx, match.CreateParams{
		White:       seatSpec(req.White),
		Black:       seatSpec(req.Black),
		BaseMs:      req.BaseMs,
		IncrementMs: req.IncrementMs,
	})
	if err != nil {
		writeMatchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, matchdto.CreateMatchResponse{
		State:           matchdto.FromMatch(m),
		WhiteCapability: m.WhiteSeat.Capability,
		BlackCapability: m.BlackSeat.Capability,
	})
}

func (s *server) handleRead(ctx *fasthttp.RequestCtx, id string) {
	capability := string(ctx.QueryArgs().Peek("capability"))
	v, err := s.manager.Read(ctx, id, capability)
	if err != nil {
		writeMatchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.FromView(v))
}

func (s *server) handleMove(ctx *fasthttp.RequestCtx, id string) {
	var req matchdto.SubmitMoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, matchdto.CodeIllegalMove, "malformed body")
		return
	}
	m, err := s.manager.SubmitMove(ctx, id, req.Capability, req.From, req.To, req.Promotion)
	if err != nil {
		writeMatchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.FromMatch(m))
}

func (s *server) handleDraw(ctx *fasthttp.RequestCtx, id string, op func(ctx context.Context, id, capability string) (*match.Match, error)) {
	var req matchdto.DrawRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, matchdto.CodeIllegalMove, "malformed body")
		return
	}
	m, err := op(ctx, id, req.Capability)
	if err != nil {
		writeMatchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.FromMatch(m))
}

func (s *server) handleResign(ctx *fasthttp.RequestCtx, id string) {
	var req matchdto.ResignRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, matchdto.CodeIllegalMove, "malformed body")
		return
	}
	m, err := s.manager.Resign(ctx, id, req.Capability)
	if err != nil {
		writeMatchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.FromMatch(m))
}

func (s *server) handleForceEnd(ctx *fasthttp.RequestCtx, id string) {
	if s.adminToken == "" || string(ctx.Request.Header.Peek("X-Admin-Token")) != s.adminToken {
		writeError(ctx, fasthttp.StatusForbidden, matchdto.CodeUnauthorized, "admin token required")
		return
	}
	var req matchdto.ForceEndRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, matchdto.CodeIllegalMove, "malformed body")
		return
	}
	m, err := s.manager.ForceEnd(ctx, id, match.Status(req.Status), req.Result)
	if err != nil {
		writeMatchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, matchdto.FromMatch(m))
}

func (s *server) handleSpotlight(ctx *fasthttp.RequestCtx) {
	entries, enabled := s.selector.SelectForDisplay(ctx)
	resp := matchdto.SpotlightResponse{Enabled: enabled}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, matchdto.SpotlightEntry{
			ID:        e.ID,
			Title:     e.Title,
			Kind:      e.Kind,
			StartedAt: e.StartedAt,
			UpdatedAt: e.UpdatedAt,
			Link:      e.Link,
		})
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func seatSpec(s matchdto.CreateSeat) match.SeatSpec {
	return match.SeatSpec{Automated: s.Automated, Level: s.Level, Style: heuristic.ParseStyle(s.Style)}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		obslog.L().Error("response marshal failed", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, matchdto.ErrorBody{Code: code, Message: message})
}

func writeMatchError(ctx *fasthttp.RequestCtx, err error) {
	code := matchdto.CodeForError(err)
	status := fasthttp.StatusInternalServerError
	switch code {
	case matchdto.CodeNotFound:
		status = fasthttp.StatusNotFound
	case matchdto.CodeUnauthorized:
		status = fasthttp.StatusForbidden
	case matchdto.CodeInvalidTurn, matchdto.CodeGameOver, matchdto.CodeIllegalMove:
		status = fasthttp.StatusConflict
	case matchdto.CodeConflict:
		status = fasthttp.StatusConflict
	}
	if code == matchdto.CodeInternal {
		obslog.L().Error("request failed", zap.Error(err))
	}
	writeError(ctx, status, code, err.Error())
}
