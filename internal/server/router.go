// Package server exposes the supervisor group over HTTP for the resident
// daemon.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/pasys/internal/history"
	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/supervisor"
)

// Controller is the part of supervisor.Group the API needs.
type Controller interface {
	Names() []string
	StatusAll() []process.Status
	Status(name string) (process.Status, error)
	Do(ctx context.Context, name string, v supervisor.Verb) error
}

// Router provides embeddable HTTP handlers for unit control.
// Endpoints:
//
//	GET  {basePath}/api/units
//	GET  {basePath}/api/units/:name
//	POST {basePath}/api/units/:name/:verb   verb: start|on|load|stop|off|unload
//	GET  {basePath}/api/units/:name/history?limit=N
//	GET  {basePath}/metrics
type Router struct {
	ctl      Controller
	basePath string
	history  history.Reader
	metrics  http.Handler
}

func NewRouter(ctl Controller, basePath string) *Router {
	return &Router{ctl: ctl, basePath: sanitizeBase(basePath)}
}

// WithHistory enables the history endpoint.
func (r *Router) WithHistory(h history.Reader) *Router {
	r.history = h
	return r
}

// WithMetrics mounts h on /metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	api := group.Group("/api/units")
	api.GET("", r.handleList)
	api.GET("/:name", r.handleStatus)
	api.GET("/:name/history", r.handleHistory)
	api.POST("/:name/:verb", r.handleVerb)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer returns an http.Server for h with the daemon's timeouts. Starts
// block on readiness probes, so the write timeout is generous.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type verbResp struct {
	OK     bool           `json:"ok"`
	Verb   string         `json:"verb"`
	Status process.Status `json:"status"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctl.StatusAll())
}

func (r *Router) handleStatus(c *gin.Context) {
	name, ok := r.unitName(c)
	if !ok {
		return
	}
	st, err := r.ctl.Status(name)
	if err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleVerb(c *gin.Context) {
	name, ok := r.unitName(c)
	if !ok {
		return
	}
	v, err := supervisor.ParseVerb(c.Param("verb"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if err := r.ctl.Do(c.Request.Context(), name, v); err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	st, _ := r.ctl.Status(name)
	writeJSON(c, http.StatusOK, verbResp{OK: true, Verb: v.String(), Status: st})
}

func (r *Router) handleHistory(c *gin.Context) {
	name, ok := r.unitName(c)
	if !ok {
		return
	}
	if r.history == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "no readable history sink configured"})
		return
	}
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := r.history.Recent(c.Request.Context(), name, limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, events)
}

// unitName validates the :name parameter against the configured units.
func (r *Router) unitName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid unit name: allowed [A-Za-z0-9._-] and no '..'"})
		return "", false
	}
	for _, n := range r.ctl.Names() {
		if n == name {
			return name, true
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown unit " + strconv.Quote(name)})
	return "", false
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrUnknownVerb):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrReadinessTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, supervisor.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
