// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package server exposes the session over a small JSON API for map front-ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/vorlif/spreak"

	"github.com/wneessen/coffeewhere/internal/config"
	"github.com/wneessen/coffeewhere/internal/geocode"
	"github.com/wneessen/coffeewhere/internal/job"
	"github.com/wneessen/coffeewhere/internal/logger"
	"github.com/wneessen/coffeewhere/internal/mapview"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/poi"
	"github.com/wneessen/coffeewhere/internal/presenter"
	"github.com/wneessen/coffeewhere/internal/session"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var (
	ErrConfigRequired  = errors.New("config is required")
	ErrLoggerRequired  = errors.New("logger is required")
	ErrSessionRequired = errors.New("session is required")
)

// Session is the part of session.Session the server needs.
type Session interface {
	Start(ctx context.Context) error
	Snapshot() session.Snapshot
	RequestPermission(ctx context.Context, revisit bool) (permission.State, error)
	RefreshShops(ctx context.Context) error
	SelectShop(id string) (poi.Shop, error)
	ResolveAddress(ctx context.Context, id string) (geocode.Address, error)
	Recenter() error
	Map() *mapview.Controller
	Close()
}

type permissionResponse struct {
	Permission permission.State `json:"permission"`
}

type shopsResponse struct {
	Loading   bool                 `json:"loading"`
	Shops     []presenter.ShopView `json:"shops"`
	Selected  *presenter.ShopView  `json:"selected,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type addressResponse struct {
	Shop    presenter.ShopView `json:"shop"`
	Address *geocode.Address   `json:"address,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	config    *config.Config
	logger    *logger.Logger
	session   Session
	presenter *presenter.Presenter
	router    *mux.Router
}

func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer, sess Session) (*Server, error) {
	if conf == nil {
		return nil, ErrConfigRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}
	if sess == nil {
		return nil, ErrSessionRequired
	}
	pres, err := presenter.New(conf, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	srv := &Server{
		config:    conf,
		logger:    log,
		session:   sess,
		presenter: pres,
		router:    mux.NewRouter(),
	}
	api := srv.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/permission", srv.GetPermission).Methods(http.MethodGet)
	api.HandleFunc("/permission/request", srv.RequestPermission).Methods(http.MethodPost)
	api.HandleFunc("/location", srv.GetLocation).Methods(http.MethodGet)
	api.HandleFunc("/shops", srv.GetShops).Methods(http.MethodGet)
	api.HandleFunc("/shops/refresh", srv.RefreshShops).Methods(http.MethodPost)
	api.HandleFunc("/shops/{id}/select", srv.SelectShop).Methods(http.MethodPost)
	api.HandleFunc("/shops/{id}/address", srv.GetAddress).Methods(http.MethodGet)
	api.HandleFunc("/map/commands", srv.GetMapCommands).Methods(http.MethodGet)
	api.HandleFunc("/map/recenter", srv.Recenter).Methods(http.MethodPost)
	api.Use(srv.logRequests)

	return srv, nil
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the session and serves the API on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Listen, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is like Run but uses the given listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.session.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to start session", logger.Err(err))
		}
	}()
	refresh := job.New(s.config.Intervals.ShopsRefresh, s.refreshShops)
	go refresh.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving coffeewhere API", slog.String("address", listener.Addr().String()))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		s.session.Close()
		return fmt.Errorf("failed to serve API: %w", err)
	case <-ctx.Done():
	}

	s.session.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve API: %w", err)
	}
	return nil
}

func (s *Server) GetPermission(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, permissionResponse{Permission: s.session.Snapshot().Permission})
}

// RequestPermission asks for location access again. With revisit=true a previous denial is
// reconsidered.
func (s *Server) RequestPermission(w http.ResponseWriter, r *http.Request) {
	revisit := false
	if val := r.URL.Query().Get("revisit"); val != "" {
		var err error
		if revisit, err = strconv.ParseBool(val); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid revisit value")
			return
		}
	}
	state, err := s.session.RequestPermission(r.Context(), revisit)
	if err != nil {
		s.logger.Error("failed to request location permission", logger.Err(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, permissionResponse{Permission: state})
}

func (s *Server) GetLocation(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	if snap.Location == nil {
		s.writeError(w, http.StatusNotFound, session.ErrNoLocation.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap.Location)
}

// GetShops returns the shops nearest first. Loading is set while no result is available yet.
func (s *Server) GetShops(w http.ResponseWriter, _ *http.Request) {
	listCtx := s.presenter.BuildListContext(s.session.Snapshot())
	s.writeJSON(w, http.StatusOK, shopsResponse{
		Loading:   listCtx.Loading,
		Shops:     listCtx.Shops,
		Selected:  listCtx.Selected,
		UpdatedAt: listCtx.UpdatedAt,
	})
}

func (s *Server) RefreshShops(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RefreshShops(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.GetShops(w, r)
}

func (s *Server) SelectShop(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.SelectShop(mux.Vars(r)["id"]); err != nil {
		s.writeSessionError(w, err)
		return
	}
	listCtx := s.presenter.BuildListContext(s.session.Snapshot())
	s.writeJSON(w, http.StatusOK, listCtx.Selected)
}

// GetAddress resolves the address of a shop. A failed resolution is reported with the localized
// message and no address.
func (s *Server) GetAddress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap := s.session.Snapshot()
	var shop *poi.Shop
	for i := range snap.Shops {
		if snap.Shops[i].ID == id {
			shop = &snap.Shops[i]
			break
		}
	}
	if shop == nil {
		if snap.Location == nil {
			s.writeSessionError(w, session.ErrNoLocation)
			return
		}
		s.writeSessionError(w, session.ErrUnknownShop)
		return
	}

	address, err := s.session.ResolveAddress(r.Context(), id)
	if errors.Is(err, session.ErrUnknownShop) || errors.Is(err, session.ErrNoLocation) {
		s.writeSessionError(w, err)
		return
	}
	detailCtx := s.presenter.BuildDetailContext(*shop, snap.Location, address, err)
	resp := addressResponse{Shop: detailCtx.ShopView, Error: detailCtx.Error}
	status := http.StatusOK
	if detailCtx.Error != "" {
		status = http.StatusBadGateway
	} else {
		resp.Address = &detailCtx.Address
	}
	s.writeJSON(w, status, resp)
}

// GetMapCommands returns and removes the pending map commands in the order they were issued.
func (s *Server) GetMapCommands(w http.ResponseWriter, _ *http.Request) {
	commands := s.session.Map().Drain()
	envelopes := make([]mapview.Envelope, 0, len(commands))
	for _, cmd := range commands {
		envelopes = append(envelopes, mapview.Wrap(cmd))
	}
	s.writeJSON(w, http.StatusOK, envelopes)
}

func (s *Server) Recenter(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Recenter(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshShops(ctx context.Context) {
	err := s.session.RefreshShops(ctx)
	if err != nil && !errors.Is(err, session.ErrNoLocation) && ctx.Err() == nil {
		s.logger.Error("failed to refresh shops", logger.Err(err))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("handled API request", slog.String("method", r.Method),
			slog.String("path", r.URL.Path), slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownShop):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNoLocation):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("session operation failed", logger.Err(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode API response", logger.Err(err))
	}
}
