// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service implements the command line front-ends: a one-shot printer and a waybar
// module that keeps its output up to date.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/coffeewhere/internal/config"
	"github.com/wneessen/coffeewhere/internal/geocode"
	"github.com/wneessen/coffeewhere/internal/logger"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/poi"
	"github.com/wneessen/coffeewhere/internal/presenter"
	"github.com/wneessen/coffeewhere/internal/session"
)

const (
	OutputClass        = "coffeewhere"
	LoadingOutputClass = "loading"
	DeniedOutputClass  = "denied"
	EmptyOutputClass   = "empty"
)

var (
	ErrConfigRequired  = errors.New("config is required")
	ErrLoggerRequired  = errors.New("logger is required")
	ErrSessionRequired = errors.New("session is required")
)

// Session is the part of session.Session the service needs.
type Session interface {
	Start(ctx context.Context) error
	Snapshot() session.Snapshot
	RefreshShops(ctx context.Context) error
	SelectShop(id string) (poi.Shop, error)
	ResolveAddress(ctx context.Context, id string) (geocode.Address, error)
	Close()
}

type outputData struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Classes []string `json:"class"`
}

type detailData struct {
	Shop    presenter.ShopView `json:"shop"`
	Address *geocode.Address   `json:"address,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	session   Session
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	output    io.Writer
	outputMu  sync.Mutex
	SignalSrc signalSource

	connectBus  func() (sleepBus, error)
	wakeupDelay time.Duration
}

func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer, sess Session) (*Service, error) {
	if conf == nil {
		return nil, ErrConfigRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}
	if sess == nil {
		return nil, ErrSessionRequired
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	pres, err := presenter.New(conf, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	return &Service{
		config:    conf,
		logger:    log,
		session:   sess,
		presenter: pres,
		scheduler: scheduler,
		output:    os.Stdout,
		SignalSrc: stdLibSignalSource{},

		connectBus:  connectSystemBus,
		wakeupDelay: networkWakeupDelay,
	}, nil
}

// Run starts the waybar module mode. It prints the module output on every output interval and
// refreshes the shop list on every refresh interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput,
		"module_output_job"); err != nil {
		return err
	}
	if err := s.createScheduledJob(ctx, s.config.Intervals.ShopsRefresh, s.refreshShops,
		"shops_refresh_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	go s.watchResume(ctx)
	go func() {
		s.printOutput(ctx)
		if err := s.session.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to start session", logger.Err(err))
		}
		s.printOutput(ctx)
	}()

	<-ctx.Done()
	s.session.Close()
	return s.scheduler.Shutdown()
}

// Once starts the session, prints the shop list or, if shopID is set, the details of that shop
// and returns.
func (s *Service) Once(ctx context.Context, shopID string, asJSON bool) error {
	defer s.session.Close()
	if err := s.session.Start(ctx); err != nil {
		s.logger.Error("failed to start session", logger.Err(err))
	}
	listCtx := s.presenter.BuildListContext(s.session.Snapshot())

	if shopID == "" {
		if asJSON {
			return s.writeJSON(listCtx)
		}
		if status, ok := s.presenter.Status(listCtx); ok {
			return s.writeLine(status)
		}
		list, err := s.presenter.List(listCtx)
		if err != nil {
			return err
		}
		return s.writeLine(list)
	}

	shop, err := s.session.SelectShop(shopID)
	if err != nil {
		return fmt.Errorf("failed to select shop: %w", err)
	}
	address, err := s.session.ResolveAddress(ctx, shop.ID)
	detailCtx := s.presenter.BuildDetailContext(shop, listCtx.Location, address, err)

	if asJSON {
		data := detailData{Shop: detailCtx.ShopView, Error: detailCtx.Error}
		if detailCtx.Error == "" {
			data.Address = &detailCtx.Address
		}
		return s.writeJSON(data)
	}
	detail, err := s.presenter.Detail(detailCtx)
	if err != nil {
		return err
	}
	return s.writeLine(detail)
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// printOutput writes the waybar module JSON for the current session state.
func (s *Service) printOutput(context.Context) {
	listCtx := s.presenter.BuildListContext(s.session.Snapshot())
	output := outputData{Classes: []string{OutputClass}}

	if status, ok := s.presenter.Status(listCtx); ok {
		output.Text = status
		output.Tooltip = status
		if listCtx.Permission == permission.StateDenied {
			output.Classes = append(output.Classes, DeniedOutputClass)
		} else {
			output.Classes = append(output.Classes, LoadingOutputClass)
		}
	} else {
		var err error
		if output.Text, err = s.presenter.Text(listCtx); err != nil {
			s.logger.Error("failed to render text template", logger.Err(err))
			return
		}
		if output.Tooltip, err = s.presenter.Tooltip(listCtx); err != nil {
			s.logger.Error("failed to render tooltip template", logger.Err(err))
			return
		}
		if len(listCtx.Shops) == 0 {
			output.Classes = append(output.Classes, EmptyOutputClass)
		}
	}

	if err := s.writeJSON(output); err != nil {
		s.logger.Error("failed to encode module output", logger.Err(err))
	}
}

// refreshShops queries the shops again. Without a location there is nothing to refresh yet.
func (s *Service) refreshShops(ctx context.Context) {
	err := s.session.RefreshShops(ctx)
	switch {
	case errors.Is(err, session.ErrNoLocation):
		s.logger.Debug("no location yet, skipping shop refresh")
		return
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Error("failed to refresh shops", logger.Err(err))
		}
		return
	}
	s.logger.Debug("shops refreshed", slog.Int("count", len(s.session.Snapshot().Shops)))
	s.printOutput(ctx)
}

func (s *Service) writeJSON(data any) error {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	if err := json.NewEncoder(s.output).Encode(data); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func (s *Service) writeLine(text string) error {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	if _, err := fmt.Fprintln(s.output, text); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
