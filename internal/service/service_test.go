// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/wneessen/coffeewhere/internal/config"
	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/geocode"
	"github.com/wneessen/coffeewhere/internal/i18n"
	"github.com/wneessen/coffeewhere/internal/logger"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/poi"
	"github.com/wneessen/coffeewhere/internal/session"
)

var (
	testLocation = geobus.Coordinate{Lat: 40.4168, Lon: -3.7038}
	testShops    = []poi.Shop{
		{ID: "1", Name: "Café X", Latitude: 40.417, Longitude: -3.704},
		{ID: "2", Name: "Café Lejos", Latitude: 40.43, Longitude: -3.69},
	}
)

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		if _, err := testService(t, newTestSession(permission.StateGranted)); err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
	})
	t.Run("missing dependencies fail", func(t *testing.T) {
		conf := testConfig(t)
		log := logger.NewLogger(slog.LevelError, bytes.NewBuffer(nil))
		loc, err := i18n.New("en")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		sess := newTestSession(permission.StateGranted)
		tests := []struct {
			name    string
			conf    *config.Config
			log     *logger.Logger
			sess    Session
			wantErr error
		}{
			{"nil config", nil, log, sess, ErrConfigRequired},
			{"nil logger", conf, nil, sess, ErrLoggerRequired},
			{"nil session", conf, log, nil, ErrSessionRequired},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := New(tc.conf, tc.log, loc, tc.sess)
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected error %s, got %v", tc.wantErr, err)
				}
			})
		}
	})
	t.Run("invalid template fails", func(t *testing.T) {
		conf := testConfig(t)
		conf.Templates.Text = "{{.Foo"
		loc, err := i18n.New("en")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		_, err = New(conf, logger.NewLogger(slog.LevelError, bytes.NewBuffer(nil)), loc,
			newTestSession(permission.StateGranted))
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		sess := newTestSession(permission.StateGranted)
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.output = buf

		errCh := make(chan error, 1)
		go func() {
			errCh <- serv.Run(ctx)
		}()

		waitFor(t, func() bool { return strings.Contains(buf.String(), `"text":"☕ 2"`) })
		cancel()
		select {
		case err = <-errCh:
			if err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("service did not shut down")
		}
		if !sess.isClosed() {
			t.Error("expected session to be closed on shutdown")
		}
	})
	t.Run("invalid interval fails", func(t *testing.T) {
		serv, err := testService(t, newTestSession(permission.StateGranted))
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Intervals.ShopsRefresh = 0
		err = serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := "failed to create shops_refresh_job"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
}

func TestService_printOutput(t *testing.T) {
	tests := []struct {
		name        string
		state       permission.State
		loaded      bool
		shops       []poi.Shop
		wantText    string
		wantClasses []string
	}{
		{"shops found", permission.StateGranted, true, testShops, "☕ 2", []string{OutputClass}},
		{
			"no shops", permission.StateGranted, true, []poi.Shop{}, "☕ 0",
			[]string{OutputClass, EmptyOutputClass},
		},
		{
			"still loading", permission.StateGranted, false, nil, "Looking for coffee shops...",
			[]string{OutputClass, LoadingOutputClass},
		},
		{
			"access denied", permission.StateDenied, false, nil, "Location access denied.",
			[]string{OutputClass, DeniedOutputClass},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := newTestSession(tc.state)
			sess.shops = tc.shops
			if tc.loaded {
				sess.started = true
			}
			serv, err := testService(t, sess)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := bytes.NewBuffer(nil)
			serv.output = buf
			serv.printOutput(t.Context())

			var output outputData
			if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
				t.Fatalf("failed to unmarshal output: %s", err)
			}
			if output.Text != tc.wantText {
				t.Errorf("expected text %q, got %q", tc.wantText, output.Text)
			}
			if strings.Join(output.Classes, ",") != strings.Join(tc.wantClasses, ",") {
				t.Errorf("expected classes %v, got %v", tc.wantClasses, output.Classes)
			}
		})
	}
	t.Run("tooltip lists shops nearest first", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		sess.started = true
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printOutput(t.Context())

		var output outputData
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal output: %s", err)
		}
		near, far := strings.Index(output.Tooltip, "Café X"), strings.Index(output.Tooltip, "Café Lejos")
		if near < 0 || far < 0 || near > far {
			t.Errorf("expected tooltip to list Café X before Café Lejos, got %q", output.Tooltip)
		}
	})
	t.Run("write failure is logged", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		sess.started = true
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.output = failWriter{}
		serv.printOutput(t.Context())
		if !strings.Contains(logBuf.String(), "failed to encode module output") {
			t.Errorf("expected write failure to be logged, got %q", logBuf.String())
		}
	})
}

func TestService_refreshShops(t *testing.T) {
	t.Run("refresh prints the new output", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		sess.started = true
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.refreshShops(t.Context())
		if sess.refreshCalls() != 1 {
			t.Errorf("expected one refresh, got %d", sess.refreshCalls())
		}
		if !strings.Contains(buf.String(), `"text":"☕ 2"`) {
			t.Errorf("expected output to be printed, got %q", buf.String())
		}
	})
	t.Run("refresh without location is skipped", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.refreshShops(t.Context())
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
		if logBuf.Len() != 0 {
			t.Errorf("expected nothing to be logged, got %q", logBuf.String())
		}
	})
	t.Run("refresh failure is logged", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		sess.started = true
		sess.refreshErr = errors.New("intentionally failing")
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.refreshShops(t.Context())
		if !strings.Contains(logBuf.String(), "failed to refresh shops") {
			t.Errorf("expected refresh failure to be logged, got %q", logBuf.String())
		}
	})
}

func TestService_Once(t *testing.T) {
	t.Run("list is printed nearest first", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		if err = serv.Once(t.Context(), "", false); err != nil {
			t.Fatalf("failed to run once: %s", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
		}
		if !strings.HasPrefix(lines[0], "1  Café X") {
			t.Errorf("expected first line to be the nearest shop, got %q", lines[0])
		}
		if !sess.isClosed() {
			t.Error("expected session to be closed")
		}
	})
	t.Run("list as JSON", func(t *testing.T) {
		serv, err := testService(t, newTestSession(permission.StateGranted))
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		if err = serv.Once(t.Context(), "", true); err != nil {
			t.Fatalf("failed to run once: %s", err)
		}
		var data struct {
			Shops []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
		}
		if err = json.Unmarshal(buf.Bytes(), &data); err != nil {
			t.Fatalf("failed to unmarshal output: %s", err)
		}
		if len(data.Shops) != 2 || data.Shops[0].ID != "1" {
			t.Errorf("expected 2 shops starting with ID 1, got %+v", data.Shops)
		}
	})
	t.Run("denied prints the status", func(t *testing.T) {
		serv, err := testService(t, newTestSession(permission.StateDenied))
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		if err = serv.Once(t.Context(), "", false); err != nil {
			t.Fatalf("failed to run once: %s", err)
		}
		if strings.TrimSpace(buf.String()) != "Location access denied." {
			t.Errorf("expected denied status, got %q", buf.String())
		}
	})
	t.Run("shop details are printed", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		if err = serv.Once(t.Context(), "1", false); err != nil {
			t.Fatalf("failed to run once: %s", err)
		}
		for _, want := range []string{"Café X", "Address: Calle Mayor 1", "City: Madrid"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("expected output to contain %q, got %q", want, buf.String())
			}
		}
		if sess.selectedID() != "1" {
			t.Errorf("expected shop 1 to be selected, got %q", sess.selectedID())
		}
	})
	t.Run("shop details as JSON with failed resolution", func(t *testing.T) {
		sess := newTestSession(permission.StateGranted)
		sess.resolveErr = errors.New("intentionally failing")
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		if err = serv.Once(t.Context(), "2", true); err != nil {
			t.Fatalf("failed to run once: %s", err)
		}
		var data struct {
			Shop    poi.Shop         `json:"shop"`
			Address *geocode.Address `json:"address"`
			Error   string           `json:"error"`
		}
		if err = json.Unmarshal(buf.Bytes(), &data); err != nil {
			t.Fatalf("failed to unmarshal output: %s", err)
		}
		if data.Shop.Name != "Café Lejos" {
			t.Errorf("expected shop name Café Lejos, got %q", data.Shop.Name)
		}
		if data.Address != nil {
			t.Errorf("expected no address, got %+v", data.Address)
		}
		if data.Error != geocode.MsgResolveFailed {
			t.Errorf("expected error %q, got %q", geocode.MsgResolveFailed, data.Error)
		}
	})
	t.Run("unknown shop fails", func(t *testing.T) {
		serv, err := testService(t, newTestSession(permission.StateGranted))
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.output = bytes.NewBuffer(nil)
		err = serv.Once(t.Context(), "99", false)
		if !errors.Is(err, session.ErrUnknownShop) {
			t.Errorf("expected error %s, got %v", session.ErrUnknownShop, err)
		}
	})
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal is handled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess := newTestSession(permission.StateGranted)
		sess.started = true
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.output = &syncBuffer{buf: bytes.NewBuffer(nil)}
		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()

		sigChan <- syscall.SIGUSR1
		waitFor(t, func() bool { return sess.refreshCalls() == 1 })
		cancel()
	})
	t.Run("USR2 signal is handled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess := newTestSession(permission.StateGranted)
		sess.started = true
		serv, err := testService(t, sess)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()

		sigChan <- syscall.SIGUSR2
		wantLog := `msg="current session state" permission=granted shops=2 latitude=40.4168 longitude=-3.7038`
		waitFor(t, func() bool { return strings.Contains(buf.String(), wantLog) })
		cancel()
	})
}

func testService(t *testing.T, sess Session) (*Service, error) {
	t.Helper()
	loc, err := i18n.New("en")
	if err != nil {
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}
	return New(testConfig(t), logger.NewLogger(slog.LevelError, bytes.NewBuffer(nil)), loc, sess)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to create config: %s", err)
	}
	conf.Locale = "en"
	return conf
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type (
	failWriter  struct{}
	testSession struct {
		mu         sync.Mutex
		state      permission.State
		shops      []poi.Shop
		started    bool
		closed     bool
		selected   string
		refreshes  int
		refreshErr error
		resolveErr error
	}
	syncBuffer struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func newTestSession(state permission.State) *testSession {
	return &testSession{state: state, shops: testShops}
}

func (s *testSession) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == permission.StateGranted {
		s.started = true
	}
	return nil
}

func (s *testSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := session.Snapshot{Permission: s.state}
	if !s.started {
		return snap
	}
	location := testLocation
	snap.Location = &location
	snap.Shops = append([]poi.Shop{}, s.shops...)
	snap.UpdatedAt = time.Now()
	return snap
}

func (s *testSession) RefreshShops(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return session.ErrNoLocation
	}
	s.refreshes++
	return s.refreshErr
}

func (s *testSession) SelectShop(id string) (poi.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return poi.Shop{}, session.ErrNoLocation
	}
	for _, shop := range s.shops {
		if shop.ID == id {
			s.selected = id
			return shop, nil
		}
	}
	return poi.Shop{}, session.ErrUnknownShop
}

func (s *testSession) ResolveAddress(_ context.Context, id string) (geocode.Address, error) {
	if s.resolveErr != nil {
		return geocode.Address{}, s.resolveErr
	}
	shop, err := s.SelectShop(id)
	if err != nil {
		return geocode.Address{}, err
	}
	return geocode.Address{
		Name:        shop.Name,
		Road:        "Calle Mayor",
		HouseNumber: "1",
		City:        "Madrid",
		Country:     "España",
	}, nil
}

func (s *testSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *testSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *testSession) refreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *testSession) selectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (f failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("failed to write") }

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
