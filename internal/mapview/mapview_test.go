// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapview

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/poi"
)

var (
	user = geobus.Coordinate{Lat: 40.4168, Lon: -3.7038}
	shop = poi.Shop{ID: "1", Name: "Café X", Latitude: 40.417, Longitude: -3.704}
)

func TestController_Update(t *testing.T) {
	t.Run("without selection the map centers on the user", func(t *testing.T) {
		ctrl := NewController(0)
		ctrl.Update(user, nil)
		want := []Command{
			SetUserMarker{Position: user},
			ClearSelectedMarker{},
			SetView{Center: user, Zoom: DefaultZoom},
		}
		if got := ctrl.Drain(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected commands %+v, got %+v", want, got)
		}
	})
	t.Run("with selection the map fits both markers", func(t *testing.T) {
		ctrl := NewController(0)
		ctrl.Update(user, &shop)
		want := []Command{
			SetUserMarker{Position: user},
			ClearSelectedMarker{},
			SetSelectedMarker{Shop: shop},
			FitBounds{
				SouthWest: geobus.Coordinate{Lat: 40.4168, Lon: -3.704},
				NorthEast: geobus.Coordinate{Lat: 40.417, Lon: -3.7038},
				Padding:   DefaultPadding,
			},
		}
		if got := ctrl.Drain(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected commands %+v, got %+v", want, got)
		}
	})
}

func TestController_Recenter(t *testing.T) {
	ctrl := NewController(0)
	ctrl.Recenter(user)
	want := []Command{SetView{Center: user, Zoom: DefaultZoom}, OpenUserPopup{}}
	if got := ctrl.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected commands %+v, got %+v", want, got)
	}
}

func TestController_send(t *testing.T) {
	t.Run("full queue drops the oldest command", func(t *testing.T) {
		ctrl := NewController(2)
		ctrl.Recenter(user)
		ctrl.Update(user, nil)
		want := []Command{ClearSelectedMarker{}, SetView{Center: user, Zoom: DefaultZoom}}
		if got := ctrl.Drain(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected commands %+v, got %+v", want, got)
		}
	})
	t.Run("commands are delivered through the channel", func(t *testing.T) {
		ctrl := NewController(0)
		ctrl.Recenter(user)
		cmd := <-ctrl.Commands()
		if cmd.Kind() != KindSetView {
			t.Errorf("expected %s, got %s", KindSetView, cmd.Kind())
		}
	})
	t.Run("drain of an empty queue", func(t *testing.T) {
		if got := NewController(0).Drain(); len(got) != 0 {
			t.Errorf("expected no commands, got %+v", got)
		}
	})
}

func TestWrap(t *testing.T) {
	data, err := json.Marshal(Wrap(SetView{Center: user, Zoom: 15}))
	if err != nil {
		t.Fatalf("failed to marshal command: %s", err)
	}
	want := `{"kind":"set_view","payload":{"center":{"latitude":40.4168,"longitude":-3.7038},"zoom":15}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
	data, err = json.Marshal(Wrap(OpenUserPopup{}))
	if err != nil {
		t.Fatalf("failed to marshal command: %s", err)
	}
	if !strings.Contains(string(data), `"kind":"open_user_popup"`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}
