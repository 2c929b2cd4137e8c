// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vorlif/spreak"

	"github.com/wneessen/coffeewhere/internal/config"
	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/geobus/provider/geoapi"
	"github.com/wneessen/coffeewhere/internal/geobus/provider/geoip"
	"github.com/wneessen/coffeewhere/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/coffeewhere/internal/geobus/provider/gpsd"
	"github.com/wneessen/coffeewhere/internal/geobus/provider/ichnaea"
	"github.com/wneessen/coffeewhere/internal/geocode"
	nominatim "github.com/wneessen/coffeewhere/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/coffeewhere/internal/http"
	"github.com/wneessen/coffeewhere/internal/i18n"
	"github.com/wneessen/coffeewhere/internal/location"
	"github.com/wneessen/coffeewhere/internal/logger"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/poi"
	"github.com/wneessen/coffeewhere/internal/poi/provider/overpass"
)

var ErrNoProviders = errors.New("no geolocation providers enabled")

// FromConfig builds a Session and all its components from conf. The prompter is asked for
// consent unless the granted capability is configured.
func FromConfig(conf *config.Config, localizer *spreak.Localizer, prompter permission.Prompter,
	log *logger.Logger,
) (*Session, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	httpClient := http.New(log)

	gate, err := newGate(conf, prompter, log)
	if err != nil {
		return nil, err
	}

	providers, err := Providers(conf, httpClient, log)
	if err != nil {
		return nil, err
	}
	bus, err := geobus.New(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create geobus: %w", err)
	}
	opts := location.Options{
		HighAccuracy: !conf.Location.DisableHighAccuracy,
		Timeout:      conf.Location.Timeout,
		MaximumAge:   conf.Location.MaximumAge,
		SettleDelay:  conf.Location.SettleDelay,
	}
	acquirer, err := location.New(bus, providers, opts, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create location acquirer: %w", err)
	}

	shopProvider, err := overpass.New(httpClient, overpass.WithEndpoint(conf.Shops.Endpoint),
		overpass.WithAmenity(conf.Shops.Amenity), overpass.WithRadius(conf.Shops.Radius))
	if err != nil {
		return nil, fmt.Errorf("failed to create Overpass provider: %w", err)
	}
	finder, err := poi.NewFinder(shopProvider, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create shop finder: %w", err)
	}

	geocoder, err := nominatim.New(httpClient, conf.GeoCoder.Endpoint, i18n.Tag(conf.Locale))
	if err != nil {
		return nil, fmt.Errorf("failed to create Nominatim geocoder: %w", err)
	}
	resolver, err := geocode.NewResolver(geocoder, localizer, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create address resolver: %w", err)
	}

	return New(gate, acquirer, finder, resolver, log)
}

// Providers returns the enabled location sources. Without high accuracy the gpsd and WiFi
// sources are skipped.
func Providers(conf *config.Config, httpClient *http.Client, log *logger.Logger) ([]geobus.Provider, error) {
	var provider []geobus.Provider
	highAccuracy := !conf.Location.DisableHighAccuracy

	if !conf.GeoLocation.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(conf.GeoLocation.GeoLocationFile))
	}

	if highAccuracy && !conf.GeoLocation.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider())
	}

	if !conf.GeoLocation.DisableGeoIP {
		gip, err := geoip.NewGeolocationGeoIPProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		provider = append(provider, gip)
	}

	if !conf.GeoLocation.DisableGeoAPI {
		gap, err := geoapi.NewGeolocationGeoAPIProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI provider: %w", err)
		}
		provider = append(provider, gap)
	}

	if highAccuracy && !conf.GeoLocation.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient)
		if err != nil {
			log.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, ErrNoProviders
	}

	return provider, nil
}

func newGate(conf *config.Config, prompter permission.Prompter, log *logger.Logger) (*permission.Gate, error) {
	kind := strings.ToLower(conf.Permission.Capability)
	var consent *permission.ConsentCapability
	if kind != permission.CapabilityGranted {
		var err error
		consent, err = permission.NewConsentCapability(conf.Permission.ConsentFile, prompter)
		if err != nil {
			return nil, fmt.Errorf("failed to create consent capability: %w", err)
		}
	}
	capability, err := permission.NewCapability(kind, consent)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission capability: %w", err)
	}
	gate, err := permission.New(capability, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission gate: %w", err)
	}
	return gate, nil
}
