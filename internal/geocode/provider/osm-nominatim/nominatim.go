// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/geocode"
	"github.com/wneessen/coffeewhere/internal/http"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	name               = "osm-nominatim"
)

var (
	ErrHTTPClientRequired = errors.New("http client is required")
	ErrUnexpectedStatus   = errors.New("unexpected HTTP status from Nominatim API")
)

type Nominatim struct {
	http     *http.Client
	endpoint string
	lang     language.Tag
}

type ReverseResult struct {
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

type Address struct {
	Amenity       string `json:"amenity"`
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	StateDistrict string `json:"state_district"`
	State         string `json:"state"`
	Postcode      string `json:"postcode"`
	Country       string `json:"country"`
}

// New returns a Nominatim reverse geocoder. An empty endpoint selects the public instance.
func New(client *http.Client, endpoint string, lang language.Tag) (*Nominatim, error) {
	if client == nil {
		return nil, ErrHTTPClientRequired
	}
	if endpoint == "" {
		endpoint = APIReverseEndpoint
	}
	return &Nominatim{
		http:     client,
		endpoint: endpoint,
		lang:     lang,
	}, nil
}

func (n *Nominatim) Name() string {
	return name
}

// UserAgent returns the User-Agent header for a single request. The token is random and
// regenerated on every call.
func UserAgent() string {
	return fmt.Sprintf("coffeewhere/%s (%s)", http.Version(), uuid.NewString())
}

func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	var result ReverseResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", geobus.FormatDegrees(coords.Lat))
	query.Set("lon", geobus.FormatDegrees(coords.Lon))
	query.Set("addressdetails", "1")
	query.Set("accept-language", n.lang.String())
	headers := map[string]string{"User-Agent": UserAgent()}

	code, err := n.http.Get(ctx, n.endpoint, &result, query, headers)
	if errors.Is(err, http.ErrUnexpectedStatus) {
		return geocode.Address{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}

	address := geocode.Address{
		Name:        strings.TrimSpace(result.Name),
		Road:        result.Address.Road,
		HouseNumber: result.Address.HouseNumber,
		City:        result.Address.City,
		District:    result.Address.StateDistrict,
		Region:      result.Address.State,
		Postcode:    result.Address.Postcode,
		Country:     result.Address.Country,
		DisplayName: result.DisplayName,
	}
	if address.Name == "" {
		address.Name = strings.TrimSpace(result.Address.Amenity)
	}
	if address.City == "" && result.Address.Town != "" {
		address.City = result.Address.Town
	}
	if address.City == "" && result.Address.Village != "" {
		address.City = result.Address.Village
	}

	// lat and lon are optional, the address is usable without them
	if result.APILat != "" {
		if address.Latitude, err = strconv.ParseFloat(result.APILat, 64); err != nil {
			return geocode.Address{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
		}
	}
	if result.APILon != "" {
		if address.Longitude, err = strconv.ParseFloat(result.APILon, 64); err != nil {
			return geocode.Address{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
		}
	}

	return address, nil
}
