// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package overpass

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/http"
	"github.com/wneessen/coffeewhere/internal/poi"
)

const (
	name = "overpass"

	DefaultEndpoint = "https://lz4.overpass-api.de/api/interpreter"
	DefaultAmenity  = "cafe"
	DefaultRadius   = 2000

	// coordPrecision is the number of decimals sent to the service (about 11m).
	coordPrecision = 4
	queryTemplate  = "[out:json][timeout:25];\nnode[\"amenity\"=%q](around:%d,%s,%s);\nout;"
)

var (
	ErrHTTPClientRequired = errors.New("http client is required")
	ErrUnexpectedStatus   = errors.New("unexpected HTTP status from Overpass API")
)

// Overpass searches OpenStreetMap nodes through the Overpass API.
type Overpass struct {
	http     *http.Client
	endpoint string
	amenity  string
	radius   uint
}

// APIResult is the Overpass JSON response. Elements is a pointer so that a missing field can be
// told apart from an empty list.
type APIResult struct {
	Elements *[]Element `json:"elements"`
}

type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  *float64          `json:"lat"`
	Lon  *float64          `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// Option configures the provider.
type Option func(*Overpass)

func WithEndpoint(endpoint string) Option {
	return func(o *Overpass) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

func WithAmenity(amenity string) Option {
	return func(o *Overpass) {
		if amenity != "" {
			o.amenity = amenity
		}
	}
}

func WithRadius(radius uint) Option {
	return func(o *Overpass) {
		if radius > 0 {
			o.radius = radius
		}
	}
}

func New(http *http.Client, opts ...Option) (*Overpass, error) {
	if http == nil {
		return nil, ErrHTTPClientRequired
	}
	provider := &Overpass{
		http:     http,
		endpoint: DefaultEndpoint,
		amenity:  DefaultAmenity,
		radius:   DefaultRadius,
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider, nil
}

func (o *Overpass) Name() string {
	return name
}

// Query returns the Overpass QL query for coord rounded to four decimals.
func (o *Overpass) Query(coord geobus.Coordinate) string {
	rounded := coord.Round(coordPrecision)
	return fmt.Sprintf(queryTemplate, o.amenity, o.radius, geobus.FormatDegrees(rounded.Lat),
		geobus.FormatDegrees(rounded.Lon))
}

// Search posts the query and converts the returned nodes into shops. Nodes without position are
// skipped, nodes without name get poi.UnnamedShop. Duplicate ids keep the first node.
func (o *Overpass) Search(ctx context.Context, coord geobus.Coordinate) ([]poi.Shop, error) {
	headers := map[string]string{
		"Content-Type": "text/plain",
		"Accept":       "application/json",
	}
	result := new(APIResult)
	code, err := o.http.Post(ctx, o.endpoint, result, strings.NewReader(o.Query(coord)), headers)
	if errors.Is(err, http.ErrUnexpectedStatus) {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query Overpass API: %w", err)
	}
	if result.Elements == nil {
		return nil, fmt.Errorf("%w: no elements in Overpass response", poi.ErrMalformedResponse)
	}

	shops := make([]poi.Shop, 0, len(*result.Elements))
	seen := make(map[string]struct{}, len(*result.Elements))
	for _, element := range *result.Elements {
		if element.Lat == nil || element.Lon == nil {
			continue
		}
		id := strconv.FormatInt(element.ID, 10)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		shopName := strings.TrimSpace(element.Tags["name"])
		if shopName == "" {
			shopName = poi.UnnamedShop
		}
		shops = append(shops, poi.Shop{
			ID:        id,
			Name:      shopName,
			Latitude:  *element.Lat,
			Longitude: *element.Lon,
		})
	}
	return shops, nil
}
