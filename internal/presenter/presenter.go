// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter turns session state into the texts shown by the front-ends.
package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/humanize/locale/es"
	"github.com/vorlif/spreak"

	"github.com/wneessen/coffeewhere/internal/config"
	"github.com/wneessen/coffeewhere/internal/geobus"
	"github.com/wneessen/coffeewhere/internal/geocode"
	"github.com/wneessen/coffeewhere/internal/i18n"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/poi"
	"github.com/wneessen/coffeewhere/internal/session"
)

var (
	ErrConfigRequired    = errors.New("config is required")
	ErrLocalizerRequired = errors.New("localizer is required")
)

// ShopView is a shop together with its distance to the user in meters.
type ShopView struct {
	poi.Shop
	Distance float64 `json:"distance"`
}

// ListContext is the data the list templates are rendered with. Shops are ordered by distance.
type ListContext struct {
	Permission permission.State
	Location   *geobus.Coordinate
	Shops      []ShopView
	Selected   *ShopView
	Loading    bool
	UpdatedAt  time.Time
}

// Denied reports whether location access was refused.
func (c ListContext) Denied() bool {
	return c.Permission == permission.StateDenied
}

// DetailContext is the data the detail template is rendered with. Error holds the localized
// message if the address could not be resolved, Address is empty in that case.
type DetailContext struct {
	ShopView
	Address geocode.Address
	Error   string
}

type Presenter struct {
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer

	text    *template.Template
	tooltip *template.Template
	list    *template.Template
	detail  *template.Template
}

// New parses the configured templates.
func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	if conf == nil {
		return nil, ErrConfigRequired
	}
	if loc == nil {
		return nil, ErrLocalizerRequired
	}
	collection, err := humanize.New(humanize.WithLocale(es.New(), de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	p := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(i18n.Tag(conf.Locale)),
	}

	templates := []struct {
		name   string
		source string
		target **template.Template
	}{
		{"text", conf.Templates.Text, &p.text},
		{"tooltip", conf.Templates.Tooltip, &p.tooltip},
		{"list", conf.Templates.List, &p.list},
		{"detail", conf.Templates.Detail, &p.detail},
	}
	for _, tpl := range templates {
		parsed, err := template.New(tpl.name).Funcs(p.templateFuncMap()).Parse(tpl.source)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", tpl.name, err)
		}
		*tpl.target = parsed
	}
	return p, nil
}

// BuildListContext converts a session snapshot into a ListContext.
func (p *Presenter) BuildListContext(snap session.Snapshot) ListContext {
	ctx := ListContext{
		Permission: snap.Permission,
		Location:   snap.Location,
		Loading:    snap.Shops == nil,
		UpdatedAt:  snap.UpdatedAt,
		Shops:      make([]ShopView, 0, len(snap.Shops)),
	}
	for _, shop := range snap.Shops {
		ctx.Shops = append(ctx.Shops, p.view(shop, snap.Location))
	}
	sort.SliceStable(ctx.Shops, func(i, j int) bool {
		return ctx.Shops[i].Distance < ctx.Shops[j].Distance
	})
	if snap.Selected != nil {
		view := p.view(*snap.Selected, snap.Location)
		ctx.Selected = &view
	}
	return ctx
}

// BuildDetailContext returns the detail data for shop. A failed resolution only yields the error
// message, never a partial address.
func (p *Presenter) BuildDetailContext(shop poi.Shop, location *geobus.Coordinate, addr geocode.Address,
	err error,
) DetailContext {
	ctx := DetailContext{ShopView: p.view(shop, location)}
	if err != nil {
		var resolveErr *geocode.ResolveError
		if errors.As(err, &resolveErr) {
			ctx.Error = resolveErr.Error()
		} else {
			ctx.Error = p.localizer.Get(geocode.MsgResolveFailed)
		}
		return ctx
	}
	ctx.Address = addr
	if addr.Name != "" {
		ctx.Name = addr.Name
	}
	return ctx
}

func (p *Presenter) Text(ctx ListContext) (string, error) {
	return p.render(p.text, ctx)
}

func (p *Presenter) Tooltip(ctx ListContext) (string, error) {
	return p.render(p.tooltip, ctx)
}

func (p *Presenter) List(ctx ListContext) (string, error) {
	return p.render(p.list, ctx)
}

func (p *Presenter) Detail(ctx DetailContext) (string, error) {
	return p.render(p.detail, ctx)
}

// Status returns the localized placeholder for states in which no list can be shown.
func (p *Presenter) Status(ctx ListContext) (string, bool) {
	switch {
	case ctx.Denied():
		return p.localizer.Get("Location access denied."), true
	case ctx.Loading:
		return p.localizer.Get("Looking for coffee shops..."), true
	}
	return "", false
}

func (p *Presenter) view(shop poi.Shop, location *geobus.Coordinate) ShopView {
	view := ShopView{Shop: shop}
	if location != nil {
		view.Distance = location.DistanceTo(shop.Coordinate())
	}
	if shop.Name == poi.UnnamedShop {
		view.Name = p.localizer.Get(poi.UnnamedShop)
	}
	return view
}

func (p *Presenter) render(tpl *template.Template, data any) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
