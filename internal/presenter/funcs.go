// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak/localize"
)

// i18nVars maps the lower-cased names usable with the loc template function to their messages.
var i18nVars = map[string]localize.MsgID{
	"unnamed café":                  "Unnamed café",
	"no coffee shops found nearby.": "No coffee shops found nearby.",
	"looking for coffee shops...":   "Looking for coffee shops...",
	"location access denied.":       "Location access denied.",
	"you are here":                  "You are here",
	"address":                       "Address",
	"city":                          "City",
	"district":                      "District",
	"region":                        "Region",
	"postcode":                      "Postcode",
	"country":                       "Country",
	"updated":                       "Updated",
}

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    timeFormat,
		"localizedTime": p.localizedTime,
		"naturalTime":   p.naturalTime,
		"distance":      distance,
		"pad":           pad,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	if val.IsZero() {
		return "-"
	}
	return p.humanizer.NaturalTime(val)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

// distance formats meters as "350 m" or, from one kilometer on, as "1.2 km".
func distance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// pad fills val with spaces up to width terminal cells. Longer values are cut off.
func pad(val string, width int) string {
	if runewidth.StringWidth(val) > width {
		val = runewidth.Truncate(val, width, "…")
	}
	return runewidth.FillRight(val, width)
}
