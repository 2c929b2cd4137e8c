// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "COFFEEWHERE"
	configDir = "coffeewhere"

	DefaultListTextTpl    = "☕ {{len .Shops}}"
	DefaultListTooltipTpl = "{{range .Shops}}{{pad (loc .Name) 32}} {{distance .Distance}}\n{{end}}" +
		"{{loc \"updated\"}}: {{naturalTime .UpdatedAt}}"
	DefaultListTpl = "{{range $i, $s := .Shops}}{{$s.ID}}  {{pad (loc $s.Name) 32}} {{distance $s.Distance}}\n" +
		"{{else}}{{loc \"No coffee shops found nearby.\"}}\n{{end}}"
	DefaultDetailTpl = "{{if .Error}}{{.Error}}\n{{else}}{{.Name}}\n" +
		"{{loc \"Address\"}}: {{.Address.Street}}\n" +
		"{{with .Address.City}}{{loc \"City\"}}: {{.}}\n{{end}}" +
		"{{with .Address.District}}{{loc \"District\"}}: {{.}}\n{{end}}" +
		"{{with .Address.Region}}{{loc \"Region\"}}: {{.}}\n{{end}}" +
		"{{with .Address.Postcode}}{{loc \"Postcode\"}}: {{.}}\n{{end}}" +
		"{{with .Address.Country}}{{loc \"Country\"}}: {{.}}\n{{end}}{{end}}"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Permission struct {
		// Allowed values: desktop, consent, granted
		Capability  string `fig:"capability" default:"desktop"`
		ConsentFile string `fig:"consent_file"`
	} `fig:"permission"`

	Location struct {
		// DisableHighAccuracy skips the precise but slow sources (gpsd, WiFi)
		DisableHighAccuracy bool          `fig:"disable_high_accuracy"`
		Timeout             time.Duration `fig:"timeout" default:"15s"`
		MaximumAge          time.Duration `fig:"maximum_age" default:"10s"`
		SettleDelay         time.Duration `fig:"settle_delay" default:"1s"`
	} `fig:"location"`

	GeoLocation struct {
		GeoLocationFile        string `fig:"file"`
		DisableGeoIP           bool   `fig:"disable_geoip"`
		DisableGeoAPI          bool   `fig:"disable_geoapi"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
	} `fig:"geolocation"`

	Shops struct {
		Endpoint string `fig:"endpoint" default:"https://lz4.overpass-api.de/api/interpreter"`
		Amenity  string `fig:"amenity" default:"cafe"`
		// Allowed values: 1 to 50000 (meters)
		Radius uint `fig:"radius" default:"2000"`
	} `fig:"shops"`

	GeoCoder struct {
		Endpoint string `fig:"endpoint" default:"https://nominatim.openstreetmap.org/reverse"`
	} `fig:"geocoder"`

	Intervals struct {
		ShopsRefresh time.Duration `fig:"shops_refresh" default:"15m"`
		Output       time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Server struct {
		Listen string `fig:"listen" default:"127.0.0.1:8089"`
	} `fig:"server"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
		List    string `fig:"list"`
		Detail  string `fig:"detail"`
	} `fig:"templates"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	switch strings.ToLower(c.Permission.Capability) {
	case "desktop", "consent", "granted":
	default:
		return fmt.Errorf("invalid permission capability: %s", c.Permission.Capability)
	}
	if c.Location.Timeout <= 0 {
		return fmt.Errorf("invalid location timeout: %s", c.Location.Timeout)
	}
	if c.Location.MaximumAge < 0 {
		return fmt.Errorf("invalid location maximum age: %s", c.Location.MaximumAge)
	}
	if c.Location.SettleDelay < 0 {
		return fmt.Errorf("invalid location settle delay: %s", c.Location.SettleDelay)
	}
	if c.Shops.Radius < 1 || c.Shops.Radius > 50000 {
		return fmt.Errorf("invalid shop search radius: %d", c.Shops.Radius)
	}
	if c.Shops.Amenity == "" || strings.ContainsAny(c.Shops.Amenity, "\"\\;") {
		return fmt.Errorf("invalid shop amenity: %q", c.Shops.Amenity)
	}
	if c.Intervals.ShopsRefresh <= 0 || c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid intervals: shops refresh %s, output %s", c.Intervals.ShopsRefresh,
			c.Intervals.Output)
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultListTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultListTooltipTpl
	}
	if c.Templates.List == "" {
		c.Templates.List = DefaultListTpl
	}
	if c.Templates.Detail == "" {
		c.Templates.Detail = DefaultDetailTpl
	}

	home, _ := os.UserHomeDir()
	if c.GeoLocation.GeoLocationFile == "" {
		c.GeoLocation.GeoLocationFile = filepath.Join(home, ".config", configDir, "geolocation")
	}
	if c.Permission.ConsentFile == "" {
		c.Permission.ConsentFile = filepath.Join(home, ".config", configDir, "location-consent")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
