// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package i18n provides the message catalogs used for user facing texts.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// New returns a Localizer for the given locale string. An empty or POSIX locale triggers
// detection from the environment, English is used if nothing usable is found.
func New(loc string) (*spreak.Localizer, error) {
	tag := Tag(loc)

	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// Tag resolves a locale string into a language tag.
func Tag(loc string) language.Tag {
	switch strings.ToUpper(loc) {
	case "", "C", "POSIX":
		tag, err := locale.Detect()
		if err != nil || tag == language.Und {
			return language.English
		}
		return tag
	}
	tag, err := language.Parse(loc)
	if err != nil {
		return language.English
	}
	return tag
}
