// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package template

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"
	"golang.org/x/text/language"

	"github.com/wneessen/location-picker/internal/geocode"
)

// SelectionView is the data the selection template is rendered with.
type SelectionView struct {
	Latitude   float64
	Longitude  float64
	Address    string
	Details    geocode.Address
	Resolved   bool
	Source     string
	ResolvedAt time.Time
}

type Templates struct {
	Selection *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

var i18nVars = map[string]localize.MsgID{
	"address":     "Address",
	"coordinates": "Coordinates",
	"resolvedat":  "Resolved at",
	"device":      "Current location",
	"map":         "Selected on map",
	"unavailable": "Address unavailable",
}

func New(selectionTpl string, loc *spreak.Localizer, lang language.Tag) (*Templates, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	tpls := &Templates{
		localizer: loc,
		humanizer: collection.CreateHumanizer(lang),
	}

	tpl, err := template.New("selection").Funcs(tpls.templateFuncMap()).Parse(selectionTpl)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse selection template: %w", err)
	}
	tpls.Selection = tpl

	return tpls, nil
}

// RenderSelection executes the selection template for view.
func (t *Templates) RenderSelection(view SelectionView) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := t.Selection.Execute(buf, view); err != nil {
		return "", fmt.Errorf("failed to render selection template: %w", err)
	}
	return buf.String(), nil
}

func (t *Templates) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    timeFormat,
		"localizedTime": t.localizedTime,
		"floatFormat":   floatFormat,
		"loc":           t.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (t *Templates) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return t.localizer.Get(raw)
	}
	return val
}

func (t *Templates) localizedTime(val time.Time) string {
	return t.humanizer.FormatTime(val, humanize.TimeFormat)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}
