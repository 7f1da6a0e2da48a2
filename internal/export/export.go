// Package export writes a joined layer as GeoJSON, JSON, CSV or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/viewmodel"
)

// Format is an output format.
type Format string

// Supported formats.
const (
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatGeoJSON, FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Columns are the table headers for CSV and XLSX output.
var Columns = []string{"GEOID", "Name", "Total Housing Units", "Vacant Units", "Vacancy Rate (%)"}

// Write renders layer in the given format. Tables list the ranked top-N when
// the layer has one, otherwise every statistic in upstream order.
func Write(w io.Writer, f Format, layer *viewmodel.Layer, ramp *choropleth.Ramp) error {
	switch f {
	case FormatGeoJSON:
		return WriteGeoJSON(w, layer, ramp)
	case FormatJSON:
		return WriteJSON(w, layer)
	case FormatCSV:
		return WriteCSV(w, tableRows(layer))
	case FormatXLSX:
		return WriteXLSX(w, "Vacancy", tableRows(layer))
	}
	return eris.Errorf("export: unknown format %q", f)
}

func tableRows(layer *viewmodel.Layer) []model.AreaStatistic {
	if len(layer.Top) > 0 {
		return layer.Top
	}
	return layer.Stats
}

// WriteGeoJSON writes the layer's features with a per-feature style.
func WriteGeoJSON(w io.Writer, layer *viewmodel.Layer, ramp *choropleth.Ramp) error {
	if ramp == nil {
		ramp = choropleth.DefaultRamp()
	}
	var surface choropleth.GeoJSONSurface
	if err := surface.Render(layer.Features, choropleth.RampStyle(ramp), nil); err != nil {
		return eris.Wrap(err, "export: render geojson")
	}
	data, err := json.Marshal(surface.Last)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

// WriteJSON writes the statistics, summary and ranking without geometry.
func WriteJSON(w io.Writer, layer *viewmodel.Layer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(struct {
		Summary *model.AreaStatistic  `json:"summary,omitempty"`
		Top     []model.AreaStatistic `json:"top"`
		Stats   []model.AreaStatistic `json:"stats"`
	}{layer.Summary, layer.Top, layer.Stats})
	return eris.Wrap(err, "export: encode json")
}

// WriteCSV writes stats as a CSV table with a header row.
func WriteCSV(w io.Writer, stats []model.AreaStatistic) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, s := range stats {
		row := []string{
			s.GEOID,
			s.Name,
			strconv.FormatInt(s.TotalHousingUnits, 10),
			strconv.FormatInt(s.VacantUnits, 10),
			s.VacancyRatePercent,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes stats as a single-sheet workbook.
func WriteXLSX(w io.Writer, sheetName string, stats []model.AreaStatistic) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}
	for _, s := range stats {
		row := sheet.AddRow()
		row.AddCell().SetString(s.GEOID)
		row.AddCell().SetString(s.Name)
		row.AddCell().SetInt64(s.TotalHousingUnits)
		row.AddCell().SetInt64(s.VacantUnits)
		row.AddCell().SetString(s.VacancyRatePercent)
	}

	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
