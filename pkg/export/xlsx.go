package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

const (
	ResultsSheet = "Results"
	DetailsSheet = "Details"

	// maxCellRunes is the spreadsheet limit for one cell
	maxCellRunes = 32767
	timeLayout   = "2006-01-02 15:04:05"
)

var resultsHeader = []any{"ID", "Keyword", "Title", "Summary", "Source", "URL", "State", "Depth Crawled", "Stored", "Created At", "Updated At"}

var detailsHeader = []any{"ID", "Title", "Content", "Images", "Videos", "Links", "Tokens", "Chunks", "Content Hash", "Crawled At"}

// FileName builds "<label>_<timestamp>.xlsx" from a keyword or other label
func FileName(label string, now time.Time) string {
	if strings.TrimSpace(label) == "" {
		label = "results"
	}
	return fmt.Sprintf("%s_%s.xlsx", utils.SanitizeFilename(label), now.Format("20060102_150405"))
}

// WriteXLSX writes results to path as a workbook with a Results sheet and, for records
// that have one, their depth results on a Details sheet. depth may be nil.
func WriteXLSX(path string, results []models.CrawlResult, depth map[string]*models.DepthCrawlResult) error {
	f := excelize.NewFile()
	defer f.Close()

	for _, sheet := range []string{ResultsSheet, DetailsSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet: %w", err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	resultsIdx, err := f.GetSheetIndex(ResultsSheet)
	if err != nil {
		return fmt.Errorf("locating sheet: %w", err)
	}
	f.SetActiveSheet(resultsIdx)

	if err := writeHeader(f, ResultsSheet, resultsHeader); err != nil {
		return err
	}
	if err := writeHeader(f, DetailsSheet, detailsHeader); err != nil {
		return err
	}

	detailRow := 2
	for i, r := range results {
		row := []any{
			r.ID, r.Keyword, cell(r.Title), cell(r.Summary), r.Source, r.OriginalURL,
			string(r.State()), r.DepthCrawled, r.IsStored,
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		}
		if err := setRow(f, ResultsSheet, i+2, row); err != nil {
			return err
		}

		d := depth[r.ID]
		if d == nil {
			continue
		}
		links := make([]string, 0, len(d.Links))
		for _, l := range d.Links {
			links = append(links, l.Text+" "+l.Href)
		}
		row = []any{
			r.ID, cell(d.Title), cell(d.Content),
			cell(strings.Join(d.Images, "\n")), cell(strings.Join(d.Videos, "\n")), cell(strings.Join(links, "\n")),
			d.TokenCount, d.ChunkCount, d.ContentHash, formatTime(d.UpdatedAt),
		}
		if err := setRow(f, DetailsSheet, detailRow, row); err != nil {
			return err
		}
		detailRow++
	}

	for _, w := range []struct {
		sheet, from, to string
		width           float64
	}{
		{ResultsSheet, "A", "A", 38},
		{ResultsSheet, "C", "D", 50},
		{ResultsSheet, "F", "F", 60},
		{DetailsSheet, "A", "A", 38},
		{DetailsSheet, "B", "C", 60},
	} {
		if err := f.SetColWidth(w.sheet, w.from, w.to, w.width); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook '%s': %w", path, err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []any) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, axis, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func cell(s string) string {
	return utils.TruncateRunes(s, maxCellRunes)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
