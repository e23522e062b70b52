package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"teamflow/internal/models"
)

type ProjectReport struct {
	Project     models.ProjectWithStats
	Tasks       []models.Task
	GeneratedAt time.Time
}

// ReportGenerator renders project reports. Without a FontPath the core
// Helvetica font is used, which only covers Latin-1 text.
type ReportGenerator struct {
	FontPath string // путь до TTF с CJK/кириллицей, например "assets/fonts/NotoSansJP.ttf"
	fontName string
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	name := "Helvetica"
	if fontPath != "" {
		name = "ReportFont"
	}
	return &ReportGenerator{FontPath: fontPath, fontName: name}
}

func (g *ReportGenerator) RenderProject(r ProjectReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Project report: "+r.Project.Name, true)
	pdf.SetAuthor("TeamFlow", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	if g.FontPath != "" {
		pdf.AddUTF8Font(g.fontName, "", g.FontPath)
		pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	}
	tr := g.translator(pdf)
	pdf.AddPage()

	// ===== Header
	pdf.SetFont(g.fontName, "B", 18)
	pdf.CellFormat(0, 10, tr(r.Project.Name), "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 6, "Generated "+r.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	g.hr(pdf)

	if r.Project.Description != "" {
		pdf.SetFont(g.fontName, "", 11)
		pdf.MultiCell(0, 6, tr(r.Project.Description), "", "L", false)
		pdf.Ln(2)
	}

	// ===== Summary
	g.sectionTitle(pdf, "Summary")
	g.kvLine(pdf, "Color", r.Project.Color)
	g.kvLine(pdf, "Schedule", tr(formatRange(r.Project.StartDate, r.Project.EndDate)))
	g.kvLine(pdf, "Tasks", fmt.Sprintf("%d", r.Project.TotalTasks))
	g.kvLine(pdf, "Completed", fmt.Sprintf("%d (%d%%)", r.Project.TaskStats.Completed, r.Project.TaskProgress))
	g.kvLine(pdf, "In progress", fmt.Sprintf("%d", r.Project.TaskStats.InProgress))
	g.kvLine(pdf, "In review", fmt.Sprintf("%d", r.Project.TaskStats.Review))
	g.kvLine(pdf, "Not started", fmt.Sprintf("%d", r.Project.TaskStats.NotStarted))
	g.kvLine(pdf, "Time elapsed", fmt.Sprintf("%d%%", r.Project.DateProgress))
	g.hr(pdf)

	// ===== Tasks
	g.sectionTitle(pdf, "Tasks")
	if len(r.Tasks) == 0 {
		pdf.CellFormat(0, 6, "No tasks.", "", 1, "L", false, 0, "")
	}
	pdf.SetFont(g.fontName, "", 10)
	for _, t := range r.Tasks {
		assignee := t.AssigneeID
		if t.Assignee != nil {
			assignee = t.Assignee.Name
		}
		line := fmt.Sprintf("%s  [%s / %s]  %d%%  %s", t.Title, t.Status, t.Priority, t.Progress, assignee)
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
	}

	// ===== Page numbers
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render project report: %w", err)
	}
	return buf.Bytes(), nil
}

// translator maps UTF-8 to the core font code page when no TTF is loaded.
func (g *ReportGenerator) translator(pdf *gofpdf.Fpdf) func(string) string {
	if g.FontPath != "" {
		return func(s string) string { return s }
	}
	return pdf.UnicodeTranslatorFromDescriptor("")
}

func (g *ReportGenerator) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
}

func (g *ReportGenerator) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *ReportGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}

func formatRange(start, end *time.Time) string {
	f := func(t *time.Time) string {
		if t == nil {
			return "—"
		}
		return t.Format("2006-01-02")
	}
	return f(start) + " – " + f(end)
}
