// Package exportsvc renders report cards as PDF documents and ZIP archives.
package exportsvc

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/grading"
	"github.com/reportcardpro/backend/core/report"
)

// page geometry, in mm
const (
	margin     = 15.0
	bodyWidth  = 210 - 2*margin
	lineHeight = 5.0

	subjectWidth = 60.0
	termWidth    = (bodyWidth - subjectWidth) / 3
)

// School identifies the issuer printed on the cards.
type School struct {
	Name     string
	Province string
}

type Exporter struct {
	appName   string
	closesOn  string
	reopensOn string
	workers   int
	compress  bool
	now       func() time.Time
	logger    core.Logger
}

func NewExporter(conf *core.Config, logger core.Logger) *Exporter {
	return &Exporter{
		appName:   conf.AppName,
		closesOn:  conf.Report.SchoolClosesOn,
		reopensOn: conf.Report.SchoolReopensOn,
		workers:   4,
		compress:  true,
		now:       time.Now,
		logger:    logger,
	}
}

// CardFileName returns the download name of a student's card.
func CardFileName(s report.StudentRecord) string {
	return "report-card-" + strings.Join(strings.Fields(s.Name), "_") + ".pdf"
}

// RenderCard writes the PDF report card of s to w.
func (e *Exporter) RenderCard(w io.Writer, school School, s report.StudentRecord) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(e.compress)
	pdf.SetCreationDate(e.now())
	pdf.SetCreator(e.appName, true)
	pdf.SetTitle(CardFileName(s), true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()

	c := card{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	c.header(school, s)
	c.learner(s)
	c.performance(s)
	c.attendance()
	c.comments(s)
	c.datesAndSignatures(e.closesOn, e.reopensOn)
	c.guidelines()
	c.codingSystem()

	if err := pdf.Error(); err != nil {
		return errors.Wrap(err, "rendering report card")
	}
	return errors.Wrap(pdf.Output(w), "writing report card")
}

type card struct {
	pdf *fpdf.Fpdf
	tr  func(string) string // UTF-8 to the core fonts' code page
}

func (c card) font(style string, size float64) {
	c.pdf.SetFont("Helvetica", style, size)
}

func (c card) cell(w float64, txt, border, align string, fill bool, ln int) {
	c.pdf.CellFormat(w, lineHeight, c.tr(txt), border, ln, align, fill, 0, "")
}

func (c card) header(school School, s report.StudentRecord) {
	province := school.Province
	if province == "" {
		province = "Provincial"
	}
	c.font("B", 10)
	c.cell(bodyWidth/2, province+" Government", "", "L", false, 0)
	c.font("B", 11)
	c.cell(bodyWidth/2, strings.ToUpper(school.Name), "", "R", false, 1)
	c.font("", 8)
	c.cell(bodyWidth, "Education", "", "L", false, 1)
	c.pdf.Ln(3)

	c.font("B", 11)
	c.cell(bodyWidth, fmt.Sprintf("%d TERM %s REPORT CARD: GRADE %s", s.Year, s.Term, s.GradeLevel), "", "L", false, 1)
	c.pdf.Ln(2)
}

func (c card) learner(s report.StudentRecord) {
	for _, f := range [][2]string{
		{"Date issued:", s.DateIssued},
		{"Surname & Name of Learner:", s.Name},
		{"Learner Cemis No:", s.LearnerID},
	} {
		c.font("B", 9)
		c.cell(50, f[0], "", "L", false, 0)
		c.font("", 9)
		c.cell(bodyWidth-50, f[1], "", "L", false, 1)
	}
	c.pdf.Ln(2)
}

// performance prints the subject table. Only the current term is filled.
func (c card) performance(s report.StudentRecord) {
	c.pdf.SetFillColor(220, 220, 220)
	c.font("B", 8)
	c.cell(bodyWidth, "LEARNER PERFORMANCE", "1", "C", true, 1)
	c.cell(subjectWidth, "SUBJECTS", "LTR", "L", true, 0)
	for term := 1; term <= 3; term++ {
		c.cell(termWidth, fmt.Sprintf("TERM %d", term), "1", "C", true, 0)
	}
	c.pdf.Ln(-1)
	c.cell(subjectWidth, "", "LBR", "L", true, 0)
	for term := 1; term <= 3; term++ {
		c.cell(termWidth/2, "%", "1", "C", true, 0)
		c.cell(termWidth/2, "Code", "1", "C", true, 0)
	}
	c.pdf.Ln(-1)

	current := termColumn(s.Term)
	c.font("", 8)
	for _, sub := range s.Subjects {
		c.cell(subjectWidth, sub.Name, "1", "L", false, 0)
		for term := 1; term <= 3; term++ {
			var score, code string
			if term == current {
				score, code = formatScore(sub)
			}
			c.cell(termWidth/2, score, "1", "C", false, 0)
			c.cell(termWidth/2, code, "1", "C", false, 0)
		}
		c.pdf.Ln(-1)
	}
	c.pdf.Ln(2)
}

// termColumn returns the column of term, defaulting to the last one.
func termColumn(term string) int {
	switch strings.TrimSpace(term) {
	case "1":
		return 1
	case "2":
		return 2
	}
	return 3
}

// formatScore leaves the code cell blank for code 0. A missing score prints as 0.
func formatScore(sub report.Subject) (score, code string) {
	score = fmt.Sprint(sub.Value())
	if cd := sub.Code(); cd != 0 {
		code = fmt.Sprint(cd)
	}
	return score, code
}

func (c card) attendance() {
	c.font("", 8)
	c.cell(subjectWidth, "Days Absent", "1", "L", false, 0)
	for term := 1; term <= 3; term++ {
		c.cell(termWidth, "", "1", "C", false, 0)
	}
	c.pdf.Ln(-1)
	c.pdf.Ln(2)
}

func (c card) comments(s report.StudentRecord) {
	c.font("B", 8)
	c.cell(bodyWidth, fmt.Sprintf("TERM %s COMMENTS", s.Term), "LTR", "L", false, 1)
	c.font("", 8)
	c.pdf.MultiCell(bodyWidth, lineHeight, c.tr(s.Comments), "LBR", "L", false)
	c.pdf.Ln(2)
}

func (c card) datesAndSignatures(closesOn, reopensOn string) {
	left := [][2]string{
		{"School closes on:", closesOn},
		{"School re-opens on:", reopensOn},
		{"", ""},
	}
	right := []string{"Teacher:", "Principal:", "Parent / Guardian:"}
	const dots = "............................................"

	for i := range right {
		c.font("B", 8)
		c.cell(30, left[i][0], "", "L", false, 0)
		c.font("", 8)
		c.cell(bodyWidth/2-30, left[i][1], "", "L", false, 0)
		c.font("B", 8)
		c.cell(30, right[i], "", "L", false, 0)
		c.font("", 8)
		c.cell(bodyWidth/2-30, dots, "", "L", false, 1)
	}
	c.pdf.Ln(2)
}

func levelText(code int) string {
	for _, band := range grading.Scale {
		if band.Code == code {
			return fmt.Sprintf("Level %d (%d-%d%%)", band.Code, band.Min, band.Max)
		}
	}
	return ""
}

func (c card) guidelines() {
	c.font("B", 8)
	c.cell(bodyWidth, "MINIMUM PROGRESSION GUIDELINES FOR GRADES 4-6", "1", "C", true, 1)
	c.font("", 8)
	for _, g := range []struct {
		subject string
		level   int
	}{
		{"Home Language", 4},
		{"First Additional Language", 3},
		{"Mathematics", 3},
		{"Any 2 (two) other subjects", 3},
	} {
		c.cell(subjectWidth+termWidth, g.subject, "1", "L", false, 0)
		c.cell(termWidth/2, "AND", "1", "C", false, 0)
		c.cell(bodyWidth-subjectWidth-1.5*termWidth, levelText(g.level), "1", "L", false, 1)
	}
	c.pdf.Ln(2)
}

func (c card) codingSystem() {
	const codeWidth, pctWidth = 30.0, 40.0
	descWidth := bodyWidth - codeWidth - pctWidth

	c.font("B", 8)
	c.cell(bodyWidth, "NATIONAL CODING SYSTEM GRADES 4-6", "1", "C", true, 1)
	c.cell(codeWidth, "RATING CODE", "1", "C", true, 0)
	c.cell(descWidth, "DESCRIPTION OF COMPETENCE", "1", "L", true, 0)
	c.cell(pctWidth, "PERCENTAGE", "1", "C", true, 1)
	c.font("", 8)
	for _, band := range grading.Scale {
		c.cell(codeWidth, fmt.Sprint(band.Code), "1", "C", false, 0)
		c.cell(descWidth, band.Description, "1", "L", false, 0)
		c.cell(pctWidth, fmt.Sprintf("%d - %d%%", band.Min, band.Max), "1", "C", false, 1)
	}
}
