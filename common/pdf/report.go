package pdf

import (
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReportRow is one transaction line
type ReportRow struct {
	ID       string
	Date     time.Time
	Customer string
	Event    string
	Status   string
	Amount   string
}

// ReportData is a transaction export
type ReportData struct {
	Title       string
	PeriodLabel string
	Rows        []ReportRow
	Total       string
	GeneratedAt time.Time
}

var reportColumns = []struct {
	title string
	width float64
	align string
}{
	{"ID", 28, "L"},
	{"Date", 32, "L"},
	{"Customer", 60, "L"},
	{"Event", 70, "L"},
	{"Status", 40, "C"},
	{"Amount", 40, "R"},
}

// GenerateTransactionReport renders transactions as a landscape table with a total row
func GenerateTransactionReport(data ReportData) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(data.Title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(data.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	generated := data.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	sub := "Generated " + generated.Format("2006-01-02 15:04")
	if data.PeriodLabel != "" {
		sub = data.PeriodLabel + " | " + sub
	}
	pdf.CellFormat(0, 7, tr(sub), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 236, 245)
		for _, col := range reportColumns {
			pdf.CellFormat(col.width, 8, col.title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for i, r := range data.Rows {
		if pdf.GetY()+7 > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		fill := i%2 == 1
		pdf.SetFillColor(248, 248, 248)
		date := ""
		if !r.Date.IsZero() {
			date = r.Date.Format("2006-01-02")
		}
		values := []string{r.ID, date, r.Customer, r.Event, r.Status, r.Amount}
		for j, col := range reportColumns {
			pdf.CellFormat(col.width, 7, tr(fit(pdf, values[j], col.width-2)), "1", 0, col.align, fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(data.Rows) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(270, 8, "No transactions", "1", 1, "C", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 10)
	var labelWidth float64
	for _, col := range reportColumns[:len(reportColumns)-1] {
		labelWidth += col.width
	}
	pdf.CellFormat(labelWidth, 8, fmt.Sprintf("Total (%d)", len(data.Rows)), "1", 0, "R", false, 0, "")
	pdf.CellFormat(reportColumns[len(reportColumns)-1].width, 8, tr(data.Total), "1", 1, "R", false, 0, "")

	return output(pdf)
}

// fit truncates s with an ellipsis so it fits width mm in the current font
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
