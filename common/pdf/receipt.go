package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptData holds what the booking receipt shows
type ReceiptData struct {
	BookingID      string
	EventName      string
	EventStart     time.Time
	EventEnd       time.Time
	Location       string
	CustomerName   string
	CustomerEmail  string
	Seats          []string
	PaymentStatus  string
	Total          string // already formatted with currency
	IssuedAt       time.Time
	QRCodePngBytes []byte // PNG, not base64
}

// GenerateReceipt renders a one-page booking receipt with the QR code on top
func GenerateReceipt(data ReceiptData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Booking "+data.BookingID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, "Booking receipt", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	if len(data.QRCodePngBytes) > 0 {
		imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
		imgName := "qr_" + data.BookingID
		pdf.RegisterImageOptionsReader(imgName, imgOpts, bytes.NewReader(data.QRCodePngBytes))
		qrX := (210.0 - 70.0) / 2
		pdf.ImageOptions(imgName, qrX, pdf.GetY(), 70, 70, false, imgOpts, 0, "")
		pdf.Ln(74)
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.5)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(6)

	row := func(label, value string) {
		pdf.SetX(20)
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(45, 9, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "B", 12)
		pdf.MultiCell(125, 9, tr(value), "", "L", false)
	}

	row("Event:", data.EventName)
	row("When:", formatRange(data.EventStart, data.EventEnd))
	if data.Location != "" {
		row("Location:", data.Location)
	}
	row("Customer:", data.CustomerName)
	if data.CustomerEmail != "" {
		row("Email:", data.CustomerEmail)
	}
	if len(data.Seats) > 0 {
		row("Seats:", joinSeats(data.Seats))
	}
	row("Payment:", data.PaymentStatus)
	pdf.Ln(2)

	pdf.SetX(20)
	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(45, 12, "Total:", "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(125, 12, tr(data.Total), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "I", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, fmt.Sprintf("Booking reference: %s", data.BookingID), "", 1, "C", false, 0, "")
	issued := data.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	pdf.CellFormat(0, 8, "Issued "+issued.Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")

	return output(pdf)
}

func formatRange(start, end time.Time) string {
	if start.IsZero() {
		return "-"
	}
	s := start.Format("January 2, 2006 3:04PM")
	if end.IsZero() {
		return s
	}
	if end.YearDay() == start.YearDay() && end.Year() == start.Year() {
		return s + " - " + end.Format("3:04PM")
	}
	return s + " - " + end.Format("January 2, 2006 3:04PM")
}

func joinSeats(seats []string) string {
	var buf bytes.Buffer
	for i, s := range seats {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(s)
	}
	return buf.String()
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}
