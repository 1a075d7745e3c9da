package pdf

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/event-admin-services/common/qrcode"
)

func TestGenerateReceipt(t *testing.T) {
	qr, err := qrcode.PNG(qrcode.BookingContent("b-7"), qrcode.SizeSmall)
	require.NoError(t, err)

	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	out, err := GenerateReceipt(ReceiptData{
		BookingID:      "b-7",
		EventName:      "Café Jazz Night",
		EventStart:     start,
		EventEnd:       start.Add(3 * time.Hour),
		Location:       "Main Hall",
		CustomerName:   "Alex Nguyen",
		Seats:          []string{"A1", "A2"},
		PaymentStatus:  "PAID",
		Total:          "$40.00",
		QRCodePngBytes: qr,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestGenerateTransactionReportPaginates(t *testing.T) {
	rows := make([]ReportRow, 60)
	for i := range rows {
		rows[i] = ReportRow{
			ID:       fmt.Sprintf("t-%d", i),
			Date:     time.Date(2026, 1, 1+i%28, 0, 0, 0, 0, time.UTC),
			Customer: "A customer with a rather long name that will not fit",
			Event:    "Event",
			Status:   "SUCCESS",
			Amount:   "10.00",
		}
	}
	out, err := GenerateTransactionReport(ReportData{Title: "Transactions", Rows: rows, Total: "600.00"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestGenerateTransactionReportEmpty(t *testing.T) {
	out, err := GenerateTransactionReport(ReportData{Title: "Transactions", Total: "0.00"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestFormatRange(t *testing.T) {
	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, "March 14, 2026 7:00PM - 10:00PM", formatRange(start, start.Add(3*time.Hour)))
	assert.Equal(t, "-", formatRange(time.Time{}, time.Time{}))
}
