// Package qrcode renders booking references as QR images for receipts and
// the booking detail view.
package qrcode

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Sizes in pixels
const (
	SizeSmall    = 150
	SizeStandard = 300
	SizeLarge    = 500
)

// PNG encodes text as a QR code PNG with medium error correction
func PNG(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("qr content is empty")
	}
	if size <= 0 {
		size = SizeStandard
	}

	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR to PNG: %w", err)
	}
	return png, nil
}

// DataURI returns the QR code as "data:image/png;base64,..." for direct use in <img src>
func DataURI(text string, size int) (string, error) {
	png, err := PNG(text, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// BookingContent is what the check-in scanner reads for a booking.
// Only the public reference is embedded.
func BookingContent(bookingID string) string {
	return "BOOKING:" + bookingID
}
