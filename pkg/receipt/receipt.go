// Package receipt renders single-payment PDF receipts.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
)

// Data is everything printed on a receipt. Amounts are preformatted with two decimals.
type Data struct {
	BookingID   string
	PaymentID   string
	Customer    string
	Mobile      string
	PackageName string

	Amount      string
	Method      string
	Status      string
	PaymentDate time.Time
	Note        string

	TotalCost     string
	TotalPaid     string
	Remaining     string
	LedgerStatus  string
	GeneratedAt   time.Time
	RecordedBy    string
}

// Failed reports whether the payment is printed with the FAILED marker
func (d Data) Failed() bool {
	return strings.EqualFold(d.Status, "FAILED")
}

// Render builds the PDF and returns it with a download filename
func Render(d Data) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment Receipt", false)
	pdf.SetCreator("tourdesk-ledger", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "PAYMENT RECEIPT")
	pdf.Ln(12)

	if d.Failed() {
		pdf.SetTextColor(200, 0, 0)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 8, "FAILED - this payment does not count towards the balance")
		pdf.Ln(10)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetFont("Helvetica", "", 11)
	line := func(label, value string) {
		pdf.Cell(0, 7, fmt.Sprintf("%-14s: %s", label, safe(value, "-")))
		pdf.Ln(7)
	}

	line("Receipt No", receiptNumber(d.PaymentID))
	line("Issued", d.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Received from:")
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "", 11)
	line("Name", d.Customer)
	line("Mobile", d.Mobile)
	line("Tour package", d.PackageName)
	line("Booking", d.BookingID)
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Payment:")
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "", 11)
	line("Amount", "Rs. "+d.Amount)
	line("Method", d.Method)
	line("Status", d.Status)
	line("Date", d.PaymentDate.Format("2006-01-02"))
	if d.Note != "" {
		pdf.MultiCell(0, 6, "Note: "+d.Note, "", "", false)
		pdf.Ln(1)
	}
	if d.RecordedBy != "" {
		line("Recorded by", d.RecordedBy)
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Booking balance:")
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "", 11)
	line("Total cost", "Rs. "+d.TotalCost)
	line("Total paid", "Rs. "+d.TotalPaid)
	line("Remaining", "Rs. "+d.Remaining)
	line("Status", d.LedgerStatus)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "This is a computer generated receipt and does not require a signature.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to render receipt: %w", err)
	}

	return buf.Bytes(), fmt.Sprintf("receipt-%s.pdf", receiptNumber(d.PaymentID)), nil
}

// receiptNumber is the first block of the payment id, upper-cased
func receiptNumber(paymentID string) string {
	head, _, _ := strings.Cut(paymentID, "-")
	if head == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(head)
}

func safe(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
