package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

// PDFContracts renders a one-page rental contract.
type PDFContracts struct {
	Title string
}

func (g PDFContracts) GenerateContract(_ context.Context, p rentals.RentalConfirmedPayload) ([]byte, error) {
	title := g.Title
	if title == "" {
		title = "Equipment Rental Agreement"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Rental %s", p.RentalID), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Customer", "1", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(95, 7, fmt.Sprintf("Name: %s", p.CustomerName), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Email: %s", p.CustomerEmail), "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("From: %s", p.Start.Format("02-Jan-2006 15:04")), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("To: %s", p.End.Format("02-Jan-2006 15:04")), "RB", 1, "L", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 7, "Product", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 7, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 7, "Unit price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 7, "Periods", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 7, "Subtotal", "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, it := range p.Items {
		pdf.CellFormat(70, 6, it.ProductID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprint(it.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, it.UnitPrice, "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprint(it.Periods), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, it.Subtotal, "1", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(155, 7, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, fmt.Sprintf("%s %s", p.Total, p.Currency), "", 1, "R", false, 0, "")
	pdf.CellFormat(155, 7, "Deposit paid", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, fmt.Sprintf("%s %s", p.Deposit, p.Currency), "", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(190, 6, fmt.Sprintf("Payment reference: %s", p.PaymentRef), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render contract: %w", err)
	}
	return buf.Bytes(), nil
}
