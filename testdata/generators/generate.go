package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// buyerState is the state code of the recipient; suppliers in the same state
// charge CGST and SGST, everyone else charges IGST.
const buyerState = "29"

var returnHeaders = []string{
	"GSTIN of supplier", "Trade/Legal name", "Invoice number", "Invoice Date",
	"Central Tax(₹)", "State/UT Tax(₹)", "Integrated Tax(₹)",
}

var invoiceHeaders = []string{
	"invoice_number", "supplier_gstin", "invoice_date", "cgst", "sgst", "igst",
}

// Supplier is a GST-registered vendor
type Supplier struct {
	GSTIN string
	Name  string
}

// DatasetGenerator generates a purchase register and the matching GSTR-2B
type DatasetGenerator struct {
	Count        int
	Suppliers    int
	Period       time.Time
	MinTax       decimal.Decimal
	MaxTax       decimal.Decimal
	MissingRate  float64 // share of invoices the supplier never reported
	MismatchRate float64 // share of reported invoices with a different tax amount
	ExtraRate    float64 // share of GSTR-2B rows with no register entry
	Seed         int64

	rng *rand.Rand
}

// InvoiceRow is one generated invoice, as booked and as reported
type InvoiceRow struct {
	Number   string
	Supplier Supplier
	Date     time.Time
	CGST     decimal.Decimal
	SGST     decimal.Decimal
	IGST     decimal.Decimal
}

// Dataset holds the generated register and return
type Dataset struct {
	Invoices   []InvoiceRow
	Returns    []InvoiceRow
	Missing    int
	Mismatched int
	Extra      int
}

func main() {
	var (
		outputDir    = flag.String("output-dir", ".", "Directory for invoices.csv and gstr2b.csv")
		count        = flag.Int("count", 100, "Number of register invoices to generate")
		suppliers    = flag.Int("suppliers", 10, "Number of distinct suppliers")
		period       = flag.String("period", "042024", "Return period (MMYYYY)")
		minTax       = flag.Float64("min-tax", 10.00, "Minimum tax per invoice")
		maxTax       = flag.Float64("max-tax", 50000.00, "Maximum tax per invoice")
		missingRate  = flag.Float64("missing-rate", 0.1, "Share of invoices absent from GSTR-2B (0.0-1.0)")
		mismatchRate = flag.Float64("mismatch-rate", 0.1, "Share of reported invoices with a different amount (0.0-1.0)")
		extraRate    = flag.Float64("extra-rate", 0.05, "Share of GSTR-2B rows with no register entry (0.0-1.0)")
		seed         = flag.Int64("seed", 1, "Random seed; the same seed yields the same files")
		xlsx         = flag.Bool("xlsx", false, "Also write the return as gstr2b.xlsx with a B2B sheet")
	)
	flag.Parse()

	periodStart, err := time.Parse("012006", *period)
	if err != nil {
		log.Fatalf("Invalid period: %v", err)
	}

	for name, rate := range map[string]float64{
		"missing-rate": *missingRate, "mismatch-rate": *mismatchRate, "extra-rate": *extraRate,
	} {
		if rate < 0 || rate > 1 {
			log.Fatalf("%s must be between 0.0 and 1.0", name)
		}
	}
	if *count <= 0 || *suppliers <= 0 {
		log.Fatal("count and suppliers must be positive")
	}
	if *minTax <= 0 || *maxTax < *minTax {
		log.Fatal("min-tax must be positive and no greater than max-tax")
	}

	generator := &DatasetGenerator{
		Count:        *count,
		Suppliers:    *suppliers,
		Period:       periodStart,
		MinTax:       decimal.NewFromFloat(*minTax),
		MaxTax:       decimal.NewFromFloat(*maxTax),
		MissingRate:  *missingRate,
		MismatchRate: *mismatchRate,
		ExtraRate:    *extraRate,
		Seed:         *seed,
	}

	dataset := generator.Generate()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	invoicesPath := filepath.Join(*outputDir, "invoices.csv")
	if err := writeCSV(invoicesPath, invoiceHeaders, dataset.Invoices, invoiceRecord); err != nil {
		log.Fatalf("Failed to write invoices: %v", err)
	}

	returnsPath := filepath.Join(*outputDir, "gstr2b.csv")
	if err := writeCSV(returnsPath, returnHeaders, dataset.Returns, returnRecord); err != nil {
		log.Fatalf("Failed to write GSTR-2B: %v", err)
	}

	if *xlsx {
		if err := writeXLSX(filepath.Join(*outputDir, "gstr2b.xlsx"), dataset.Returns); err != nil {
			log.Fatalf("Failed to write GSTR-2B workbook: %v", err)
		}
	}

	fmt.Printf("Generated %d invoices and %d GSTR-2B records for period %s\n",
		len(dataset.Invoices), len(dataset.Returns), *period)
	fmt.Printf("  Not reported by supplier: %d\n", dataset.Missing)
	fmt.Printf("  Amount mismatches:        %d\n", dataset.Mismatched)
	fmt.Printf("  Only in GSTR-2B:          %d\n", dataset.Extra)
	fmt.Printf("  Seed:                     %d\n", generator.Seed)
}

// Generate builds the register and the return from the generator's seed
func (g *DatasetGenerator) Generate() *Dataset {
	g.rng = rand.New(rand.NewSource(g.Seed))

	suppliers := make([]Supplier, g.Suppliers)
	for i := range suppliers {
		suppliers[i] = g.supplier(i)
	}

	dataset := &Dataset{}
	for i := 0; i < g.Count; i++ {
		inv := g.invoice(i, suppliers[g.rng.Intn(len(suppliers))])
		dataset.Invoices = append(dataset.Invoices, inv)

		switch {
		case g.rng.Float64() < g.MissingRate:
			dataset.Missing++
		case g.rng.Float64() < g.MismatchRate:
			dataset.Returns = append(dataset.Returns, g.mismatch(inv))
			dataset.Mismatched++
		default:
			dataset.Returns = append(dataset.Returns, inv)
		}
	}

	extra := int(float64(g.Count) * g.ExtraRate)
	for i := 0; i < extra; i++ {
		dataset.Returns = append(dataset.Returns, g.invoice(g.Count+i, suppliers[g.rng.Intn(len(suppliers))]))
		dataset.Extra++
	}

	g.rng.Shuffle(len(dataset.Returns), func(i, j int) {
		dataset.Returns[i], dataset.Returns[j] = dataset.Returns[j], dataset.Returns[i]
	})

	return dataset
}

// supplier builds a structurally plausible GSTIN: state code, PAN, entity
// number, the fixed Z and a check character.
func (g *DatasetGenerator) supplier(index int) Supplier {
	states := []string{buyerState, "27", "07", "33", "24"}
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	pan := make([]byte, 10)
	for i := 0; i < 5; i++ {
		pan[i] = letters[g.rng.Intn(len(letters))]
	}
	for i := 5; i < 9; i++ {
		pan[i] = byte('0' + g.rng.Intn(10))
	}
	pan[9] = letters[g.rng.Intn(len(letters))]

	return Supplier{
		GSTIN: fmt.Sprintf("%s%s1Z%c", states[g.rng.Intn(len(states))], pan, letters[g.rng.Intn(len(letters))]),
		Name:  fmt.Sprintf("Supplier %03d Pvt Ltd", index+1),
	}
}

func (g *DatasetGenerator) invoice(index int, supplier Supplier) InvoiceRow {
	days := g.Period.AddDate(0, 1, -1).Day()
	inv := InvoiceRow{
		Number:   fmt.Sprintf("INV-%s-%05d", g.Period.Format("0106"), index+1),
		Supplier: supplier,
		Date:     g.Period.AddDate(0, 0, g.rng.Intn(days)),
	}

	tax := g.amount()
	if supplier.GSTIN[:2] == buyerState {
		half := tax.Div(decimal.NewFromInt(2)).Round(2)
		inv.CGST = half
		inv.SGST = half
		inv.IGST = decimal.Zero
	} else {
		inv.CGST = decimal.Zero
		inv.SGST = decimal.Zero
		inv.IGST = tax
	}
	return inv
}

func (g *DatasetGenerator) amount() decimal.Decimal {
	spread := g.MaxTax.Sub(g.MinTax)
	return g.MinTax.Add(spread.Mul(decimal.NewFromFloat(g.rng.Float64()))).Round(2)
}

// mismatch returns the invoice as a supplier might misreport it, with the
// tax off by up to a quarter in either direction.
func (g *DatasetGenerator) mismatch(inv InvoiceRow) InvoiceRow {
	factor := decimal.NewFromFloat(0.75 + g.rng.Float64()*0.5).Round(2)
	if factor.Equal(decimal.NewFromInt(1)) {
		factor = decimal.NewFromFloat(1.05)
	}

	reported := inv
	reported.CGST = inv.CGST.Mul(factor).Round(2)
	reported.SGST = inv.SGST.Mul(factor).Round(2)
	reported.IGST = inv.IGST.Mul(factor).Round(2)
	return reported
}

func invoiceRecord(inv InvoiceRow) []string {
	return []string{
		inv.Number,
		inv.Supplier.GSTIN,
		inv.Date.Format("2006-01-02"),
		inv.CGST.StringFixed(2),
		inv.SGST.StringFixed(2),
		inv.IGST.StringFixed(2),
	}
}

func returnRecord(inv InvoiceRow) []string {
	return []string{
		inv.Supplier.GSTIN,
		inv.Supplier.Name,
		inv.Number,
		inv.Date.Format("02-01-2006"),
		inv.CGST.StringFixed(2),
		inv.SGST.StringFixed(2),
		inv.IGST.StringFixed(2),
	}
}

func writeCSV(path string, headers []string, rows []InvoiceRow, record func(InvoiceRow) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(record(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeXLSX lays the return out the way the portal download does: a title
// row above the headers on a B2B sheet.
func writeXLSX(path string, rows []InvoiceRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "B2B"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "A1", "Taxable inward supplies received from registered persons"); err != nil {
		return err
	}

	for col, header := range returnHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 2)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		values := make([]interface{}, 0, len(returnHeaders))
		for _, v := range returnRecord(row) {
			values = append(values, v)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}
