package parsers

import (
	"fmt"
	"strings"
)

// Logical column names shared by invoice and return files
const (
	ColumnInvoiceNumber = "invoice_number"
	ColumnSupplierGSTIN = "supplier_gstin"
	ColumnSupplierName  = "supplier_name"
	ColumnInvoiceDate   = "invoice_date"
	ColumnReturnPeriod  = "return_period"
	ColumnCGST          = "cgst"
	ColumnSGST          = "sgst"
	ColumnIGST          = "igst"
)

// InvoiceParserConfig holds configuration for parsing invoice registers
type InvoiceParserConfig struct {
	InvoiceNumberColumn string              `json:"invoice_number_column" mapstructure:"invoice_number_column"`
	SupplierGSTINColumn string              `json:"supplier_gstin_column" mapstructure:"supplier_gstin_column"`
	InvoiceDateColumn   string              `json:"invoice_date_column" mapstructure:"invoice_date_column"`
	CGSTColumn          string              `json:"cgst_column" mapstructure:"cgst_column"`
	SGSTColumn          string              `json:"sgst_column" mapstructure:"sgst_column"`
	IGSTColumn          string              `json:"igst_column" mapstructure:"igst_column"`
	DateFormat          string              `json:"date_format" mapstructure:"date_format"`
	HasHeader           bool                `json:"has_header" mapstructure:"has_header"`
	Delimiter           rune                `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases       map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultInvoiceParserConfig returns a configuration with standard defaults
func DefaultInvoiceParserConfig() *InvoiceParserConfig {
	return &InvoiceParserConfig{
		InvoiceNumberColumn: ColumnInvoiceNumber,
		SupplierGSTINColumn: ColumnSupplierGSTIN,
		InvoiceDateColumn:   ColumnInvoiceDate,
		CGSTColumn:          ColumnCGST,
		SGSTColumn:          ColumnSGST,
		IGSTColumn:          ColumnIGST,
		HasHeader:           true,
		Delimiter:           ',',
		ColumnAliases: map[string][]string{
			ColumnInvoiceNumber: {"Invoice No", "Invoice Number", "Bill No"},
			ColumnSupplierGSTIN: {"GSTIN", "Supplier GSTIN", "GSTIN of supplier"},
			ColumnInvoiceDate:   {"Invoice Date", "Date", "Bill Date"},
			ColumnCGST:          {"Central Tax", "CGST Amount"},
			ColumnSGST:          {"State/UT Tax", "SGST Amount"},
			ColumnIGST:          {"Integrated Tax", "IGST Amount"},
		},
	}
}

// Validate checks if the invoice parser configuration is valid
func (c *InvoiceParserConfig) Validate() error {
	if strings.TrimSpace(c.InvoiceNumberColumn) == "" {
		return fmt.Errorf("invoice number column cannot be empty")
	}

	if strings.TrimSpace(c.SupplierGSTINColumn) == "" {
		return fmt.Errorf("supplier GSTIN column cannot be empty")
	}

	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	return nil
}

// GetColumnName returns the configured header of a logical column
func (c *InvoiceParserConfig) GetColumnName(standardName string) string {
	switch standardName {
	case ColumnInvoiceNumber:
		return c.InvoiceNumberColumn
	case ColumnSupplierGSTIN:
		return c.SupplierGSTINColumn
	case ColumnInvoiceDate:
		return c.InvoiceDateColumn
	case ColumnCGST:
		return c.CGSTColumn
	case ColumnSGST:
		return c.SGSTColumn
	case ColumnIGST:
		return c.IGSTColumn
	default:
		return standardName
	}
}

func (c *InvoiceParserConfig) columns() []Column {
	return buildColumns(c.GetColumnName, c.ColumnAliases, []string{
		ColumnInvoiceNumber, ColumnSupplierGSTIN, ColumnInvoiceDate, ColumnCGST, ColumnSGST, ColumnIGST,
	}, ColumnInvoiceNumber, ColumnSupplierGSTIN)
}

func (c *InvoiceParserConfig) parseConfig() *ParseConfig {
	config := DefaultParseConfig()
	config.HasHeader = c.HasHeader
	config.Delimiter = c.Delimiter
	return config
}

// ReturnParserConfig holds configuration for parsing GSTR-2B files. The
// defaults accept the column names of the GST portal download.
type ReturnParserConfig struct {
	InvoiceNumberColumn string              `json:"invoice_number_column" mapstructure:"invoice_number_column"`
	SupplierGSTINColumn string              `json:"supplier_gstin_column" mapstructure:"supplier_gstin_column"`
	SupplierNameColumn  string              `json:"supplier_name_column" mapstructure:"supplier_name_column"`
	InvoiceDateColumn   string              `json:"invoice_date_column" mapstructure:"invoice_date_column"`
	ReturnPeriodColumn  string              `json:"return_period_column" mapstructure:"return_period_column"`
	CGSTColumn          string              `json:"cgst_column" mapstructure:"cgst_column"`
	SGSTColumn          string              `json:"sgst_column" mapstructure:"sgst_column"`
	IGSTColumn          string              `json:"igst_column" mapstructure:"igst_column"`
	DateFormat          string              `json:"date_format" mapstructure:"date_format"`
	ReturnPeriod        string              `json:"return_period" mapstructure:"return_period"`
	HasHeader           bool                `json:"has_header" mapstructure:"has_header"`
	Delimiter           rune                `json:"delimiter" mapstructure:"delimiter"`
	Sheets              []string            `json:"sheets" mapstructure:"sheets"`
	HeaderSearchRows    int                 `json:"header_search_rows" mapstructure:"header_search_rows"`
	ColumnAliases       map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultReturnParserConfig returns the GSTR-2B configuration
func DefaultReturnParserConfig() *ReturnParserConfig {
	return &ReturnParserConfig{
		InvoiceNumberColumn: ColumnInvoiceNumber,
		SupplierGSTINColumn: ColumnSupplierGSTIN,
		SupplierNameColumn:  ColumnSupplierName,
		InvoiceDateColumn:   ColumnInvoiceDate,
		ReturnPeriodColumn:  ColumnReturnPeriod,
		CGSTColumn:          ColumnCGST,
		SGSTColumn:          ColumnSGST,
		IGSTColumn:          ColumnIGST,
		DateFormat:          "02-01-2006",
		HasHeader:           true,
		Delimiter:           ',',
		Sheets:              []string{"B2B"},
		HeaderSearchRows:    10,
		ColumnAliases: map[string][]string{
			ColumnInvoiceNumber: {"Invoice number", "Invoice No", "inum"},
			ColumnSupplierGSTIN: {"GSTIN of supplier", "Supplier GSTIN", "GSTIN", "ctin"},
			ColumnSupplierName:  {"Trade/Legal name", "Trade/Legal name of the Supplier", "Supplier Name", "trdnm"},
			ColumnInvoiceDate:   {"Invoice Date", "dt"},
			ColumnReturnPeriod:  {"GSTR-1/IFF/GSTR-5 Period", "GSTR-1/5 Period", "Period", "supprd"},
			ColumnCGST:          {"Central Tax", "Central Tax(₹)", "CGST Amount"},
			ColumnSGST:          {"State/UT Tax", "State/UT Tax(₹)", "SGST Amount"},
			ColumnIGST:          {"Integrated Tax", "Integrated Tax(₹)", "IGST Amount"},
		},
	}
}

// Validate checks if the return parser configuration is valid
func (c *ReturnParserConfig) Validate() error {
	if strings.TrimSpace(c.InvoiceNumberColumn) == "" {
		return fmt.Errorf("invoice number column cannot be empty")
	}

	if strings.TrimSpace(c.SupplierGSTINColumn) == "" {
		return fmt.Errorf("supplier GSTIN column cannot be empty")
	}

	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	if c.HeaderSearchRows < 0 {
		return fmt.Errorf("header search rows cannot be negative, got %d", c.HeaderSearchRows)
	}

	return nil
}

// GetColumnName returns the configured header of a logical column
func (c *ReturnParserConfig) GetColumnName(standardName string) string {
	switch standardName {
	case ColumnInvoiceNumber:
		return c.InvoiceNumberColumn
	case ColumnSupplierGSTIN:
		return c.SupplierGSTINColumn
	case ColumnSupplierName:
		return c.SupplierNameColumn
	case ColumnInvoiceDate:
		return c.InvoiceDateColumn
	case ColumnReturnPeriod:
		return c.ReturnPeriodColumn
	case ColumnCGST:
		return c.CGSTColumn
	case ColumnSGST:
		return c.SGSTColumn
	case ColumnIGST:
		return c.IGSTColumn
	default:
		return standardName
	}
}

func (c *ReturnParserConfig) columns() []Column {
	return buildColumns(c.GetColumnName, c.ColumnAliases, []string{
		ColumnInvoiceNumber, ColumnSupplierGSTIN, ColumnSupplierName, ColumnInvoiceDate,
		ColumnReturnPeriod, ColumnCGST, ColumnSGST, ColumnIGST,
	}, ColumnInvoiceNumber, ColumnSupplierGSTIN)
}

func (c *ReturnParserConfig) parseConfig() *ParseConfig {
	config := DefaultParseConfig()
	config.HasHeader = c.HasHeader
	config.Delimiter = c.Delimiter
	config.Sheets = c.Sheets
	config.HeaderSearchRows = c.HeaderSearchRows
	return config
}

// buildColumns lists logical columns in positional order. The configured
// header is tried first, then the aliases.
func buildColumns(header func(string) string, aliases map[string][]string, order []string, required ...string) []Column {
	isRequired := make(map[string]bool, len(required))
	for _, name := range required {
		isRequired[name] = true
	}

	columns := make([]Column, 0, len(order))
	for _, name := range order {
		headers := []string{name}
		if h := strings.TrimSpace(header(name)); h != "" {
			headers[0] = h
		}
		headers = append(headers, aliases[name]...)
		columns = append(columns, Column{
			Name:     name,
			Headers:  headers,
			Required: isRequired[name],
		})
	}
	return columns
}
