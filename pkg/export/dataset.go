package export

import "fmt"

// Dataset is tabular export content. Each row aligns to Headers by index.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// Renderer turns a dataset into file bytes.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	Extension() string
	ContentType() string
}

// Formats understood by NewRenderer.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// NewRenderer returns the renderer for format, defaulting to XLSX.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "", FormatXLSX:
		return NewXLSXExporter(), nil
	case FormatCSV:
		return NewCSVExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func validate(data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(data.Headers))
		}
	}
	return nil
}
