package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// spreadsheet applications evaluate cells starting with any of these as formulas
const formulaTriggers = "=+-@\t\r"

// renderCSV writes data as CSV in header order. Filenames and descriptions are user supplied,
// so formula-looking cells are prefixed with a quote.
func renderCSV(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = neutralizeFormula(row[header])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func neutralizeFormula(cell string) string {
	if cell != "" && strings.ContainsRune(formulaTriggers, rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
