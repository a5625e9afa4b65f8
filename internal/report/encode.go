package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"extranef/internal/nef"
)

// Format is a report serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates s. An empty string means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// MimeType returns the content type uploaded with the format.
func (f Format) MimeType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Encode serializes rows in format.
func Encode(rows []nef.Record, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if rows == nil {
			rows = []nef.Record{}
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json report: %w", err)
		}
		return data, nil
	case FormatXLSX:
		return encodeXLSX(rows)
	case FormatCSV, "":
		return encodeCSV(rows)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Headers returns the union of row keys: employeeName first when present,
// then the rest sorted.
func Headers(rows []nef.Record) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			seen[k] = true
		}
	}
	var rest []string
	for k := range seen {
		if k != "employeeName" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	if seen["employeeName"] {
		return append([]string{"employeeName"}, rest...)
	}
	return rest
}

// cellString renders a field value for tabular output.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int, int64, json.Number:
		return nef.IDString(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// encodeCSV writes a header line and one line per row. No rows means empty
// output.
func encodeCSV(rows []nef.Record) ([]byte, error) {
	if len(rows) == 0 {
		return []byte{}, nil
	}
	headers := Headers(rows)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = cellString(row[h])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName is the worksheet holding an xlsx report.
const SheetName = "Report"

func encodeXLSX(rows []nef.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	headers := Headers(rows)
	if len(headers) > 0 {
		header := make([]any, len(headers))
		for i, h := range headers {
			header[i] = h
		}
		if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
			return nil, fmt.Errorf("writing xlsx header: %w", err)
		}
	}

	for i, row := range rows {
		values := make([]any, len(headers))
		for j, h := range headers {
			values[j] = cellString(row[h])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("writing xlsx row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding xlsx report: %w", err)
	}
	return buf.Bytes(), nil
}
