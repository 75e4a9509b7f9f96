package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/custodia/internal/models"
)

// inferSampleRows caps how many data rows feed type inference.
// Row counting still walks the whole file.
const inferSampleRows = 1000

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// InspectTabular reads a delimited file, inferring a type for each column
// and counting data rows. The header row is required and not counted.
func InspectTabular(path string, delimiter rune) ([]models.ColumnSpec, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	samples := make([][]string, len(header))
	rowCount := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s: %w", path, err)
		}
		rowCount++
		if rowCount <= inferSampleRows {
			for i := range header {
				if i < len(record) {
					samples[i] = append(samples[i], record[i])
				}
			}
		}
	}

	columns := make([]models.ColumnSpec, len(header))
	for i, name := range header {
		columns[i] = models.ColumnSpec{
			Name: strings.TrimSpace(name),
			Type: inferColumnType(samples[i]),
		}
	}
	return columns, rowCount, nil
}

// inferColumnType picks the narrowest type every non-empty sample value
// satisfies. Order matters: every int parses as a float, so int wins when
// all values are integral.
func inferColumnType(values []string) models.ColumnKind {
	seen := false
	isInt, isFloat, isBool, isDatetime := true, true, true, true

	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool && !isBoolToken(v) {
			isBool = false
		}
		if isDatetime && !isDatetimeToken(v) {
			isDatetime = false
		}
	}

	if !seen {
		return models.ColumnKindString
	}
	switch {
	case isInt:
		return models.ColumnKindInt
	case isFloat:
		return models.ColumnKindFloat
	case isBool:
		return models.ColumnKindBool
	case isDatetime:
		return models.ColumnKindDatetime
	}
	return models.ColumnKindString
}

func isBoolToken(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func isDatetimeToken(v string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
