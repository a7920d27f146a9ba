package licenses

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExportHeader is the first row of an export.
var ExportHeader = []string{"Email", "Status", "Date Added", "Activated At"}

const exportDateLayout = "1/2/2006"

// ParseImport reads the email column of an uploaded CSV. Blank rows are
// dropped and the first remaining row is treated as the header. Each row
// contributes its first field, trimmed, with a surrounding pair of single
// quotes removed. Fields are decoded the way WriteExport encodes them, so an
// export imports back to the same emails. No validation happens here.
func ParseImport(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var rows []string
	header := true
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read import file: %w", err)
		}
		if blankRecord(record) {
			continue
		}
		if header {
			header = false
			continue
		}

		field := strings.TrimSpace(record[0])
		if len(field) >= 2 && field[0] == '\'' && field[len(field)-1] == '\'' {
			field = strings.TrimSpace(field[1 : len(field)-1])
		}
		rows = append(rows, field)
	}
	return rows, nil
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteExport writes licenses as CSV in the order given.
func WriteExport(w io.Writer, licenses []License) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for _, l := range licenses {
		status := "Pending"
		if l.IsActivated {
			status = "Active"
		}
		activatedAt := "N/A"
		if l.ActivatedAt != nil {
			activatedAt = l.ActivatedAt.UTC().Format(exportDateLayout)
		}

		if err := cw.Write([]string{
			l.Email,
			status,
			l.CreatedAt.UTC().Format(exportDateLayout),
			activatedAt,
		}); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFilename is the download name for a program's export on day.
func ExportFilename(programSlug string, day time.Time) string {
	return fmt.Sprintf("%s-licenses-%s.csv", programSlug, day.UTC().Format("2006-01-02"))
}
