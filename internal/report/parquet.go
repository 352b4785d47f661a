package report

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/Nissan15/hackathon/internal/domain"
)

// EmissionRecord is the Parquet layout of one joined emission row.
type EmissionRecord struct {
	Date            string  `parquet:"date,snappy"`
	SourceType      string  `parquet:"source_type,snappy,dict"`
	RawValue        float64 `parquet:"raw_value,snappy"`
	Unit            string  `parquet:"unit,snappy,dict"`
	Factor          float64 `parquet:"factor,snappy"`
	EmissionsTonnes float64 `parquet:"emissions_tonnes,snappy"`
}

// ToRecords converts rows to their Parquet layout.
func ToRecords(rows []domain.EmissionRow) []EmissionRecord {
	out := make([]EmissionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, EmissionRecord{
			Date:            domain.FormatDate(r.Date),
			SourceType:      r.SourceType,
			RawValue:        r.RawValue,
			Unit:            r.Unit,
			Factor:          r.Factor,
			EmissionsTonnes: r.EmissionsTonnes,
		})
	}
	return out
}

// WriteParquet writes rows to w as a single Parquet file.
func WriteParquet(w io.Writer, rows []domain.EmissionRow) error {
	writer := parquet.NewGenericWriter[EmissionRecord](w)
	if _, err := writer.Write(ToRecords(rows)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write emission rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}
