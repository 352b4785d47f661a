package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Nissan15/hackathon/internal/domain"
)

const maxUploadBytes = 10 << 20

// LoginRequest is the payload for POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ActivityRequest is the payload for POST /api/data and each uploaded record.
type ActivityRequest struct {
	Date       string      `json:"date"`
	SourceType string      `json:"source_type"`
	RawValue   *flexNumber `json:"raw_value"`
	Unit       string      `json:"unit"`
}

func (r ActivityRequest) input() domain.RecordActivityInput {
	in := domain.RecordActivityInput{Date: r.Date, SourceType: r.SourceType, Unit: r.Unit}
	if r.RawValue != nil {
		v := float64(*r.RawValue)
		in.RawValue = &v
	}
	return in
}

// HumanCountRequest is the payload for POST /api/humans.
type HumanCountRequest struct {
	Date   string   `json:"date"`
	Humans *flexInt `json:"humans"`
}

// UploadRequest is the JSON form of POST /api/upload_csv.
type UploadRequest struct {
	Records []ActivityRequest `json:"records"`
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return errors.New("raw_value is null")
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("raw_value %s is not a number", data)
	}
	*n = flexNumber(v)
	return nil
}

// flexInt accepts a JSON integer or an integer string.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var num flexNumber
	if err := num.UnmarshalJSON(data); err != nil {
		return err
	}
	v := float64(num)
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return fmt.Errorf("humans %s is not an integer", data)
	}
	*n = flexInt(v)
	return nil
}

func recordsInserted(n int) string {
	return fmt.Sprintf("%d records inserted.", n)
}

// decodeUpload reads either a text/csv body or a JSON {"records": [...]} body.
func decodeUpload(r *http.Request) ([]domain.RecordActivityInput, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxUploadBytes))
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		return parseCSV(body)
	}

	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	if len(req.Records) == 0 {
		return nil, errors.New("no records")
	}
	inputs := make([]domain.RecordActivityInput, 0, len(req.Records))
	for _, rec := range req.Records {
		inputs = append(inputs, rec.input())
	}
	return inputs, nil
}

var csvColumns = []string{"date", "source_type", "raw_value", "unit"}

func parseCSV(body []byte) ([]domain.RecordActivityInput, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.New("csv needs a header and at least one record")
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv header is missing %q", col)
		}
	}

	inputs := make([]domain.RecordActivityInput, 0, len(rows)-1)
	for line, row := range rows[1:] {
		raw, err := strconv.ParseFloat(strings.TrimSpace(row[index["raw_value"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: raw_value is not a number", line+2)
		}
		inputs = append(inputs, domain.RecordActivityInput{
			Date:       row[index["date"]],
			SourceType: row[index["source_type"]],
			RawValue:   &raw,
			Unit:       row[index["unit"]],
		})
	}
	return inputs, nil
}
