// Package domain defines the records and ingest rules of the campus carbon tracker.
package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Nissan15/hackathon/internal/observability"
)

var (
	// ErrInvalidDateFormat is returned when a date is not YYYY-MM-DD.
	ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")
	// ErrStorageUnavailable indicates the backing store could not be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrSchemaMissing indicates a table the query depends on does not exist.
	ErrSchemaMissing = errors.New("schema missing")
	// ErrComputation marks an unexpected fault while aggregating.
	ErrComputation = errors.New("computation failed")
	// ErrValidation wraps every rejected ingest payload.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
)

// Repository captures the write side of the store.
type Repository interface {
	InsertActivities(ctx context.Context, records []ActivityRecord) error
	UpsertHumanCount(ctx context.Context, count HumanCount) error
	ListEmissionFactors(ctx context.Context) ([]EmissionFactor, error)
	UpsertEmissionFactor(ctx context.Context, factor EmissionFactor) error
}

// RecordActivityInput is an unvalidated activity submission.
type RecordActivityInput struct {
	Date       string
	SourceType string
	RawValue   *float64
	Unit       string
}

// Service validates and persists submitted data.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordActivity validates and stores one activity record.
func (s *Service) RecordActivity(ctx context.Context, input RecordActivityInput) (ActivityRecord, error) {
	record, err := s.buildRecord(input)
	if err != nil {
		return ActivityRecord{}, err
	}
	if err := s.repo.InsertActivities(ctx, []ActivityRecord{record}); err != nil {
		return ActivityRecord{}, err
	}
	observability.RecordActivityIngested(record.SourceType, record.CreatedAt)
	return record, nil
}

// ImportActivities stores a batch atomically. A single invalid entry rejects the batch.
func (s *Service) ImportActivities(ctx context.Context, inputs []RecordActivityInput) ([]ActivityRecord, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no records supplied", ErrValidation)
	}
	records := make([]ActivityRecord, 0, len(inputs))
	for i, input := range inputs {
		record, err := s.buildRecord(input)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		records = append(records, record)
	}
	if err := s.repo.InsertActivities(ctx, records); err != nil {
		return nil, err
	}
	for _, record := range records {
		observability.RecordActivityIngested(record.SourceType, record.CreatedAt)
	}
	return records, nil
}

// UpsertHumanCount stores the head-count for a date, replacing any previous value.
func (s *Service) UpsertHumanCount(ctx context.Context, date string, humans int) (HumanCount, error) {
	day, err := ParseDate(date)
	if err != nil {
		return HumanCount{}, err
	}
	if humans < 0 {
		return HumanCount{}, fmt.Errorf("%w: humans must be a non-negative integer", ErrValidation)
	}
	count := HumanCount{Date: day, Humans: humans}
	if err := s.repo.UpsertHumanCount(ctx, count); err != nil {
		return HumanCount{}, err
	}
	observability.RecordHeadcountUpserted()
	return count, nil
}

// EmissionFactors lists the factor reference table.
func (s *Service) EmissionFactors(ctx context.Context) ([]EmissionFactor, error) {
	return s.repo.ListEmissionFactors(ctx)
}

// SetEmissionFactor creates or replaces the factor of a source.
func (s *Service) SetEmissionFactor(ctx context.Context, factor EmissionFactor) error {
	factor.SourceType = strings.TrimSpace(factor.SourceType)
	if factor.SourceType == "" {
		return fmt.Errorf("%w: source_type is required", ErrValidation)
	}
	if factor.Factor < 0 || math.IsNaN(factor.Factor) || math.IsInf(factor.Factor, 0) {
		return fmt.Errorf("%w: factor must be a non-negative number", ErrValidation)
	}
	return s.repo.UpsertEmissionFactor(ctx, factor)
}

func (s *Service) buildRecord(input RecordActivityInput) (ActivityRecord, error) {
	day, err := ParseDate(input.Date)
	if err != nil {
		return ActivityRecord{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	source := strings.TrimSpace(input.SourceType)
	if source == "" {
		return ActivityRecord{}, fmt.Errorf("%w: source_type is required", ErrValidation)
	}
	unit := strings.TrimSpace(input.Unit)
	if unit == "" {
		return ActivityRecord{}, fmt.Errorf("%w: unit is required", ErrValidation)
	}
	if input.RawValue == nil {
		return ActivityRecord{}, fmt.Errorf("%w: raw_value is required", ErrValidation)
	}
	raw := *input.RawValue
	if raw < 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return ActivityRecord{}, fmt.Errorf("%w: raw_value must be a non-negative number", ErrValidation)
	}
	return ActivityRecord{
		ID:         uuid.NewString(),
		Date:       day,
		SourceType: source,
		RawValue:   raw,
		Unit:       unit,
		CreatedAt:  s.now().UTC(),
	}, nil
}
