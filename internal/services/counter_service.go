package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

var ErrCounterInvalidInput = errors.New("counter: invalid input")

// CounterGenerationOptions formats a sequence value. Formatter, when set, replaces the
// prefix, padding and suffix handling.
type CounterGenerationOptions struct {
	Step      int64
	Prefix    string
	Suffix    string
	PadLength int
	Formatter func(now time.Time, value int64) string
}

// CounterService hands out formatted, gap-tolerant sequence numbers. Values are never
// reused, even when the caller's transaction later fails.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (string, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo repositories.CounterRepository
	now  func() time.Time
}

func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &counterService{repo: deps.Repository, now: func() time.Time { return clock().UTC() }}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (string, error) {
	scope, name = strings.TrimSpace(scope), strings.TrimSpace(name)
	switch {
	case scope == "":
		return "", fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	key := scope + ":" + name
	value, err := s.repo.Next(ctx, key, max(opts.Step, 1))
	if err != nil {
		return "", mapRepositoryError(err, "counter "+key)
	}
	return formatCounterValue(s.now(), value, opts), nil
}

// NextOrderNumber returns ORD-<yyyy>-<seq6>, with one sequence per calendar year (UTC).
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	return s.Next(ctx, "orders", strconv.Itoa(year), CounterGenerationOptions{
		Formatter: func(_ time.Time, seq int64) string {
			return fmt.Sprintf("ORD-%04d-%06d", year, seq)
		},
	})
}

func formatCounterValue(now time.Time, value int64, opts CounterGenerationOptions) string {
	if opts.Formatter != nil {
		return opts.Formatter(now, value)
	}
	digits := strconv.FormatInt(value, 10)
	if pad := opts.PadLength - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return opts.Prefix + digits + opts.Suffix
}
