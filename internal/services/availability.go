package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"delivery-system/internal/repositories"
)

const (
	availabilityKeyFmt = "driver:availability:%d"
	availabilityTTL    = 12 * time.Hour

	availabilityOn  = "on"
	availabilityOff = "off"
)

type AvailabilityServiceInterface interface {
	// IsOnDuty reports whether the driver's duty flag is present and "on".
	// A missing flag reads as off: absence never bypasses the check.
	IsOnDuty(ctx context.Context, driverID uint64) (bool, error)
	SetOnDuty(ctx context.Context, driverID uint64, on bool) error
}

// AvailabilityService consumes the external on/off duty signal kept in the
// shared cache. This core reads the flag but does not own its semantics.
type AvailabilityService struct {
	cache repositories.CacheRepositoryInterface
}

func NewAvailabilityService(cache repositories.CacheRepositoryInterface) AvailabilityServiceInterface {
	return &AvailabilityService{cache: cache}
}

func (s *AvailabilityService) IsOnDuty(ctx context.Context, driverID uint64) (bool, error) {
	val, err := s.cache.Get(ctx, fmt.Sprintf(availabilityKeyFmt, driverID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read availability flag: %w", err)
	}
	return val == availabilityOn, nil
}

func (s *AvailabilityService) SetOnDuty(ctx context.Context, driverID uint64, on bool) error {
	val := availabilityOff
	if on {
		val = availabilityOn
	}
	return s.cache.Set(ctx, fmt.Sprintf(availabilityKeyFmt, driverID), val, availabilityTTL)
}
