package recovery

import (
	"context"
	"strings"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Strategy recovers from one family of errors.
type Strategy interface {
	Name() string
	CanRecover(err *apperrors.AppError) bool
	Recover(ctx context.Context, err *apperrors.AppError, ec *model.ErrorContext) bool
}

// Pinger checks that the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	StrategyDatabase = "database-connection"
	StrategyExternal = "external-service-fallback"
	StrategyBackoff  = "rate-limit-backoff"

	pingTimeout  = 3 * time.Second
	probeTimeout = 5 * time.Second
)

// DatabaseStrategy re-checks the connection for connection and query
// failures. An error-specific recover callback takes precedence over the ping.
type DatabaseStrategy struct {
	db Pinger
}

func NewDatabaseStrategy(db Pinger) *DatabaseStrategy {
	return &DatabaseStrategy{db: db}
}

func (s *DatabaseStrategy) Name() string { return StrategyDatabase }

func (s *DatabaseStrategy) CanRecover(err *apperrors.AppError) bool {
	return err.Kind == apperrors.KindDatabase &&
		(err.Code == apperrors.CodeDatabaseConn || err.Code == apperrors.CodeQueryFailed)
}

func (s *DatabaseStrategy) Recover(ctx context.Context, err *apperrors.AppError, _ *model.ErrorContext) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err.Database != nil && err.Database.Recover != nil {
		if rerr := err.Database.Recover(ctx); rerr != nil {
			logger.WithError(rerr).Warn("Database recover callback failed")
			return false
		}
		return true
	}
	if s.db == nil {
		return false
	}
	if perr := s.db.Ping(ctx); perr != nil {
		logger.WithError(perr).Warn("Database still unreachable")
		return false
	}
	return true
}

// ExternalServiceStrategy probes the failing service's health endpoint and
// reports success when it answers 2xx.
type ExternalServiceStrategy struct {
	healthURLs map[string]string
	client     *resty.Client
}

func NewExternalServiceStrategy(healthURLs map[string]string) *ExternalServiceStrategy {
	normalized := make(map[string]string, len(healthURLs))
	for name, url := range healthURLs {
		normalized[strings.ToLower(name)] = url
	}
	return &ExternalServiceStrategy{
		healthURLs: normalized,
		client:     resty.New().SetTimeout(probeTimeout),
	}
}

func (s *ExternalServiceStrategy) Name() string { return StrategyExternal }

func (s *ExternalServiceStrategy) CanRecover(err *apperrors.AppError) bool {
	return err.Kind == apperrors.KindExternalService
}

func (s *ExternalServiceStrategy) Recover(ctx context.Context, err *apperrors.AppError, _ *model.ErrorContext) bool {
	url, ok := s.healthURLs[strings.ToLower(err.ServiceName)]
	if !ok {
		logger.WithField("service", err.ServiceName).Debug("No health endpoint configured for service")
		return false
	}
	resp, rerr := s.client.R().SetContext(ctx).Get(url)
	if rerr != nil {
		logger.WithError(rerr).WithField("service", err.ServiceName).Warn("Service health probe failed")
		return false
	}
	return resp.IsSuccess()
}

// BackoffStrategy waits out short rate limits. Waits longer than maxWait are
// left to the client.
type BackoffStrategy struct {
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewBackoffStrategy(maxWait time.Duration) *BackoffStrategy {
	return &BackoffStrategy{maxWait: maxWait, sleep: sleepContext}
}

func (s *BackoffStrategy) Name() string { return StrategyBackoff }

func (s *BackoffStrategy) CanRecover(err *apperrors.AppError) bool {
	return err.Kind == apperrors.KindRateLimit &&
		time.Duration(err.RetryAfterSeconds)*time.Second <= s.maxWait
}

func (s *BackoffStrategy) Recover(ctx context.Context, err *apperrors.AppError, _ *model.ErrorContext) bool {
	return s.sleep(ctx, time.Duration(err.RetryAfterSeconds)*time.Second) == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
