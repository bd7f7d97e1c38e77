// Package recovery holds the named strategies the error middleware tries
// before surfacing a recoverable error, and the per-route retry budget.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	logger "github.com/sirupsen/logrus"
)

// Observer is told about every attempted recovery.
type Observer interface {
	RecoveryAttempted(strategy string, ok bool)
}

// Result describes what happened to one error.
type Result struct {
	Attempted  bool   `json:"attempted"`
	Successful bool   `json:"successful"`
	Strategy   string `json:"strategy,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
	budget     *Budget
	observer   Observer
}

type Option func(*Registry)

func WithBudget(b *Budget) Option {
	return func(r *Registry) { r.budget = b }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.budget == nil {
		r.budget = NewBudget(MaxAttempts, BudgetWindow, time.Now)
	}
	return r
}

// Defaults builds the registry with the built-in strategies.
func Defaults(cfg Config, db Pinger, opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.Register(NewDatabaseStrategy(db))
	r.Register(NewExternalServiceStrategy(ParseHealthURLs(cfg.ExternalHealthURLs)))
	r.Register(NewBackoffStrategy(cfg.MaxBackoff))
	return r
}

// Register appends s. Strategies are consulted in registration order.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, s)
}

// Find returns the first strategy accepting err.
func (r *Registry) Find(err *apperrors.AppError) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.strategies {
		if s.CanRecover(err) {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) Budget() *Budget {
	return r.budget
}

// BudgetKey identifies the retry budget of a code on a route.
func BudgetKey(code, url string) string {
	return fmt.Sprintf("%s:%s", code, url)
}

// Attempt tries to recover from err if it is operational, recoverable,
// handled by a strategy and still within its retry budget.
func (r *Registry) Attempt(ctx context.Context, err error, ec *model.ErrorContext) Result {
	appErr, ok := apperrors.AsAppError(err)
	if !ok || !appErr.Operational {
		return Result{Reason: "error is not operational"}
	}
	if !appErr.Recoverable() {
		return Result{Reason: "error is not recoverable"}
	}
	s, ok := r.Find(appErr)
	if !ok {
		return Result{Reason: "no recovery strategy"}
	}
	if !r.budget.Allow(BudgetKey(appErr.Code, ec.Endpoint())) {
		return Result{Strategy: s.Name(), Reason: "retry budget exhausted"}
	}

	success := r.run(ctx, s, appErr, ec)
	if r.observer != nil {
		r.observer.RecoveryAttempted(s.Name(), success)
	}
	entry := logger.WithFields(logger.Fields{"strategy": s.Name(), "code": appErr.Code, "endpoint": ec.Endpoint()})
	if success {
		entry.Info("Recovered from error")
	} else {
		entry.Warn("Recovery attempt failed")
	}
	return Result{Attempted: true, Successful: success, Strategy: s.Name()}
}

func (r *Registry) run(ctx context.Context, s Strategy, err *apperrors.AppError, ec *model.ErrorContext) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.WithField("strategy", s.Name()).Errorf("Recovery strategy panicked: %v", p)
			ok = false
		}
	}()
	return s.Recover(ctx, err, ec)
}
