// Package engine runs the host workflow: it moves transfers from the
// explorer into storage, classifies them, matches lots and builds reports,
// threading state between the pure core packages and the store.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/cointax/internal/classify"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/costbasis"
	"github.com/Veraticus/cointax/internal/service"
	"github.com/Veraticus/cointax/internal/storage"
	"github.com/google/uuid"
)

// Code distinguishes missing-input outcomes.
type Code string

// Result codes.
const (
	CodeNoTransactions           Code = "NO_TRANSACTIONS"
	CodeNoUserAddresses          Code = "NO_USER_ADDRESSES"
	CodeNoClassifiedTransactions Code = "NO_CLASSIFIED_TRANSACTIONS"
	CodeNoGains                  Code = "NO_GAINS"
	CodeNoGainsForYear           Code = "NO_GAINS_FOR_YEAR"
)

// Result is the outcome every operation reports. Missing input yields
// Success=false with a Code; Go errors are reserved for infrastructure failures.
type Result struct {
	Code     Code     `json:"error,omitempty"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
	Success  bool     `json:"success"`
}

var codeErrors = map[Code]error{
	CodeNoTransactions:           common.ErrNoTransactions,
	CodeNoUserAddresses:          common.ErrNoAddresses,
	CodeNoClassifiedTransactions: common.ErrNoClassified,
	CodeNoGains:                  common.ErrNoGains,
	CodeNoGainsForYear:           common.ErrNoGainsForYear,
}

// Err returns the sentinel matching r.Code, or nil for a successful result.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if err, ok := codeErrors[r.Code]; ok {
		return err
	}
	return fmt.Errorf("%s", r.Code)
}

func failure(code Code, format string, args ...any) Result {
	return Result{Code: code, Message: fmt.Sprintf(format, args...)}
}

func success(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Checkpointer snapshots the database before destructive operations.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, operation string) (*storage.CheckpointInfo, error)
}

// Config holds optional engine settings.
type Config struct {
	Strategy    classify.Strategy
	Checkpoints Checkpointer
	// Progress is called as transactions are classified.
	Progress func(done, total int)
	NewLotID costbasis.IDGenerator
	Now      func() time.Time
	Workers  int
}

// Engine orchestrates the workflow against a store.
type Engine struct {
	storage     service.Storage
	source      service.TransactionSource
	prices      service.PriceSource
	checkpoints Checkpointer
	strategy    classify.Strategy
	progress    func(done, total int)
	newLotID    costbasis.IDGenerator
	now         func() time.Time
	workers     int
}

// New creates an engine. source and prices may be nil for commands that do
// not fetch or classify.
func New(store service.Storage, source service.TransactionSource, prices service.PriceSource, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = classify.DefaultWorkers
	}
	if cfg.NewLotID == nil {
		cfg.NewLotID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		storage:     store,
		source:      source,
		prices:      prices,
		checkpoints: cfg.Checkpoints,
		strategy:    cfg.Strategy,
		progress:    cfg.Progress,
		newLotID:    cfg.NewLotID,
		now:         cfg.Now,
		workers:     cfg.Workers,
	}
}
