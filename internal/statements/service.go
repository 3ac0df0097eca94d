package statements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/buildledger/statements/internal/ledger"
	"github.com/buildledger/statements/internal/ledger/policy"
)

// fetchConcurrency bounds parallel category queries per report run.
const (
	fetchConcurrency    = 4
	defaultBuildTimeout = 30 * time.Second
)

// ServiceConfig collects Service dependencies.
type ServiceConfig struct {
	Source  Source
	Cache   *Cache
	Policy  *policy.Policy
	Metrics *Metrics
	Logger  *slog.Logger
	// BuildTimeout bounds one shared statement build. Zero uses 30s.
	BuildTimeout time.Duration
}

// Service sequences fetch, normalize, reconcile and compose for a report run.
type Service struct {
	source     Source
	cache      *Cache
	policy     *policy.Policy
	metrics    *Metrics
	logger     *slog.Logger
	normalizer *ledger.Normalizer
	flight     singleflight.Group
	timeout    time.Duration
	now        func() time.Time
	newID      func() string
}

// NewService wires the service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pol := cfg.Policy
	if pol == nil {
		pol = policy.Default()
	}
	timeout := cfg.BuildTimeout
	if timeout <= 0 {
		timeout = defaultBuildTimeout
	}
	return &Service{
		source:     cfg.Source,
		cache:      cfg.Cache,
		policy:     pol,
		metrics:    cfg.Metrics,
		logger:     logger,
		normalizer: ledger.NewNormalizer(ledger.WithLogger(logger)),
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}
}

// Generate returns the statement for req, served from cache when possible.
func (s *Service) Generate(ctx context.Context, req Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	key, err := s.cache.BuildKey(ctx, req.CacheKey("statement"))
	if err != nil {
		s.logger.Warn("statements: cache key", slog.Any("error", err))
		return s.build(ctx, req)
	}
	var report Report
	hit, err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		return s.buildShared(ctx, key, req)
	})
	if err != nil {
		return Report{}, err
	}
	s.metrics.cacheResult("statement", hit)
	if report.Statement.Failed() {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("statements: drop failed report from cache", slog.Any("error", err))
		}
	}
	return report, nil
}

// Feed returns the unified revenue/collection/expense feed for req.
func (s *Service) Feed(ctx context.Context, req Request, basis ledger.FeedBasis) (Feed, error) {
	report, err := s.Generate(ctx, req)
	if err != nil {
		return Feed{}, err
	}
	held := s.policy.HeldFunds(report.Statement.Party.Type)
	entries := ledger.BuildCombinedFeed(report.Statement, nil, basis, ledger.WithHeldFunds(held...))
	if basis != ledger.Cash {
		basis = ledger.Accrual
	}
	return Feed{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt,
		Party:       report.Statement.Party,
		Period:      report.Statement.Period,
		Basis:       basis,
		Entries:     entries,
		Summary:     ledger.Summarize(entries),
	}, nil
}

// ReconcileBundle runs the core pipeline over caller-supplied records.
func (s *Service) ReconcileBundle(ctx context.Context, req Request, bundle Bundle) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	for category := range bundle {
		if !category.Valid() {
			return Report{}, fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, category)
		}
	}
	st := s.Reconcile(req.Party(), req.Period(), bundle)
	return Report{RunID: s.newID(), GeneratedAt: s.now(), Statement: st}, nil
}

// Invalidate drops every cached statement.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// buildShared collapses concurrent builds of one key. The build outlives the
// caller that started it so other waiters are not failed by its cancellation.
func (s *Service) buildShared(ctx context.Context, key string, req Request) (Report, error) {
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.build(buildCtx, req)
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (s *Service) build(ctx context.Context, req Request) (Report, error) {
	if s.source == nil {
		return Report{}, errors.New("statements: source not configured")
	}
	start := time.Now()
	defer func() { s.metrics.observeBuild(req.PartyType, time.Since(start)) }()

	party := req.Party()
	bundle := make(Bundle, len(ledger.Categories))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	g.Go(func() error {
		name, err := s.source.PartyName(gctx, party)
		if err != nil {
			return err
		}
		party.Name = name
		return nil
	})
	if bs, ok := s.source.(BundleSource); ok {
		g.Go(func() error {
			b, err := bs.FetchBundle(gctx, req)
			if err != nil {
				return err
			}
			mu.Lock()
			for category, records := range b {
				bundle[category] = records
			}
			mu.Unlock()
			return nil
		})
	} else {
		for _, category := range ledger.Categories {
			g.Go(func() error {
				records, err := s.source.FetchRecords(gctx, category, req)
				if err != nil {
					return err
				}
				mu.Lock()
				bundle[category] = records
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	st := s.Reconcile(party, req.Period(), bundle)
	s.logger.Info("statement generated",
		slog.String("party_type", req.PartyType),
		slog.String("party_id", party.ID),
		slog.Int("records", bundle.Count()),
		slog.Int("groups", len(st.Regular)+len(st.Tax)),
		slog.Int("warnings", len(st.Warnings)),
		slog.Duration("elapsed", time.Since(start)))
	return Report{RunID: s.newID(), GeneratedAt: s.now(), Statement: st}, nil
}

// Reconcile normalizes the bundle, reconciles each pass independently and
// composes the statement. It performs no I/O.
func (s *Service) Reconcile(party ledger.Party, period ledger.Period, bundle Bundle) ledger.Statement {
	passTxns := make(map[ledger.Category][]ledger.Transaction, len(ledger.Passes))
	var warnings []ledger.Warning
	for _, category := range ledger.Categories {
		records := bundle[category]
		if len(records) == 0 {
			continue
		}
		txns, warns := s.normalizer.Normalize(records, category)
		s.metrics.addRecords(category, len(records))
		s.metrics.addDropped(category, len(warns))
		warnings = append(warnings, warns...)
		pass := category.Pass()
		for _, t := range txns {
			if period.Contains(t.Date) {
				passTxns[pass] = append(passTxns[pass], t)
			}
		}
	}

	results := make([]ledger.CategoryLedger, len(ledger.Passes))
	var g errgroup.Group
	for i, pass := range ledger.Passes {
		txns := passTxns[pass]
		conv := s.policy.Convention(party.Type, pass)
		g.Go(func() error {
			l, err := ledger.ReconcileCategory(pass, txns, conv)
			results[i] = ledger.CategoryLedger{Category: pass, Ledger: l, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			s.metrics.addMismatch(r.Category)
			s.logger.Error("statements: reconciliation failed",
				slog.String("category", string(r.Category)),
				slog.String("party_id", party.ID),
				slog.Any("error", r.Err))
		}
	}
	st := ledger.Compose(results, party, period)
	st.Warnings = warnings
	for _, w := range warnings {
		s.logger.Warn("statements: record dropped", slog.String("category", string(w.Category)), slog.String("reason", w.Message))
	}
	return st
}

// SweepResult summarises an integrity sweep over many parties.
type SweepResult struct {
	Parties  int
	Failed   int
	Warnings int
}

// Sweep rebuilds statements for parties active since the given day, bypassing
// the cache. When warm is true successful reports are written to the cache.
func (s *Service) Sweep(ctx context.Context, since time.Time, warm bool) (SweepResult, error) {
	if s.source == nil {
		return SweepResult{}, errors.New("statements: source not configured")
	}
	parties, err := s.source.ActiveParties(ctx, since)
	if err != nil {
		return SweepResult{}, err
	}
	var result SweepResult
	for _, p := range parties {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		req := Request{PartyType: string(p.Type), PartyID: p.ID}
		if err := req.Validate(); err != nil {
			s.logger.Warn("statements: skip party", slog.String("party_id", p.ID), slog.Any("error", err))
			continue
		}
		report, err := s.build(ctx, req)
		if err != nil {
			return result, fmt.Errorf("statements: sweep %s %s: %w", p.Type, p.ID, err)
		}
		result.Parties++
		result.Warnings += len(report.Statement.Warnings)
		if report.Statement.Failed() {
			result.Failed++
			continue
		}
		if warm {
			if err := s.store(ctx, req, report); err != nil {
				s.logger.Warn("statements: warm cache", slog.String("party_id", p.ID), slog.Any("error", err))
			}
		}
	}
	return result, nil
}

func (s *Service) store(ctx context.Context, req Request, report Report) error {
	key, err := s.cache.BuildKey(ctx, req.CacheKey("statement"))
	if err != nil {
		return err
	}
	var discard Report
	_, err = s.cache.FetchJSON(ctx, key, &discard, func(context.Context) (interface{}, error) {
		return report, nil
	})
	return err
}
