package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"castboard/internal/aggregator"
	"castboard/internal/board"
	"castboard/internal/config"
	"castboard/internal/enrichment"
	"castboard/internal/identity"
	"castboard/internal/leaderboard"
	"castboard/internal/ledger"
	"castboard/internal/logging"
	"castboard/internal/reconcile"
	"castboard/internal/storage"
	chstore "castboard/internal/storage/clickhouse"
	"castboard/internal/storage/memory"
	pgstore "castboard/internal/storage/postgres"
	"castboard/internal/upstream"
)

// app holds the wired components shared by all subcommands.
type app struct {
	aggregator *aggregator.Aggregator
	ledger     ledger.Ledger
	contract   *ledger.Contract // nil unless the contract backend is selected
	store      *leaderboard.Store
	snapshots  storage.SnapshotStore
	board      *board.Service
	reconciler *reconcile.Reconciler

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires upstream clients, the ledger, stores and services from cfg.
// On error every connection opened so far is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.aggregator = a.newAggregator(ctx, cfg, logger)
	if err = a.openLedger(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err = a.openSnapshots(ctx, cfg, logger); err != nil {
		return nil, err
	}

	a.store = leaderboard.NewStore()
	a.board = board.NewService(board.Options{
		Enricher: a.aggregator,
		Ledger:   a.ledger,
		Store:    a.store,
		Logger:   logging.Component(logger, "board"),
	})
	a.reconciler = reconcile.New(reconcile.Options{
		Ledger:    a.ledger,
		Store:     a.store,
		Snapshots: a.snapshots,
		Logger:    logging.Component(logger, "reconciler"),
	})
	return a, nil
}

func upstreamOptions(cfg *config.Config, logger zerolog.Logger) []upstream.ClientOption {
	return []upstream.ClientOption{
		upstream.WithTimeout(cfg.FetchTimeout),
		upstream.WithMaxRetries(cfg.UpstreamRetries),
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst),
		upstream.WithBreaker(upstream.BreakerSettings{
			ConsecutiveFailures: cfg.BreakerFailures,
			Cooldown:            cfg.BreakerCooldown,
		}),
		upstream.WithLogger(logging.Component(logger, "upstream")),
	}
}

func (a *app) newAggregator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *aggregator.Aggregator {
	neynar := upstream.NewNeynar(cfg.NeynarURL, cfg.NeynarAPIKey, upstreamOptions(cfg, logger)...)
	alchemy := upstream.NewAlchemy(cfg.AlchemyURL, cfg.AlchemyKey, upstreamOptions(cfg, logger)...)

	var dir identity.Directory = neynar
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, identity cache disabled")
		} else {
			a.closers = append(a.closers, func() { rdb.Close() })
			dir = identity.NewCachedDirectory(neynar, rdb, cfg.IdentityCacheTTL, logging.Component(logger, "identity_cache"))
		}
	}

	return aggregator.New(aggregator.Options{
		Resolver:    identity.NewResolver(dir, logging.Component(logger, "identity")),
		NFTs:        enrichment.NewNFTFetcher(alchemy, logging.Component(logger, "nft")),
		Activity:    enrichment.NewActivityFetcher(neynar, cfg.ActivityPageSize, logging.Component(logger, "activity")),
		CallTimeout: cfg.FetchTimeout,
		Logger:      logging.Component(logger, "aggregator"),
	})
}

func (a *app) openLedger(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	switch cfg.LedgerBackend {
	case config.LedgerContract:
		contract, err := ledger.DialContract(ctx, cfg.RPCEndpoint, cfg.ContractAddress, cfg.PrivateKey, cfg.ChainID,
			ledger.WithConfirmTimeout(cfg.ConfirmTimeout),
			ledger.WithContractLogger(logging.Component(logger, "ledger")),
		)
		if err != nil {
			return fmt.Errorf("dial contract: %w", err)
		}
		if cfg.PrivateKey == "" {
			logger.Warn().Msg("no PRIVATE_KEY set, ledger is read-only")
		}
		a.contract = contract
		a.ledger = contract

	case config.LedgerPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.ledger = pgstore.NewLedgerStore(pool)

	default:
		logger.Warn().Msg("using in-memory ledger, participants are lost on restart")
		a.ledger = memory.NewLedgerStore()
	}

	logger.Info().Str("backend", cfg.LedgerBackend).Msg("ledger ready")
	return nil
}

func (a *app) openSnapshots(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.ClickhouseDSN == "" {
		a.snapshots = memory.NewSnapshotStore()
		return nil
	}

	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("close clickhouse")
		}
	})
	a.snapshots = chstore.NewSnapshotStore(conn)
	return nil
}
