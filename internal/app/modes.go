package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/book"
	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/crypto"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
	"github.com/alanyoungcy/kalshibot/internal/feed"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/ledger"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshibot/internal/pricing"
	"github.com/alanyoungcy/kalshibot/internal/risk"
	"github.com/alanyoungcy/kalshibot/internal/scanner"
	"github.com/alanyoungcy/kalshibot/internal/server"
	"github.com/alanyoungcy/kalshibot/internal/server/handler"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// Background cadences. Strategy scan intervals live in config; these are the
// app's own housekeeping loops.
const (
	bookPushInterval    = time.Second
	killCheckInterval   = 3 * time.Second
	scanInterval        = time.Minute
	riskSummaryInterval = time.Minute
	exportInterval      = 5 * time.Minute
	archiveInterval     = time.Hour
	fillPollInterval    = 5 * time.Second
	venueStatusInterval = 30 * time.Second

	bookMaxAge    = 30 * time.Second
	brokerLockTTL = 30 * time.Second
)

// desk pairs one contract series with its underlying spot symbol and owns the
// market scanner and strategy engine for that underlying.
type desk struct {
	series string
	symbol string
	scan   *scanner.Scanner
	engine *strategy.Engine
}

// runtime bundles the in-process trading machinery shared by the modes.
// Signals flow engine -> signalCh -> tee -> execCh -> executor; fills flow
// broker -> fillsCh -> ledger -> persistCh -> store.
type runtime struct {
	books    *book.Manager
	spot     *feed.Tracker
	binance  *feed.BinanceWS
	client   *kalshi.Client
	marketWS *kalshi.WSClient
	led      *ledger.Ledger
	gate     *risk.Gate
	feeModel fees.Model
	desks    []*desk

	signalCh  chan domain.TradeSignal
	execCh    chan domain.TradeSignal
	fillsCh   chan domain.Fill
	persistCh chan domain.Fill

	venueTradable atomic.Bool
	killed        atomic.Bool
}

// PaperMode runs the full strategy stack against live market data with the
// in-process paper broker filling orders off the real book.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildRuntime()
	if err != nil {
		return err
	}

	paper := executor.NewPaper(rt.books, rt.feeModel, rt.fillsCh, a.logger)
	return a.runTrading(ctx, deps, rt, paper, paper)
}

// LiveMode runs the strategy stack against the venue with real money. A
// distributed lock guarantees a single order writer per API key.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildRuntime()
	if err != nil {
		return err
	}

	pemKey, err := crypto.LoadKey(crypto.KeyConfig{
		PrivateKeyPath:   a.cfg.Kalshi.PrivateKeyPath,
		EncryptedKeyPath: a.cfg.Kalshi.EncryptedKeyPath,
		KeyPassword:      a.cfg.Kalshi.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load signing key: %w", err)
	}
	if err := rt.client.SetPrivateKeyPEM(pemKey); err != nil {
		return fmt.Errorf("app: parse signing key: %w", err)
	}

	release, err := deps.LockManager.Hold(ctx, "broker:"+a.cfg.Kalshi.ApiKeyID, brokerLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another process is already trading this account: %w", err)
		}
		return fmt.Errorf("app: broker lock: %w", err)
	}
	defer release()

	broker := kalshi.NewBroker(rt.client, deps.RateLimiter, a.logger)
	return a.runTrading(ctx, deps, rt, broker, nil,
		func(ctx context.Context) error { return a.watchVenueStatus(ctx, rt) },
		func(ctx context.Context) error { return a.pollVenueFills(ctx, rt) },
		func(ctx context.Context) error { return a.reconcileLoop(ctx, deps, rt, broker) },
	)
}

// MonitorMode streams market data into the caches and serves the status API
// without placing any orders. It needs neither credentials nor postgres.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildRuntime()
	if err != nil {
		return err
	}

	if err := rt.binance.Connect(ctx); err != nil {
		return fmt.Errorf("app: spot feed: %w", err)
	}
	defer rt.binance.Close()
	if err := rt.marketWS.Connect(ctx); err != nil {
		return fmt.Errorf("app: market feed: %w", err)
	}
	defer rt.marketWS.Close()

	if err := a.refreshUniverse(ctx, rt); err != nil {
		a.logger.Warn("initial market scan failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.pushBooks(gctx, deps, rt, nil) })
	g.Go(func() error { return a.rescanLoop(gctx, rt) })
	a.startStatusServer(gctx, g, deps, rt)

	return ignoreCanceled(g.Wait())
}

// buildRuntime constructs the shared machinery: feeds, books, ledger, gate,
// and one scanner plus strategy engine per (series, symbol) pair.
func (a *App) buildRuntime() (*runtime, error) {
	cfg := a.cfg
	if len(cfg.Kalshi.Series) != len(cfg.Spot.Symbols) {
		return nil, fmt.Errorf("app: kalshi.series and spot.symbols must pair up (%d vs %d)",
			len(cfg.Kalshi.Series), len(cfg.Spot.Symbols))
	}

	rt := &runtime{
		books:    book.NewManager(bookMaxAge),
		spot:     feed.NewTracker(cfg.Spot.DefaultVol, cfg.Spot.MaxStale.Duration),
		binance:  feed.NewBinanceWS(cfg.Spot.WsURL, cfg.Spot.Symbols),
		client:   kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKeyID),
		marketWS: kalshi.NewWSClient(cfg.Kalshi.WsURL, a.logger),
		led:      ledger.New(cfg.Ledger.BankrollCents, a.logger),
		feeModel: fees.DefaultModel(),

		signalCh:  make(chan domain.TradeSignal, 256),
		execCh:    make(chan domain.TradeSignal, 256),
		fillsCh:   make(chan domain.Fill, 256),
		persistCh: make(chan domain.Fill, 512),
	}
	rt.venueTradable.Store(true)

	rt.gate = risk.NewGate(risk.Limits{
		PerTradePct:   cfg.Risk.PerTradePct,
		PerStrikePct:  cfg.Risk.PerStrikePct,
		PerEventPct:   cfg.Risk.PerEventPct,
		TotalPct:      cfg.Risk.TotalPct,
		CashBufferPct: cfg.Risk.CashBufferPct,
		DailyLossPct:  cfg.Risk.DailyLossPct,
		WeeklyLossPct: cfg.Risk.WeeklyLossPct,
	}, rt.led, a.logger)

	rt.binance.OnTrade(rt.spot.Record)
	rt.marketWS.OnSnapshot(func(ticker string, yesBids, noBids []domain.BookLevel) {
		rt.books.ApplySnapshot(ticker, yesBids, noBids)
	})
	rt.marketWS.OnDelta(func(ticker string, side domain.Side, priceCents, delta int64) {
		rt.books.ApplyDepthChange(ticker, side, priceCents, delta)
	})

	pricer := pricing.NewModel()
	for i, series := range cfg.Kalshi.Series {
		symbol := strings.ToUpper(cfg.Spot.Symbols[i])
		sc := scanner.New(rt.client, []string{series}, symbol, a.logger)

		sdeps := strategy.Deps{
			Books:   rt.books,
			Spot:    rt.spot,
			Markets: sc,
			Ledger:  rt.led,
			Pricer:  pricer,
			Fees:    rt.feeModel,
			Symbol:  symbol,
		}
		reg, err := buildRegistry(cfg.Strategy, sdeps, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: strategies for %s: %w", series, err)
		}
		engine, err := strategy.NewEngine(reg, cfg.Strategy.Active, rt.signalCh, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: engine for %s: %w", series, err)
		}

		rt.desks = append(rt.desks, &desk{
			series: series,
			symbol: symbol,
			scan:   sc,
			engine: engine,
		})
	}

	return rt, nil
}

// runTrading wires the executor to the given broker and runs every trading
// loop until the context ends. paper is non-nil in paper mode only; it needs
// book updates pushed to it. extra carries the live-only loops.
func (a *App) runTrading(
	ctx context.Context,
	deps *Dependencies,
	rt *runtime,
	broker domain.Broker,
	paper *executor.Paper,
	extra ...func(context.Context) error,
) error {
	cfg := a.cfg
	exec := executor.New(executor.Config{
		DedupTTL:        cfg.Executor.DedupTTL.Duration,
		CleanupInterval: 30 * time.Second,
		LegGap:          cfg.Executor.LegGap.Duration,
		OrderPoll:       cfg.Executor.OrderPoll.Duration,
		OrderTimeout:    cfg.Executor.OrderTimeout.Duration,
	}, rt.execCh, broker, rt.gate, rt.led, deps.RiskEventStore, a.logger)

	// Fills reach the store and the bus off the ledger's apply path.
	rt.led.OnApply = func(f domain.Fill, _ int64) {
		select {
		case rt.persistCh <- f:
		default:
			a.logger.Warn("fill persistence queue full, dropping",
				slog.String("ticker", f.Ticker),
			)
		}
	}

	if err := rt.binance.Connect(ctx); err != nil {
		return fmt.Errorf("app: spot feed: %w", err)
	}
	defer rt.binance.Close()
	if err := rt.marketWS.Connect(ctx); err != nil {
		return fmt.Errorf("app: market feed: %w", err)
	}
	defer rt.marketWS.Close()

	if err := a.refreshUniverse(ctx, rt); err != nil {
		a.logger.Warn("initial market scan failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(rt.led.Run(gctx, rt.fillsCh)) })
	g.Go(func() error { return ignoreCanceled(exec.Run(gctx)) })
	for _, d := range rt.desks {
		d := d
		g.Go(func() error { return ignoreCanceled(d.engine.RunAll(gctx)) })
	}
	g.Go(func() error { return a.teeSignals(gctx, deps, rt) })
	g.Go(func() error { return a.persistFills(gctx, deps, rt) })
	g.Go(func() error { return a.pushBooks(gctx, deps, rt, paper) })
	g.Go(func() error { return a.watchRisk(gctx, deps, rt, broker) })
	g.Go(func() error { return a.rescanLoop(gctx, rt) })
	g.Go(func() error { return a.exportLoop(gctx, deps, rt) })
	for _, loop := range extra {
		loop := loop
		g.Go(func() error { return loop(gctx) })
	}
	a.startStatusServer(gctx, g, deps, rt)

	err := ignoreCanceled(g.Wait())

	// Shutdown: pull resting orders and flush the ledger on a fresh
	// deadline, the run context is already dead.
	sdCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.cancelResting(sdCtx, broker)
	a.exportLedger(sdCtx, deps, rt)

	return err
}

// teeSignals fans every strategy signal out to the signal store and the bus,
// then hands it to the executor. While the kill switch is engaged only
// exposure-reducing signals pass.
func (a *App) teeSignals(ctx context.Context, deps *Dependencies, rt *runtime) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-rt.signalCh:
			if rt.killed.Load() && sig.Action == domain.ActionBuy && sig.Directive != domain.DirectiveCancel {
				a.logger.Debug("signal dropped, kill switch engaged",
					slog.String("signal_id", sig.ID),
					slog.String("ticker", sig.Ticker),
				)
				continue
			}

			if deps.SignalStore != nil {
				if err := deps.SignalStore.Insert(ctx, sig); err != nil {
					a.logger.Warn("signal insert failed", slog.String("error", err.Error()))
				}
			}
			if err := deps.SignalBus.AppendSignal(ctx, sig); err != nil {
				a.logger.Debug("signal stream append failed", slog.String("error", err.Error()))
			}

			select {
			case rt.execCh <- sig:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// persistFills batches applied fills into the trade store and publishes each
// to the fill stream. The final flush runs on a fresh deadline so shutdown
// does not lose the tail of the batch.
func (a *App) persistFills(ctx context.Context, deps *Dependencies, rt *runtime) error {
	flush := time.NewTicker(2 * time.Second)
	defer flush.Stop()

	batch := make([]domain.Fill, 0, 64)
	write := func(wctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if deps.TradeStore != nil {
			if err := deps.TradeStore.InsertBatch(wctx, batch); err != nil {
				a.logger.Warn("fill batch insert failed",
					slog.Int("fills", len(batch)),
					slog.String("error", err.Error()),
				)
			}
		}
		for _, f := range batch {
			_ = deps.SignalBus.AppendFill(wctx, f)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f := <-rt.persistCh:
					batch = append(batch, f)
					continue
				default:
				}
				break
			}
			wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			write(wctx)
			cancel()
			return ctx.Err()
		case f := <-rt.persistCh:
			batch = append(batch, f)
			if len(batch) >= 64 {
				write(ctx)
			}
		case <-flush.C:
			write(ctx)
		}
	}
}

// pushBooks feeds fresh book snapshots to the paper broker and the book
// cache, and publishes the latest spot prices, once per second.
func (a *App) pushBooks(ctx context.Context, deps *Dependencies, rt *runtime, paper *executor.Paper) error {
	ticker := time.NewTicker(bookPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, t := range rt.books.Tickers() {
				snap, err := rt.books.Snapshot(t)
				if err != nil {
					continue
				}
				if paper != nil {
					paper.OnBook(snap)
				}
				if err := deps.BookCache.SetTop(ctx, topOfBook(snap)); err != nil {
					a.logger.Debug("book cache update failed", slog.String("error", err.Error()))
				}
			}
			for _, d := range rt.desks {
				price, ts, err := rt.spot.Last(d.symbol)
				if err != nil {
					continue
				}
				_ = deps.PriceCache.SetPrice(ctx, d.symbol, price, ts)
			}
		}
	}
}

// watchRisk evaluates the kill switch and the flatten threshold every few
// seconds and logs a risk summary once a minute. Trips cancel all resting
// orders; the flatten threshold additionally closes every position.
func (a *App) watchRisk(ctx context.Context, deps *Dependencies, rt *runtime, broker domain.Broker) error {
	check := time.NewTicker(killCheckInterval)
	defer check.Stop()
	summary := time.NewTicker(riskSummaryInterval)
	defer summary.Stop()

	var flattened bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-summary.C:
			snap := rt.led.Snapshot()
			a.logger.Info("risk summary",
				slog.Int64("exposure_cents", snap.ExposureCents()),
				slog.Int64("cash_cents", snap.Capital.CashCents),
				slog.Int64("daily_pnl_cents", snap.Capital.DailyPnLCents),
				slog.Int64("weekly_pnl_cents", snap.Capital.WeeklyPnLCents),
				slog.Int("positions", len(snap.Positions)),
			)
		case <-check.C:
			snap := rt.led.Snapshot()
			tripped, reason := rt.gate.CheckKillSwitch(snap, rt.venueTradable.Load())
			wasKilled := rt.killed.Load()
			if tripped && !wasKilled {
				rt.killed.Store(true)
				a.logger.Error("kill switch tripped", slog.String("reason", reason))
				a.recordRiskEvent(ctx, deps, domain.RiskEvent{
					Kind:   string(domain.RuleKillSwitch),
					Detail: map[string]any{"reason": reason},
					At:     time.Now().UTC(),
				})
				a.cancelResting(ctx, broker)
			} else if !tripped && wasKilled {
				rt.killed.Store(false)
				a.logger.Info("kill switch cleared")
			}

			if rt.gate.ShouldFlattenAll(snap) {
				if !flattened {
					flattened = true
					a.logger.Error("flatten threshold breached, closing all positions",
						slog.Int64("daily_pnl_cents", snap.Capital.DailyPnLCents),
					)
					a.recordRiskEvent(ctx, deps, domain.RiskEvent{
						Kind:   "flatten_all",
						Detail: map[string]any{"daily_pnl_cents": snap.Capital.DailyPnLCents},
						At:     time.Now().UTC(),
					})
					a.flattenAll(ctx, rt, snap)
				}
			} else {
				flattened = false
			}
		}
	}
}

// flattenAll emits an IOC closing signal for every open position. Sells are
// priced at the floor so they cross whatever bid rests in the book.
func (a *App) flattenAll(ctx context.Context, rt *runtime, snap domain.LedgerSnapshot) {
	now := time.Now().UTC()
	for _, pos := range snap.Positions {
		if pos.Flat() {
			continue
		}

		side := domain.SideYes
		contracts := pos.NetContracts
		if contracts < 0 {
			side = domain.SideNo
			contracts = -contracts
		}

		sig := domain.TradeSignal{
			ID:         uuid.New().String(),
			Strategy:   "risk",
			Ticker:     pos.Ticker,
			EventID:    pos.EventID,
			Side:       side,
			Action:     domain.ActionSell,
			TIF:        domain.TIFImmediateOrCancel,
			PriceCents: 1,
			Contracts:  contracts,
			Urgency:    domain.SignalUrgencyImmediate,
			Reason:     "flatten all",
			CreatedAt:  now,
			ExpiresAt:  now.Add(30 * time.Second),
		}
		select {
		case rt.signalCh <- sig:
		case <-ctx.Done():
			return
		}
	}
}

// cancelResting pulls every open order at the venue, grouped per ticker.
func (a *App) cancelResting(ctx context.Context, broker domain.Broker) {
	orders, err := broker.OpenOrders(ctx)
	if err != nil {
		a.logger.Warn("open order listing failed", slog.String("error", err.Error()))
		return
	}

	tickers := make(map[string]struct{})
	for _, o := range orders {
		tickers[o.Ticker] = struct{}{}
	}
	for t := range tickers {
		n, err := broker.CancelAll(ctx, t)
		if err != nil {
			a.logger.Warn("cancel all failed",
				slog.String("ticker", t),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.Info("resting orders cancelled",
			slog.String("ticker", t),
			slog.Int("orders", n),
		)
	}
}

// rescanLoop refreshes the tradable universe once a minute.
func (a *App) rescanLoop(ctx context.Context, rt *runtime) error {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.refreshUniverse(ctx, rt); err != nil {
				a.logger.Warn("market scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// refreshUniverse rescans every desk, subscribes new tickers to the book
// stream, and drops books for markets that left the universe. Books are only
// dropped when every scan succeeded; a partial view must not evict live books.
func (a *App) refreshUniverse(ctx context.Context, rt *runtime) error {
	live := make(map[string]struct{})
	var firstErr error
	for _, d := range rt.desks {
		if err := d.scan.Refresh(ctx); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("scan %s: %w", d.series, err)
			}
			continue
		}

		universe := d.scan.Universe()
		tickers := make([]string, 0, len(universe))
		for _, m := range universe {
			tickers = append(tickers, m.Ticker)
			live[m.Ticker] = struct{}{}
		}
		if len(tickers) == 0 {
			continue
		}
		if err := rt.marketWS.Subscribe(ctx, tickers); err != nil {
			a.logger.Warn("book subscribe failed",
				slog.String("series", d.series),
				slog.String("error", err.Error()),
			)
		}
	}

	if firstErr == nil {
		for _, t := range rt.books.Tickers() {
			if _, ok := live[t]; !ok {
				rt.books.Drop(t)
			}
		}
	}
	return firstErr
}

// exportLoop snapshots positions and the daily summary into postgres every
// few minutes, sends the daily summary notification on UTC day change, and
// archives aged rows to object storage once an hour.
func (a *App) exportLoop(ctx context.Context, deps *Dependencies, rt *runtime) error {
	export := time.NewTicker(exportInterval)
	defer export.Stop()
	archive := time.NewTicker(archiveInterval)
	defer archive.Stop()

	prev := rt.led.DailySummary()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-export.C:
			cur := rt.led.DailySummary()
			if !prev.Day.IsZero() && !cur.Day.Equal(prev.Day) {
				if err := deps.Notifier.NotifyDailySummary(ctx, prev); err != nil {
					a.logger.Warn("daily summary notification failed", slog.String("error", err.Error()))
				}
			}
			prev = cur
			a.exportLedger(ctx, deps, rt)
		case <-archive.C:
			if deps.Archiver == nil {
				continue
			}
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetentionDays)
			if err := deps.Archiver.ArchiveBefore(ctx, cutoff); err != nil {
				a.logger.Warn("archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// exportLedger writes the current position set and daily summary to the
// ledger store. No-op when persistence is not wired.
func (a *App) exportLedger(ctx context.Context, deps *Dependencies, rt *runtime) {
	if deps.LedgerStore == nil {
		return
	}

	snap := rt.led.Snapshot()
	positions := make([]domain.Position, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, p)
	}
	if err := deps.LedgerStore.UpsertPositions(ctx, positions); err != nil {
		a.logger.Warn("position export failed", slog.String("error", err.Error()))
	}
	if err := deps.LedgerStore.UpsertDailySummary(ctx, rt.led.DailySummary()); err != nil {
		a.logger.Warn("daily summary export failed", slog.String("error", err.Error()))
	}
}

// watchVenueStatus polls the exchange status so a venue halt trips the kill
// switch. Live mode only.
func (a *App) watchVenueStatus(ctx context.Context, rt *runtime) error {
	ticker := time.NewTicker(venueStatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, err := rt.client.GetExchangeStatus(ctx)
			if err != nil {
				a.logger.Warn("exchange status poll failed", slog.String("error", err.Error()))
				continue
			}
			tradable := st.ExchangeActive && st.TradingActive
			if tradable != rt.venueTradable.Load() {
				a.logger.Warn("venue tradability changed", slog.Bool("tradable", tradable))
			}
			rt.venueTradable.Store(tradable)
		}
	}
}

// pollVenueFills pulls executions from the venue and feeds them to the
// ledger. The venue is the authority on fills in live mode; the paper broker
// never runs there. Fills are deduped by trade id across polls.
func (a *App) pollVenueFills(ctx context.Context, rt *runtime) error {
	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	seen := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			infos, err := rt.client.GetFills(ctx, "", 200)
			if err != nil {
				a.logger.Warn("fill poll failed", slog.String("error", err.Error()))
				continue
			}

			if len(seen) > 10_000 {
				seen = make(map[string]struct{}, len(infos))
			}
			for _, info := range infos {
				if _, ok := seen[info.TradeID]; ok {
					continue
				}
				seen[info.TradeID] = struct{}{}

				select {
				case rt.fillsCh <- rt.toFill(info):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// toFill converts a venue execution into a ledger fill. The venue reports no
// fee, so it is recomputed from the fee schedule using the taker flag.
func (rt *runtime) toFill(info kalshi.FillInfo) domain.Fill {
	side := domain.Side(info.Side)
	price := info.YesPrice
	if side == domain.SideNo {
		price = info.NoPrice
	}

	role := fees.RoleMaker
	if info.IsTaker {
		role = fees.RoleTaker
	}

	at, err := time.Parse(time.RFC3339, info.CreatedTime)
	if err != nil {
		at = time.Now().UTC()
	}

	var eventID string
	for _, d := range rt.desks {
		if m, ok := d.scan.Lookup(info.Ticker); ok {
			eventID = m.EventID
			break
		}
	}

	return domain.Fill{
		OrderID:    info.OrderID,
		Ticker:     info.Ticker,
		EventID:    eventID,
		Strategy:   "live",
		Side:       side,
		Action:     domain.OrderAction(info.Action),
		PriceCents: price,
		Contracts:  info.Count,
		FeeCents:   rt.feeModel.Fee(info.Count, price, role),
		IsMaker:    !info.IsTaker,
		At:         at,
	}
}

// reconcileLoop compares the ledger against the venue's position view. Drift
// means fills were missed or double counted; the ledger keeps its numbers
// and the event is raised for the operator.
func (a *App) reconcileLoop(ctx context.Context, deps *Dependencies, rt *runtime, broker domain.Broker) error {
	interval := a.cfg.Ledger.ReconcileInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			authoritative, err := broker.Positions(ctx)
			if err != nil {
				a.logger.Warn("position fetch failed", slog.String("error", err.Error()))
				continue
			}

			drift, err := rt.led.Reconcile(authoritative)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrLedgerDrift) {
				a.logger.Error("reconcile failed", slog.String("error", err.Error()))
				continue
			}

			detail := make(map[string]any, len(drift))
			for t, d := range drift {
				detail[t] = d
			}
			a.recordRiskEvent(ctx, deps, domain.RiskEvent{
				Kind:   "ledger_drift",
				Detail: detail,
				At:     time.Now().UTC(),
			})
		}
	}
}

// recordRiskEvent persists the event when a store is wired and always pushes
// it through the notifier, which applies its own event filter.
func (a *App) recordRiskEvent(ctx context.Context, deps *Dependencies, ev domain.RiskEvent) {
	if deps.RiskEventStore != nil {
		if err := deps.RiskEventStore.Insert(ctx, ev); err != nil {
			a.logger.Warn("risk event insert failed", slog.String("error", err.Error()))
		}
	}
	if err := deps.Notifier.NotifyRiskEvent(ctx, ev); err != nil {
		a.logger.Warn("risk event notification failed", slog.String("error", err.Error()))
	}
}

// startStatusServer registers the status API goroutines when enabled. Store
// backed endpoints fall back to empty sources in modes without postgres.
func (a *App) startStatusServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	if !a.cfg.Server.Enabled {
		return
	}

	var signals handler.SignalSource = noSignals{}
	if deps.SignalStore != nil {
		signals = deps.SignalStore
	}
	var fills handler.FillSource = noFills{}
	if deps.TradeStore != nil {
		fills = deps.TradeStore
	}
	var events handler.RiskEventSource = noEvents{}
	if deps.RiskEventStore != nil {
		events = deps.RiskEventStore
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Positions: handler.NewPositionHandler(rt.led, a.logger),
		Signals:   handler.NewSignalHandler(signals, fills, a.logger),
		Risk:      handler.NewRiskHandler(rt.led, rt.gate, events, a.logger),
		Config:    handler.NewConfigHandler(a.cfg, a.logger),
	}, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
}

// Empty sources back the store-driven endpoints in modes without postgres.
type noSignals struct{}

func (noSignals) ListRecent(context.Context, int) ([]domain.TradeSignal, error) { return nil, nil }

type noFills struct{}

func (noFills) ListRecent(context.Context, int) ([]domain.Fill, error) { return nil, nil }

type noEvents struct{}

func (noEvents) ListRecent(context.Context, int) ([]domain.RiskEvent, error) { return nil, nil }

// buildRegistry registers every strategy; the engine enables the active set.
func buildRegistry(cfg config.StrategyConfig, deps strategy.Deps, logger *slog.Logger) (*strategy.Registry, error) {
	reg := strategy.NewRegistry()
	all := []strategy.Strategy{
		strategy.NewMomentum(momentumConfig(cfg.Momentum), deps, logger),
		strategy.NewFifteenMin(fifteenMinConfig(cfg.FifteenMin), deps, logger),
		strategy.NewMarketMaker(marketMakerConfig(cfg.MarketMaker), deps, logger),
		strategy.NewArbitrage(arbitrageConfig(cfg.Arbitrage), deps, logger),
	}
	for _, s := range all {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func momentumConfig(c config.MomentumConfig) strategy.MomentumConfig {
	return strategy.MomentumConfig{
		Interval:     c.Interval.Duration,
		MinFair:      c.MinFair,
		MaxAskCents:  c.MaxAskCents,
		MinEdgeCents: c.MinEdgeCents,
		MinDepth:     c.MinDepth,
		MaxHours:     c.MaxHours,
		Contracts:    c.Contracts,
		TopN:         c.TopN,
		SignalTTL:    c.SignalTTL.Duration,
	}
}

func fifteenMinConfig(c config.FifteenMinConfig) strategy.FifteenMinConfig {
	return strategy.FifteenMinConfig{
		Interval:     c.Interval.Duration,
		Lookback:     c.Lookback.Duration,
		MaxBias:      c.MaxBias,
		BiasScale:    c.BiasScale,
		MinEdgeCents: c.MinEdgeCents,
		Contracts:    c.Contracts,
		TopN:         c.TopN,
		Cooldown:     c.Cooldown.Duration,
		SignalTTL:    c.SignalTTL.Duration,
	}
}

func marketMakerConfig(c config.MarketMakerConfig) strategy.MarketMakerConfig {
	return strategy.MarketMakerConfig{
		Interval:        c.Interval.Duration,
		MinVolume24h:    c.MinVolume24h,
		Wings:           c.Wings,
		SpreadCents:     c.SpreadCents,
		QuoteContracts:  c.QuoteContracts,
		MaxNetContracts: c.MaxNetContracts,
		HedgeTrigger:    c.HedgeTrigger,
		LeanCents:       c.LeanCents,
		RequoteInterval: c.RequoteInterval.Duration,
		KillMovePct:     c.KillMovePct,
		KillWindow:      c.KillWindow.Duration,
		KillPause:       c.KillPause.Duration,
		SignalTTL:       c.SignalTTL.Duration,
	}
}

func arbitrageConfig(c config.ArbitrageConfig) strategy.ArbitrageConfig {
	return strategy.ArbitrageConfig{
		Interval:          c.Interval.Duration,
		MinProfitCents:    c.MinProfitCents,
		MaxContracts:      c.MaxContracts,
		RangeSumThreshold: c.RangeSumThreshold,
		SignalTTL:         c.SignalTTL.Duration,
	}
}

// topOfBook reduces a full snapshot to the cached observer summary.
func topOfBook(snap domain.BookSnapshot) domain.TopOfBook {
	top := domain.TopOfBook{Ticker: snap.Ticker, UpdatedAt: snap.UpdatedAt}
	if bid, ok := snap.BestYesBid(); ok {
		top.YesBid, top.HasYesBid = bid, true
	}
	if ask, ok := snap.BestYesAsk(); ok {
		top.YesAsk, top.HasYesAsk = ask, true
	}
	return top
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
