package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/goran-ethernal/watch-tower/internal/apiserver"
	"github.com/goran-ethernal/watch-tower/internal/blockprocessor"
	"github.com/goran-ethernal/watch-tower/internal/chainwatcher"
	"github.com/goran-ethernal/watch-tower/internal/config"
	"github.com/goran-ethernal/watch-tower/internal/eventsource"
	"github.com/goran-ethernal/watch-tower/internal/filterpolicy"
	"github.com/goran-ethernal/watch-tower/internal/handler"
	"github.com/goran-ethernal/watch-tower/internal/health"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/maintenance"
	"github.com/goran-ethernal/watch-tower/internal/notify"
	"github.com/goran-ethernal/watch-tower/internal/orderbook"
	"github.com/goran-ethernal/watch-tower/internal/orderpoller"
	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/registrystore"
	"github.com/goran-ethernal/watch-tower/internal/rpcprovider"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║              watch-tower v%s            ║
║   Conditional Order Monitoring Service     ║
╚═══════════════════════════════════════════╝
`
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "watch-tower",
	Short:   "watch-tower - conditional order monitoring and submission service",
	Version: version,
}

// flagSet mirrors every flag shared across run/run-multi so cobra binds
// them once and config.Config/MultiChainConfig picks the values up.
type flagSet struct {
	rpcs             []string
	deploymentBlocks []uint64
	pageSize         uint64
	watchdogTimeout  time.Duration
	dryRun           bool
	oneShot          bool
	silent           bool
	runningInPod     bool
	slackWebhook     string
	sentryDSN        string
	orderBookURL     string
	filterPolicyURL  string
	databasePath     string
	apiPort          int
	disableAPI       bool
	logLevel         string
	processEvery     uint64
	ownerAllowList   []string
}

func bindSharedFlags(cmd *cobra.Command, f *flagSet) {
	cmd.Flags().Uint64Var(&f.pageSize, "page-size", 5000, "blocks fetched per warm-up page")
	cmd.Flags().DurationVar(&f.watchdogTimeout, "watchdog-timeout", 30*time.Second, "max time without a new block before the watchdog trips")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "accepted but has no effect: order-book submissions are still made")
	cmd.Flags().BoolVar(&f.oneShot, "one-shot", false, "accepted but has no effect: the watcher continues into live tail after warm-up")
	cmd.Flags().BoolVar(&f.silent, "silent", false, "suppress external notifications")
	cmd.Flags().BoolVar(&f.runningInPod, "running-in-pod", false, "let an external orchestrator restart the process on watchdog timeout instead of exiting")
	cmd.Flags().StringVar(&f.slackWebhook, "slack-webhook", "", "Slack incoming webhook URL for notifications")
	cmd.Flags().StringVar(&f.sentryDSN, "sentry-dsn", "", "Sentry DSN for error tracking")
	cmd.Flags().StringVar(&f.orderBookURL, "order-book-url", "", "order-book service base URL")
	cmd.Flags().StringVar(&f.filterPolicyURL, "filter-policy-url", "", "HTTP(S) URL serving the hot-reloadable filter policy")
	cmd.Flags().StringVar(&f.databasePath, "database-path", "./database", "bbolt registry store path")
	cmd.Flags().IntVar(&f.apiPort, "api-port", 8080, "health/metrics HTTP port")
	cmd.Flags().BoolVar(&f.disableAPI, "disable-api", false, "disable the health/metrics HTTP server")
	cmd.Flags().StringVar(&f.logLevel, "log-level", envOr("LOG_LEVEL", "INFO"), "log level (debug|info|warn|error)")
	cmd.Flags().Uint64Var(&f.processEvery, "process-every-n-blocks", 1, "poll cadence: re-evaluate live orders every N blocks")
	cmd.Flags().StringSliceVar(&f.ownerAllowList, "owner", nil, "restrict event decoding to these owner addresses (repeatable, default: no allow-list)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var runFlags = &flagSet{}
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch a single chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		network, _ := cmd.Flags().GetString("network")
		rpc, _ := cmd.Flags().GetString("rpc")
		deploymentBlock, _ := cmd.Flags().GetUint64("deployment-block")

		cfg := config.Config{
			Network:               network,
			RPC:                   rpc,
			DeploymentBlock:       deploymentBlock,
			PageSize:              runFlags.pageSize,
			WatchdogTimeout:       runFlags.watchdogTimeout,
			DryRun:                runFlags.dryRun,
			OneShot:               runFlags.oneShot,
			Silent:                runFlags.silent,
			RunningInPod:          runFlags.runningInPod,
			OrderBookURL:          runFlags.orderBookURL,
			FilterPolicyURL:       runFlags.filterPolicyURL,
			SlackWebhook:          runFlags.slackWebhook,
			SentryDSN:             runFlags.sentryDSN,
			DatabasePath:          runFlags.databasePath,
			APIPort:               runFlags.apiPort,
			DisableAPI:            runFlags.disableAPI,
			LogLevel:              runFlags.logLevel,
			ProcessEveryNumBlocks: runFlags.processEvery,
			OwnerAllowList:        runFlags.ownerAllowList,
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		return runChains(cmd.Context(), []config.Config{cfg})
	},
}

var runMultiFlags = &flagSet{}
var runMultiConfigPath string
var runMultiCmd = &cobra.Command{
	Use:   "run-multi",
	Short: "Watch N chains from one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		var m *config.MultiChainConfig

		if runMultiConfigPath != "" {
			loaded, err := config.LoadMultiChainFromFile(runMultiConfigPath)
			if err != nil {
				return fmt.Errorf("load multi-chain config: %w", err)
			}
			m = loaded
		} else {
			networks, _ := cmd.Flags().GetStringSlice("network")
			rpcs, _ := cmd.Flags().GetStringSlice("rpc")
			deploymentBlocks, _ := cmd.Flags().GetUint64Slice("deployment-block")

			m = &config.MultiChainConfig{
				Networks:         networks,
				RPCs:             rpcs,
				DeploymentBlocks: deploymentBlocks,
				Shared: config.Config{
					PageSize:              runMultiFlags.pageSize,
					WatchdogTimeout:       runMultiFlags.watchdogTimeout,
					DryRun:                runMultiFlags.dryRun,
					OneShot:               runMultiFlags.oneShot,
					Silent:                runMultiFlags.silent,
					RunningInPod:          runMultiFlags.runningInPod,
					OrderBookURL:          runMultiFlags.orderBookURL,
					FilterPolicyURL:       runMultiFlags.filterPolicyURL,
					SlackWebhook:          runMultiFlags.slackWebhook,
					SentryDSN:             runMultiFlags.sentryDSN,
					DatabasePath:          runMultiFlags.databasePath,
					APIPort:               runMultiFlags.apiPort,
					DisableAPI:            runMultiFlags.disableAPI,
					LogLevel:              runMultiFlags.logLevel,
					ProcessEveryNumBlocks: runMultiFlags.processEvery,
					OwnerAllowList:        runMultiFlags.ownerAllowList,
				},
			}
		}

		configs, err := m.Expand()
		if err != nil {
			return fmt.Errorf("invalid multi-chain configuration: %w", err)
		}
		return runChains(cmd.Context(), configs)
	},
}

var dumpDBChainID string
var dumpDBCmd = &cobra.Command{
	Use:   "dump-db",
	Short: "Emit the current registry for one network as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		databasePath, _ := cmd.Flags().GetString("database-path")

		store, err := registrystore.Open(databasePath, logger.NewNop())
		if err != nil {
			return fmt.Errorf("open registry store: %w", err)
		}
		defer store.Close()

		out, err := store.DumpNetworkJSON(dumpDBChainID)
		if err != nil {
			return fmt.Errorf("dump network %s: %w", dumpDBChainID, err)
		}
		fmt.Println(string(out))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List networks tracked by the registry store",
	RunE: func(cmd *cobra.Command, args []string) error {
		databasePath, _ := cmd.Flags().GetString("database-path")

		store, err := registrystore.Open(databasePath, logger.NewNop())
		if err != nil {
			return fmt.Errorf("open registry store: %w", err)
		}
		defer store.Close()

		networks, err := store.Networks()
		if err != nil {
			return fmt.Errorf("list networks: %w", err)
		}
		if len(networks) == 0 {
			fmt.Println("(no networks tracked)")
			return nil
		}
		for _, n := range networks {
			fmt.Println(n)
		}
		return nil
	},
}

var replayBlockRPC string
var replayBlockNumber uint64
var replayBlockOwners []string
var replayBlockCmd = &cobra.Command{
	Use:   "replay-block",
	Short: "Fetch and print the conditional-order events in a single historical block",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.NewNop()

		provider, err := rpcprovider.New(ctx, replayBlockRPC, nil)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", replayBlockRPC, err)
		}
		defer provider.Close()

		src := eventsource.New(provider, parseOwnerAllowList(replayBlockOwners), log)
		batch, err := src.FetchBlock(ctx, replayBlockNumber)
		if err != nil {
			return fmt.Errorf("fetch block %d: %w", replayBlockNumber, err)
		}

		fmt.Printf("block %d: %d ConditionalOrderCreated, %d MerkleRootSet, %d dropped logs\n",
			replayBlockNumber, len(batch.Created), len(batch.MerkleRoots), batch.DroppedCount)
		for _, ev := range batch.Created {
			fmt.Printf("  created: owner=%s handler=%s tx=%s\n", ev.Owner, ev.Params.Handler, ev.TxHash)
		}
		for _, ev := range batch.MerkleRoots {
			fmt.Printf("  merkleRootSet: owner=%s root=%s location=%d orders=%d\n", ev.Owner, ev.Root, ev.Location, len(ev.Orders))
		}
		return nil
	},
}

var replayTxRPC string
var replayTxHash string
var replayTxOwners []string
var replayTxCmd = &cobra.Command{
	Use:   "replay-tx",
	Short: "Fetch and print the conditional-order events in a single transaction's receipt",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		provider, err := rpcprovider.New(ctx, replayTxRPC, nil)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", replayTxRPC, err)
		}
		defer provider.Close()

		receipt, err := provider.GetTransactionReceipt(ctx, common.HexToHash(replayTxHash))
		if err != nil {
			return fmt.Errorf("fetch receipt for %s: %w", replayTxHash, err)
		}

		log := logger.NewNop()
		src := eventsource.New(provider, parseOwnerAllowList(replayTxOwners), log)
		batch, err := src.FetchBlock(ctx, receipt.BlockNumber.Uint64())
		if err != nil {
			return fmt.Errorf("fetch block %d: %w", receipt.BlockNumber.Uint64(), err)
		}

		fmt.Printf("tx %s (block %d): %d ConditionalOrderCreated, %d MerkleRootSet in that block\n",
			replayTxHash, receipt.BlockNumber.Uint64(), len(batch.Created), len(batch.MerkleRoots))
		for _, ev := range batch.Created {
			if ev.TxHash == common.HexToHash(replayTxHash) {
				fmt.Printf("  created: owner=%s handler=%s\n", ev.Owner, ev.Params.Handler)
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("network", "", "network/chain identifier")
	runCmd.Flags().String("rpc", "", "RPC endpoint (ws[s]:// for streaming, http[s]:// otherwise)")
	runCmd.Flags().Uint64("deployment-block", 0, "block the monitored contracts were deployed at")
	bindSharedFlags(runCmd, runFlags)

	runMultiCmd.Flags().StringSlice("network", nil, "ordered list of network identifiers")
	runMultiCmd.Flags().StringSlice("rpc", nil, "ordered list of RPC endpoints, one per network")
	runMultiCmd.Flags().Uint64Slice("deployment-block", nil, "ordered list of deployment blocks, one per network")
	runMultiCmd.Flags().StringVar(&runMultiConfigPath, "config", "", "load the multi-chain config from a declarative file (.yaml/.yml/.json/.toml) instead of CLI flags")
	bindSharedFlags(runMultiCmd, runMultiFlags)

	dumpDBCmd.Flags().StringVar(&dumpDBChainID, "chain-id", "", "network identifier to dump")
	dumpDBCmd.Flags().String("database-path", "./database", "bbolt registry store path")
	_ = dumpDBCmd.MarkFlagRequired("chain-id")

	listCmd.Flags().String("database-path", "./database", "bbolt registry store path")

	replayBlockCmd.Flags().StringVar(&replayBlockRPC, "rpc", "", "RPC endpoint")
	replayBlockCmd.Flags().Uint64Var(&replayBlockNumber, "block", 0, "block number to replay")
	replayBlockCmd.Flags().StringSliceVar(&replayBlockOwners, "owner", nil, "restrict event decoding to these owner addresses (repeatable)")
	_ = replayBlockCmd.MarkFlagRequired("rpc")
	_ = replayBlockCmd.MarkFlagRequired("block")

	replayTxCmd.Flags().StringVar(&replayTxRPC, "rpc", "", "RPC endpoint")
	replayTxCmd.Flags().StringVar(&replayTxHash, "tx", "", "transaction hash to replay")
	replayTxCmd.Flags().StringSliceVar(&replayTxOwners, "owner", nil, "restrict event decoding to these owner addresses (repeatable)")
	_ = replayTxCmd.MarkFlagRequired("rpc")
	_ = replayTxCmd.MarkFlagRequired("tx")

	rootCmd.AddCommand(runCmd, runMultiCmd, dumpDBCmd, listCmd, replayBlockCmd, replayTxCmd)
}

// chain bundles every component owned by one running chain, so main's
// shutdown sequence can close them in a fixed order.
type chain struct {
	network  string
	provider rpcprovider.Provider
	policy   *filterpolicy.Reloader
	watcher  *chainwatcher.Watcher
	reg      *registry.Registry
}

// runChains wires and runs every component for each config, in this
// order: logger, registry store, notification sink, maintenance, then
// per chain the RPC client and processing pipeline, then the API server.
func runChains(ctx context.Context, configs []config.Config) error {
	fmt.Printf(banner, version)

	first := configs[0]
	log, err := logger.New(first.LogLevel, false)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, cancelling...")
		cancel()
	}()

	store, err := registrystore.Open(first.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("open registry store: %w", err)
	}

	sink := buildNotifySink(first, log)
	defer sink.Close()

	onFatal := func(err error) {
		log.Errorw("fatal chain-watcher error, closing store and exiting", "error", err)
		_ = sink.Notify(context.Background(), notify.LevelError, err.Error(), map[string]any{"reason": "fatal chain-watcher error"})
		_ = store.Close()
		os.Exit(1)
	}

	maintCoord := maintenance.New(store.DB(), maintenance.Config{Enabled: true, CheckInterval: time.Hour, RunOnStartup: false}, log)
	if err := maintCoord.Start(runCtx); err != nil {
		return fmt.Errorf("start maintenance coordinator: %w", err)
	}
	defer maintCoord.Stop()

	chainRegistry := health.NewChainRegistry()
	aggregator := health.NewAggregator(chainRegistry)

	chains := make([]*chain, 0, len(configs))
	for _, cfg := range configs {
		c, err := buildChain(runCtx, cfg, store, log, chainRegistry, sink, onFatal)
		if err != nil {
			return fmt.Errorf("build chain %s: %w", cfg.Network, err)
		}
		chains = append(chains, c)
	}

	var apiSrv *apiserver.Server
	if !first.DisableAPI {
		apiSrv = apiserver.New(fmt.Sprintf(":%d", first.APIPort), aggregator, log)
		go func() {
			if err := apiSrv.Start(runCtx); err != nil {
				log.Errorw("api server error", "error", err)
			}
		}()
	}

	errCh := make(chan error, len(chains))
	for _, c := range chains {
		c := c
		go func() {
			if err := c.watcher.Run(runCtx); err != nil {
				log.Errorw("chain watcher stopped with error", "network", c.network, "error", err)
			}
			errCh <- nil
		}()
	}

	for range chains {
		<-errCh
	}
	for _, c := range chains {
		c.provider.Close()
	}

	return store.Close()
}

func buildChain(ctx context.Context, cfg config.Config, store *registrystore.Store, log *logger.Logger, chainRegistry *health.ChainRegistry, sink notify.Sink, onFatal func(error)) (*chain, error) {
	provider, err := rpcprovider.New(ctx, cfg.RPC, rpcprovider.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("connect provider: %w", err)
	}

	netStore, err := store.ForNetwork(cfg.Network)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("scope registry store: %w", err)
	}

	reg := registry.New(cfg.Network, netStore, log)
	if err := reg.Load(); err != nil {
		provider.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	src := eventsource.New(provider, parseOwnerAllowList(cfg.OwnerAllowList), log)

	var policy *filterpolicy.Reloader
	if cfg.FilterPolicyURL != "" {
		policy = filterpolicy.NewReloader(cfg.FilterPolicyURL, time.Minute, log)
		go policy.Run(ctx)
	}

	ob := orderbook.New(cfg.OrderBookURL, log)
	poller := orderpoller.New(policy, handler.Deferring{}, ob, orderpoller.NewChainMetrics(cfg.Network), log)
	processor := blockprocessor.New(reg, poller, cfg.ProcessEveryNumBlocks, blockprocessor.NewChainMetrics(cfg.Network), log)

	watcherCfg := chainwatcher.Config{
		Network:         cfg.Network,
		DeploymentBlock: cfg.DeploymentBlock,
		PageSize:        cfg.PageSize,
		WatchdogTimeout: cfg.WatchdogTimeout,
		RunningInPod:    cfg.RunningInPod,
		DryRun:          cfg.DryRun,
		OnFatal:         onFatal,
		Notifier:        sink,
	}
	watcher := chainwatcher.New(watcherCfg, provider, src, processor, reg, chainwatcher.NewMetrics(cfg.Network), log)
	chainRegistry.Register(cfg.Network, watcher, reg)

	return &chain{network: cfg.Network, provider: provider, policy: policy, watcher: watcher, reg: reg}, nil
}

// parseOwnerAllowList converts the configured owner hex strings into
// addresses, skipping anything malformed rather than failing startup.
func parseOwnerAllowList(owners []string) []common.Address {
	if len(owners) == 0 {
		return nil
	}
	addrs := make([]common.Address, 0, len(owners))
	for _, o := range owners {
		if !common.IsHexAddress(o) {
			continue
		}
		addrs = append(addrs, common.HexToAddress(o))
	}
	return addrs
}

func buildNotifySink(cfg config.Config, log *logger.Logger) notify.Sink {
	if cfg.Silent {
		return notify.Nop{}
	}

	var sinks []notify.Sink
	if cfg.SlackWebhook != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.SlackWebhook, log))
	}
	if cfg.SentryDSN != "" {
		sentrySink, err := notify.NewSentrySink(cfg.SentryDSN, log)
		if err != nil {
			log.Warnw("failed to initialize sentry sink", "error", err)
		} else {
			sinks = append(sinks, sentrySink)
		}
	}
	if len(sinks) == 0 {
		return notify.Nop{}
	}
	return notify.NewMulti(sinks...)
}
