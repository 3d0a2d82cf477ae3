package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/config"
	"github.com/conduit-ucpi/webapp-sub000/pkg/kafka"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/monitoring"
	"github.com/conduit-ucpi/webapp-sub000/pkg/server"
	"github.com/conduit-ucpi/webapp-sub000/pkg/session"
	"github.com/conduit-ucpi/webapp-sub000/pkg/tokencache"
	"github.com/conduit-ucpi/webapp-sub000/pkg/unifiedauth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/version"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet/embedded"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet/relay"
)

const serviceName = "escrowctl"

// Config is read from the environment (and .env files).
type Config struct {
	APIURL           string `env:"ESCROW_API_URL"`
	Wallet           string `env:"ESCROW_WALLET" envDefault:"embedded"`
	TokenCache       string `env:"ESCROW_TOKEN_CACHE" envDefault:"sqlite://.escrow/tokens.db"`
	RelaySessionFile string `env:"ESCROW_RELAY_SESSION_FILE" envDefault:".escrow/relay-session.json"`
	MetricsAddr      string `env:"ESCROW_METRICS_ADDR"`
	// Passphrase unlocks the keystore without a prompt, for scripts.
	Passphrase string `env:"ESCROW_WALLET_PASSPHRASE"`

	Embedded embedded.Config
	Relay    relay.Config
	Kafka    kafka.Config
}

func loadConfig(flags *globalFlags, logger logging.Logger) (Config, error) {
	config.LoadEnv(logger)

	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if flags.wallet != "" {
		cfg.Wallet = flags.wallet
	}
	if flags.tokenCache != "" {
		cfg.TokenCache = flags.tokenCache
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if !wallet.Kind(cfg.Wallet).Valid() || wallet.Kind(cfg.Wallet) == wallet.KindSocial {
		return cfg, fmt.Errorf("unsupported wallet %q (want embedded or relay)", cfg.Wallet)
	}
	return cfg, nil
}

// network resolves the chain the selected wallet is configured for.
func (c Config) network() chain.Network {
	if wallet.Kind(c.Wallet) == wallet.KindRelay {
		return chain.LookupNetwork(c.Relay.ChainID, c.Relay.RPCURL)
	}
	return chain.LookupNetwork(c.Embedded.ChainID, c.Embedded.RPCURL)
}

func newLogger(flags *globalFlags) logging.Logger {
	logger := logging.NewLoggerWithService(serviceName)
	if flags.verbose {
		logger.SetLevel(logging.DebugLevel)
	} else if os.Getenv("LOG_LEVEL") == "" {
		logger.SetLevel(logging.WarnLevel)
	}
	return logger
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg    Config
	flags  *globalFlags
	logger logging.Logger
	out    io.Writer

	backend  *session.Client
	tokens   *tokencache.Cache
	provider *unifiedauth.Provider

	collector *monitoring.MetricsCollector
	metrics   *monitoring.EscrowMetrics

	producer  *kafka.Producer
	forwarder *kafka.Forwarder
	loopback  *server.Loopback
	rpc       *ethclient.Client
}

func newApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	ctx := cmd.Context()
	logger := newLogger(flags)
	cfg, err := loadConfig(flags, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, flags: flags, logger: logger, out: cmd.OutOrStdout()}
	a.collector = monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	a.metrics = monitoring.NewEscrowMetrics(a.collector)

	store, err := tokencache.OpenStore(ctx, cfg.TokenCache, logger)
	if err != nil {
		return nil, fmt.Errorf("open token cache: %w", err)
	}
	a.tokens = tokencache.New(store,
		tokencache.WithLogger(logger),
		tokencache.WithLookupHook(a.metrics.TokenCacheLookup),
		tokencache.WithHotCacheHooks(a.metrics.CacheHooks()),
	)

	a.backend = session.NewClient(session.Config{BaseURL: cfg.APIURL, Logger: logger})

	keystoreSDK := embedded.NewKeystoreSDK(a.passphrase(cmd), logger)
	embeddedWallet := embedded.New(cfg.Embedded, keystoreSDK, logger)
	relayWallet := relay.New(cfg.Relay, relay.FileStore{Path: cfg.RelaySessionFile}, logger)
	relayWallet.DisplayURI = func(uri string) {
		fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("Open this pairing URI in your wallet:"))
		fmt.Fprintln(cmd.ErrOrStderr(), uri)
	}
	registry, err := wallet.NewRegistry(embeddedWallet, relayWallet)
	if err != nil {
		_ = a.tokens.Close()
		return nil, err
	}

	a.provider = unifiedauth.New(registry, a.backend,
		unifiedauth.WithTokenCache(a.tokens),
		unifiedauth.WithLogger(logger),
	)
	a.provider.SubscribeAll(a.metrics.HandleAuthEvent)

	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.producer = producer
		a.forwarder = kafka.NewForwarder(producer, cfg.Kafka.Topic, serviceName, 64, logger)
		go a.forwarder.Run(context.WithoutCancel(ctx))
		a.provider.SubscribeAll(a.forwarder.Handle)
	}

	if cfg.MetricsAddr != "" {
		router := server.SetupRouter(logger)
		router.GET("/metrics", a.collector.Handler())
		router.GET("/health", a.healthChecker().Handler())
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.MetricsAddr
		a.loopback, err = server.StartLoopback(srvCfg, router, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		logger.WithField("addr", a.loopback.Addr()).Info("Serving metrics")
	}

	return a, nil
}

func (a *app) close() {
	if a.forwarder != nil {
		a.forwarder.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.loopback != nil {
		a.loopback.Stop()
	}
	if a.rpc != nil {
		a.rpc.Close()
	}
	if a.tokens != nil {
		if err := a.tokens.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close token cache")
		}
	}
}

// connect opens the configured wallet. It never asks for a signature; a
// cached token is reused and otherwise the first authenticated request
// triggers sign-in.
func (a *app) connect(ctx context.Context) (unifiedauth.AuthState, error) {
	if a.cfg.APIURL == "" {
		if _, err := config.RequireEnv("ESCROW_API_URL"); err != nil {
			return unifiedauth.AuthState{}, err
		}
	}
	state, err := a.provider.Connect(ctx, wallet.Kind(a.cfg.Wallet))
	if err != nil {
		return state, err
	}
	if state.Error != "" {
		a.logger.WithField("warning", state.Error).Debug("Connected with adapter warnings")
	}
	return state, nil
}

// chainClient dials the RPC endpoint once per invocation.
func (a *app) chainClient(ctx context.Context) (*ethclient.Client, chain.Network, error) {
	network := a.cfg.network()
	if a.rpc != nil {
		return a.rpc, network, nil
	}
	endpoint := network.RPCEndpoint()
	if endpoint == "" {
		return nil, network, errors.New("no RPC endpoint configured (set ESCROW_RPC_URL)")
	}
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, network, fmt.Errorf("dial rpc: %w", err)
	}
	a.rpc = client
	return client, network, nil
}

func (a *app) waiter(ctx context.Context) (*chain.ReceiptWaiter, chain.Network, error) {
	client, network, err := a.chainClient(ctx)
	if err != nil {
		return nil, network, err
	}
	return chain.NewReceiptWaiter(client, chain.WithWaiterLogger(a.logger)), network, nil
}

func (a *app) escrowOps() (*chain.EscrowOps, error) {
	adapter, err := a.provider.Adapter()
	if err != nil {
		return nil, err
	}
	return chain.NewEscrowOps(adapter), nil
}

func (a *app) healthChecker() *monitoring.HealthChecker {
	var chainID string
	if id := a.cfg.network().ChainID; id != 0 {
		chainID = strconv.FormatInt(id, 10)
	}
	hc := monitoring.NewHealthChecker(serviceName, version.Version)
	hc.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"ESCROW_API_URL":  a.cfg.APIURL,
		"ESCROW_CHAIN_ID": chainID,
	}))
	hc.AddCheck("backend", monitoring.HTTPServiceHealthCheck("backend", a.cfg.APIURL))
	hc.AddCheck("rpc", monitoring.PingHealthCheck("RPC", monitoring.PingFunc(func(ctx context.Context) error {
		client, _, err := a.chainClient(ctx)
		if err != nil {
			return err
		}
		_, err = client.ChainID(ctx)
		return err
	})))
	if a.producer != nil {
		hc.AddCheck("kafka", monitoring.PingHealthCheck("Kafka", monitoring.PingFunc(a.producer.HealthCheck)))
	}
	return hc
}

// passphrase prompts on the terminal unless ESCROW_WALLET_PASSPHRASE is set.
func (a *app) passphrase(cmd *cobra.Command) embedded.PassphraseFunc {
	return func(_ context.Context, account string) (string, error) {
		if a.cfg.Passphrase != "" {
			return a.cfg.Passphrase, nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Passphrase for %s: ", account)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			// Not a terminal; read a plain line instead.
			line, readErr := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if readErr != nil && line == "" {
				return "", fmt.Errorf("read passphrase: %w", err)
			}
			secret = []byte(line)
		}
		return strings.TrimRight(string(secret), "\r\n"), nil
	}
}
