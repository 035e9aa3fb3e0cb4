package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/moduls/adapters/api"
	"github.com/layer-3/moduls/adapters/cache"
	"github.com/layer-3/moduls/adapters/events"
	"github.com/layer-3/moduls/adapters/store"
	"github.com/layer-3/moduls/adapters/wallet"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/config"
	"github.com/layer-3/moduls/internal/metrics"
	"github.com/layer-3/moduls/ports"
	"github.com/layer-3/moduls/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// runtime holds the wired components for one command
type runtime struct {
	cfg       *config.Config
	log       *logrus.Entry
	api       *api.Client
	wallet    ports.Wallet
	session   *service.Authenticator
	catalog   *service.Catalog
	queries   *cache.QueryCache
	contracts config.ContractBook
	registry  *prometheus.Registry

	publisher   message.Publisher
	subscriber  message.Subscriber
	redisClient *redis.Client

	closers []func()
}

func newRuntime(c *cli.Context) (*runtime, error) {
	if err := config.LoadEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(cfg.Level())
	log := logrus.NewEntry(logger)

	rt := &runtime{cfg: cfg, log: log, registry: prometheus.NewRegistry()}

	rt.contracts, err = config.LoadContracts(cfg.ContractsFile)
	if err != nil {
		return nil, err
	}

	kv, err := rt.store()
	if err != nil {
		rt.Close()
		return nil, err
	}

	if err := rt.events(); err != nil {
		rt.Close()
		return nil, err
	}

	rt.wallet, err = openWallet(cfg, approver(c))
	if errors.Is(err, errNoWallet) {
		rt.wallet = missingWallet{}
	} else if err != nil {
		rt.Close()
		return nil, err
	}

	m := metrics.New(rt.registry)
	rt.api = api.NewClient(cfg.APIURL, api.Options{
		RetryMax:          cfg.HTTPRetryMax,
		RequestsPerSecond: cfg.HTTPRate,
		Logger:            log,
		Metrics:           m,
	})
	rt.queries = cache.NewQueryCache(cfg.QueryCacheSize, cfg.QueryTTL)

	rt.session = service.NewAuthenticator(rt.wallet, rt.api, service.NewCredentialStore(kv), service.SignInConfig{
		Domain:    cfg.Domain,
		URI:       cfg.URI,
		Statement: cfg.Statement,
	},
		service.WithUserCache(rt.queries),
		service.WithEventPublisher(events.NewWatermillPublisher(rt.publisher)),
		service.WithMetrics(m),
		service.WithLogger(log),
	)
	rt.api.SetAuth(rt.session, rt.session.OnUnauthorized)
	rt.catalog = service.NewCatalog(rt.api, rt.queries, rt.session)

	return rt, nil
}

func (rt *runtime) store() (ports.Store, error) {
	switch rt.cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreRedis:
		client, err := rt.redis()
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, ""), nil
	default:
		return store.NewFileStore(rt.cfg.StorePath), nil
	}
}

func (rt *runtime) redis() (*redis.Client, error) {
	if rt.redisClient != nil {
		return rt.redisClient, nil
	}

	opts, err := redis.ParseURL(rt.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	rt.redisClient = client
	rt.closers = append(rt.closers, func() { _ = client.Close() })
	return client, nil
}

// events publishes session events to redis streams when REDIS_URL is set and
// keeps them in-process otherwise
func (rt *runtime) events() error {
	logger := watermill.NewStdLogger(false, false)

	if rt.cfg.RedisURL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
		rt.publisher = pubSub
		rt.subscriber = pubSub
		rt.closers = append(rt.closers, func() { _ = pubSub.Close() })
		return nil
	}

	client, err := rt.redis()
	if err != nil {
		return err
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, logger)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: client}, logger)
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("failed to create subscriber: %w", err)
	}

	rt.publisher = publisher
	rt.subscriber = subscriber
	rt.closers = append(rt.closers, func() {
		_ = subscriber.Close()
		_ = publisher.Close()
	})
	return nil
}

var errNoWallet = errors.New("no wallet configured, set MODULS_PRIVATE_KEY or MODULS_KEYSTORE")

func openWallet(cfg *config.Config, approve wallet.Approver) (ports.Wallet, error) {
	switch {
	case cfg.PrivateKey != "":
		return wallet.FromHex(cfg.PrivateKey, cfg.ChainID, approve)
	case cfg.Keystore != "":
		return wallet.FromKeystore(cfg.Keystore, cfg.KeystorePassword, cfg.ChainID, approve)
	default:
		return nil, errNoWallet
	}
}

// missingWallet lets read-only commands run without a key
type missingWallet struct{}

func (missingWallet) Connect(ctx context.Context) (core.WalletIdentity, error) {
	return core.WalletIdentity{}, errNoWallet
}

func (missingWallet) Disconnect(ctx context.Context) error {
	return nil
}

func (missingWallet) SignMessage(ctx context.Context, message string) (string, error) {
	return "", errNoWallet
}

// Close releases the backends in reverse order
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) identity(ctx context.Context) (core.WalletIdentity, error) {
	return rt.wallet.Connect(ctx)
}

// resume restores a stored session without prompting
func (rt *runtime) resume(ctx context.Context) error {
	id, err := rt.identity(ctx)
	if err != nil {
		return err
	}
	return rt.session.Resume(ctx, id)
}

// ensureSession resumes a stored session or signs in
func (rt *runtime) ensureSession(ctx context.Context) error {
	err := rt.resume(ctx)
	if errors.Is(err, core.ErrNoCredential) {
		return rt.session.Retry(ctx)
	}
	return err
}

// withRuntime wires the components around a command action
func withRuntime(action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.Close()

		return action(c, rt)
	}
}
