package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/assistant"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/events"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/ledger"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.Default(cfg.LogLevel, serviceName)
	slog.SetDefault(appLogger)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog
	repo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatalf("Failed to run catalog migrations: %v", err)
	}
	log.Printf("Catalog ready at %s", cfg.CatalogDBPath)

	products := catalog.New(repo, cfg.CatalogDelay)

	// Orders
	orders, closeArchive := setupLedger(ctx, cfg)
	defer closeArchive()

	if cfg.SeedOrders && orders.Len() == 0 {
		all, err := repo.GetAllProducts(ctx)
		if err != nil {
			log.Fatalf("Failed to read products for demo orders: %v", err)
		}
		orders.Seed(ledger.DemoOrders(all)...)
		log.Printf("Seeded %d demo orders", orders.Len())
	}

	// Client state
	kv, closeKV := setupStorage(ctx, cfg)
	defer closeKV()

	// Assistant
	ai := assistant.New(assistant.Config{
		APIKey:        cfg.AssistantAPIKey,
		BaseURL:       cfg.AssistantBaseURL,
		Model:         cfg.AssistantModel,
		Timeout:       cfg.AssistantTimeout,
		RatePerSecond: cfg.AssistantRatePerSecond,
	}, appLogger)
	if !ai.Enabled() {
		log.Printf("GEMINI_API_KEY not set, assistant answers with fallbacks")
	}

	g, gctx := errgroup.WithContext(ctx)

	deps := store.Deps{
		Catalog:       products,
		Directory:     repo,
		Ledger:        orders,
		KV:            kv,
		Assistant:     ai,
		Logger:        appLogger,
		LoginDelay:    cfg.LoginDelay,
		CheckoutDelay: cfg.CheckoutDelay,
	}

	// Order events
	if len(cfg.KafkaBrokers) > 0 {
		outbox := events.NewOutbox(events.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...), appLogger)
		deps.Events = outbox
		g.Go(func() error {
			outbox.Run(gctx)
			return nil
		})
		log.Printf("Publishing order events to %s on %v", cfg.KafkaTopic, cfg.KafkaBrokers)
	}

	registry := store.NewRegistry(deps)
	defer registry.Close()

	if _, err := registry.Get(ctx, store.DefaultProfile); err != nil {
		log.Printf("Default profile not ready yet: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(h.NewRouter(registry, cfg.RequestTimeout, appLogger), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	g.Go(func() error {
		log.Printf("Storefront starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("Health service listening on port %s", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down storefront...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shut down tracer provider: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("Storefront stopped with error: %v", err)
		os.Exit(1)
	}
	log.Println("Storefront stopped")
}

// setupLedger builds the order ledger, backed by Postgres when ORDERS_DB_HOST
// is set.
func setupLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, func()) {
	if cfg.OrdersDBHost == "" {
		return ledger.New(), func() {}
	}

	archive, err := ledger.NewPostgresArchive(&ledger.Credentials{
		Host:     cfg.OrdersDBHost,
		Port:     cfg.OrdersDBPort,
		User:     cfg.OrdersDBUser,
		Password: cfg.OrdersDBPassword,
		DBName:   cfg.OrdersDBName,
	})
	if err != nil {
		log.Fatalf("Failed to connect to orders database: %v", err)
	}

	if err := archive.RunMigrations(); err != nil {
		log.Fatalf("Failed to run orders migrations: %v", err)
	}

	l := ledger.New(ledger.WithArchive(archive))
	if err := l.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore orders: %v", err)
	}
	log.Printf("Restored %d orders from %s", l.Len(), cfg.OrdersDBHost)

	return l, func() { archive.Close() }
}

// setupStorage picks the KV backend that persists carts and sessions.
func setupStorage(ctx context.Context, cfg *config.Config) (storage.KV, func()) {
	switch cfg.StorageBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("Redis connection failed:", err)
		}
		log.Printf("Redis ping succeeded")
		return storage.NewRedisKV(client), func() { client.Close() }

	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, storage.MongoOptions{
			URI:         cfg.MongoURI,
			Database:    cfg.MongoDBName,
			MaxPoolSize: cfg.MongoMaxPool,
			MinPoolSize: cfg.MongoMinPool,
		})
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		kv := storage.NewMongoKV(db)
		if err := kv.CreateIndexes(ctx); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
		log.Printf("Connected to MongoDB at %s", cfg.MongoURI)
		return kv, func() { db.Client().Disconnect(context.Background()) }

	default:
		return storage.NewMemoryKV(), func() {}
	}
}
