package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/robfig/cron/v3"

	"github.com/coinfolio/taxledger-backend/internal/api"
	"github.com/coinfolio/taxledger-backend/internal/config"
	"github.com/coinfolio/taxledger-backend/internal/connector"
	"github.com/coinfolio/taxledger-backend/internal/credentials"
	"github.com/coinfolio/taxledger-backend/internal/database"
	"github.com/coinfolio/taxledger-backend/internal/model"
	"github.com/coinfolio/taxledger-backend/internal/pricing"
	"github.com/coinfolio/taxledger-backend/internal/repository"
	"github.com/coinfolio/taxledger-backend/internal/service"
)

// Exchange API endpoints. Override is test-only, via the transports.
const (
	poloniexBaseURL = "https://poloniex.com"
	bitmexBaseURL   = "https://www.bitmex.com"
	bittrexBaseURL  = "https://bittrex.com"
)

// priceCacheRetention is how long cached historical prices are kept
// before the maintenance job prunes them.
const priceCacheRetention = 90 * 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database: %s", cfg.Database.Path)

	// Create repositories
	reportRepo := repository.NewReportRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	priceCacheRepo := repository.NewPriceCacheRepository(db)

	// Credentials vault. Without a configured key an ephemeral one is
	// generated, so stored credentials do not survive a restart.
	fernetKey := cfg.Secrets.FernetKey
	if fernetKey == "" {
		var key fernet.Key
		if err := key.Generate(); err != nil {
			log.Fatalf("Failed to generate fernet key: %v", err)
		}
		fernetKey = key.Encode()
		log.Println("FERNET_KEY not set; stored exchange credentials will not survive a restart")
	}
	vault, err := credentials.NewVault(fernetKey, credentialRepo)
	if err != nil {
		log.Fatalf("Failed to initialize credentials vault: %v", err)
	}

	// Create services
	systemService := service.NewSystemService(db)
	priceClient := pricing.NewClient(cfg.Pricing.BaseURL)
	reportService := service.NewReportService(
		adapterFactory(vault),
		priceClient,
		cfg.Pricing.Aliases,
		priceCacheRepo,
		reportRepo,
	)

	defaultPolicy := model.TaxPolicy{
		TaxFreePeriodDays:      cfg.Tax.TaxFreePeriodDays,
		IncludeCryptoToCrypto:  cfg.Tax.IncludeCryptoToCrypto,
		AccountForMarginEvents: cfg.Tax.AccountForMarginEvents,
		ReferenceCurrency:      cfg.Tax.ReferenceCurrency,
	}

	// Scheduled maintenance: prune stale cached prices daily.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@daily", func() {
		pruned, err := priceCacheRepo.Prune(time.Now().Add(-priceCacheRetention))
		if err != nil {
			log.Printf("Failed to prune price cache: %v", err)
			return
		}
		if pruned > 0 {
			log.Printf("Pruned %d stale price cache entries", pruned)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule price cache maintenance: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(systemService, reportService, vault, defaultPolicy, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// adapterFactory builds one adapter per exchange with stored
// credentials. Locations without a matching adapter are skipped with a
// log line rather than failing the run.
func adapterFactory(vault *credentials.Vault) service.AdapterFactory {
	return func(ctx context.Context) ([]connector.Adapter, error) {
		locations, err := vault.Locations()
		if err != nil {
			return nil, err
		}

		var adapters []connector.Adapter
		for _, location := range locations {
			creds, err := vault.Load(location)
			if err != nil {
				return nil, err
			}

			switch location {
			case "poloniex":
				adapters = append(adapters, connector.NewPoloniexAdapter(connector.NewPoloniexTransport(poloniexBaseURL, creds)))
			case "bitmex":
				adapters = append(adapters, connector.NewBitmexAdapter(connector.NewBitmexTransport(bitmexBaseURL, creds)))
			case "bittrex":
				adapters = append(adapters, connector.NewBittrexAdapter(connector.NewBittrexTransport(bittrexBaseURL, creds)))
			default:
				log.Printf("No adapter for stored credentials location %q, skipping", location)
			}
		}
		return adapters, nil
	}
}
