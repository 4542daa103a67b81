package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/malwarebo/mintbridge/api"
	"github.com/malwarebo/mintbridge/config"
	"github.com/malwarebo/mintbridge/db"
	"github.com/malwarebo/mintbridge/ledger"
	"github.com/malwarebo/mintbridge/payments"
	"github.com/malwarebo/mintbridge/resilience"
	"github.com/malwarebo/mintbridge/services"
	"github.com/malwarebo/mintbridge/stores"
	"github.com/malwarebo/mintbridge/submitter"
	"github.com/malwarebo/mintbridge/utils"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func printBanner() {
	fmt.Printf("%s%s", colorCyan, colorBold)
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                                                              ║")
	fmt.Println("║  🪙 MintBridge Asset Purchase Orchestrator                   ║")
	fmt.Println("║                                                              ║")
	fmt.Println("║  Off-chain payments, on-chain delivery                       ║")
	fmt.Println("║                                                              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("%s", colorReset)
}

func printStep(step, message string) {
	fmt.Printf("%s[%s]%s %s%s%s\n", colorBlue, step, colorReset, colorBold, message, colorReset)
}

func printSuccess(message string) {
	fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, message)
}

func printWarning(message string) {
	fmt.Printf("%s⚠%s %s\n", colorYellow, colorReset, message)
}

func printError(message string) {
	fmt.Printf("%s✗%s %s\n", colorRed, colorReset, message)
}

func printInfo(message string) {
	fmt.Printf("%sℹ%s %s\n", colorCyan, colorReset, message)
}

func main() {
	printBanner()
	fmt.Println()

	printStep("1/8", "Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError(fmt.Sprintf("Configuration validation failed: %v", err))
		os.Exit(1)
	}
	printSuccess("Configuration loaded and validated")

	logger := utils.NewLogger("mintbridge")

	printStep("2/8", "Connecting to database...")
	database, err := db.Connect(cfg)
	if err != nil {
		printError(fmt.Sprintf("Failed to connect to database: %v", err))
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Connected to PostgreSQL at %s:%d", cfg.Database.Host, cfg.Database.Port))

	printStep("3/8", "Running schema migrations...")
	migrator := db.CreateMigrator(database)
	if err := migrator.Up(); err != nil {
		printError(fmt.Sprintf("Migrations failed: %v", err))
		os.Exit(1)
	}
	printSuccess("Schema is up to date")

	printStep("4/8", "Initializing stores...")
	purchaseStore := stores.CreatePurchaseStore(database)
	eventStore := stores.CreateEventStore(database)
	ledgerTxStore := stores.CreateLedgerTxStore(database)
	actionStore := stores.CreateActionStore(database)
	compensationStore := stores.CreateCompensationStore(database)
	printSuccess("Stores initialized")

	printStep("5/8", "Connecting to ledger endpoints...")
	endpoints := append([]string{}, cfg.Ledger.Endpoints...)
	endpoints = append(endpoints, cfg.Ledger.FallbackEndpoints...)
	pool, err := ledger.CreatePool(endpoints, ledger.Dial)
	if err != nil {
		printError(fmt.Sprintf("Failed to set up ledger pool: %v", err))
		os.Exit(1)
	}
	breaker := resilience.CreateEndpointBreaker(resilience.EndpointBreakerConfig{
		FailureThreshold: cfg.Ledger.BreakerFailureThreshold,
		Timeout:          cfg.Ledger.BreakerTimeout,
	})
	catalog := ledger.DefaultCatalog()
	printSuccess(fmt.Sprintf("Ledger pool ready with %d endpoint(s) on %s", len(endpoints), cfg.Ledger.Network))

	printStep("6/8", "Initializing submission engine...")
	engine := submitter.CreateEngine(pool, catalog, breaker, actionStore, submitter.EngineConfig{
		Network:        cfg.Ledger.Network,
		MaxRetries:     cfg.Ledger.MaxRetries,
		InitialBackoff: cfg.Ledger.InitialBackoff,
		MaxBackoff:     cfg.Ledger.MaxBackoff,
		Timeout:        cfg.Ledger.SubmitTimeout,
		PollInterval:   cfg.Ledger.PollInterval,
	}, logger)
	printSuccess("Submission engine initialized")

	printStep("7/8", "Initializing services...")
	verifiers := map[string]payments.Provider{}
	if cfg.Stripe.Secret != "" {
		stripeProvider := payments.CreateStripeProvider(cfg.Stripe.Secret)
		verifiers[stripeProvider.Name()] = stripeProvider
	}
	if cfg.Xendit.Secret != "" {
		xenditProvider := payments.CreateXenditProvider(cfg.Xendit.Secret)
		verifiers[xenditProvider.Name()] = xenditProvider
	}
	if len(verifiers) == 0 {
		printWarning("No payment provider configured; funds confirmations will not be verified")
	}

	signer := ledger.CreateRPCSigner(cfg.Ledger.SigningEndpoint, cfg.Ledger.SigningSecret)
	builder := ledger.CreateTransferBuilder(cfg.Ledger.IssuerAccount, signer)

	orchestrator := services.CreateOrchestrator(
		purchaseStore, eventStore, ledgerTxStore,
		engine, builder, verifiers,
		services.DefaultActionRules(),
		services.OrchestratorConfig{LeaseTTL: cfg.Ledger.LeaseTTL},
		logger,
	)
	compensationService := services.CreateCompensationService(
		compensationStore, purchaseStore, eventStore,
		verifiers, orchestrator, logger,
	)
	printSuccess("Services initialized")

	printStep("8/8", "Setting up HTTP server...")
	purchaseHandler := api.CreatePurchaseHandler(orchestrator, purchaseStore, eventStore, ledgerTxStore)
	compensationHandler := api.CreateCompensationHandler(compensationService)
	healthHandler := api.CreateHealthHandler(pool, breaker)

	router := mux.NewRouter()
	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")

	apiRouter.HandleFunc("/purchases", purchaseHandler.HandleCreate).Methods("POST")
	apiRouter.HandleFunc("/purchases/{id}", purchaseHandler.HandleGet).Methods("GET")
	apiRouter.HandleFunc("/purchases/{id}/confirm-funds", purchaseHandler.HandleConfirmFunds).Methods("POST")
	apiRouter.HandleFunc("/purchases/{id}/deliver", purchaseHandler.HandleDeliver).Methods("POST")

	apiRouter.HandleFunc("/compensations", compensationHandler.HandleCreate).Methods("POST")
	apiRouter.HandleFunc("/compensations/pending", compensationHandler.HandleListPending).Methods("GET")
	apiRouter.HandleFunc("/compensations/{id}/approve", compensationHandler.HandleApprove).Methods("POST")
	apiRouter.HandleFunc("/compensations/{id}/execute", compensationHandler.HandleExecute).Methods("POST")

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	printSuccess("HTTP server configured")

	fmt.Println()
	fmt.Printf("%s%s🎉 MintBridge is ready!%s\n", colorGreen, colorBold, colorReset)
	fmt.Println()
	fmt.Printf("%s%sAPI Endpoints:%s\n", colorPurple, colorBold, colorReset)
	fmt.Printf("  %s•%s Health:        %shttp://localhost:%s/health%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s Purchases:     %shttp://localhost:%s/api/v1/purchases%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s Compensations: %shttp://localhost:%s/api/v1/compensations%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Println()
	fmt.Printf("%s%sEnvironment:%s %s%s%s\n", colorPurple, colorBold, colorReset, colorYellow, cfg.Environment, colorReset)
	fmt.Printf("%s%sLedger:%s %s%s (%d endpoint(s))%s\n", colorPurple, colorBold, colorReset, colorYellow, cfg.Ledger.Network, len(endpoints), colorReset)
	fmt.Printf("%s%sDatabase:%s %s%s:%d%s\n", colorPurple, colorBold, colorReset, colorYellow, cfg.Database.Host, cfg.Database.Port, colorReset)
	fmt.Println()
	fmt.Printf("%s%sPress Ctrl+C to stop the server%s\n", colorYellow, colorBold, colorReset)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		printInfo(fmt.Sprintf("Starting HTTP server on port %s...", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return pool.RunHealthChecks(groupCtx, cfg.Ledger.HealthCheckInterval)
	})

	group.Go(func() error {
		<-groupCtx.Done()

		fmt.Println()
		printWarning("Shutting down MintBridge server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		printError(fmt.Sprintf("Server stopped with error: %v", err))
		os.Exit(1)
	}

	if err := pool.Close(); err != nil {
		printWarning(fmt.Sprintf("Ledger pool close: %v", err))
	}

	printSuccess("MintBridge server stopped gracefully")
}
