package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/messaging"
	"github.com/redis/go-redis/v9"

	"dostarBack/internal/bridge"
	"dostarBack/internal/config"
	"dostarBack/internal/handlers"
	"dostarBack/internal/models"
	"dostarBack/internal/repositories"
	"dostarBack/internal/services"
	"dostarBack/utils"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger

	session        *services.BillingSessionManager
	bridge         *bridge.Bridge
	billingHandler *handlers.BillingHandler
	tokens         *utils.Manager
	db             *sql.DB
}

func initializeApp(db *sql.DB, fsClient *firestore.Client, msgClient *messaging.Client, rdb *redis.Client, cfg config.Config, errorLog, infoLog *log.Logger) *application {
	// Repositories
	subscriptionRepo := repositories.NewSubscriptionRepository(fsClient)
	ledger := repositories.NewPurchaseLedger(db)
	ackCache := repositories.NewAckCache(rdb, time.Duration(cfg.Redis.AckTTLH)*time.Hour)

	// Platform connection
	products := make([]models.Product, 0, len(cfg.Billing.Products))
	for _, p := range cfg.Billing.Products {
		products = append(products, models.Product{ID: p.ID, Kind: p.Kind, Price: p.Price, Title: p.Title})
	}
	storeBridge := bridge.New(products, infoLog, errorLog)

	// Services
	validator := services.NewReceiptValidator(services.ReceiptValidatorConfig{
		ProductionURL: cfg.Verification.ProductionURL,
		SandboxURL:    cfg.Verification.SandboxURL,
		SharedSecret:  os.Getenv("VERIFY_SHARED_SECRET"),
		Logger:        infoLog,
	})
	resolver := &services.UserIdentityResolver{Store: subscriptionRepo, Ledger: ledger}
	anomalies := &services.AnomalyReporter{
		Messaging: msgClient,
		Topic:     cfg.Firebase.AnomalyTopic,
		Archive:   utils.NewReceiptArchive(cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.Endpoint),
		ErrorLog:  errorLog,
	}
	registry := services.NewCallbackRegistry()

	reconciler := &services.PurchaseReconciler{
		Platform:  storeBridge,
		Validator: validator,
		Resolver:  resolver,
		Store:     subscriptionRepo,
		Ledger:    ledger,
		Acks:      ackCache,
		Anomalies: anomalies,
		Registry:  registry,
		InfoLog:   infoLog,
		ErrorLog:  errorLog,
	}
	scanner := &services.PendingPurchaseScanner{
		Platform:   storeBridge,
		Reconciler: reconciler,
		InfoLog:    infoLog,
		ErrorLog:   errorLog,
	}
	// Devices report their pending purchases when they connect, which is
	// always after the startup scan; drain the queue as the reports arrive.
	storeBridge.OnPending = func() {
		if err := scanner.Scan(context.Background()); err != nil {
			errorLog.Printf("billing: pending scan: %v", err)
		}
	}
	session := &services.BillingSessionManager{
		Platform:   storeBridge,
		Reconciler: reconciler,
		Scanner:    scanner,
		Classifier: services.NewErrorClassifier(),
		Registry:   registry,
		InfoLog:    infoLog,
		ErrorLog:   errorLog,
	}
	reconciler.LookupProduct = session.LookupProduct

	// Handlers
	billingHandler := handlers.NewBillingHandler(session, subscriptionRepo, ledger)

	tokens, err := utils.NewManager(os.Getenv("JWT_SIGNING_KEY"))
	if err != nil {
		errorLog.Fatalf("token manager: %v", err)
	}

	return &application{
		errorLog:       errorLog,
		infoLog:        infoLog,
		session:        session,
		bridge:         storeBridge,
		billingHandler: billingHandler,
		tokens:         tokens,
		db:             db,
	}
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		return nil, err
	}
	db.SetMaxIdleConns(35)
	log.Println("Successfully connected to database")
	return db, nil
}
