package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/cummap/backend/pkg/auth"
	"github.com/cummap/backend/pkg/config"
	"github.com/cummap/backend/pkg/history"
	"github.com/cummap/backend/pkg/logging"
	"github.com/cummap/backend/repos/resend"
	"github.com/cummap/backend/repos/store"

	"github.com/cummap/backend/services/calendar"
	"github.com/cummap/backend/services/catalog"
	"github.com/cummap/backend/services/notify"
	"github.com/cummap/backend/services/venues"
	"github.com/cummap/backend/services/votes"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Firebase.CredentialsJSON)))
	}

	firebaseApp, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:   cfg.Firebase.ProjectID,
		DatabaseURL: cfg.Firebase.DatabaseURL,
	}, opts...)
	if err != nil {
		logger.Fatalf("error initializing app: %v", err)
	}
	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		logger.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	st, closeStore := openStore(ctx, cfg, firebaseApp, opts, logger)
	defer closeStore()

	loc := cfg.Location()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	projection := venues.NewProjection(st, loc, logger.Named("projection"))
	if err := projection.Start(ctx); err != nil {
		logger.Fatalf("Failed to subscribe to venues: %v", err)
	}
	defer projection.Stop()

	edits := history.New(
		history.WithCapacity(cfg.History.Capacity),
		history.WithLogger(logger.Named("history")),
	)
	venuesService := venues.NewVenuesService(st, edits, loc, logger.Named("venues"))

	eventCatalog, err := catalog.Load(cfg.Event.CatalogPath, loc)
	if err != nil {
		logger.Fatalf("Failed to load catalog: %v", err)
	}
	calendarService := calendar.NewCalendarService(projection, eventCatalog, loc)

	capability, err := notify.SelectCapability(ctx, cfg.Notify.Capability, func(ctx context.Context) (notify.Messenger, error) {
		client, err := firebaseApp.Messaging(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, st, logger)
	if err != nil {
		logger.Fatalf("Failed to select notification capability: %v", err)
	}
	logger.Infof("Notifications use the %s capability", capability.Name())
	optimizer := notify.NewOptimizer(registry, notify.OptimizerOptions{
		DedupeWindow:  cfg.Notify.DedupeWindow,
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
	})
	notifyService := notify.NewNotifyService(capability, st, optimizer, logger.Named("notify"))

	var reporter votes.Reporter
	if mailer := resend.NewService(cfg.Resend.APIKey, cfg.Votes.ReportSender, cfg.Votes.ReportRecipients); mailer != nil {
		reporter = mailer
	}
	votesService := votes.NewVotesService(st, cfg.Votes.Workers, reporter, logger.Named("votes"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Access-Control-Allow-Origin"}

	router := gin.Default()
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	adminRouter := router.Group("/admin/v1")
	adminRouter.Use(auth.AuthMiddleware(authClient))

	publicRouter := router.Group("/public/v1")

	relayRouter := router.Group("/")
	relayRouter.Use(auth.ServerSecretMiddleware(cfg.Notify.ServerSecret))

	venues.NewAdminHTTPHandler(venues.AdminHTTPOptions{
		Service: venuesService,
		Router:  adminRouter,
	})

	venues.NewPublicHTTPHandler(venues.PublicHTTPOptions{
		Projection: projection,
		Router:     publicRouter,
	})

	catalog.NewHTTPHandler(catalog.HTTPOptions{
		Catalog: eventCatalog,
		Router:  publicRouter,
	})

	calendar.NewHTTPHandler(calendar.HTTPOptions{
		Service: calendarService,
		Router:  publicRouter,
	})

	notify.NewHTTPHandler(notify.HTTPOptions{
		Service: notifyService,
		Router:  relayRouter,
	})

	votes.NewHTTPHandler(votes.HTTPOptions{
		Service: votesService,
		Router:  relayRouter,
	})

	logger.Infof("Listening on :%s with the %s store", cfg.Server.Port, cfg.Store.Backend)
	logger.Fatal(router.Run(":" + cfg.Server.Port))
}

func openStore(ctx context.Context, cfg *config.Config, app *firebase.App, opts []option.ClientOption, logger *zap.SugaredLogger) (store.Store, func()) {
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		firestoreClient, err := firestore.NewClient(ctx, cfg.Firebase.ProjectID, opts...)
		if err != nil {
			logger.Fatalf("Failed to create Firestore client: %v", err)
		}
		return store.NewFirestore(firestoreClient, logger.Named("firestore")), func() { firestoreClient.Close() }

	case config.BackendRTDB:
		dbClient, err := app.Database(ctx)
		if err != nil {
			logger.Fatalf("Failed to create Realtime Database client: %v", err)
		}
		interval := cfg.Store.PollInterval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		return store.NewRTDB(dbClient, interval, logger.Named("rtdb")), func() {}
	}

	logger.Warn("Using the in-memory store; data is lost on restart")
	return store.NewMemory(), func() {}
}
