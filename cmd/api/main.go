package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"net/smtp"
	"os"
	"time"

	"github.com/zllovesuki/gembooth/auth"
	"github.com/zllovesuki/gembooth/db"
	"github.com/zllovesuki/gembooth/entitlement"
	"github.com/zllovesuki/gembooth/external"
	"github.com/zllovesuki/gembooth/gallery"
	resp "github.com/zllovesuki/gembooth/response"
	"github.com/zllovesuki/gembooth/subscription"
	"github.com/zllovesuki/gembooth/tier"
	"github.com/zllovesuki/gembooth/usage"
	"github.com/zllovesuki/gembooth/user"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	stripeClient, err := external.NewStripeClient(os.Getenv("STRIPE_KEY"))
	if err != nil {
		logger.Fatal("Cannot initialize Stripe client",
			zap.Error(err),
		)
	}

	db, err := db.New(db.Options{
		URI:    os.Getenv("POSTGRES_URI"),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	smtpAuth := smtp.PlainAuth("", os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_HOST"))

	authManager, err := auth.New(auth.Options{
		Redis:  rdb,
		Logger: logger,

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),

		Environment: authEnvironment,
		SMTPAuth:    smtpAuth,
		From:        os.Getenv("SMTP_FROM"),
		Hostname:    os.Getenv("SMTP_HOST") + ":" + os.Getenv("SMTP_PORT"),
		EmailOption: auth.EmailOption{
			Name: os.Getenv("SITE_NAME"),
			LinkGenerator: func(uid, token string) string {
				return fmt.Sprintf("%s/login/%s/%s", os.Getenv("SITE_URL"), uid, token)
			},
		},
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	catalog, err := tier.LoadCatalog(os.Getenv("TIERS_JSON_PATH"))
	if err != nil {
		logger.Fatal("Cannot load tier catalog",
			zap.Error(err),
		)
	}
	if err := catalog.SynchronizeStripe(context.Background(), stripeClient); err != nil {
		logger.Fatal("Cannot synchronize tier catalog with Stripe",
			zap.Error(err),
		)
	}

	userManager, err := user.NewManager(logger, db, stripeClient)
	if err != nil {
		logger.Fatal("Cannot initialize UserManager",
			zap.Error(err),
		)
	}

	userRouter, err := user.NewService(user.ServiceOptions{
		Auth:        authManager,
		UserManager: userManager,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize User Service Router",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		StripeClient: stripeClient,
		DB:           db,
		Logger:       logger,
		Catalog:      catalog,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		SubscriptionManager: subscriptionManager,
		Catalog:             catalog,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	stripeWebhook, err := subscription.NewWebhook(subscription.WebhookOptions{
		SubscriptionManager: subscriptionManager,
		Logger:              logger,
		SigningSecret:       os.Getenv("STRIPE_WEBHOOK_SECRET"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Stripe Webhook",
			zap.Error(err),
		)
	}

	usageManager, err := usage.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize UsageManager",
			zap.Error(err),
		)
	}

	gate, err := entitlement.NewGate(entitlement.GateOptions{
		Catalog:       catalog,
		Subscriptions: subscriptionManager,
		Usage:         usageManager,
		Logger:        logger,
		StrictMode:    os.Getenv("ENTITLEMENT_STRICT") != "",
	})
	if err != nil {
		logger.Fatal("Cannot initialize Entitlement Gate",
			zap.Error(err),
		)
	}

	entitlementRouter, err := entitlement.NewService(entitlement.ServiceOptions{
		Gate:   gate,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Entitlement Service Router",
			zap.Error(err),
		)
	}

	galleryManager, err := gallery.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize GalleryManager",
			zap.Error(err),
		)
	}

	galleryRouter, err := gallery.NewService(gallery.ServiceOptions{
		GalleryManager: galleryManager,
		Gate:           gate,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Gallery Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.NotFound(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteError(w, r, resp.ErrNotFound())
	})
	rootRouter.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteError(w, r, resp.ErrMethodNotAllowed())
	})

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("SITE_URL")},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	rootRouter.Mount("/users", userRouter.Router())
	rootRouter.Mount("/webhooks", stripeWebhook.Router())

	rootRouter.Group(func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(authManager.ClaimCheck())
		r.Mount("/me", userRouter.AuthenticatedRouter())
		r.Mount("/subscriptions", subscriptionRouter.Router())
		r.Mount("/entitlements", entitlementRouter.Router())
		r.Mount("/gallery", galleryRouter.Router())
	})

	rootRouter.HandleFunc("/pprof/*", pprof.Index)
	rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
	rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
	rootRouter.HandleFunc("/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    os.Getenv("API_ADDR"),
	}

	log.Fatalln(srv.ListenAndServe())
}
