package router

import (
	"net/http"

	accountsvc "unimarket-backend/internal/application/accounts"
	auctionsvc "unimarket-backend/internal/application/auctions"
	emailsvc "unimarket-backend/internal/application/emails"
	handoffsvc "unimarket-backend/internal/application/handoff"
	ordersvc "unimarket-backend/internal/application/orders"
	"unimarket-backend/internal/application/payments"
	ratingsvc "unimarket-backend/internal/application/ratings"
	uploadsvc "unimarket-backend/internal/application/uploads"
	walletsvc "unimarket-backend/internal/application/wallets"
	"unimarket-backend/internal/config"
	healthsvc "unimarket-backend/internal/health"
	"unimarket-backend/internal/infrastructure/database"
	"unimarket-backend/internal/infrastructure/events"
	authhandler "unimarket-backend/internal/interfaces/handlers/auth"
	handoffhandler "unimarket-backend/internal/interfaces/handlers/handoff"
	healthhandler "unimarket-backend/internal/interfaces/handlers/health"
	listhandler "unimarket-backend/internal/interfaces/handlers/listings"
	orderhandler "unimarket-backend/internal/interfaces/handlers/orders"
	ratinghandler "unimarket-backend/internal/interfaces/handlers/ratings"
	uploadhandler "unimarket-backend/internal/interfaces/handlers/uploads"
	wallethandler "unimarket-backend/internal/interfaces/handlers/wallets"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// App is the assembled server plus the resources the entry points must close.
type App struct {
	Fiber  *fiber.App
	DB     *gorm.DB
	Rdb    *redis.Client
	Events events.Publisher
	Orders *ordersvc.Service
}

// Close releases the event publisher and the Redis client.
func (a *App) Close() {
	if k, ok := a.Events.(*events.KafkaPublisher); ok {
		k.Close()
	}
	if a.Rdb != nil {
		_ = a.Rdb.Close()
	}
}

// OpenDB opens and migrates the configured database.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.DatabaseDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	db, err := database.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewPublisher returns a Kafka publisher when brokers are configured, otherwise a no-op.
func NewPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Warn().Err(err).Strs("brokers", cfg.KafkaBrokers).Msg("kafka unavailable, order events disabled")
		return events.Nop{}
	}
	return p
}

// NewOrders builds the orders service; shared by the API and the release worker.
func NewOrders(cfg *config.Config, db *gorm.DB, pub events.Publisher) *ordersvc.Service {
	var gateway payments.Gateway = &payments.Simulated{}
	if cfg.StripeSecretKey != "" {
		gateway = &payments.StripeGateway{SecretKey: cfg.StripeSecretKey}
	}
	return &ordersvc.Service{
		DB:                db,
		Gateway:           gateway,
		Events:            pub,
		AutoReleaseWindow: cfg.AutoReleaseWindow,
	}
}

func CreateApp(cfg *config.Config) (*App, error) {
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(cfg)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	pub := NewPublisher(cfg)

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		EnableTrustedProxyCheck: true,
		ErrorHandler:            middleware.NewErrorHandler(rdb),
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var mailer emailsvc.Sender
	if cfg.SendinblueAPIKey != "" {
		mailer = &emailsvc.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
	}

	auctions := &auctionsvc.Service{DB: db, Rdb: rdb, CacheTTL: cfg.PollCacheTTL, Events: pub}
	orders := NewOrders(cfg, db, pub)
	handoff := &handoffsvc.Service{
		DB:          db,
		Mailer:      mailer,
		Events:      pub,
		Origin:      cfg.PublicOrigin,
		CodeTTL:     cfg.HandoffCodeTTL,
		MaxAttempts: cfg.HandoffMaxAttempts,
	}
	ratings := &ratingsvc.Service{DB: db, Events: pub}
	wallets := &walletsvc.Service{DB: db}
	accounts := &accountsvc.Service{DB: db, Rdb: rdb, Mailer: mailer, Origin: cfg.PublicOrigin}
	var storage uploadsvc.StorageClient
	if cfg.SupabaseURL != "" {
		storage = &uploadsvc.HTTPClient{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey}
	}
	uploads := &uploadsvc.Service{Client: storage, SupabaseURL: cfg.SupabaseURL}

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &healthsvc.GormPinger{DB: db},
		Escrow:         orders,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	v1 := app.Group("/api/v1")
	auth := middleware.RequireAuth()

	ah := &authhandler.Handlers{
		UserFinder: &accountsvc.GormUserFinder{DB: db},
		Accounts:   accounts,
		Wallets:    wallets,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	ag := v1.Group("/auth")
	ag.Post("/register", ah.Register)
	ag.Post("/login", ah.Login)
	ag.Get("/me", ah.Me)
	ag.Delete("/logout", ah.Logout)
	ag.Post("/verification/request", auth, ah.RequestVerification)
	ag.Post("/verification/confirm", auth, ah.VerifyEmail)

	lh := &listhandler.Handlers{Service: auctions}
	v1.Get("/listings", lh.ListLive)
	v1.Get("/listings/mine", auth, lh.ListMine)
	v1.Get("/listings/:id", lh.GetListing)
	v1.Post("/listings", auth, middleware.AuthorizePermission(constants.CreateListing), lh.CreateListing)
	v1.Get("/auctions/:id", lh.GetAuction)
	v1.Get("/auctions/:id/bids", lh.ListBids)
	v1.Get("/auctions/:id/price-history", lh.PriceHistory)
	v1.Post("/auctions/:id/bids", auth, middleware.AuthorizePermission(constants.PlaceBid), lh.PlaceBid)

	oh := &orderhandler.Handlers{Service: orders}
	hoh := &handoffhandler.Handlers{Service: handoff}
	rh := &ratinghandler.Handlers{Service: ratings}
	og := v1.Group("/orders", auth)
	og.Post("/", middleware.AuthorizePermission(constants.Checkout), oh.CreateOrder)
	og.Get("/buying", oh.ListBuying)
	og.Get("/selling", oh.ListSelling)
	og.Get("/:id", oh.GetOrder)
	og.Post("/:id/capture", middleware.AuthorizePermission(constants.Checkout), oh.CapturePayment)
	og.Post("/:id/dispute", oh.OpenDispute)
	og.Post("/:id/handoff/code", hoh.GenerateCode)
	og.Post("/:id/handoff/send", hoh.SendToBuyer)
	og.Get("/:id/handoff", hoh.Status)
	og.Post("/:id/handoff/verify", hoh.VerifyCode)
	og.Post("/:id/confirm-delivery", hoh.ConfirmDelivery)
	og.Post("/:id/ratings", rh.Submit)
	og.Get("/:id/ratings/mine", rh.Mine)
	v1.Get("/listings/:id/orders", auth, oh.ListForListing)
	v1.Post("/handoff/verify-token", auth, hoh.VerifyToken)
	v1.Get("/users/:id/ratings", rh.ListForUser)

	wh := &wallethandler.Handlers{Service: wallets}
	v1.Post("/wallet/initialize", auth, wh.Initialize)
	v1.Get("/wallet", auth, wh.Get)
	v1.Post("/admin/users/:id/credits", auth, middleware.AuthorizePermission(constants.AdjustCredits), wh.AdjustCredits)

	uph := &uploadhandler.Handlers{Service: uploads}
	upg := v1.Group("/uploads", auth)
	upg.Post("/listing-photo", uph.ListingPhoto)
	upg.Post("/dispute-evidence", uph.DisputeEvidence)

	return &App{Fiber: app, DB: db, Rdb: rdb, Events: pub, Orders: orders}, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
