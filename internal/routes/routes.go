package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridianpay/meridian/internal/config"
	"github.com/meridianpay/meridian/internal/dispute"
	"github.com/meridianpay/meridian/internal/identity"
	"github.com/meridianpay/meridian/internal/middleware"
	"github.com/meridianpay/meridian/internal/notification"
	"github.com/meridianpay/meridian/internal/risk"
	"github.com/meridianpay/meridian/internal/settlement"
	"github.com/meridianpay/meridian/internal/transaction"
	"github.com/meridianpay/meridian/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg        config.Config
	DB         *pgxpool.Pool
	Cache      *redis.Client
	Identities identity.Provider
	Logger     *slog.Logger
}

// Wiring exposes the assembled services that outlive request handling, such
// as the settlement scheduler inputs started from main.
type Wiring struct {
	Settlement         *settlement.Service
	SettlementAccounts map[string]string // currency -> company account id
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Wiring, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return Wiring{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Wiring{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.CallerID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Stores
	var walletStore wallet.Store
	if d.DB != nil {
		walletStore = wallet.NewPostgresStore(d.DB)
	} else {
		walletStore = wallet.NewMemoryStore()
	}
	walletSvc := wallet.NewService(walletStore)

	var txRepo transaction.Repository
	if d.DB != nil {
		txRepo = transaction.NewPostgresRepository(d.DB)
	} else {
		txRepo = transaction.NewMemoryRepository()
	}

	var assessments risk.AssessmentStore
	if d.DB != nil {
		assessments = risk.NewPostgresAssessmentStore(d.DB)
	} else {
		assessments = risk.NewMemoryAssessmentStore()
	}

	var counters risk.Counters
	if d.Cache != nil {
		counters = risk.NewRedisCounters(d.Cache)
	} else {
		counters = risk.NewMemoryCounters()
	}

	var settlementRepo settlement.Repository
	if d.DB != nil {
		settlementRepo = settlement.NewPostgresRepository(d.DB)
	} else {
		settlementRepo = settlement.NewMemoryRepository()
	}

	var disputeRepo dispute.Repository
	if d.DB != nil {
		disputeRepo = dispute.NewPostgresRepository(d.DB)
	} else {
		disputeRepo = dispute.NewMemoryRepository()
	}

	identities := d.Identities
	if identities == nil {
		identities = identity.NewStaticProvider()
	}

	// Services
	notifier := notification.NewLoggerNotifier(d.Logger)
	thresholds := risk.Thresholds{
		Block:  d.Cfg.BlockThreshold,
		Review: d.Cfg.ReviewThreshold,
		StepUp: d.Cfg.StepUpThreshold,
	}
	gate := risk.NewEngine(counters, identities, recipientHistory{repo: txRepo}, assessments, thresholds, d.Logger)

	fees := transaction.NewFeeSchedule(transaction.FeeRates{
		TransferBPS:   d.Cfg.TransferFeeBPS,
		WithdrawalBPS: d.Cfg.WithdrawalFeeBPS,
		PaymentBPS:    d.Cfg.PaymentFeeBPS,
		PayoutFlat:    d.Cfg.PayoutFlatFee,
	})
	orchestrator := transaction.NewOrchestrator(txRepo, walletSvc, fees, gate, identities,
		notifier, d.Cfg.CancelWindow, d.Logger)

	settlementSvc := settlement.NewService(settlementRepo, txRepo, notifier, d.Logger)
	accounts, err := ensureCompanyAccounts(settlementRepo)
	if err != nil {
		return Wiring{}, err
	}

	disputeSvc := dispute.NewService(disputeRepo, txRepo, walletSvc, notifier,
		d.Cfg.ChargebackFee, d.Logger)

	// Handlers
	walletHandler := wallet.NewHandler(walletSvc)
	txHandler := transaction.NewHandler(orchestrator)
	settlementHandler := settlement.NewHandler(settlementSvc)
	disputeHandler := dispute.NewHandler(disputeSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterTransactionRoutes(api, txHandler)
	RegisterSettlementRoutes(api, settlementHandler)
	RegisterDisputeRoutes(api, disputeHandler)

	return Wiring{Settlement: settlementSvc, SettlementAccounts: accounts}, nil
}

// ensureCompanyAccounts creates one company settlement account per supported
// currency with a deterministic id, so restarts reuse existing accounts.
func ensureCompanyAccounts(repo settlement.Repository) (map[string]string, error) {
	accounts := make(map[string]string)
	for _, currency := range transaction.Currencies() {
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("meridian/company-account/"+currency)).String()
		err := repo.CreateAccount(context.Background(), settlement.CompanyAccount{
			ID:       id,
			Name:     "settlement " + currency,
			Currency: currency,
		})
		if err != nil {
			return nil, fmt.Errorf("ensure company account %s: %w", currency, err)
		}
		accounts[currency] = id
	}
	return accounts, nil
}

// recipientHistory adapts the transaction repository to the risk gate's
// first-time-recipient check.
type recipientHistory struct {
	repo transaction.Repository
}

func (h recipientHistory) HasPaid(ctx context.Context, senderID, recipientID string) (bool, error) {
	return h.repo.HasPair(ctx, senderID, recipientID)
}
