package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/config"
	"github.com/Alserial/VoiceRAG/internal/api/handlers"
	"github.com/Alserial/VoiceRAG/internal/api/middleware"
	"github.com/Alserial/VoiceRAG/internal/api/routes"
	"github.com/Alserial/VoiceRAG/internal/cache"
	"github.com/Alserial/VoiceRAG/internal/logger"
	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/calls"
	"github.com/Alserial/VoiceRAG/internal/providers/crm"
	"github.com/Alserial/VoiceRAG/internal/providers/email"
	"github.com/Alserial/VoiceRAG/internal/providers/llm"
	"github.com/Alserial/VoiceRAG/internal/realtime"
	mongorepo "github.com/Alserial/VoiceRAG/internal/repositories/mongo"
	pgrepo "github.com/Alserial/VoiceRAG/internal/repositories/postgres"
	"github.com/Alserial/VoiceRAG/internal/services"
	"github.com/Alserial/VoiceRAG/internal/tools"
)

const defaultSystemMessage = `You are a helpful assistant. Only answer questions based on information you searched in the knowledge base, accessible with the 'search' tool. The user is listening to answers with audio, so keep answers as short as possible, a single sentence if at all possible.
Never read file names or source names or keys out loud.
Always use the following step-by-step instructions to respond:
1. Always use the 'search' tool to check the knowledge base before answering a question.
2. Always use the 'report_grounding' tool to report the source of information from the knowledge base.
3. Produce an answer that's as short as possible. If the answer isn't in the knowledge base, say you don't know.
When the user wants a quote, use the 'extract_quote_info' tool after every user turn so the draft stays current, and ask only for the fields still missing.`

func main() {
	_ = godotenv.Load()

	log := logger.New()
	mainLog := logger.Component(log, "main")

	// Infra connections are all optional. Anything missing degrades the
	// matching feature instead of stopping the server.
	if err := config.InitPostgres(); err != nil {
		mainLog.WithError(err).Warn("postgres unavailable, search and quote history disabled")
	} else {
		migrate(mainLog)
	}
	if err := config.InitRedis(); err != nil {
		mainLog.WithError(err).Warn("redis unavailable, caching and pending quotes disabled")
	}
	if err := config.InitMongo(); err != nil {
		mainLog.WithError(err).Warn("mongo unavailable, transcript capture disabled")
	} else if err := config.EnsureMongoIndexes(); err != nil {
		mainLog.WithError(err).Warn("mongo index setup failed")
	}

	ctx := context.Background()

	var llmProvider llm.Provider = llm.Unconfigured{}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		g, err := llm.NewGemini(ctx, key,
			envOr("GEMINI_MODEL", "gemini-2.0-flash"),
			envOr("GEMINI_EMBED_MODEL", "text-embedding-004"))
		if err != nil {
			mainLog.WithError(err).Warn("gemini unavailable, falling back to heuristic extraction")
		} else {
			llmProvider = g
			defer g.Close()
		}
	}

	var crmProvider crm.Provider = crm.Unavailable{}
	sfCfg := crm.SalesforceConfig{
		InstanceURL:       os.Getenv("SALESFORCE_INSTANCE_URL"),
		Username:          os.Getenv("SALESFORCE_USERNAME"),
		Password:          os.Getenv("SALESFORCE_PASSWORD"),
		SecurityToken:     os.Getenv("SALESFORCE_SECURITY_TOKEN"),
		ConsumerKey:       os.Getenv("SALESFORCE_CONSUMER_KEY"),
		ConsumerSecret:    os.Getenv("SALESFORCE_CONSUMER_SECRET"),
		PricebookID:       os.Getenv("SALESFORCE_PRICEBOOK_ID"),
		CreateOpportunity: envBool("SALESFORCE_CREATE_OPPORTUNITY"),
		OpportunityStage:  os.Getenv("SALESFORCE_OPPORTUNITY_STAGE"),
	}
	if sf, err := crm.NewSalesforce(sfCfg, logger.Component(log, "crm")); err != nil {
		mainLog.WithError(err).Warn("salesforce unavailable, quotes will be minted locally")
	} else {
		crmProvider = sf
	}

	var mailer email.Mailer = email.Noop{}
	smtpCfg := email.SMTPConfig{
		Host:          os.Getenv("SMTP_HOST"),
		Port:          envInt("SMTP_PORT", 587),
		User:          os.Getenv("SMTP_USER"),
		Password:      os.Getenv("SMTP_PASSWORD"),
		From:          os.Getenv("SMTP_FROM"),
		FromName:      os.Getenv("SMTP_FROM_NAME"),
		SubjectPrefix: os.Getenv("SMTP_SUBJECT_PREFIX"),
	}
	if m, err := email.NewSMTPMailer(smtpCfg, logger.Component(log, "email")); err != nil {
		mainLog.WithError(err).Warn("smtp unavailable, email notifications disabled")
	} else {
		mailer = m
	}

	var caller calls.Caller = calls.Unavailable{}
	teamsCfg := calls.TeamsConfig{
		TenantID:       os.Getenv("TEAMS_TENANT_ID"),
		ClientID:       os.Getenv("TEAMS_CLIENT_ID"),
		ClientSecret:   os.Getenv("TEAMS_CLIENT_SECRET"),
		CallbackURL:    os.Getenv("TEAMS_CALLBACK_URL"),
		BotAppID:       os.Getenv("TEAMS_BOT_APP_ID"),
		BotDisplayName: os.Getenv("TEAMS_BOT_DISPLAY_NAME"),
	}
	if t, err := calls.NewTeamsCaller(teamsCfg, logger.Component(log, "calls")); err != nil {
		mainLog.WithError(err).Warn("graph calling unavailable")
	} else {
		caller = t
	}

	var answerer calls.Answerer = calls.Unavailable{}
	acsCfg := calls.ACSConfig{
		ConnectionString: os.Getenv("ACS_CONNECTION_STRING"),
		CallbackURL:      os.Getenv("ACS_CALLBACK_URL"),
	}
	if a, err := calls.NewACSCaller(acsCfg, logger.Component(log, "acs")); err != nil {
		mainLog.WithError(err).Warn("acs calling unavailable")
	} else {
		answerer = a
	}

	var cacheClient cache.Cache
	if config.RedisClient != nil {
		cacheClient = cache.NewRedisCache(config.RedisClient)
	}

	var quoteRepo pgrepo.QuoteRepository
	var docRepo pgrepo.DocumentRepository
	if config.PostgresDB != nil {
		quoteRepo = pgrepo.NewQuoteRepo(config.PostgresDB)
		docRepo = pgrepo.NewDocumentRepo(config.PostgresDB)
	}
	var convRepo mongorepo.ConversationRepository
	if db := config.MongoDatabase(); db != nil {
		convRepo = mongorepo.NewConversationRepo(db)
	}

	sessions := realtime.NewSessionStore()
	pending := services.NewPendingQuoteStore(cacheClient)

	productSvc := services.NewProductService(crmProvider, cacheClient, logger.Component(log, "products"))
	searchSvc := services.NewSearchService(docRepo, llmProvider, logger.Component(log, "search"))
	quoteSvc := services.NewQuoteService(crmProvider, mailer, quoteRepo, sessions, pending, logger.Component(log, "quotes"))
	intentSvc := services.NewIntentService(llmProvider, logger.Component(log, "intent"))
	convSvc := services.NewConversationService(convRepo, mailer, os.Getenv("TRANSCRIPT_EMAIL_TO"), logger.Component(log, "conversations"))
	callSvc := services.NewCallService(caller, answerer, logger.Component(log, "calls"))
	registerSvc := services.NewRegisterService(crmProvider, logger.Component(log, "register"))

	registry := tools.NewRegistry()
	if docRepo != nil {
		mustRegister(registry, tools.NewSearchTool(searchSvc))
		mustRegister(registry, tools.NewGroundingTool(searchSvc))
	} else {
		mainLog.Warn("document index unavailable, search tools not registered")
	}
	mustRegister(registry, tools.NewExtractQuoteTool(llmProvider, productSvc, logger.Component(log, "tools")))
	mustRegister(registry, tools.NewExtractUserTool(llmProvider, logger.Component(log, "tools")))

	relayCfg := realtime.Config{
		SystemMessage: envOr("SYSTEM_MESSAGE", defaultSystemMessage),
		Voice:         os.Getenv("REALTIME_VOICE"),
	}
	if v, ok := envFloat("REALTIME_TEMPERATURE"); ok {
		relayCfg.Temperature = &v
	}
	if v, err := strconv.Atoi(os.Getenv("REALTIME_MAX_TOKENS")); err == nil {
		relayCfg.MaxOutputTokens = &v
	}
	if os.Getenv("REALTIME_DISABLE_AUDIO") != "" {
		v := envBool("REALTIME_DISABLE_AUDIO")
		relayCfg.DisableAudio = &v
	}

	upstreamCfg := realtime.UpstreamConfig{
		URL:    envOr("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  envOr("REALTIME_MODEL", "gpt-4o-realtime-preview"),
	}
	var dialer realtime.Dialer
	if d, err := realtime.NewAPIDialer(upstreamCfg); err != nil {
		mainLog.WithError(err).Warn("realtime upstream not configured, voice sessions disabled")
	} else {
		dialer = d
	}
	relay := realtime.NewRelay(dialer, registry, relayCfg, sessions, convSvc, pending, logger.Component(log, "relay"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Quote:        handlers.NewQuoteHandler(quoteSvc),
		Product:      handlers.NewProductHandler(productSvc),
		Register:     handlers.NewRegisterHandler(registerSvc),
		Intent:       handlers.NewIntentHandler(intentSvc),
		Call:         handlers.NewCallHandler(callSvc),
		Conversation: handlers.NewConversationHandler(convSvc),
		Document:     handlers.NewDocumentHandler(searchSvc),
		WS:           handlers.NewWSHandler(relay, logger.Component(log, "ws")),
		JWTSecret:    os.Getenv("API_JWT_SECRET"),
		JWTIssuer:    os.Getenv("API_JWT_ISSUER"),
	})

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: r,
	}

	go func() {
		mainLog.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLog.WithError(err).Fatal("server failed")
		}
	}()

	stop, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.WithError(err).Warn("shutdown incomplete")
	}
	mainLog.Info("server stopped")
}

func migrate(log *logrus.Entry) {
	db := config.PostgresDB
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		log.WithError(err).Warn("pgvector extension unavailable, vector search degraded")
	}
	if err := db.AutoMigrate(&models.Quote{}, &models.Document{}); err != nil {
		log.WithError(err).Warn("automigrate failed")
	}
}

func mustRegister(r *tools.Registry, t tools.Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func envFloat(key string) (float64, bool) {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
