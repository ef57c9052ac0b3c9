package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/api/handlers"
	"github.com/Alserial/VoiceRAG/internal/api/middleware"
)

type Deps struct {
	Quote        *handlers.QuoteHandler
	Product      *handlers.ProductHandler
	Register     *handlers.RegisterHandler
	Intent       *handlers.IntentHandler
	Call         *handlers.CallHandler
	Conversation *handlers.ConversationHandler
	Document     *handlers.DocumentHandler
	WS           *handlers.WSHandler

	JWTSecret string
	JWTIssuer string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// WebSocket relay runs outside the JWT group so browsers can connect
	// without header juggling.
	r.GET("/realtime", d.WS.Realtime)

	// Webhook callbacks come from the providers, not our clients.
	r.POST("/api/calls/events", d.Call.Events)
	r.POST("/api/acs/calls/events", d.Call.ACSEvents)

	api := r.Group("/api")
	api.Use(middleware.JWTAuth(d.JWTSecret, d.JWTIssuer))

	api.GET("/products", d.Product.List)
	api.POST("/documents", d.Document.Upsert)
	api.GET("/documents/:chunk_id", d.Document.Get)

	api.POST("/quotes", d.Quote.Create)
	api.POST("/quotes/confirm", d.Quote.Confirm)
	api.POST("/quotes/cancel", d.Quote.Cancel)
	api.GET("/quotes", d.Quote.List)
	api.GET("/quotes/:quote_id", d.Quote.Get)

	api.POST("/register", d.Register.Register)
	api.POST("/intent", d.Intent.Classify)

	api.POST("/calls", d.Call.Start)
	api.GET("/calls", d.Call.List)
	api.GET("/calls/:call_id", d.Call.Status)
	api.DELETE("/calls/:call_id", d.Call.End)

	api.GET("/conversations", d.Conversation.List)
	api.GET("/conversations/:session_id", d.Conversation.Get)
}
