// Package routes wires the coordinator's HTTP control surface together.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/api/handlers"
	"github.com/kooshapari/swarmcoordinator/internal/api/middleware"
	"github.com/kooshapari/swarmcoordinator/internal/eventstream"
	"github.com/kooshapari/swarmcoordinator/internal/swarm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SetupRoutes registers every HTTP/WebSocket/metrics route on router.
func SetupRoutes(
	router *gin.Engine,
	coordinator *swarm.Coordinator,
	queen *swarm.Queen,
	hub *eventstream.Hub,
	logger *logrus.Logger,
	environment string,
	allowedOrigins []string,
) {
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(environment, allowedOrigins))

	h := handlers.New(coordinator, queen, logger)

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws/events", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.WithError(err).Warn("failed to upgrade event stream connection")
			return
		}
		client := eventstream.NewClient(hub, conn, logger)
		hub.RegisterClient(client)
		go client.WritePump()
		client.ReadPump()
	})

	api := router.Group("/api")
	{
		agents := api.Group("/agents")
		agents.POST("", h.RegisterAgent)
		agents.POST("/spawn", h.SpawnAgent)
		agents.POST("/hierarchy", h.SpawnHierarchy)
		agents.GET("/:id", h.GetAgent)
		agents.DELETE("/:id", h.UnregisterAgent)
		agents.POST("/:id/terminate", h.TerminateAgent)

		tasks := api.Group("/tasks")
		tasks.POST("", h.SubmitTask)
		tasks.GET("/:id", h.GetTask)
		tasks.DELETE("/:id", h.CancelTask)
		tasks.POST("/:id/delegate", h.DelegateTask)

		api.POST("/consensus", h.ProposeConsensus)
		api.GET("/health", h.GetHealth)
		api.GET("/state", h.GetState)
		api.GET("/status", h.GetStatus)
		api.GET("/metrics/snapshot", h.GetMetrics)
		api.GET("/topology", h.GetTopology)
		api.GET("/queen/learning", h.GetLearningState)
	}
}
