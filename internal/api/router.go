package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/hardware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/middleware"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/point"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/repository"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/websocket"
)

// Router wires the HTTP surface of the node: operator endpoints,
// diagnostics and the websocket status channel.
type Router struct {
	engine *gin.Engine
	logger *zap.Logger

	hw    *hardware.Manager
	entry *point.EntryPoint
	exit  *point.ExitPoint
	hub   *websocket.Hub

	syncJobs repository.SyncJobRepository
	events   repository.DeviceEventRepository
	gateOps  repository.GateOperationRepository

	upgrader gws.Upgrader
}

// Deps carries everything the router needs. Repository fields may be
// nil, the matching endpoints then return empty results.
type Deps struct {
	Hardware *hardware.Manager
	Entry    *point.EntryPoint
	Exit     *point.ExitPoint
	Hub      *websocket.Hub

	SyncJobs repository.SyncJobRepository
	Events   repository.DeviceEventRepository
	GateOps  repository.GateOperationRepository
}

func NewRouter(deps Deps) *Router {
	r := &Router{
		engine:   gin.New(),
		logger:   logger.WithModule("api"),
		hw:       deps.Hardware,
		entry:    deps.Entry,
		exit:     deps.Exit,
		hub:      deps.Hub,
		syncJobs: deps.SyncJobs,
		events:   deps.Events,
		gateOps:  deps.GateOps,
		upgrader: gws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the operator UI is served from a different origin on the LAN
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestLogger())
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/ws", r.serveWS)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/hardware/status", r.hardwareStatus)

		v1.POST("/entry/capture", r.entryCapture)

		v1.POST("/gate/:lane/open", r.gateOpen)
		v1.POST("/gate/:lane/close", r.gateClose)
		v1.GET("/gate/:lane/audit", r.gateAudit)

		v1.POST("/exit/ticket", r.exitTicket)
		v1.POST("/exit/payment", r.exitPayment)
		v1.POST("/exit/cancel", r.exitCancel)

		v1.GET("/events", r.deviceEvents)
	}
}

func (r *Router) serveWS(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := websocket.NewClient(r.hub, conn)
	r.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// Engine exposes the underlying gin engine for the HTTP server.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}
