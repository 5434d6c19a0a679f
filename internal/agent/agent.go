// Package agent exposes a bench over HTTP: device inventory, probes,
// reconnects and the control operations, one route per operation. It
// owns no device logic itself; every handler resolves a session from
// the fleet and drives it.
package agent

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/auth"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/observability"
)

type Agent struct {
	Name    string    `json:"name"`
	Addr    string    `json:"addr"`
	Started time.Time `json:"started"`

	Fleet  *Fleet            `json:"-"`
	Exec   *cmdexec.Executor `json:"-"`
	Bridge adb.Bridge        `json:"-"`

	// Auth, when set, gates every device route. Health, readiness and
	// metrics stay open so probes keep working.
	Auth auth.Validator `json:"-"`

	router   *gin.Engine
	basePath string
}

// New builds an agent with its own router and middleware chain.
func New(name, addr string, corsOrigins []string) *Agent {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Agent{
		Name:    name,
		Addr:    addr,
		Started: time.Now(),
		Fleet:   NewFleet(),
		Exec:    cmdexec.New(cmdexec.Config{}),
		router:  r,
	}
}

// Attach mounts the agent's routes on an existing router under
// basePath, for embedding the bench API in a larger service.
func Attach(name string, router *gin.Engine, basePath string, fleet *Fleet) *Agent {
	if fleet == nil {
		fleet = NewFleet()
	}
	return &Agent{
		Name:     name,
		Started:  time.Now(),
		Fleet:    fleet,
		Exec:     cmdexec.New(cmdexec.Config{}),
		router:   router,
		basePath: basePath,
	}
}

func (a *Agent) HTTPRouter() *gin.Engine {
	return a.router
}

// Serve registers routes and blocks serving on the configured address.
func (a *Agent) Serve() error {
	a.RegisterRoutes()
	log.Info().Str("agent", a.Name).Str("addr", a.Addr).Msg("bench agent serving")
	return a.router.Run(a.Addr)
}

func (a *Agent) routes() gin.IRoutes {
	if a.basePath == "" {
		return a.router
	}
	return a.router.Group(a.basePath)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
