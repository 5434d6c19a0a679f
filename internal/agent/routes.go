package agent

import (
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/auth"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/device"
	"github.com/dutlab/dutctl/internal/link"
)

type keyRequest struct {
	Key     string `json:"key" binding:"required"`
	Presses int    `json:"presses"`
	DelayMS int    `json:"delay_ms"`
}

type tapRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type dragRequest struct {
	FromX      int `json:"from_x"`
	FromY      int `json:"from_y"`
	ToX        int `json:"to_x"`
	ToY        int `json:"to_y"`
	DurationMS int `json:"duration_ms"`
}

type commandRequest struct {
	Command   string `json:"command" binding:"required"`
	TimeoutMS int    `json:"timeout_ms"`
	Retries   int    `json:"retries"`
}

func (a *Agent) RegisterRoutes() {
	routes := a.routes()

	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Started).String(),
			"agent":   a.Name,
			"version": "0.1.0",
		})
	})

	routes.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(a.Started).String(),
			"agent":   a.Name,
			"version": "0.1.0",
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// gin middleware only applies to routes registered after Use, so
	// the guard lands here: probes above stay open, devices below do
	// not.
	if a.Auth != nil {
		routes = routes.Use(requireToken(a.Auth))
	}

	routes.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"devices": a.Fleet.Describe()})
	})

	routes.GET("/devices/attached", func(c *gin.Context) {
		ids, err := device.List(c.Request.Context(), a.Exec, a.Bridge)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attached": ids})
	})

	routes.POST("/devices/:device/probe", func(c *gin.Context) {
		var state link.State
		err := a.withDevice(c, func(s *device.Session) error {
			var probeErr error
			state, probeErr = s.Probe(c.Request.Context())
			return probeErr
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"device": c.Param("device"), "state": state})
	})

	routes.POST("/devices/:device/reconnect", func(c *gin.Context) {
		var recovered bool
		err := a.withDevice(c, func(s *device.Session) error {
			var recErr error
			recovered, recErr = s.Reconnect(c.Request.Context())
			return recErr
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"device": c.Param("device"), "recovered": recovered})
	})

	routes.POST("/devices/:device/key", func(c *gin.Context) {
		var req keyRequest
		if !bindJSON(c, &req) {
			return
		}
		delay := durationOrDefault(req.DelayMS, device.DefaultKeyDelay)
		err := a.withDevice(c, func(s *device.Session) error {
			return s.PressKey(c.Request.Context(), req.Key, req.Presses, delay)
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": c.Param("device")})
	})

	routes.POST("/devices/:device/ir", func(c *gin.Context) {
		var req keyRequest
		if !bindJSON(c, &req) {
			return
		}
		delay := durationOrDefault(req.DelayMS, device.DefaultIRDelay)
		err := a.withDevice(c, func(s *device.Session) error {
			return s.PressIRKey(c.Request.Context(), req.Key, req.Presses, delay)
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": c.Param("device")})
	})

	routes.POST("/devices/:device/tap", func(c *gin.Context) {
		var req tapRequest
		if !bindJSON(c, &req) {
			return
		}
		err := a.withDevice(c, func(s *device.Session) error {
			return s.Tap(c.Request.Context(), req.X, req.Y)
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": c.Param("device")})
	})

	routes.POST("/devices/:device/drag", func(c *gin.Context) {
		var req dragRequest
		if !bindJSON(c, &req) {
			return
		}
		err := a.withDevice(c, func(s *device.Session) error {
			return s.Drag(c.Request.Context(),
				image.Pt(req.FromX, req.FromY),
				image.Pt(req.ToX, req.ToY),
				time.Duration(req.DurationMS)*time.Millisecond)
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": c.Param("device")})
	})

	routes.POST("/devices/:device/reboot", func(c *gin.Context) {
		err := a.withDevice(c, func(s *device.Session) error {
			return s.Reboot(c.Request.Context())
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": c.Param("device")})
	})

	routes.GET("/devices/:device/properties/:name", func(c *gin.Context) {
		var value string
		err := a.withDevice(c, func(s *device.Session) error {
			var propErr error
			value, propErr = s.Property(c.Request.Context(), c.Param("name"))
			return propErr
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"device": c.Param("device"),
			"name":   c.Param("name"),
			"value":  value,
		})
	})

	routes.POST("/devices/:device/command", func(c *gin.Context) {
		var req commandRequest
		if !bindJSON(c, &req) {
			return
		}
		var out string
		err := a.withDevice(c, func(s *device.Session) error {
			var cmdErr error
			out, cmdErr = s.Command(c.Request.Context(), req.Command,
				time.Duration(req.TimeoutMS)*time.Millisecond, req.Retries)
			return cmdErr
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"device": c.Param("device"), "output": out})
	})

	routes.POST("/devices/:device/screenshot", func(c *gin.Context) {
		var path string
		err := a.withDevice(c, func(s *device.Session) error {
			var shotErr error
			path, shotErr = s.ScreenshotToRun(c.Request.Context())
			return shotErr
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"device": c.Param("device"), "path": path})
	})

	routes.POST("/devices/:device/diagnostics", func(c *gin.Context) {
		err := a.withDevice(c, func(s *device.Session) error {
			return s.CaptureFailure(c.Request.Context())
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "device": c.Param("device")})
	})
}

// withDevice resolves the unit for the :device param and runs fn under
// its lock. Errors are written to the response here; callers only check
// whether to continue.
func (a *Agent) withDevice(c *gin.Context, fn func(*device.Session) error) error {
	id := c.Param("device")
	unit, ok := a.Fleet.Resolve(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrDeviceNotFound.Error(), "device": id})
		return ErrDeviceNotFound
	}
	if err := unit.Do(fn); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "device": id})
		return err
	}
	return nil
}

func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ParseBearer(c.GetHeader("Authorization"))
		if err := v.Validate(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, device.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, adb.ErrNoDevices):
		return http.StatusNotFound
	case errors.Is(err, cmdexec.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrDeviceUnresponsive), errors.Is(err, link.ErrNoConsole):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func durationOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
