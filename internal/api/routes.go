package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/jm-disentangle/internal/engine"
	"github.com/rawblock/jm-disentangle/internal/jmerr"
)

const defaultDustSatoshi = 546

// APIHandler holds the long-lived collaborators every request-handler
// closes over, mirroring the teacher's APIHandler shape.
type APIHandler struct {
	eng   *engine.Engine
	wsHub *Hub
}

// SetupRouter wires the health, analyze, and stream endpoints behind
// the teacher's CORS/auth/rate-limit middleware stack.
func SetupRouter(eng *engine.Engine, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://example.com
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{eng: eng, wsHub: wsHub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	// The enumeration endpoint runs the full solve loop synchronously,
	// so it gets the same bearer-token auth and per-IP rate limit the
	// teacher puts on its heavier /analyze/:txid route.
	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware())
	protected.Use(NewRateLimiter(30, 5).WeightedMiddleware(analyzeCost))
	{
		protected.GET("/analyze/:txid", handler.handleAnalyzeTx)
	}

	return r
}

// handleAnalyzeTx runs the engine synchronously until the search is
// exhausted, maxSolutions is reached, or the request context is
// cancelled, returning the accumulated solutions. Each solve is
// bounded by timeoutPerSolve; the run as a whole has no wall-clock
// limit. Each solution is also broadcast over the websocket hub as
// it's found.
func (h *APIHandler) handleAnalyzeTx(c *gin.Context) {
	txid := c.Param("txid")

	maxFeeRel, err := strconv.ParseFloat(c.DefaultQuery("maxFeeRel", "0.05"), 64)
	if err != nil || maxFeeRel < 0 || maxFeeRel > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maxFeeRel must be a number in [0,1]"})
		return
	}
	maxSolutions, err := strconv.Atoi(c.DefaultQuery("maxSolutions", "1000"))
	if err != nil || maxSolutions <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maxSolutions must be a positive integer"})
		return
	}
	timeoutPerSolve, err := strconv.Atoi(c.DefaultQuery("timeoutPerSolve", "60"))
	if err != nil || timeoutPerSolve <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeoutPerSolve must be a positive integer"})
		return
	}

	cfg := engine.Config{
		MaxFeeRel:     maxFeeRel,
		DustThreshold: defaultDustSatoshi,
		MaxSolutions:  maxSolutions,
		TimePerSolve:  time.Duration(timeoutPerSolve) * time.Second,
	}

	summary, err := h.eng.Analyze(c.Request.Context(), txid, cfg, h.wsHub.BroadcastSolution)
	if err != nil {
		kind, ok := jmerr.KindOf(err)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		switch kind {
		case jmerr.InputError:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case jmerr.NetworkError:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "coinjoin-disentangle v1.0",
	})
}
