package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/handler"
)

func Setup(
	cfg *config.Config,
	runHandler *handler.RunHandler,
	postHandler *handler.PostHandler,
	costHandler *handler.CostHandler,
	analysisHandler *handler.AnalysisHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		runs := api.Group("/runs")
		{
			runs.POST("", runHandler.Create)
			runs.GET("/:id", runHandler.Get)
		}

		posts := api.Group("/posts")
		{
			posts.GET("", postHandler.List)
			posts.GET("/:id", postHandler.Get)
			posts.GET("/:id/markdown", postHandler.Markdown)
			posts.GET("/:id/preview", postHandler.Preview)
			posts.PUT("/:id", postHandler.Update)
			posts.POST("/:id/analyze", analysisHandler.AnalyzePost)
		}

		api.POST("/analyze", analysisHandler.Analyze)

		costs := api.Group("/costs")
		{
			costs.GET("", costHandler.List)
			costs.GET("/report", costHandler.Report)
		}
	}

	return r
}
