package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"assetvault/internal/domain/asset"
	"assetvault/internal/domain/changelog"
	"assetvault/internal/domain/folder"
	"assetvault/internal/domain/migration"
	"assetvault/internal/domain/retention"
	"assetvault/internal/domain/serving"
	"assetvault/internal/domain/storage"
	"assetvault/internal/domain/upload"
	"assetvault/internal/metrics"
	"assetvault/internal/middleware"
)

// Router mounts the management API under /api/v1, the signed blob routes
// under /blobs and the public file surface under the serve prefix.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorLogger(), middleware.AccessLog())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	servingHandler := serving.NewHandler(a.Serving)

	v1 := r.Group("/api/v1", middleware.CORS(a.Config.CORSOrigins), middleware.Actor())
	{
		folder.NewHandler(a.Folders).RegisterRoutes(v1)
		asset.NewHandler(a.Assets).RegisterRoutes(v1)
		upload.NewHandler(a.Uploads).RegisterRoutes(v1)
		storage.NewHandler(a.Settings).RegisterRoutes(v1)
		migration.NewHandler(a.Migration, a.Settings).RegisterRoutes(v1)
		retention.NewHandler(a.Retention).RegisterRoutes(v1)
		changelog.NewHandler(a.Changes).RegisterRoutes(v1)
		servingHandler.RegisterAPIRoutes(v1)
	}

	if a.BlobHandler != nil {
		a.BlobHandler.RegisterRoutes(r.Group("/blobs"))
	}
	servingHandler.RegisterRoutes(r.Group(a.Config.ServePrefix))
	return r
}
