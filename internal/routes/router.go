package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/diegotmol/alquilersgestion/internal/handlers"
	"github.com/diegotmol/alquilersgestion/internal/middleware"
)

// SetupRoutes inicializa todas las rutas de la aplicación.
func SetupRoutes(r *gin.Engine, syncHandler *handlers.SyncHandler) {
	// --- Rutas públicas ---
	// Login/registro y el flujo OAuth de Gmail (el callback llega sin sesión).
	r.POST("/api/auth/register", handlers.Register)
	r.POST("/api/auth/login", handlers.Login)
	r.GET("/api/auth/url", syncHandler.URLAutorizacion)
	r.GET("/callback", syncHandler.Callback)

	// --- Grupo protegido ---
	// Todo lo demás requiere un JWT válido.
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		api.GET("/inquilinos", handlers.ListInquilinos)
		api.POST("/inquilinos", handlers.CreateInquilino)
		api.PUT("/inquilinos/:id", handlers.UpdateInquilino)
		api.DELETE("/inquilinos/:id", handlers.DeleteInquilino)
		api.PUT("/inquilinos/:id/pago", handlers.UpdateEstadoPago)
		api.GET("/inquilinos/export", handlers.ExportInquilinos)

		api.POST("/sync/emails", syncHandler.SincronizarCorreos)
		api.GET("/sync/last", syncHandler.UltimaSincronizacion)
	}
}
