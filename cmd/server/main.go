package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diegotmol/alquilersgestion/config"
	"github.com/diegotmol/alquilersgestion/internal/gmail"
	"github.com/diegotmol/alquilersgestion/internal/handlers"
	"github.com/diegotmol/alquilersgestion/internal/routes"
	"github.com/diegotmol/alquilersgestion/internal/store"
	syncsvc "github.com/diegotmol/alquilersgestion/internal/sync"
)

func main() {
	config.ConnectDB()
	config.ConnectRedis()
	config.LoadJwtKey()

	almacen := store.New(config.DB)
	if err := almacen.Migrate(); err != nil {
		slog.Error("Error al migrar el esquema", "error", err)
		os.Exit(1)
	}

	// Aprovisionamiento anual: al arrancar se aseguran los cupos del año en
	// curso y del anterior (reemplaza al antiguo script de columnas).
	ctx := context.Background()
	anioActual := time.Now().UTC().Year()
	for _, anio := range []int{anioActual - 1, anioActual} {
		if _, err := almacen.EnsureYear(ctx, anio); err != nil {
			slog.Error("No se pudo aprovisionar el año de pagos", "anio", anio, "error", err)
			os.Exit(1)
		}
	}

	var gmailCli *gmail.Client
	if oauthCfg, err := config.LoadOAuthConfig(); err != nil {
		slog.Warn("Credenciales de Google no disponibles, la sincronización quedará deshabilitada", "error", err)
	} else {
		gmailCli = gmail.NewClient(oauthCfg)
	}

	opts := syncsvc.DefaultOptions()
	if os.Getenv("SYNC_REQUIRE_AMOUNT_MATCH") == "false" {
		opts.RequerirMonto = false
	}
	if os.Getenv("SYNC_PREFER_RECEIPT_DATE") == "true" {
		opts.PreferirFechaRecepcion = true
	}

	servicio := syncsvc.NewService(gmailCli, almacen, config.RDB, opts)
	syncHandler := handlers.NewSyncHandler(servicio, gmailCli)

	r := gin.Default()
	routes.SetupRoutes(r, syncHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	slog.Info("Servidor iniciado", "puerto", port)
	if err := r.Run(":" + port); err != nil {
		slog.Error("Error del servidor HTTP", "error", err)
		os.Exit(1)
	}
}
