// alquilersgestion/internal/handlers/sync_handler.go
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/diegotmol/alquilersgestion/internal/gmail"
	syncsvc "github.com/diegotmol/alquilersgestion/internal/sync"
)

// SyncHandler agrupa los endpoints de sincronización y del flujo OAuth.
// Se construye explícitamente en main con sus dependencias; no hay servicios
// globales reinstanciados por petición.
type SyncHandler struct {
	servicio *syncsvc.Service
	gmail    *gmail.Client
}

func NewSyncHandler(servicio *syncsvc.Service, gmailCli *gmail.Client) *SyncHandler {
	return &SyncHandler{servicio: servicio, gmail: gmailCli}
}

// credencialesEntrada replica el diccionario de credenciales que el frontend
// recibió del callback OAuth.
type credencialesEntrada struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

type sincronizarRequest struct {
	Credentials *credencialesEntrada `json:"credentials"`
	Mes         string               `json:"mes"`
	Anio        string               `json:"año"`
}

// SincronizarCorreos maneja POST /api/sync/emails: ejecuta una pasada de
// conciliación y devuelve siempre el resumen en JSON.
func (h *SyncHandler) SincronizarCorreos(c *gin.Context) {
	var req sincronizarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "mensaje": "Datos de solicitud vacíos o inválidos"})
		return
	}
	if req.Credentials == nil || req.Credentials.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No se proporcionaron credenciales", "mensaje": "Credenciales no encontradas en la solicitud"})
		return
	}

	mes := 0
	if req.Mes != "" && req.Mes != "todos" {
		m, err := strconv.Atoi(req.Mes)
		if err != nil || m < 1 || m > 12 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Mes inválido: " + req.Mes, "mensaje": "El mes debe estar entre 01 y 12"})
			return
		}
		mes = m
	}
	anio := 0
	if req.Anio != "" {
		a, err := strconv.Atoi(req.Anio)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Año inválido: " + req.Anio, "mensaje": "El año debe ser numérico"})
			return
		}
		anio = a
	}

	tok := &oauth2.Token{
		AccessToken:  req.Credentials.Token,
		RefreshToken: req.Credentials.RefreshToken,
	}

	slog.Info("Iniciando sincronización de correos", "mes", req.Mes, "anio", req.Anio)
	resultado, err := h.servicio.Sincronizar(c.Request.Context(), tok, mes, anio)
	if err != nil {
		// La búsqueda falló por completo; el resumen lo refleja y el
		// frontend siempre recibe JSON.
		slog.Error("Error en sincronización de correos", "error", err)
	}
	c.JSON(http.StatusOK, resultado)
}

// UltimaSincronizacion maneja GET /api/sync/last.
func (h *SyncHandler) UltimaSincronizacion(c *gin.Context) {
	fecha, err := h.servicio.UltimaSincronizacion(c.Request.Context())
	if err != nil {
		slog.Error("Error al obtener última sincronización", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "mensaje": "Error al obtener última sincronización"})
		return
	}
	if fecha == "" {
		c.JSON(http.StatusOK, gin.H{"last_sync": gin.H{
			"success": false,
			"mensaje": "No hay registros de sincronización previa",
		}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_sync": gin.H{
		"success":              true,
		"fecha_sincronizacion": fecha,
	}})
}

// URLAutorizacion maneja GET /api/auth/url.
func (h *SyncHandler) URLAutorizacion(c *gin.Context) {
	if h.gmail == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "El archivo client_secret.json no existe",
			"mensaje": "Archivo de credenciales no encontrado",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": h.gmail.AuthURL()})
}

// Callback maneja GET /callback del flujo OAuth: canjea el código y redirige
// a la página principal con las credenciales (o el error) en la URL.
func (h *SyncHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		slog.Error("No se proporcionó código de autorización")
		c.Redirect(http.StatusFound, "/?error="+url.QueryEscape("No se proporcionó código de autorización"))
		return
	}
	if h.gmail == nil {
		c.Redirect(http.StatusFound, "/?error="+url.QueryEscape("Credenciales de Google no configuradas"))
		return
	}

	tok, err := h.gmail.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		slog.Error("Error en el callback de autenticación", "error", err)
		c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(err.Error()))
		return
	}

	credenciales, err := json.Marshal(gin.H{
		"token":         tok.AccessToken,
		"refresh_token": tok.RefreshToken,
	})
	if err != nil {
		c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(err.Error()))
		return
	}
	c.Redirect(http.StatusFound, "/?credentials="+url.QueryEscape(string(credenciales)))
}
