// alquilersgestion/config/google.go
package config

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// LoadOAuthConfig carga la configuración OAuth2 de Gmail desde el archivo
// client_secret.json (formato "web" de la consola de Google). La ruta puede
// sobreescribirse con GOOGLE_CLIENT_SECRET_FILE y la URL de retorno con
// OAUTH_REDIRECT_URL.
func LoadOAuthConfig() (*oauth2.Config, error) {
	path := os.Getenv("GOOGLE_CLIENT_SECRET_FILE")
	if path == "" {
		path = "client_secret.json"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no se pudo leer %s: %w", path, err)
	}

	cfg, err := google.ConfigFromJSON(data, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("formato incorrecto en %s: %w", path, err)
	}

	if redirect := os.Getenv("OAUTH_REDIRECT_URL"); redirect != "" {
		cfg.RedirectURL = redirect
	}

	slog.Info("Credenciales de Google cargadas", "archivo", path, "redirect", cfg.RedirectURL)
	return cfg, nil
}
