// Package gmail implementa la obtención de correos mediante la API de Gmail
// con OAuth2 (ámbito de solo lectura).
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/diegotmol/alquilersgestion/internal/parser"
)

var (
	// ErrAutenticacion: credenciales inválidas o expiradas. Fatal para la
	// sincronización; se propaga al llamador sin reintentos silenciosos.
	ErrAutenticacion = errors.New("credenciales de Gmail inválidas o expiradas")
	// ErrFetchTransitorio: cualquier otro fallo al consultar Gmail. El
	// llamador puede reintentar la sincronización completa.
	ErrFetchTransitorio = errors.New("error transitorio consultando Gmail")
)

// maxResultados limita la búsqueda; la API no se pagina aquí.
const maxResultados = 10

type Client struct {
	oauth *oauth2.Config
}

func NewClient(cfg *oauth2.Config) *Client {
	return &Client{oauth: cfg}
}

// AuthURL genera la URL de autorización OAuth2 para Gmail.
func (c *Client) AuthURL() string {
	return c.oauth.AuthCodeURL("state",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode canjea el código de autorización por un token de acceso.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAutenticacion, err)
	}
	slog.Info("Token de Gmail obtenido correctamente")
	return tok, nil
}

// FetchCorreos busca los mensajes que coinciden con la consulta y devuelve el
// remitente, las cabeceras y el cuerpo crudo (base64url) de cada uno.
func (c *Client) FetchCorreos(ctx context.Context, tok *oauth2.Token, consulta string) ([]parser.Correo, error) {
	if c == nil || c.oauth == nil {
		return nil, fmt.Errorf("%w: cliente de Gmail no configurado", ErrAutenticacion)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token vacío", ErrAutenticacion)
	}

	srv, err := gmailapi.NewService(ctx, option.WithTokenSource(c.oauth.TokenSource(ctx, tok)))
	if err != nil {
		return nil, clasificarError(err)
	}

	lista, err := srv.Users.Messages.List("me").Q(consulta).MaxResults(maxResultados).Do()
	if err != nil {
		return nil, clasificarError(err)
	}
	if len(lista.Messages) == 0 {
		slog.Info("No se encontraron mensajes", "consulta", consulta)
		return nil, nil
	}

	correos := make([]parser.Correo, 0, len(lista.Messages))
	for _, m := range lista.Messages {
		msg, err := srv.Users.Messages.Get("me", m.Id).Format("full").Do()
		if err != nil {
			return nil, clasificarError(err)
		}

		correo := parser.Correo{ID: m.Id}
		if msg.InternalDate > 0 {
			correo.Recibido = time.UnixMilli(msg.InternalDate).UTC()
		}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch h.Name {
				case "Subject":
					correo.Asunto = h.Value
				case "From":
					correo.De = h.Value
				case "Date":
					correo.Fecha = h.Value
				}
			}
			correo.Cuerpo = cuerpoDe(msg.Payload)
		}
		correos = append(correos, correo)
	}

	slog.Info("Correos obtenidos de Gmail", "consulta", consulta, "total", len(correos))
	return correos, nil
}

// cuerpoDe busca el cuerpo del mensaje: prefiere la parte text/html, luego
// text/plain y por último el cuerpo del nivel superior.
func cuerpoDe(payload *gmailapi.MessagePart) string {
	var textoPlano string
	var buscar func(parte *gmailapi.MessagePart) string
	buscar = func(parte *gmailapi.MessagePart) string {
		if parte == nil {
			return ""
		}
		if parte.MimeType == "text/html" && parte.Body != nil && parte.Body.Data != "" {
			return parte.Body.Data
		}
		if parte.MimeType == "text/plain" && parte.Body != nil && parte.Body.Data != "" && textoPlano == "" {
			textoPlano = parte.Body.Data
		}
		for _, hija := range parte.Parts {
			if html := buscar(hija); html != "" {
				return html
			}
		}
		return ""
	}

	if html := buscar(payload); html != "" {
		return html
	}
	if textoPlano != "" {
		return textoPlano
	}
	if payload.Body != nil {
		return payload.Body.Data
	}
	return ""
}

func clasificarError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 401 || gerr.Code == 403) {
		return fmt.Errorf("%w: %v", ErrAutenticacion, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", ErrAutenticacion, err)
	}
	return fmt.Errorf("%w: %v", ErrFetchTransitorio, err)
}
