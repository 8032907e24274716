// Package matcher asocia una transferencia extraída de un correo con el
// inquilino que mejor coincide en la nómina.
package matcher

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/diegotmol/alquilersgestion/internal/parser"
	"github.com/diegotmol/alquilersgestion/models"
)

// ErrSinCoincidencia indica que ningún inquilino coincide con la transferencia.
// No es un fallo: el pago queda sin conciliar y el proceso continúa.
var ErrSinCoincidencia = errors.New("sin coincidencia de inquilino")

// UmbralTokens es el porcentaje mínimo de tokens coincidentes para aceptar
// una coincidencia por solapamiento de palabras.
const UmbralTokens = 50.0

// Opciones controla la exigencia del emparejado.
type Opciones struct {
	// RequerirMonto exige que el monto de la transferencia sea exactamente el
	// monto mensual del inquilino para aceptar coincidencias por nombre.
	RequerirMonto bool
}

var quitarDiacriticos = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalizar deja un nombre en minúsculas, sin tildes y solo con caracteres
// alfanuméricos, de modo que "Diego Tápia" y "diego tapia" comparen iguales.
func Normalizar(s string) string {
	sinTildes, _, err := transform.String(quitarDiacriticos, s)
	if err != nil {
		sinTildes = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(sinTildes) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizarTokens separa un nombre en palabras ya normalizadas.
func normalizarTokens(s string) []string {
	var tokens []string
	for _, campo := range strings.Fields(s) {
		if t := Normalizar(campo); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Buscar encuentra el único inquilino que corresponde a la transferencia, o
// ErrSinCoincidencia. Las reglas se prueban en orden y gana la primera que
// produce un candidato: igualdad del nombre normalizado, subcadena,
// solapamiento de tokens (>= UmbralTokens) y, como último recurso, el RUT.
// Las reglas por nombre respetan el filtro de monto de Opciones; la del RUT no,
// porque el RUT ya identifica a la persona.
func Buscar(t *parser.Transferencia, inquilinos []models.Inquilino, opts Opciones) (*models.Inquilino, error) {
	emisor := Normalizar(t.Emisor)

	if emisor != "" {
		// 1. Igualdad exacta del nombre normalizado
		for i := range inquilinos {
			if Normalizar(inquilinos[i].Propietario) != emisor {
				continue
			}
			if !pasaFiltroMonto(t, &inquilinos[i], opts) {
				continue
			}
			slog.Info("Coincidencia exacta", "emisor", t.Emisor, "propietario", inquilinos[i].Propietario)
			return &inquilinos[i], nil
		}

		// 2. Subcadena en cualquier dirección
		for i := range inquilinos {
			nombre := Normalizar(inquilinos[i].Propietario)
			if nombre == "" {
				continue
			}
			if !strings.Contains(nombre, emisor) && !strings.Contains(emisor, nombre) {
				continue
			}
			if !pasaFiltroMonto(t, &inquilinos[i], opts) {
				continue
			}
			slog.Info("Coincidencia parcial", "emisor", t.Emisor, "propietario", inquilinos[i].Propietario)
			return &inquilinos[i], nil
		}

		// 3. Solapamiento de tokens: mejor puntaje >= umbral, empate lo gana
		// el primero en el orden de la nómina
		var mejor *models.Inquilino
		mejorPuntaje := 0.0
		tokensEmisor := normalizarTokens(t.Emisor)
		for i := range inquilinos {
			if !pasaFiltroMonto(t, &inquilinos[i], opts) {
				continue
			}
			puntaje := puntajeTokens(tokensEmisor, normalizarTokens(inquilinos[i].Propietario))
			if puntaje > mejorPuntaje {
				mejorPuntaje = puntaje
				mejor = &inquilinos[i]
			}
		}
		if mejor != nil && mejorPuntaje >= UmbralTokens {
			slog.Info("Coincidencia por tokens", "emisor", t.Emisor,
				"propietario", mejor.Propietario, "puntaje", mejorPuntaje)
			return mejor, nil
		}
	}

	// 4. Respaldo por RUT
	if rut := normalizarRut(t.RutDestinatario); rut != "" {
		for i := range inquilinos {
			if normalizarRut(inquilinos[i].Rut) == rut {
				slog.Info("Coincidencia por RUT", "rut", t.RutDestinatario,
					"propietario", inquilinos[i].Propietario)
				return &inquilinos[i], nil
			}
		}
	}

	return nil, ErrSinCoincidencia
}

// puntajeTokens calcula el porcentaje de tokens del emisor que aparecen (como
// subcadena, en cualquier dirección) entre los tokens del propietario.
func puntajeTokens(emisor, propietario []string) float64 {
	if len(emisor) == 0 || len(propietario) == 0 {
		return 0
	}
	coincidentes := 0
	for _, te := range emisor {
		for _, tp := range propietario {
			if strings.Contains(tp, te) || strings.Contains(te, tp) {
				coincidentes++
				break
			}
		}
	}
	mayor := len(emisor)
	if len(propietario) > mayor {
		mayor = len(propietario)
	}
	return float64(coincidentes) / float64(mayor) * 100
}

// pasaFiltroMonto aplica la igualdad de monto cuando está activada. Si la
// transferencia no trae monto, el filtro estricto la rechaza: sin monto no hay
// forma de verificar.
func pasaFiltroMonto(t *parser.Transferencia, inquilino *models.Inquilino, opts Opciones) bool {
	if !opts.RequerirMonto {
		return true
	}
	if t.Monto == 0 {
		return false
	}
	return inquilino.Monto.Equal(decimal.NewFromInt(t.Monto))
}

// normalizarRut deja el RUT en minúsculas y sin puntos, guiones ni espacios.
func normalizarRut(rut string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(rut) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
