// Package parser extrae los datos de una transferencia desde los correos de
// notificación del Banco de Chile.
package parser

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RemitenteBanco es el remitente conocido de las notificaciones de transferencia.
const RemitenteBanco = "serviciodetransferencias@bancochile.cl"

// ErrNoRelevante indica que el correo no es una notificación de transferencia
// utilizable. No es un error del procesamiento: el correo simplemente se omite.
var ErrNoRelevante = errors.New("correo no relevante")

// Correo es un mensaje crudo obtenido de la API de Gmail.
type Correo struct {
	ID       string
	De       string
	Asunto   string
	Fecha    string    // cabecera Date, solo informativa
	Recibido time.Time // internalDate de Gmail; cero si se desconoce
	Cuerpo   string    // HTML del cuerpo, normalmente codificado en base64url
}

// Transferencia son los datos extraídos de una notificación.
// Los campos string vacíos y la fecha cero significan "no extraído".
type Transferencia struct {
	Emisor            string
	Destinatario      string
	Monto             int64 // 0 si no se pudo extraer
	Fecha             time.Time
	Mes               int
	Anio              int
	RutDestinatario   string
	EmailDestinatario string
	Comprobante       string
}

var (
	reEmisor   = regexp.MustCompile(`cliente\s+(.+?)\s+ha efectuado`)
	reFecha    = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`)
	reMonto    = regexp.MustCompile(`\$\s*([\d.,]+)`)
	reNoDigito = regexp.MustCompile(`[^\d]`)
	reEspacios = regexp.MustCompile(`\s+`)
)

// ParseCorreoBanco analiza un correo del Banco de Chile y extrae la información
// de la transferencia. Devuelve ErrNoRelevante si el remitente no es el banco,
// si no hay cuerpo HTML recuperable o si faltan los datos mínimos (emisor o RUT,
// y fecha). Cada campo se extrae de forma independiente: el fallo de uno no
// impide extraer los demás.
func ParseCorreoBanco(correo Correo) (*Transferencia, error) {
	// Filtro barato por remitente antes de parsear nada
	if !strings.Contains(correo.De, RemitenteBanco) {
		return nil, ErrNoRelevante
	}

	if strings.TrimSpace(correo.Cuerpo) == "" {
		return nil, ErrNoRelevante
	}

	cuerpoHTML, err := decodificarCuerpo(correo.Cuerpo)
	if err != nil {
		slog.Warn("Error decodificando el cuerpo del correo", "correo", correo.ID, "error", err)
		return nil, ErrNoRelevante
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cuerpoHTML))
	if err != nil {
		slog.Warn("Error parseando el HTML del correo", "correo", correo.ID, "error", err)
		return nil, ErrNoRelevante
	}

	t := &Transferencia{}
	texto := reEspacios.ReplaceAllString(doc.Text(), " ")
	celdas := celdasHoja(doc)

	t.Destinatario = extraerDestinatario(doc)
	t.Emisor = extraerEmisor(doc, texto, t.Destinatario)

	// Fecha: primera celda con patrón dd/mm/yyyy
	for _, c := range celdas {
		m := reFecha.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		fecha, err := time.Parse("02/01/2006", m[1])
		if err != nil {
			slog.Warn("Error parseando la fecha", "valor", m[1], "error", err)
			continue
		}
		t.Fecha = fecha
		t.Mes = int(fecha.Month())
		t.Anio = fecha.Year()
		break
	}

	// Monto: primer "$" seguido de dígitos en una celda
	for _, c := range celdas {
		m := reMonto.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		limpio := reNoDigito.ReplaceAllString(m[1], "")
		monto, err := strconv.ParseInt(limpio, 10, 64)
		if err != nil {
			slog.Warn("Error parseando el monto", "valor", m[0], "error", err)
			continue
		}
		t.Monto = monto
		break
	}

	t.RutDestinatario = valorEtiquetado(celdas, "Rut")
	t.EmailDestinatario = valorEtiquetado(celdas, "Email")
	t.Comprobante = valorEtiquetado(celdas, "Número de comprobante")

	// Identidad de respaldo: sin emisor pero con RUT, el RUT sirve de clave
	// para que la conciliación aún tenga algo que intentar.
	if t.Emisor == "" && t.RutDestinatario != "" {
		slog.Info("Emisor no encontrado, usando RUT como identidad de respaldo", "correo", correo.ID)
		t.Emisor = t.RutDestinatario
	}

	if t.Emisor == "" && t.RutDestinatario == "" {
		return nil, ErrNoRelevante
	}
	if t.Fecha.IsZero() {
		return nil, ErrNoRelevante
	}

	return t, nil
}

// decodificarCuerpo acepta el cuerpo tal como llega de Gmail (base64url) o ya
// decodificado como HTML plano.
func decodificarCuerpo(cuerpo string) (string, error) {
	recortado := strings.TrimSpace(cuerpo)
	if strings.HasPrefix(recortado, "<") {
		return recortado, nil
	}

	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
	} {
		if datos, err := enc.DecodeString(recortado); err == nil {
			return string(datos), nil
		}
	}
	return "", errors.New("el cuerpo no es base64url ni HTML")
}

// celdasHoja devuelve el texto de las celdas <td> hoja (sin tablas anidadas),
// en orden de documento. Equivale a recorrer la tabla con find_next.
func celdasHoja(doc *goquery.Document) []string {
	var celdas []string
	doc.Find("td").Each(func(_ int, s *goquery.Selection) {
		if s.Find("td").Length() > 0 {
			return
		}
		celdas = append(celdas, strings.TrimSpace(s.Text()))
	})
	return celdas
}

// valorEtiquetado busca la celda con la etiqueta dada y devuelve el valor:
// lo que sigue a ":" en la misma celda, o el texto de la celda siguiente.
func valorEtiquetado(celdas []string, etiqueta string) string {
	for i, c := range celdas {
		if !strings.Contains(c, etiqueta) {
			continue
		}
		if idx := strings.Index(c, ":"); idx >= 0 {
			if v := strings.TrimSpace(c[idx+1:]); v != "" {
				return v
			}
		}
		if i+1 < len(celdas) {
			if v := strings.TrimSpace(celdas[i+1]); v != "" {
				return v
			}
		}
		return ""
	}
	return ""
}

// extraerDestinatario busca el texto "Estimado(a): <nombre>". El destinatario
// es el titular de la cuenta que recibe, no quien transfirió.
func extraerDestinatario(doc *goquery.Document) string {
	mejor := ""
	doc.Find("p, td, div, span").Each(func(_ int, s *goquery.Selection) {
		texto := strings.TrimSpace(s.Text())
		if !strings.Contains(texto, "Estimado(a):") {
			return
		}
		// Nos quedamos con el elemento más interno que contiene la frase
		if mejor == "" || len(texto) < len(mejor) {
			mejor = texto
		}
	})
	if mejor == "" {
		return ""
	}
	idx := strings.Index(mejor, "Estimado(a):")
	valor := strings.TrimSpace(mejor[idx+len("Estimado(a):"):])
	if salto := strings.IndexAny(valor, "\n\r"); salto >= 0 {
		valor = strings.TrimSpace(valor[:salto])
	}
	return reEspacios.ReplaceAllString(valor, " ")
}

// extraerEmisor obtiene el nombre de quien hizo la transferencia. Primero busca
// la negrita dentro de la frase "cliente ... ha efectuado" (la negrita que no
// sea el propio destinatario); si no hay, cae a una regex sobre el texto plano.
func extraerEmisor(doc *goquery.Document, textoPlano, destinatario string) string {
	emisor := ""
	doc.Find("b, strong").Each(func(_ int, s *goquery.Selection) {
		if emisor != "" {
			return
		}
		contexto := s.Parent().Text()
		if !strings.Contains(contexto, "cliente") || !strings.Contains(contexto, "ha efectuado") {
			return
		}
		candidato := strings.TrimSpace(reEspacios.ReplaceAllString(s.Text(), " "))
		if candidato == "" || candidato == destinatario {
			return
		}
		emisor = candidato
	})
	if emisor != "" {
		return emisor
	}

	if m := reEmisor.FindStringSubmatch(textoPlano); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
