// Package sync orquesta una pasada de conciliación: busca correos del banco,
// extrae las transferencias, las asocia a inquilinos y marca los cupos pagados.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/diegotmol/alquilersgestion/internal/matcher"
	"github.com/diegotmol/alquilersgestion/internal/parser"
)

// claveProcesados es el conjunto de Redis con los ids de correos ya conciliados.
const claveProcesados = "sync:correos_procesados"

// Options define las decisiones de producto que el histórico dejó abiertas.
type Options struct {
	// RequerirMonto exige igualdad exacta entre el monto transferido y el
	// monto mensual del inquilino para las coincidencias por nombre.
	RequerirMonto bool
	// PreferirFechaRecepcion usa la fecha de recepción del correo (y no la de
	// la transferencia) para elegir el cupo a marcar.
	PreferirFechaRecepcion bool
	// AniosRetencion es la ventana de retención: al aprovisionar el año Y se
	// podan los cupos del año Y-AniosRetencion.
	AniosRetencion int
}

// DefaultOptions reproduce el comportamiento por defecto del sistema.
func DefaultOptions() Options {
	return Options{
		RequerirMonto:          true,
		PreferirFechaRecepcion: false,
		AniosRetencion:         2,
	}
}

// Result es el resumen de una sincronización. Siempre se devuelve uno, incluso
// cuando la búsqueda de correos falla.
type Result struct {
	Success             bool   `json:"success"`
	Mensaje             string `json:"mensaje"`
	Emails              int    `json:"emails"`
	PagosActualizados   int    `json:"pagos_actualizados"`
	FechaSincronizacion string `json:"fecha_sincronizacion,omitempty"`
}

type Service struct {
	mail    MailClient
	almacen Almacen
	cache   *redis.Client // opcional; nil deshabilita la deduplicación
	opts    Options
	ahora   func() time.Time
}

func NewService(mail MailClient, almacen Almacen, cache *redis.Client, opts Options) *Service {
	if opts.AniosRetencion <= 0 {
		opts.AniosRetencion = DefaultOptions().AniosRetencion
	}
	return &Service{
		mail:    mail,
		almacen: almacen,
		cache:   cache,
		opts:    opts,
		ahora:   func() time.Time { return time.Now().UTC() },
	}
}

// Sincronizar ejecuta una pasada completa. mesFiltro (1-12) y anioFiltro
// restringen los correos a un período; cero significa "todos". El error
// devuelto solo es no-nulo cuando la búsqueda de correos falló por completo
// (credenciales inválidas o error de red); todo lo demás degrada a un resumen
// parcial con menos pagos actualizados.
func (s *Service) Sincronizar(ctx context.Context, tok *oauth2.Token, mesFiltro, anioFiltro int) (Result, error) {
	runID := uuid.NewString()
	consulta := "from:" + parser.RemitenteBanco
	slog.Info("Iniciando sincronización", "run", runID, "consulta", consulta,
		"mes", mesFiltro, "anio", anioFiltro)

	correos, err := s.mail.FetchCorreos(ctx, tok, consulta)
	if err != nil {
		slog.Error("Error en sincronización", "run", runID, "error", err)
		return Result{
			Success: false,
			Mensaje: fmt.Sprintf("Error en sincronización: %v", err),
		}, err
	}
	slog.Info("Correos del servicio de transferencias encontrados", "run", runID, "total", len(correos))

	inquilinos, err := s.almacen.ListInquilinos(ctx)
	if err != nil {
		// Sin nómina no hay nada que conciliar, pero la búsqueda funcionó:
		// se informa un resumen parcial.
		slog.Error("No se pudo obtener la nómina de inquilinos", "run", runID, "error", err)
	}

	pagosActualizados := 0
	for _, correo := range correos {
		if s.yaProcesado(ctx, correo.ID) {
			slog.Info("Correo ya procesado anteriormente, se omite", "run", runID, "correo", correo.ID)
			continue
		}

		// Se parsea una sola vez; el filtro por período reutiliza el resultado.
		t, err := parser.ParseCorreoBanco(correo)
		if err != nil {
			slog.Info("Correo omitido", "run", runID, "correo", correo.ID, "motivo", err)
			continue
		}
		slog.Info("Datos extraídos del correo", "run", runID, "correo", correo.ID,
			"emisor", t.Emisor, "monto", t.Monto, "fecha", t.Fecha.Format("02/01/2006"))

		if !s.coincidePeriodo(correo, t, mesFiltro, anioFiltro) {
			slog.Info("El período no coincide, se omite el correo", "run", runID, "correo", correo.ID)
			continue
		}

		inquilino, err := matcher.Buscar(t, inquilinos, matcher.Opciones{RequerirMonto: s.opts.RequerirMonto})
		if err != nil {
			slog.Warn("No se encontró inquilino para el emisor", "run", runID, "emisor", t.Emisor)
			continue
		}

		mes, anio := s.cupoPara(correo, t, mesFiltro, anioFiltro)
		if !s.marcarPago(ctx, runID, inquilino.ID, mes, anio) {
			continue
		}
		slog.Info("Estado de pago actualizado", "run", runID,
			"propietario", inquilino.Propietario, "cupo", fmt.Sprintf("%02d/%d", mes, anio))
		pagosActualizados++
		s.marcarProcesado(ctx, correo.ID)
	}

	// El checkpoint se actualiza aunque la pasada haya sido parcial; un fallo
	// al guardarlo solo se registra.
	ahora := s.ahora()
	if err := s.almacen.RecordSync(ctx, ahora); err != nil {
		slog.Error("No se pudo guardar la fecha de sincronización", "run", runID, "error", err)
	}

	return Result{
		Success:             true,
		Mensaje:             fmt.Sprintf("Se encontraron %d transferencias. Se actualizaron %d pagos.", len(correos), pagosActualizados),
		Emails:              len(correos),
		PagosActualizados:   pagosActualizados,
		FechaSincronizacion: ahora.Format(time.RFC3339),
	}, nil
}

// UltimaSincronizacion devuelve la fecha del último checkpoint, o "" si no hay.
func (s *Service) UltimaSincronizacion(ctx context.Context) (string, error) {
	return s.almacen.LastSync(ctx)
}

// coincidePeriodo aplica el filtro de mes/año. La fecha de comparación es la
// de recepción del correo y, si no se conoce, la extraída del cuerpo.
func (s *Service) coincidePeriodo(correo parser.Correo, t *parser.Transferencia, mesFiltro, anioFiltro int) bool {
	if mesFiltro == 0 && anioFiltro == 0 {
		return true
	}

	fecha := correo.Recibido
	if fecha.IsZero() {
		fecha = t.Fecha
	}
	if fecha.IsZero() {
		// Sin fecha comparable no se puede descartar; se deja pasar
		return true
	}

	if mesFiltro != 0 && int(fecha.Month()) != mesFiltro {
		return false
	}
	if anioFiltro != 0 && fecha.Year() != anioFiltro {
		return false
	}
	return true
}

// cupoPara deriva el cupo (mes, año) a marcar: fecha de la transferencia (o de
// recepción, según las opciones), luego el filtro del usuario y por último el
// mes en curso.
func (s *Service) cupoPara(correo parser.Correo, t *parser.Transferencia, mesFiltro, anioFiltro int) (int, int) {
	if s.opts.PreferirFechaRecepcion && !correo.Recibido.IsZero() {
		return int(correo.Recibido.Month()), correo.Recibido.Year()
	}
	if !t.Fecha.IsZero() {
		return t.Mes, t.Anio
	}
	ahora := s.ahora()
	mes, anio := int(ahora.Month()), ahora.Year()
	if mesFiltro != 0 {
		mes = mesFiltro
	}
	if anioFiltro != 0 {
		anio = anioFiltro
	}
	return mes, anio
}

// marcarPago aprovisiona el año si hace falta, poda el año fuera de retención
// y marca el cupo. Cualquier fallo es por registro: se registra y se sigue con
// el próximo correo.
func (s *Service) marcarPago(ctx context.Context, runID string, inquilinoID uint, mes, anio int) bool {
	creado, err := s.almacen.EnsureYear(ctx, anio)
	if err != nil {
		slog.Error("No se pudo aprovisionar el año de pagos", "run", runID, "anio", anio, "error", err)
		return false
	}
	if creado {
		podar := anio - s.opts.AniosRetencion
		if err := s.almacen.PruneYear(ctx, podar); err != nil {
			// La poda es higiene de almacenamiento; su fallo no impide marcar el pago
			slog.Warn("No se pudo podar el año fuera de retención", "run", runID, "anio", podar, "error", err)
		}
	}

	if err := s.almacen.MarkPaid(ctx, inquilinoID, mes, anio); err != nil {
		slog.Error("No se pudo marcar el pago", "run", runID,
			"inquilino", inquilinoID, "cupo", fmt.Sprintf("%02d/%d", mes, anio), "error", err)
		return false
	}
	return true
}

func (s *Service) yaProcesado(ctx context.Context, correoID string) bool {
	if s.cache == nil || correoID == "" {
		return false
	}
	procesado, err := s.cache.SIsMember(ctx, claveProcesados, correoID).Result()
	if err != nil {
		slog.Warn("No se pudo consultar la caché de correos procesados", "error", err)
		return false
	}
	return procesado
}

func (s *Service) marcarProcesado(ctx context.Context, correoID string) {
	if s.cache == nil || correoID == "" {
		return
	}
	if err := s.cache.SAdd(ctx, claveProcesados, correoID).Err(); err != nil {
		slog.Warn("No se pudo registrar el correo en la caché", "error", err)
	}
}
