package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"github.com/diegotmol/alquilersgestion/internal/parser"
	"github.com/diegotmol/alquilersgestion/models"
)

var errCredenciales = errors.New("credenciales de Gmail inválidas o expiradas")

type fakeMail struct {
	correos  []parser.Correo
	err      error
	consulta string
}

func (f *fakeMail) FetchCorreos(_ context.Context, _ *oauth2.Token, consulta string) ([]parser.Correo, error) {
	f.consulta = consulta
	if f.err != nil {
		return nil, f.err
	}
	return f.correos, nil
}

type fakeAlmacen struct {
	inquilinos []models.Inquilino

	aniosProvisionados map[int]bool
	podados            []int
	pagados            map[string]string // "id-mes-anio" -> estado

	ultimaSync   string
	errEnsure    error
	errMark      error
	errocheck    error
	syncRecorded bool
}

func nuevoFakeAlmacen(inquilinos ...models.Inquilino) *fakeAlmacen {
	return &fakeAlmacen{
		inquilinos:         inquilinos,
		aniosProvisionados: make(map[int]bool),
		pagados:            make(map[string]string),
	}
}

func (f *fakeAlmacen) ListInquilinos(context.Context) ([]models.Inquilino, error) {
	return f.inquilinos, nil
}

func (f *fakeAlmacen) EnsureYear(_ context.Context, anio int) (bool, error) {
	if f.errEnsure != nil {
		return false, f.errEnsure
	}
	if f.aniosProvisionados[anio] {
		return false, nil
	}
	f.aniosProvisionados[anio] = true
	return true, nil
}

func (f *fakeAlmacen) PruneYear(_ context.Context, anio int) error {
	f.podados = append(f.podados, anio)
	return nil
}

func (f *fakeAlmacen) MarkPaid(_ context.Context, inquilinoID uint, mes, anio int) error {
	if f.errMark != nil {
		return f.errMark
	}
	f.pagados[fmt.Sprintf("%d-%02d-%d", inquilinoID, mes, anio)] = models.EstadoPagado
	return nil
}

func (f *fakeAlmacen) RecordSync(_ context.Context, fecha time.Time) error {
	if f.errocheck != nil {
		return f.errocheck
	}
	f.syncRecorded = true
	f.ultimaSync = fecha.UTC().Format(time.RFC3339)
	return nil
}

func (f *fakeAlmacen) LastSync(context.Context) (string, error) {
	return f.ultimaSync, nil
}

func inquilino(id uint, propietario string, monto int64) models.Inquilino {
	inq := models.Inquilino{Propietario: propietario, Monto: decimal.NewFromInt(monto)}
	inq.ID = id
	return inq
}

func correoTransferencia(id, emisor, fecha, monto string) parser.Correo {
	cuerpo := fmt.Sprintf(`<html><body>
<p>Te informamos que nuestro(a) cliente <b>%s</b> ha efectuado una transferencia de fondos a tu cuenta.</p>
<table>
<tr><td>Fecha</td><td>%s</td></tr>
<tr><td>Monto</td><td>%s</td></tr>
</table>
</body></html>`, emisor, fecha, monto)
	return parser.Correo{
		ID:     id,
		De:     "serviciodetransferencias@bancochile.cl",
		Cuerpo: base64.RawURLEncoding.EncodeToString([]byte(cuerpo)),
	}
}

func nuevoServicioDePrueba(mail MailClient, almacen Almacen, opts Options) *Service {
	svc := NewService(mail, almacen, nil, opts)
	svc.ahora = func() time.Time {
		return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestSincronizarMarcaElPago(t *testing.T) {
	mail := &fakeMail{correos: []parser.Correo{
		correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000"),
	}}
	almacen := nuevoFakeAlmacen(inquilino(7, "Carlos Rodríguez", 300000))
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if err != nil {
		t.Fatalf("Sincronizar: %v", err)
	}

	if !resultado.Success {
		t.Error("se esperaba success=true")
	}
	if resultado.Emails != 1 {
		t.Errorf("Emails = %d, se esperaba 1", resultado.Emails)
	}
	if resultado.PagosActualizados != 1 {
		t.Errorf("PagosActualizados = %d, se esperaba 1", resultado.PagosActualizados)
	}
	if estado := almacen.pagados["7-05-2025"]; estado != models.EstadoPagado {
		t.Errorf("el cupo 05/2025 del inquilino 7 debía quedar pagado; pagados=%v", almacen.pagados)
	}
	if !almacen.aniosProvisionados[2025] {
		t.Error("el año 2025 debía quedar aprovisionado")
	}
	if len(almacen.podados) != 1 || almacen.podados[0] != 2023 {
		t.Errorf("debía podarse el año 2023 (retención de 2 años); podados=%v", almacen.podados)
	}
	if !almacen.syncRecorded {
		t.Error("el checkpoint de sincronización debía registrarse")
	}
	if mail.consulta != "from:"+parser.RemitenteBanco {
		t.Errorf("consulta = %q", mail.consulta)
	}
}

func TestSincronizarMontoDistintoNoConcilia(t *testing.T) {
	mail := &fakeMail{correos: []parser.Correo{
		correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000"),
	}}
	almacen := nuevoFakeAlmacen(inquilino(7, "Carlos Rodríguez", 150000))
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if err != nil {
		t.Fatalf("Sincronizar: %v", err)
	}

	if resultado.PagosActualizados != 0 {
		t.Errorf("PagosActualizados = %d, se esperaba 0", resultado.PagosActualizados)
	}
	if len(almacen.pagados) != 0 {
		t.Errorf("no debía marcarse ningún pago; pagados=%v", almacen.pagados)
	}
	// El checkpoint se actualiza igual: la pasada llegó a conciliar
	if !almacen.syncRecorded {
		t.Error("el checkpoint debía registrarse aunque no hubiera coincidencias")
	}
}

func TestSincronizarMontoDistintoSinFiltroEstricto(t *testing.T) {
	mail := &fakeMail{correos: []parser.Correo{
		correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000"),
	}}
	almacen := nuevoFakeAlmacen(inquilino(7, "Carlos Rodríguez", 150000))
	opts := DefaultOptions()
	opts.RequerirMonto = false
	svc := nuevoServicioDePrueba(mail, almacen, opts)

	resultado, _ := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if resultado.PagosActualizados != 1 {
		t.Errorf("PagosActualizados = %d, se esperaba 1 con el filtro de monto apagado", resultado.PagosActualizados)
	}
}

func TestSincronizarErrorDeCredenciales(t *testing.T) {
	mail := &fakeMail{err: errCredenciales}
	almacen := nuevoFakeAlmacen(inquilino(7, "Carlos Rodríguez", 300000))
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if !errors.Is(err, errCredenciales) {
		t.Fatalf("el error de la búsqueda debía propagarse; err=%v", err)
	}

	if resultado.Success {
		t.Error("se esperaba success=false")
	}
	if resultado.Emails != 0 || resultado.PagosActualizados != 0 {
		t.Errorf("Emails=%d PagosActualizados=%d, se esperaban 0 y 0", resultado.Emails, resultado.PagosActualizados)
	}
	if almacen.syncRecorded {
		t.Error("el checkpoint NO debía registrarse cuando la búsqueda falla")
	}
}

func TestSincronizarFiltroPorMes(t *testing.T) {
	mail := &fakeMail{correos: []parser.Correo{
		correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000"),
		correoTransferencia("m2", "Maria Gonzalez", "10/04/2025", "$150.000"),
	}}
	almacen := nuevoFakeAlmacen(
		inquilino(1, "Carlos Rodríguez", 300000),
		inquilino(2, "María González", 150000),
	)
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 5, 2025)
	if err != nil {
		t.Fatalf("Sincronizar: %v", err)
	}

	if resultado.Emails != 2 {
		t.Errorf("Emails = %d, se esperaban los 2 encontrados", resultado.Emails)
	}
	if resultado.PagosActualizados != 1 {
		t.Errorf("PagosActualizados = %d, se esperaba 1 (solo mayo)", resultado.PagosActualizados)
	}
	if _, ok := almacen.pagados["1-05-2025"]; !ok {
		t.Errorf("debía marcarse el cupo de mayo del inquilino 1; pagados=%v", almacen.pagados)
	}
	if _, ok := almacen.pagados["2-04-2025"]; ok {
		t.Error("el correo de abril debía descartarse por el filtro")
	}
}

func TestSincronizarFiltroUsaFechaDeRecepcion(t *testing.T) {
	// El correo llegó en junio aunque la transferencia es de mayo: el filtro
	// compara contra la fecha de recepción cuando está disponible
	correo := correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000")
	correo.Recibido = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	mail := &fakeMail{correos: []parser.Correo{correo}}
	almacen := nuevoFakeAlmacen(inquilino(1, "Carlos Rodríguez", 300000))
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, _ := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 5, 2025)
	if resultado.PagosActualizados != 0 {
		t.Errorf("PagosActualizados = %d; el filtro de mayo debía descartar un correo recibido en junio", resultado.PagosActualizados)
	}
}

func TestSincronizarCorreoIrrelevanteNoDetieneLaPasada(t *testing.T) {
	otro := parser.Correo{ID: "spam", De: "promos@example.com", Cuerpo: "aG9sYQ"}
	mail := &fakeMail{correos: []parser.Correo{
		otro,
		correoTransferencia("m2", "Carlos Rodriguez", "15/05/2025", "$300.000"),
	}}
	almacen := nuevoFakeAlmacen(inquilino(1, "Carlos Rodríguez", 300000))
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if err != nil {
		t.Fatalf("Sincronizar: %v", err)
	}
	if resultado.Emails != 2 {
		t.Errorf("Emails = %d; el correo irrelevante cuenta como procesado", resultado.Emails)
	}
	if resultado.PagosActualizados != 1 {
		t.Errorf("PagosActualizados = %d, se esperaba 1", resultado.PagosActualizados)
	}
}

func TestSincronizarFalloDeCupoNoDetieneLaPasada(t *testing.T) {
	mail := &fakeMail{correos: []parser.Correo{
		correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000"),
	}}
	almacen := nuevoFakeAlmacen(inquilino(1, "Carlos Rodríguez", 300000))
	almacen.errMark = errors.New("storage no disponible")
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if err != nil {
		t.Fatalf("el fallo por registro no debía escapar de la pasada: %v", err)
	}
	if !resultado.Success {
		t.Error("se esperaba success=true (degradación parcial)")
	}
	if resultado.PagosActualizados != 0 {
		t.Errorf("PagosActualizados = %d, se esperaba 0", resultado.PagosActualizados)
	}
	if !almacen.syncRecorded {
		t.Error("el checkpoint debía registrarse igual")
	}
}

func TestSincronizarFalloDelCheckpointNoCambiaElResumen(t *testing.T) {
	mail := &fakeMail{correos: []parser.Correo{
		correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000"),
	}}
	almacen := nuevoFakeAlmacen(inquilino(1, "Carlos Rodríguez", 300000))
	almacen.errocheck = errors.New("configuración bloqueada")
	svc := nuevoServicioDePrueba(mail, almacen, DefaultOptions())

	resultado, err := svc.Sincronizar(context.Background(), &oauth2.Token{AccessToken: "tok"}, 0, 0)
	if err != nil {
		t.Fatalf("Sincronizar: %v", err)
	}
	if !resultado.Success || resultado.PagosActualizados != 1 {
		t.Errorf("el fallo del checkpoint no debía degradar el resumen: %+v", resultado)
	}
}

func TestCupoParaPrefiereFechaDeRecepcion(t *testing.T) {
	correo := correoTransferencia("m1", "Carlos Rodriguez", "15/05/2025", "$300.000")
	correo.Recibido = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	trans := &parser.Transferencia{
		Fecha: time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC),
		Mes:   5,
		Anio:  2025,
	}

	opts := DefaultOptions()
	opts.PreferirFechaRecepcion = true
	svc := nuevoServicioDePrueba(&fakeMail{}, nuevoFakeAlmacen(), opts)

	mes, anio := svc.cupoPara(correo, trans, 0, 0)
	if mes != 6 || anio != 2025 {
		t.Errorf("cupo = %d/%d, se esperaba 6/2025 con PreferirFechaRecepcion", mes, anio)
	}

	svc = nuevoServicioDePrueba(&fakeMail{}, nuevoFakeAlmacen(), DefaultOptions())
	mes, anio = svc.cupoPara(correo, trans, 0, 0)
	if mes != 5 || anio != 2025 {
		t.Errorf("cupo = %d/%d, se esperaba 5/2025 por defecto", mes, anio)
	}
}

func TestUltimaSincronizacion(t *testing.T) {
	almacen := nuevoFakeAlmacen()
	almacen.ultimaSync = "2025-06-01T12:00:00Z"
	svc := nuevoServicioDePrueba(&fakeMail{}, almacen, DefaultOptions())

	fecha, err := svc.UltimaSincronizacion(context.Background())
	if err != nil {
		t.Fatalf("UltimaSincronizacion: %v", err)
	}
	if fecha != "2025-06-01T12:00:00Z" {
		t.Errorf("fecha = %q", fecha)
	}
}
