package sync

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/diegotmol/alquilersgestion/internal/parser"
	"github.com/diegotmol/alquilersgestion/models"
)

// MailClient obtiene los correos candidatos. La implementación real vive en
// internal/gmail; en las pruebas se usa un doble.
type MailClient interface {
	FetchCorreos(ctx context.Context, tok *oauth2.Token, consulta string) ([]parser.Correo, error)
}

// Almacen es la vista del almacenamiento que necesita la sincronización:
// nómina, cupos de pago y checkpoint.
type Almacen interface {
	ListInquilinos(ctx context.Context) ([]models.Inquilino, error)
	EnsureYear(ctx context.Context, anio int) (bool, error)
	PruneYear(ctx context.Context, anio int) error
	MarkPaid(ctx context.Context, inquilinoID uint, mes, anio int) error
	RecordSync(ctx context.Context, fecha time.Time) error
	LastSync(ctx context.Context) (string, error)
}
