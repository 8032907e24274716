// Package store implementa la persistencia de inquilinos, cupos de pago y
// configuración sobre GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diegotmol/alquilersgestion/models"
)

// ErrProvisionCupo indica que no se pudo aprovisionar o escribir el cupo de
// pago. Es un fallo por registro, reintentable; no aborta la sincronización.
var ErrProvisionCupo = errors.New("no se pudo aprovisionar el cupo de pago")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate crea las tablas del dominio.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.Inquilino{},
		&models.Pago{},
		&models.AnioPago{},
		&models.Configuracion{},
		&models.User{},
	)
}

// ListInquilinos devuelve la nómina completa, con sus cupos de pago.
func (s *Store) ListInquilinos(ctx context.Context) ([]models.Inquilino, error) {
	var inquilinos []models.Inquilino
	err := s.db.WithContext(ctx).Preload("Pagos").Order("id").Find(&inquilinos).Error
	if err != nil {
		return nil, fmt.Errorf("listando inquilinos: %w", err)
	}
	return inquilinos, nil
}

// EnsureYear aprovisiona los cupos de un año para todos los inquilinos
// existentes. Es idempotente: re-aprovisionar un año ya existente no hace nada.
// Devuelve true solo cuando el año se aprovisionó por primera vez.
func (s *Store) EnsureYear(ctx context.Context, anio int) (bool, error) {
	db := s.db.WithContext(ctx)

	var existente models.AnioPago
	err := db.Where("anio = ?", anio).First(&existente).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("%w: %v", ErrProvisionCupo, err)
	}

	var inquilinos []models.Inquilino
	if err := db.Find(&inquilinos).Error; err != nil {
		return false, fmt.Errorf("%w: %v", ErrProvisionCupo, err)
	}

	var cupos []models.Pago
	for _, inq := range inquilinos {
		for mes := 1; mes <= 12; mes++ {
			cupos = append(cupos, models.Pago{
				InquilinoID: inq.ID,
				Mes:         mes,
				Anio:        anio,
				Estado:      models.EstadoNoPagado,
			})
		}
	}
	if len(cupos) > 0 {
		err = db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(cupos, 200).Error
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrProvisionCupo, err)
		}
	}

	if err := db.Create(&models.AnioPago{Anio: anio}).Error; err != nil {
		return false, fmt.Errorf("%w: %v", ErrProvisionCupo, err)
	}

	slog.Info("Año de pagos aprovisionado", "anio", anio, "cupos", len(cupos))
	return true, nil
}

// PruneYear elimina los cupos de un año fuera de la ventana de retención.
// Podar un año no aprovisionado no es un error.
func (s *Store) PruneYear(ctx context.Context, anio int) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("anio = ?", anio).Delete(&models.Pago{}).Error; err != nil {
		return fmt.Errorf("podando cupos del año %d: %w", anio, err)
	}
	if err := db.Where("anio = ?", anio).Delete(&models.AnioPago{}).Error; err != nil {
		return fmt.Errorf("podando el año %d: %w", anio, err)
	}
	return nil
}

// MarkPaid deja el cupo (mes, año) del inquilino en "Pagado". Es idempotente:
// marcar un cupo ya pagado vuelve a tener éxito sin efectos adicionales.
func (s *Store) MarkPaid(ctx context.Context, inquilinoID uint, mes, anio int) error {
	pago := models.Pago{
		InquilinoID: inquilinoID,
		Mes:         mes,
		Anio:        anio,
		Estado:      models.EstadoPagado,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "inquilino_id"}, {Name: "mes"}, {Name: "anio"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"estado":     models.EstadoPagado,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&pago).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionCupo, err)
	}
	return nil
}

// PaymentStatus devuelve el estado de un cupo; la ausencia de fila es "No pagado".
func (s *Store) PaymentStatus(ctx context.Context, inquilinoID uint, mes, anio int) (string, error) {
	var pago models.Pago
	err := s.db.WithContext(ctx).
		Where("inquilino_id = ? AND mes = ? AND anio = ?", inquilinoID, mes, anio).
		First(&pago).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.EstadoNoPagado, nil
	}
	if err != nil {
		return "", fmt.Errorf("consultando estado de pago: %w", err)
	}
	return pago.Estado, nil
}

// RecordSync registra el checkpoint de la última sincronización (upsert sobre
// la clave de configuración).
func (s *Store) RecordSync(ctx context.Context, fecha time.Time) error {
	valor := fecha.UTC().Format(time.RFC3339)
	config := models.Configuracion{
		Clave:       models.ClaveUltimaSincronizacion,
		Valor:       valor,
		Descripcion: "Fecha de la última sincronización de correos",
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "clave"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"valor": valor, "updated_at": time.Now().UTC()}),
	}).Create(&config).Error
	if err != nil {
		return fmt.Errorf("guardando última sincronización: %w", err)
	}
	return nil
}

// LastSync devuelve la fecha de la última sincronización, o "" si nunca se
// sincronizó.
func (s *Store) LastSync(ctx context.Context) (string, error) {
	var config models.Configuracion
	err := s.db.WithContext(ctx).
		Where("clave = ?", models.ClaveUltimaSincronizacion).
		First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("consultando última sincronización: %w", err)
	}
	return config.Valor, nil
}
