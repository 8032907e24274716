// alquilersgestion/models/pago.go

package models

import "time"

// Estados posibles de un cupo de pago. El estado solo avanza hacia "Pagado";
// la sincronización nunca lo revierte.
const (
	EstadoPagado   = "Pagado"
	EstadoNoPagado = "No pagado"
)

// Pago es un cupo (inquilino, mes, año) de la tabla dispersa de pagos.
// Reemplaza a las antiguas columnas dinámicas pago_MM_YYYY: una fila por cupo,
// y la ausencia de fila equivale a "No pagado".
type Pago struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	InquilinoID uint   `json:"inquilinoId" gorm:"uniqueIndex:idx_pago_cupo;not null"`
	Mes         int    `json:"mes" gorm:"uniqueIndex:idx_pago_cupo;not null"`
	Anio        int    `json:"anio" gorm:"uniqueIndex:idx_pago_cupo;not null"`
	Estado      string `json:"estado" gorm:"default:'No pagado'"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AnioPago registra qué años ya fueron aprovisionados en la tabla de pagos.
type AnioPago struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Anio      int       `json:"anio" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"createdAt"`
}
