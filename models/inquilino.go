// alquilersgestion/models/inquilino.go

package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Inquilino representa un socio/arrendatario con su monto de arriendo mensual.
type Inquilino struct {
	gorm.Model
	Propietario string          `json:"propietario" gorm:"not null"`
	Propiedad   string          `json:"propiedad" gorm:"not null"`
	Telefono    string          `json:"telefono" gorm:"not null"`
	Rut         string          `json:"rut"`
	Monto       decimal.Decimal `json:"monto" gorm:"type:numeric(12,2)"`

	Pagos []Pago `json:"pagos,omitempty" gorm:"foreignKey:InquilinoID"`
}

// ClaveCupo devuelve la clave histórica "pago_MM_YYYY" de un cupo de pago.
// Se conserva porque el frontend identifica las columnas con ese formato.
func ClaveCupo(mes, anio int) string {
	return fmt.Sprintf("pago_%02d_%d", mes, anio)
}
