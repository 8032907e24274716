package models

import "gorm.io/gorm"

// Clave bajo la que se guarda la fecha de la última sincronización de correos.
const ClaveUltimaSincronizacion = "ultima_sincronizacion"

// Configuracion almacena pares clave/valor del sistema (checkpoint de
// sincronización incluido).
type Configuracion struct {
	gorm.Model
	Clave       string `json:"clave" gorm:"uniqueIndex;not null"`
	Valor       string `json:"valor" gorm:"not null"`
	Descripcion string `json:"descripcion"`
}
