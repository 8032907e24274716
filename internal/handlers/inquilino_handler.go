// alquilersgestion/internal/handlers/inquilino_handler.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diegotmol/alquilersgestion/config"
	"github.com/diegotmol/alquilersgestion/models"
)

// InquilinoInput - estructura para recibir los datos del cliente.
type InquilinoInput struct {
	Propietario string          `json:"propietario" binding:"required"`
	Propiedad   string          `json:"propiedad" binding:"required"`
	Telefono    string          `json:"telefono" binding:"required"`
	Rut         string          `json:"rut"`
	Monto       decimal.Decimal `json:"monto"`
}

// ListInquilinos devuelve todos los inquilinos con sus cupos de pago de todos
// los años aprovisionados, con las claves históricas pago_MM_YYYY que el
// frontend espera.
func ListInquilinos(c *gin.Context) {
	var inquilinos []models.Inquilino
	if err := config.DB.Preload("Pagos").Order("id").Find(&inquilinos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var anios []models.AnioPago
	if err := config.DB.Order("anio").Find(&anios).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resultado := make([]gin.H, 0, len(inquilinos))
	for _, inq := range inquilinos {
		fila := gin.H{
			"id":          inq.ID,
			"propietario": inq.Propietario,
			"propiedad":   inq.Propiedad,
			"telefono":    inq.Telefono,
			"rut":         inq.Rut,
			"monto":       inq.Monto,
		}

		estados := make(map[string]string)
		for _, pago := range inq.Pagos {
			estados[models.ClaveCupo(pago.Mes, pago.Anio)] = pago.Estado
		}
		for _, anio := range anios {
			for mes := 1; mes <= 12; mes++ {
				clave := models.ClaveCupo(mes, anio.Anio)
				if estado, ok := estados[clave]; ok {
					fila[clave] = estado
				} else {
					fila[clave] = models.EstadoNoPagado
				}
			}
		}
		resultado = append(resultado, fila)
	}

	c.JSON(http.StatusOK, resultado)
}

// CreateInquilino da de alta un inquilino.
func CreateInquilino(c *gin.Context) {
	var input InquilinoInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos inválidos: " + err.Error()})
		return
	}

	inquilino := models.Inquilino{
		Propietario: input.Propietario,
		Propiedad:   input.Propiedad,
		Telefono:    input.Telefono,
		Rut:         input.Rut,
		Monto:       input.Monto,
	}
	if err := config.DB.Create(&inquilino).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar el inquilino"})
		return
	}

	c.JSON(http.StatusCreated, inquilino)
}

// UpdateInquilino modifica los datos de perfil de un inquilino.
func UpdateInquilino(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de inquilino inválido"})
		return
	}

	var inquilino models.Inquilino
	if err := config.DB.First(&inquilino, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Inquilino no encontrado"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al buscar el inquilino"})
		return
	}

	var input InquilinoInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos inválidos: " + err.Error()})
		return
	}

	inquilino.Propietario = input.Propietario
	inquilino.Propiedad = input.Propiedad
	inquilino.Telefono = input.Telefono
	inquilino.Rut = input.Rut
	inquilino.Monto = input.Monto
	if err := config.DB.Save(&inquilino).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar el inquilino"})
		return
	}

	c.JSON(http.StatusOK, inquilino)
}

// DeleteInquilino elimina un inquilino.
func DeleteInquilino(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de inquilino inválido"})
		return
	}

	if err := config.DB.Delete(&models.Inquilino{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo eliminar el inquilino"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Inquilino eliminado"})
}

// EstadoPagoInput - cambio manual del estado de un cupo.
type EstadoPagoInput struct {
	Mes    int    `json:"mes" binding:"required"`
	Anio   int    `json:"anio" binding:"required"`
	Estado string `json:"estado" binding:"required"`
}

// UpdateEstadoPago maneja el cambio manual del estado de pago de un cupo.
// A diferencia de la sincronización, el cambio manual sí puede volver un cupo
// a "No pagado".
func UpdateEstadoPago(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de inquilino inválido"})
		return
	}

	var input EstadoPagoInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos inválidos: " + err.Error()})
		return
	}
	if input.Mes < 1 || input.Mes > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "El mes debe estar entre 1 y 12"})
		return
	}
	if input.Estado != models.EstadoPagado && input.Estado != models.EstadoNoPagado {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Estado de pago desconocido: " + input.Estado})
		return
	}

	var inquilino models.Inquilino
	if err := config.DB.First(&inquilino, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Inquilino no encontrado"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al buscar el inquilino"})
		return
	}

	pago := models.Pago{
		InquilinoID: inquilino.ID,
		Mes:         input.Mes,
		Anio:        input.Anio,
		Estado:      input.Estado,
	}
	err = config.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "inquilino_id"}, {Name: "mes"}, {Name: "anio"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"estado":     input.Estado,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&pago).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar el estado de pago"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Estado de pago actualizado",
		"cupo":    models.ClaveCupo(input.Mes, input.Anio),
		"estado":  input.Estado,
	})
}
