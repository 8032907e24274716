// alquilersgestion/internal/handlers/export_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/diegotmol/alquilersgestion/config"
	"github.com/diegotmol/alquilersgestion/models"
)

// ExportInquilinos genera un .xlsx con la nómina y los estados de pago de los
// doce meses del año solicitado (?anio=2025; por defecto el año en curso).
func ExportInquilinos(c *gin.Context) {
	anio := time.Now().UTC().Year()
	if v := c.Query("anio"); v != "" {
		a, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Año inválido: " + v})
			return
		}
		anio = a
	}

	var inquilinos []models.Inquilino
	if err := config.DB.Preload("Pagos", "anio = ?", anio).Order("id").Find(&inquilinos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f := excelize.NewFile()
	hoja := fmt.Sprintf("Pagos %d", anio)
	index, err := f.NewSheet(hoja)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo generar el archivo"})
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	cabeceras := []string{"Propietario", "Propiedad", "Teléfono", "RUT", "Monto"}
	cabeceras = append(cabeceras, nombresMeses...)
	for i, cab := range cabeceras {
		celda, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(hoja, celda, cab)
	}

	for i, inq := range inquilinos {
		fila := i + 2
		f.SetCellValue(hoja, fmt.Sprintf("A%d", fila), inq.Propietario)
		f.SetCellValue(hoja, fmt.Sprintf("B%d", fila), inq.Propiedad)
		f.SetCellValue(hoja, fmt.Sprintf("C%d", fila), inq.Telefono)
		f.SetCellValue(hoja, fmt.Sprintf("D%d", fila), inq.Rut)
		monto, _ := inq.Monto.Float64()
		f.SetCellValue(hoja, fmt.Sprintf("E%d", fila), monto)

		estados := make(map[int]string)
		for _, pago := range inq.Pagos {
			estados[pago.Mes] = pago.Estado
		}
		for mes := 1; mes <= 12; mes++ {
			estado, ok := estados[mes]
			if !ok {
				estado = models.EstadoNoPagado
			}
			celda, _ := excelize.CoordinatesToCellName(5+mes, fila)
			f.SetCellValue(hoja, celda, estado)
		}
	}

	nombreArchivo := fmt.Sprintf("pagos_%d_%s.xlsx", anio, time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+nombreArchivo)
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo escribir el archivo"})
	}
}
