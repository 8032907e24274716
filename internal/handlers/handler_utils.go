package handlers

// nombresMeses son los encabezados de los doce cupos, en orden calendario.
var nombresMeses = []string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}
