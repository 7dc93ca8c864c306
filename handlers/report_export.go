package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/checkauto/checkauto-api/config"
	"github.com/checkauto/checkauto-api/middleware"
	"github.com/checkauto/checkauto-api/models"
)

var exportHeader = []string{
	"Código", "Placa", "Modelo", "Cor", "Cliente", "Telefone",
	"Etapa atual", "Aberta", "Entrada", "Previsão de entrega", "Saída", "Observações",
}

// exportRows flattens the tenant's work orders for the spreadsheet exports,
// newest first.
func exportRows(tenantID uuid.UUID) ([][]string, error) {
	var orders []models.WorkOrder
	if err := config.DB.Preload("CurrentStage").
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		stage := ""
		if o.CurrentStage != nil {
			stage = o.CurrentStage.Name
		}
		open := "Não"
		if o.Open {
			open = "Sim"
		}
		rows = append(rows, []string{
			o.Code,
			deref(o.Plate),
			deref(o.VehicleModel),
			deref(o.VehicleColor),
			deref(o.CustomerName),
			deref(o.CustomerPhone),
			stage,
			open,
			formatDate(o.EntryDate),
			formatDate(o.ExpectedDeliveryDate),
			formatDate(o.ExitDate),
			deref(o.Notes),
		})
	}
	return rows, nil
}

// ExportWorkOrdersExcel downloads the tenant's work orders as .xlsx.
func ExportWorkOrdersExcel(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	rows, err := exportRows(tenant.ID)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}
	for i, row := range rows {
		for col, value := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("ordens_servico_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buffer.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buffer.Bytes())
}

// ExportWorkOrdersCSV downloads the tenant's work orders as CSV.
func ExportWorkOrdersCSV(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := middleware.RequireTenant(config.DB, w, r)
	if !ok {
		return
	}

	rows, err := exportRows(tenant.ID)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("ordens_servico_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	writer.Write(exportHeader)
	for _, row := range rows {
		writer.Write(row)
	}
	writer.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}
