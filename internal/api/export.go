package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"soothe/internal/metrics"
	"soothe/internal/models"

	"github.com/xuri/excelize/v2"
)

// handleExport streams a bookings spreadsheet for the requested period.
// Defaults cover last month through two months ahead.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("export_bookings")

	now := time.Now()
	from := now.AddDate(0, -models.DefaultExportRangeMonthsBefore, 0)
	to := now.AddDate(0, models.DefaultExportRangeMonthsAfter, 0)

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to date is before from date")
		return
	}

	bookings, err := s.service.GetBookingsByDateRange(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("export query failed")
		writeError(w, http.StatusInternalServerError, "failed to load bookings")
		return
	}

	f, err := buildExportFile(bookings, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("export build failed")
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, fileName))

	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("export write failed")
	}
}

func buildExportFile(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	sheetName := "Bookings"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)
	_ = f.MergeCell(sheetName, "A1", "L1")

	headers := []string{
		"ID", "Customer", "Email", "Phone", "Address",
		"Service", "Duration (min)", "Scheduled At", "Price",
		"Status", "Therapist", "Created At",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, booking := range bookings {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), booking.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), booking.Customer.Name)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), booking.Customer.Email)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), booking.Customer.Phone)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), booking.Customer.Address)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), booking.Service.ServiceType)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), booking.Service.DurationMin)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), booking.Service.ScheduledAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), booking.Service.Price)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), booking.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), booking.WinningTherapist)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("L%d", row), booking.CreatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "E", 22)
	_ = f.SetColWidth(sheetName, "F", "L", 16)

	_ = f.DeleteSheet("Sheet1")

	return f, nil
}
