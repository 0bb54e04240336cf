package service

import (
	"fmt"
	"strconv"
	"time"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// formatIndonesianDate renders a date in the long Indonesian style used
// on official school letters, e.g. "17 Agustus 2026".
func formatIndonesianDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), indonesianMonths[t.Month()-1], t.Year())
}
