package report

import (
	"time"

	"extranef/internal/nef"
)

// EmployeeSummary returns one row per employee: the employee's own fields
// plus totalAbsences, totalCertificates, totalVacations and lastAbsence
// (the latest absence date as YYYY-MM-DD, or nil).
func EmployeeSummary(employees, absences, certificates, vacations []nef.Record) []nef.Record {
	count := func(rows []nef.Record) map[string]int {
		m := make(map[string]int)
		for _, r := range rows {
			m[nef.IDString(r["employeeId"])]++
		}
		return m
	}
	absenceCount := count(absences)
	certificateCount := count(certificates)
	vacationCount := count(vacations)

	last := make(map[string]time.Time)
	for _, a := range absences {
		d, ok := parseDate(a.String("date"), time.Local)
		if !ok {
			continue
		}
		id := nef.IDString(a["employeeId"])
		if d.After(last[id]) {
			last[id] = d
		}
	}

	out := make([]nef.Record, 0, len(employees))
	for _, e := range employees {
		id := e.ID()
		row := e.Clone()
		row["totalAbsences"] = absenceCount[id]
		row["totalCertificates"] = certificateCount[id]
		row["totalVacations"] = vacationCount[id]
		if t, ok := last[id]; ok {
			row["lastAbsence"] = t.Format("2006-01-02")
		} else {
			row["lastAbsence"] = nil
		}
		out = append(out, row)
	}
	return out
}
