// Package report filters absence and vacation rows by period and serializes
// them for export.
package report

import (
	"fmt"
	"strings"
	"time"

	"extranef/internal/nef"
)

// Period selects the date range of a report.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates s. An empty string means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Entity is a reportable table.
type Entity string

const (
	EntityAbsences  Entity = "absences"
	EntityVacations Entity = "vacations"
)

// ParseEntity validates s.
func ParseEntity(s string) (Entity, error) {
	switch e := Entity(strings.ToLower(strings.TrimSpace(s))); e {
	case EntityAbsences, EntityVacations:
		return e, nil
	default:
		return "", fmt.Errorf("unknown report entity %q", s)
	}
}

// Table returns the table the entity is read from.
func (e Entity) Table() string {
	if e == EntityVacations {
		return nef.TableVacations
	}
	return nef.TableAbsences
}

// FolderName returns the cloud folder the entity's reports go to.
func (e Entity) FolderName() string {
	if e == EntityVacations {
		return "Vacations"
	}
	return "Absences"
}

// Range is a half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// ComputeRange returns the range of p containing now, in now's location:
// day is today, week is the seven days ending today, month is the calendar
// month.
func ComputeRange(p Period, now time.Time) Range {
	y, m, d := now.Date()
	loc := now.Location()
	switch p {
	case PeriodDay:
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return Range{Start: start, End: start.AddDate(0, 0, 1)}
	case PeriodWeek:
		end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		return Range{Start: end.AddDate(0, 0, -7), End: end}
	default:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Range{Start: start, End: start.AddDate(0, 1, 0)}
	}
}

// parseDate reads a YYYY-MM-DD date as local midnight, falling back to
// RFC 3339 timestamps.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	return time.Time{}, false
}

// FilterAbsences keeps absences whose "date" falls inside r.
func FilterAbsences(rows []nef.Record, r Range) []nef.Record {
	out := []nef.Record{}
	for _, row := range rows {
		d, ok := parseDate(row.String("date"), r.Start.Location())
		if !ok {
			continue
		}
		if !d.Before(r.Start) && d.Before(r.End) {
			out = append(out, row.Clone())
		}
	}
	return out
}

// FilterVacations keeps vacations whose [startDate, endDate] overlaps r.
// The end date counts up to the end of that day; a missing end date means a
// single-day vacation.
func FilterVacations(rows []nef.Record, r Range) []nef.Record {
	loc := r.Start.Location()
	out := []nef.Record{}
	for _, row := range rows {
		start, ok := parseDate(row.String("startDate"), loc)
		if !ok {
			continue
		}
		endStr := row.String("endDate")
		if endStr == "" {
			endStr = row.String("startDate")
		}
		end, ok := parseDate(endStr, loc)
		if !ok {
			continue
		}
		end = end.Add(23*time.Hour + 59*time.Minute + 59*time.Second)

		if !start.After(r.End) && !end.Before(r.Start) {
			out = append(out, row.Clone())
		}
	}
	return out
}

// Denormalize adds "employeeName" to every row that lacks one, resolved
// through "employeeId". A name already on the row is kept. Unknown employees
// get an empty name.
func Denormalize(rows, employees []nef.Record) []nef.Record {
	names := make(map[string]string, len(employees))
	for _, e := range employees {
		names[e.ID()] = e.String("name")
	}
	out := make([]nef.Record, len(rows))
	for i, row := range rows {
		r := row.Clone()
		if r.String("employeeName") == "" {
			r["employeeName"] = names[nef.IDString(row["employeeId"])]
		}
		out[i] = r
	}
	return out
}

// Rows builds the denormalized rows of an entity report for the period
// containing now.
func Rows(entity Entity, period Period, now time.Time, entityRows, employees []nef.Record) []nef.Record {
	r := ComputeRange(period, now)
	var filtered []nef.Record
	if entity == EntityVacations {
		filtered = FilterVacations(entityRows, r)
	} else {
		filtered = FilterAbsences(entityRows, r)
	}
	return Denormalize(filtered, employees)
}

// FileName returns "<entity>-<period>-<YYYY-MM-DD>.<ext>".
func FileName(entity Entity, period Period, format Format, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s.%s", entity, period, now.Format("2006-01-02"), format.Extension())
}
