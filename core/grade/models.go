package grade

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

const (
	MinGrade = 0.0
	MaxGrade = 10.0
	MinUnit  = 1
	MaxUnit  = 4
)

// Grade is the score of a student in a discipline for one unit. A null Grade is not a zero.
type Grade struct {
	ID           string       `json:"id" db:"id"`
	StudentID    string       `json:"student_id" db:"student_id"`
	DisciplineID string       `json:"discipline_id" db:"discipline_id"`
	Unit         int          `json:"unit" db:"unit"`
	Grade        null.Float64 `json:"grade" db:"grade"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Key is the natural key of a Grade.
type Key struct {
	StudentID    string
	DisciplineID string
	Unit         int
}

func (g Grade) Key() Key { return Key{StudentID: g.StudentID, DisciplineID: g.DisciplineID, Unit: g.Unit} }

// Score is a grade as typed by a user: null, "", a number, or a number written with a "," or "." separator.
type Score struct {
	raw string
}

func ScoreOf(f float64) Score  { return Score{raw: strconv.FormatFloat(f, 'f', -1, 64)} }
func ScoreText(s string) Score { return Score{raw: s} }
func NoScore() Score           { return Score{} }
func (s Score) String() string { return s.raw }

func (s Score) MarshalJSON() ([]byte, error) {
	if strings.TrimSpace(s.raw) == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s.raw)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		s.raw = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s.raw = str
	default:
		s.raw = string(data)
	}
	return nil
}

// MaxDecimals is the precision of the grade column.
const MaxDecimals = 2

var (
	decimalRe = regexp.MustCompile(`^-?[0-9]+(?:[.,]([0-9]+))?$`)

	errNotNumeric = errors.New("grade must be a number")
	errTooPrecise = errors.Errorf("grade must have at most %d decimals", MaxDecimals)
)

// Parse converts the score into a nullable value within [MinGrade, MaxGrade].
func (s Score) Parse() (null.Float64, error) {
	raw := core.CleanString(s.raw)
	if raw == "" {
		return null.Float64{}, nil
	}
	m := decimalRe.FindStringSubmatch(raw)
	if m == nil {
		return null.Float64{}, errNotNumeric
	}
	if len(m[1]) > MaxDecimals {
		return null.Float64{}, errTooPrecise
	}
	f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return null.Float64{}, errNotNumeric
	}
	if f < MinGrade || f > MaxGrade {
		return null.Float64{}, errors.Errorf("grade must be between %v and %v", MinGrade, MaxGrade)
	}
	return null.Float64From(f), nil
}

// Entry is one cell of the grade sheet sent by a teacher or an admin.
type Entry struct {
	StudentID    string `json:"student_id" validate:"required"`
	DisciplineID string `json:"discipline_id" validate:"required"`
	Unit         int    `json:"unit" validate:"required,min=1,max=4"`
	Grade        Score  `json:"grade"`
}

type Filter struct {
	StudentIDs   []string `query:"student_id"`
	DisciplineID string   `query:"discipline_id"`
	Unit         int      `query:"unit"`
}

// DisciplineReport holds the unit grades of one discipline and their average.
type DisciplineReport struct {
	DisciplineID string         `json:"discipline_id"`
	Units        []null.Float64 `json:"units"`
	Average      null.Float64   `json:"average"`
}

type Report struct {
	StudentID   string             `json:"student_id"`
	Disciplines []DisciplineReport `json:"disciplines"`
}

// BuildReport groups the grades of a student per discipline. The average ignores null grades.
func BuildReport(studentID string, grades []Grade) Report {
	byDiscipline := make(map[string]*DisciplineReport)
	for _, g := range grades {
		if g.StudentID != studentID || g.Unit < MinUnit || g.Unit > MaxUnit {
			continue
		}
		dr, ok := byDiscipline[g.DisciplineID]
		if !ok {
			dr = &DisciplineReport{DisciplineID: g.DisciplineID, Units: make([]null.Float64, MaxUnit)}
			byDiscipline[g.DisciplineID] = dr
		}
		dr.Units[g.Unit-1] = g.Grade
	}

	report := Report{StudentID: studentID, Disciplines: make([]DisciplineReport, 0, len(byDiscipline))}
	for _, dr := range byDiscipline {
		var sum float64
		var n int
		for _, u := range dr.Units {
			if u.Valid {
				sum += u.Float64
				n++
			}
		}
		if n > 0 {
			dr.Average = null.Float64From(math.Round(sum/float64(n)*100) / 100)
		}
		report.Disciplines = append(report.Disciplines, *dr)
	}
	sort.Slice(report.Disciplines, func(i, j int) bool {
		return report.Disciplines[i].DisciplineID < report.Disciplines[j].DisciplineID
	})
	return report
}
