// Package codegen generates TableData.elm, the course table compiled into
// the site, from the courses table of a SQLite database.
package codegen

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/sitepack/internal/config"
)

// ChunkSize is the number of rows per list literal. Chunks are joined with
// ++ so the Elm compiler never sees one very long list.
const ChunkSize = 20

// courseQuery selects the Course constructor arguments in order. Missing
// cycles become 0 and missing course evaluation figures become -1.
const courseQuery = `SELECT course_code, credits, IFNULL(cycle,0), course_name, ` +
	`IFNULL(ceq_pass_share,-1), IFNULL(ceq_overall_score,-1), IFNULL(ceq_important,-1) ` +
	`FROM courses`

// ErrUnsupportedValue is returned for column values Elm can't represent.
var ErrUnsupportedValue = errors.New("unsupported value")

// Row is one course: the Course constructor arguments in order.
type Row []any

// Open opens the course database through gorm. The file must exist.
func Open(path string) (*gorm.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("course database: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening course database: %w", err)
	}
	return db, nil
}

// LoadCourses reads every course row in table order.
func LoadCourses(db *gorm.DB) ([]Row, error) {
	rows, err := db.Raw(courseQuery).Rows()
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := make(Row, 7)
		ptrs := make([]any, len(r))
		for i := range r {
			ptrs[i] = &r[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WriteTable writes template followed by the course list expression.
func WriteTable(w io.Writer, template []byte, rows []Row) error {
	bw := bufio.NewWriter(w)
	bw.Write(template)
	bw.WriteString("    ([")
	for i, r := range rows {
		line, err := CourseLine(r)
		if err != nil {
			return fmt.Errorf("course %d: %w", i+1, err)
		}
		if i%ChunkSize != 0 {
			bw.WriteString("    ,")
		}
		bw.WriteString(line)
		bw.WriteString("\n")
		if i%ChunkSize == ChunkSize-1 {
			bw.WriteString("    ] ++ [")
		}
	}
	bw.WriteString("    ])")
	return bw.Flush()
}

// CourseLine renders one Course constructor application.
func CourseLine(r Row) (string, error) {
	parts := make([]string, 0, len(r)+1)
	parts = append(parts, "Course")
	for _, v := range r {
		s, err := ElmValue(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), nil
}

// ElmValue renders a database value as an Elm literal.
func ElmValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return elmString(x), nil
	case []byte:
		return elmString(string(x)), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return elmFloat(x)
	case bool:
		if x {
			return "True", nil
		}
		return "False", nil
	case nil:
		return "", fmt.Errorf("%w: NULL", ErrUnsupportedValue)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func elmString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

// elmFloat keeps a decimal point on integral values and switches to
// exponent form for very small and very large magnitudes.
func elmFloat(f float64) (string, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64), nil
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

// Generate reads the courses from cfg.DBPath and writes cfg.Output from
// cfg.Template. The output is replaced only once it was fully written. It
// returns the number of courses written.
func Generate(cfg config.GenerateConfig, log zerolog.Logger) (int, error) {
	template, err := os.ReadFile(cfg.Template)
	if err != nil {
		return 0, fmt.Errorf("reading template: %w", err)
	}
	db, err := Open(cfg.DBPath)
	if err != nil {
		return 0, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	rows, err := LoadCourses(db)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(cfg.Output), ".tabledata-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	if err := WriteTable(tmp, template, rows); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), cfg.Output); err != nil {
		return 0, err
	}
	log.Info().Int("courses", len(rows)).Str("output", cfg.Output).Msg("[generate] wrote table data")
	return len(rows), nil
}
