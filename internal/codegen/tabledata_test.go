package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vesaa/sitepack/internal/config"
)

func course(i int) Row {
	return Row{fmt.Sprintf("C%d", i), 7.5, int64(1), "Name", int64(-1), int64(-1), int64(-1)}
}

func rowsN(n int) []Row {
	out := make([]Row, n)
	for i := range out {
		out[i] = course(i + 1)
	}
	return out
}

func TestWriteTableLayout(t *testing.T) {
	const line = `Course "C%d" 7.5 1 "Name" -1 -1 -1`
	tests := []struct {
		name string
		rows int
		want string
	}{
		{"empty", 0, "T\n    ([    ])"},
		{"two", 2, "T\n    ([" + fmt.Sprintf(line, 1) + "\n    ," + fmt.Sprintf(line, 2) + "\n    ])"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteTable(&buf, []byte("T\n"), rowsN(tt.rows)); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got\n%q\nwant\n%q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteTableChunks(t *testing.T) {
	tests := []struct {
		rows   int
		joins  int
		suffix string
	}{
		{19, 0, "-1\n    ])"},
		{20, 1, "    ] ++ [    ])"},
		{21, 1, "    ] ++ [Course \"C21\" 7.5 1 \"Name\" -1 -1 -1\n    ])"},
		{45, 2, "-1\n    ])"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := WriteTable(&buf, nil, rowsN(tt.rows)); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if got := strings.Count(out, "] ++ ["); got != tt.joins {
			t.Errorf("%d rows: %d joins, want %d", tt.rows, got, tt.joins)
		}
		if !strings.HasSuffix(out, tt.suffix) {
			t.Errorf("%d rows: output ends %q", tt.rows, out[len(out)-40:])
		}
		if got := strings.Count(out, "Course "); got != tt.rows {
			t.Errorf("%d rows: %d courses written", tt.rows, got)
		}
	}
}

func TestElmValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"TDA123", `"TDA123"`},
		{`say "hi"`, `"say \"hi\""`},
		{[]byte("raw"), `"raw"`},
		{int64(-1), "-1"},
		{7.5, "7.5"},
		{3.0, "3.0"},
		{0.0, "0.0"},
		{0.00001, "1e-05"},
		{1e16, "1e+16"},
		{true, "True"},
	}
	for _, tt := range tests {
		got, err := ElmValue(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ElmValue(%#v) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []any{nil, math.Inf(1), struct{}{}} {
		if _, err := ElmValue(bad); !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("ElmValue(%#v) err = %v", bad, err)
		}
	}
}

func TestGenerateFromDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lot.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		`CREATE TABLE courses (course_code TEXT, credits REAL, cycle INTEGER, course_name TEXT,
			ceq_pass_share REAL, ceq_overall_score INTEGER, ceq_important INTEGER)`,
		`INSERT INTO courses VALUES ('TDA555', 7.5, 1, 'Intro', 0.85, 42, 80)`,
		`INSERT INTO courses VALUES ('MVE045', 6.0, NULL, 'Calculus', NULL, NULL, NULL)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			t.Fatal(err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	template := filepath.Join(dir, "TableData.template.elm")
	if err := os.WriteFile(template, []byte("module TableData exposing (..)\n\ncourses =\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "TableData.elm")

	n, err := Generate(config.GenerateConfig{DBPath: dbPath, Template: template, Output: out}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "module TableData exposing (..)\n\ncourses =\n" +
		`    ([Course "TDA555" 7.5 1 "Intro" 0.85 42 80` + "\n" +
		`    ,Course "MVE045" 6.0 0 "Calculus" -1 -1 -1` + "\n" +
		"    ])"
	if string(got) != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestGenerateMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "t.elm")
	os.WriteFile(template, nil, 0o644)
	out := filepath.Join(dir, "TableData.elm")
	_, err := Generate(config.GenerateConfig{DBPath: filepath.Join(dir, "nope.db"), Template: template, Output: out}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output written despite failure")
	}
}
