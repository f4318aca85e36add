package core

import (
	"errors"
	"testing"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    string
		wantErr error
	}{
		{"preferred present", []string{"nombre", "id_alumno"}, "id_alumno", nil},
		{"falls back to first column", []string{"codigo", "nombre"}, "codigo", nil},
		{"no columns", nil, "", ErrNoKeyColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveKey(table.Empty("alumnos", tt.columns...), "id_alumno")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveKey() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAlignKey_AliasOrder(t *testing.T) {
	in := table.New("calificaciones", []string{"alumno_id", "idalumno", "nota"}, []table.Row{
		{"alumno_id": "9", "idalumno": "1", "nota": 3.0},
	})

	out, res := AlignKey(in, "id_alumno", DefaultKeyAliases)

	if res.Column != "idalumno" || !res.Renamed {
		t.Errorf("resolution = %+v, want idalumno renamed", res)
	}
	if out.Rows[0]["id_alumno"] != "1" {
		t.Errorf("id_alumno = %v, want 1", out.Rows[0]["id_alumno"])
	}
	if !in.HasColumn("idalumno") {
		t.Error("AlignKey mutated its input")
	}
}

func TestReconcile_DiscardsUnkeyedRows(t *testing.T) {
	in := Tables{
		Alumnos: table.New("alumnos", []string{"id_alumno", "nombre"}, []table.Row{
			{"id_alumno": "1", "nombre": "Ana"},
			{"id_alumno": nil, "nombre": "Sin id"},
		}),
		Calificaciones: table.New("calificaciones", []string{"idAlumno", "nota"}, []table.Row{
			{"idAlumno": 1.0, "nota": 4.0},
			{"idAlumno": "", "nota": 3.0},
		}),
		Matriculas: table.New("matriculas", []string{"id_matricula", "anio"}, []table.Row{
			{"id_matricula": "10", "anio": "2024"},
			{"id_matricula": "11", "anio": "2024"},
		}),
	}

	rec, err := Reconcile(in, DefaultOptions())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	want := DiscardCounts{Alumnos: 1, Calificaciones: 1, Matriculas: 2}
	if rec.Discarded != want {
		t.Errorf("Discarded = %+v, want %+v", rec.Discarded, want)
	}
	if rec.Discarded.Total() != 4 {
		t.Errorf("Total() = %d, want 4", rec.Discarded.Total())
	}
	if rec.Matriculas.Len() != 0 || !rec.Matriculas.HasColumn("id_alumno") {
		t.Errorf("matriculas = %d rows, columns %v; want 0 rows with key column", rec.Matriculas.Len(), rec.Matriculas.Columns)
	}
	if rec.Alumnos.Rows[0]["id_alumno"] != rec.Calificaciones.Rows[0]["id_alumno"] {
		t.Errorf("keys not normalized: %v vs %v", rec.Alumnos.Rows[0]["id_alumno"], rec.Calificaciones.Rows[0]["id_alumno"])
	}
}

func TestReconcile_CoercesNumericColumns(t *testing.T) {
	in := Tables{
		Alumnos: table.New("alumnos", []string{"id_alumno"}, []table.Row{{"id_alumno": int64(1)}}),
		Matriculas: table.New("matriculas", []string{"id_alumno", "id_matricula"}, []table.Row{
			{"id_alumno": "1", "id_matricula": " 55 "},
			{"id_alumno": "1", "id_matricula": "M-55"},
		}),
	}

	rec, err := Reconcile(in, DefaultOptions())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if got := rec.Matriculas.Rows[0]["id_matricula"]; got != int64(55) {
		t.Errorf("id_matricula = %v, want 55", got)
	}
	if got := rec.Matriculas.Rows[1]["id_matricula"]; got != nil {
		t.Errorf("id_matricula = %v, want nil for non-numeric", got)
	}
	if rec.Discarded.Matriculas != 0 {
		t.Errorf("coercion failure discarded rows: %d", rec.Discarded.Matriculas)
	}
}

func TestReconcile_DiscardsNonNumericKeys(t *testing.T) {
	in := Tables{
		Alumnos: table.New("alumnos", []string{"id_alumno", "nombre"}, []table.Row{
			{"id_alumno": int64(1), "nombre": "Ana"},
		}),
		Calificaciones: table.New("calificaciones", []string{"id_alumno", "nota"}, []table.Row{
			{"id_alumno": 1, "nota": 4.0},
			{"id_alumno": "N/A", "nota": 3.0},
		}),
		Matriculas: table.New("matriculas", []string{"id_alumno", "anio"}, []table.Row{
			{"id_alumno": "1", "anio": "2024"},
			{"id_alumno": "abc", "anio": "2024"},
		}),
	}

	out, err := Transform(in, DefaultOptions())
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := DiscardCounts{Calificaciones: 1, Matriculas: 1}
	if out.Reconciled.Discarded != want {
		t.Errorf("Discarded = %+v, want %+v", out.Reconciled.Discarded, want)
	}
	if out.Facts.Len() != 1 {
		t.Fatalf("facts = %d rows, want 1", out.Facts.Len())
	}
	if got := out.Facts.Rows[0]["id_alumno"]; got != int64(1) {
		t.Errorf("id_alumno = %v, want 1", got)
	}
	if got := out.Facts.Rows[0]["anio"]; got != int64(2024) {
		t.Errorf("anio = %#v, want int64 2024", got)
	}
}

func TestReconcile_TextKeysKept(t *testing.T) {
	in := Tables{
		Alumnos: table.New("alumnos", []string{"id_alumno"}, []table.Row{
			{"id_alumno": "A-17"},
		}),
		Calificaciones: table.New("calificaciones", []string{"id_alumno", "nota"}, []table.Row{
			{"id_alumno": " A-17 ", "nota": 4.0},
		}),
	}

	rec, err := Reconcile(in, DefaultOptions())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rec.Discarded.Total() != 0 {
		t.Errorf("Discarded = %+v, want none", rec.Discarded)
	}
	if got := rec.Calificaciones.Rows[0]["id_alumno"]; got != "A-17" {
		t.Errorf("id_alumno = %v, want A-17", got)
	}
}

func TestNumericKey(t *testing.T) {
	tests := []struct {
		name    string
		keys    []any
		numeric []string
		want    bool
	}{
		{"numeric roster", []any{int64(1), "2"}, DefaultNumericColumns, true},
		{"one junk roster key", []any{int64(1), "N/A"}, DefaultNumericColumns, true},
		{"text roster", []any{"A-17", "B-2"}, DefaultNumericColumns, false},
		{"empty roster", nil, DefaultNumericColumns, true},
		{"key not listed", []any{int64(1)}, []string{"id_matricula"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]table.Row, len(tt.keys))
			for i, k := range tt.keys {
				rows[i] = table.Row{"id_alumno": k}
			}
			roster := table.New("alumnos", []string{"id_alumno"}, rows)
			if got := NumericKey(roster, "id_alumno", tt.numeric, "id_alumno"); got != tt.want {
				t.Errorf("NumericKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReconcile_NilInputs(t *testing.T) {
	_, err := Reconcile(Tables{}, DefaultOptions())
	if !errors.Is(err, ErrNoKeyColumn) {
		t.Errorf("Reconcile(empty) error = %v, want ErrNoKeyColumn", err)
	}
}
