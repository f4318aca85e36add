package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile overlays pipeline settings from a YAML file. Empty fields leave
// the environment values in place.
//
//	key_column: id_alumno
//	key_aliases: [idAlumno, idalumno, alumno_id]
//	numeric_columns: [id_alumno, id_matricula]
//	column_order: [nombre, apellido, asignatura, nota]
//	email_domain: colegio.edu
type Profile struct {
	KeyColumn      string   `yaml:"key_column"`
	KeyAliases     []string `yaml:"key_aliases"`
	NumericColumns []string `yaml:"numeric_columns"`
	ColumnOrder    []string `yaml:"column_order"`
	EmailDomain    string   `yaml:"email_domain"`
	ScoreMin       *float64 `yaml:"score_min"`
	ScoreMax       *float64 `yaml:"score_max"`
}

// LoadProfile reads and decodes a profile. Unknown keys are rejected.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	var p Profile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	return &p, nil
}

// Apply copies every set profile field onto pc.
func (p *Profile) Apply(pc *PipelineConfig) {
	if p.KeyColumn != "" {
		pc.KeyColumn = p.KeyColumn
	}
	if p.KeyAliases != nil {
		pc.KeyAliases = p.KeyAliases
	}
	if p.NumericColumns != nil {
		pc.NumericColumns = p.NumericColumns
	}
	if len(p.ColumnOrder) > 0 {
		pc.ColumnOrder = p.ColumnOrder
	}
	if p.EmailDomain != "" {
		pc.EmailDomain = p.EmailDomain
	}
	if p.ScoreMin != nil {
		pc.ScoreMin = *p.ScoreMin
	}
	if p.ScoreMax != nil {
		pc.ScoreMax = *p.ScoreMax
	}
}
