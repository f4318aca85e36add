package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/logging"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// Config locates the input files.
type Config struct {
	DataDir    string
	Files      map[string]string // dataset name -> file name override
	ArchiveDir string            // raw snapshots are skipped when empty
	MaxBytes   int64             // per-file size limit; 0 disables
}

// FileSource reads the three datasets from a directory.
type FileSource struct {
	cfg Config
}

// NewFileSource creates a source reading from cfg.DataDir.
func NewFileSource(cfg Config) *FileSource {
	return &FileSource{cfg: cfg}
}

// Path returns the file path used for a dataset.
func (s *FileSource) Path(def Definition) string {
	file := def.DefaultFile
	if f, ok := s.cfg.Files[def.Name]; ok && f != "" {
		file = f
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.cfg.DataDir, file)
}

// Load implements core.Source. The first dataset that cannot be read aborts
// the load with a *core.SourceError.
func (s *FileSource) Load(ctx context.Context) (core.Tables, error) {
	var out core.Tables
	targets := []struct {
		name string
		dst  **table.Table
	}{
		{core.DatasetAlumnos, &out.Alumnos},
		{core.DatasetCalificaciones, &out.Calificaciones},
		{core.DatasetMatriculas, &out.Matriculas},
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return core.Tables{}, err
		}
		def, ok := Get(t.name)
		if !ok {
			return core.Tables{}, &core.SourceError{Source: t.name, Err: fmt.Errorf("no source registered")}
		}
		tb, err := s.LoadOne(ctx, def)
		if err != nil {
			return core.Tables{}, &core.SourceError{Source: t.name, Err: err}
		}
		*t.dst = tb
	}
	return out, nil
}

// LoadOne reads and parses a single dataset.
func (s *FileSource) LoadOne(ctx context.Context, def Definition) (*table.Table, error) {
	path := s.Path(def)
	log := logging.WithFields(ctx, "source", def.Name, "path", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := ReadAllLimited(f, s.cfg.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if s.cfg.ArchiveDir != "" {
		runID := core.RunIDFromContext(ctx)
		if runID == "" {
			runID = "adhoc"
		}
		if snap, err := WriteSnapshot(s.cfg.ArchiveDir, runID, path, raw); err != nil {
			log.Warn("raw snapshot failed", "error", err)
		} else {
			log.Debug("raw snapshot written", "snapshot", snap)
		}
	}

	tb, err := def.Parse(bytes.NewReader(Normalize(raw)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	log.Info("source read",
		"rows", tb.Len(),
		"columns", len(tb.Columns),
		"bytes", len(raw),
	)
	return tb, nil
}
