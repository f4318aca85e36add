package source

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// Format identifies a source file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// Definition describes one input dataset.
type Definition struct {
	Name        string // dataset name, also the table name
	Format      Format
	DefaultFile string // file name under the data directory
	Record      string // XML record element; ignored for other formats
}

// Parse decodes r according to the definition's format.
func (d Definition) Parse(r io.Reader) (*table.Table, error) {
	switch d.Format {
	case FormatCSV:
		return ParseCSV(r, d.Name)
	case FormatJSON:
		return ParseJSON(r, d.Name)
	case FormatXML:
		return ParseXML(r, d.Name, d.Record)
	default:
		return nil, fmt.Errorf("unknown source format %q", d.Format)
	}
}

var (
	registry   = make(map[string]Definition)
	registryMu sync.RWMutex
)

func init() {
	Register(Definition{Name: core.DatasetAlumnos, Format: FormatCSV, DefaultFile: "alumnos.csv"})
	Register(Definition{Name: core.DatasetCalificaciones, Format: FormatJSON, DefaultFile: "calificaciones.json"})
	Register(Definition{Name: core.DatasetMatriculas, Format: FormatXML, DefaultFile: "matriculas.xml", Record: "matricula"})
}

// Register adds a source definition.
// Panics if a source with the same name is already registered.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Name]; exists {
		panic(fmt.Sprintf("source already registered: %s", def.Name))
	}
	registry[def.Name] = def
}

// Get returns a source definition by name.
func Get(name string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[name]
	return def, ok
}

// All returns every registered definition sorted by name.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
