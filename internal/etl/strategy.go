package etl

import (
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ── Strategy ───────────────────────────────────────────────
// A Strategy is one extraction job type: its query, its column mapping and
// the shape of the file it produces. Implementations live in internal/jobs,
// one file per job.

// Format is the output file format, also used as the file extension.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// StrategySpec describes the files a strategy produces.
type StrategySpec struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Prefix     string `json:"prefix"`
	Format     Format `json:"format"`
	Retain     int    `json:"retain"`
	Overwrite  bool   `json:"overwrite"`
	SheetName  string `json:"sheetName"`
	MirrorName string `json:"mirrorName,omitempty"` // fixed-name copy refreshed after every saved file
}

// Ext returns the file extension without the dot.
func (s StrategySpec) Ext() string { return string(s.Format) }

// Query is the SQL text for one run plus the column positions of the
// attributes the mapping reads.
type Query struct {
	Text  string
	Index AttributeIndex
}

// Strategy is the interface every job type implements.
type Strategy interface {
	// Spec returns the naming and retention rules for this job's files.
	Spec() StrategySpec

	// BuildQuery renders the query selecting rows changed after cutoff.
	BuildQuery(cutoff time.Time) (Query, error)

	// MapColumns reshapes the fetched rows into the output layout. Rows that
	// cannot be mapped are reported and left out. The output's LastModified
	// is the later of the source cutoff and the newest row timestamp.
	MapColumns(src *Recordset) (*Recordset, []RowError)
}

// JobSettings carries the configuration strategies need to build queries
// and map rows.
type JobSettings struct {
	AssetDB           string
	LSDB              string
	RFIDPrefix        string
	RFIDBits          int
	RetroactiveWindow time.Duration
	QueriesDir        string
	Location          *time.Location
	Log               *log.Entry
}

// StrategyFactory builds a Strategy from settings.
type StrategyFactory func(JobSettings) (Strategy, error)

// ── Strategy Registry ──────────────────────────────────────
// Compile-time registration via init() in each job file.

var (
	registryMu sync.RWMutex
	registry   = map[string]StrategyFactory{}
)

// RegisterStrategy registers a job type under name.
func RegisterStrategy(name string, f StrategyFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// NewStrategy builds the registered strategy called name.
func NewStrategy(name string, settings JobSettings) (Strategy, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown job type: %q", name)
	}
	return f(settings)
}

// ListStrategies returns the registered job names in sorted order.
func ListStrategies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
