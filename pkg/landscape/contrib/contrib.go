// Package contrib holds library-specific importer overrides. A Bundle
// replaces the sheet tables the pipeline walks for the libraries assigned
// to it; every other library uses Default.
package contrib

import (
	"slices"
	"sort"
	"sync"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/sheet"
)

const module = "contrib"

// DefaultBundle is the name of the bundle built from the stock tables.
const DefaultBundle = "stsim"

// Bundle is the set of sheet tables used for one family of libraries.
type Bundle struct {
	Name        string
	Definitions []sheet.Descriptor
	Values      []sheet.Descriptor
	Configs     []sheet.ConfigSheet
	Reports     []sheet.ReportSheet
}

// Validate checks the bundle's descriptors.
func (b Bundle) Validate() error {
	if b.Name == "" {
		return exception.New(exception.KindConfiguration, module, "bundle name is required", nil)
	}
	if err := sheet.Validate(b.Definitions, b.Values, b.Configs, b.Reports); err != nil {
		return exception.New(exception.KindConfiguration, module, "bundle "+b.Name, err)
	}
	return nil
}

// ConfigKeys returns the payload keys a run configuration must carry.
func (b Bundle) ConfigKeys() []string {
	keys := make([]string, 0, len(b.Configs))
	for _, c := range b.Configs {
		keys = append(keys, c.Key)
	}
	return keys
}

// Default returns the stock tables.
func Default() Bundle {
	return Bundle{
		Name:        DefaultBundle,
		Definitions: sheet.DefinitionSheets(),
		Values:      sheet.ValueSheets(),
		Configs:     sheet.ConfigSheets(),
		Reports:     sheet.ReportSheets(),
	}
}

var spatialKinds = []model.Kind{
	model.KindInitialConditionsSpatial,
	model.KindTransitionSpatialMultiplier,
}

// NonSpatial returns the stock tables without the spatial value and config
// sheets, for libraries whose engine build has no spatial datafeeds.
func NonSpatial() Bundle {
	b := Default()
	b.Name = "nonspatial"
	b.Values = slices.DeleteFunc(b.Values, func(d sheet.Descriptor) bool {
		return slices.Contains(spatialKinds, d.Kind)
	})
	b.Configs = slices.DeleteFunc(b.Configs, func(c sheet.ConfigSheet) bool {
		return slices.Contains(spatialKinds, c.Descriptor.Kind)
	})
	return b
}

// Registry maps library names to bundles.
type Registry struct {
	mu        sync.RWMutex
	bundles   map[string]Bundle
	libraries map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bundles:   make(map[string]Bundle),
		libraries: make(map[string]string),
	}
}

// Register adds a bundle. Empty tables are taken from Default.
func (r *Registry) Register(b Bundle) error {
	def := Default()
	if b.Definitions == nil {
		b.Definitions = def.Definitions
	}
	if b.Values == nil {
		b.Values = def.Values
	}
	if b.Configs == nil {
		b.Configs = def.Configs
	}
	if b.Reports == nil {
		b.Reports = def.Reports
	}
	if err := b.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bundles[b.Name]; ok {
		return exception.Newf(exception.KindConfiguration, module, "bundle %q already registered", b.Name)
	}
	r.bundles[b.Name] = b
	return nil
}

// Assign routes library to a registered bundle.
func (r *Registry) Assign(library, bundle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bundles[bundle]; !ok {
		return exception.Newf(exception.KindConfiguration, module, "library %q names unknown bundle %q", library, bundle)
	}
	r.libraries[library] = bundle
	return nil
}

// For returns the bundle of library, or Default. A nil registry always
// returns Default.
func (r *Registry) For(library string) Bundle {
	if r == nil {
		return Default()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.libraries[library]; ok {
		return r.bundles[name]
	}
	if b, ok := r.bundles[DefaultBundle]; ok {
		return b
	}
	return Default()
}

// Names returns the registered bundle names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bundles))
	for n := range r.bundles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterDefaults registers the built-in bundles and assigns every library
// that names one through its contrib setting.
func RegisterDefaults(r *Registry, libraries []config.LibraryConfig) error {
	for _, b := range []Bundle{Default(), NonSpatial()} {
		if err := r.Register(b); err != nil {
			return err
		}
	}
	for _, l := range libraries {
		if l.Contrib == "" {
			continue
		}
		if err := r.Assign(l.Name, l.Contrib); err != nil {
			return err
		}
		logger.Debugf("library '%s' uses importer bundle '%s'", l.Name, l.Contrib)
	}
	return nil
}
