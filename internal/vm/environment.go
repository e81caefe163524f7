package vm

import (
	"github.com/sirupsen/logrus"

	"github.com/jbweber/dockvirt/internal/cache"
	"github.com/jbweber/dockvirt/internal/config"
	"github.com/jbweber/dockvirt/internal/disk"
	dockvirtlibvirt "github.com/jbweber/dockvirt/internal/libvirt"
	"github.com/jbweber/dockvirt/internal/ready"
	"github.com/jbweber/dockvirt/internal/spec"
)

// Environment bundles the per-user state and component instances the
// lifecycle engine needs, as a single explicit value instead of an
// ambient global base directory.
type Environment struct {
	Global *spec.GlobalConfig

	driver hypervisorDriver
	cache  imageCache
	disk   diskBuilder
	prober readinessProber
	log    *logrus.Entry
}

// NewEnvironment builds the production Environment: an image cache and disk
// manager rooted at baseDir, and a readiness prober layered on driver.
func NewEnvironment(baseDir string, global *spec.GlobalConfig, driver *dockvirtlibvirt.Driver, log *logrus.Entry) (*Environment, error) {
	imgCache, err := cache.New(baseDir)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Environment{
		Global: global,
		driver: driver,
		cache:  imgCache,
		disk:   disk.NewManager(baseDir),
		prober: ready.New(driver, ready.WithLogger(log)),
		log:    log,
	}, nil
}

// lookupImage resolves vm.OS against the Environment's catalog.
func (e *Environment) lookupImage(osKey string) (spec.OSImage, error) {
	return config.Lookup(e.Global, osKey)
}
