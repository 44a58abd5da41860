// Package workspace locates model versions and regions in the model setup
// directory and turns them into run units.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/parser"
	"github.com/phuslu/log"
)

const (
	versionPrefix = "CoSWATv"

	// FileCIO is the master input file SWAT+ reads first; a region
	// without it cannot run.
	FileCIO = "file.cio"
)

var (
	// ErrUnknownVersion is returned when no CoSWATv<version> directory exists
	ErrUnknownVersion = errors.New("unknown model version")
	// ErrUnknownRegion is returned when a requested region does not exist
	ErrUnknownRegion = errors.New("unknown region")
)

// Layout resolves paths inside <root>/CoSWATv<version>
type Layout struct {
	Root    string
	Version string
}

// New creates a layout for one model version
func New(root, version string) Layout {
	return Layout{Root: root, Version: version}
}

// VersionDir returns <root>/CoSWATv<version>
func (l Layout) VersionDir() string {
	return filepath.Join(l.Root, versionPrefix+l.Version)
}

// TxtInOut returns the SWAT+ working directory of a region
func (l Layout) TxtInOut(region string) string {
	return filepath.Join(l.VersionDir(), region, "Scenarios", "Default", "TxtInOut")
}

// Versions lists the model versions present under root
func Versions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), versionPrefix) {
			versions = append(versions, strings.TrimPrefix(e.Name(), versionPrefix))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Regions lists the regions of the layout's version, sorted
func (l Layout) Regions() ([]string, error) {
	entries, err := os.ReadDir(l.VersionDir())
	if err != nil {
		if os.IsNotExist(err) {
			available, _ := Versions(l.Root)
			return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownVersion, l.Version, strings.Join(available, ", "))
		}
		return nil, err
	}
	var regions []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			regions = append(regions, e.Name())
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// Runnable reports whether a region has its master input file
func (l Layout) Runnable(region string) bool {
	_, err := os.Stat(filepath.Join(l.TxtInOut(region), FileCIO))
	return err == nil
}

// UnitOptions controls how units are built
type UnitOptions struct {
	Executable string
	Default    domain.RunPeriod  // used when time.sim cannot be read
	Override   *domain.RunPeriod // rewrites time.sim when set
}

// Units builds one run unit per region. Empty regions means every region
// of the version. The period comes from each region's time.sim unless an
// override is given, in which case time.sim is rewritten first.
func (l Layout) Units(regions []string, opts UnitOptions) ([]domain.RunUnit, error) {
	available, err := l.Regions()
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		regions = available
	} else {
		known := make(map[string]bool, len(available))
		for _, r := range available {
			known[r] = true
		}
		for _, r := range regions {
			if !known[r] {
				return nil, fmt.Errorf("%w %q in version %s", ErrUnknownRegion, r, l.Version)
			}
		}
	}

	units := make([]domain.RunUnit, 0, len(regions))
	for _, region := range regions {
		dir := l.TxtInOut(region)
		period, err := l.period(dir, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", region, err)
		}
		if !l.Runnable(region) {
			log.Warn().Str("component", "workspace").Str("region", region).Msg("missing file.cio, region cannot run")
		}
		units = append(units, domain.RunUnit{
			Region:     region,
			WorkDir:    dir,
			Executable: opts.Executable,
			StartYear:  period.StartYear,
			EndYear:    period.EndYear,
		})
	}
	return units, nil
}

func (l Layout) period(dir string, opts UnitOptions) (domain.RunPeriod, error) {
	path := filepath.Join(dir, parser.TimeSimFile)
	if opts.Override != nil {
		if _, err := os.Stat(dir); err != nil {
			// nothing to rewrite; the runner reports the missing directory
			return *opts.Override, nil
		}
		if err := parser.WriteTimeSim(path, *opts.Override); err != nil {
			return domain.RunPeriod{}, fmt.Errorf("writing %s: %w", parser.TimeSimFile, err)
		}
		return *opts.Override, nil
	}

	p, err := parser.ReadTimeSim(path)
	if err != nil {
		log.Debug().Err(err).Str("component", "workspace").Str("dir", dir).Msg("using default run period")
		return opts.Default, nil
	}
	return p, nil
}
