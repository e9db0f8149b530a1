package config

import (
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"sync"
)

// DummySaltResource names the bundled static salt used for local testing.
const DummySaltResource = "dummy-salt.json"

const bundledDefaultsName = "defaults.json"

//go:embed assets/*.json
var assets embed.FS

// Assets exposes the bundled resources (defaults and the dummy salt).
func Assets() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Defaults loads the bundled JSON defaults once and caches them for the
// lifetime of the value. Construct one per process and pass it around.
type Defaults struct {
	fsys   fs.FS
	name   string
	logger *slog.Logger

	once   sync.Once
	merged Extension
}

// NewDefaults returns a Defaults reading name from fsys. A nil fsys uses
// the bundled assets.
func NewDefaults(fsys fs.FS, name string, logger *slog.Logger) *Defaults {
	if fsys == nil {
		fsys = Assets()
	}
	if name == "" {
		name = bundledDefaultsName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Defaults{fsys: fsys, name: name, logger: logger.With("component", "config")}
}

// Get returns the built-in defaults overlaid with the bundled JSON. A
// missing or malformed bundle is logged and ignored.
func (d *Defaults) Get() Extension {
	d.once.Do(func() {
		d.merged = Builtin()
		data, err := fs.ReadFile(d.fsys, d.name)
		if err != nil {
			d.logger.Warn("bundled defaults unavailable, using built-in defaults", "file", d.name, "error", err)
			return
		}
		var bundled Extension
		if err := json.Unmarshal(data, &bundled); err != nil {
			d.logger.Warn("bundled defaults malformed, using built-in defaults", "file", d.name, "error", err)
			return
		}
		d.merged = Merge(d.merged, bundled)
	})
	return d.merged
}

// Resolve applies user overrides on top of the defaults.
func (d *Defaults) Resolve(user Extension) Extension {
	return Merge(d.Get(), user)
}
