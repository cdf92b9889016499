package arena

import (
	"fmt"

	"github.com/dd0wney/hackdb/pkg/lsm"
)

// Handle is an open database together with the config that backs it
type Handle struct {
	db     *lsm.DB
	cfg    *Config
	closed bool
}

// Open opens the database at path with cfg. On failure cfg is released.
func Open(cfg *Config, path string) (*Handle, error) {
	if err := cfg.attach(); err != nil {
		return nil, err
	}

	db, err := lsm.Open(cfg.Options(), path)
	if err != nil {
		cfg.release()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Handle{db: db, cfg: cfg}, nil
}

// DB returns the open database
func (h *Handle) DB() *lsm.DB {
	return h.db
}

// Config returns the config backing the handle
func (h *Handle) Config() *Config {
	return h.cfg
}

// Close closes the database, then releases the config. The database goes
// first because it still references the owned objects.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	err := h.db.Close()
	h.cfg.release()
	return err
}
