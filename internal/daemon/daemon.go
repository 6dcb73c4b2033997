// Package daemon assembles one mount: it opens the overlay, object store,
// and journal named by a MountConfig, builds the inode map and dispatch
// adapter over them, exports the result through an NFS server, and owns
// the mount's lifecycle (exclusive lock, idle-inode sweep, shutdown).
package daemon

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"treemount/internal/common"
	"treemount/internal/dispatch"
	"treemount/internal/inode"
	"treemount/internal/journal"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

func init() {
	// Logging is discarded until a config or flag explicitly enables it.
	log.SetOutput(io.Discard)
}

// Daemon is one running mount.
type Daemon struct {
	cfg  *MountConfig
	lock *flock.Flock

	overlayStore overlay.Store
	objStore     objectstore.Store
	journal      *journal.Journal
	imap         *inode.Map
	adapter      *dispatch.Adapter
	server       *NFSServer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a daemon for cfg. Nothing is opened until Open.
func New(cfg *MountConfig) *Daemon {
	return &Daemon{cfg: cfg, stopCh: make(chan struct{})}
}

// Open acquires the overlay's exclusive lock and builds the full stack:
// stores, journal, inode map, adapter. It does not start serving.
func (d *Daemon) Open(ctx context.Context) error {
	d.lock = flock.New(LockPath(d.cfg.Overlay))
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("daemon: lock %s: %w", d.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("daemon: overlay %s is already mounted by another process", d.cfg.Overlay)
	}

	cleanup := func() {
		if d.journal != nil {
			d.journal.Close()
		}
		if d.overlayStore != nil {
			d.overlayStore.Close()
		}
		d.lock.Unlock()
	}

	d.overlayStore, err = overlay.OpenSQLiteStore(d.cfg.Overlay)
	if err != nil {
		d.lock.Unlock()
		return fmt.Errorf("daemon: open overlay: %w", err)
	}

	if d.cfg.ObjectDir != "" {
		d.objStore, err = objectstore.NewFileStore(d.cfg.ObjectDir)
		if err != nil {
			cleanup()
			return fmt.Errorf("daemon: open object store: %w", err)
		}
	} else {
		// No object store configured: every byte is overlay-backed. Valid
		// for a mount that starts empty and never tracks a tree.
		d.objStore = objectstore.NewMemStore()
	}

	d.journal, err = journal.Open(d.cfg.Journal)
	if err != nil {
		cleanup()
		return fmt.Errorf("daemon: open journal: %w", err)
	}

	rootTree, err := d.loadRootTree(ctx)
	if err != nil {
		cleanup()
		return err
	}

	d.imap, err = inode.NewMap(ctx, d.overlayStore, d.objStore, d.journal, rootTree)
	if err != nil {
		cleanup()
		return fmt.Errorf("daemon: build inode map: %w", err)
	}
	d.adapter = dispatch.NewAdapter(d.imap)

	// NFSv3 clients revalidate entries through attributes (the mount uses
	// noac), so there is no push-style invalidation to deliver; the
	// callback exists for bridges that have one, and here just traces.
	d.imap.SetEntryInvalidator(func(parent overlay.InodeNumber, name common.PathComponent) {
		log.Tracef("daemon: entry cache invalidate parent=%d name=%s", parent, name)
	})
	return nil
}

func (d *Daemon) loadRootTree(ctx context.Context) (*objectstore.Tree, error) {
	if d.cfg.RootTree == "" {
		return nil, nil
	}
	var h objectstore.Hash
	raw, err := hex.DecodeString(d.cfg.RootTree)
	if err != nil || len(raw) != objectstore.HashSize {
		return nil, fmt.Errorf("daemon: bad root-tree hash %q", d.cfg.RootTree)
	}
	copy(h[:], raw)
	tree, err := d.objStore.GetTree(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("daemon: fetch root tree %s: %w", d.cfg.RootTree, err)
	}
	return tree, nil
}

// Adapter returns the mount's dispatch adapter. Valid after Open.
func (d *Daemon) Adapter() *dispatch.Adapter { return d.adapter }

// InodeMap returns the mount's inode map. Valid after Open.
func (d *Daemon) InodeMap() *inode.Map { return d.imap }

// Journal returns the mount's journal. Valid after Open.
func (d *Daemon) Journal() *journal.Journal { return d.journal }

// ObjectStore returns the mount's object store. Valid after Open.
func (d *Daemon) ObjectStore() objectstore.Store { return d.objStore }

// Serve binds the NFS server, starts the idle-inode sweep loop, and runs
// the accept loop until Shutdown. onReady, if non-nil, is called with the
// bound port once the listener is up.
func (d *Daemon) Serve(onReady func(port int)) error {
	d.server = NewNFSServer(d.adapter)
	if err := d.server.Listen(d.cfg.NFSAddr); err != nil {
		return err
	}
	log.Infof("daemon: NFS server listening on port %d", d.server.Port())

	if d.cfg.SweepIntervalSec > 0 {
		d.wg.Add(1)
		go d.sweepLoop(time.Duration(d.cfg.SweepIntervalSec) * time.Second)
	}

	if onReady != nil {
		onReady(d.server.Port())
	}
	return d.server.Serve()
}

// Port returns the NFS server's bound port. Valid once Serve has called
// onReady.
func (d *Daemon) Port() int {
	if d.server == nil {
		return 0
	}
	return d.server.Port()
}

// sweepLoop periodically unloads idle inodes so a long-lived mount's
// memory tracks its working set rather than everything ever touched.
func (d *Daemon) sweepLoop(interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if n := d.imap.Sweep(context.Background()); n > 0 {
				log.Debugf("daemon: sweep unloaded %d idle inodes", n)
			}
		}
	}
}

// Shutdown stops serving and releases every resource in reverse
// construction order. Safe to call once, after Open (served or not).
func (d *Daemon) Shutdown() {
	close(d.stopCh)
	if d.server != nil {
		d.server.Shutdown()
	}
	d.wg.Wait()

	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			log.Warnf("daemon: close journal: %v", err)
		}
	}
	if d.overlayStore != nil {
		if err := d.overlayStore.Close(); err != nil {
			log.Warnf("daemon: close overlay: %v", err)
		}
	}
	if d.lock != nil {
		d.lock.Unlock()
	}
}
