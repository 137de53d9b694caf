package device

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// NodeWatcher fires a callback once the device node disappears.
type NodeWatcher struct {
	w    *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// WatchNode starts watching the node path. The parent directory is
// watched, so the removal is seen even when the node itself is gone
// before the watch is set up.
func WatchNode(node string, onGone func()) (*NodeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	node = filepath.Clean(node)
	if err = w.Add(filepath.Dir(node)); err != nil {
		_ = w.Close()
		return nil, err
	}
	nw := &NodeWatcher{w: w, done: make(chan struct{})}
	go nw.loop(node, onGone)
	return nw, nil
}

func (nw *NodeWatcher) loop(node string, onGone func()) {
	defer close(nw.done)
	fired := false
	for {
		select {
		case ev, ok := <-nw.w.Events:
			if !ok {
				return
			}
			if fired || filepath.Clean(ev.Name) != node {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				fired = true
				onGone()
			}
		case _, ok := <-nw.w.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and waits until the callback goroutine exits.
// Must not be called from onGone.
func (nw *NodeWatcher) Close() (err error) {
	nw.once.Do(func() {
		err = nw.w.Close()
		<-nw.done
	})
	return
}
