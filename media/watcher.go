package media

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports blobs modified by writers other than this process, e.g.
// an upgrade tool touching the data partition. It is host telemetry only;
// the stores never depend on it.
type Watcher struct {
	fw     *fsnotify.Watcher
	root   string
	events chan string
	errs   chan error
	done   chan struct{}
}

// Watch observes the backing directory of a [FlashDir]. Modified blob ids
// are delivered on [Watcher.Events] until [Watcher.Close].
func Watch(d *FlashDir) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("media: watch: %w", err)
	}
	if err := fw.Add(d.Dir()); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("media: watch %s: %w", d.Dir(), err)
	}
	w := &Watcher{
		fw:     fw,
		root:   d.Dir(),
		events: make(chan string, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Events delivers the ids of blobs written, created, renamed or removed.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Errors delivers watch failures.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				// Namespaces are subdirectories; watch them as they appear.
				_ = w.fw.Add(event.Name)
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			select {
			case w.events <- filepath.ToSlash(rel):
			case <-w.done:
				return
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}
