package source

import (
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher observes the registry index directory and the target
// directory's advisory lock file for external changes, so a long-lived process embedding this core
// (a daemon, a language server) learns about an index refresh or a
// released lock without polling. This is optional: a one-shot build
// invocation has no use for it.
type Watcher struct {
	fsw    *fsnotify.Watcher
	log    *logrus.Entry
	Events chan WatchEvent
}

type WatchEventKind int

const (
	EventIndexChanged WatchEventKind = iota
	EventLockReleased
)

type WatchEvent struct {
	Kind WatchEventKind
	Path string
}

func NewWatcher(log *logrus.Entry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, log: log, Events: make(chan WatchEvent, 16)}
	go w.loop()
	return w, nil
}

func (w *Watcher) WatchIndexDir(dir string) error {
	return w.fsw.Add(dir)
}

func (w *Watcher) WatchLockFile(path string) error {
	return w.fsw.Add(path)
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.Events)
				return
			}
			kind := EventIndexChanged
			if ev.Op&fsnotify.Remove != 0 {
				kind = EventLockReleased
			}
			w.Events <- WatchEvent{Kind: kind, Path: ev.Name}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithError(err).Warn("source watcher error")
			}
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
