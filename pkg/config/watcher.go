package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher turns writes to a config file into reload signals. It is the
// config-file counterpart to a SIGHUP: either can drive the executor's
// reload path.
type Watcher struct {
	fsw     *fsnotify.Watcher
	Reloads chan struct{}
	logger  zerolog.Logger
}

// NewWatcher starts watching path (if non-empty) for write/create/rename
// events and forwards a signal on Reloads. Reloads holds one pending
// signal; further events arriving while it is still pending are
// coalesced into it, so a burst of filesystem events (common with
// editors that write-then-rename) never blocks the watcher goroutine.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	w := &Watcher{
		Reloads: make(chan struct{}, 1),
		logger:  logger.With().Str("component", "config-watcher").Logger(),
	}
	if path == "" {
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.Reloads <- struct{}{}:
			default:
				// a reload is already pending; coalesce
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Close stops the underlying filesystem watch, if one was started.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}
