package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// WatchToken watches the backend token file for rewrites (e.g. rotation by
// an external credential refresher) and invokes onChange with the new
// token each time it is updated. The returned func stops the watch.
func (c *Config) WatchToken(onChange func(token string)) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(c.Backend.TokenFile); err != nil {
		w.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				tok, err := c.ReadToken()
				if err != nil {
					log.Printf("CONFIG: re-read token failed: %v", err)
					continue
				}
				onChange(tok)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("CONFIG: token watch error: %v", err)
			case <-done:
				w.Close()
				return
			}
		}
	}()
	return func() { close(done) }, nil
}
