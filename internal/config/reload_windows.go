//go:build windows

package config

// registerSignalHandler is a no-op on Windows since SIGHUP is not available.
func (r *Reloader) registerSignalHandler() {
	r.logger.Debug("SIGHUP not available on Windows, using file watcher only")
}
