package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileOverlay is the YAML-encoded subset of Config an operator typically
// wants to change at runtime: deployment targets and alert thresholds.
// It is merged onto a base Config loaded from the environment.
type FileOverlay struct {
	Deployment DeploymentConfig `yaml:"deployment"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
}

// LoadOverlay reads and parses a YAML overlay file.
func LoadOverlay(path string) (*FileOverlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config overlay: %w", err)
	}
	var overlay FileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse config overlay: %w", err)
	}
	return &overlay, nil
}

// Apply merges the overlay onto base, replacing Deployment and Thresholds
// wholesale when the overlay supplies them.
func (o *FileOverlay) Apply(base *Config) *Config {
	merged := *base
	if len(o.Deployment.Targets) > 0 {
		merged.Deployment = o.Deployment
	}
	if o.Thresholds != (ThresholdConfig{}) {
		merged.Thresholds = o.Thresholds
	}
	return &merged
}

// Watcher watches a YAML overlay file and invokes onChange with a freshly
// merged Config whenever the file is written. Grounded on the teacher's
// fsnotify dependency, previously unwired in the retrieval pack.
type Watcher struct {
	mu       sync.Mutex
	path     string
	base     *Config
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	done     chan struct{}
}

// NewWatcher starts watching path for changes. The caller must call Close
// when done. If the file cannot be watched, an error is returned and no
// goroutine is started.
func NewWatcher(path string, base *Config, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config overlay %s: %w", path, err)
	}

	w := &Watcher{
		path:     path,
		base:     base,
		watcher:  fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			overlay, err := LoadOverlay(w.path)
			if err != nil {
				// A malformed overlay is skipped without being reported:
				// onChange is not called and the last merged config stays.
				continue
			}
			w.mu.Lock()
			merged := overlay.Apply(w.base)
			w.base = merged
			w.mu.Unlock()
			w.onChange(merged)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
