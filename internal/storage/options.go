package storage

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Options are the settings of one backend, as written under storage.config
// or archive.config. Missing and empty values read as the caller's default.
type Options struct {
	backend string
	values  map[string]string
}

// Bind wraps the settings of backend.
func Bind(backend string, values map[string]string) Options {
	return Options{backend: backend, values: values}
}

// Layer returns defaults overridden by values. Neither map is modified.
func Layer(defaults, values map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(values))
	maps.Copy(out, defaults)
	maps.Copy(out, values)
	return out
}

func (o Options) Backend() string { return o.backend }

func (o Options) lookup(key string) (string, bool) {
	v := strings.TrimSpace(o.values[key])
	return v, v != ""
}

func (o Options) String(key, def string) string {
	if v, ok := o.lookup(key); ok {
		return v
	}
	return def
}

// Required returns the value of key, failing when it is unset.
func (o Options) Required(key string) (string, error) {
	v, ok := o.lookup(key)
	if !ok {
		return "", o.Invalid(key, "cannot be empty")
	}
	return v, nil
}

// Path returns key as a cleaned path. A leading ~/ is the home directory.
func (o Options) Path(key string) (string, error) {
	v, err := o.Required(key)
	if err != nil {
		return "", err
	}
	if rest, ok := strings.CutPrefix(v, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest), nil
		}
	}
	return filepath.Clean(v), nil
}

// Bool accepts true/false, 1/0 and yes/no in any case.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, o.Invalid(key, "must be a boolean (true/false, 1/0, yes/no)")
}

func (o Options) Int(key string, def int) (int, error) {
	n, err := o.Int64(key, int64(def))
	return int(n), err
}

func (o Options) Int64(key string, def int64) (int64, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, o.Failed(key, "must be an integer", err)
	}
	return n, nil
}

// Duration accepts a Go duration or whole seconds.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, o.Invalid(key, "must be a duration (e.g. 5s, 1m30s) or whole seconds")
}

// FileMode reads an octal permission string such as 0700.
func (o Options) FileMode(key string, def os.FileMode) (os.FileMode, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil || n > 0o777 {
		return 0, o.Invalid(key, "must be an octal permission string (e.g. 0700)")
	}
	return os.FileMode(n), nil
}

// Invalid reports the current value of key as unusable.
func (o Options) Invalid(key, msg string) *ConfigError {
	return &ConfigError{Backend: o.backend, Field: key, Value: o.values[key], Message: msg}
}

// Failed reports that acting on key failed with cause. key may be empty
// when the failure concerns the backend as a whole.
func (o Options) Failed(key, msg string, cause error) *ConfigError {
	e := &ConfigError{Backend: o.backend, Field: key, Message: msg, Cause: cause}
	if key != "" {
		e.Value = o.values[key]
	}
	return e
}
