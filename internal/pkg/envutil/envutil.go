package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// String returns the trimmed value of key, or def when unset/empty.
func String(key, def string, log *logger.Logger) string {
	v, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	return v
}

func Int(key string, def int, log *logger.Logger) int {
	v, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default", "env_var", key, "provided", v, "default", def)
		}
		return def
	}
	return i
}

func Bool(key string, def bool, log *logger.Logger) bool {
	v, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	if log != nil {
		log.Warn("Environment variable could not be parsed as bool, using default", "env_var", key, "provided", v, "default", def)
	}
	return def
}

// Duration accepts Go duration strings ("30s") or a bare integer of milliseconds.
func Duration(key string, def time.Duration, log *logger.Logger) time.Duration {
	v, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as duration, using default", "env_var", key, "provided", v, "default", def)
		}
		return def
	}
	return d
}

// List splits a comma separated value, dropping empty entries.
func List(key string, def []string, log *logger.Logger) []string {
	v, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func debugDefault(log *logger.Logger, key string, def any) {
	if log != nil {
		log.Debug("Environment variable not found, using default", "env_var", key, "default", def)
	}
}
