// Package config provides environment overlays for service configuration.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Env reads configuration values from the process environment.
// Keys use dotted form (security.webhook_secret) and map to PREFIX_SECURITY_WEBHOOK_SECRET.
type Env struct {
	v *viper.Viper
}

// NewEnv creates an Env for the given service prefix
func NewEnv(prefix string) *Env {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Env{v: v}
}

// IsSet reports whether key has a value in the environment
func (e *Env) IsSet(key string) bool {
	return e.v.IsSet(key)
}

// String overrides *dst when key is set
func (e *Env) String(key string, dst *string) {
	if e.v.IsSet(key) {
		*dst = e.v.GetString(key)
	}
}

// Int overrides *dst when key is set
func (e *Env) Int(key string, dst *int) {
	if e.v.IsSet(key) {
		*dst = e.v.GetInt(key)
	}
}

// Bool overrides *dst when key is set
func (e *Env) Bool(key string, dst *bool) {
	if e.v.IsSet(key) {
		*dst = e.v.GetBool(key)
	}
}

// Duration overrides *dst when key is set ("90s", "5m")
func (e *Env) Duration(key string, dst *time.Duration) {
	if e.v.IsSet(key) {
		*dst = e.v.GetDuration(key)
	}
}

// StringSlice overrides *dst with a comma separated list when key is set
func (e *Env) StringSlice(key string, dst *[]string) {
	if !e.v.IsSet(key) {
		return
	}
	var out []string
	for _, part := range strings.Split(e.v.GetString(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
