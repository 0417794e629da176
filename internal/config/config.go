// Package config loads the message bus's tunables from file, environment,
// and flag sources via github.com/spf13/viper (spec §6 "Configuration
// keys"), binding exactly the keys spec.md names and defaulting every one
// to the value spec §5 states.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
)

// Keys are the viper key names spec §6 lists verbatim.
const (
	KeyRouterAddress     = "msgbus.router.address"
	KeyRouterPassword    = "msgbus.router.password"
	KeyNoIDTimeout       = "msgbus.endpoint.no_id_timeout"
	KeyAliveNotifyPeriod = "msgbus.endpoint.alive_notify_period"
	KeyMQTTBroker        = "msgbus.bridge.mqtt_broker"
)

// Config is the resolved, typed view of the keys above, ready to hand to
// core.RouterConfig/endpoint.Config without further parsing.
type Config struct {
	RouterAddresses   []string
	RouterPassword    string
	NoIDTimeout       time.Duration
	AliveNotifyPeriod time.Duration
	MQTTBroker        string
}

// Load builds a *viper.Viper bound to the keys above with spec-mandated
// defaults, reads an optional config file (if path is non-empty) and
// environment variables (prefix MSGBUS_ ahead of the full key with "." turned
// into "_", e.g. MSGBUS_MSGBUS_ROUTER_ADDRESS), and returns the resolved
// Config.
//
// Keys absent everywhere fall back to the defaults in spec §5/§6
// (definition.Default*), matching "Keys absent → defaults listed in §5".
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("msgbus")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyRouterAddress, []string{"inprocess:bus"})
	v.SetDefault(KeyRouterPassword, "")
	v.SetDefault(KeyNoIDTimeout, definition.DefaultNoIDTimeout)
	v.SetDefault(KeyAliveNotifyPeriod, definition.DefaultAliveNotifyPeriod)
	v.SetDefault(KeyMQTTBroker, "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	return Config{
		RouterAddresses:   v.GetStringSlice(KeyRouterAddress),
		RouterPassword:    v.GetString(KeyRouterPassword),
		NoIDTimeout:       v.GetDuration(KeyNoIDTimeout),
		AliveNotifyPeriod: v.GetDuration(KeyAliveNotifyPeriod),
		MQTTBroker:        v.GetString(KeyMQTTBroker),
	}, nil
}
