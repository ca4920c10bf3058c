package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers the command line overrides shared by every
// subcommand on fs. Values land directly in cfg, so call LoadConfig first
// and parse afterwards.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Stomp.BaseURL, "ws-url", cfg.Stomp.BaseURL, "telemetry broker base URL (defaults to the API origin)")
	fs.StringSliceVar(&cfg.Stomp.Transports, "transport", cfg.Stomp.Transports, "transports to try in order: websocket, sockjs, tcp")
	fs.StringVar(&cfg.Stomp.TCPAddr, "tcp-addr", cfg.Stomp.TCPAddr, "host:port for the tcp transport")
	fs.DurationVar(&cfg.Stomp.ReconnectDelay, "reconnect-delay", cfg.Stomp.ReconnectDelay, "delay between reconnection attempts")
	fs.StringVar(&cfg.API.BaseURL, "api-url", cfg.API.BaseURL, "REST API base URL")
	fs.DurationVar(&cfg.API.Timeout, "api-timeout", cfg.API.Timeout, "REST request timeout")
	fs.StringVar(&cfg.Auth.Token, "token", cfg.Auth.Token, "session token (overrides the stored token)")
	fs.StringVar(&cfg.Auth.TokenFile, "token-file", cfg.Auth.TokenFile, "where the session token is stored")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", cfg.MQTT.Broker, "MQTT broker to mirror readings to (empty disables)")
	fs.StringVar(&cfg.MQTT.TopicPrefix, "mqtt-prefix", cfg.MQTT.TopicPrefix, "MQTT topic prefix")
	fs.StringVar(&cfg.MQTT.Format, "mqtt-format", cfg.MQTT.Format, "mirror payload format: json or cbor")
	fs.BoolVarP(&cfg.MQTT.Debug, "debug", "v", cfg.MQTT.Debug, "verbose MQTT client logging")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: text or json")
}
