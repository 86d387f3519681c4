package model

import (
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "SCRIPTLOOP"

// Viper keys which can override a loaded configuration.
const (
	KeyTelegramEnabled = "telegram.enabled"
	KeyTelegramToken   = "telegram.token"
	KeyTelegramChatID  = "telegram.chat_id"
	KeyVerbose         = "service.verbose"
	KeyRepeat          = "service.repeat"
)

// NewViper returns viper instance reading SCRIPTLOOP_* environment variables,
// eg SCRIPTLOOP_TELEGRAM_TOKEN for telegram.token. Command line flags are
// bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// shorter alias, service.verbose is not something people remember
	_ = v.BindEnv(KeyVerbose, EnvPrefix+"_SERVICE_VERBOSE", EnvPrefix+"_VERBOSE")
	return v
}

// Override applies values explicitly set in v (environment or changed flags)
// on top of c. String values starting with $ are expanded from environment.
func (c *Config) Override(v *viper.Viper) {
	if v == nil {
		return
	}
	if v.IsSet(KeyTelegramEnabled) {
		c.Telegram.Enabled = v.GetBool(KeyTelegramEnabled)
	}
	if v.IsSet(KeyTelegramToken) {
		c.Telegram.Token = v.GetString(KeyTelegramToken)
	}
	if v.IsSet(KeyTelegramChatID) {
		c.Telegram.ChatID = v.GetString(KeyTelegramChatID)
	}
	if v.IsSet(KeyVerbose) {
		c.Service.Verbose = v.GetBool(KeyVerbose)
	}
	if v.IsSet(KeyRepeat) {
		c.Service.Repeat = v.GetInt(KeyRepeat)
	}
	c.Telegram.Token = expand(c.Telegram.Token)
	c.Telegram.ChatID = expand(c.Telegram.ChatID)
}
