// Package config loads the cmdkit configuration file.
//
// It uses Viper to read cmdkit.yml, godotenv to load an optional .env file,
// and CMDKIT_ environment variables to override individual keys:
//
//	cfg, err := config.Load(config.WithConfigFile("/etc/cmdkit/cmdkit.yml"))
//
// Underscores in a variable name may stand for nesting or for a word break,
// so CMDKIT_RSYNC_RETRY_TIMES sets rsync.retry_times. Overrides only apply
// to keys that have a default or appear in the file.
package config
