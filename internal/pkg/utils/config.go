package utils

import "github.com/spf13/viper"

// SetDefaults sets config values used when nothing is provided by file or env
func SetDefaults(cfg *viper.Viper) {
	cfg.SetDefault("limit.minutes", 30)
	cfg.SetDefault("limit.transformations", 10)
	cfg.SetDefault("assemblyai.url", "https://api.assemblyai.com")
	cfg.SetDefault("gemini.url", "https://generativelanguage.googleapis.com")
	cfg.SetDefault("gemini.model", "gemini-2.5-flash")
	cfg.SetDefault("transcription.pollInterval", "3s")
	cfg.SetDefault("transcription.pollAttempts", 200)
}
