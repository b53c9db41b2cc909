package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Long polling timeout in seconds
	UpdateTimeout int
	// Reminder hour given to new users
	DefaultNotificationHour int
	// Upper bound on cards announced in one reminder for new users
	DefaultCardsPerDay int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout:           60,
		DefaultNotificationHour: 9,
		DefaultCardsPerDay:      20,
	}
}
