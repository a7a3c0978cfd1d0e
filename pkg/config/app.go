package config

// App holds process-wide settings.
type App struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"tenancyd"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}
