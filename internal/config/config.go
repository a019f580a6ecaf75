package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/limen.db"

	// Notification channel; empty AMQPURL means log-only publishing.
	AMQPURL   string
	AMQPQueue string

	// Door behavior
	PulseMs          int // lock open window
	RegisterTimeoutS int // registration inactivity timeout
	SessionSweepMins int // expired-session GC interval
	ReportHour       int // local hour for the scheduled daily report
}

func FromEnv() Config {
	// Optional .env for dev boxes; a missing file is fine.
	_ = godotenv.Load()

	addr := getenvDefault("LIMEN_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("LIMEN_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   getenvDefault("LIMEN_DB_PATH", "./data/limen.db"),

		AMQPURL:   os.Getenv("LIMEN_AMQP_URL"),
		AMQPQueue: getenvDefault("LIMEN_AMQP_QUEUE", "door.events"),

		PulseMs:          getenvInt("LIMEN_PULSE_MS", 3000),
		RegisterTimeoutS: getenvInt("LIMEN_REGISTER_TIMEOUT_S", 60),
		SessionSweepMins: getenvInt("LIMEN_SESSION_SWEEP_MINUTES", 5),
		ReportHour:       getenvInt("LIMEN_REPORT_HOUR", 22),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
