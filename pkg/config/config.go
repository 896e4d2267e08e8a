package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	PollInterval time.Duration
	TimeZone     string
	Location     *time.Location

	// Language model
	AIProvider    string
	ModelName     string
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Mailbox / calendar
	MailboxProvider       string
	GoogleCredentialsFile string
	GoogleTokenFile       string
	CalendarID            string
	IMAPAddr              string
	IMAPUsername          string
	IMAPPassword          string
	IMAPMailbox           string
	IMAPTLS               bool

	// Processed-set storage
	ProcessedStore    string
	ProcessedFile     string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	ProcessedRedisKey string

	// Push trigger / notifications
	GoogleProjectID     string
	GooglePubSubTopic   string
	FirebaseCredentials string
	FCMDeviceTokens     []string

	StatusAddr string
	LogLevel   string
	LogPretty  bool
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	pollInterval := 300 * time.Second
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: must be a positive number of seconds", v)
		}
		pollInterval = time.Duration(secs) * time.Second
	}

	tz := getEnv("TIME_ZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", tz, err)
	}

	return &Config{
		PollInterval: pollInterval,
		TimeZone:     tz,
		Location:     loc,

		AIProvider:    getEnv("AI_PROVIDER", "gemini"),
		ModelName:     getEnv("MODEL_NAME", "gemini-2.5-flash"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		MailboxProvider:       getEnv("MAILBOX_PROVIDER", "gmail"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		GoogleTokenFile:       getEnv("GOOGLE_TOKEN_FILE", "token.json"),
		CalendarID:            getEnv("CALENDAR_ID", "primary"),
		IMAPAddr:              getEnv("IMAP_ADDR", ""),
		IMAPUsername:          getEnv("IMAP_USERNAME", ""),
		IMAPPassword:          getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:           getEnv("IMAP_MAILBOX", "INBOX"),
		IMAPTLS:               getEnv("IMAP_TLS", "true") == "true",

		ProcessedStore:    getEnv("PROCESSED_STORE", "file"),
		ProcessedFile:     getEnv("PROCESSED_FILE", "processed_ids.json"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		ProcessedRedisKey: getEnv("PROCESSED_REDIS_KEY", "mailcal:processed"),

		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FCMDeviceTokens:     splitList(os.Getenv("FCM_DEVICE_TOKENS")),

		StatusAddr: getEnv("STATUS_ADDR", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnv("LOG_PRETTY", "false") == "true",
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
