package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InvoicePrefix         string
	InvoiceNumberFormat   string
	DefaultTaxRate        float64
	CompanyName           string
	CompanyAddress        string
	CompanyPhone          string
	CompanyGSTIN          string
	CompanyStateName      string
	CompanyStateCode      string
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	taxRate, err := strconv.ParseFloat(getEnv("DEFAULT_TAX_RATE", "18"), 64)
	if err != nil || taxRate < 0 || taxRate > 100 {
		taxRate = 18
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		InvoicePrefix:         getEnv("INVOICE_PREFIX", "INV"),
		InvoiceNumberFormat:   getEnv("INVOICE_NUMBER_FORMAT", "{prefix}-{date}-{sequence}"),
		DefaultTaxRate:        taxRate,
		CompanyName:           getEnv("COMPANY_NAME", "Jay Laxmi Food Processing"),
		CompanyAddress:        os.Getenv("COMPANY_ADDRESS"),
		CompanyPhone:          os.Getenv("COMPANY_PHONE"),
		CompanyGSTIN:          strings.TrimSpace(os.Getenv("COMPANY_GSTIN")),
		CompanyStateName:      getEnv("COMPANY_STATE_NAME", "Maharashtra"),
		CompanyStateCode:      getEnv("COMPANY_STATE_CODE", "27"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
