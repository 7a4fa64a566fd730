package env

import "os"

// Get returns the value of key, or fallback when it is unset or empty.
// Platform variables such as PORT live outside the MARKET_ prefix.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
