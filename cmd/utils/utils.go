package utils

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"
)

func Endpoint(router *http.ServeMux, method string, path string, endpt func(w http.ResponseWriter, r *http.Request) (int, any)) {
	// Go 1.22+ method routing pattern: "METHOD /path"
	pattern := method + " " + path
	router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		status, resp := endpt(w, r)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			return
		}
		WriteJson(w, status, resp)
	})
}

func EndpointWithPathParams(router *http.ServeMux, method string, path string, val string, endpt func(w http.ResponseWriter, r *http.Request, pv string) (int, any)) {
	pattern := method + " " + path
	router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		pathValue := r.PathValue(val)
		status, resp := endpt(w, r, pathValue)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			return
		}
		WriteJson(w, status, resp)
	})
}

func GetEnv(key string, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return value
}

func GetEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func GetEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func WriteJson[T any](w http.ResponseWriter, status int, data T) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}
