package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	Port              int
	UploadDirectory   string
	AllowedExtensions []string
	MaxUploadMB       int64

	DetectorModelPath   string
	DetectorClasses     []string // class order of the detector model
	ClassifierModelPath string
	PoseModelPath       string
	OnnxRuntimeLibrary  string
	DetectionConfidence float64
	DetectionIoU        float64
	InferOn             string // "crop" or "full"
	KeepCrops           bool

	StoreBackend        string // "sqlite" or "redis"
	DatabasePath        string
	RedisAddress        string
	RedisMaxConnections int

	ProcessingWorkers int
	QueueSize         int
	InferenceTimeout  time.Duration

	LogDirectory string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	// Missing .env is not an error.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvAsInt("PORT", 5000),
		UploadDirectory:   getEnv("UPLOAD_DIR", filepath.Join(".", "uploads")),
		AllowedExtensions: getEnvAsList("ALLOWED_EXTENSIONS", []string{"png", "jpg", "jpeg"}),
		MaxUploadMB:       getEnvAsInt64("MAX_UPLOAD_MB", 10),

		DetectorModelPath:   getEnv("ATC_YOLO_WEIGHTS", filepath.Join("models", "saved_models", "yolo_best.onnx")),
		DetectorClasses:     getEnvAsList("DETECTOR_CLASSES", []string{"cattle", "buffalo"}),
		ClassifierModelPath: getEnv("CLASSIFIER_MODEL", filepath.Join("models", "saved_models", "resnet_cattle_buffalo.onnx")),
		PoseModelPath:       getEnv("POSE_MODEL", filepath.Join("models", "saved_models", "pose_landmark.onnx")),
		OnnxRuntimeLibrary:  getEnv("ONNXRUNTIME_LIB", ""),
		DetectionConfidence: getEnvAsFloat("DETECTION_CONFIDENCE", 0.25),
		DetectionIoU:        getEnvAsFloat("DETECTION_IOU", 0.45),
		InferOn:             getEnv("INFER_ON", "crop"),
		KeepCrops:           getEnvAsBool("KEEP_CROPS", false),

		StoreBackend:        getEnv("STORE_BACKEND", "sqlite"),
		DatabasePath:        getEnv("DB_PATH", filepath.Join("data", "results.db")),
		RedisAddress:        getEnv("REDIS_ADDR", ":6379"),
		RedisMaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),

		ProcessingWorkers: getEnvAsInt("PROCESSING_WORKERS", 2),
		QueueSize:         getEnvAsInt("QUEUE_SIZE", 16),
		InferenceTimeout:  time.Duration(getEnvAsInt("INFERENCE_TIMEOUT", 30)) * time.Second,

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// IsAllowedFile reports whether filename has an extension from the allow-list.
// The comparison ignores case; a name without a dot is never allowed.
func (c *Config) IsAllowedFile(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}
