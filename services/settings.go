package services

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/intelsk/reid/config"
)

type settingDef struct {
	Key     string
	Type    string // "float", "int", "bool", "string"
	Default string
	Min     float64
	Max     float64
}

var settingDefs = []settingDef{
	{"results.min_similarity", "float", "0", 0.0, 1.0},
	{"results.show_orphaned", "bool", "true", 0, 0},
	{"cropper.max_dimension", "int", "512", 32, 4096},
	{"cropper.dedup_threshold", "int", "6", 0, 64},
}

// SettingsService holds runtime settings for the session. Values live in
// memory only and start from the loaded configuration.
type SettingsService struct {
	mu    sync.RWMutex
	cache map[string]string
	defs  map[string]settingDef
}

func NewSettingsService(cfg *config.AppConfig) *SettingsService {
	s := &SettingsService{
		cache: make(map[string]string),
		defs:  make(map[string]settingDef),
	}

	for _, d := range settingDefs {
		s.defs[d.Key] = d
		s.cache[d.Key] = d.Default
	}

	s.cache["results.min_similarity"] = strconv.FormatFloat(cfg.Results.MinSimilarity, 'f', -1, 64)
	s.cache["cropper.max_dimension"] = strconv.Itoa(cfg.Cropper.MaxDimension)
	s.cache["cropper.dedup_threshold"] = strconv.Itoa(cfg.Cropper.DedupThreshold)

	return s
}

func (s *SettingsService) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[key]
}

func (s *SettingsService) GetFloat64(key string) float64 {
	v, _ := strconv.ParseFloat(s.Get(key), 64)
	return v
}

func (s *SettingsService) GetInt(key string) int {
	v, _ := strconv.Atoi(s.Get(key))
	return v
}

func (s *SettingsService) GetBool(key string) bool {
	v, _ := strconv.ParseBool(s.Get(key))
	return v
}

func (s *SettingsService) Set(key string, value any) error {
	def, ok := s.defs[key]
	if !ok {
		return fmt.Errorf("unknown setting: %s", key)
	}

	strVal, err := s.validate(def, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = strVal
	s.mu.Unlock()

	return nil
}

// SetAll validates every entry before applying any of them.
func (s *SettingsService) SetAll(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	validated := make(map[string]string, len(values))
	for _, key := range keys {
		def, ok := s.defs[key]
		if !ok {
			return fmt.Errorf("unknown setting: %s", key)
		}
		v, err := s.validate(def, values[key])
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		validated[key] = v
	}

	s.mu.Lock()
	for k, v := range validated {
		s.cache[k] = v
	}
	s.mu.Unlock()
	return nil
}

func (s *SettingsService) validate(def settingDef, value any) (string, error) {
	switch def.Type {
	case "float":
		v, err := toFloat64(value)
		if err != nil {
			return "", fmt.Errorf("expected float: %w", err)
		}
		if v < def.Min || v > def.Max {
			return "", fmt.Errorf("must be between %g and %g", def.Min, def.Max)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case "int":
		v, err := toInt(value)
		if err != nil {
			return "", fmt.Errorf("expected int: %w", err)
		}
		if float64(v) < def.Min || float64(v) > def.Max {
			return "", fmt.Errorf("must be between %d and %d", int(def.Min), int(def.Max))
		}
		return strconv.Itoa(v), nil
	case "bool":
		v, err := toBool(value)
		if err != nil {
			return "", fmt.Errorf("expected bool: %w", err)
		}
		return strconv.FormatBool(v), nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("expected string")
		}
		return s, nil
	default:
		return "", fmt.Errorf("unknown type %s", def.Type)
	}
}

func (s *SettingsService) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any, len(s.defs))
	for key, def := range s.defs {
		result[key] = typed(def.Type, s.cache[key])
	}
	return result
}

// Defaults returns all setting default values as typed values.
func (s *SettingsService) Defaults() map[string]any {
	result := make(map[string]any, len(s.defs))
	for _, def := range s.defs {
		result[def.Key] = typed(def.Type, def.Default)
	}
	return result
}

func typed(kind, raw string) any {
	switch kind {
	case "float":
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	case "int":
		v, _ := strconv.Atoi(raw)
		return v
	case "bool":
		v, _ := strconv.ParseBool(raw)
		return v
	default:
		return raw
	}
}

// Type conversion helpers for JSON values (which come as float64, bool, or string)

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("%g is not a whole number", val)
		}
		return int(val), nil
	case int:
		return val, nil
	case string:
		return strconv.Atoi(val)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	case float64:
		return val != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}
