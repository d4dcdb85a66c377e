package safe

import (
	"fmt"
)

// -----------------------------------------------------------------------------
// Driver contract
// -----------------------------------------------------------------------------

// DriverMetadata describes an input driver to a tile-processing host.
type DriverMetadata struct {
	DriverName     string   `json:"driver_name"`
	DataType       string   `json:"data_type"`
	Mode           string   `json:"mode"`
	FileExtensions []string `json:"file_extensions"`
}

// Metadata identifies this package as the read-only SAFE raster driver.
var Metadata = DriverMetadata{
	DriverName:     "SAFE",
	DataType:       "raster",
	Mode:           "r",
	FileExtensions: []string{"SAFE", "zip", "ZIP"},
}

// OptionsFromConfig translates a host framework's process configuration map
// into read options. Recognized keys, matching the driver's documented
// configuration surface:
//
//	indexes          int or []int            bands to read
//	resampling       string                  resampling method name
//	mask_nodata      bool                    default true
//	mask_clouds      bool                    default false
//	mask_white_areas bool                    default false
//	return_empty     bool                    default false
//
// Unknown keys are rejected so configuration typos surface early.
func OptionsFromConfig(config map[string]any) ([]Option, error) {
	var opts []Option
	for key, value := range config {
		switch key {
		case "indexes":
			indexes, err := configIndexes(value)
			if err != nil {
				return nil, fmt.Errorf("safe: indexes: %w", err)
			}
			opts = append(opts, WithIndexes(indexes...))
		case "resampling":
			name, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("safe: resampling: expected string, got %T", value)
			}
			resampling, err := ParseResampling(name)
			if err != nil {
				return nil, fmt.Errorf("safe: resampling %q: %w", name, err)
			}
			opts = append(opts, WithResampling(resampling))
		case "mask_nodata":
			enabled, err := configBool(key, value)
			if err != nil {
				return nil, err
			}
			opts = append(opts, MaskNodata(enabled))
		case "mask_clouds":
			enabled, err := configBool(key, value)
			if err != nil {
				return nil, err
			}
			opts = append(opts, MaskClouds(enabled))
		case "mask_white_areas":
			enabled, err := configBool(key, value)
			if err != nil {
				return nil, err
			}
			opts = append(opts, MaskWhiteAreas(enabled))
		case "return_empty":
			enabled, err := configBool(key, value)
			if err != nil {
				return nil, err
			}
			opts = append(opts, ReturnEmpty(enabled))
		default:
			return nil, fmt.Errorf("safe: unknown configuration key %q", key)
		}
	}
	return opts, nil
}

// configIndexes accepts a single band number or a list of band numbers.
// JSON-decoded configuration delivers numbers as float64.
func configIndexes(value any) ([]BandIndex, error) {
	switch v := value.(type) {
	case int:
		return []BandIndex{BandIndex(v)}, nil
	case float64:
		return []BandIndex{BandIndex(v)}, nil
	case []any:
		indexes := make([]BandIndex, 0, len(v))
		for _, elem := range v {
			sub, err := configIndexes(elem)
			if err != nil {
				return nil, err
			}
			indexes = append(indexes, sub...)
		}
		return indexes, nil
	case []int:
		indexes := make([]BandIndex, 0, len(v))
		for _, n := range v {
			indexes = append(indexes, BandIndex(n))
		}
		return indexes, nil
	default:
		return nil, fmt.Errorf("expected band number or list, got %T", value)
	}
}

func configBool(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("safe: %s: expected bool, got %T", key, value)
	}
	return b, nil
}
