package llm

// ModelPreset represents the model usage preset
type ModelPreset string

const (
	PresetCreative ModelPreset = "creative"
	PresetPrecise  ModelPreset = "precise"
	PresetBalanced ModelPreset = "balanced"
)

// ModelConfig holds sampling parameters shared by every provider. Zero
// fields in an override leave the preset value untouched.
type ModelConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMimeType string
}

// GenerateMetadata contains metadata about the generation
type GenerateMetadata struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	UsedFallback bool   `json:"used_fallback"`
}

// GenerateOptions holds options for a single generation call.
type GenerateOptions struct {
	Model        string
	SystemPrompt string
	JSONMode     bool
	Overrides    *ModelConfig
}

// GetPresetConfig returns the configuration for a preset
func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetCreative:
		return ModelConfig{
			Temperature:     0.7,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 2048,
		}
	case PresetPrecise:
		return ModelConfig{
			Temperature:     0.1,
			TopP:            0.9,
			TopK:            20,
			MaxOutputTokens: 1024,
		}
	case PresetBalanced:
		return ModelConfig{
			Temperature:     0.4,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 2048,
		}
	default:
		return GetPresetConfig(PresetBalanced)
	}
}

// resolveModelConfig layers opts.Overrides on top of the preset.
func resolveModelConfig(preset ModelPreset, opts *GenerateOptions) ModelConfig {
	cfg := GetPresetConfig(preset)
	if opts == nil {
		return cfg
	}
	if o := opts.Overrides; o != nil {
		if o.Temperature > 0 {
			cfg.Temperature = o.Temperature
		}
		if o.TopP > 0 {
			cfg.TopP = o.TopP
		}
		if o.TopK > 0 {
			cfg.TopK = o.TopK
		}
		if o.MaxOutputTokens > 0 {
			cfg.MaxOutputTokens = o.MaxOutputTokens
		}
		if o.ResponseMimeType != "" {
			cfg.ResponseMimeType = o.ResponseMimeType
		}
	}
	if opts.JSONMode && cfg.ResponseMimeType == "" {
		cfg.ResponseMimeType = "application/json"
	}
	return cfg
}

func modelOrDefault(opts *GenerateOptions, fallback string) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return fallback
}

const jsonOnlyInstruction = "You must respond with valid JSON only. Do not include any text outside the JSON object."

// systemPrompt returns the system instruction for a call, appending the
// JSON-only rule in JSON mode.
func systemPrompt(opts *GenerateOptions) string {
	if opts == nil {
		return ""
	}
	switch {
	case opts.JSONMode && opts.SystemPrompt != "":
		return opts.SystemPrompt + "\n\n" + jsonOnlyInstruction
	case opts.JSONMode:
		return jsonOnlyInstruction
	default:
		return opts.SystemPrompt
	}
}
