package engine

import (
	"context"
	"errors"
	"testing"
)

type stubEngine struct {
	info map[string]string
}

func (s *stubEngine) HealthCheck(ctx context.Context) bool { return true }
func (s *stubEngine) ModelInfo() map[string]string         { return s.info }
func (s *stubEngine) GenerateImg2Img(ctx context.Context, req GenerationRequest) *GenerationResult {
	return &GenerationResult{Success: true, Images: []string{"stub"}}
}

func TestCreateEngineAllVariants(t *testing.T) {
	f := NewFactory(nil)
	tests := []struct {
		tag EngineType
		cfg Config
	}{
		{EngineReplicate, Config{KeyAPIToken: "tok"}},
		{EngineFluxWorking, Config{KeyAPIToken: "tok"}},
		{EngineStateOfTheArt, Config{KeyAPIToken: "tok"}},
		{EngineHFInference, Config{KeyAPIToken: "tok"}},
		{EngineLocalSDXL, Config{KeyModelPath: t.TempDir()}},
		{EngineStandalone, nil},
	}
	for _, tc := range tests {
		t.Run(string(tc.tag), func(t *testing.T) {
			eng, err := f.CreateEngine(tc.tag, tc.cfg)
			if err != nil {
				t.Fatalf("CreateEngine(%s) error: %v", tc.tag, err)
			}
			if got := eng.ModelInfo()["engine_type"]; got != string(tc.tag) {
				t.Fatalf("engine_type = %q, want %q", got, tc.tag)
			}
		})
	}
}

func TestCreateEngineMissingKey(t *testing.T) {
	f := NewFactory(nil)
	tests := []struct {
		tag     EngineType
		wantKey string
	}{
		{EngineReplicate, KeyAPIToken},
		{EngineHFInference, KeyAPIToken},
		{EngineLocalSDXL, KeyModelPath},
	}
	for _, tc := range tests {
		t.Run(string(tc.tag), func(t *testing.T) {
			_, err := f.CreateEngine(tc.tag, Config{})
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Key != tc.wantKey {
				t.Fatalf("ConfigError.Key = %q, want %q", cfgErr.Key, tc.wantKey)
			}
		})
	}
}

func TestCreateEngineEmptyValueFails(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.CreateEngine(EngineReplicate, Config{KeyAPIToken: "   "})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for blank token, got %v", err)
	}
}

func TestCreateEngineUnknownTag(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.CreateEngine(EngineType("DALL_E"), Config{})
	var unsupported *UnsupportedEngineError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedEngineError, got %v", err)
	}
	if unsupported.Type != "DALL_E" {
		t.Fatalf("UnsupportedEngineError.Type = %q", unsupported.Type)
	}
}

func TestCachedEngineMemoizes(t *testing.T) {
	f := NewFactory(nil)
	first, err := f.CachedEngine(EngineStandalone, nil)
	if err != nil {
		t.Fatalf("CachedEngine error: %v", err)
	}
	second, err := f.CachedEngine(EngineStandalone, nil)
	if err != nil {
		t.Fatalf("CachedEngine error: %v", err)
	}
	if first != second {
		t.Fatal("CachedEngine built a second instance for the same tag")
	}
}

func TestRegisterSeedsCache(t *testing.T) {
	f := NewFactory(nil)
	stub := &stubEngine{info: map[string]string{"engine_type": string(EngineReplicate)}}
	f.Register(EngineReplicate, stub)

	// No api_token in config: only the registered instance can satisfy this.
	eng, err := f.CachedEngine(EngineReplicate, nil)
	if err != nil {
		t.Fatalf("CachedEngine error: %v", err)
	}
	if eng != Engine(stub) {
		t.Fatal("CachedEngine did not return the registered instance")
	}
}

func TestParseEngineType(t *testing.T) {
	tests := []struct {
		in   string
		want EngineType
		ok   bool
	}{
		{"replicate", EngineReplicate, true},
		{" HF_INFERENCE ", EngineHFInference, true},
		{"local_sdxl", EngineLocalSDXL, true},
		{"flux_working", EngineFluxWorking, true},
		{"state_of_the_art", EngineStateOfTheArt, true},
		{"STANDALONE", EngineStandalone, true},
		{"dalle", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseEngineType(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseEngineType(%q) = %q, %v", tc.in, got, ok)
		}
	}
}
