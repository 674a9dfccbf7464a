package templates

import (
	"encoding/json"
	"strings"
	"testing"
)

func loadLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return lib
}

func TestLoadProvidesAllTypes(t *testing.T) {
	lib := loadLibrary(t)

	want := []string{"arcade", "basic", "platformer", "puzzle", "shooter"}
	got := lib.Types()
	if len(got) != len(want) {
		t.Fatalf("Types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, name := range want {
		tpl := lib.Get(name)
		if !strings.HasPrefix(tpl.Markup, "<!DOCTYPE html>") {
			t.Errorf("%s markup does not start with a doctype", name)
		}
		if !strings.Contains(tpl.Markup, "phaser.min.js") {
			t.Errorf("%s markup does not load Phaser", name)
		}
		if tpl.Description == "" {
			t.Errorf("%s has no description", name)
		}
	}
}

func TestGetFallsBackToBasic(t *testing.T) {
	lib := loadLibrary(t)

	tpl := lib.Get("racing")
	if tpl.Name != DefaultType {
		t.Errorf("unknown type resolved to %q, want %q", tpl.Name, DefaultType)
	}
	if tpl := lib.Get("  Platformer "); tpl.Name != "platformer" {
		t.Errorf("case-insensitive lookup resolved to %q", tpl.Name)
	}
	if !lib.Has("shooter") || lib.Has("racing") {
		t.Error("Has misreports known types")
	}
}

func TestPhysicsFallsBackToArcade(t *testing.T) {
	lib := loadLibrary(t)

	if got := lib.Physics("platformer"); !strings.Contains(got, "gravity.y = 800") {
		t.Errorf("platformer physics = %q", got)
	}
	arcade := lib.Physics("arcade")
	if got := lib.Physics("racing"); got != arcade {
		t.Errorf("unknown type physics = %q, want arcade setup", got)
	}
	// basic carries no snippet of its own.
	if got := lib.Physics("basic"); got != arcade {
		t.Errorf("basic physics = %q, want arcade setup", got)
	}
}

func TestInputHandlerSelection(t *testing.T) {
	lib := loadLibrary(t)

	def := lib.InputHandler()
	if !strings.Contains(def, "// Keyboard input") || !strings.Contains(def, "// Mouse input") {
		t.Errorf("default handler missing keyboard or mouse: %q", def)
	}
	if strings.Contains(def, "// Touch input") {
		t.Error("default handler includes touch")
	}

	mixed := lib.InputHandler("touch", "keyboard", "gamepad")
	kb := strings.Index(mixed, "// Keyboard input")
	touch := strings.Index(mixed, "// Touch input")
	if kb < 0 || touch < 0 || kb > touch {
		t.Errorf("handler order wrong: %q", mixed)
	}
	if strings.Contains(mixed, "// Mouse input") {
		t.Error("unrequested mouse handler present")
	}
}

func TestConfigDefaults(t *testing.T) {
	snippet, err := Config(ConfigOptions{})
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if !strings.HasPrefix(snippet, "const config = ") || !strings.HasSuffix(snippet, ";") {
		t.Fatalf("snippet shape wrong: %q", snippet)
	}

	raw := strings.TrimSuffix(strings.TrimPrefix(snippet, "const config = "), ";")
	var cfg struct {
		Type    string         `json:"type"`
		Width   int            `json:"width"`
		Height  int            `json:"height"`
		Parent  string         `json:"parent"`
		Physics map[string]any `json:"physics"`
		Scale   map[string]any `json:"scale"`
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Type != "Phaser.AUTO" || cfg.Width != 800 || cfg.Height != 600 || cfg.Parent != "game-container" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Physics["default"] != "arcade" {
		t.Errorf("physics default = %v", cfg.Physics["default"])
	}
	arcade, ok := cfg.Physics["arcade"].(map[string]any)
	if !ok {
		t.Fatalf("arcade block missing: %v", cfg.Physics)
	}
	gravity := arcade["gravity"].(map[string]any)
	if gravity["y"].(float64) != 800 {
		t.Errorf("arcade gravity = %v", gravity["y"])
	}
	if cfg.Scale["mode"] != "Phaser.Scale.FIT" {
		t.Errorf("scale = %v", cfg.Scale)
	}
}

func TestConfigMatterFixedScale(t *testing.T) {
	snippet, err := Config(ConfigOptions{Width: 1024, Height: 768, Physics: "Matter", FixedScale: true})
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(snippet, "const config = "), ";")
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if _, ok := cfg["scale"]; ok {
		t.Error("fixed scale config still carries a scale block")
	}
	physics := cfg["physics"].(map[string]any)
	if physics["default"] != "matter" {
		t.Errorf("physics default = %v", physics["default"])
	}
	matter := physics["matter"].(map[string]any)
	if matter["gravity"].(map[string]any)["y"].(float64) != 0 {
		t.Errorf("matter gravity = %v", matter["gravity"])
	}
	if cfg["width"].(float64) != 1024 {
		t.Errorf("width = %v", cfg["width"])
	}
}
