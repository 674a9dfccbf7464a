// Package templates serves the embedded Phaser 3 starter library:
// complete page templates per game type plus configuration, input, and
// physics snippets.
package templates

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed library.yaml
var libraryYAML []byte

// DefaultType is served when a requested game type is unknown.
const DefaultType = "basic"

// physicsFallback backs any type without its own physics snippet.
const physicsFallback = "arcade"

// Template is one entry of the starter library. Markup is a complete
// single-file game; Physics is a scene snippet and may be empty.
type Template struct {
	Name        string `yaml:"-"`
	Description string `yaml:"description"`
	Markup      string `yaml:"markup"`
	Physics     string `yaml:"physics"`
}

// Library holds the parsed starter templates and input snippets.
type Library struct {
	types  map[string]Template
	inputs map[string]string
}

type libraryFile struct {
	Types  map[string]Template `yaml:"types"`
	Inputs map[string]string   `yaml:"inputs"`
}

// Load parses the embedded library. It fails when the default type is
// missing or any entry lacks markup.
func Load() (*Library, error) {
	var file libraryFile
	if err := yaml.Unmarshal(libraryYAML, &file); err != nil {
		return nil, fmt.Errorf("templates: parse library: %w", err)
	}
	if len(file.Types) == 0 {
		return nil, errors.New("templates: library has no game types")
	}
	if _, ok := file.Types[DefaultType]; !ok {
		return nil, fmt.Errorf("templates: library is missing the %s type", DefaultType)
	}
	for name, tpl := range file.Types {
		if strings.TrimSpace(tpl.Markup) == "" {
			return nil, fmt.Errorf("templates: type %s has no markup", name)
		}
	}
	return &Library{types: file.Types, inputs: file.Inputs}, nil
}

// Get resolves a game type case-insensitively, serving the basic
// template for anything unknown.
func (l *Library) Get(gameType string) Template {
	key := strings.ToLower(strings.TrimSpace(gameType))
	tpl, ok := l.types[key]
	if !ok {
		key = DefaultType
		tpl = l.types[key]
	}
	tpl.Name = key
	return tpl
}

// Has reports whether a game type exists in the library.
func (l *Library) Has(gameType string) bool {
	_, ok := l.types[strings.ToLower(strings.TrimSpace(gameType))]
	return ok
}

// Types lists the known game types in sorted order.
func (l *Library) Types() []string {
	names := make([]string, 0, len(l.types))
	for name := range l.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Physics returns the physics setup snippet for a game type, falling
// back to the arcade setup when the type is unknown or carries none.
func (l *Library) Physics(gameType string) string {
	if tpl, ok := l.types[strings.ToLower(strings.TrimSpace(gameType))]; ok && tpl.Physics != "" {
		return tpl.Physics
	}
	return l.types[physicsFallback].Physics
}

// InputHandler joins the input snippets for the requested kinds in
// keyboard, mouse, touch order. Unknown kinds are ignored; requesting
// none selects keyboard and mouse.
func (l *Library) InputHandler(kinds ...string) string {
	if len(kinds) == 0 {
		kinds = []string{"keyboard", "mouse"}
	}
	requested := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		requested[strings.ToLower(strings.TrimSpace(k))] = true
	}
	var blocks []string
	for _, kind := range []string{"keyboard", "mouse", "touch"} {
		if !requested[kind] {
			continue
		}
		if snippet, ok := l.inputs[kind]; ok {
			blocks = append(blocks, snippet)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// ConfigOptions shape the generated Phaser configuration. Zero values
// select an 800x600 arcade-physics canvas that scales to fit the page.
type ConfigOptions struct {
	Width      int
	Height     int
	Physics    string
	FixedScale bool
}

type sceneConfig struct {
	Preload string `json:"preload"`
	Create  string `json:"create"`
	Update  string `json:"update"`
}

type scaleConfig struct {
	Mode       string `json:"mode"`
	AutoCenter string `json:"autoCenter"`
}

type gameConfig struct {
	Type    string         `json:"type"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Parent  string         `json:"parent"`
	Physics map[string]any `json:"physics"`
	Scene   sceneConfig    `json:"scene"`
	Scale   *scaleConfig   `json:"scale,omitempty"`
}

// Config renders a const config declaration for embedding in a game
// script. Gravity defaults to 800 under arcade physics and 0 otherwise.
func Config(opts ConfigOptions) (string, error) {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	physics := strings.ToLower(strings.TrimSpace(opts.Physics))
	if physics == "" {
		physics = "arcade"
	}
	gravity := 0
	if physics == "arcade" {
		gravity = 800
	}
	cfg := gameConfig{
		Type:   "Phaser.AUTO",
		Width:  opts.Width,
		Height: opts.Height,
		Parent: "game-container",
		Physics: map[string]any{
			"default": physics,
			physics: map[string]any{
				"gravity": map[string]int{"y": gravity},
				"debug":   false,
			},
		},
		Scene: sceneConfig{Preload: "preload", Create: "create", Update: "update"},
	}
	if !opts.FixedScale {
		cfg.Scale = &scaleConfig{Mode: "Phaser.Scale.FIT", AutoCenter: "Phaser.Scale.CENTER_BOTH"}
	}
	payload, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return "", fmt.Errorf("templates: encode config: %w", err)
	}
	return fmt.Sprintf("const config = %s;", payload), nil
}
