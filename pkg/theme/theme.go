package theme

import (
	"fmt"
	"sort"
	"sync"
)

// Color is the int value used by discordgo.MessageEmbed.Color
type Color = int

// Theme holds all color roles used across the project.
// If a feature needs a very specific color, add it here so themes can
// override it explicitly.
type Theme struct {
	// Human-friendly name for the theme (unique within the registry).
	Name string

	// Core roles
	Primary Color
	Info    Color
	Success Color
	Warning Color
	Loading Color
	Error   Color
	Muted   Color

	// Audit entries, one per action kind
	Kick  Color
	Ban   Color
	Unban Color
	Prune Color
}

// Clone returns a copy of the Theme.
func (t *Theme) Clone() *Theme {
	cp := *t
	return &cp
}

// ensureDefaults fills zero-valued fields with fallbacks so themes can
// override only a subset of fields.
func (t *Theme) ensureDefaults() {
	if t.Primary == 0 {
		t.Primary = 0x5865F2
	}
	if t.Info == 0 {
		t.Info = 0x3B82F6
	}
	if t.Success == 0 {
		t.Success = 0x57F287
	}
	if t.Warning == 0 {
		t.Warning = 0xF59E0B
	}
	if t.Loading == 0 {
		t.Loading = 0xFEE75C
	}
	if t.Error == 0 {
		t.Error = 0xED4245
	}
	if t.Muted == 0 {
		t.Muted = 0x99AAB5
	}

	if t.Kick == 0 {
		t.Kick = t.Warning
	}
	if t.Ban == 0 {
		t.Ban = t.Error
	}
	if t.Unban == 0 {
		t.Unban = t.Success
	}
	if t.Prune == 0 {
		t.Prune = t.Primary
	}
}

// defaultTheme returns the built-in theme.
func defaultTheme() *Theme {
	th := &Theme{
		Name:    "default",
		Primary: 0x5865F2, // Discord blurple

		Info:    0x3B82F6,
		Success: 0x57F287,
		Warning: 0xF59E0B,
		Loading: 0xFEE75C,
		Error:   0xED4245,
		Muted:   0x99AAB5,

		Kick:  0xE0AF68,
		Ban:   0xF7768E,
		Unban: 0x9ECE6A,
		Prune: 0x7AA2F7,
	}
	th.ensureDefaults()
	return th
}

var (
	mu        sync.RWMutex
	registry  = map[string]*Theme{}
	currentTh = defaultTheme()
)

// Register adds a theme to the registry. It returns an error if the name is empty or already registered.
func Register(t *Theme) error {
	if t == nil {
		return fmt.Errorf("theme: cannot register nil theme")
	}
	if t.Name == "" {
		return fmt.Errorf("theme: name is required")
	}
	cp := t.Clone()
	cp.ensureDefaults()

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[cp.Name]; exists {
		return fmt.Errorf("theme: theme %q already registered", cp.Name)
	}
	registry[cp.Name] = cp
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(t *Theme) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// SetCurrent switches the active theme by name. An empty name restores the default.
func SetCurrent(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || name == "default" {
		currentTh = defaultTheme()
		return nil
	}
	th, ok := registry[name]
	if !ok {
		return fmt.Errorf("theme: theme %q not found", name)
	}
	currentTh = th.Clone()
	currentTh.ensureDefaults()
	return nil
}

// Names lists the registered themes, default included.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := []string{"default"}
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out[1:])
	return out
}

// Current returns a copy of the current theme.
// Modifying the returned value does not affect the global theme.
func Current() *Theme {
	mu.RLock()
	defer mu.RUnlock()
	return currentTh.Clone()
}

// Default returns a copy of the built-in default theme.
func Default() *Theme {
	return defaultTheme()
}

// Helper getters read from the current theme.

func Primary() Color { return Current().Primary }
func Info() Color    { return Current().Info }
func Success() Color { return Current().Success }
func Warning() Color { return Current().Warning }
func Loading() Color { return Current().Loading }
func Error() Color   { return Current().Error }
func Muted() Color   { return Current().Muted }
func Kick() Color    { return Current().Kick }
func Ban() Color     { return Current().Ban }
func Unban() Color   { return Current().Unban }
func Prune() Color   { return Current().Prune }
