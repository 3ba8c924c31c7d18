package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
)

const sample = `
# elevator tuning
[elevator]
max_velocity: 40
max_acceleration = 80   # in/s^2
tick_period: 0.02
invert_follower: yes

[level l2]
position: 16
tolerance: 0.5

[level l3]
position: 32
`

func TestLoadString(t *testing.T) {
	cfg, err := LoadString(sample)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if !cfg.HasSection("elevator") || cfg.HasSection("missing") {
		t.Fatalf("sections = %v", cfg.SectionNames())
	}
	sec, err := cfg.GetSection("elevator")
	if err != nil {
		t.Fatalf("GetSection: %v", err)
	}
	if v, _ := sec.GetFloat("max_velocity"); v != 40 {
		t.Errorf("max_velocity = %v, want 40", v)
	}
	if v, _ := sec.GetFloat("MAX_ACCELERATION"); v != 80 {
		t.Errorf("max_acceleration = %v, want 80", v)
	}
	if d, _ := sec.GetDuration("tick_period"); d != 20*time.Millisecond {
		t.Errorf("tick_period = %v, want 20ms", d)
	}
	if b, _ := sec.GetBool("invert_follower"); !b {
		t.Error("invert_follower = false, want true")
	}
}

func TestMissingAndFallback(t *testing.T) {
	cfg, _ := LoadString(sample)
	sec, _ := cfg.GetSection("elevator")

	if _, err := sec.GetFloat("kp"); !errors.Is(err, errors.ErrConfigOption) {
		t.Errorf("missing option error = %v, want CONFIG_OPTION", err)
	}
	if v, err := sec.GetFloat("kp", 0.1); err != nil || v != 0.1 {
		t.Errorf("fallback = %v, %v", v, err)
	}
	if d, err := sec.GetDuration("watchdog", time.Second); err != nil || d != time.Second {
		t.Errorf("duration fallback = %v, %v", d, err)
	}
	if _, err := cfg.GetSection("pid"); !errors.Is(err, errors.ErrConfigSection) {
		t.Errorf("missing section error = %v, want CONFIG_SECTION", err)
	}
}

func TestBounds(t *testing.T) {
	cfg, _ := LoadString("[s]\nneg: -1\nzero: 0\nbig: 5\nword: fast\ninf: inf\n")
	sec, _ := cfg.GetSection("s")
	tests := []struct {
		option string
		bounds FloatBounds
		code   errors.ErrorCode
	}{
		{"neg", Min(0), errors.ErrConfigValidation},
		{"zero", Above(0), errors.ErrConfigValidation},
		{"big", Max(1), errors.ErrConfigValidation},
		{"big", Below(5), errors.ErrConfigValidation},
		{"big", Above(0).And(Max(10)), ""},
		{"word", FloatBounds{}, errors.ErrConfigType},
		{"inf", FloatBounds{}, errors.ErrConfigValidation},
	}
	for _, tt := range tests {
		_, err := sec.GetFloatWithBounds(tt.option, tt.bounds)
		if tt.code == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.option, err)
			}
			continue
		}
		if !errors.Is(err, tt.code) {
			t.Errorf("%s: error = %v, want %s", tt.option, err, tt.code)
		}
	}
}

func TestGetPrefixSectionsOrder(t *testing.T) {
	cfg, _ := LoadString(sample)
	secs := cfg.GetPrefixSections("level ")
	if len(secs) != 2 || secs[0].Name() != "level l2" || secs[1].Name() != "level l3" {
		t.Fatalf("prefix sections = %v", secs)
	}
}

func TestCheckUnused(t *testing.T) {
	cfg, _ := LoadString(sample)
	sec, _ := cfg.GetSection("elevator")
	sec.GetFloat("max_velocity")
	sec.GetFloat("max_acceleration")

	err := cfg.CheckUnused()
	if err == nil {
		t.Fatal("expected unused report")
	}
	msg := err.Error()
	for _, want := range []string{"invert_follower", "tick_period", "unused section [level l2]"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report %q missing %q", msg, want)
		}
	}

	sec.GetDuration("tick_period")
	sec.GetBool("invert_follower")
	for _, s := range cfg.GetPrefixSections("level ") {
		s.GetFloat("position")
		s.GetFloat("tolerance", 0.5)
	}
	if err := cfg.CheckUnused(); err != nil {
		t.Errorf("CheckUnused after reading everything: %v", err)
	}
}

func TestMalformed(t *testing.T) {
	for _, data := range []string{
		"key: value\n",
		"[]\n",
		"[s]\njust words\n",
		"[include other.cfg]\n",
	} {
		if _, err := LoadString(data); err == nil {
			t.Errorf("LoadString(%q) succeeded", data)
		}
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("main.cfg", "[include levels/*.cfg]\n[elevator]\nmax_velocity: 40\n")
	os.Mkdir(filepath.Join(dir, "levels"), 0o755)
	write("levels/a.cfg", "[level down]\nposition: 0\n")
	write("levels/b.cfg", "[level l1]\nposition: 8\n")

	cfg, err := Load(filepath.Join(dir, "main.cfg"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"level down", "level l1", "elevator"}
	got := cfg.SectionNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("sections = %v, want %v", got, want)
	}

	write("loop.cfg", "[include loop.cfg]\n")
	if _, err := Load(filepath.Join(dir, "loop.cfg")); err == nil {
		t.Error("recursive include accepted")
	}
}
