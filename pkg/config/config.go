// Package config parses the INI-style controller tuning file.
//
// Sections are written as [name], options as "key: value" or
// "key = value", and '#' starts a comment. Load additionally follows
// [include glob] directives relative to the including file. Every
// option read through a Section is recorded so that misspelled or
// leftover options can be reported with CheckUnusedOptions.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
)

// Config is a parsed configuration with access tracking.
type Config struct {
	mu       sync.Mutex
	sections map[string]*Section
	order    []string
	accessed map[string]struct{}
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections: make(map[string]*Section),
		accessed: make(map[string]struct{}),
	}
}

// Load reads a configuration file, following include directives.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.loadFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration from a string. Include directives
// are rejected since there is no directory to resolve them against.
func LoadString(data string) (*Config, error) {
	c := New()
	err := c.parse(strings.NewReader(data), "<string>", func(string) error {
		return fmt.Errorf("config: include not supported in string config")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string, visiting map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	if visiting[abs] {
		return fmt.Errorf("config: recursive include: %s", path)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	return c.parse(f, path, func(spec string) error {
		pattern := filepath.Join(dir, spec)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("config: invalid include pattern %q: %w", spec, err)
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
			return fmt.Errorf("config: include file does not exist: %s", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if err := c.loadFile(m, visiting); err != nil {
				return err
			}
		}
		return nil
	})
}

// parse reads sections from r. include is called for [include ...] headers.
func (c *Config) parse(r io.Reader, name string, include func(spec string) error) error {
	var section string
	var options map[string]string
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
		section, options = "", nil
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return fmt.Errorf("config: empty section header at %s:%d", name, lineNum)
			}
			if spec, ok := strings.CutPrefix(header, "include "); ok {
				if err := include(strings.TrimSpace(spec)); err != nil {
					return err
				}
				continue
			}
			section, options = header, make(map[string]string)
			continue
		}

		if section == "" {
			return fmt.Errorf("config: option outside of a section at %s:%d", name, lineNum)
		}
		sep := strings.IndexAny(line, ":=")
		if sep <= 0 {
			return fmt.Errorf("config: malformed line %q at %s:%d", line, name, lineNum)
		}
		key := strings.ToLower(strings.TrimSpace(line[:sep]))
		options[key] = strings.TrimSpace(line[sep+1:])
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", name, err)
	}
	flush()
	return nil
}

// addSection adds a section, merging into an existing one of the same name.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[k] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a section, or a CONFIG_SECTION error if it is missing.
func (c *Config) GetSection(name string) (*Section, error) {
	if sec := c.GetSectionOptional(name); sec != nil {
		return sec, nil
	}
	return nil, errors.ConfigSectionError(name)
}

// GetSectionOptional returns a section if it exists, or nil if not.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	sec, ok := c.sections[name]
	if ok {
		c.accessed[name] = struct{}{}
	}
	return sec
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sections[name]
	return ok
}

// GetPrefixSections returns, in file order, all sections whose name
// starts with prefix, marking them accessed.
func (c *Config) GetPrefixSections(prefix string) []*Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []*Section
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			c.accessed[name] = struct{}{}
			result = append(result, c.sections[name])
		}
	}
	return result
}

// SectionNames returns all section names in file order.
func (c *Config) SectionNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// CheckUnused reports sections never accessed and options never read in
// accessed sections.
func (c *Config) CheckUnused() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var problems []string
	for _, name := range c.order {
		if _, ok := c.accessed[name]; !ok {
			problems = append(problems, fmt.Sprintf("unused section [%s]", name))
			continue
		}
		if unused := c.sections[name].UnusedOptions(); len(unused) > 0 {
			problems = append(problems, fmt.Sprintf("[%s]: unused options %v", name, unused))
		}
	}
	if len(problems) > 0 {
		return errors.New(errors.ErrConfigValidation, strings.Join(problems, "; "))
	}
	return nil
}
