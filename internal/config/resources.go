package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shopplanner/internal/model"
)

// WindowConfig is a weekly working window, e.g. days [1,2,3,4,5] 08:00-17:00.
type WindowConfig struct {
	Days  []int  `yaml:"days"`  // 1=Mon, 7=Sun
	Start string `yaml:"start"` // "08:00"
	End   string `yaml:"end"`   // "17:00"
}

type TechnicianConfig struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Color        string         `yaml:"color"`
	ResourceID   string         `yaml:"resource_id,omitempty"`
	Skills       []string       `yaml:"skills,omitempty"`
	IsActive     bool           `yaml:"is_active"`
	Availability []WindowConfig `yaml:"availability,omitempty"`
}

type BayConfig struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	IsActive     bool           `yaml:"is_active"`
	Availability []WindowConfig `yaml:"availability,omitempty"`
}

// TimeOffConfig blocks a resource. Either Date (whole local day) or From/To
// ("2006-01-02 15:04", local) is set.
type TimeOffConfig struct {
	ResourceID string `yaml:"resource_id"`
	Kind       string `yaml:"kind"` // technician | bay
	Date       string `yaml:"date,omitempty"`
	From       string `yaml:"from,omitempty"`
	To         string `yaml:"to,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
}

// HolidayConfig closes the whole shop for one day.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-24"
	Name string `yaml:"name"`
}

type ResourceDefaults struct {
	Availability []WindowConfig `yaml:"availability"`
}

// ResourcesConfig is the root of resources.yaml.
type ResourcesConfig struct {
	Technicians []TechnicianConfig `yaml:"technicians"`
	Bays        []BayConfig        `yaml:"bays"`
	TimeOff     []TimeOffConfig    `yaml:"time_off"`
	Holidays    []HolidayConfig    `yaml:"holidays"`
	Defaults    ResourceDefaults   `yaml:"defaults"`
}

const localTimeLayout = "2006-01-02 15:04"

// LoadResourcesConfig loads and validates resources.yaml.
func LoadResourcesConfig(path string) (*ResourcesConfig, error) {
	if path == "" {
		path = "configs/resources.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources config: %w", err)
	}

	var cfg ResourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse resources config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate resources config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ResourcesConfig) Validate() error {
	if len(c.Technicians) == 0 {
		return fmt.Errorf("no technicians defined")
	}

	techs := make(map[string]bool)
	for i, t := range c.Technicians {
		if t.ID == "" {
			return fmt.Errorf("technician[%d]: id is required", i)
		}
		if techs[t.ID] {
			return fmt.Errorf("technician[%d]: duplicate id %q", i, t.ID)
		}
		techs[t.ID] = true
		if t.Name == "" {
			return fmt.Errorf("technician[%d]: name is required", i)
		}
		if err := validateWindows(t.Availability, fmt.Sprintf("technician[%d].availability", i)); err != nil {
			return err
		}
	}

	bays := make(map[string]bool)
	for i, b := range c.Bays {
		if b.ID == "" {
			return fmt.Errorf("bay[%d]: id is required", i)
		}
		if bays[b.ID] {
			return fmt.Errorf("bay[%d]: duplicate id %q", i, b.ID)
		}
		bays[b.ID] = true
		if b.Name == "" {
			return fmt.Errorf("bay[%d]: name is required", i)
		}
		if err := validateWindows(b.Availability, fmt.Sprintf("bay[%d].availability", i)); err != nil {
			return err
		}
	}

	if err := validateWindows(c.Defaults.Availability, "defaults.availability"); err != nil {
		return err
	}

	for i, off := range c.TimeOff {
		switch model.ResourceKind(off.Kind) {
		case model.ResourceTechnician:
			if !techs[off.ResourceID] {
				return fmt.Errorf("time_off[%d]: unknown technician %q", i, off.ResourceID)
			}
		case model.ResourceBay:
			if !bays[off.ResourceID] {
				return fmt.Errorf("time_off[%d]: unknown bay %q", i, off.ResourceID)
			}
		default:
			return fmt.Errorf("time_off[%d]: kind must be technician or bay, got %q", i, off.Kind)
		}
		if _, _, err := off.span(time.UTC); err != nil {
			return fmt.Errorf("time_off[%d]: %w", i, err)
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

func validateWindows(windows []WindowConfig, prefix string) error {
	for i, w := range windows {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		if len(w.Days) == 0 {
			return fmt.Errorf("%s.days is required", p)
		}
		for _, d := range w.Days {
			if d < 1 || d > 7 {
				return fmt.Errorf("%s.days: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", p, d)
			}
		}
		start, err := parseClock(w.Start)
		if err != nil {
			return fmt.Errorf("%s.start: %w", p, err)
		}
		end, err := parseClock(w.End)
		if err != nil {
			return fmt.Errorf("%s.end: %w", p, err)
		}
		if end <= start {
			return fmt.Errorf("%s: end must be after start", p)
		}
	}
	return nil
}

// parseClock converts "HH:MM" to minutes from midnight. "24:00" is allowed as an end.
func parseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid format '%s', expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (c *ResourcesConfig) applyDefaults() {
	for i := range c.Technicians {
		if len(c.Technicians[i].Availability) == 0 {
			c.Technicians[i].Availability = c.Defaults.Availability
		}
	}
	for i := range c.Bays {
		if len(c.Bays[i].Availability) == 0 {
			c.Bays[i].Availability = c.Defaults.Availability
		}
	}
}

func (t TimeOffConfig) span(loc *time.Location) (time.Time, time.Time, error) {
	if t.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", t.Date, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date '%s', expected YYYY-MM-DD", t.Date)
		}
		return d, d.AddDate(0, 0, 1), nil
	}
	from, err := time.ParseInLocation(localTimeLayout, t.From, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from '%s', expected %s", t.From, localTimeLayout)
	}
	to, err := time.ParseInLocation(localTimeLayout, t.To, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to '%s', expected %s", t.To, localTimeLayout)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be after from")
	}
	return from, to, nil
}

// TechnicianModels converts the technician list.
func (c *ResourcesConfig) TechnicianModels() []model.Technician {
	out := make([]model.Technician, 0, len(c.Technicians))
	for _, t := range c.Technicians {
		out = append(out, model.Technician{
			ID:         t.ID,
			Name:       t.Name,
			Color:      t.Color,
			ResourceID: model.Ref(t.ResourceID),
			Skills:     append([]string(nil), t.Skills...),
			IsActive:   t.IsActive,
		})
	}
	return out
}

func (c *ResourcesConfig) BayModels() []model.Bay {
	out := make([]model.Bay, 0, len(c.Bays))
	for _, b := range c.Bays {
		out = append(out, model.Bay{ID: b.ID, Name: b.Name, IsActive: b.IsActive})
	}
	return out
}

// Windows expands every configured window into one row per weekday.
func (c *ResourcesConfig) Windows() []model.AvailabilityWindow {
	var out []model.AvailabilityWindow
	add := func(id string, kind model.ResourceKind, windows []WindowConfig) {
		for _, w := range windows {
			start, _ := parseClock(w.Start)
			end, _ := parseClock(w.End)
			for _, d := range w.Days {
				out = append(out, model.AvailabilityWindow{
					ResourceID:  id,
					Kind:        kind,
					Weekday:     time.Weekday(d % 7),
					StartMinute: start,
					EndMinute:   end,
				})
			}
		}
	}
	for _, t := range c.Technicians {
		add(t.ID, model.ResourceTechnician, t.Availability)
	}
	for _, b := range c.Bays {
		add(b.ID, model.ResourceBay, b.Availability)
	}
	return out
}

// TimeOffEntries resolves time off and holidays in loc. Holidays block every
// technician and bay for the whole local day.
func (c *ResourcesConfig) TimeOffEntries(loc *time.Location) ([]model.TimeOff, error) {
	var out []model.TimeOff
	for i, off := range c.TimeOff {
		from, to, err := off.span(loc)
		if err != nil {
			return nil, fmt.Errorf("time_off[%d]: %w", i, err)
		}
		out = append(out, model.TimeOff{
			ResourceID: off.ResourceID,
			Kind:       model.ResourceKind(off.Kind),
			StartsAt:   from.UTC(),
			EndsAt:     to.UTC(),
			Reason:     off.Reason,
		})
	}

	for i, h := range c.Holidays {
		d, err := time.ParseInLocation("2006-01-02", h.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("holiday[%d]: %w", i, err)
		}
		block := func(id string, kind model.ResourceKind) {
			out = append(out, model.TimeOff{
				ResourceID: id,
				Kind:       kind,
				StartsAt:   d.UTC(),
				EndsAt:     d.AddDate(0, 0, 1).UTC(),
				Reason:     h.Name,
			})
		}
		for _, t := range c.Technicians {
			block(t.ID, model.ResourceTechnician)
		}
		for _, b := range c.Bays {
			block(b.ID, model.ResourceBay)
		}
	}
	return out, nil
}
