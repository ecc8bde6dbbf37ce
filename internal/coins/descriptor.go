package coins

// Descriptor describes one recognizable coin. Fields other than ID and Featured
// are display metadata carried through to clients untouched.
type Descriptor struct {
	ID       string            `json:"id" yaml:"id"`
	ClassID  int               `json:"-" yaml:"class_id"`
	Featured bool              `json:"featured,omitempty" yaml:"featured"`
	Name     string            `json:"name,omitempty" yaml:"-"`
	Names    map[string]string `json:"-" yaml:"names"`
	Country  string            `json:"country,omitempty" yaml:"country"`
	Year     int               `json:"year,omitempty" yaml:"year"`
}

// LocalizedName returns the display name for the given language tag, falling
// back to English and finally to the coin id.
func (d Descriptor) LocalizedName(lang string) string {
	if name, ok := d.Names[lang]; ok {
		return name
	}
	if name, ok := d.Names["en"]; ok {
		return name
	}
	return d.ID
}
