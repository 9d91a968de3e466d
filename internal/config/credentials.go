package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Field describes one credential value.
type Field struct {
	Name    string
	Secret  bool
	Default string
}

// Section is the credential record of one platform or service.
type Section struct {
	Name   string
	Fields []Field
}

// Schema lists every credential record in display order.
var Schema = []Section{
	{Name: "twitter", Fields: []Field{
		{Name: "api_key", Secret: true},
		{Name: "api_secret", Secret: true},
		{Name: "bearer_token", Secret: true},
		{Name: "access_token", Secret: true},
		{Name: "access_secret", Secret: true},
	}},
	{Name: "bluesky", Fields: []Field{
		{Name: "handle"},
		{Name: "password", Secret: true},
		{Name: "pds_url", Default: "https://bsky.social"},
	}},
	{Name: "discord", Fields: []Field{
		{Name: "webhook_url", Secret: true},
	}},
	{Name: "instagram", Fields: []Field{
		{Name: "access_token", Secret: true},
		{Name: "account_id"},
	}},
	{Name: "reddit", Fields: []Field{
		{Name: "client_id"},
		{Name: "client_secret", Secret: true},
		{Name: "username"},
		{Name: "password", Secret: true},
		{Name: "user_agent", Default: "multipost/1.0"},
		{Name: "subreddits"},
	}},
	{Name: "imgbb", Fields: []Field{
		{Name: "api_key", Secret: true},
	}},
	{Name: "mastodon", Fields: []Field{
		{Name: "server"},
		{Name: "access_token", Secret: true},
		{Name: "client_id"},
		{Name: "client_secret", Secret: true},
	}},
}

// Lookup returns the schema section with the given name.
func Lookup(section string) (Section, bool) {
	for _, s := range Schema {
		if s.Name == section {
			return s, true
		}
	}
	return Section{}, false
}

func (s Section) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record holds one platform's credential values.
type Record map[string]string

// Credentials maps a lowercase section name to its record.
type Credentials map[string]Record

// NewCredentials returns a fully backfilled, empty set.
func NewCredentials() Credentials {
	c := Credentials{}
	c.backfill()
	return c
}

// Value returns one field, or "" when absent.
func (c Credentials) Value(section, field string) string {
	return c[section][field]
}

// Get resolves a "section.field" key.
func (c Credentials) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}
	return c.Value(section, field), nil
}

// Set assigns a "section.field" key. Only schema fields are accepted.
func (c Credentials) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}
	if c[section] == nil {
		c[section] = Record{}
	}
	c[section][field] = strings.TrimSpace(value)
	return nil
}

func splitKey(key string) (string, string, error) {
	section, field, ok := strings.Cut(strings.ToLower(strings.TrimSpace(key)), ".")
	if !ok || section == "" || field == "" {
		return "", "", fmt.Errorf("invalid key %q (want <platform>.<field>)", key)
	}
	s, known := Lookup(section)
	if !known {
		return "", "", fmt.Errorf("unknown credentials section %q", section)
	}
	if _, known := s.field(field); !known {
		return "", "", fmt.Errorf("unknown field %q for %s", field, section)
	}
	return section, field, nil
}

// Clone returns a deep copy.
func (c Credentials) Clone() Credentials {
	out := make(Credentials, len(c))
	for section, rec := range c {
		cp := make(Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out[section] = cp
	}
	return out
}

// Masked returns a copy with secret values hidden.
func (c Credentials) Masked() Credentials {
	out := c.Clone()
	for _, s := range Schema {
		for _, f := range s.Fields {
			if rec := out[s.Name]; f.Secret && rec != nil {
				if v, ok := rec[f.Name]; ok {
					rec[f.Name] = mask(v)
				}
			}
		}
	}
	return out
}

func mask(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return "********"
	default:
		return "********" + v[len(v)-4:]
	}
}

// WithEnv overlays MULTIPOST_<SECTION>_<FIELD> variables onto a copy.
func (c Credentials) WithEnv(lookup func(string) (string, bool)) Credentials {
	out := c.Clone()
	out.backfill()
	for _, s := range Schema {
		for _, f := range s.Fields {
			if v, ok := lookup(EnvName(s.Name, f.Name)); ok && strings.TrimSpace(v) != "" {
				out[s.Name][f.Name] = strings.TrimSpace(v)
			}
		}
	}
	return out
}

// EnvName is the override variable for one field.
func EnvName(section, field string) string {
	return strings.ToUpper("multipost_" + section + "_" + field)
}

// backfill guarantees every schema section and field is present.
func (c Credentials) backfill() {
	for _, s := range Schema {
		rec := c[s.Name]
		if rec == nil {
			rec = Record{}
			c[s.Name] = rec
		}
		for _, f := range s.Fields {
			if _, ok := rec[f.Name]; !ok {
				rec[f.Name] = f.Default
			}
		}
	}
}

// migrateLegacy moves an old imgur client id into imgbb.api_key.
func (c Credentials) migrateLegacy() bool {
	legacy, ok := c["imgur"]
	if !ok {
		return false
	}
	if id := strings.TrimSpace(legacy["client_id"]); id != "" && strings.TrimSpace(c["imgbb"]["api_key"]) == "" {
		if c["imgbb"] == nil {
			c["imgbb"] = Record{}
		}
		c["imgbb"]["api_key"] = id
	}
	delete(c, "imgur")
	return true
}

// LoadCredentials reads path. A missing file yields an empty, backfilled set.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCredentials(), nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	c := Credentials{}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	c.migrateLegacy()
	c.backfill()
	return c, nil
}

// SaveCredentials persists the full set, indented, readable only by the owner.
func SaveCredentials(path string, c Credentials) error {
	c = c.Clone()
	c.backfill()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}
