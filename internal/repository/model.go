package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/go-playground/validator/v10"
)

const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04"
	DocumentVersion = "1.0"

	DefaultSnoozeMinutes = 5
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return IsClock(fl.Field().String())
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return IsDate(fl.Field().String())
	})
	// report json names so errors match the shared documents
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// IsClock reports whether s is a 24h "HH:MM" time. Older clients also
// wrote the hour without its leading zero ("7:00").
func IsClock(s string) bool {
	_, ok := NormalizeClock(s)
	return ok
}

// NormalizeClock returns s as "HH:MM".
func NormalizeClock(s string) (string, bool) {
	if len(s) != 4 && len(s) != 5 {
		return "", false
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return "", false
	}
	return t.Format(TimeLayout), true
}

// IsDate reports whether s is a "YYYY-MM-DD" date.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// validateStruct runs the struct tags and reports the first failing field
// as a DataValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errs.Validation(fe.Field(), fmt.Sprint(fe.Value()), fmt.Errorf("failed %q rule", fe.Tag()))
	}
	return errs.Validation("", "", err)
}

// Timestamp is a JSON time that also accepts the zone-less ISO-8601 form
// written by older clients. Zero encodes as null.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errs.Validation("timestamp", string(b), err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if p, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = p
			return nil
		}
	}
	return errs.Validation("timestamp", s, errors.New("not an ISO-8601 time"))
}

// ManifestConfig is the shared config.json describing the daily manifests.
// Other clients keep their own keys in the same file; those land in Extra
// and are written back unchanged.
type ManifestConfig struct {
	ManifestTimes      []string `json:"manifest_times" validate:"dive,hhmm"`
	Carriers           []string `json:"carriers" validate:"dive,required"`
	AlertWindowMinutes int      `json:"alert_window_minutes,omitempty" validate:"gte=0,lte=1440"`

	Extra map[string]json.RawMessage `json:"-"`
}

var manifestConfigKeys = []string{"manifest_times", "carriers", "alert_window_minutes"}

func (c ManifestConfig) MarshalJSON() ([]byte, error) {
	type plain ManifestConfig
	return marshalWithExtra(plain(c), c.Extra)
}

func (c *ManifestConfig) UnmarshalJSON(b []byte) error {
	type plain ManifestConfig
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := extraKeys(b, manifestConfigKeys)
	if err != nil {
		return err
	}
	*c = ManifestConfig(p)
	c.Extra = extra
	return nil
}

// marshalWithExtra encodes base and adds the keys of extra it does not set itself.
func marshalWithExtra(base any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(base)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// extraKeys returns the top-level keys of b not listed in known, or nil.
func extraKeys(b []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func DefaultManifestConfig() ManifestConfig {
	return ManifestConfig{
		ManifestTimes:      []string{"07:00", "13:00", "19:00"},
		Carriers:           []string{"Australia Post Metro", "DHL Express", "TNT Express"},
		AlertWindowMinutes: 30,
	}
}

func (c *ManifestConfig) ApplyDefaults() {
	if c.ManifestTimes == nil {
		c.ManifestTimes = []string{}
	}
	if c.Carriers == nil {
		c.Carriers = []string{}
	}
}

func (c *ManifestConfig) Validate() error { return validateStruct(c) }

// Manifest is one pickup slot on a given date.
type Manifest struct {
	Time     string   `json:"time"`
	Date     string   `json:"date"`
	Carriers []string `json:"carriers"`
}

// BuildManifests expands the config into the manifests of date, one per
// distinct time, in time order. Blank carrier names are dropped.
func BuildManifests(cfg ManifestConfig, date string) []Manifest {
	carriers := make([]string, 0, len(cfg.Carriers))
	for _, c := range cfg.Carriers {
		if c = strings.TrimSpace(c); c != "" {
			carriers = append(carriers, c)
		}
	}

	seen := map[string]bool{}
	out := []Manifest{}
	for _, t := range cfg.ManifestTimes {
		t, ok := NormalizeClock(t)
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, Manifest{Time: t, Date: date, Carriers: append([]string(nil), carriers...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// AckKey is the natural key of an acknowledgment.
type AckKey struct {
	Date         string
	ManifestTime string
	Carrier      string
}

// Acknowledgment records that a user handled one carrier of one manifest.
type Acknowledgment struct {
	Date         string    `json:"date" validate:"required,isodate"`
	ManifestTime string    `json:"manifest_time" validate:"required,hhmm"`
	Carrier      string    `json:"carrier" validate:"required"`
	User         string    `json:"user" validate:"required"`
	Reason       string    `json:"reason"`
	Timestamp    Timestamp `json:"timestamp"`
}

func (a Acknowledgment) Key() AckKey {
	return AckKey{Date: a.Date, ManifestTime: a.ManifestTime, Carrier: a.Carrier}
}

// Normalize trims free-text fields and pads the manifest hour to two digits.
func (a *Acknowledgment) Normalize() {
	a.Date = strings.TrimSpace(a.Date)
	a.ManifestTime = strings.TrimSpace(a.ManifestTime)
	if t, ok := NormalizeClock(a.ManifestTime); ok {
		a.ManifestTime = t
	}
	a.Carrier = strings.TrimSpace(a.Carrier)
	a.User = strings.TrimSpace(a.User)
	a.Reason = strings.TrimSpace(a.Reason)
}

func (a *Acknowledgment) Validate() error {
	a.Normalize()
	return validateStruct(a)
}

// AckDocument is the shared ack.json.
type AckDocument struct {
	Acknowledgments []Acknowledgment `json:"acknowledgments"`
	LastUpdated     Timestamp        `json:"last_updated"`
	Count           int              `json:"count"`
	Version         string           `json:"version"`
}

// Stamp refreshes the metadata before a write.
func (d *AckDocument) Stamp(now time.Time) {
	if d.Acknowledgments == nil {
		d.Acknowledgments = []Acknowledgment{}
	}
	d.LastUpdated = NewTimestamp(now)
	d.Count = len(d.Acknowledgments)
	d.Version = DocumentVersion
}

// MergeAcknowledgment replaces the record with the same natural key or
// appends ack. It reports whether a record was replaced.
func MergeAcknowledgment(list []Acknowledgment, ack Acknowledgment) ([]Acknowledgment, bool) {
	key := ack.Key()
	for i := range list {
		if list[i].Key() == key {
			list[i] = ack
			return list, true
		}
	}
	return append(list, ack), false
}

// FilterByDate returns the records of date in their stored order.
func FilterByDate(list []Acknowledgment, date string) []Acknowledgment {
	out := []Acknowledgment{}
	for _, a := range list {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out
}

// AckSummary aggregates one day of acknowledgments.
type AckSummary struct {
	Date            string         `json:"date"`
	TotalCount      int            `json:"total_count"`
	UniqueManifests int            `json:"unique_manifests"`
	UniqueCarriers  int            `json:"unique_carriers"`
	ByUser          map[string]int `json:"acknowledgments_by_user"`
	ByTime          map[string]int `json:"acknowledgments_by_time"`
}

func Summarize(date string, acks []Acknowledgment) AckSummary {
	s := AckSummary{
		Date:       date,
		TotalCount: len(acks),
		ByUser:     map[string]int{},
		ByTime:     map[string]int{},
	}
	carriers := map[string]struct{}{}
	for _, a := range acks {
		s.ByUser[a.User]++
		s.ByTime[a.ManifestTime]++
		carriers[a.Carrier] = struct{}{}
	}
	s.UniqueManifests = len(s.ByTime)
	s.UniqueCarriers = len(carriers)
	return s
}

// MuteType is the closed set of mute modes.
type MuteType string

const (
	MuteManual   MuteType = "manual"
	MuteSnooze   MuteType = "snooze"
	MuteDisabled MuteType = "disabled"
)

// ParseMuteType rejects anything outside the known modes.
func ParseMuteType(s string) (MuteType, error) {
	switch t := MuteType(strings.ToLower(strings.TrimSpace(s))); t {
	case MuteManual, MuteSnooze, MuteDisabled:
		return t, nil
	}
	return "", errs.Validation("mute_type", s, errors.New("unknown mute type"))
}

func (t *MuteType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errs.Validation("mute_type", string(b), err)
	}
	parsed, err := ParseMuteType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MuteStatus is the single shared mute/snooze state.
type MuteStatus struct {
	IsMuted               bool      `json:"is_muted"`
	MuteType              MuteType  `json:"mute_type"`
	MutedBy               string    `json:"muted_by,omitempty"`
	MutedAt               Timestamp `json:"muted_at"`
	SnoozeUntil           Timestamp `json:"snooze_until"`
	Reason                string    `json:"reason,omitempty"`
	SnoozeDurationMinutes int       `json:"snooze_duration_minutes"`
}

// UnmarshalJSON infers a missing mute_type and accepts the legacy
// mute_end_time name for snooze_until.
func (m *MuteStatus) UnmarshalJSON(b []byte) error {
	type plain MuteStatus
	aux := struct {
		*plain
		MuteType    *string   `json:"mute_type"`
		MuteEndTime Timestamp `json:"mute_end_time"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	switch {
	case aux.MuteType != nil && strings.TrimSpace(*aux.MuteType) != "":
		t, err := ParseMuteType(*aux.MuteType)
		if err != nil {
			return err
		}
		m.MuteType = t
	case !m.SnoozeUntil.IsZero() || !aux.MuteEndTime.IsZero():
		m.MuteType = MuteSnooze
	case m.IsMuted:
		m.MuteType = MuteManual
	default:
		m.MuteType = MuteDisabled
	}
	if m.SnoozeUntil.IsZero() {
		m.SnoozeUntil = aux.MuteEndTime
	}
	return m.normalize()
}

func (m *MuteStatus) normalize() error {
	if m.SnoozeDurationMinutes == 0 {
		m.SnoozeDurationMinutes = DefaultSnoozeMinutes
	}
	if m.SnoozeDurationMinutes < 0 {
		return errs.Validation("snooze_duration_minutes", fmt.Sprint(m.SnoozeDurationMinutes), errors.New("must be positive"))
	}
	if !m.IsMuted {
		m.MuteType = MuteDisabled
		return nil
	}
	if m.MuteType == MuteDisabled || m.MuteType == "" {
		return errs.Validation("mute_type", string(m.MuteType), errors.New("muted status needs manual or snooze type"))
	}
	return nil
}

// Validate checks a status built in code before it is written.
func (m *MuteStatus) Validate() error {
	if m.MuteType != "" {
		if _, err := ParseMuteType(string(m.MuteType)); err != nil {
			return err
		}
	}
	return m.normalize()
}

// IsCurrentlyMuted reports the effective state at now. An elapsed snooze
// reads as unmuted.
func (m MuteStatus) IsCurrentlyMuted(now time.Time) bool {
	if !m.IsMuted {
		return false
	}
	if m.MuteType == MuteSnooze && !m.SnoozeUntil.IsZero() && !now.Before(m.SnoozeUntil.Time) {
		return false
	}
	return true
}

// Remaining returns how long a snooze still runs; zero for manual or unmuted.
func (m MuteStatus) Remaining(now time.Time) time.Duration {
	if !m.IsCurrentlyMuted(now) || m.MuteType != MuteSnooze || m.SnoozeUntil.IsZero() {
		return 0
	}
	return m.SnoozeUntil.Sub(now)
}

// Unmuted returns the default state; by records who cleared the mute.
func Unmuted(by string) MuteStatus {
	return MuteStatus{
		MuteType:              MuteDisabled,
		MutedBy:               by,
		SnoozeDurationMinutes: DefaultSnoozeMinutes,
	}
}

// Muted mutes indefinitely when duration is zero, otherwise snoozes for duration.
func Muted(by, reason string, duration time.Duration, now time.Time) (MuteStatus, error) {
	if duration < 0 {
		return MuteStatus{}, errs.Validation("duration", duration.String(), errors.New("must be positive"))
	}
	s := MuteStatus{
		IsMuted:               true,
		MuteType:              MuteManual,
		MutedBy:               by,
		MutedAt:               NewTimestamp(now),
		Reason:                reason,
		SnoozeDurationMinutes: DefaultSnoozeMinutes,
	}
	if duration > 0 {
		s.MuteType = MuteSnooze
		s.SnoozeUntil = NewTimestamp(now.Add(duration))
		if mins := int(duration / time.Minute); mins > 0 {
			s.SnoozeDurationMinutes = mins
		}
	}
	return s, nil
}

// Snoozed mutes for minutes.
func Snoozed(by string, minutes int, now time.Time) (MuteStatus, error) {
	if minutes <= 0 {
		return MuteStatus{}, errs.Validation("minutes", fmt.Sprint(minutes), errors.New("must be positive"))
	}
	return Muted(by, "Snoozed", time.Duration(minutes)*time.Minute, now)
}

// MuteDocument is the shared mute_status.json.
type MuteDocument struct {
	MuteStatus  MuteStatus `json:"mute_status"`
	LastUpdated Timestamp  `json:"last_updated"`
	Version     string     `json:"version"`
}

// Settings is the shared application configuration (settings.json).
// Unknown keys are kept in Extra and written back unchanged.
type Settings struct {
	AlertWindowMinutes   int    `json:"alert_window_minutes" validate:"gte=0,lte=1440"`
	SoundEnabled         bool   `json:"sound_enabled"`
	Volume               int    `json:"volume" validate:"gte=0,lte=100"`
	FlashEnabled         bool   `json:"flash_enabled"`
	SnoozeDefaultMinutes int    `json:"snooze_default_minutes" validate:"gte=1,lte=1440"`
	Version              string `json:"version"`

	Extra map[string]json.RawMessage `json:"-"`
}

var settingsKeys = []string{
	"alert_window_minutes", "sound_enabled", "volume",
	"flash_enabled", "snooze_default_minutes", "version",
}

func DefaultSettings() Settings {
	return Settings{
		AlertWindowMinutes:   30,
		SoundEnabled:         true,
		Volume:               50,
		FlashEnabled:         true,
		SnoozeDefaultMinutes: DefaultSnoozeMinutes,
		Version:              DocumentVersion,
	}
}

func (s *Settings) Validate() error { return validateStruct(s) }

func (s Settings) MarshalJSON() ([]byte, error) {
	type plain Settings
	return marshalWithExtra(plain(s), s.Extra)
}

// UnmarshalJSON fills missing keys from DefaultSettings.
func (s *Settings) UnmarshalJSON(b []byte) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := extraKeys(b, settingsKeys)
	if err != nil {
		return err
	}
	*s = Settings(p)
	s.Extra = extra
	return nil
}

// Lookup returns the value of a top-level settings key as decoded JSON.
func (s Settings) Lookup(key string) (any, bool) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}
