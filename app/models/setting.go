package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:mediumtext" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // json, boolean
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SettingBlockedIPs      = "blocked_ips"
	SettingIPLogs          = "ip_logs"
	SettingReminderDays    = "reminder_days"
	SettingReminderEnabled = "reminder_enabled"
)

// MaxIPLogs bounds the number of addresses kept in ip_logs.
const MaxIPLogs = 500

// IPLog is the last-seen access metadata for one caller address.
type IPLog struct {
	LastSeen  time.Time `json:"last_seen"`
	LastPath  string    `json:"last_path"`
	UserAgent string    `json:"user_agent,omitempty"`
	Hits      int64     `json:"hits"`
}

// AdminSettings is the administrative configuration read by the edge gate
// and the reminder engine.
type AdminSettings struct {
	BlockedIPs      []string         `json:"blocked_ips" validate:"dive,required,ip|cidr"`
	IPLogs          map[string]IPLog `json:"ip_logs"`
	ReminderDays    []int            `json:"reminder_days" validate:"unique,dive,min=0,max=365"`
	ReminderEnabled bool             `json:"reminder_enabled"`
}

// DefaultReminderDays are the exact days-left buckets that trigger a reminder.
var DefaultReminderDays = []int{30, 7, 0}

func DefaultAdminSettings() *AdminSettings {
	return &AdminSettings{
		BlockedIPs:      []string{},
		IPLogs:          map[string]IPLog{},
		ReminderDays:    append([]int(nil), DefaultReminderDays...),
		ReminderEnabled: true,
	}
}

// Validate validates the settings
func (s *AdminSettings) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *AdminSettings) Clone() *AdminSettings {
	if s == nil {
		return nil
	}
	out := &AdminSettings{
		BlockedIPs:      append([]string{}, s.BlockedIPs...),
		IPLogs:          make(map[string]IPLog, len(s.IPLogs)),
		ReminderDays:    append([]int{}, s.ReminderDays...),
		ReminderEnabled: s.ReminderEnabled,
	}
	for k, v := range s.IPLogs {
		out.IPLogs[k] = v
	}
	return out
}

// Normalize trims and de-duplicates the block list.
func (s *AdminSettings) Normalize() {
	seen := make(map[string]struct{}, len(s.BlockedIPs))
	ips := make([]string, 0, len(s.BlockedIPs))
	for _, ip := range s.BlockedIPs {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}
	s.BlockedIPs = ips
	if s.IPLogs == nil {
		s.IPLogs = map[string]IPLog{}
	}
	if s.ReminderDays == nil {
		s.ReminderDays = append([]int(nil), DefaultReminderDays...)
	}
}

// MergeIPLogs folds fresh access entries into ip_logs and keeps only the
// most recently seen MaxIPLogs addresses.
func (s *AdminSettings) MergeIPLogs(fresh map[string]IPLog) {
	if s.IPLogs == nil {
		s.IPLogs = map[string]IPLog{}
	}
	for ip, entry := range fresh {
		cur, ok := s.IPLogs[ip]
		if !ok {
			s.IPLogs[ip] = entry
			continue
		}
		cur.Hits += entry.Hits
		if entry.LastSeen.After(cur.LastSeen) {
			cur.LastSeen = entry.LastSeen
			cur.LastPath = entry.LastPath
			cur.UserAgent = entry.UserAgent
		}
		s.IPLogs[ip] = cur
	}
	if len(s.IPLogs) <= MaxIPLogs {
		return
	}
	type seenAt struct {
		ip string
		at time.Time
	}
	all := make([]seenAt, 0, len(s.IPLogs))
	for ip, entry := range s.IPLogs {
		all = append(all, seenAt{ip: ip, at: entry.LastSeen})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
	for _, old := range all[MaxIPLogs:] {
		delete(s.IPLogs, old.ip)
	}
}

// ToRows converts settings to their key/value storage rows.
func (s *AdminSettings) ToRows() ([]Setting, error) {
	blocked, err := json.Marshal(s.BlockedIPs)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", SettingBlockedIPs, err)
	}
	logs, err := json.Marshal(s.IPLogs)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", SettingIPLogs, err)
	}
	days, err := json.Marshal(s.ReminderDays)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", SettingReminderDays, err)
	}
	return []Setting{
		{Key: SettingBlockedIPs, Value: string(blocked), Type: "json"},
		{Key: SettingIPLogs, Value: string(logs), Type: "json"},
		{Key: SettingReminderDays, Value: string(days), Type: "json"},
		{Key: SettingReminderEnabled, Value: strconv.FormatBool(s.ReminderEnabled), Type: "boolean"},
	}, nil
}

// AdminSettingsFromRows applies stored rows over the defaults. Unknown keys
// are ignored.
func AdminSettingsFromRows(rows []Setting) (*AdminSettings, error) {
	s := DefaultAdminSettings()
	for _, row := range rows {
		switch row.Key {
		case SettingBlockedIPs:
			if err := decodeSetting(row, &s.BlockedIPs); err != nil {
				return nil, err
			}
		case SettingIPLogs:
			if err := decodeSetting(row, &s.IPLogs); err != nil {
				return nil, err
			}
		case SettingReminderDays:
			if err := decodeSetting(row, &s.ReminderDays); err != nil {
				return nil, err
			}
		case SettingReminderEnabled:
			s.ReminderEnabled = row.Value == "true"
		}
	}
	s.Normalize()
	return s, nil
}

func decodeSetting(row Setting, dst interface{}) error {
	if strings.TrimSpace(row.Value) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(row.Value), dst); err != nil {
		return fmt.Errorf("decode setting %s: %w", row.Key, err)
	}
	return nil
}

// ToJSON converts settings to JSON
func (s *AdminSettings) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// AdminSettingsFromJSON decodes a serialized snapshot.
func AdminSettingsFromJSON(data []byte) (*AdminSettings, error) {
	s := DefaultAdminSettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	s.Normalize()
	return s, nil
}
