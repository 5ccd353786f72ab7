package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DEFAULT_SCAN_INTERVAL_SECONDS uint = 10
)

var (
	ErrUnknownEntry  = errors.New("unknown config entry")
	ErrEntryNotReady = errors.New("config entry not ready")
)

type EntryOptions struct {
	ScanInterval uint `json:"scan_interval"`
}

// ConfigEntry is one configured Meetstekker.
type ConfigEntry struct {
	Id        string       `json:"id"`
	Title     string       `json:"title"`
	Host      string       `json:"host"`
	Selection string       `json:"selection"`
	Options   EntryOptions `json:"options"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewConfigEntry(title, host, selection string, options EntryOptions) ConfigEntry {
	if title == "" {
		title = AURUM_DEFAULT_TITLE
	}
	if options.ScanInterval == 0 {
		options.ScanInterval = DEFAULT_SCAN_INTERVAL_SECONDS
	}
	return ConfigEntry{
		Id:        uuid.NewString(),
		Title:     title,
		Host:      strings.TrimSpace(host),
		Selection: selection,
		Options:   options,
		CreatedAt: time.Now().UTC(),
	}
}

// DeviceId is stable for a given host.
func (e ConfigEntry) DeviceId() string {
	return fmt.Sprintf("aurum_%s", md5HashShort(NormalizeHost(e.Host)))
}

func (e ConfigEntry) UpdateInterval() time.Duration {
	seconds := e.Options.ScanInterval
	if seconds == 0 {
		seconds = DEFAULT_SCAN_INTERVAL_SECONDS
	}
	return time.Duration(seconds) * time.Second
}

func (e ConfigEntry) ParsedSelection() (Selection, error) {
	return ParseSelection(e.Selection)
}

func NormalizeHost(host string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(host)), "/")
}
