package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Signaling SignalingConfig `yaml:"signaling"`
	Meeting   MeetingConfig   `yaml:"meeting"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Uplink    UplinkConfig    `yaml:"uplink"`
	Assist    AssistConfig    `yaml:"assist"`
	ICE       ICEConfig       `yaml:"ice"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SignalingConfig contains coordination-server connection configuration
type SignalingConfig struct {
	URL            string `yaml:"url"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	WriteTimeout   int    `yaml:"write_timeout"`   // seconds
}

// MeetingConfig identifies the meeting and the local participant
type MeetingConfig struct {
	MeetingID    string `yaml:"meeting_id"`
	UserID       string `yaml:"user_id"`
	Role         string `yaml:"role"` // "admin" or "client"
	TargetUserID string `yaml:"target_user_id"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	FrameSize  int `yaml:"frame_size"` // samples per processing callback
}

// VADConfig contains voice-activity gating configuration
type VADConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Threshold     float64 `yaml:"threshold"`       // RMS threshold, 0..1
	SpeechStartMs int     `yaml:"speech_start_ms"` // sustained speech before onset
	SpeechEndMs   int     `yaml:"speech_end_ms"`   // sustained silence before end
	PreRollMs     int     `yaml:"pre_roll_ms"`     // retained frames before onset
}

// UplinkConfig controls the audio-chunk flush cadence
type UplinkConfig struct {
	FlushIntervalMs int `yaml:"flush_interval_ms"` // minimum time between flushes
	MinBufferedMs   int `yaml:"min_buffered_ms"`   // minimum accumulated audio per flush
}

// AssistConfig contains the assist-request policy configuration
type AssistConfig struct {
	DraftCooldownMs int `yaml:"draft_cooldown_ms"`
	MinGrowthChars  int `yaml:"min_growth_chars"`
	ManualTimeoutMs int `yaml:"manual_timeout_ms"`
}

// ICEConfig contains STUN server configuration for the peer link
type ICEConfig struct {
	STUNServers  []string `yaml:"stun_servers"`
	OfferDelayMs int      `yaml:"offer_delay_ms"` // grace delay before the initiator offers
}

// HTTPConfig contains the diagnostics HTTP API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Signaling.Validate(); err != nil {
		return fmt.Errorf("signaling config: %w", err)
	}

	if err := c.Meeting.Validate(); err != nil {
		return fmt.Errorf("meeting config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Uplink.Validate(); err != nil {
		return fmt.Errorf("uplink config: %w", err)
	}

	if err := c.Assist.Validate(); err != nil {
		return fmt.Errorf("assist config: %w", err)
	}

	if err := c.ICE.Validate(); err != nil {
		return fmt.Errorf("ice config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates signaling configuration
func (s *SignalingConfig) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
		return fmt.Errorf("url must use ws:// or wss:// scheme, got %q", s.URL)
	}

	if s.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", s.ConnectTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates meeting configuration
func (m *MeetingConfig) Validate() error {
	if m.MeetingID == "" {
		return fmt.Errorf("meeting_id cannot be empty")
	}

	if m.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}

	if m.Role != "admin" && m.Role != "client" {
		return fmt.Errorf("role must be 'admin' or 'client', got %q", m.Role)
	}

	if m.TargetUserID == "" {
		return fmt.Errorf("target_user_id cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 24000, 44100, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 24000, 44100, 48000], got %d", a.SampleRate)
	}

	if a.FrameSize < 64 || a.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 64 and 8192 samples, got %d", a.FrameSize)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.SpeechStartMs < 0 {
		return fmt.Errorf("speech_start_ms cannot be negative, got %d", v.SpeechStartMs)
	}

	if v.SpeechEndMs < 0 {
		return fmt.Errorf("speech_end_ms cannot be negative, got %d", v.SpeechEndMs)
	}

	if v.PreRollMs < 0 {
		return fmt.Errorf("pre_roll_ms cannot be negative, got %d", v.PreRollMs)
	}

	return nil
}

// Validate validates uplink configuration
func (u *UplinkConfig) Validate() error {
	if u.FlushIntervalMs < 20 {
		return fmt.Errorf("flush_interval_ms must be at least 20, got %d", u.FlushIntervalMs)
	}

	if u.MinBufferedMs < 20 {
		return fmt.Errorf("min_buffered_ms must be at least 20, got %d", u.MinBufferedMs)
	}

	return nil
}

// Validate validates assist configuration
func (a *AssistConfig) Validate() error {
	if a.DraftCooldownMs < 100 {
		return fmt.Errorf("draft_cooldown_ms must be at least 100, got %d", a.DraftCooldownMs)
	}

	if a.MinGrowthChars < 1 {
		return fmt.Errorf("min_growth_chars must be at least 1, got %d", a.MinGrowthChars)
	}

	if a.ManualTimeoutMs < 1000 {
		return fmt.Errorf("manual_timeout_ms must be at least 1000, got %d", a.ManualTimeoutMs)
	}

	return nil
}

// Validate validates ICE configuration
func (i *ICEConfig) Validate() error {
	for _, server := range i.STUNServers {
		if !strings.HasPrefix(server, "stun:") && !strings.HasPrefix(server, "turn:") {
			return fmt.Errorf("ice server must use stun: or turn: scheme, got %q", server)
		}
	}

	if i.OfferDelayMs < 0 {
		return fmt.Errorf("offer_delay_ms cannot be negative, got %d", i.OfferDelayMs)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got %q", l.Format)
	}

	return nil
}

// GetConnectTimeout returns the signaling connect timeout as a time.Duration
func (s *SignalingConfig) GetConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeout) * time.Second
}

// GetWriteTimeout returns the signaling write timeout as a time.Duration
func (s *SignalingConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetSpeechStart returns the speech-start debounce as a time.Duration
func (v *VADConfig) GetSpeechStart() time.Duration {
	return time.Duration(v.SpeechStartMs) * time.Millisecond
}

// GetSpeechEnd returns the speech-end debounce as a time.Duration
func (v *VADConfig) GetSpeechEnd() time.Duration {
	return time.Duration(v.SpeechEndMs) * time.Millisecond
}

// GetPreRoll returns the pre-roll window as a time.Duration
func (v *VADConfig) GetPreRoll() time.Duration {
	return time.Duration(v.PreRollMs) * time.Millisecond
}

// GetFlushInterval returns the uplink flush interval as a time.Duration
func (u *UplinkConfig) GetFlushInterval() time.Duration {
	return time.Duration(u.FlushIntervalMs) * time.Millisecond
}

// GetMinBuffered returns the minimum accumulated audio per flush as a time.Duration
func (u *UplinkConfig) GetMinBuffered() time.Duration {
	return time.Duration(u.MinBufferedMs) * time.Millisecond
}

// GetDraftCooldown returns the auto-draft cooldown as a time.Duration
func (a *AssistConfig) GetDraftCooldown() time.Duration {
	return time.Duration(a.DraftCooldownMs) * time.Millisecond
}

// GetManualTimeout returns the manual request timeout as a time.Duration
func (a *AssistConfig) GetManualTimeout() time.Duration {
	return time.Duration(a.ManualTimeoutMs) * time.Millisecond
}

// GetOfferDelay returns the initiator grace delay as a time.Duration
func (i *ICEConfig) GetOfferDelay() time.Duration {
	return time.Duration(i.OfferDelayMs) * time.Millisecond
}
