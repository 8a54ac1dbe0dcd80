package entity

import "strings"

// Credentials is the per-run key bundle. It is passed by value so a run keeps
// the snapshot taken at submission even if settings change mid-flight.
type Credentials struct {
	VisionKey             string `json:"vision_key,omitempty" yaml:"visionKey"`
	ChatKey               string `json:"chat_key,omitempty" yaml:"chatKey"`
	LegacyAccessKeyID     string `json:"legacy_access_key_id,omitempty" yaml:"legacyAccessKeyId"`
	LegacyAccessKeySecret string `json:"legacy_access_key_secret,omitempty" yaml:"legacyAccessKeySecret"`
}

// HasVision reports whether the vision OCR key is set.
func (c Credentials) HasVision() bool { return strings.TrimSpace(c.VisionKey) != "" }

// HasLegacyOCR reports whether both halves of the legacy OCR key pair are set.
func (c Credentials) HasLegacyOCR() bool {
	return strings.TrimSpace(c.LegacyAccessKeyID) != "" && strings.TrimSpace(c.LegacyAccessKeySecret) != ""
}

// HasChat reports whether the chat structuring key is set.
func (c Credentials) HasChat() bool { return strings.TrimSpace(c.ChatKey) != "" }

// CanExtract is true when at least one OCR provider can be called.
func (c Credentials) CanExtract() bool { return c.HasVision() || c.HasLegacyOCR() }

// Merge returns c with empty fields filled from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	if c.VisionKey == "" {
		c.VisionKey = fallback.VisionKey
	}
	if c.ChatKey == "" {
		c.ChatKey = fallback.ChatKey
	}
	if c.LegacyAccessKeyID == "" && c.LegacyAccessKeySecret == "" {
		c.LegacyAccessKeyID = fallback.LegacyAccessKeyID
		c.LegacyAccessKeySecret = fallback.LegacyAccessKeySecret
	}
	return c
}
