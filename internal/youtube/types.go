package youtube

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Privacy statuses accepted by the videos.insert endpoint.
var validPrivacyStatuses = map[string]bool{
	"public":   true,
	"private":  true,
	"unlisted": true,
}

// Licenses accepted by the videos.insert endpoint.
var validLicenses = map[string]bool{
	"youtube":        true,
	"creativeCommon": true,
}

// Metadata is the validated upload parameter bundle for one video. Optional
// fields are zero-valued when unset; Validate checks type and shape only —
// domain validity (category ids, country codes) is delegated to the service.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string

	// BCP-47 language tags.
	DefaultLanguage      string
	DefaultAudioLanguage string

	// Recording location; applied only when both are set.
	Latitude  *float64
	Longitude *float64

	PrivacyStatus       string
	License             string
	PublishAt           string // RFC 3339; implies scheduled publish
	PublicStatsViewable bool
	MadeForKids         bool

	// Audience targeting.
	AgeGroup  string
	Gender    string
	Countries []string

	// Post-upload steps.
	PlaylistID    string
	ThumbnailPath string
}

// Validate checks the metadata shape at the boundary so the transfer engine
// can treat it as opaque. Returns the first violation found.
func (m *Metadata) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("youtube: metadata: title is required")
	}

	if !validPrivacyStatuses[m.PrivacyStatus] {
		return fmt.Errorf("youtube: metadata: invalid privacy status %q (public, private, unlisted)", m.PrivacyStatus)
	}

	if m.License != "" && !validLicenses[m.License] {
		return fmt.Errorf("youtube: metadata: invalid license %q (youtube, creativeCommon)", m.License)
	}

	for _, tag := range []string{m.DefaultLanguage, m.DefaultAudioLanguage} {
		if tag == "" {
			continue
		}

		if _, err := language.Parse(tag); err != nil {
			return fmt.Errorf("youtube: metadata: invalid language tag %q: %w", tag, err)
		}
	}

	if m.PublishAt != "" {
		if _, err := time.Parse(time.RFC3339, m.PublishAt); err != nil {
			return fmt.Errorf("youtube: metadata: invalid publish_at %q (RFC 3339 expected): %w", m.PublishAt, err)
		}
	}

	if (m.Latitude == nil) != (m.Longitude == nil) {
		return fmt.Errorf("youtube: metadata: latitude and longitude must be set together")
	}

	if m.Latitude != nil {
		if *m.Latitude < -90 || *m.Latitude > 90 {
			return fmt.Errorf("youtube: metadata: latitude %v out of range", *m.Latitude)
		}

		if *m.Longitude < -180 || *m.Longitude > 180 {
			return fmt.Errorf("youtube: metadata: longitude %v out of range", *m.Longitude)
		}
	}

	if m.Gender != "" && m.Gender != "male" && m.Gender != "female" {
		return fmt.Errorf("youtube: metadata: invalid gender %q (male, female)", m.Gender)
	}

	return nil
}

// JSON request/response types for the videos.insert endpoint.

type videoInsertRequest struct {
	Snippet          videoSnippet           `json:"snippet"`
	Status           videoStatus            `json:"status"`
	RecordingDetails *videoRecordingDetails `json:"recordingDetails,omitempty"`
}

type videoSnippet struct {
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	CategoryID           string   `json:"categoryId,omitempty"`
	DefaultLanguage      string   `json:"defaultLanguage,omitempty"`
	DefaultAudioLanguage string   `json:"defaultAudioLanguage,omitempty"`
}

type videoStatus struct {
	PrivacyStatus       string          `json:"privacyStatus"`
	License             string          `json:"license,omitempty"`
	PublishAt           string          `json:"publishAt,omitempty"`
	PublicStatsViewable bool            `json:"publicStatsViewable,omitempty"`
	MadeForKids         bool            `json:"selfDeclaredMadeForKids,omitempty"`
	Targeting           *videoTargeting `json:"targeting,omitempty"`
}

type videoTargeting struct {
	AgeGroup  string   `json:"ageGroup,omitempty"`
	Genders   []string `json:"genders,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

type videoRecordingDetails struct {
	Location geoPoint `json:"location"`
}

type geoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Video is the service's video resource, decoded from the final upload
// response. Only the fields the CLI reports are kept.
type Video struct {
	ID string `json:"id"`
}

// insertBody builds the request body for videos.insert from metadata.
func insertBody(m *Metadata) videoInsertRequest {
	body := videoInsertRequest{
		Snippet: videoSnippet{
			Title:                m.Title,
			Description:          m.Description,
			Tags:                 m.Tags,
			CategoryID:           m.CategoryID,
			DefaultLanguage:      m.DefaultLanguage,
			DefaultAudioLanguage: m.DefaultAudioLanguage,
		},
		Status: videoStatus{
			PrivacyStatus:       m.PrivacyStatus,
			License:             m.License,
			PublishAt:           m.PublishAt,
			PublicStatsViewable: m.PublicStatsViewable,
			MadeForKids:         m.MadeForKids,
		},
	}

	if m.AgeGroup != "" || m.Gender != "" || len(m.Countries) > 0 {
		t := &videoTargeting{AgeGroup: m.AgeGroup, Countries: m.Countries}
		if m.Gender != "" {
			t.Genders = []string{m.Gender}
		}

		body.Status.Targeting = t
	}

	if m.Latitude != nil && m.Longitude != nil {
		body.RecordingDetails = &videoRecordingDetails{
			Location: geoPoint{Latitude: *m.Latitude, Longitude: *m.Longitude},
		}
	}

	return body
}

// insertParts returns the part parameter for videos.insert, naming only the
// resource parts actually populated in the body.
func insertParts(m *Metadata) string {
	parts := []string{"snippet", "status"}
	if m.Latitude != nil && m.Longitude != nil {
		parts = append(parts, "recordingDetails")
	}

	return strings.Join(parts, ",")
}
