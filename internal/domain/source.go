package domain

import "fmt"

// SourceTag identifies one class of external identity source. The set is
// closed: adapters are swappable behind each tag, but core logic never
// hard-codes vendor names.
type SourceTag string

const (
	SourceProfessionalNetwork SourceTag = "professional_network"
	SourceDeveloperPlatform   SourceTag = "developer_platform"
	SourceImageSocial         SourceTag = "image_social"
	SourceShortVideoSocial    SourceTag = "short_video_social"
	SourceMicroblog           SourceTag = "microblog"
	SourceWebSearch           SourceTag = "web_search"
	SourceVideoPlatform       SourceTag = "video_platform"
	SourceEmergingSocial      SourceTag = "emerging_social"
)

// AllSourceTags lists every known source tag in stable order.
func AllSourceTags() []SourceTag {
	return []SourceTag{
		SourceProfessionalNetwork,
		SourceDeveloperPlatform,
		SourceImageSocial,
		SourceShortVideoSocial,
		SourceMicroblog,
		SourceWebSearch,
		SourceVideoPlatform,
		SourceEmergingSocial,
	}
}

// ParseSourceTag validates a source tag string.
func ParseSourceTag(s string) (SourceTag, error) {
	tag := SourceTag(s)
	for _, known := range AllSourceTags() {
		if tag == known {
			return tag, nil
		}
	}
	return "", fmt.Errorf("unknown source tag: %q", s)
}
