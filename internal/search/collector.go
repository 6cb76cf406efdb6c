package search

import (
	"fmt"

	"github.com/airrygarments/stylematch/internal/models"
)

// Collect splits ranked matches into parallel style, image and description lists.
// Every match must carry string Image and Description metadata.
func Collect(matches []*models.Match) (*models.Collected, error) {
	out := &models.Collected{
		Styles:       make([]string, 0, len(matches)),
		Images:       make([]string, 0, len(matches)),
		Descriptions: make([]string, 0, len(matches)),
	}
	for _, m := range matches {
		image, err := metadataString(m, models.MetaImage)
		if err != nil {
			return nil, err
		}
		desc, err := metadataString(m, models.MetaDescription)
		if err != nil {
			return nil, err
		}
		out.Styles = append(out.Styles, m.ID)
		out.Images = append(out.Images, image)
		out.Descriptions = append(out.Descriptions, desc)
	}
	return out, nil
}

func metadataString(m *models.Match, key string) (string, error) {
	v, ok := m.Metadata[key]
	if !ok {
		return "", fmt.Errorf("%w: match %s has no %s", models.ErrIntegrity, m.ID, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: match %s has non-string %s (%T)", models.ErrIntegrity, m.ID, key, v)
	}
	return s, nil
}
