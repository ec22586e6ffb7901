package jobs

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/ternarybob/colligo/internal/models"
)

// NewLabel generates a fresh job label for the given stage.
// Format: <stage>_<yyyymmddhhmmss>_<8-char uuid fragment>
func NewLabel(stage models.Stage, now time.Time) string {
	fragment := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", stage, now.Format("20060102150405"), fragment)
}

// ValidateLabel rejects labels that cannot serve as file names or log
// correlation ids. Labels appear in paths (download dirs, zip files, log
// files), so whitespace and path separators are forbidden.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("label is empty")
	}
	for _, r := range label {
		if unicode.IsSpace(r) {
			return fmt.Errorf("label %q contains whitespace", label)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("label %q contains a path separator", label)
		}
	}
	return nil
}
