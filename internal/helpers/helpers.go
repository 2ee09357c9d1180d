package helpers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	AvatarFolder = "tourbook/users"
	TourFolder   = "tourbook/tours"

	passwordCost = 12
)

var (
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasNumber  = regexp.MustCompile(`\d`)
	hasSpecial = regexp.MustCompile(`[@$!%*?&]`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9]+`)
)

func IsPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	return hasLower.MatchString(password) &&
		hasUpper.MatchString(password) &&
		hasNumber.MatchString(password) &&
		hasSpecial.MatchString(password)
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSlug folds accents ("Hạ Long" becomes "ha-long") before
// collapsing everything else to dashes.
func GenerateSlug(parts ...string) string {
	joined := strings.Join(parts, " ")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, joined); err == nil {
		joined = folded
	}
	joined = strings.NewReplacer("đ", "d", "Đ", "D").Replace(joined)
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(joined), "-"), "-")
}

// ParseDate accepts a plain calendar day or a full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

// UploadImages pushes each local path or remote URL to Cloudinary and
// returns the secure URLs in order.
func UploadImages(ctx context.Context, cld *cloudinary.Cloudinary, imageNames []string, folder string) ([]string, error) {
	if cld == nil {
		return nil, fmt.Errorf("cloudinary is not configured")
	}
	urls := make([]string, 0, len(imageNames))
	for _, filePath := range imageNames {
		if strings.TrimSpace(filePath) == "" {
			continue
		}
		uploadResult, err := cld.Upload.Upload(ctx, filePath, uploader.UploadParams{
			Folder: folder,
			Tags:   []string{"tourbook"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload image %s: %w", filePath, err)
		}
		urls = append(urls, uploadResult.SecureURL)
	}
	return urls, nil
}
