package cloudinary

import (
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service resolves stored document keys into Cloudinary delivery URLs.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// PublicID returns the Cloudinary public id a storage key is uploaded under.
func (s *Service) PublicID(key string) string {
	key = strings.Trim(key, "/")
	if s.folder == "" {
		return key
	}
	return path.Join(s.folder, key)
}

// DeliveryURL returns the secure delivery URL for a storage key such as "rubrics/week1.pdf".
func (s *Service) DeliveryURL(key string) (string, error) {
	publicID := s.PublicID(key)

	asset, err := s.client.Image(publicID)
	if err != nil {
		return "", fmt.Errorf("failed to build asset for %s: %w", publicID, err)
	}

	deliveryURL, err := asset.String()
	if err != nil {
		return "", fmt.Errorf("failed to build delivery url for %s: %w", publicID, err)
	}

	s.logger.Debug().Str("public_id", publicID).Msg("resolved cloudinary delivery url")
	return deliveryURL, nil
}
