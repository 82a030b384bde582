package s3backup

import (
	"errors"
	"strings"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
)

// Config locates the settings snapshot object.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // S3-compatible services only
	ObjectKey       string
	Enabled         bool
}

// LoadConfig reads the S3_* keys. A disabled archive needs no credentials.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		ObjectKey:       strings.TrimPrefix(env.GetEnv("S3_SETTINGS_KEY", "settings/snapshot.json"), "/"),
		Enabled:         env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Enabled {
		return nil
	}
	var missing []string
	if c.AccessKeyID == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	if c.BucketName == "" {
		missing = append(missing, "S3_BUCKET_NAME")
	}
	if c.ObjectKey == "" {
		missing = append(missing, "S3_SETTINGS_KEY")
	}
	if len(missing) > 0 {
		return errors.New("S3 archive enabled but missing " + strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsEnabled() bool {
	return c.Enabled
}
