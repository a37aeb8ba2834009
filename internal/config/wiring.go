package config

import (
	"context"
	"fmt"

	"github.com/kdimtricp/poseannotator/internal/database"
	"github.com/kdimtricp/poseannotator/internal/storage"
)

func (c *Config) Database() database.Config {
	return database.Config{
		Type:       c.DBType,
		Host:       c.DBHost,
		Port:       c.DBPort,
		User:       c.DBUser,
		Password:   c.DBPassword,
		Name:       c.DBName,
		SQLitePath: c.DBPath,
		URL:        c.DatabaseURL,
	}
}

// ObjectStore opens the configured blob store, creating the bucket when
// STORAGE_TYPE=s3.
func (c *Config) ObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	if c.StorageType == "local" {
		s, err := storage.NewLocalStorage(c.StorageDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := storage.NewMinioStorage(storage.MinioConfig{
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		UseSSL:    c.S3UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", c.S3Bucket, err)
	}
	return s, nil
}
