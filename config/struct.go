package config

import (
	"time"

	"github.com/beanbocchi/stowage/pkg/signer"
)

type Config struct {
	Env string `yaml:"env" mapstructure:"env" validate:"required,oneof=development production test"`
	Log Log    `yaml:"log" mapstructure:"log" validate:"required"`

	Server      Server      `yaml:"server" mapstructure:"server" validate:"required"`
	Credential  Credential  `yaml:"credential" mapstructure:"credential" validate:"required"`
	Objectstore Objectstore `yaml:"objectstore" mapstructure:"objectstore" validate:"required"`
	Journal     Journal     `yaml:"journal" mapstructure:"journal" validate:"required"`
}

type Log struct {
	Level     string `yaml:"level" mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format    string `yaml:"format" mapstructure:"format" validate:"oneof=json text"`
	AddSource bool   `yaml:"addSource" mapstructure:"addSource"`
}

type Server struct {
	Addr            string        `yaml:"addr" mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdownTimeout" validate:"gte=0"`
}

// Credential is the API signing key of the service user. The key is given
// inline or as a path to a PEM file.
type Credential struct {
	TenancyID      string `yaml:"tenancyId" mapstructure:"tenancyId" validate:"required"`
	UserID         string `yaml:"userId" mapstructure:"userId" validate:"required"`
	KeyFingerprint string `yaml:"keyFingerprint" mapstructure:"keyFingerprint" validate:"required"`
	PrivateKey     string `yaml:"privateKey" mapstructure:"privateKey" validate:"required_without=PrivateKeyPath"`
	PrivateKeyPath string `yaml:"privateKeyPath" mapstructure:"privateKeyPath" validate:"required_without=PrivateKey"`
	Region         string `yaml:"region" mapstructure:"region" validate:"required"`
}

// SDK returns the signing credential. PrivateKey must already be resolved.
func (c Credential) SDK() signer.Credential {
	return signer.Credential{
		TenancyID:      c.TenancyID,
		UserID:         c.UserID,
		KeyFingerprint: c.KeyFingerprint,
		PrivateKey:     c.PrivateKey,
		Region:         c.Region,
	}
}

type Objectstore struct {
	Namespace string `yaml:"namespace" mapstructure:"namespace" validate:"required"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket" validate:"required"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	// Endpoint overrides the host resolved from the region, e.g. for a proxy.
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port|hostname"`
	PartSize       int    `yaml:"partSize" mapstructure:"partSize" validate:"gte=0"`
	AbortOnFailure bool   `yaml:"abortOnFailure" mapstructure:"abortOnFailure"`
	// Timeout bounds a whole request including the body. Zero leaves requests
	// unbounded.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	Cache   Cache         `yaml:"cache" mapstructure:"cache"`
}

type Cache struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Root    string `yaml:"root" mapstructure:"root" validate:"required_if=Enabled true"`
	// MaxSize is in MB. Zero disables eviction.
	MaxSize int64 `yaml:"maxSize" mapstructure:"maxSize" validate:"gte=0"`
}

type Journal struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}
