package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"
)

type Config struct {
	Server       Server       `yaml:"server"`
	Admin        Admin        `yaml:"admin"`
	Certificate  Certificate  `yaml:"certificate"`
	Verification Verification `yaml:"verification"`
}

type Server struct {
	ListenAddr     string   `yaml:"listenAddr"`
	Origin         string   `yaml:"origin"`
	Database       Database `yaml:"database"`
	RedisAddr      string   `yaml:"redisAddr"`
	RedisDB        int      `yaml:"redisDB"`
	RedisPassword  string   `yaml:"redisPassword"`
	MemcachedAddr  string   `yaml:"memcachedAddr"`
	EnableTrace    bool     `yaml:"enableTrace"`
	TraceEndpoint  string   `yaml:"traceEndpoint"`
	LogDevelopment bool     `yaml:"logDevelopment"`
}

type Database struct {
	Driver string `yaml:"driver"` // postgres, sqlite
	DSN    string `yaml:"dsn"`
}

type Admin struct {
	Email      string        `yaml:"email"`
	Name       string        `yaml:"name"`
	Password   string        `yaml:"password"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

type Certificate struct {
	MintAttempts int    `yaml:"mintAttempts"`
	Organization string `yaml:"organization"`
	// TrueType fonts for the PDF. The built-in Go fonts cover Latin, Greek
	// and Cyrillic; set these for other scripts.
	FontPath     string `yaml:"fontPath"`
	BoldFontPath string `yaml:"boldFontPath"`
}

type Verification struct {
	// DiscloseStatus makes the public lookup tell "not approved yet" apart
	// from "not found".
	DiscloseStatus bool          `yaml:"discloseStatus"`
	CacheTTL       time.Duration `yaml:"cacheTTL"`
}

func Default() Config {
	return Config{
		Server: Server{
			ListenAddr: ":8000",
			Origin:     "http://localhost:8000",
			Database: Database{
				Driver: "postgres",
			},
		},
		Admin: Admin{
			Email:      "admin@tadcs.in",
			Name:       "System Administrator",
			SessionTTL: 24 * time.Hour,
		},
		Certificate: Certificate{
			MintAttempts: 3,
			Organization: "TADCS Institute",
		},
		Verification: Verification{
			CacheTTL: 5 * time.Minute,
		},
	}
}

// Load reads the yaml file at path over the defaults and then applies
// CERTPORTAL_* environment overrides.
func Load(path string) (Config, error) {

	config := Default()

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode %s", path)
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("CERTPORTAL_LISTEN_ADDR", &c.Server.ListenAddr)
	str("CERTPORTAL_ORIGIN", &c.Server.Origin)
	str("CERTPORTAL_DB_DRIVER", &c.Server.Database.Driver)
	str("CERTPORTAL_DB_DSN", &c.Server.Database.DSN)
	str("CERTPORTAL_REDIS_ADDR", &c.Server.RedisAddr)
	str("CERTPORTAL_REDIS_PASSWORD", &c.Server.RedisPassword)
	str("CERTPORTAL_MEMCACHED_ADDR", &c.Server.MemcachedAddr)
	str("CERTPORTAL_ADMIN_EMAIL", &c.Admin.Email)
	str("CERTPORTAL_ADMIN_PASSWORD", &c.Admin.Password)

	if v, ok := lookup("CERTPORTAL_DISCLOSE_STATUS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "CERTPORTAL_DISCLOSE_STATUS")
		}
		c.Verification.DiscloseStatus = b
	}
	return nil
}

func (c Config) Validate() error {
	var missing []string
	if c.Server.ListenAddr == "" {
		missing = append(missing, "server.listenAddr")
	}
	if c.Server.Origin == "" {
		missing = append(missing, "server.origin")
	}
	if c.Server.Database.DSN == "" {
		missing = append(missing, "server.database.dsn")
	}
	if c.Admin.Email == "" {
		missing = append(missing, "admin.email")
	}
	if c.Admin.Password == "" {
		missing = append(missing, "admin.password")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing config values: %s", strings.Join(missing, ", "))
	}

	switch c.Server.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("unsupported database driver %q", c.Server.Database.Driver)
	}
	if c.Server.EnableTrace && c.Server.TraceEndpoint == "" {
		return errors.New("server.traceEndpoint is required when tracing is enabled")
	}
	return nil
}
