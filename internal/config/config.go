package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"doctrans"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address          string        `envconfig:"DOCTRANS_ADDRESS" default:":3443"`
	MetricsAddress   string        `envconfig:"DOCTRANS_METRICS_ADDRESS" default:":8080"`
	BaseUrl          string        `envconfig:"DOCTRANS_BASE_URL" default:"http://localhost:3443"`
	LogLevel         string        `envconfig:"DOCTRANS_LOG_LEVEL" default:"info"`
	MaxUploadBytes   int64         `envconfig:"DOCTRANS_MAX_UPLOAD_BYTES" default:"52428800"`
	ExecutionTimeout time.Duration `envconfig:"DOCTRANS_EXECUTION_TIMEOUT" default:"10m"`
	Auth             Auth
	Storage          Storage
	Executor         Executor
}

type Auth struct {
	AuthenticationType string `envconfig:"DOCTRANS_AUTH" default:""`
	JwkCertURL         string `envconfig:"DOCTRANS_JWK_URL" default:""`
	APIKey             string `envconfig:"DOCTRANS_API_KEY" default:""`

	// RelaxedOwnership disables the per-owner check on job reads. It is the
	// documented mode for static API-key deployments where every caller is
	// the shared system principal. Never enable it together with jwt auth.
	RelaxedOwnership bool `envconfig:"DOCTRANS_AUTH_RELAXED_OWNERSHIP" default:"false"`
}

type Storage struct {
	Type     string `envconfig:"DOCTRANS_STORAGE" default:"local"`
	LocalDir string `envconfig:"DOCTRANS_STORAGE_DIR" default:"/var/lib/doctrans"`

	MinioEndpoint  string `envconfig:"DOCTRANS_MINIO_ENDPOINT" default:""`
	MinioAccessKey string `envconfig:"DOCTRANS_MINIO_ACCESS_KEY" default:""`
	MinioSecretKey string `envconfig:"DOCTRANS_MINIO_SECRET_KEY" default:""`
	MinioBucket    string `envconfig:"DOCTRANS_MINIO_BUCKET" default:"doctrans"`
	MinioUseSSL    bool   `envconfig:"DOCTRANS_MINIO_USE_SSL" default:"false"`
}

type Executor struct {
	Type string `envconfig:"DOCTRANS_EXECUTOR" default:""`

	// command executor
	TranslatorBinary string `envconfig:"DOCTRANS_TRANSLATOR_BINARY" default:""`

	// remote executor
	RemoteURL    string `envconfig:"DOCTRANS_REMOTE_URL" default:""`
	RemoteAPIKey string `envconfig:"DOCTRANS_REMOTE_API_KEY" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
