package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, "waveform-dispatch-service", cfg.App.Name)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, DriverPostgres, cfg.Database.Driver)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "waveform_db", cfg.Database.Database)
				assert.Equal(t, "/var/lib/waveform/blobs", cfg.BlobStore.Root)
				assert.Equal(t, "waveform-dispatcher", cfg.Auth.DispatcherSignature)
				assert.Equal(t, []string{"waveform-jobs"}, cfg.Auth.AllowedQueues)
				assert.Equal(t, "waveform_exchange", cfg.RabbitMQ.Exchange)
				assert.Equal(t, "waveform_jobs", cfg.RabbitMQ.Queue)
				assert.True(t, cfg.Scheduler.Enabled)
				assert.Equal(t, 2, cfg.Scheduler.Workers)
				assert.Equal(t, 1000, cfg.Processor.SampleCount)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Database: "waveform_db",
		},
		BlobStore: BlobStoreConfig{Root: "/var/lib/waveform/blobs"},
		Auth: AuthConfig{
			DispatcherSignature: "waveform-dispatcher",
			AllowedQueues:       []string{"waveform-jobs"},
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: "waveform_exchange",
			Queue:    "waveform_jobs",
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Workers:     2,
			MaxAttempts: 3,
		},
		Consumer: ConsumerConfig{Concurrency: 2},
	}
}

func TestConfig_ValidateDispatchConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "sqlite driver with path",
			mutate:  func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite, SQLitePath: "data/artifacts.db"} },
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "unsupported database driver",
			mutate:    func(c *Config) { c.Database.Driver = "oracle" },
			wantErr:   true,
			errString: "unsupported database driver",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "sqlite driver without path",
			mutate:    func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite} },
			wantErr:   true,
			errString: "sqlite_path is required",
		},
		{
			name:      "empty blobstore root",
			mutate:    func(c *Config) { c.BlobStore.Root = "" },
			wantErr:   true,
			errString: "blobstore root is required",
		},
		{
			name:      "empty dispatcher signature",
			mutate:    func(c *Config) { c.Auth.DispatcherSignature = "" },
			wantErr:   true,
			errString: "dispatcher_signature is required",
		},
		{
			name:      "empty queue allow-list",
			mutate:    func(c *Config) { c.Auth.AllowedQueues = nil },
			wantErr:   true,
			errString: "allowed_queues must not be empty",
		},
		{
			name:      "scheduler enabled without workers",
			mutate:    func(c *Config) { c.Scheduler.Workers = 0 },
			wantErr:   true,
			errString: "scheduler workers must be greater than 0",
		},
		{
			name:      "scheduler enabled without attempt budget",
			mutate:    func(c *Config) { c.Scheduler.MaxAttempts = 0 },
			wantErr:   true,
			errString: "scheduler max_attempts must be greater than 0",
		},
		{
			name:    "disabled scheduler skips scheduler checks",
			mutate:  func(c *Config) { c.Scheduler = SchedulerConfig{Enabled: false} },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateDispatchConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "invalid rabbitmq port",
			mutate:    func(c *Config) { c.RabbitMQ.Port = 0 },
			wantErr:   true,
			errString: "invalid rabbitmq port",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "zero consumer concurrency",
			mutate:    func(c *Config) { c.Consumer.Concurrency = 0 },
			wantErr:   true,
			errString: "consumer concurrency must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.NoError(t, cfg.ValidateDispatchConfig())
	require.NoError(t, cfg.ValidateWorkerConfig())
}
