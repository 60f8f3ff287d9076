package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pglane/pglane/lib/auth"
	"github.com/pglane/pglane/lib/auth/credentials"
	"github.com/pglane/pglane/lib/lane"
	"github.com/pglane/pglane/lib/util/dur"
	"github.com/pglane/pglane/lib/util/ini"
)

// Lane configures one (user, database) lane.
type Lane struct {
	// User is the frontend user this lane serves.
	User string `ini:"user"`
	// Database is the backend database to connect to. Defaults to the lane
	// name.
	Database string `ini:"database"`

	PoolMode lane.PoolMode `ini:"pool_mode"`

	MaxPoolSize    int          `ini:"max_pool_size"`
	MinPoolSize    int          `ini:"min_pool_size"`
	AcquireTimeout dur.Duration `ini:"acquire_timeout"`
}

// Settings is the [pglane] section.
type Settings struct {
	Listen        string `ini:"listen"`
	AdminDatabase string `ini:"admin_database"`

	SSLCert string `ini:"ssl_cert"`
	SSLKey  string `ini:"ssl_key"`

	// Nodes lists the backend postgres servers. Roles are discovered by
	// probing, not configured.
	Nodes []string `ini:"nodes"`

	// ReplicaWeight skews read routing, e.g. "replica1:5432=3".
	ReplicaWeight map[string]int `ini:"replica_weight"`

	ProbeUser     string `ini:"probe_user"`
	ProbePassword string `ini:"probe_password"`
	ProbeDatabase string `ini:"probe_database"`

	HealthCheckInterval dur.Duration `ini:"health_check_interval"`
	ProbeTimeout        dur.Duration `ini:"probe_timeout"`
	SuspectAfter        int          `ini:"suspect_after"`
	UnhealthyAfter      int          `ini:"unhealthy_after"`
	RecoverAfter        int          `ini:"recover_after"`

	FailoverGracePeriod dur.Duration `ini:"failover_grace_period"`
	TopologyMaxAge      dur.Duration `ini:"topology_max_age"`

	ServerUser     string `ini:"server_user"`
	ServerPassword string `ini:"server_password"`

	ServerResetQuery  string       `ini:"server_reset_query"`
	ServerCheckQuery  string       `ini:"server_check_query"`
	ServerCheckDelay  dur.Duration `ini:"server_check_delay"`
	ServerIdleTimeout dur.Duration `ini:"server_idle_timeout"`

	TrackParameters []string `ini:"track_parameters"`

	// Metrics is the address the prometheus endpoint listens on, empty to
	// disable.
	Metrics string `ini:"metrics"`
}

type Config struct {
	PgLane Settings `ini:"pglane"`

	// Users maps frontend user names to passwords, either plain or
	// md5-prefixed hashes.
	Users map[string]string `ini:"users"`

	Lanes map[string]Lane `ini:"lanes"`
}

func Default() Config {
	return Config{
		PgLane: Settings{
			Listen:              ":6432",
			AdminDatabase:       "pglane",
			ProbeDatabase:       "postgres",
			HealthCheckInterval: dur.Duration(10 * time.Second),
			ProbeTimeout:        dur.Duration(5 * time.Second),
			SuspectAfter:        1,
			UnhealthyAfter:      3,
			RecoverAfter:        2,
			FailoverGracePeriod: dur.Duration(30 * time.Second),
			TopologyMaxAge:      dur.Duration(60 * time.Second),
			ServerResetQuery:    "DISCARD ALL",
			TrackParameters: []string{
				"client_encoding",
				"datestyle",
				"timezone",
				"standard_conforming_strings",
				"application_name",
			},
		},
	}
}

// Load reads and validates an INI config file.
func Load(path string) (Config, error) {
	conf := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err = ini.Unmarshal(data, &conf); err != nil {
		return conf, err
	}

	return conf, conf.Validate()
}

func (T *Config) Validate() error {
	if len(T.PgLane.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	if T.PgLane.ProbeUser == "" {
		return errors.New("probe_user must be set")
	}
	for name, l := range T.Lanes {
		user := l.User
		if user == "" {
			return fmt.Errorf("lane %q: user must be set", name)
		}
		if _, ok := T.Users[user]; !ok {
			return fmt.Errorf("lane %q: unknown user %q", name, user)
		}
		if l.MinPoolSize > l.MaxPoolSize && l.MaxPoolSize != 0 {
			return fmt.Errorf("lane %q: min_pool_size exceeds max_pool_size", name)
		}
	}
	return nil
}

// Credentials looks up the password material for a frontend user.
func (T *Config) Credentials(user string) auth.Credentials {
	password, ok := T.Users[user]
	if !ok {
		return nil
	}
	return credentials.FromString(user, password)
}
