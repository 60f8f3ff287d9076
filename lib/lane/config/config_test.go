package config

import (
	"testing"
	"time"

	"github.com/pglane/pglane/lib/lane"
	"github.com/pglane/pglane/lib/util/ini"
)

const sample = `
[pglane]
listen = 0.0.0.0:6432
nodes = pg1:5432,pg2:5432,pg3:5432
replica_weight = pg2:5432=3 pg3:5432=1
probe_user = monitor
probe_password = hunter2
health_check_interval = 2
failover_grace_period = 30s
topology_max_age = 1m

[users]
app = md5a3556571e93b0d20722ba62be61e8c2d
reporting = secret

[lanes]
appdb = user=app pool_mode=transaction max_pool_size=20 min_pool_size=2 acquire_timeout=50ms
reports = user=reporting database=appdb pool_mode=statement max_pool_size=5
`

func TestConfig_Sample(t *testing.T) {
	conf := Default()
	if err := ini.Unmarshal([]byte(sample), &conf); err != nil {
		t.Fatal(err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}

	if conf.PgLane.Listen != "0.0.0.0:6432" {
		t.Errorf("unexpected listen %q", conf.PgLane.Listen)
	}
	if len(conf.PgLane.Nodes) != 3 {
		t.Errorf("expected 3 nodes but got %v", conf.PgLane.Nodes)
	}
	if conf.PgLane.ReplicaWeight["pg2:5432"] != 3 || conf.PgLane.ReplicaWeight["pg3:5432"] != 1 {
		t.Errorf("unexpected weights %v", conf.PgLane.ReplicaWeight)
	}
	if conf.PgLane.HealthCheckInterval.Duration() != 2*time.Second {
		t.Errorf("unexpected health_check_interval %v", conf.PgLane.HealthCheckInterval)
	}
	if conf.PgLane.FailoverGracePeriod.Duration() != 30*time.Second {
		t.Errorf("unexpected failover_grace_period %v", conf.PgLane.FailoverGracePeriod)
	}
	if conf.PgLane.TopologyMaxAge.Duration() != time.Minute {
		t.Errorf("unexpected topology_max_age %v", conf.PgLane.TopologyMaxAge)
	}

	app := conf.Lanes["appdb"]
	if app.PoolMode != lane.ModeTransaction {
		t.Errorf("unexpected pool mode %v", app.PoolMode)
	}
	if app.MaxPoolSize != 20 || app.MinPoolSize != 2 {
		t.Errorf("unexpected pool sizes %d/%d", app.MinPoolSize, app.MaxPoolSize)
	}
	if app.AcquireTimeout.Duration() != 50*time.Millisecond {
		t.Errorf("unexpected acquire_timeout %v", app.AcquireTimeout)
	}

	reports := conf.Lanes["reports"]
	if reports.Database != "appdb" {
		t.Errorf("unexpected database %q", reports.Database)
	}
	if reports.PoolMode != lane.ModeStatement {
		t.Errorf("unexpected pool mode %v", reports.PoolMode)
	}

	// defaults survive partial configs
	if conf.PgLane.AdminDatabase != "pglane" {
		t.Errorf("unexpected admin database %q", conf.PgLane.AdminDatabase)
	}
	if conf.PgLane.ServerResetQuery != "DISCARD ALL" {
		t.Errorf("unexpected reset query %q", conf.PgLane.ServerResetQuery)
	}
}

func TestConfig_Credentials(t *testing.T) {
	conf := Default()
	if err := ini.Unmarshal([]byte(sample), &conf); err != nil {
		t.Fatal(err)
	}

	if conf.Credentials("app") == nil {
		t.Error("expected credentials for app")
	}
	if conf.Credentials("nobody") != nil {
		t.Error("expected no credentials for unknown user")
	}
}

func TestConfig_Validate(t *testing.T) {
	conf := Default()
	if err := conf.Validate(); err == nil {
		t.Error("expected empty config to fail validation")
	}

	conf = Default()
	if err := ini.Unmarshal([]byte(sample), &conf); err != nil {
		t.Fatal(err)
	}
	conf.Lanes["bad"] = Lane{User: "ghost"}
	if err := conf.Validate(); err == nil {
		t.Error("expected unknown lane user to fail validation")
	}
}
