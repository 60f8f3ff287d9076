package prom

import (
	"gfx.cafe/open/gotoprom"
	"github.com/prometheus/client_golang/prometheus"
)

type ListenerLabels struct {
	ListenAddr string `label:"listen_addr"`
}

var Listener struct {
	Incoming func(ListenerLabels) prometheus.Counter `name:"incoming" help:"incoming connections"`
	Accepted func(ListenerLabels) prometheus.Counter `name:"accepted" help:"accepted connections"`
	Client   func(ListenerLabels) prometheus.Gauge   `name:"client" help:"current clients"`
}

type PoolLabels struct {
	Address string `label:"address"`
}

var Pool struct {
	Acquired  func(PoolLabels) prometheus.Counter   `name:"acquired" help:"server connections handed out"`
	Exhausted func(PoolLabels) prometheus.Counter   `name:"exhausted" help:"acquires that timed out waiting"`
	Acquire   func(PoolLabels) prometheus.Histogram `name:"acquire_ms" buckets:"0.005,0.01,0.1,0.25,0.5,0.75,1,5,10,100,500,1000" help:"ms to acquire from pool"`
}

type RouteLabels struct {
	Class   string `label:"class"`
	Address string `label:"address"`
}

var Router struct {
	Decisions func(RouteLabels) prometheus.Counter `name:"decisions" help:"routing decisions"`
}

type NodeLabels struct {
	Address string `label:"address"`
	Health  string `label:"health"`
}

type ClusterLabels struct{}

var Topology struct {
	Transitions func(NodeLabels) prometheus.Counter    `name:"transitions" help:"node health transitions"`
	Epoch       func(ClusterLabels) prometheus.Gauge   `name:"epoch" help:"current topology epoch"`
	Failovers   func(ClusterLabels) prometheus.Counter `name:"failovers" help:"primary changes observed"`
}

func init() {
	gotoprom.MustInit(&Listener, "pglane_listener", prometheus.Labels{})
	gotoprom.MustInit(&Pool, "pglane_pool", prometheus.Labels{})
	gotoprom.MustInit(&Router, "pglane_router", prometheus.Labels{})
	gotoprom.MustInit(&Topology, "pglane_topology", prometheus.Labels{})
}
