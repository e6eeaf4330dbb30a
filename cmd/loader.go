package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/misim/misim/sim"
	"github.com/misim/misim/sim/cluster"
	"github.com/misim/misim/sim/experiment"
	"github.com/misim/misim/sim/patterns"
	"github.com/misim/misim/sim/report"
)

// Everything in this file is out of core scope (§1: "JSON parsing of
// architecture/experiment files ... assumed to deliver or consume a
// well-defined in-memory model"). It is the thin YAML-to-in-memory-model
// loader the CLI needs to produce that model, grounded on the teacher's
// cmd/hfconfig.go / cmd/workload_config.go YAML-unmarshal style.

// ArchitectureFile is the YAML-unmarshaled shape of an
// ArchitectureDescription (§6).
type ArchitectureFile struct {
	Services []ServiceSpec `yaml:"services"`
	Links    []LinkSpec    `yaml:"links"`
}

// ServiceSpec is one microservice's YAML description.
type ServiceSpec struct {
	Name         string            `yaml:"name"`
	Capacity     float64           `yaml:"capacity"`
	Instances    int               `yaml:"instances"`
	LoadBalancer string            `yaml:"load_balancer"`
	Autoscaler   *AutoscalerSpec   `yaml:"autoscaler"`
	Operations   []OperationSpec   `yaml:"operations"`
}

// AutoscalerSpec configures a service-scoped AutoscalingStrategy (§4.6).
type AutoscalerSpec struct {
	Strategy string  `yaml:"strategy"`
	Min      int     `yaml:"min"`
	Max      int     `yaml:"max"`
	Low      float64 `yaml:"low"`
	High     float64 `yaml:"high"`
	Period   float64 `yaml:"period"`
	Cooldown float64 `yaml:"cooldown"`
}

// OperationSpec is one operation's YAML description.
type OperationSpec struct {
	Name         string             `yaml:"name"`
	Demand       float64            `yaml:"demand"`
	Dependencies []DependencySpec   `yaml:"dependencies"`
}

// DependencySpec is one declared dependency's YAML description.
type DependencySpec struct {
	Service                 string  `yaml:"service"`
	Operation               string  `yaml:"operation"`
	Probability             float64 `yaml:"probability"`
	RetryBase               int64   `yaml:"retry_base"`
	RetryMaxAttempts        int     `yaml:"retry_max_attempts"`
	RetryJitterMax          int64   `yaml:"retry_jitter_max"`
	CircuitBreakerWindow       int     `yaml:"circuit_breaker_window"`
	CircuitBreakerThreshold    float64 `yaml:"circuit_breaker_threshold"`
	CircuitBreakerResetTimeout float64 `yaml:"circuit_breaker_reset_timeout"`
	Timeout                    float64 `yaml:"timeout"`
}

// LinkSpec configures one-way network latency between two services.
type LinkSpec struct {
	From    string  `yaml:"from"`
	To      string  `yaml:"to"`
	Latency float64 `yaml:"latency"`
}

// ExperimentFile is the YAML-unmarshaled shape of an ExperimentDescription
// / ScenarioDescription (§6). Exactly one of LoadGenerators/Faults or
// Scenario should be populated.
type ExperimentFile struct {
	Seed                 int64                    `yaml:"seed"`
	Duration             float64                  `yaml:"duration"`
	ReportType           string                   `yaml:"report_type"`
	ReportBaseDirectory  string                   `yaml:"report_base_directory"`
	LoadGenerators       []LoadGeneratorSpec      `yaml:"load_generators"`
	Faults               []FaultSpec              `yaml:"faults"`
	Scenario             *ScenarioSpec            `yaml:"scenario"`
}

// LoadGeneratorSpec is one load generator's YAML description.
type LoadGeneratorSpec struct {
	Name         string               `yaml:"name"`
	Service      string               `yaml:"service"`
	Operation    string               `yaml:"operation"`
	StartOffset  float64              `yaml:"start_offset"`
	Repeating    bool                 `yaml:"repeating"`
	Distribution string               `yaml:"distribution"`
	Profile      []ProfilePointSpec   `yaml:"profile"`
}

// ProfilePointSpec is one (time, rate) sample.
type ProfilePointSpec struct {
	Time float64 `yaml:"time"`
	Rate float64 `yaml:"rate"`
}

// FaultSpec is one explicit fault event's YAML description (the
// "experiment" form of §6, as opposed to the ATAM "scenario" form).
type FaultSpec struct {
	Kind     string  `yaml:"kind"` // KILL | START | RESTART | DELAY
	Service  string  `yaml:"service"`
	N        int     `yaml:"n"`
	Baseline float64 `yaml:"baseline"`
	StdDev   float64 `yaml:"stddev"`
	Duration float64 `yaml:"duration"`
	At       float64 `yaml:"at"`
}

// ScenarioSpec is the ATAM-style scenario form of §6, carrying the
// profile each named stimulus refers to so the loader can resolve
// ParsedStimulus.ProfileKey into a concrete LoadProfile.
type ScenarioSpec struct {
	Artifact   string                        `yaml:"artifact"`
	Component  string                        `yaml:"component"`
	Stimulus   string                        `yaml:"stimulus"`
	Faultloads []string                      `yaml:"faultloads"`
	Profiles   map[string][]ProfilePointSpec `yaml:"profiles"`
}

// LoadArchitecture reads and unmarshals an ArchitectureFile from path.
func LoadArchitecture(path string) (*ArchitectureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading architecture file: %w", err)
	}
	var af ArchitectureFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("parsing architecture file: %w", err)
	}
	return &af, nil
}

// LoadExperiment reads and unmarshals an ExperimentFile from path.
func LoadExperiment(path string) (*ExperimentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment file: %w", err)
	}
	var ef ExperimentFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("parsing experiment file: %w", err)
	}
	return &ef, nil
}

// BuildCluster constructs a sim/cluster.Cluster and its Network from an
// ArchitectureFile, starting every declared instance.
func BuildCluster(ctx *sim.Context, af *ArchitectureFile) (*cluster.Cluster, *sim.Network, error) {
	net := sim.NewNetwork()
	cl := cluster.NewCluster()

	for _, link := range af.Links {
		net.SetLatency(link.From, link.To, link.Latency)
	}

	for _, svcSpec := range af.Services {
		var as patterns.AutoscalingStrategy
		if svcSpec.Autoscaler != nil {
			a := svcSpec.Autoscaler
			as = patterns.NewAutoscalingStrategy(a.Strategy, a.Min, a.Max, a.Low, a.High, a.Period, a.Cooldown)
		}
		lb := patterns.NewLoadBalancer(svcSpec.LoadBalancer)
		svc := cluster.NewMicroservice(svcSpec.Name, svcSpec.Capacity, lb, as, net)
		for _, opSpec := range svcSpec.Operations {
			op := &cluster.Operation{Name: opSpec.Name, Demand: opSpec.Demand}
			for _, depSpec := range opSpec.Dependencies {
				op.Dependencies = append(op.Dependencies, cluster.Dependency{
					Target:                     sim.OperationRef{Service: depSpec.Service, Operation: depSpec.Operation},
					Probability:                depSpec.Probability,
					RetryBase:                  depSpec.RetryBase,
					RetryMaxAttempts:           depSpec.RetryMaxAttempts,
					RetryJitterMax:             depSpec.RetryJitterMax,
					CircuitBreakerWindow:       depSpec.CircuitBreakerWindow,
					CircuitBreakerThreshold:    depSpec.CircuitBreakerThreshold,
					CircuitBreakerResetTimeout: depSpec.CircuitBreakerResetTimeout,
					Timeout:                    depSpec.Timeout,
				})
			}
			svc.AddOperation(op)
		}
		cl.Register(svc)
		svc.ScaleToInstancesCount(ctx, svcSpec.Instances)
		svc.StartAutoscaler(ctx)
	}
	return cl, net, nil
}

// BuildExperiment schedules every load generator and fault event an
// ExperimentFile (or its ScenarioSpec) describes, against the already
// built cluster and network.
func BuildExperiment(ctx *sim.Context, ef *ExperimentFile, cl *cluster.Cluster, net *sim.Network) ([]*experiment.Generator, error) {
	var gens []*experiment.Generator

	for _, gspec := range ef.LoadGenerators {
		svc := cl.Microservice(gspec.Service)
		if svc == nil {
			return nil, fmt.Errorf("load generator %q targets unknown service %q", gspec.Name, gspec.Service)
		}
		profile := toProfile(gspec.Profile, gspec.Repeating)
		gen := experiment.NewGenerator(gspec.Name, experiment.LimboLoadGeneratorDescription{
			Profile:      profile,
			Operation:    sim.OperationRef{Service: gspec.Service, Operation: gspec.Operation},
			StartOffset:  gspec.StartOffset,
			Distribution: gspec.Distribution,
		}, net, svc)
		gen.Start(ctx)
		gens = append(gens, gen)
	}

	for _, fspec := range ef.Faults {
		svc := cl.Microservice(fspec.Service)
		if svc == nil {
			return nil, fmt.Errorf("fault targets unknown service %q", fspec.Service)
		}
		switch fspec.Kind {
		case "KILL":
			experiment.NewKillEvent(ctx, fspec.At, svc, fspec.N)
		case "START":
			experiment.NewStartEvent(ctx, fspec.At, svc, fspec.N)
		case "RESTART":
			experiment.NewRestartEvent(ctx, fspec.At, svc, fspec.N)
		case "DELAY":
			experiment.NewDelayInjection(ctx, fspec.At, net, fspec.Service, fspec.Baseline, fspec.StdDev, fspec.Duration)
		default:
			return nil, fmt.Errorf("unknown fault kind %q", fspec.Kind)
		}
	}

	if ef.Scenario != nil {
		sgens, err := buildScenario(ctx, ef.Scenario, cl, net)
		if err != nil {
			return nil, err
		}
		gens = append(gens, sgens...)
	}

	return gens, nil
}

func buildScenario(ctx *sim.Context, sc *ScenarioSpec, cl *cluster.Cluster, net *sim.Network) ([]*experiment.Generator, error) {
	var gens []*experiment.Generator

	svc := cl.Microservice(sc.Artifact)
	if svc == nil {
		return nil, fmt.Errorf("scenario artifact %q is not a known service", sc.Artifact)
	}

	if sc.Stimulus != "" {
		stim, err := experiment.ParseStimulus(sc.Stimulus)
		if err != nil {
			return nil, err
		}
		profileSpec, ok := sc.Profiles[stim.ProfileKey]
		if !ok {
			return nil, fmt.Errorf("scenario stimulus references unknown profile %q", stim.ProfileKey)
		}
		profile := toProfile(profileSpec, stim.Repeating)

		opNames := make([]string, 0, len(svc.Operations))
		for name := range svc.Operations {
			opNames = append(opNames, name)
		}
		for _, opName := range experiment.ExpandComponent(sc.Component, opNames) {
			gen := experiment.NewGenerator(sc.Artifact+"/"+opName, experiment.LimboLoadGeneratorDescription{
				Profile:   profile,
				Operation: sim.OperationRef{Service: sc.Artifact, Operation: opName},
			}, net, svc)
			gen.Start(ctx)
			gens = append(gens, gen)
		}
	}

	for _, raw := range sc.Faultloads {
		fl, err := experiment.ParseFaultload(raw)
		if err != nil {
			return nil, err
		}
		target := fl.Service
		if target == "" {
			target = sc.Artifact
		}
		switch fl.Kind {
		case experiment.FaultKill:
			targetSvc := cl.Microservice(target)
			if targetSvc == nil {
				return nil, fmt.Errorf("faultload targets unknown service %q", target)
			}
			experiment.NewKillEvent(ctx, fl.At, targetSvc, fl.N)
		case experiment.FaultStart:
			targetSvc := cl.Microservice(target)
			if targetSvc == nil {
				return nil, fmt.Errorf("faultload targets unknown service %q", target)
			}
			experiment.NewStartEvent(ctx, fl.At, targetSvc, fl.N)
		case experiment.FaultRestart:
			targetSvc := cl.Microservice(target)
			if targetSvc == nil {
				return nil, fmt.Errorf("faultload targets unknown service %q", target)
			}
			experiment.NewRestartEvent(ctx, fl.At, targetSvc, fl.N)
		case experiment.FaultDelay:
			experiment.NewDelayInjection(ctx, fl.At, net, sc.Artifact, fl.Baseline, fl.StdDev, fl.Duration)
		}
	}

	return gens, nil
}

func toProfile(points []ProfilePointSpec, repeating bool) experiment.LoadProfile {
	p := experiment.LoadProfile{Repeating: repeating, Points: make([]experiment.ProfilePoint, len(points))}
	for i, pt := range points {
		p.Points[i] = experiment.ProfilePoint{Time: pt.Time, Rate: pt.Rate}
	}
	return p
}

// NewReportSink creates the datapoint sink the run records into.
func NewReportSink() *report.Sink {
	return report.NewSink()
}
