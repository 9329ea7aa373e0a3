// Command simtrace is the §6 entrypoint: it loads a YAML config, wires one
// pipeline per configured parser/spanner pair, shares context queues by
// name across pairs, and runs every pipeline to completion, sinking
// completed traces as they close.
//
// Grounded on the teacher's cmd/authn/main.go (flag.StringVar'd -config
// registered in init, flag.Parse in main, resolve the config path, build,
// run) — generalized here from "start one long-running daemon" to "run N
// short-lived pipelines to completion and report".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/cmn/mono"
	"github.com/q713/simbricks-sub001/cmn/nlog"
	"github.com/q713/simbricks-sub001/ctxqueue"
	"github.com/q713/simbricks-sub001/events"
	"github.com/q713/simbricks-sub001/hk"
	"github.com/q713/simbricks-sub001/parse/hostsim"
	"github.com/q713/simbricks-sub001/parse/nicbm"
	"github.com/q713/simbricks-sub001/parse/ns3"
	"github.com/q713/simbricks-sub001/parse/replay"
	"github.com/q713/simbricks-sub001/pipeline"
	"github.com/q713/simbricks-sub001/reader"
	"github.com/q713/simbricks-sub001/spanner/host"
	"github.com/q713/simbricks-sub001/spanner/nic"
	"github.com/q713/simbricks-sub001/spanner/network"
	"github.com/q713/simbricks-sub001/tracer"
	"github.com/q713/simbricks-sub001/traceenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML pipeline config (required)")
	sinkKind := flag.String("sink", "text", "trace sink: text | json")
	outPath := flag.String("out", "", "sink output path; empty means stdout")
	quiet := flag.Bool("quiet", false, "suppress info/warning log lines")
	flag.Parse()

	nlog.SetQuiet(*quiet)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "simtrace: -config is required")
		return 2
	}

	cfg, err := traceenv.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simtrace:", err)
		return 1
	}

	var env traceenv.Env
	if err := env.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "simtrace: initializing trace environment:", err)
		return 1
	}
	nlog.SetPrefix(env.RunID())

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "simtrace: opening sink output:", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	var sink tracer.Sink
	switch *sinkKind {
	case "json":
		sink = &tracer.JSONSink{W: out}
	case "text":
		sink = &tracer.TextSink{W: out}
	default:
		fmt.Fprintf(os.Stderr, "simtrace: unknown -sink %q (want text or json)\n", *sinkKind)
		return 2
	}
	tr := tracer.New(&env, sink)

	b := &builder{env: &env, tracer: tr, queues: map[string]*ctxqueue.Queue{}}
	pipelines, closers, err := b.build(cfg.Pipelines)
	defer closers()
	if err != nil {
		fmt.Fprintln(os.Stderr, "simtrace: wiring pipelines:", err)
		return 1
	}

	// §9's idle-window override: when configured, a housekeeper sweeps
	// traces whose member spans have gone quiet for the window instead of
	// waiting for every pipeline to drain.
	if cfg.IdleWindowMs > 0 {
		window := time.Duration(cfg.IdleWindowMs) * time.Millisecond
		hk.DefaultHK.Reg("tracer-sweep", window, func() time.Duration {
			if closed := tr.SweepIdle(mono.NanoTime(), window); len(closed) > 0 {
				nlog.Infof("simtrace: idle window closed %d trace(s)", len(closed))
			}
			return 0
		})
		go hk.DefaultHK.Run()
		defer hk.DefaultHK.Stop()
	}

	runErr := pipeline.RunAll(context.Background(), pipelines...)
	// End of input: sink every trace still outstanding.
	tr.Drain()

	nlog.Infof("simtrace: run %s complete, %d local errors encountered", env.RunID(), b.errs.Cnt())
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "simtrace:", runErr)
		return 1
	}
	return 0
}

// builder wires one pipeline.Pipeline[events.Event] per PipelineConfig,
// sharing named context queues across pipelines whose spanners pair up
// (§4.9: a queue belongs to exactly two registered spanners).
type builder struct {
	env    *traceenv.Env
	tracer *tracer.Tracer
	queues map[string]*ctxqueue.Queue
	errs   cos.Errs
}

func (b *builder) queue(name string) *ctxqueue.Queue {
	q, ok := b.queues[name]
	if !ok {
		q = ctxqueue.New()
		b.queues[name] = q
	}
	return q
}

func (b *builder) build(cfgs []traceenv.PipelineConfig) ([]pipeline.Pipeline[events.Event], func(), error) {
	var pipelines []pipeline.Pipeline[events.Event]
	var readers []reader.Reader
	closers := func() {
		for _, r := range readers {
			r.Close()
		}
	}

	for i, pc := range cfgs {
		id := int64(b.env.NextSpannerID())

		r, err := reader.Open(pc.LogPath)
		if err != nil {
			return nil, closers, cos.NewErrIo(pc.LogPath, err)
		}
		readers = append(readers, r)

		producer, err := b.producer(pc, r)
		if err != nil {
			return nil, closers, fmt.Errorf("pipeline %q: %w", pc.Name, err)
		}

		consumer, err := b.consumer(id, pc)
		if err != nil {
			return nil, closers, fmt.Errorf("pipeline %q: %w", pc.Name, err)
		}

		name := pc.Name
		if name == "" {
			name = fmt.Sprintf("pipeline-%d", i)
		}
		pipelines = append(pipelines, pipeline.Pipeline[events.Event]{
			Name:     name,
			Producer: producer,
			Consumer: consumer,
		})
	}
	return pipelines, closers, nil
}

func (b *builder) producer(pc traceenv.PipelineConfig, r reader.Reader) (pipeline.Producer[events.Event], error) {
	sourceID := b.env.NextParserID()
	switch pc.Parser {
	case "hostsim":
		p := hostsim.New(pc.Name, sourceID, nil, b.env, &b.errs)
		return p.Producer(r), nil
	case "nicbm":
		p := nicbm.New(pc.Name, sourceID, b.env, &b.errs)
		return p.Producer(r), nil
	case "ns3":
		p := ns3.New(pc.Name, sourceID, b.env, &b.errs)
		return p.Producer(r), nil
	case "replay":
		p := replay.New(pc.Name, sourceID, b.env, &b.errs)
		return p.Producer(r), nil
	default:
		return nil, fmt.Errorf("unknown parser %q", pc.Parser)
	}
}

func (b *builder) consumer(id int64, pc traceenv.PipelineConfig) (pipeline.Consumer[events.Event], error) {
	queueName := func(i int) string {
		if i < len(pc.ContextQueues) {
			return pc.ContextQueues[i]
		}
		return pc.Name + "/" + fmt.Sprint(i)
	}

	switch pc.Spanner {
	case "host":
		s, err := host.New(id, b.tracer, b.queue(queueName(0)), b.env, &b.errs)
		if err != nil {
			return nil, err
		}
		return s.Consume, nil
	case "nic":
		s, err := nic.New(id, b.tracer, b.queue(queueName(0)), b.env, &b.errs)
		if err != nil {
			return nil, err
		}
		if len(pc.ContextQueues) > 1 {
			if err := s.PairNetwork(b.queue(queueName(1))); err != nil {
				return nil, err
			}
		}
		return s.Consume, nil
	case "network":
		s, err := network.New(id, b.tracer, b.queue(queueName(0)), b.env, &b.errs)
		if err != nil {
			return nil, err
		}
		return s.Consume, nil
	default:
		return nil, fmt.Errorf("unknown spanner %q", pc.Spanner)
	}
}
