// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Command postkit is a thin CLI frontend over package client: it
// composes the core typed-RPC operations into a handful of
// subcommands.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/log"

	"github.com/onevariable/postkit/client"
	"github.com/onevariable/postkit/config"
	"github.com/onevariable/postkit/dynamic"
)

func main() {
	versioninfo.AddFlag(flag.CommandLine)

	var configPath string
	var addr string
	var serial uint64
	var timeout time.Duration
	flag.StringVar(&configPath, "config", "", "path to a postkit TOML config file")
	flag.StringVar(&addr, "addr", "", "daemon host:port (overrides config)")
	flag.Uint64Var(&serial, "serial", 0, "device serial (overrides config default_serial)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "per-call timeout")
	flag.Parse()

	lg := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "postkit"})

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			lg.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Address = addr
	}
	if serial != 0 {
		cfg.DefaultSerial = serial
	}
	if cfg.Address == "" {
		lg.Fatal("no daemon address: pass -addr or -config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := connect(ctx, cfg, lg)
	if err != nil {
		lg.Fatalf("connect: %v", err)
	}
	defer c.Close()

	callCtx, callCancel := context.WithTimeout(ctx, timeout)
	defer callCancel()

	if err := dispatch(callCtx, c, cfg.DefaultSerial, args); err != nil {
		lg.Fatalf("%v", err)
	}
}

func connect(ctx context.Context, cfg *config.Config, lg *log.Logger) (*client.Client, error) {
	opts := client.Options{Logger: lg}
	if cfg.TLS == nil {
		return client.Connect(ctx, cfg.Address, opts)
	}
	caFile := cfg.TLS.CAFile
	if caFile == "" {
		path, err := client.DefaultCACertPath()
		if err != nil {
			return nil, err
		}
		caFile = path
	}
	pool, err := client.LoadCAPool(caFile)
	if err != nil {
		return nil, err
	}
	return client.ConnectTLS(ctx, cfg.Address, pool, opts)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: postkit [flags] <command> [args]

commands:
  list-devices                      list every device the daemon knows about
  schema                            print the default device's schema report as JSON
  logs <count>                      print the newest <count> log records
  topics <path> <count>             print the newest <count> raw messages on a topic
  call <path> <json-value>          call an endpoint dynamically, printing the JSON response
  publish <path> <json-value>       publish a dynamic message to a topic
  subscribe <path>                  stream dynamic messages from a topic until interrupted

flags:`)
	flag.PrintDefaults()
}

func dispatch(ctx context.Context, c *client.Client, serial uint64, args []string) error {
	switch args[0] {
	case "list-devices":
		return cmdListDevices(ctx, c)
	case "schema":
		return cmdSchema(ctx, c, serial)
	case "logs":
		return cmdLogs(ctx, c, serial, args[1:])
	case "topics":
		return cmdTopics(ctx, c, serial, args[1:])
	case "call":
		return cmdCall(ctx, c, serial, args[1:])
	case "publish":
		return cmdPublish(ctx, c, serial, args[1:])
	case "subscribe":
		return cmdSubscribe(ctx, c, serial, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func cmdListDevices(ctx context.Context, c *client.Client) error {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return err
	}
	return printJSON(devices)
}

func cmdSchema(ctx context.Context, c *client.Client, serial uint64) error {
	report, err := c.GetSchema(ctx, serial)
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("no such device: %d", serial)
	}
	return printJSON(report)
}

func cmdLogs(ctx context.Context, c *client.Client, serial uint64, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: postkit logs <count>")
	}
	count, err := parseUint(args[0])
	if err != nil {
		return err
	}
	logs, err := c.GetLogs(ctx, serial, count)
	if err != nil {
		return err
	}
	return printJSON(logs)
}

func cmdTopics(ctx context.Context, c *client.Client, serial uint64, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: postkit topics <path> <count>")
	}
	count, err := parseUint(args[1])
	if err != nil {
		return err
	}
	msgs, err := c.GetTopicMsgsRaw(ctx, serial, args[0], count)
	if err != nil {
		return err
	}
	return printJSON(msgs)
}

func cmdCall(ctx context.Context, c *client.Client, serial uint64, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: postkit call <path> <json-value>")
	}
	report, err := c.GetSchema(ctx, serial)
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("no such device: %d", serial)
	}
	reqSchema, err := reqSchemaForPath(report, args[0])
	if err != nil {
		return err
	}
	v, err := jsonToValue(args[1], reqSchema)
	if err != nil {
		return err
	}
	resp, err := c.CallEndpointDynamic(ctx, serial, args[0], nextProxySeq(), v)
	if err != nil {
		return err
	}
	return printJSON(resp.AsInterface())
}

func cmdPublish(ctx context.Context, c *client.Client, serial uint64, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: postkit publish <path> <json-value>")
	}
	report, err := c.GetSchema(ctx, serial)
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("no such device: %d", serial)
	}
	var topicSchema *dynamic.DataModelType
	for _, t := range report.TopicsIn {
		if t.Path == args[0] {
			if t.Type != nil {
				topicSchema = t.Type.Type
			}
			break
		}
	}
	if topicSchema == nil {
		return fmt.Errorf("no such topic: %s", args[0])
	}
	v, err := jsonToValue(args[1], topicSchema)
	if err != nil {
		return err
	}
	return c.PublishTopicDynamic(ctx, serial, args[0], nextProxySeq(), v)
}

func cmdSubscribe(ctx context.Context, c *client.Client, serial uint64, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: postkit subscribe <path>")
	}
	listener, err := c.SubscribeTopicDynamic(ctx, serial, args[0])
	if err != nil {
		return err
	}
	defer listener.Close(ctx)
	for {
		v, closed, err := listener.Recv(ctx)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
		if err := printJSON(v.AsInterface()); err != nil {
			return err
		}
	}
}

func reqSchemaForPath(report *client.SchemaReport, path string) (*dynamic.DataModelType, error) {
	for i := range report.Endpoints {
		if report.Endpoints[i].Path == path {
			if report.Endpoints[i].ReqType == nil {
				return dynamic.Primitive(dynamic.KindUnit), nil
			}
			return report.Endpoints[i].ReqType.Type, nil
		}
	}
	return nil, fmt.Errorf("no such endpoint: %s", path)
}

// jsonToValue converts a JSON literal into a dynamic.Value shaped by
// schema. This is a best-effort convenience covering unit, bool,
// string, the 8- to 64-bit and size integers, and f32/f64; every other
// schema kind (char, byte array, 128-bit integers, option, seq, tuple,
// map, struct, enum, ...) is rejected with an error.
func jsonToValue(raw string, schema *dynamic.DataModelType) (dynamic.Value, error) {
	var anyVal interface{}
	if err := json.Unmarshal([]byte(raw), &anyVal); err != nil {
		return dynamic.Value{}, fmt.Errorf("parse json value: %w", err)
	}
	switch schema.Kind {
	case dynamic.KindUnit:
		return dynamic.Unit(), nil
	case dynamic.KindBool:
		b, ok := anyVal.(bool)
		if !ok {
			return dynamic.Value{}, fmt.Errorf("expected a bool")
		}
		return dynamic.Bool(b), nil
	case dynamic.KindString:
		s, ok := anyVal.(string)
		if !ok {
			return dynamic.Value{}, fmt.Errorf("expected a string")
		}
		return dynamic.Str(s), nil
	case dynamic.KindU8, dynamic.KindU16, dynamic.KindU32, dynamic.KindU64, dynamic.KindUsize:
		n, ok := anyVal.(float64)
		if !ok {
			return dynamic.Value{}, fmt.Errorf("expected a number")
		}
		return uintValue(schema.Kind, uint64(n)), nil
	case dynamic.KindI8, dynamic.KindI16, dynamic.KindI32, dynamic.KindI64, dynamic.KindIsize:
		n, ok := anyVal.(float64)
		if !ok {
			return dynamic.Value{}, fmt.Errorf("expected a number")
		}
		return intValue(schema.Kind, int64(n)), nil
	case dynamic.KindF32, dynamic.KindF64:
		n, ok := anyVal.(float64)
		if !ok {
			return dynamic.Value{}, fmt.Errorf("expected a number")
		}
		if schema.Kind == dynamic.KindF32 {
			return dynamic.F32(float32(n)), nil
		}
		return dynamic.F64(n), nil
	default:
		return dynamic.Value{}, fmt.Errorf("postkit call/publish only supports primitive json-value shapes, got schema kind %d", schema.Kind)
	}
}

func uintValue(k dynamic.Kind, n uint64) dynamic.Value {
	switch k {
	case dynamic.KindU8:
		return dynamic.U8(uint8(n))
	case dynamic.KindU16:
		return dynamic.U16(uint16(n))
	case dynamic.KindU32:
		return dynamic.U32(uint32(n))
	case dynamic.KindUsize:
		return dynamic.Value{Kind: dynamic.KindUsize, Usize: n}
	default:
		return dynamic.U64(n)
	}
}

func intValue(k dynamic.Kind, n int64) dynamic.Value {
	switch k {
	case dynamic.KindI8:
		return dynamic.I8(int8(n))
	case dynamic.KindI16:
		return dynamic.I16(int16(n))
	case dynamic.KindI32:
		return dynamic.I32(int32(n))
	case dynamic.KindIsize:
		return dynamic.Value{Kind: dynamic.KindIsize, Isize: n}
	default:
		return dynamic.I64(n)
	}
}

// proxySeq numbers the device-facing requests this process issues;
// each proxied call or publish carries its own sequence.
var proxySeq uint32

func nextProxySeq() uint32 {
	proxySeq++
	return proxySeq
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUint(s string) (uint32, error) {
	var n uint32
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q: %w", s, err)
	}
	return n, nil
}
