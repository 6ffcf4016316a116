package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-quiver/internal/cache"
	"github.com/23skdu/longbow-quiver/internal/client"
	"github.com/23skdu/longbow-quiver/internal/device"
	"github.com/23skdu/longbow-quiver/internal/pixels"
)

var (
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	flightAddr    = flag.String("flight", "", "Address to listen on for Flight Server (e.g. :9090)")
	serverAddr    = flag.String("server", "", "Longbow server address (e.g., localhost:3000)")
	datasetName   = flag.String("dataset", "quiver_dataset", "Target dataset name on server")
	maxConcurrent = flag.Int("max-concurrent", 16384, "Admission budget in units of 1024 pixels")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cacheSize     = flag.Int("cache-size", 1024, "Maximum number of cached /encode responses (0 disables)")
	imagePath     = flag.String("image", "", "Decode a png/jpeg/gif file and write it as an Arrow IPC stream")
	numChannels   = flag.Int("channels", pixels.DefaultChannels, "Channels to keep when decoding (1-4)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")

	flagTransportFmt = flag.String("transport-fmt", "fp32", "Transport format for forwarded float tensors: 'fp32' (default) or 'fp16'")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	backend := device.NewCPUBackend()
	codec := pixels.NewCodec(backend)

	var fwd Forwarder
	if *serverAddr != "" {
		opts, err := transportOptions(*flagTransportFmt)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid transport format")
		}
		fc, err := client.NewFlightClient(*serverAddr, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create flight client")
		}
		defer func() {
			if err := fc.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()
		log.Info().Str("addr", *serverAddr).Str("transport_fmt", *flagTransportFmt).Msg("Connected to Flight Server")
		fwd = fc
	}

	if *imagePath != "" {
		if err := runImage(codec, fwd, *imagePath); err != nil {
			log.Fatal().Err(err).Str("image", *imagePath).Msg("Failed to convert image")
		}
		return
	}

	// Server Mode
	if *listenAddr != "" {
		var pc cache.PixelCache
		if *cacheSize > 0 {
			pc = cache.NewMapCache(*cacheSize)
		}
		srv := NewServer(codec, fwd, *datasetName, *maxConcurrent, pc)
		go startServer(*listenAddr, srv)
	}

	if *flightAddr != "" {
		StartFlightServer(*flightAddr, NewQuiverFlightServer(codec, fwd, *datasetName, *numChannels))
		return
	}

	if *listenAddr != "" {
		select {}
	}

	flag.Usage()
	os.Exit(2)
}

// runImage decodes one image file and either forwards it to Longbow or
// writes it to stdout as an Arrow IPC stream.
// transportOptions maps the -transport-fmt flag onto flight client options.
func transportOptions(format string) ([]client.Option, error) {
	switch format {
	case "", "fp32":
		return nil, nil
	case "fp16":
		return []client.Option{client.WithFloat16Transport()}, nil
	}
	return nil, fmt.Errorf("unknown transport format %q, want fp32 or fp16", format)
}

func runImage(codec *pixels.Codec, fwd Forwarder, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := pixels.LoadImage(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Now()
	t, err := codec.Decode(ctx, img, *numChannels)
	if err != nil {
		return err
	}
	defer codec.Backend().PutTensor(t)
	log.Info().
		Stringer("shape", t.Shape()).
		Dur("elapsed", time.Since(start)).
		Msg("Decoded image")

	name := filepath.Base(path)
	if fwd != nil {
		log.Info().Str("server", *serverAddr).Str("dataset", *datasetName).Msg("Sending tensor to Longbow")
		if err := fwd.ForwardTensor(ctx, *datasetName, name, t); err != nil {
			return err
		}
		log.Info().Msg("Successfully sent tensor to Longbow")
		return nil
	}

	rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildTensorRecord(name, t)
	if err != nil {
		return err
	}
	defer rec.Release()
	return writeArrowStream(os.Stdout, rec)
}

func writeArrowStream(w *os.File, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("quiver"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
