package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-quiver/internal/cache"
	"github.com/23skdu/longbow-quiver/internal/client"
	"github.com/23skdu/longbow-quiver/internal/device"
	"github.com/23skdu/longbow-quiver/internal/pixels"
)

// maxBodyBytes bounds request bodies (a 4096x4096 RGBA frame plus framing).
const maxBodyBytes = 72 << 20

var (
	pixelsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiver_pixels_processed_total",
		Help: "The total number of pixels handled by the HTTP server",
	}, []string{"handler"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quiver_request_duration_seconds",
		Help:    "Time spent processing HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})

	forwardErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiver_forward_errors_total",
		Help: "Decoded tensors that could not be forwarded to Longbow",
	})
)

// Forwarder ships decoded tensors to Longbow.
type Forwarder interface {
	ForwardTensor(ctx context.Context, datasetName, name string, t device.Tensor) error
	Close() error
}

var _ Forwarder = (*client.FlightClient)(nil)

// decodeRequest is a raw pixel buffer. Channels is the source stride
// (default 4); NumChannels is the requested output depth (default 3).
type decodeRequest struct {
	Name        string `cbor:"name,omitempty"`
	Width       int    `cbor:"width"`
	Height      int    `cbor:"height"`
	Channels    int    `cbor:"channels,omitempty"`
	NumChannels int    `cbor:"num_channels,omitempty"`
	Data        []byte `cbor:"data"`
}

type decodeResponse struct {
	Shape []int   `cbor:"shape"`
	DType string  `cbor:"dtype"`
	Data  []int32 `cbor:"data"`
}

type encodeRequest struct {
	Shape  []int     `cbor:"shape"`
	DType  string    `cbor:"dtype"`
	Values []float64 `cbor:"values"`
}

type Server struct {
	codec       *pixels.Codec
	backend     device.Backend
	forwarder   Forwarder
	datasetName string
	alloc       memory.Allocator
	cache       cache.PixelCache
	sem         *semaphore.Weighted
	capacity    int64
}

func NewServer(codec *pixels.Codec, fwd Forwarder, dataset string, maxConcurrent int, pc cache.PixelCache) *Server {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Server{
		codec:       codec,
		backend:     codec.Backend(),
		forwarder:   fwd,
		datasetName: dataset,
		alloc:       memory.NewGoAllocator(),
		cache:       pc,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		capacity:    int64(maxConcurrent),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/decode", s.handleDecode)
	mux.HandleFunc("/decode/arrow", s.handleDecodeArrow)
	mux.HandleFunc("/encode", s.handleEncode)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, srv *Server) {
	log.Info().Str("addr", addr).Msg("Starting Quiver Server")
	if srv.forwarder != nil {
		log.Info().Str("dataset", srv.datasetName).Msg("Forwarding decoded tensors to Longbow")
	}

	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("quiver-server")

// weight is the admission cost of a request: one unit per 1024 pixels,
// clamped to [1, capacity]. Overflowing geometry costs the full budget.
func (s *Server) weight(width, height int) int64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	if width > math.MaxInt/height {
		return s.capacity
	}
	w := int64(width*height/1024 + 1)
	if w > s.capacity {
		w = s.capacity
	}
	return w
}

func statusFor(err error) int {
	switch {
	case pixels.IsInputError(err):
		return http.StatusBadRequest
	case pixels.Kind(err) != "":
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, span trace.Span, err error) {
	code := statusFor(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind := pixels.Kind(err); kind != "" {
		w.Header().Set("X-Quiver-Error-Kind", kind)
	}
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", code).Msg("Request rejected")
	}
	http.Error(w, err.Error(), code)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// decodePixels runs a decode request under admission control. The caller
// owns the returned tensor.
func (s *Server) decodePixels(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span) (device.Tensor, *decodeRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}

	var req decodeRequest
	if err := cbor.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return nil, nil, false
	}

	span.SetAttributes(
		attribute.Int("width", req.Width),
		attribute.Int("height", req.Height),
		attribute.Int("num_channels", req.NumChannels),
	)

	// Admission Control
	weight := s.weight(req.Width, req.Height)
	if err := s.sem.Acquire(ctx, weight); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return nil, nil, false
	}
	defer s.sem.Release(weight)

	src := pixels.RawBuffer{Width: req.Width, Height: req.Height, Channels: req.Channels, Data: req.Data}
	t, err := s.codec.Decode(ctx, src, req.NumChannels)
	if err != nil {
		writeError(w, span, err)
		return nil, nil, false
	}
	return t, &req, true
}

// forward is best effort; failures are logged and counted.
func (s *Server) forward(ctx context.Context, name string, t device.Tensor) {
	if s.forwarder == nil {
		return
	}
	if name == "" {
		name = "pixels"
	}
	if err := s.forwarder.ForwardTensor(ctx, s.datasetName, name, t); err != nil {
		forwardErrors.Inc()
		log.Error().Err(err).Str("dataset", s.datasetName).Msg("Error forwarding tensor to Longbow")
	}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleDecode")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	}()

	t, req, ok := s.decodePixels(ctx, w, r, span)
	if !ok {
		return
	}
	defer s.backend.PutTensor(t)
	pixelsProcessed.WithLabelValues("decode").Add(float64(req.Width * req.Height))

	s.forward(ctx, req.Name, t)

	resp := decodeResponse{
		Shape: t.Shape(),
		DType: t.DType().String(),
		Data:  t.Int32s(),
	}
	body, err := cbor.Marshal(resp)
	if err != nil {
		writeError(w, span, err)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleDecodeArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleDecodeArrow")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("decode_arrow").Observe(time.Since(start).Seconds())
	}()

	t, req, ok := s.decodePixels(ctx, w, r, span)
	if !ok {
		return
	}
	defer s.backend.PutTensor(t)
	pixelsProcessed.WithLabelValues("decode_arrow").Add(float64(req.Width * req.Height))

	s.forward(ctx, req.Name, t)

	name := req.Name
	if name == "" {
		name = "pixels"
	}
	rec, err := client.NewRecordBatchBuilder(s.alloc).BuildTensorRecord(name, t)
	if err != nil {
		writeError(w, span, err)
		return
	}
	defer rec.Release()

	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	w.WriteHeader(http.StatusOK)
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.alloc))
	if err := writer.Write(rec); err != nil {
		log.Error().Err(err).Msg("Error writing Arrow stream")
	}
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Arrow stream")
	}
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleEncode")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
		return
	}

	var req encodeRequest
	if err := cbor.Unmarshal(body, &req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Shape) < 2 {
		writeError(w, span, fmt.Errorf("%w: toPixels only supports rank 2 or 3 tensors, got rank %d",
			pixels.ErrInvalidRank, len(req.Shape)))
		return
	}
	height, width := req.Shape[0], req.Shape[1]
	span.SetAttributes(
		attribute.Int("width", width),
		attribute.Int("height", height),
		attribute.String("dtype", req.DType),
	)

	key := cache.Key(body)
	pix, hit := []uint8(nil), false
	if s.cache != nil {
		pix, hit = s.cache.Get(key)
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit))

	if !hit {
		x, err := s.tensorFromRequest(&req)
		if err != nil {
			span.RecordError(err)
			http.Error(w, fmt.Sprintf("Bad Request: %v", err), http.StatusBadRequest)
			return
		}
		defer s.backend.PutTensor(x)

		weight := s.weight(width, height)
		if err := s.sem.Acquire(ctx, weight); err != nil {
			log.Error().Err(err).Msg("Failed to acquire semaphore")
			http.Error(w, "Server busy", http.StatusServiceUnavailable)
			return
		}
		pix, err = s.codec.Encode(ctx, x)
		s.sem.Release(weight)
		if err != nil {
			writeError(w, span, err)
			return
		}
		if s.cache != nil {
			s.cache.Put(key, pix)
		}
	}
	pixelsProcessed.WithLabelValues("encode").Add(float64(width * height))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Image-Width", strconv.Itoa(width))
	w.Header().Set("X-Image-Height", strconv.Itoa(height))
	if acceptsZstd(r) {
		pix = compressZstd(pix)
		w.Header().Set("Content-Encoding", "zstd")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pix)
}

// tensorFromRequest materializes an encode request. Bool is accepted here
// so that the codec reports it as an unsupported dtype.
func (s *Server) tensorFromRequest(req *encodeRequest) (device.Tensor, error) {
	dtype, err := device.ParseDType(req.DType)
	if err != nil {
		return nil, err
	}
	shape := device.Shape(req.Shape)

	var data any
	switch dtype {
	case device.Float32:
		vals := make([]float32, len(req.Values))
		for i, v := range req.Values {
			vals[i] = float32(v)
		}
		data = vals
	case device.Int32:
		vals := make([]int32, len(req.Values))
		for i, v := range req.Values {
			vals[i] = int32(v)
		}
		data = vals
	case device.Bool:
		vals := make([]bool, len(req.Values))
		for i, v := range req.Values {
			vals[i] = v != 0
		}
		data = vals
	default:
		return nil, fmt.Errorf("%w: %v values cannot be sent as numbers", device.ErrUnknownDType, dtype)
	}
	return s.backend.NewTensor(shape, dtype, data)
}

func acceptsZstd(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "zstd" {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
