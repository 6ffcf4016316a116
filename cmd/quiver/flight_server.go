package main

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-quiver/internal/pixels"
)

var ErrMalformedBatch = errors.New("malformed pixel batch")

// QuiverFlightServer decodes pixel rows put over Flight. Each record batch
// carries width:int32, height:int32 and pixels:binary (RGBA) columns.
type QuiverFlightServer struct {
	flight.BaseFlightServer
	codec       *pixels.Codec
	forwarder   Forwarder
	datasetName string
	numChannels int
	alloc       memory.Allocator
}

func NewQuiverFlightServer(codec *pixels.Codec, fwd Forwarder, dataset string, numChannels int) *QuiverFlightServer {
	return &QuiverFlightServer{
		codec:       codec,
		forwarder:   fwd,
		datasetName: dataset,
		numChannels: numChannels,
		alloc:       memory.NewGoAllocator(),
	}
}

func (s *QuiverFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	return fmt.Errorf("DoExchange not implemented")
}

func (s *QuiverFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	ctx := stream.Context()
	decoded := 0
	for reader.Next() {
		rec := reader.Record()
		log.Info().Int64("rows", rec.NumRows()).Msg("DoPut received batch")

		widths, heights, data, err := pixelColumns(rec)
		if err != nil {
			return err
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			if widths.IsNull(i) || heights.IsNull(i) || data.IsNull(i) {
				return fmt.Errorf("%w: row %d has null fields", ErrMalformedBatch, i)
			}
			src := pixels.RawBuffer{
				Width:  int(widths.Value(i)),
				Height: int(heights.Value(i)),
				Data:   data.Value(i),
			}
			t, err := s.codec.Decode(ctx, src, s.numChannels)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			log.Debug().Stringer("shape", t.Shape()).Int("row", i).Msg("Decoded row")

			if s.forwarder != nil {
				if err := s.forwarder.ForwardTensor(ctx, s.datasetName, fmt.Sprintf("row-%d", decoded), t); err != nil {
					forwardErrors.Inc()
					log.Error().Err(err).Msg("Error forwarding row to Longbow")
				}
			}
			s.codec.Backend().PutTensor(t)
			decoded++
		}
	}
	if err := reader.Err(); err != nil {
		return err
	}

	return stream.Send(&flight.PutResult{AppMetadata: []byte(fmt.Sprintf("decoded %d", decoded))})
}

func pixelColumns(rec arrow.RecordBatch) (*array.Int32, *array.Int32, *array.Binary, error) {
	col := func(name string) (arrow.Array, error) {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedBatch, name)
		}
		return rec.Column(idx[0]), nil
	}

	w, err := col("width")
	if err != nil {
		return nil, nil, nil, err
	}
	h, err := col("height")
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := col("pixels")
	if err != nil {
		return nil, nil, nil, err
	}

	widths, ok1 := w.(*array.Int32)
	heights, ok2 := h.(*array.Int32)
	data, ok3 := p.(*array.Binary)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil, nil, fmt.Errorf("%w: want width:int32, height:int32, pixels:binary, got %s",
			ErrMalformedBatch, rec.Schema())
	}
	return widths, heights, data, nil
}

func StartFlightServer(addr string, srv *QuiverFlightServer) {
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(srv)

	// Init handles the listener creation internally
	if err := server.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", addr).Msg("Starting Quiver Flight Server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
