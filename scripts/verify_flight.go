//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Sends a gradient frame to a running `quiver -flight` and checks the ack.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to Quiver Flight Server")

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create connection")
	}
	defer conn.Close()
	c := flight.NewClientFromConn(conn, nil)

	const frames, w, h = 3, 64, 48
	rec := buildBatch(frames, w, h)
	defer rec.Release()

	// Retry loop while the server starts
	var ack string
	start := time.Now()
	for i := 0; i < 10; i++ {
		ack, err = put(c, rec)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("DoPut failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to put frames after retries")
	}
	log.Info().Dur("elapsed", time.Since(start)).Str("ack", ack).Msg("Server acknowledged")

	if want := fmt.Sprintf("decoded %d", frames); !strings.EqualFold(ack, want) {
		log.Fatal().Str("expected", want).Str("got", ack).Msg("Ack mismatch")
	}

	fmt.Println("VERIFICATION PASSED")
}

func buildBatch(frames, w, h int) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "width", Type: arrow.PrimitiveTypes.Int32},
		{Name: "height", Type: arrow.PrimitiveTypes.Int32},
		{Name: "pixels", Type: arrow.BinaryTypes.Binary},
	}, nil)

	wb := array.NewInt32Builder(mem)
	defer wb.Release()
	hb := array.NewInt32Builder(mem)
	defer hb.Release()
	pb := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
	defer pb.Release()

	for f := 0; f < frames; f++ {
		pix := make([]byte, w*h*4)
		for i := 0; i < w*h; i++ {
			pix[4*i] = byte(i % w * 255 / w)
			pix[4*i+1] = byte(i / w * 255 / h)
			pix[4*i+2] = byte(f * 80)
			pix[4*i+3] = 255
		}
		wb.Append(int32(w))
		hb.Append(int32(h))
		pb.Append(pix)
	}

	cols := []arrow.Array{wb.NewArray(), hb.NewArray(), pb.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecordBatch(schema, cols, int64(frames))
}

func put(c flight.Client, rec arrow.RecordBatch) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := c.DoPut(ctx)
	if err != nil {
		return "", err
	}
	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"verify"}})
	if err := writer.Write(rec); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	if err := stream.CloseSend(); err != nil {
		return "", err
	}

	var ack string
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return ack, nil
		}
		if err != nil {
			return "", err
		}
		ack = string(res.AppMetadata)
	}
}
