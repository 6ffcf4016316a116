package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-quiver/internal/device"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

// FlightClient handles communication with a Longbow server via Apache Flight.
type FlightClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
	builder *RecordBatchBuilder
}

// Option configures a FlightClient.
type Option func(*FlightClient)

// WithFloat16Transport forwards float32 tensors as list<float16>.
func WithFloat16Transport() Option {
	return func(c *FlightClient) {
		c.builder.WithFloat16()
	}
}

// NewFlightClient creates a new Flight client connected to the given address.
// Five consecutive failures open the breaker for ten seconds.
func NewFlightClient(addr string, opts ...Option) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	c := &FlightClient{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: NewCircuitBreaker(addr, 5, 10*time.Second),
		builder: NewRecordBatchBuilder(memory.NewGoAllocator()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DoPut sends a RecordBatch to the given dataset on the Longbow server.
func (c *FlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	if !c.breaker.Allow() {
		forwardedRecords.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: dataset %s", ErrCircuitOpen, datasetName)
	}

	if err := c.doPut(ctx, datasetName, record); err != nil {
		c.breaker.Failure()
		forwardedRecords.WithLabelValues("error").Inc()
		return err
	}
	c.breaker.Success()
	forwardedRecords.WithLabelValues("ok").Inc()
	return nil
}

func (c *FlightClient) doPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	desc := &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{datasetName},
	}

	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	// The descriptor travels with the first message.
	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(desc)

	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	// Drain acknowledgements so server-side failures surface here.
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// ForwardTensor exports t as a one-row record named name and puts it to
// the dataset.
func (c *FlightClient) ForwardTensor(ctx context.Context, datasetName, name string, t device.Tensor) error {
	rec, err := c.builder.BuildTensorRecord(name, t)
	if err != nil {
		return err
	}
	defer rec.Release()
	return c.DoPut(ctx, datasetName, rec)
}

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}
