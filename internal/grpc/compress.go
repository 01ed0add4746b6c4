package grpc

import (
	"io"
	"sync"

	"github.com/golang/snappy"
	"google.golang.org/grpc/encoding"
)

// SnappyName is the grpc-encoding value advertised for snappy framed payloads.
const SnappyName = "snappy"

func init() {
	encoding.RegisterCompressor(NewSnappyCompressor())
}

// snappyCompressor frames RPC payloads with the snappy stream format.
type snappyCompressor struct {
	writers sync.Pool
}

// NewSnappyCompressor constructs an encoding.Compressor backed by snappy framing.
func NewSnappyCompressor() encoding.Compressor {
	return &snappyCompressor{}
}

// Name reports the identifier used for snappy encoded payloads.
func (c *snappyCompressor) Name() string { return SnappyName }

// Compress wraps w so written bytes are snappy framed until Close.
func (c *snappyCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	//1.- Reuse buffered writers between messages; Reset rebinds them to the new sink.
	if pooled, ok := c.writers.Get().(*pooledWriter); ok {
		pooled.Reset(w)
		return pooled, nil
	}
	return &pooledWriter{Writer: snappy.NewBufferedWriter(w), pool: &c.writers}, nil
}

// Decompress returns a reader yielding the original payload bytes.
func (c *snappyCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return snappy.NewReader(r), nil
}

type pooledWriter struct {
	*snappy.Writer
	pool *sync.Pool
}

// Close flushes the frame and hands the writer back to the pool.
func (p *pooledWriter) Close() error {
	err := p.Writer.Close()
	p.pool.Put(p)
	return err
}
