// Package batch commits large sets of MongoDB write models in fixed-size
// chunks. Chunks are committed sequentially; a failed chunk is recorded and
// the remaining chunks are still attempted.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DefaultSize stays below the 500-operation batch ceiling of the document
// stores this service has run against.
const DefaultSize = 450

// BulkWriter is the subset of *mongo.Collection the writer needs.
type BulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// Result summarizes a chunked write.
type Result struct {
	Chunks   int
	Failed   int // chunks that returned an error
	Matched  int64
	Modified int64
	Errs     []error
}

// Err joins the per-chunk errors, or returns nil when every chunk committed.
func (r Result) Err() error {
	return errors.Join(r.Errs...)
}

// Chunks splits items into consecutive slices of at most size elements.
// A size <= 0 falls back to DefaultSize.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultSize
	}
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Writer commits write models in chunks.
type Writer struct {
	size int
	log  *zap.Logger
}

// New returns a Writer committing at most size models per chunk.
func New(size int, logger *zap.Logger) *Writer {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{size: size, log: logger}
}

// Size reports the chunk size.
func (w *Writer) Size() int { return w.size }

// Write commits models to dst chunk by chunk. Each chunk is unordered and
// gets its own timeouts.Batch() deadline. A cancelled ctx stops the walk.
func (w *Writer) Write(ctx context.Context, dst BulkWriter, models []mongo.WriteModel) Result {
	var res Result
	opts := options.BulkWrite().SetOrdered(false)

	chunks := Chunks(models, w.size)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			res.Errs = append(res.Errs, err)
			w.log.Warn("batch write abandoned",
				zap.Int("chunk", i),
				zap.Int("remaining_chunks", len(chunks)-i),
				zap.Error(err))
			break
		}
		res.Chunks++

		cctx, cancel := context.WithTimeout(ctx, timeouts.Batch())
		br, err := dst.BulkWrite(cctx, chunk, opts)
		cancel()

		if br != nil {
			res.Matched += br.MatchedCount
			res.Modified += br.ModifiedCount
		}
		if err != nil {
			res.Failed++
			res.Errs = append(res.Errs, fmt.Errorf("chunk %d: %w", i, err))
			w.log.Warn("batch chunk failed",
				zap.Int("chunk", i),
				zap.Int("size", len(chunk)),
				zap.Error(err))
			continue
		}
	}
	return res
}
