// Package mcapsrc bridges recorded MCAP files to the wire decoder: each
// protobuf-encoded message in the file becomes one Decoder run against a
// caller-registered handlers.Handlers for that message's schema.
package mcapsrc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/foxglove/mcap/go/mcap"

	"github.com/wkalt/pbcore/handlers"
	"github.com/wkalt/pbcore/internal/logx"
	"github.com/wkalt/pbcore/sink"
	"github.com/wkalt/pbcore/wire"
)

// Registry maps a schema name (as recorded in the MCAP file's Schema.Name)
// to the frozen Handlers that decode messages of that schema. Building and
// freezing the Handlers graph for each schema the caller cares about is the
// caller's responsibility; this package never parses .proto descriptors.
type Registry map[string]*handlers.Handlers

// ClosureFactory builds the top-level decode closure for one message, given
// its channel's topic and the schema name looked up in the Registry.
type ClosureFactory func(topic, schemaName string) any

// Stats summarizes one Walk run.
type Stats struct {
	MessagesSeen    int
	MessagesDecoded int
	SchemasUnknown  int
	DecodeErrors    int
}

// Walk reads every message from r, decodes those whose channel's schema is
// registered, and reports aggregate counts. A message whose schema is not
// in reg is skipped and counted in Stats.SchemasUnknown; Walk returns no
// error for it. A message that
// fails to decode is logged and counted, not fatal to the walk.
func Walk(ctx context.Context, r io.Reader, reg Registry, closures ClosureFactory) (Stats, error) {
	var stats Stats

	reader, err := mcap.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("mcapsrc: failed to open reader: %w", err)
	}
	defer reader.Close()

	it, err := reader.Messages()
	if err != nil {
		return stats, fmt.Errorf("mcapsrc: failed to create message iterator: %w", err)
	}

	schemaNames := make(map[uint16]string)
	msg := &mcap.Message{}
	for {
		schema, channel, msg, err := it.NextInto(msg)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return stats, fmt.Errorf("mcapsrc: failed to read message: %w", err)
		}
		stats.MessagesSeen++

		if schema == nil {
			stats.SchemasUnknown++
			continue
		}
		schemaNames[schema.ID] = schema.Name

		h, ok := reg[schema.Name]
		if !ok {
			stats.SchemasUnknown++
			continue
		}

		closure := closures(channel.Topic, schema.Name)
		if err := decodeOne(h, closure, msg.Data); err != nil {
			stats.DecodeErrors++
			logx.Warnw(ctx, "failed to decode message",
				"topic", channel.Topic, "schema", schema.Name, "error", err)
			continue
		}
		stats.MessagesDecoded++
	}
	return stats, nil
}

// decodeOne runs a single complete message through a fresh Decoder: a
// Decoder is bound to one top-level message and is not reused across
// messages, unlike the streaming use within a single message's bytes.
func decodeOne(h *handlers.Handlers, closure any, data []byte) error {
	d, err := wire.New(sink.New(h, closure))
	if err != nil {
		return fmt.Errorf("mcapsrc: failed to start decoder: %w", err)
	}
	n, err := d.PutBuffer(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("mcapsrc: decoder stalled after %d/%d bytes", n, len(data))
	}
	return d.EndOfStream()
}
